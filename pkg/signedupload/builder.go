package signedupload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 1024

// Builder turns an UploadPolicy plus a file into a signed multipart POST.
// It holds no per-request state; concurrent Submit calls are independent.
type Builder struct {
	policy     *UploadPolicy
	httpClient *http.Client
	keyPrefix  string
	progress   ProgressFunc
	onComplete func(UploadOutcome)
	accept     AcceptFilter
	strictKeys bool
	logger     *slog.Logger

	lastURL atomic.Pointer[string]
}

// New creates a Builder for policy
func New(policy *UploadPolicy, opts ...Option) (*Builder, error) {
	if policy == nil {
		return nil, configErrorf("upload policy is required")
	}

	b := &Builder{
		policy: policy,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // large uploads
		},
		keyPrefix: DefaultKeyPrefix,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Policy returns the policy the builder signs with
func (b *Builder) Policy() *UploadPolicy {
	return b.policy
}

// ObjectKey returns the key a file with fileName is stored under
func (b *Builder) ObjectKey(fileName string) string {
	return ComposeObjectKey(b.keyPrefix, fileName)
}

// Fields computes fresh signed form fields for fileName
func (b *Builder) Fields(fileName string) (SignedFields, error) {
	if fileName == "" {
		return SignedFields{}, fmt.Errorf("%w: file name is required", ErrInvalidFile)
	}
	key := b.ObjectKey(fileName)
	if b.strictKeys {
		if err := ValidateObjectKey(key); err != nil {
			return SignedFields{}, err
		}
	}
	return b.policy.Sign(key)
}

// Accepts reports whether the accept filter admits the file
func (b *Builder) Accepts(fileName, contentType string) bool {
	return b.accept.Allows(fileName, contentType)
}

// LastURL returns the object URL of the most recently started attempt, or
// "" if none has started.
func (b *Builder) LastURL() string {
	if p := b.lastURL.Load(); p != nil {
		return *p
	}
	return ""
}

// Upload submits file and waits for the outcome
func (b *Builder) Upload(ctx context.Context, file File) (UploadOutcome, error) {
	return b.Submit(ctx, file).Wait()
}

// Submit starts an upload and returns immediately. The transfer runs in its
// own goroutine; use the returned Attempt to wait for or cancel it.
//
// Example:
//
//	a := builder.Submit(ctx, signedupload.File{Name: "a.png", Size: n, Body: f})
//	outcome, err := a.Wait()
func (b *Builder) Submit(ctx context.Context, file File) *Attempt {
	a := newAttempt(ctx)

	if err := b.checkFile(file); err != nil {
		a.reject(err)
		return a
	}

	fields, err := b.Fields(file.Name)
	if err != nil {
		a.reject(&UploadError{Op: "sign", Key: b.ObjectKey(file.Name), Err: err})
		return a
	}
	a.fields = fields

	objectURL := b.policy.ObjectURL(fields.ObjectKey)
	b.lastURL.Store(&objectURL)

	if !a.state.transition(StateIdle, StateInFlight) {
		return a
	}
	go b.run(a, file, objectURL)
	return a
}

func (b *Builder) checkFile(file File) error {
	if file.Name == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidFile)
	}
	if file.Body == nil {
		return fmt.Errorf("%w: file %s has no body", ErrInvalidFile, file.Name)
	}
	if file.Size == 0 {
		return fmt.Errorf("%w: file %s is empty", ErrInvalidFile, file.Name)
	}
	if !b.Accepts(file.Name, file.ContentType) {
		return fmt.Errorf("%w: %s", ErrRejectedFile, file.Name)
	}
	return nil
}

func (b *Builder) run(a *Attempt, file File, objectURL string) {
	key := a.fields.ObjectKey
	logger := b.logger.With("attempt", a.id, "key", key)

	body := newProgressReader(file.Body, key, file.Size, b.progress)
	form, err := newSignedForm(a.fields, file, body)
	if err != nil {
		a.finish(StateFailed, UploadOutcome{}, &UploadError{Op: "post", Key: key, Err: err})
		return
	}

	req, err := http.NewRequestWithContext(a.ctx, http.MethodPost, b.policy.Host(), form.body)
	if err != nil {
		a.finish(StateFailed, UploadOutcome{}, &UploadError{Op: "post", Key: key, Err: fmt.Errorf("%w: %v", ErrNetwork, err)})
		return
	}
	req.Header.Set("Content-Type", form.contentType)
	if form.length >= 0 {
		req.ContentLength = form.length
	}

	logger.Debug("upload started", "host", b.policy.Host(), "size", file.Size)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		if a.aborted() {
			logger.Info("upload aborted")
			a.finish(StateAborted, UploadOutcome{}, &UploadError{Op: "post", Key: key, Err: ErrAborted})
			return
		}
		logger.Error("upload failed", "err", err)
		a.finish(StateFailed, UploadOutcome{}, &UploadError{Op: "post", Key: key, Err: fmt.Errorf("%w: %v", ErrNetwork, err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Error("upload rejected", "status", resp.StatusCode)
		a.finish(StateFailed, UploadOutcome{}, &UploadError{
			Op:         "post",
			Key:        key,
			StatusCode: resp.StatusCode,
			Body:       string(excerpt),
			Err:        fmt.Errorf("%w: unexpected status %s", ErrNetwork, resp.Status),
		})
		return
	}

	outcome := UploadOutcome{
		ObjectURL:  objectURL,
		ObjectKey:  key,
		Media:      ClassifyMedia(file.Name, file.ContentType),
		StatusCode: resp.StatusCode,
	}
	logger.Info("upload completed", "status", resp.StatusCode, "url", objectURL)
	a.finish(StateCompleted, outcome, nil)

	if b.onComplete != nil {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("completion callback panicked", "panic", r)
			}
		}()
		b.onComplete(outcome)
	}
}

// Attempt is the handle of one in-flight upload. It resolves exactly once.
type Attempt struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	state  atomicState
	fields SignedFields
	done   chan struct{}

	outcome UploadOutcome
	err     error
}

func newAttempt(parent context.Context) *Attempt {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Attempt{
		id:     newAttemptID(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the attempt in logs
func (a *Attempt) ID() string { return a.id }

// Fields returns the signed fields used by the attempt
func (a *Attempt) Fields() SignedFields { return a.fields }

// State returns the current state
func (a *Attempt) State() State { return a.state.load() }

// Done is closed when the attempt reaches a terminal state
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Cancel aborts the transfer. It has no effect once the attempt has
// resolved.
func (a *Attempt) Cancel() { a.cancel() }

// Wait blocks until the attempt resolves
func (a *Attempt) Wait() (UploadOutcome, error) {
	<-a.done
	return a.outcome, a.err
}

// aborted reports whether the caller cancelled, as opposed to a deadline.
func (a *Attempt) aborted() bool {
	return errors.Is(a.ctx.Err(), context.Canceled)
}

// reject fails an attempt that never went in flight.
func (a *Attempt) reject(err error) {
	a.err = err
	a.state.transition(StateIdle, StateFailed)
	close(a.done)
	a.cancel()
}

func (a *Attempt) finish(state State, outcome UploadOutcome, err error) {
	a.outcome = outcome
	a.err = err
	a.state.transition(StateInFlight, state)
	close(a.done)
	a.cancel()
}
