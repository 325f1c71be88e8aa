package postpolicy

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
	"github.com/tendant/signed-upload/pkg/signedupload/storage"
)

const (
	defaultMaxFieldBytes = 64 << 10

	// filenameVariable in the key field is replaced by the uploaded file name
	filenameVariable = "${filename}"

	requestIDHeader = "x-oss-request-id"
)

// Handler receives signed POST uploads and serves the stored objects
type Handler struct {
	verifier      *Verifier
	store         storage.BlobStore
	ledger        ledger.Ledger
	publicURL     string
	maxFieldBytes int64
	logger        *slog.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLedger records every accepted upload
func WithLedger(l ledger.Ledger) HandlerOption {
	return func(h *Handler) {
		h.ledger = l
	}
}

// WithPublicURL sets the base URL object locations are reported under.
// By default it is derived from the request.
func WithPublicURL(url string) HandlerOption {
	return func(h *Handler) {
		h.publicURL = strings.TrimRight(url, "/")
	}
}

// WithMaxFieldBytes limits the size of each non-file form field
func WithMaxFieldBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxFieldBytes = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a receiver that stores verified uploads in store
func NewHandler(verifier *Verifier, store storage.BlobStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		verifier:      verifier,
		store:         store,
		maxFieldBytes: defaultMaxFieldBytes,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a router with POST / for uploads and GET|HEAD /* for objects
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandlePost)
	r.Get("/*", h.HandleGet)
	r.Head("/*", h.HandleGet)
	return r
}

// postResponse is returned when success_action_status is 201
type postResponse struct {
	XMLName  xml.Name `xml:"PostResponse"`
	Bucket   string   `xml:"Bucket,omitempty"`
	Location string   `xml:"Location"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag,omitempty"`
}

// HandlePost handles a signed multipart POST. Form fields must precede the
// file part; anything after the file is ignored.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)

	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, requestID, fmt.Errorf("%w: %v", ErrMalformedPOST, err))
		return
	}

	form := make(map[string]string)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			h.writeError(w, requestID, fmt.Errorf("%w: %s", ErrMissingField, signedupload.FieldFile))
			return
		}
		if err != nil {
			h.writeError(w, requestID, fmt.Errorf("%w: %v", ErrMalformedPOST, err))
			return
		}

		name := strings.ToLower(part.FormName())
		if name == "" {
			part.Close()
			continue
		}
		if name == signedupload.FieldFile {
			h.receive(w, r, requestID, form, part)
			part.Close()
			return
		}

		value, err := readField(part, h.maxFieldBytes)
		part.Close()
		if err != nil {
			h.writeError(w, requestID, fmt.Errorf("%w: field %s: %v", ErrMalformedPOST, name, err))
			return
		}
		form[name] = value
	}
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request, requestID string, form map[string]string, part *multipart.Part) {
	ctx := r.Context()
	fileName := part.FileName()

	if key := form[signedupload.FieldKey]; fileName != "" && strings.Contains(key, filenameVariable) {
		form[signedupload.FieldKey] = strings.ReplaceAll(key, filenameVariable, fileName)
	}

	grant, err := h.verifier.Verify(form)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	key := grant.Key

	contentType := form["content-type"]
	if contentType == "" {
		contentType = part.Header.Get("Content-Type")
	}
	contentType = signedupload.DetectContentType(fileName, contentType)

	var body io.Reader = part
	if grant.MaxSize >= 0 {
		body = io.LimitReader(part, grant.MaxSize+1)
	}
	counter := &countingReader{r: body}

	// the object only reaches key once its size is accepted
	staging := key + ".upload-" + requestID
	if err := h.store.UploadWithParams(ctx, counter, storage.UploadParams{
		ObjectKey: staging,
		MimeType:  contentType,
	}); err != nil {
		h.discard(ctx, requestID, staging)
		h.writeError(w, requestID, fmt.Errorf("failed to store %s: %w", key, err))
		return
	}

	if err := grant.Allows(counter.n); err != nil {
		h.discard(ctx, requestID, staging)
		h.writeError(w, requestID, err)
		return
	}

	if err := h.store.Move(ctx, staging, key); err != nil {
		h.discard(ctx, requestID, staging)
		h.writeError(w, requestID, fmt.Errorf("failed to store %s: %w", key, err))
		return
	}

	var etag string
	if meta, err := h.store.GetObjectMeta(ctx, key); err == nil {
		etag = meta.ETag
	}
	location := signedupload.ObjectURL(h.baseURL(r), key)

	if h.ledger != nil {
		rec := ledger.NewRecord(key)
		rec.AccessID = grant.AccessID
		rec.FileName = fileName
		rec.ContentType = contentType
		rec.Media = string(signedupload.ClassifyMedia(fileName, contentType))
		rec.Size = counter.n
		rec.ETag = etag
		rec.ObjectURL = location
		if err := h.ledger.Put(ctx, rec); err != nil {
			h.logger.Error("failed to record upload", "request_id", requestID, "key", key, "error", err)
		}
	}

	h.logger.Info("object stored",
		"request_id", requestID,
		"access_id", grant.AccessID,
		"key", key,
		"size", counter.n,
		"content_type", contentType)

	if etag != "" {
		w.Header().Set("ETag", strconv.Quote(etag))
	}
	switch form["success_action_status"] {
	case "200":
		w.WriteHeader(http.StatusOK)
	case "201":
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusCreated)
		resp := postResponse{
			Bucket:   form["bucket"],
			Location: location,
			Key:      key,
			ETag:     etag,
		}
		io.WriteString(w, xml.Header)
		if err := xml.NewEncoder(w).Encode(resp); err != nil {
			h.logger.Warn("failed to write post response", "request_id", requestID, "error", err)
		}
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) discard(ctx context.Context, requestID, key string) {
	if err := h.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		h.logger.Error("failed to remove staged object", "request_id", requestID, "key", key, "error", err)
	}
}

// HandleGet serves a stored object so that object URLs resolve
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)

	key := chi.URLParam(r, "*")
	if key == "" {
		h.writeError(w, requestID, storage.ErrObjectNotFound)
		return
	}

	meta, err := h.store.GetObjectMeta(r.Context(), key)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if meta.ETag != "" {
		w.Header().Set("ETag", strconv.Quote(meta.ETag))
	}
	if !meta.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	rc, err := h.store.Download(r.Context(), key)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("object download interrupted", "request_id", requestID, "key", key, "error", err)
	}
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, err error) {
	code, status := errorCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("signed POST failed", "request_id", requestID, "code", code, "error", err)
	} else {
		h.logger.Warn("signed POST rejected", "request_id", requestID, "code", code, "error", err)
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(errorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func readField(part *multipart.Part, max int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, max+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > max {
		return "", errors.New("value too long")
	}
	return string(data), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
