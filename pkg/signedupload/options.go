package signedupload

import (
	"log/slog"
	"net/http"
)

// Option is a functional option for configuring a Builder
type Option func(*Builder)

// WithHTTPClient sets the client used for the POST
func WithHTTPClient(client *http.Client) Option {
	return func(b *Builder) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// WithKeyPrefix sets the prefix prepended to file names.
// Default is "test/".
func WithKeyPrefix(prefix string) Option {
	return func(b *Builder) {
		b.keyPrefix = prefix
	}
}

// WithProgress sets a progress callback shared by all attempts
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// WithOnComplete registers a callback receiving each successful outcome
func WithOnComplete(fn func(UploadOutcome)) Option {
	return func(b *Builder) {
		b.onComplete = fn
	}
}

// WithAccept restricts uploads to files matching the accept patterns,
// e.g. "image/*", "video/mp4", ".pdf"
func WithAccept(patterns ...string) Option {
	return func(b *Builder) {
		for _, p := range patterns {
			b.accept = append(b.accept, ParseAccept(p)...)
		}
	}
}

// WithStrictKeys rejects object keys that fail ValidateObjectKey
func WithStrictKeys() Option {
	return func(b *Builder) {
		b.strictKeys = true
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}
