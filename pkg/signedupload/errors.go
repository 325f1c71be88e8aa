package signedupload

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the builder
var (
	// ErrConfiguration indicates missing or invalid credentials or policy
	ErrConfiguration = errors.New("signedupload: invalid configuration")

	// ErrNetwork indicates a transport failure or a non-2xx response from the storage endpoint
	ErrNetwork = errors.New("signedupload: network error")

	// ErrAborted indicates the caller cancelled the transfer
	ErrAborted = errors.New("signedupload: upload aborted")

	// ErrInvalidFile indicates the file has no name or no body
	ErrInvalidFile = errors.New("signedupload: invalid file")

	// ErrRejectedFile indicates the file does not match the accepted types
	ErrRejectedFile = errors.New("signedupload: file type not accepted")

	// ErrUnsafeObjectKey indicates a key rejected by strict key validation
	ErrUnsafeObjectKey = errors.New("signedupload: unsafe object key")
)

// UploadError describes a failed upload attempt
type UploadError struct {
	Op         string
	Key        string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Key, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNetworkError reports whether err is a transport or status failure
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsAborted reports whether err stems from caller cancellation
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
