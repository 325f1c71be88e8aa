package postpolicy

import (
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/tendant/signed-upload/pkg/signedupload/storage"
)

// Verification and upload errors
var (
	// ErrMissingField is returned when a required form field is absent
	ErrMissingField = errors.New("postpolicy: missing form field")

	// ErrUnknownAccessID is returned when the access id has no credential
	ErrUnknownAccessID = errors.New("postpolicy: unknown access id")

	// ErrSignatureMismatch is returned when the signature does not match the policy
	ErrSignatureMismatch = errors.New("postpolicy: signature does not match")

	// ErrMalformedPolicy is returned when the policy cannot be decoded
	ErrMalformedPolicy = errors.New("postpolicy: malformed policy document")

	// ErrPolicyExpired is returned when the policy expiration has passed
	ErrPolicyExpired = errors.New("postpolicy: policy expired")

	// ErrPolicyCondition is returned when a form value violates a condition
	ErrPolicyCondition = errors.New("postpolicy: policy condition failed")

	// ErrEntityTooLarge is returned when the file exceeds content-length-range
	ErrEntityTooLarge = errors.New("postpolicy: entity too large")

	// ErrEntityTooSmall is returned when the file is below content-length-range
	ErrEntityTooSmall = errors.New("postpolicy: entity too small")

	// ErrMalformedPOST is returned when the body is not a usable multipart form
	ErrMalformedPOST = errors.New("postpolicy: malformed POST request")
)

// errorResponse is the provider-style XML error body
type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

// errorCode maps an error to the provider error code and HTTP status
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, ErrMissingField):
		return "InvalidArgument", http.StatusBadRequest
	case errors.Is(err, ErrMalformedPOST):
		return "MalformedPOSTRequest", http.StatusBadRequest
	case errors.Is(err, ErrUnknownAccessID):
		return "InvalidAccessKeyId", http.StatusForbidden
	case errors.Is(err, ErrSignatureMismatch):
		return "SignatureDoesNotMatch", http.StatusForbidden
	case errors.Is(err, ErrMalformedPolicy):
		return "InvalidPolicyDocument", http.StatusBadRequest
	case errors.Is(err, ErrPolicyExpired), errors.Is(err, ErrPolicyCondition):
		return "AccessDenied", http.StatusForbidden
	case errors.Is(err, ErrEntityTooLarge):
		return "EntityTooLarge", http.StatusBadRequest
	case errors.Is(err, ErrEntityTooSmall):
		return "EntityTooSmall", http.StatusBadRequest
	case errors.Is(err, storage.ErrObjectNotFound):
		return "NoSuchKey", http.StatusNotFound
	default:
		return "InternalError", http.StatusInternalServerError
	}
}

// IsAuthError returns true if the error is a credential or signature failure
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnknownAccessID) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrPolicyExpired)
}
