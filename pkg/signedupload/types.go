package signedupload

import (
	"io"
	"sync/atomic"
)

// Form field names of the signed POST protocol, in submission order.
const (
	FieldAccessID  = "OSSAccessKeyId"
	FieldPolicy    = "policy"
	FieldSignature = "Signature"
	FieldKey       = "key"
	FieldFile      = "file"
)

// DefaultKeyPrefix is prepended to file names when no prefix is configured.
const DefaultKeyPrefix = "test/"

// SignedFields are the request-scoped form values for one upload attempt.
// They embed the object key and are never reused across files.
type SignedFields struct {
	AccessID     string `json:"access_id"`
	PolicyBase64 string `json:"policy"`
	Signature    string `json:"signature"`
	ObjectKey    string `json:"key"`
}

// File is the blob submitted in the file field.
type File struct {
	Name        string
	Size        int64 // -1 when unknown
	ContentType string
	Body        io.Reader
}

// UploadOutcome is the result of a completed attempt.
type UploadOutcome struct {
	ObjectURL  string    `json:"object_url"`
	ObjectKey  string    `json:"object_key"`
	Media      MediaKind `json:"media"`
	StatusCode int       `json:"status_code"`
}

// State of a single upload attempt.
type State int32

const (
	StateIdle State = iota
	StateInFlight
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) load() State {
	return State(a.v.Load())
}

// transition moves from one state to another; it returns false when the
// current state is not from.
func (a *atomicState) transition(from, to State) bool {
	return a.v.CompareAndSwap(int32(from), int32(to))
}
