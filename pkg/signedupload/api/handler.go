// Package api serves signed form fields to browser clients and exposes the
// upload ledger.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
)

const defaultListLimit = 100

// BuilderSource returns a builder with a current policy
type BuilderSource func() (*signedupload.Builder, error)

// Handler handles the signature and object endpoints
type Handler struct {
	builders BuilderSource
	ledger   ledger.Ledger
}

func NewHandler(builders BuilderSource, l ledger.Ledger) *Handler {
	return &Handler{
		builders: builders,
		ledger:   l,
	}
}

// Routes returns the router for the API endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signatures", h.CreateSignature)
	r.Get("/objects", h.ListObjects)
	r.Get("/objects/*", h.GetObject)
	return r
}

// CreateSignatureRequest asks for form fields for one file
type CreateSignatureRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
}

// FormField is one multipart field, in the order it must be sent
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SignatureResponse carries everything a client needs to POST the file
type SignatureResponse struct {
	signedupload.SignedFields
	Host      string      `json:"host"`
	ObjectURL string      `json:"object_url"`
	Media     string      `json:"media"`
	Fields    []FormField `json:"fields"`
}

// ObjectListResponse is returned by ListObjects
type ObjectListResponse struct {
	Objects []*ledger.Record `json:"objects"`
	Count   int              `json:"count"`
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// CreateSignature signs fresh form fields for a file name
func (h *Handler) CreateSignature(w http.ResponseWriter, r *http.Request) {
	var req CreateSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" {
		writeError(w, r, http.StatusBadRequest, "file_name is required")
		return
	}

	b, err := h.builders()
	if err != nil {
		slog.Error("Failed to build signer", "error", err)
		writeError(w, r, http.StatusInternalServerError, "signing is not configured")
		return
	}

	if !b.Accepts(req.FileName, req.ContentType) {
		writeError(w, r, http.StatusUnsupportedMediaType, "file type is not accepted")
		return
	}

	fields, err := b.Fields(req.FileName)
	if err != nil {
		if errors.Is(err, signedupload.ErrUnsafeObjectKey) || errors.Is(err, signedupload.ErrInvalidFile) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to sign fields", "file_name", req.FileName, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to sign fields")
		return
	}

	policy := b.Policy()
	resp := SignatureResponse{
		SignedFields: fields,
		Host:         policy.Host(),
		ObjectURL:    policy.ObjectURL(fields.ObjectKey),
		Media:        string(signedupload.ClassifyMedia(req.FileName, req.ContentType)),
		Fields: []FormField{
			{Name: signedupload.FieldAccessID, Value: fields.AccessID},
			{Name: signedupload.FieldPolicy, Value: fields.PolicyBase64},
			{Name: signedupload.FieldSignature, Value: fields.Signature},
			{Name: signedupload.FieldKey, Value: fields.ObjectKey},
		},
	}

	slog.Info("Signed upload fields", "key", fields.ObjectKey, "access_id", fields.AccessID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetObject returns the ledger record for a key
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "object key is required")
		return
	}

	rec, err := h.ledger.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordNotFound) {
			writeError(w, r, http.StatusNotFound, "object not found")
			return
		}
		slog.Error("Failed to get record", "key", key, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get object")
		return
	}
	render.JSON(w, r, rec)
}

// ListObjects lists ledger records, newest first.
// Query parameters: prefix, limit (default 100)
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.ledger.List(r.Context(), prefix, limit)
	if err != nil {
		slog.Error("Failed to list records", "prefix", prefix, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list objects")
		return
	}
	if records == nil {
		records = []*ledger.Record{}
	}
	render.JSON(w, r, ObjectListResponse{Objects: records, Count: len(records)})
}
