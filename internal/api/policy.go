package api

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// PutBucketPolicy handles PUT /{bucket}?policy. The body is the JSON
// policy document itself.
func (h *Handler) PutBucketPolicy(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	// Read at most one byte past the cap so oversize documents are
	// rejected without buffering them whole.
	policy, err := io.ReadAll(io.LimitReader(requestBody(r), storage.MaxPolicyBytes+1))
	if err != nil {
		WriteError(w, ErrInternalError)
		return
	}

	if err := h.engine.PutBucketPolicy(r.Context(), bucket, string(policy)); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetBucketPolicy handles GET /{bucket}?policy.
func (h *Handler) GetBucketPolicy(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	policy, err := h.engine.GetBucketPolicy(r.Context(), bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, policy); err != nil {
		log.Error().Err(err).Msg("Failed to write bucket policy response")
	}
}

// DeleteBucketPolicy handles DELETE /{bucket}?policy.
func (h *Handler) DeleteBucketPolicy(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if err := h.engine.DeleteBucketPolicy(r.Context(), bucket); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
