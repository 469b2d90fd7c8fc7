package api

import (
	"encoding/xml"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// OwnershipControls is the request and response body for bucket
// ownership controls.
type OwnershipControls struct {
	XMLName xml.Name        `xml:"OwnershipControls"`
	Xmlns   string          `xml:"xmlns,attr,omitempty"`
	Rules   []OwnershipRule `xml:"Rule"`
}

// OwnershipRule is a single ownership rule.
type OwnershipRule struct {
	ObjectOwnership string `xml:"ObjectOwnership"`
}

// PutBucketOwnershipControls handles PUT /{bucket}?ownershipControls.
func (h *Handler) PutBucketOwnershipControls(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	var controls OwnershipControls
	if err := xml.NewDecoder(requestBody(r)).Decode(&controls); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}
	if len(controls.Rules) != 1 {
		WriteError(w, ErrMalformedXML)
		return
	}

	rule := storage.OwnershipRule(controls.Rules[0].ObjectOwnership)
	if err := h.engine.PutOwnershipControls(r.Context(), bucket, rule); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetBucketOwnershipControls handles GET /{bucket}?ownershipControls.
func (h *Handler) GetBucketOwnershipControls(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	rule, err := h.engine.GetOwnershipControls(r.Context(), bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	result := OwnershipControls{
		Xmlns: xmlns,
		Rules: []OwnershipRule{{ObjectOwnership: string(rule)}},
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ownership controls response")
	}
}

// DeleteBucketOwnershipControls handles DELETE /{bucket}?ownershipControls.
func (h *Handler) DeleteBucketOwnershipControls(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if err := h.engine.DeleteOwnershipControls(r.Context(), bucket); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
