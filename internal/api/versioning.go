package api

import (
	"encoding/xml"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// VersioningConfiguration is the request and response body for bucket
// versioning.
type VersioningConfiguration struct {
	XMLName xml.Name `xml:"VersioningConfiguration"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Status  string   `xml:"Status,omitempty"`
}

// PutBucketVersioning handles PUT /{bucket}?versioning.
func (h *Handler) PutBucketVersioning(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	var config VersioningConfiguration
	if err := xml.NewDecoder(requestBody(r)).Decode(&config); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}

	status := storage.VersioningStatus(config.Status)
	if err := h.engine.SetBucketVersioning(r.Context(), bucket, status); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetBucketVersioning handles GET /{bucket}?versioning.
func (h *Handler) GetBucketVersioning(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	status, err := h.engine.GetBucketVersioning(r.Context(), bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	// A bucket that never saw versioning reports an empty config.
	result := VersioningConfiguration{
		Xmlns:  xmlns,
		Status: string(status),
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode GetBucketVersioning response")
	}
}
