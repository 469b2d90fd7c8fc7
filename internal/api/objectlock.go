package api

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// ObjectLockConfiguration is the request and response body for bucket
// object lock configuration.
type ObjectLockConfiguration struct {
	XMLName           xml.Name       `xml:"ObjectLockConfiguration"`
	Xmlns             string         `xml:"xmlns,attr,omitempty"`
	ObjectLockEnabled string         `xml:"ObjectLockEnabled,omitempty"`
	Rule              *ObjectLockRule `xml:"Rule,omitempty"`
}

// ObjectLockRule holds the default retention rule.
type ObjectLockRule struct {
	DefaultRetention *DefaultRetention `xml:"DefaultRetention,omitempty"`
}

// DefaultRetention is the bucket-wide default retention.
type DefaultRetention struct {
	Mode  string `xml:"Mode,omitempty"`
	Days  int32  `xml:"Days,omitempty"`
	Years int32  `xml:"Years,omitempty"`
}

// Retention is the request and response body for object retention.
type Retention struct {
	XMLName         xml.Name `xml:"Retention"`
	Xmlns           string   `xml:"xmlns,attr,omitempty"`
	Mode            string   `xml:"Mode"`
	RetainUntilDate string   `xml:"RetainUntilDate"`
}

// LegalHold is the request and response body for object legal hold.
type LegalHold struct {
	XMLName xml.Name `xml:"LegalHold"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Status  string   `xml:"Status"`
}

// PutObjectLockConfiguration handles PUT /{bucket}?object-lock.
func (h *Handler) PutObjectLockConfiguration(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	var config ObjectLockConfiguration
	if err := xml.NewDecoder(requestBody(r)).Decode(&config); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}
	if config.ObjectLockEnabled != "Enabled" {
		WriteError(w, ErrMalformedXML)
		return
	}

	// The configuration round-trips as the canonical XML document.
	doc, err := xml.Marshal(config)
	if err != nil {
		WriteError(w, ErrInternalError)
		return
	}

	if err := h.engine.PutObjectLockConfiguration(r.Context(), bucket, string(doc)); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetObjectLockConfiguration handles GET /{bucket}?object-lock.
func (h *Handler) GetObjectLockConfiguration(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	stored, err := h.engine.GetObjectLockConfiguration(r.Context(), bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	config := ObjectLockConfiguration{ObjectLockEnabled: "Enabled"}
	if stored != "" && stored[0] == '<' {
		if err := xml.Unmarshal([]byte(stored), &config); err != nil {
			log.Error().Err(err).Str("bucket", bucket).Msg("Corrupt object lock configuration")
			WriteError(w, ErrInternalError)
			return
		}
	}
	config.Xmlns = xmlns

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(config); err != nil {
		log.Error().Err(err).Msg("Failed to encode object lock configuration response")
	}
}

// PutObjectRetention handles PUT /{bucket}/{key}?retention.
func (h *Handler) PutObjectRetention(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	var body Retention
	if err := xml.NewDecoder(requestBody(r)).Decode(&body); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}

	until, err := time.Parse(time.RFC3339, body.RetainUntilDate)
	if err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}

	ret := &storage.ObjectRetention{Mode: body.Mode, RetainUntilDate: until.UTC()}
	if err := h.engine.PutObjectRetention(r.Context(), bucket, key, versionID, ret); err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetObjectRetention handles GET /{bucket}/{key}?retention.
func (h *Handler) GetObjectRetention(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	ret, err := h.engine.GetObjectRetention(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	result := Retention{
		Xmlns:           xmlns,
		Mode:            ret.Mode,
		RetainUntilDate: ret.RetainUntilDate.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode retention response")
	}
}

// PutObjectLegalHold handles PUT /{bucket}/{key}?legal-hold.
func (h *Handler) PutObjectLegalHold(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	var body LegalHold
	if err := xml.NewDecoder(requestBody(r)).Decode(&body); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}

	if err := h.engine.PutObjectLegalHold(r.Context(), bucket, key, versionID, body.Status); err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetObjectLegalHold handles GET /{bucket}/{key}?legal-hold.
func (h *Handler) GetObjectLegalHold(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	status, err := h.engine.GetObjectLegalHold(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	result := LegalHold{Xmlns: xmlns, Status: status}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode legal hold response")
	}
}
