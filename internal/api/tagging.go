package api

import (
	"encoding/xml"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// Tagging is the request and response body for tag-set operations.
type Tagging struct {
	XMLName xml.Name `xml:"Tagging"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	TagSet  TagSet   `xml:"TagSet"`
}

// TagSet is a container for tags.
type TagSet struct {
	Tags []TagEntry `xml:"Tag"`
}

// TagEntry is a single tag.
type TagEntry struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

func decodeTagging(r *http.Request) ([]storage.Tag, *S3Error) {
	var body Tagging
	if err := xml.NewDecoder(requestBody(r)).Decode(&body); err != nil {
		return nil, ErrMalformedXML
	}
	tags := make([]storage.Tag, len(body.TagSet.Tags))
	for i, t := range body.TagSet.Tags {
		tags[i] = storage.Tag{Key: t.Key, Value: t.Value}
	}
	return tags, nil
}

func encodeTagging(w http.ResponseWriter, tags []storage.Tag) {
	result := Tagging{Xmlns: xmlns}
	for _, t := range tags {
		result.TagSet.Tags = append(result.TagSet.Tags, TagEntry{Key: t.Key, Value: t.Value})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode tagging response")
	}
}

// PutBucketTagging handles PUT /{bucket}?tagging.
func (h *Handler) PutBucketTagging(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	tags, s3err := decodeTagging(r)
	if s3err != nil {
		WriteError(w, s3err)
		return
	}

	if err := h.engine.PutBucketTagging(r.Context(), bucket, tags); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetBucketTagging handles GET /{bucket}?tagging.
func (h *Handler) GetBucketTagging(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	tags, err := h.engine.GetBucketTagging(r.Context(), bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	encodeTagging(w, tags)
}

// DeleteBucketTagging handles DELETE /{bucket}?tagging.
func (h *Handler) DeleteBucketTagging(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if err := h.engine.DeleteBucketTagging(r.Context(), bucket); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PutObjectTagging handles PUT /{bucket}/{key}?tagging.
func (h *Handler) PutObjectTagging(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	tags, s3err := decodeTagging(r)
	if s3err != nil {
		WriteError(w, s3err)
		return
	}

	applied, err := h.engine.PutObjectTagging(r.Context(), bucket, key, versionID, tags)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	if applied != "" {
		w.Header().Set("x-amz-version-id", applied)
	}
	w.WriteHeader(http.StatusOK)
}

// GetObjectTagging handles GET /{bucket}/{key}?tagging.
func (h *Handler) GetObjectTagging(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	tags, applied, err := h.engine.GetObjectTagging(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	if applied != "" {
		w.Header().Set("x-amz-version-id", applied)
	}
	encodeTagging(w, tags)
}

// DeleteObjectTagging handles DELETE /{bucket}/{key}?tagging.
func (h *Handler) DeleteObjectTagging(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	applied, err := h.engine.DeleteObjectTagging(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	if applied != "" {
		w.Header().Set("x-amz-version-id", applied)
	}
	w.WriteHeader(http.StatusNoContent)
}
