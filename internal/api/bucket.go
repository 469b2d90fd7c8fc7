package api

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// ListAllMyBucketsResult is the response for ListBuckets.
type ListAllMyBucketsResult struct {
	XMLName           xml.Name `xml:"ListAllMyBucketsResult"`
	Xmlns             string   `xml:"xmlns,attr"`
	Owner             Owner    `xml:"Owner"`
	Buckets           Buckets  `xml:"Buckets"`
	Prefix            string   `xml:"Prefix,omitempty"`
	ContinuationToken string   `xml:"ContinuationToken,omitempty"`
}

// Owner represents bucket owner information.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

// Buckets is a container for bucket list.
type Buckets struct {
	Bucket []BucketInfo `xml:"Bucket"`
}

// BucketInfo represents a single bucket.
type BucketInfo struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

// CreateBucket handles PUT /{bucket} - CreateBucket.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	objectLock := r.Header.Get("x-amz-bucket-object-lock-enabled") == "true"

	if err := h.engine.CreateBucket(r.Context(), bucket, objectLock); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket} - DeleteBucket.
func (h *Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if err := h.engine.DeleteBucket(r.Context(), bucket); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HeadBucket handles HEAD /{bucket} - HeadBucket.
func (h *Handler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if _, err := h.engine.HeadBucket(r.Context(), bucket); err != nil {
		// HEAD responses carry no body.
		w.WriteHeader(mapStorageError(err).HTTPStatus)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListBuckets handles GET / - ListBuckets.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	prefix := query.Get("prefix")
	token := query.Get("continuation-token")

	maxBuckets := int32(10000)
	if s := query.Get("max-buckets"); s != "" {
		if mb, err := strconv.ParseInt(s, 10, 32); err == nil && mb > 0 {
			maxBuckets = int32(mb)
		}
	}

	page, err := h.engine.ListBuckets(r.Context(), prefix, token, maxBuckets)
	if err != nil {
		writeStorageError(w, err, "/")
		return
	}

	result := ListAllMyBucketsResult{
		Xmlns:  xmlns,
		Owner:  ownerXML(h.engine.Owner()),
		Prefix: prefix,
		Buckets: Buckets{
			Bucket: make([]BucketInfo, len(page.Buckets)),
		},
	}
	if page.IsTruncated {
		result.ContinuationToken = page.ContinuationToken
	}

	for i, b := range page.Buckets {
		result.Buckets.Bucket[i] = BucketInfo{
			Name:         b.Name,
			CreationDate: b.CreationDate.Format(time.RFC3339),
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ListBuckets response")
	}
}

func ownerXML(id string) Owner {
	return Owner{ID: id, DisplayName: "kura"}
}

// LocationConstraint is the response for GetBucketLocation.
type LocationConstraint struct {
	XMLName  xml.Name `xml:"LocationConstraint"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:",chardata"`
}

// GetBucketLocation handles GET /{bucket}?location - GetBucketLocation.
func (h *Handler) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if _, err := h.engine.HeadBucket(r.Context(), bucket); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	// Empty constraint means us-east-1, the only region served.
	result := LocationConstraint{
		Xmlns:    xmlns,
		Location: "",
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode GetBucketLocation response")
	}
}
