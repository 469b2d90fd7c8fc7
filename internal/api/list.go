package api

import (
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// ListBucketResult is the response for ListObjects (v1).
type ListBucketResult struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	Xmlns          string         `xml:"xmlns,attr"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Marker         string         `xml:"Marker"`
	NextMarker     string         `xml:"NextMarker,omitempty"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	MaxKeys        int32          `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []ObjectEntry  `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ListBucketV2Result is the response for ListObjectsV2.
type ListBucketV2Result struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Xmlns                 string         `xml:"xmlns,attr"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	MaxKeys               int32          `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	KeyCount              int32          `xml:"KeyCount"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	Contents              []ObjectEntry  `xml:"Contents"`
	CommonPrefixes        []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ObjectEntry represents a single object in a listing.
type ObjectEntry struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

// CommonPrefix represents a common prefix.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func objectEntries(objects []storage.ObjectInfo) []ObjectEntry {
	entries := make([]ObjectEntry, len(objects))
	for i, obj := range objects {
		entries[i] = ObjectEntry{
			Key:          obj.Key,
			LastModified: obj.LastModified.Format(time.RFC3339),
			ETag:         "\"" + obj.ETag + "\"",
			Size:         obj.Size,
			StorageClass: obj.StorageClass,
		}
	}
	return entries
}

func commonPrefixes(prefixes []string) []CommonPrefix {
	out := make([]CommonPrefix, len(prefixes))
	for i, p := range prefixes {
		out[i] = CommonPrefix{Prefix: p}
	}
	return out
}

// parseMaxKeys parses a max-keys style parameter, defaulting to 1000.
// An explicit zero is honored: it yields an empty page.
func parseMaxKeys(s string) int32 {
	if s == "" {
		return 1000
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 0 {
		return 1000
	}
	return int32(n)
}

// ListObjects handles GET /{bucket} - ListObjects (v1).
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	query := r.URL.Query()

	input := &storage.ListObjectsInput{
		Bucket:    bucket,
		Prefix:    query.Get("prefix"),
		Delimiter: query.Get("delimiter"),
		MaxKeys:   parseMaxKeys(query.Get("max-keys")),
		Marker:    query.Get("marker"),
	}

	output, err := h.engine.ListObjects(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	result := ListBucketResult{
		Xmlns:          xmlns,
		Name:           bucket,
		Prefix:         input.Prefix,
		Marker:         input.Marker,
		Delimiter:      input.Delimiter,
		MaxKeys:        input.MaxKeys,
		IsTruncated:    output.IsTruncated,
		Contents:       objectEntries(output.Objects),
		CommonPrefixes: commonPrefixes(output.CommonPrefixes),
	}
	// NextMarker is only reported with a delimiter; otherwise the
	// caller resumes from the last returned key.
	if output.IsTruncated && input.Delimiter != "" {
		result.NextMarker = output.NextMarker
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ListObjects response")
	}
}

// ListObjectsV2 handles GET /{bucket}?list-type=2 - ListObjectsV2.
func (h *Handler) ListObjectsV2(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	query := r.URL.Query()

	continuationToken := query.Get("continuation-token")
	startAfter := query.Get("start-after")

	// The continuation token is the opaque form of the last sort key;
	// it wins over start-after.
	marker := startAfter
	if continuationToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(continuationToken)
		if err != nil {
			WriteError(w, ErrInvalidArgument)
			return
		}
		marker = string(decoded)
	}

	input := &storage.ListObjectsInput{
		Bucket:    bucket,
		Prefix:    query.Get("prefix"),
		Delimiter: query.Get("delimiter"),
		MaxKeys:   parseMaxKeys(query.Get("max-keys")),
		Marker:    marker,
	}

	output, err := h.engine.ListObjects(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	result := ListBucketV2Result{
		Xmlns:             xmlns,
		Name:              bucket,
		Prefix:            input.Prefix,
		Delimiter:         input.Delimiter,
		MaxKeys:           input.MaxKeys,
		IsTruncated:       output.IsTruncated,
		KeyCount:          output.KeyCount,
		ContinuationToken: continuationToken,
		StartAfter:        startAfter,
		Contents:          objectEntries(output.Objects),
		CommonPrefixes:    commonPrefixes(output.CommonPrefixes),
	}
	if output.IsTruncated {
		result.NextContinuationToken = base64.StdEncoding.EncodeToString([]byte(output.NextMarker))
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ListObjectsV2 response")
	}
}

// ListVersionsResult is the response for ListObjectVersions.
type ListVersionsResult struct {
	XMLName             xml.Name            `xml:"ListVersionsResult"`
	Xmlns               string              `xml:"xmlns,attr"`
	Name                string              `xml:"Name"`
	Prefix              string              `xml:"Prefix"`
	KeyMarker           string              `xml:"KeyMarker"`
	VersionIdMarker     string              `xml:"VersionIdMarker"`
	NextKeyMarker       string              `xml:"NextKeyMarker,omitempty"`
	NextVersionIdMarker string              `xml:"NextVersionIdMarker,omitempty"`
	Delimiter           string              `xml:"Delimiter,omitempty"`
	MaxKeys             int32               `xml:"MaxKeys"`
	IsTruncated         bool                `xml:"IsTruncated"`
	Versions            []VersionEntry      `xml:"Version"`
	DeleteMarkers       []DeleteMarkerEntry `xml:"DeleteMarker"`
	CommonPrefixes      []CommonPrefix      `xml:"CommonPrefixes,omitempty"`
}

// VersionEntry is one object version in a versions listing.
type VersionEntry struct {
	Key          string `xml:"Key"`
	VersionId    string `xml:"VersionId"`
	IsLatest     bool   `xml:"IsLatest"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
	Owner        Owner  `xml:"Owner"`
}

// DeleteMarkerEntry is one delete marker in a versions listing.
type DeleteMarkerEntry struct {
	Key          string `xml:"Key"`
	VersionId    string `xml:"VersionId"`
	IsLatest     bool   `xml:"IsLatest"`
	LastModified string `xml:"LastModified"`
	Owner        Owner  `xml:"Owner"`
}

// ListObjectVersions handles GET /{bucket}?versions.
func (h *Handler) ListObjectVersions(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	query := r.URL.Query()

	input := &storage.ListVersionsInput{
		Bucket:          bucket,
		Prefix:          query.Get("prefix"),
		Delimiter:       query.Get("delimiter"),
		MaxKeys:         parseMaxKeys(query.Get("max-keys")),
		KeyMarker:       query.Get("key-marker"),
		VersionIDMarker: query.Get("version-id-marker"),
	}

	output, err := h.engine.ListObjectVersions(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	owner := ownerXML(h.engine.Owner())
	result := ListVersionsResult{
		Xmlns:           xmlns,
		Name:            bucket,
		Prefix:          input.Prefix,
		KeyMarker:       input.KeyMarker,
		VersionIdMarker: input.VersionIDMarker,
		Delimiter:       input.Delimiter,
		MaxKeys:         input.MaxKeys,
		IsTruncated:     output.IsTruncated,
		CommonPrefixes:  commonPrefixes(output.CommonPrefixes),
	}
	if output.IsTruncated {
		result.NextKeyMarker = output.NextKeyMarker
		result.NextVersionIdMarker = output.NextVersionIDMarker
	}

	for _, v := range output.Versions {
		result.Versions = append(result.Versions, VersionEntry{
			Key:          v.Key,
			VersionId:    v.VersionID,
			IsLatest:     v.IsLatest,
			LastModified: v.LastModified.Format(time.RFC3339),
			ETag:         "\"" + v.ETag + "\"",
			Size:         v.Size,
			StorageClass: v.StorageClass,
			Owner:        owner,
		})
	}
	for _, m := range output.DeleteMarkers {
		result.DeleteMarkers = append(result.DeleteMarkers, DeleteMarkerEntry{
			Key:          m.Key,
			VersionId:    m.VersionID,
			IsLatest:     m.IsLatest,
			LastModified: m.LastModified.Format(time.RFC3339),
			Owner:        owner,
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ListObjectVersions response")
	}
}
