package api

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// PutObject handles PUT /{bucket}/{key} - PutObject.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if r.ContentLength < 0 {
		WriteError(w, ErrMissingContentLength)
		return
	}

	tags, err := parseTaggingHeader(r.Header.Get("x-amz-tagging"))
	if err != nil {
		WriteError(w, ErrInvalidTag)
		return
	}

	input := &storage.PutObjectInput{
		Bucket:             bucket,
		Key:                key,
		Body:               requestBody(r),
		ContentType:        contentType,
		CacheControl:       r.Header.Get("Cache-Control"),
		ContentEncoding:    cleanContentEncoding(r.Header.Get("Content-Encoding")),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		StorageClass:       r.Header.Get("x-amz-storage-class"),
		Metadata:           userMetadata(r),
		Tags:               tags,
		ChecksumAlgorithm:  checksumAlgorithm(r),
		IfMatch:            r.Header.Get("If-Match"),
		IfNoneMatch:        r.Header.Get("If-None-Match"),
	}

	res, err := h.engine.PutObject(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	w.Header().Set("ETag", "\""+res.ETag+"\"")
	if res.VersionID != "" {
		w.Header().Set("x-amz-version-id", res.VersionID)
	}
	setChecksumHeader(w, input.ChecksumAlgorithm, res.ChecksumValue)
	w.WriteHeader(http.StatusOK)
}

// cleanContentEncoding strips the aws-chunked token the SDK prepends to
// the client-supplied content encoding.
func cleanContentEncoding(encoding string) string {
	var kept []string
	for _, part := range strings.Split(encoding, ",") {
		part = strings.TrimSpace(part)
		if part != "" && part != "aws-chunked" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ",")
}

// parseTaggingHeader decodes the x-amz-tagging header, a URL-encoded
// query string of tag pairs.
func parseTaggingHeader(header string) ([]storage.Tag, error) {
	if header == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(header)
	if err != nil {
		return nil, err
	}
	tags := make([]storage.Tag, 0, len(values))
	for k, v := range values {
		value := ""
		if len(v) > 0 {
			value = v[0]
		}
		tags = append(tags, storage.Tag{Key: k, Value: value})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })
	return tags, nil
}

// writeObjectHeaders sets the standard metadata response headers.
func writeObjectHeaders(w http.ResponseWriter, info *storage.ObjectInfo) {
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("ETag", "\""+info.ETag+"\"")
	w.Header().Set("Last-Modified", info.LastModified.Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("x-amz-storage-class", info.StorageClass)
	if info.CacheControl != "" {
		w.Header().Set("Cache-Control", info.CacheControl)
	}
	if info.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", info.ContentEncoding)
	}
	if info.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", info.ContentDisposition)
	}
	if info.VersionID != "" {
		w.Header().Set("x-amz-version-id", info.VersionID)
	}
	setChecksumHeader(w, info.ChecksumAlgorithm, info.ChecksumValue)
	for k, v := range info.Metadata {
		w.Header().Set("x-amz-meta-"+k, v)
	}
}

// parseRangeHeader parses a "bytes=start-end" header into a range spec.
func parseRangeHeader(header string) (*storage.RangeSpec, bool) {
	spec := strings.TrimPrefix(header, "bytes=")
	if spec == header {
		return nil, false
	}
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return nil, false
	}

	switch {
	case parts[0] == "":
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return nil, false
		}
		return &storage.RangeSpec{Start: n, Suffix: true}, true
	case parts[1] == "":
		start, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || start < 0 {
			return nil, false
		}
		return &storage.RangeSpec{Start: start, End: -1}, true
	default:
		start, err1 := strconv.ParseInt(parts[0], 10, 64)
		end, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || start < 0 || start > end {
			return nil, false
		}
		return &storage.RangeSpec{Start: start, End: end}, true
	}
}

// GetObject handles GET /{bucket}/{key} - GetObject.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	query := r.URL.Query()
	versionID := query.Get("versionId")

	if partStr := query.Get("partNumber"); partStr != "" {
		h.getObjectPart(w, r, bucket, key, versionID, partStr)
		return
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		h.getObjectRange(w, r, bucket, key, versionID, rangeHeader)
		return
	}

	obj, err := h.engine.GetObject(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}
	defer obj.Body.Close()

	writeObjectHeaders(w, &obj.ObjectInfo)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object body")
	}
}

// getObjectRange handles GET with a Range header.
func (h *Handler) getObjectRange(w http.ResponseWriter, r *http.Request, bucket, key, versionID, rangeHeader string) {
	spec, ok := parseRangeHeader(rangeHeader)
	if !ok {
		// An unparseable Range header is ignored: serve the whole
		// object, as HTTP allows.
		r.Header.Del("Range")
		h.GetObject(w, r)
		return
	}

	obj, rng, err := h.engine.GetObjectRange(r.Context(), bucket, key, versionID, *spec)
	if err != nil {
		if rng != nil {
			// Unsatisfiable range: report the actual object size.
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(rng.Total, 10))
		}
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}
	defer obj.Body.Close()

	writeObjectHeaders(w, &obj.ObjectInfo)
	length := rng.End - rng.Start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Range",
		"bytes "+strconv.FormatInt(rng.Start, 10)+"-"+strconv.FormatInt(rng.End, 10)+"/"+strconv.FormatInt(rng.Total, 10))
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object body range")
	}
}

// getObjectPart handles GET with a partNumber query parameter.
func (h *Handler) getObjectPart(w http.ResponseWriter, r *http.Request, bucket, key, versionID, partStr string) {
	partNumber, err := strconv.ParseInt(partStr, 10, 32)
	if err != nil {
		WriteError(w, ErrInvalidPartNumber)
		return
	}

	obj, rng, err := h.engine.GetObjectPart(r.Context(), bucket, key, versionID, int32(partNumber))
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}
	defer obj.Body.Close()

	writeObjectHeaders(w, &obj.ObjectInfo)
	length := rng.End - rng.Start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Range",
		"bytes "+strconv.FormatInt(rng.Start, 10)+"-"+strconv.FormatInt(rng.End, 10)+"/"+strconv.FormatInt(rng.Total, 10))
	if n := obj.PartCount(); n > 0 {
		w.Header().Set("x-amz-mp-parts-count", strconv.FormatInt(int64(n), 10))
	}
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object part")
	}
}

// HeadObject handles HEAD /{bucket}/{key} - HeadObject.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	info, err := h.engine.HeadObject(r.Context(), bucket, key, versionID)
	if err != nil {
		// HEAD responses carry no body, only status and marker flag.
		if errors.Is(err, storage.ErrDeleteMarker) {
			w.Header().Set("x-amz-delete-marker", "true")
		}
		w.WriteHeader(mapStorageError(err).HTTPStatus)
		return
	}

	writeObjectHeaders(w, info)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if n := info.PartCount(); n > 0 {
		w.Header().Set("x-amz-mp-parts-count", strconv.FormatInt(int64(n), 10))
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteObject handles DELETE /{bucket}/{key} - DeleteObject.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	res, err := h.engine.DeleteObject(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	if res.DeleteMarker {
		w.Header().Set("x-amz-delete-marker", "true")
	}
	if res.VersionID != "" {
		w.Header().Set("x-amz-version-id", res.VersionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRequest is the request body for DeleteObjects.
type DeleteRequest struct {
	XMLName xml.Name           `xml:"Delete"`
	Quiet   bool               `xml:"Quiet"`
	Objects []DeleteObjectSpec `xml:"Object"`
}

// DeleteObjectSpec names one object in a batch delete.
type DeleteObjectSpec struct {
	Key       string `xml:"Key"`
	VersionId string `xml:"VersionId"`
}

// DeleteResult is the response for DeleteObjects.
type DeleteResult struct {
	XMLName xml.Name            `xml:"DeleteResult"`
	Xmlns   string              `xml:"xmlns,attr"`
	Deleted []DeletedEntry      `xml:"Deleted,omitempty"`
	Errors  []DeleteErrorResult `xml:"Error,omitempty"`
}

// DeletedEntry is one per-key success in a batch delete.
type DeletedEntry struct {
	Key                   string `xml:"Key"`
	VersionId             string `xml:"VersionId,omitempty"`
	DeleteMarker          bool   `xml:"DeleteMarker,omitempty"`
	DeleteMarkerVersionId string `xml:"DeleteMarkerVersionId,omitempty"`
}

// DeleteErrorResult is one per-key failure in a batch delete.
type DeleteErrorResult struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// DeleteObjects handles POST /{bucket}?delete - DeleteObjects.
func (h *Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	var req DeleteRequest
	if err := xml.NewDecoder(requestBody(r)).Decode(&req); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}
	if len(req.Objects) == 0 {
		WriteError(w, ErrMalformedXML)
		return
	}

	identifiers := make([]storage.ObjectIdentifier, len(req.Objects))
	for i, obj := range req.Objects {
		identifiers[i] = storage.ObjectIdentifier{Key: obj.Key, VersionID: obj.VersionId}
	}

	deleted, failed, err := h.engine.DeleteObjects(r.Context(), bucket, identifiers)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	result := DeleteResult{Xmlns: xmlns}
	if !req.Quiet {
		for _, d := range deleted {
			result.Deleted = append(result.Deleted, DeletedEntry{
				Key:                   d.Key,
				VersionId:             d.VersionID,
				DeleteMarker:          d.DeleteMarker,
				DeleteMarkerVersionId: d.DeleteMarkerVersionID,
			})
		}
	}
	for _, f := range failed {
		result.Errors = append(result.Errors, DeleteErrorResult{
			Key:     f.Key,
			Code:    f.Code,
			Message: f.Message,
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode DeleteObjects response")
	}
}

// CopyObjectResult is the response body for CopyObject.
type CopyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	Xmlns        string   `xml:"xmlns,attr"`
	ETag         string   `xml:"ETag"`
	LastModified string   `xml:"LastModified"`
}

// parseCopySource splits an x-amz-copy-source header into bucket, key
// and optional versionId.
func parseCopySource(header string) (bucket, key, versionID string, ok bool) {
	source := header
	if idx := strings.Index(source, "?versionId="); idx >= 0 {
		versionID = source[idx+len("?versionId="):]
		source = source[:idx]
	}
	decoded, err := url.QueryUnescape(source)
	if err != nil {
		return "", "", "", false
	}
	decoded = strings.TrimPrefix(decoded, "/")
	parts := strings.SplitN(decoded, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], versionID, true
}

// CopyObject handles PUT /{bucket}/{key} with x-amz-copy-source.
func (h *Handler) CopyObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	srcBucket, srcKey, srcVersion, ok := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if !ok {
		WriteError(w, ErrInvalidArgument)
		return
	}

	tags, err := parseTaggingHeader(r.Header.Get("x-amz-tagging"))
	if err != nil {
		WriteError(w, ErrInvalidTag)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &storage.CopyObjectInput{
		SrcBucket:       srcBucket,
		SrcKey:          srcKey,
		SrcVersionID:    srcVersion,
		DstBucket:       bucket,
		DstKey:          key,
		ReplaceMetadata: strings.EqualFold(r.Header.Get("x-amz-metadata-directive"), "REPLACE"),
		ReplaceTags:     strings.EqualFold(r.Header.Get("x-amz-tagging-directive"), "REPLACE"),
		ContentType:     contentType,
		Metadata:        userMetadata(r),
		Tags:            tags,
		StorageClass:    r.Header.Get("x-amz-storage-class"),
	}

	res, err := h.engine.CopyObject(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+srcBucket+"/"+srcKey)
		return
	}

	if res.SourceVersionID != "" {
		w.Header().Set("x-amz-copy-source-version-id", res.SourceVersionID)
	}
	if res.VersionID != "" {
		w.Header().Set("x-amz-version-id", res.VersionID)
	}

	result := CopyObjectResult{
		Xmlns:        xmlns,
		ETag:         "\"" + res.ETag + "\"",
		LastModified: res.LastModified.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode CopyObject response")
	}
}
