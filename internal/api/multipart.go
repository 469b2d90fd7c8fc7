package api

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// InitiateMultipartUploadResult is the response for CreateMultipartUpload.
type InitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadId string   `xml:"UploadId"`
}

// CompleteMultipartUploadResult is the response for CompleteMultipartUpload.
type CompleteMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// CompleteMultipartUploadRequest is the request body for CompleteMultipartUpload.
type CompleteMultipartUploadRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []CompletePart `xml:"Part"`
}

// CompletePart represents a part in the CompleteMultipartUpload request.
type CompletePart struct {
	PartNumber int32  `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// ListPartsResult is the response for ListParts.
type ListPartsResult struct {
	XMLName              xml.Name   `xml:"ListPartsResult"`
	Xmlns                string     `xml:"xmlns,attr"`
	Bucket               string     `xml:"Bucket"`
	Key                  string     `xml:"Key"`
	UploadId             string     `xml:"UploadId"`
	PartNumberMarker     int32      `xml:"PartNumberMarker"`
	NextPartNumberMarker int32      `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int32      `xml:"MaxParts"`
	IsTruncated          bool       `xml:"IsTruncated"`
	Parts                []PartInfo `xml:"Part"`
}

// PartInfo represents a part in the ListParts response.
type PartInfo struct {
	PartNumber   int32  `xml:"PartNumber"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

// CopyPartResult is the response for UploadPartCopy.
type CopyPartResult struct {
	XMLName      xml.Name `xml:"CopyPartResult"`
	Xmlns        string   `xml:"xmlns,attr"`
	LastModified string   `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
}

// ListMultipartUploadsResult is the response for ListMultipartUploads.
type ListMultipartUploadsResult struct {
	XMLName            xml.Name     `xml:"ListMultipartUploadsResult"`
	Xmlns              string       `xml:"xmlns,attr"`
	Bucket             string       `xml:"Bucket"`
	KeyMarker          string       `xml:"KeyMarker"`
	UploadIdMarker     string       `xml:"UploadIdMarker"`
	NextKeyMarker      string       `xml:"NextKeyMarker,omitempty"`
	NextUploadIdMarker string       `xml:"NextUploadIdMarker,omitempty"`
	Prefix             string       `xml:"Prefix,omitempty"`
	MaxUploads         int32        `xml:"MaxUploads"`
	IsTruncated        bool         `xml:"IsTruncated"`
	Uploads            []UploadInfo `xml:"Upload"`
}

// UploadInfo represents an upload in the ListMultipartUploads response.
type UploadInfo struct {
	Key       string `xml:"Key"`
	UploadId  string `xml:"UploadId"`
	Initiated string `xml:"Initiated"`
}

// CreateMultipartUpload handles POST /{bucket}/{key}?uploads.
func (h *Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	tags, err := parseTaggingHeader(r.Header.Get("x-amz-tagging"))
	if err != nil {
		WriteError(w, ErrInvalidTag)
		return
	}

	input := &storage.CreateMultipartUploadInput{
		Bucket:             bucket,
		Key:                key,
		ContentType:        contentType,
		CacheControl:       r.Header.Get("Cache-Control"),
		ContentEncoding:    r.Header.Get("Content-Encoding"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		StorageClass:       r.Header.Get("x-amz-storage-class"),
		Metadata:           userMetadata(r),
		Tags:               tags,
		ChecksumAlgorithm:  checksumAlgorithm(r),
	}

	upload, err := h.engine.CreateMultipartUpload(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	result := InitiateMultipartUploadResult{
		Xmlns:    xmlns,
		Bucket:   bucket,
		Key:      key,
		UploadId: upload.UploadID,
	}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode CreateMultipartUpload response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// UploadPart handles PUT /{bucket}/{key}?partNumber={n}&uploadId={id}.
func (h *Handler) UploadPart(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	query := r.URL.Query()
	uploadID := query.Get("uploadId")

	partNumber, err := strconv.ParseInt(query.Get("partNumber"), 10, 32)
	if err != nil {
		WriteError(w, ErrInvalidPart)
		return
	}

	if r.ContentLength < 0 {
		WriteError(w, ErrMissingContentLength)
		return
	}

	part, err := h.engine.UploadPart(r.Context(), bucket, key, uploadID, int32(partNumber), requestBody(r))
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	w.Header().Set("ETag", "\""+part.ETag+"\"")
	w.WriteHeader(http.StatusOK)
}

// UploadPartCopy handles PUT /{bucket}/{key}?partNumber={n}&uploadId={id}
// with x-amz-copy-source.
func (h *Handler) UploadPartCopy(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	query := r.URL.Query()
	uploadID := query.Get("uploadId")

	partNumber, err := strconv.ParseInt(query.Get("partNumber"), 10, 32)
	if err != nil {
		WriteError(w, ErrInvalidPart)
		return
	}

	srcBucket, srcKey, srcVersion, ok := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if !ok {
		WriteError(w, ErrInvalidRequest)
		return
	}

	var rangeSpec *storage.RangeSpec
	if header := r.Header.Get("x-amz-copy-source-range"); header != "" {
		spec, ok := parseRangeHeader(header)
		if !ok || spec.Suffix || spec.End < 0 {
			// Copy-source ranges must be explicit bytes=start-end.
			WriteError(w, ErrInvalidRequest)
			return
		}
		rangeSpec = spec
	}

	input := &storage.UploadPartCopyInput{
		Bucket:       bucket,
		Key:          key,
		UploadID:     uploadID,
		PartNumber:   int32(partNumber),
		SrcBucket:    srcBucket,
		SrcKey:       srcKey,
		SrcVersionID: srcVersion,
		Range:        rangeSpec,
	}

	part, err := h.engine.UploadPartCopy(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+srcBucket+"/"+srcKey)
		return
	}

	result := CopyPartResult{
		Xmlns:        xmlns,
		LastModified: part.LastModified.Format(time.RFC3339),
		ETag:         "\"" + part.ETag + "\"",
	}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode UploadPartCopy response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// CompleteMultipartUpload handles POST /{bucket}/{key}?uploadId={id}.
func (h *Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	query := r.URL.Query()
	uploadID := query.Get("uploadId")

	var req CompleteMultipartUploadRequest
	if err := xml.NewDecoder(requestBody(r)).Decode(&req); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}
	if len(req.Parts) == 0 {
		WriteError(w, ErrMalformedXML)
		return
	}

	parts := make([]storage.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = storage.CompletedPart{
			PartNumber: p.PartNumber,
			ETag:       strings.Trim(p.ETag, "\""),
		}
	}

	obj, err := h.engine.CompleteMultipartUpload(r.Context(), bucket, key, uploadID, parts)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	if obj.VersionID != "" {
		w.Header().Set("x-amz-version-id", obj.VersionID)
	}

	result := CompleteMultipartUploadResult{
		Xmlns:    xmlns,
		Location: "/" + bucket + "/" + key,
		Bucket:   bucket,
		Key:      key,
		ETag:     "\"" + obj.ETag + "\"",
	}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode CompleteMultipartUpload response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// AbortMultipartUpload handles DELETE /{bucket}/{key}?uploadId={id}.
func (h *Handler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	uploadID := r.URL.Query().Get("uploadId")

	if err := h.engine.AbortMultipartUpload(r.Context(), bucket, key, uploadID); err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListParts handles GET /{bucket}/{key}?uploadId={id}.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	query := r.URL.Query()
	uploadID := query.Get("uploadId")

	maxParts := int32(1000)
	if s := query.Get("max-parts"); s != "" {
		if mp, err := strconv.ParseInt(s, 10, 32); err == nil && mp > 0 {
			maxParts = int32(mp)
		}
	}

	var partNumberMarker int32
	if s := query.Get("part-number-marker"); s != "" {
		if pnm, err := strconv.ParseInt(s, 10, 32); err == nil {
			partNumberMarker = int32(pnm)
		}
	}

	input := &storage.ListPartsInput{
		Bucket:           bucket,
		Key:              key,
		UploadID:         uploadID,
		MaxParts:         maxParts,
		PartNumberMarker: partNumberMarker,
	}

	output, err := h.engine.ListParts(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	result := ListPartsResult{
		Xmlns:            xmlns,
		Bucket:           bucket,
		Key:              key,
		UploadId:         uploadID,
		PartNumberMarker: partNumberMarker,
		MaxParts:         maxParts,
		IsTruncated:      output.IsTruncated,
		Parts:            make([]PartInfo, len(output.Parts)),
	}
	if output.IsTruncated {
		result.NextPartNumberMarker = output.NextPartNumberMarker
	}

	for i, part := range output.Parts {
		result.Parts[i] = PartInfo{
			PartNumber:   part.PartNumber,
			LastModified: part.LastModified.Format(time.RFC3339),
			ETag:         "\"" + part.ETag + "\"",
			Size:         part.Size,
		}
	}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ListParts response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ListMultipartUploads handles GET /{bucket}?uploads.
func (h *Handler) ListMultipartUploads(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	query := r.URL.Query()

	maxUploads := int32(1000)
	if s := query.Get("max-uploads"); s != "" {
		if mu, err := strconv.ParseInt(s, 10, 32); err == nil && mu > 0 {
			maxUploads = int32(mu)
		}
	}

	input := &storage.ListUploadsInput{
		Bucket:         bucket,
		Prefix:         query.Get("prefix"),
		MaxUploads:     maxUploads,
		KeyMarker:      query.Get("key-marker"),
		UploadIDMarker: query.Get("upload-id-marker"),
	}

	output, err := h.engine.ListMultipartUploads(r.Context(), input)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	result := ListMultipartUploadsResult{
		Xmlns:          xmlns,
		Bucket:         bucket,
		KeyMarker:      input.KeyMarker,
		UploadIdMarker: input.UploadIDMarker,
		Prefix:         input.Prefix,
		MaxUploads:     maxUploads,
		IsTruncated:    output.IsTruncated,
		Uploads:        make([]UploadInfo, len(output.Uploads)),
	}
	if output.IsTruncated {
		result.NextKeyMarker = output.NextKeyMarker
		result.NextUploadIdMarker = output.NextUploadIDMarker
	}

	for i, upload := range output.Uploads {
		result.Uploads[i] = UploadInfo{
			Key:       upload.Key,
			UploadId:  upload.UploadID,
			Initiated: upload.Initiated.Format(time.RFC3339),
		}
	}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode ListMultipartUploads response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
