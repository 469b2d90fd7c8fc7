package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/harukado/kura/internal/storage"
)

// Handler holds the S3 API handlers over one storage engine.
type Handler struct {
	engine *storage.Engine
}

// NewHandler creates a new Handler.
func NewHandler(engine *storage.Engine) *Handler {
	return &Handler{engine: engine}
}

// Context keys
type contextKey string

const (
	bucketKey contextKey = "bucket"
	keyKey    contextKey = "key"
)

// WithBucket adds bucket name to request context.
func WithBucket(r *http.Request, bucket string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), bucketKey, bucket))
}

// WithKey adds object key to request context.
func WithKey(r *http.Request, key string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), keyKey, key))
}

// GetBucket returns bucket name from request context.
func GetBucket(r *http.Request) string {
	if bucket, ok := r.Context().Value(bucketKey).(string); ok {
		return bucket
	}
	return ""
}

// GetKey returns object key from request context.
func GetKey(r *http.Request) string {
	if key, ok := r.Context().Value(keyKey).(string); ok {
		return key
	}
	return ""
}

// userMetadata extracts x-amz-meta-* headers as a metadata map with
// lowercased names.
func userMetadata(r *http.Request) map[string]string {
	var metadata map[string]string
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			if metadata == nil {
				metadata = make(map[string]string)
			}
			metadata[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	return metadata
}

// requestBody returns the request body, decoding aws-chunked transfer
// framing when the client signed the payload in streaming mode.
func requestBody(r *http.Request) io.Reader {
	if IsAWSChunked(r.Header.Get("Content-Encoding"), r.Header.Get("x-amz-content-sha256")) {
		return NewChunkedReader(r.Body)
	}
	return r.Body
}

// checksumAlgorithm picks the requested checksum algorithm from the
// request headers, if any.
func checksumAlgorithm(r *http.Request) storage.ChecksumAlgorithm {
	switch strings.ToUpper(r.Header.Get("x-amz-checksum-algorithm")) {
	case "CRC32":
		return storage.ChecksumCRC32
	case "CRC32C":
		return storage.ChecksumCRC32C
	case "SHA1":
		return storage.ChecksumSHA1
	case "SHA256":
		return storage.ChecksumSHA256
	}
	switch {
	case r.Header.Get("x-amz-checksum-crc32") != "":
		return storage.ChecksumCRC32
	case r.Header.Get("x-amz-checksum-crc32c") != "":
		return storage.ChecksumCRC32C
	case r.Header.Get("x-amz-checksum-sha1") != "":
		return storage.ChecksumSHA1
	case r.Header.Get("x-amz-checksum-sha256") != "":
		return storage.ChecksumSHA256
	}
	return storage.ChecksumNone
}

// setChecksumHeader writes the response checksum header for the
// algorithm the object carries.
func setChecksumHeader(w http.ResponseWriter, algorithm storage.ChecksumAlgorithm, value string) {
	if algorithm == storage.ChecksumNone || value == "" {
		return
	}
	w.Header().Set("x-amz-checksum-"+strings.ToLower(string(algorithm)), value)
}
