// Package auth verifies AWS Signature V4 on incoming requests.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/harukado/kura/internal/api"
)

const (
	signAlgorithm = "AWS4-HMAC-SHA256"
	maxClockSkew  = 15 * time.Minute
	amzDateFormat = "20060102T150405Z"
)

// Middleware handles AWS Signature V4 authentication.
type Middleware struct {
	accessKey string
	secretKey string
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(accessKey, secretKey string) *Middleware {
	return &Middleware{
		accessKey: accessKey,
		secretKey: secretKey,
	}
}

// Wrap wraps an HTTP handler with authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			// Presigned URLs carry the credential in the query string.
			if r.URL.Query().Get("X-Amz-Algorithm") != "" {
				if err := m.verifyPresigned(r); err != nil {
					api.WriteError(w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			api.WriteError(w, api.ErrAccessDenied)
			return
		}

		if err := m.verifyHeader(r, auth); err != nil {
			api.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// credentialScope is a parsed Credential component:
// ACCESS_KEY/DATE/REGION/SERVICE/aws4_request.
type credentialScope struct {
	accessKey string
	date      string
	region    string
	service   string
}

func parseCredential(credential string) (credentialScope, bool) {
	parts := strings.Split(credential, "/")
	if len(parts) != 5 || parts[4] != "aws4_request" {
		return credentialScope{}, false
	}
	return credentialScope{
		accessKey: parts[0],
		date:      parts[1],
		region:    parts[2],
		service:   parts[3],
	}, true
}

// verifyHeader verifies an Authorization-header signature.
func (m *Middleware) verifyHeader(r *http.Request, auth string) *api.S3Error {
	if !strings.HasPrefix(auth, signAlgorithm+" ") {
		return api.ErrAccessDenied
	}

	params := make(map[string]string)
	for _, part := range strings.Split(strings.TrimPrefix(auth, signAlgorithm+" "), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			params[kv[0]] = kv[1]
		}
	}

	signedHeaders := params["SignedHeaders"]
	provided := params["Signature"]
	scope, ok := parseCredential(params["Credential"])
	if !ok || signedHeaders == "" || provided == "" {
		return api.ErrAccessDenied
	}
	if scope.accessKey != m.accessKey {
		return api.ErrInvalidAccessKeyId
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = r.Header.Get("Date")
	}
	reqTime, err := parseRequestTime(amzDate)
	if err != nil {
		return api.ErrAccessDenied
	}
	if time.Since(reqTime).Abs() > maxClockSkew {
		return api.ErrRequestTimeTooSkewed
	}

	payloadHash := r.Header.Get("X-Amz-Content-SHA256")
	if payloadHash == "" {
		payloadHash = "UNSIGNED-PAYLOAD"
	}

	expected := m.sign(r, scope, signedHeaders, amzDate, payloadHash)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return api.ErrSignatureDoesNotMatch
	}
	return nil
}

// verifyPresigned verifies a presigned-URL signature.
func (m *Middleware) verifyPresigned(r *http.Request) *api.S3Error {
	query := r.URL.Query()

	if query.Get("X-Amz-Algorithm") != signAlgorithm {
		return api.ErrAccessDenied
	}

	signedHeaders := query.Get("X-Amz-SignedHeaders")
	provided := query.Get("X-Amz-Signature")
	amzDate := query.Get("X-Amz-Date")
	scope, ok := parseCredential(query.Get("X-Amz-Credential"))
	if !ok || signedHeaders == "" || provided == "" || amzDate == "" {
		return api.ErrAccessDenied
	}
	if scope.accessKey != m.accessKey {
		return api.ErrInvalidAccessKeyId
	}

	reqTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return api.ErrAccessDenied
	}
	if expires := query.Get("X-Amz-Expires"); expires != "" {
		ttl, err := time.ParseDuration(expires + "s")
		if err == nil && time.Since(reqTime) > ttl {
			return api.ErrRequestTimeTooSkewed
		}
	}

	// The signature itself is excluded from the signed query string.
	clean := r.URL.Query()
	clean.Del("X-Amz-Signature")
	r.URL.RawQuery = clean.Encode()

	expected := m.sign(r, scope, signedHeaders, amzDate, "UNSIGNED-PAYLOAD")
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return api.ErrSignatureDoesNotMatch
	}
	return nil
}

func parseRequestTime(value string) (time.Time, error) {
	if strings.Contains(value, "T") {
		return time.Parse(amzDateFormat, value)
	}
	return time.Parse(time.RFC1123, value)
}

// sign computes the V4 signature of a request.
func (m *Middleware) sign(r *http.Request, scope credentialScope, signedHeaders, amzDate, payloadHash string) string {
	canonicalRequest := buildCanonicalRequest(r, signedHeaders, payloadHash)
	credScope := scope.date + "/" + scope.region + "/" + scope.service + "/aws4_request"
	stringToSign := signAlgorithm + "\n" + amzDate + "\n" + credScope + "\n" + sha256Hex(canonicalRequest)

	kDate := hmacSHA256([]byte("AWS4"+m.secretKey), scope.date)
	kRegion := hmacSHA256(kDate, scope.region)
	kService := hmacSHA256(kRegion, scope.service)
	kSigning := hmacSHA256(kService, "aws4_request")

	return hex.EncodeToString(hmacSHA256(kSigning, stringToSign))
}

// buildCanonicalRequest assembles the canonical request string. The
// canonical URI is the escaped path exactly as the client sent it, so
// keys with reserved characters verify.
func buildCanonicalRequest(r *http.Request, signedHeaders, payloadHash string) string {
	uri := r.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}

	headersList := strings.Split(signedHeaders, ";")
	sort.Strings(headersList)

	var canonicalHeaders strings.Builder
	for _, h := range headersList {
		h = strings.ToLower(h)
		value := r.Header.Get(h)
		if h == "host" {
			value = r.Host
		}
		canonicalHeaders.WriteString(h)
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(strings.TrimSpace(value))
		canonicalHeaders.WriteString("\n")
	}

	return r.Method + "\n" +
		uri + "\n" +
		canonicalQueryString(r) + "\n" +
		canonicalHeaders.String() + "\n" +
		signedHeaders + "\n" +
		payloadHash
}

// canonicalQueryString sorts and re-encodes the query parameters.
func canonicalQueryString(r *http.Request) string {
	query := r.URL.Query()
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := query[k]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// uriEncode percent-encodes per the SigV4 rules: everything except
// unreserved characters, uppercase hex.
func uriEncode(s string) string {
	var result strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			result.WriteByte(c)
		} else {
			result.WriteString("%" + strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return result.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// DisabledMiddleware skips authentication (for testing).
type DisabledMiddleware struct{}

// NewDisabledMiddleware creates a middleware that skips authentication.
func NewDisabledMiddleware() *DisabledMiddleware {
	return &DisabledMiddleware{}
}

// Wrap wraps an HTTP handler without authentication.
func (m *DisabledMiddleware) Wrap(next http.Handler) http.Handler {
	return next
}

// Authenticator is the strategy interface the router accepts.
type Authenticator interface {
	Wrap(next http.Handler) http.Handler
}

var _ Authenticator = (*Middleware)(nil)
var _ Authenticator = (*DisabledMiddleware)(nil)
