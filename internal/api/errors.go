// Package api implements the S3-compatible HTTP handlers.
package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// S3Error is an S3-style XML error response.
type S3Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`

	HTTPStatus int `xml:"-"`
}

func (e *S3Error) Error() string {
	return e.Message
}

// Common S3 errors
var (
	ErrAccessDenied = &S3Error{
		Code:       "AccessDenied",
		Message:    "Access Denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrBucketAlreadyExists = &S3Error{
		Code:       "BucketAlreadyExists",
		Message:    "The requested bucket name is not available. The bucket namespace is shared by all users of the system. Please select a different name and try again.",
		HTTPStatus: http.StatusConflict,
	}

	ErrBucketAlreadyOwnedByYou = &S3Error{
		Code:       "BucketAlreadyOwnedByYou",
		Message:    "Your previous request to create the named bucket succeeded and you already own it.",
		HTTPStatus: http.StatusConflict,
	}

	ErrBucketNotEmpty = &S3Error{
		Code:       "BucketNotEmpty",
		Message:    "The bucket you tried to delete is not empty.",
		HTTPStatus: http.StatusConflict,
	}

	ErrInvalidBucketName = &S3Error{
		Code:       "InvalidBucketName",
		Message:    "The specified bucket is not valid.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNoSuchBucket = &S3Error{
		Code:       "NoSuchBucket",
		Message:    "The specified bucket does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrNoSuchKey = &S3Error{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrNoSuchVersion = &S3Error{
		Code:       "NoSuchVersion",
		Message:    "The specified version does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidAccessKeyId = &S3Error{
		Code:       "InvalidAccessKeyId",
		Message:    "The AWS Access Key Id you provided does not exist in our records.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrSignatureDoesNotMatch = &S3Error{
		Code:       "SignatureDoesNotMatch",
		Message:    "The request signature we calculated does not match the signature you provided.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrRequestTimeTooSkewed = &S3Error{
		Code:       "RequestTimeTooSkewed",
		Message:    "The difference between the request time and the server's time is too large.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrInvalidRequest = &S3Error{
		Code:       "InvalidRequest",
		Message:    "Invalid Request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMethodNotAllowed = &S3Error{
		Code:       "MethodNotAllowed",
		Message:    "The specified method is not allowed against this resource.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrInternalError = &S3Error{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrInvalidRange = &S3Error{
		Code:       "InvalidRange",
		Message:    "The requested range is not satisfiable.",
		HTTPStatus: http.StatusRequestedRangeNotSatisfiable,
	}

	ErrMissingContentLength = &S3Error{
		Code:       "MissingContentLength",
		Message:    "You must provide the Content-Length HTTP header.",
		HTTPStatus: http.StatusLengthRequired,
	}

	ErrPreconditionFailed = &S3Error{
		Code:       "PreconditionFailed",
		Message:    "At least one of the pre-conditions you specified did not hold.",
		HTTPStatus: http.StatusPreconditionFailed,
	}

	ErrKeyTooLongError = &S3Error{
		Code:       "KeyTooLongError",
		Message:    "Your key is too long.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNoSuchUpload = &S3Error{
		Code:       "NoSuchUpload",
		Message:    "The specified upload does not exist. The upload ID may be invalid, or the upload may have been aborted or completed.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidPart = &S3Error{
		Code:       "InvalidPart",
		Message:    "One or more of the specified parts could not be found. The part may not have been uploaded, or the specified entity tag may not match the part's entity tag.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidPartOrder = &S3Error{
		Code:       "InvalidPartOrder",
		Message:    "The list of parts was not in ascending order. Parts must be ordered by part number.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidPartNumber = &S3Error{
		Code:       "InvalidPartNumber",
		Message:    "The requested partnumber is not satisfiable.",
		HTTPStatus: http.StatusRequestedRangeNotSatisfiable,
	}

	ErrEntityTooSmall = &S3Error{
		Code:       "EntityTooSmall",
		Message:    "Your proposed upload is smaller than the minimum allowed object size.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMalformedXML = &S3Error{
		Code:       "MalformedXML",
		Message:    "The XML you provided was not well-formed or did not validate against our published schema.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNoSuchTagSet = &S3Error{
		Code:       "NoSuchTagSet",
		Message:    "The TagSet does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidTag = &S3Error{
		Code:       "InvalidTag",
		Message:    "The tag does not comply with tag restrictions.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNoSuchBucketPolicy = &S3Error{
		Code:       "NoSuchBucketPolicy",
		Message:    "The bucket policy does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMalformedPolicy = &S3Error{
		Code:       "MalformedPolicy",
		Message:    "Policies must be valid JSON and the first byte must be '{'.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrPolicyTooLarge = &S3Error{
		Code:       "PolicyTooLarge",
		Message:    "Policy exceeds the maximum allowed document size.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOwnershipControlsNotFound = &S3Error{
		Code:       "OwnershipControlsNotFoundError",
		Message:    "The bucket ownership controls were not found.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAccessControlListNotSupported = &S3Error{
		Code:       "AccessControlListNotSupported",
		Message:    "The bucket does not allow ACLs.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidBucketAclWithObjectOwnership = &S3Error{
		Code:       "InvalidBucketAclWithObjectOwnership",
		Message:    "Bucket cannot have ACLs set with ObjectOwnership's BucketOwnerEnforced setting.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrObjectLockConfigurationNotFound = &S3Error{
		Code:       "ObjectLockConfigurationNotFoundError",
		Message:    "Object Lock configuration does not exist for this bucket.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidArgument = &S3Error{
		Code:       "InvalidArgument",
		Message:    "Invalid Argument",
		HTTPStatus: http.StatusBadRequest,
	}
)

// WriteError writes an S3 error response.
func WriteError(w http.ResponseWriter, err *S3Error) {
	WriteErrorWithResource(w, err, "")
}

// WriteErrorWithResource writes an S3 error response with resource info.
func WriteErrorWithResource(w http.ResponseWriter, err *S3Error, resource string) {
	response := *err
	response.Resource = resource
	response.RequestID = generateRequestID()

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(err.HTTPStatus)

	if err := xml.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// mapStorageError translates an engine error into its S3 error. Errors
// with no mapping come back as InternalError after being logged.
func mapStorageError(err error) *S3Error {
	switch {
	case errors.Is(err, storage.ErrBucketNotFound):
		return ErrNoSuchBucket
	case errors.Is(err, storage.ErrBucketAlreadyOwned):
		return ErrBucketAlreadyOwnedByYou
	case errors.Is(err, storage.ErrBucketAlreadyExists):
		return ErrBucketAlreadyExists
	case errors.Is(err, storage.ErrBucketNotEmpty):
		return ErrBucketNotEmpty
	case errors.Is(err, storage.ErrInvalidBucketName):
		return ErrInvalidBucketName
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrNoSuchKey
	case errors.Is(err, storage.ErrVersionNotFound):
		return ErrNoSuchVersion
	case errors.Is(err, storage.ErrDeleteMarker):
		return ErrMethodNotAllowed
	case errors.Is(err, storage.ErrKeyTooLong):
		return ErrKeyTooLongError
	case errors.Is(err, storage.ErrInvalidKey):
		return ErrInvalidArgument
	case errors.Is(err, storage.ErrInvalidRange):
		return ErrInvalidRange
	case errors.Is(err, storage.ErrPreconditionFailed):
		return ErrPreconditionFailed
	case errors.Is(err, storage.ErrUploadNotFound):
		return ErrNoSuchUpload
	case errors.Is(err, storage.ErrInvalidPartOrder):
		return ErrInvalidPartOrder
	case errors.Is(err, storage.ErrInvalidPart):
		return ErrInvalidPart
	case errors.Is(err, storage.ErrInvalidPartNumber):
		return ErrInvalidPartNumber
	case errors.Is(err, storage.ErrEntityTooSmall):
		return ErrEntityTooSmall
	case errors.Is(err, storage.ErrInvalidTag):
		return ErrInvalidTag
	case errors.Is(err, storage.ErrNoSuchTagSet):
		return ErrNoSuchTagSet
	case errors.Is(err, storage.ErrNoSuchBucketPolicy):
		return ErrNoSuchBucketPolicy
	case errors.Is(err, storage.ErrMalformedPolicy):
		return ErrMalformedPolicy
	case errors.Is(err, storage.ErrPolicyTooLarge):
		return ErrPolicyTooLarge
	case errors.Is(err, storage.ErrNoOwnershipControls):
		return ErrOwnershipControlsNotFound
	case errors.Is(err, storage.ErrInvalidOwnership):
		return ErrInvalidArgument
	case errors.Is(err, storage.ErrObjectLockDisabled):
		return ErrInvalidRequest
	case errors.Is(err, storage.ErrNoSuchObjectLockInfo):
		return ErrObjectLockConfigurationNotFound
	case errors.Is(err, storage.ErrInvalidArgument):
		return ErrInvalidArgument
	default:
		log.Error().Err(err).Msg("Unhandled storage error")
		return ErrInternalError
	}
}

// writeStorageError maps and writes an engine error.
func writeStorageError(w http.ResponseWriter, err error, resource string) {
	s3err := mapStorageError(err)
	// Reads that hit a delete marker flag it: 404 for the latest
	// version, 405 for an explicitly addressed marker.
	if errors.Is(err, storage.ErrDeleteMarker) {
		w.Header().Set("x-amz-delete-marker", "true")
	}
	WriteErrorWithResource(w, s3err, resource)
}

func generateRequestID() string {
	return randomHex(16)
}

func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		log.Error().Err(err).Msg("Failed to generate random bytes")
		return "0000000000000000"[:n]
	}
	return hex.EncodeToString(b)[:n]
}
