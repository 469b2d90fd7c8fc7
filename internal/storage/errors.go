package storage

import "errors"

// Sentinel errors returned by the engine. The API layer maps each to an
// S3 error code and status; callers branch with errors.Is.
var (
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	ErrBucketAlreadyOwned  = errors.New("bucket already owned by you")
	ErrBucketNotEmpty      = errors.New("bucket not empty")
	ErrInvalidBucketName   = errors.New("invalid bucket name")

	ErrObjectNotFound  = errors.New("object not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrDeleteMarker    = errors.New("version is a delete marker")
	ErrKeyTooLong      = errors.New("object key too long")
	ErrInvalidKey      = errors.New("invalid object key")
	ErrInvalidRange    = errors.New("invalid byte range")

	ErrPreconditionFailed = errors.New("precondition failed")

	ErrUploadNotFound     = errors.New("upload not found")
	ErrInvalidPart        = errors.New("invalid part")
	ErrInvalidPartOrder   = errors.New("parts not in ascending order")
	ErrInvalidPartNumber  = errors.New("invalid part number")
	ErrEntityTooSmall     = errors.New("part below minimum size")

	ErrInvalidTag          = errors.New("invalid tag")
	ErrNoSuchTagSet        = errors.New("no such tag set")
	ErrNoSuchBucketPolicy  = errors.New("no such bucket policy")
	ErrMalformedPolicy     = errors.New("malformed policy")
	ErrPolicyTooLarge      = errors.New("policy exceeds size limit")
	ErrNoOwnershipControls = errors.New("ownership controls not found")
	ErrInvalidOwnership    = errors.New("invalid ownership rule")

	ErrObjectLockDisabled   = errors.New("bucket is not object lock enabled")
	ErrNoSuchObjectLockInfo = errors.New("no object lock configuration")

	ErrInvalidArgument = errors.New("invalid argument")
)
