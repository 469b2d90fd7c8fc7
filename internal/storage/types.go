// Package storage implements the Kura object store core: bucket
// namespace, object metadata and versions, multipart uploads, and the
// listing engine. Blobs live on the local filesystem; all metadata is
// kept in SQLite.
package storage

import (
	"io"
	"time"
)

// VersioningStatus is the versioning state of a bucket.
type VersioningStatus string

const (
	VersioningUnversioned VersioningStatus = ""
	VersioningEnabled     VersioningStatus = "Enabled"
	VersioningSuspended   VersioningStatus = "Suspended"
)

// NullVersionID is the synthetic version id carried by objects written
// while a bucket is unversioned or suspended.
const NullVersionID = "null"

// OwnershipRule is a bucket ownership-controls rule.
type OwnershipRule string

const (
	OwnershipBucketOwnerPreferred OwnershipRule = "BucketOwnerPreferred"
	OwnershipBucketOwnerEnforced  OwnershipRule = "BucketOwnerEnforced"
	OwnershipObjectWriter         OwnershipRule = "ObjectWriter"
)

// ChecksumAlgorithm identifies an optional content checksum.
type ChecksumAlgorithm string

const (
	ChecksumNone   ChecksumAlgorithm = ""
	ChecksumCRC32  ChecksumAlgorithm = "CRC32"
	ChecksumCRC32C ChecksumAlgorithm = "CRC32C"
	ChecksumSHA1   ChecksumAlgorithm = "SHA1"
	ChecksumSHA256 ChecksumAlgorithm = "SHA256"
)

// DefaultStorageClass is reported for every object; storage classes are
// accepted and echoed but do not change placement.
const DefaultStorageClass = "STANDARD"

// Bucket holds bucket metadata and configuration.
type Bucket struct {
	Name              string
	Owner             string
	CreationDate      time.Time
	Versioning        VersioningStatus
	ObjectLockEnabled bool
}

// Tag is one tag-set entry.
type Tag struct {
	Key   string
	Value string
}

// ObjectInfo describes one committed object version.
type ObjectInfo struct {
	Key                string
	VersionID          string
	IsLatest           bool
	IsDeleteMarker     bool
	Size               int64
	ETag               string
	ContentType        string
	CacheControl       string
	ContentEncoding    string
	ContentDisposition string
	StorageClass       string
	Metadata           map[string]string
	ChecksumAlgorithm  ChecksumAlgorithm
	ChecksumValue      string
	PartSizes          []int64 // non-nil only for multipart-assembled objects
	LastModified       time.Time
}

// PartCount reports how many parts the object was assembled from, or 0.
func (o *ObjectInfo) PartCount() int32 {
	return int32(len(o.PartSizes))
}

// ObjectData couples object metadata with a content reader.
type ObjectData struct {
	ObjectInfo
	Body io.ReadCloser
}

// PutObjectInput carries everything PutObject needs besides the body.
type PutObjectInput struct {
	Bucket             string
	Key                string
	Body               io.Reader
	ContentType        string
	CacheControl       string
	ContentEncoding    string
	ContentDisposition string
	StorageClass       string
	Metadata           map[string]string
	Tags               []Tag
	ChecksumAlgorithm  ChecksumAlgorithm

	// Conditional headers; evaluated atomically with the write.
	IfMatch     string
	IfNoneMatch string
}

// PutObjectResult is the outcome of a committed write.
type PutObjectResult struct {
	ETag          string
	VersionID     string
	ChecksumValue string
}

// CopyObjectInput describes a server-side copy.
type CopyObjectInput struct {
	SrcBucket        string
	SrcKey           string
	SrcVersionID     string
	DstBucket        string
	DstKey           string
	ReplaceMetadata  bool // REPLACE directive for user metadata/headers
	ReplaceTags      bool // REPLACE directive for the tag set
	ContentType      string
	Metadata         map[string]string
	Tags             []Tag
	StorageClass     string
}

// DeleteObjectResult reports what a delete did.
type DeleteObjectResult struct {
	VersionID    string
	DeleteMarker bool
}

// ObjectIdentifier names one object (and optionally version) in a batch
// delete.
type ObjectIdentifier struct {
	Key       string
	VersionID string
}

// DeletedObject is a per-key success entry of DeleteObjects.
type DeletedObject struct {
	Key                   string
	VersionID             string
	DeleteMarker          bool
	DeleteMarkerVersionID string
}

// DeleteError is a per-key failure entry of DeleteObjects.
type DeleteError struct {
	Key     string
	Code    string
	Message string
}

// MultipartUpload is an in-progress upload. The object-level settings
// captured at creation are applied to the final object on completion.
type MultipartUpload struct {
	UploadID           string
	Bucket             string
	Key                string
	ContentType        string
	CacheControl       string
	ContentEncoding    string
	ContentDisposition string
	StorageClass       string
	Metadata           map[string]string
	Tags               []Tag
	ChecksumAlgorithm  ChecksumAlgorithm
	Initiated          time.Time
}

// Part is one staged part of a multipart upload.
type Part struct {
	PartNumber   int32
	Size         int64
	ETag         string
	LastModified time.Time
}

// CompletedPart is a (part-number, ETag) pair supplied by the caller at
// completion.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// ListObjectsInput holds parameters shared by ListObjects v1 and v2.
type ListObjectsInput struct {
	Bucket    string
	Prefix    string
	Delimiter string
	MaxKeys   int32
	// V1 resume point, or the decoded v2 continuation token / start-after.
	Marker string
}

// ListObjectsOutput is a single listing page.
type ListObjectsOutput struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
	KeyCount       int32
}

// ListVersionsInput holds parameters for ListObjectVersions.
type ListVersionsInput struct {
	Bucket          string
	Prefix          string
	Delimiter       string
	MaxKeys         int32
	KeyMarker       string
	VersionIDMarker string
}

// ListVersionsOutput is a page of version entries ordered by key, then
// by recency (latest first). Delete markers are reported separately.
type ListVersionsOutput struct {
	Versions            []ObjectInfo
	DeleteMarkers       []ObjectInfo
	CommonPrefixes      []string
	IsTruncated         bool
	NextKeyMarker       string
	NextVersionIDMarker string
}

// ListPartsInput holds parameters for ListParts.
type ListPartsInput struct {
	Bucket           string
	Key              string
	UploadID         string
	MaxParts         int32
	PartNumberMarker int32
}

// ListPartsOutput is a page of parts in ascending part-number order.
type ListPartsOutput struct {
	Upload               *MultipartUpload
	Parts                []Part
	IsTruncated          bool
	NextPartNumberMarker int32
}

// ListUploadsInput holds parameters for ListMultipartUploads.
type ListUploadsInput struct {
	Bucket         string
	Prefix         string
	MaxUploads     int32
	KeyMarker      string
	UploadIDMarker string
}

// ListUploadsOutput is a page of in-progress uploads ordered by key,
// then upload id.
type ListUploadsOutput struct {
	Uploads            []MultipartUpload
	IsTruncated        bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// ObjectRetention is the lock retention state of an object version.
type ObjectRetention struct {
	Mode            string // GOVERNANCE or COMPLIANCE
	RetainUntilDate time.Time
}

// ACLGrant is a single ACL grant entry.
type ACLGrant struct {
	Permission  string `json:"permission"`
	GranteeType string `json:"grantee_type"`
	GranteeID   string `json:"grantee_id,omitempty"`
	GranteeURI  string `json:"grantee_uri,omitempty"`
}

// ACL is an access control list for a bucket or object.
type ACL struct {
	OwnerID      string     `json:"owner_id"`
	OwnerDisplay string     `json:"owner_display"`
	Grants       []ACLGrant `json:"grants"`
}

// Grantee group URIs used by canned ACLs.
const (
	AllUsersGroupURI           = "http://acs.amazonaws.com/groups/global/AllUsers"
	AuthenticatedUsersGroupURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// ACL permissions.
const (
	ACLPermissionFullControl = "FULL_CONTROL"
	ACLPermissionRead        = "READ"
	ACLPermissionWrite       = "WRITE"
)

// CannedACL is a predefined ACL name.
type CannedACL string

const (
	CannedACLPrivate           CannedACL = "private"
	CannedACLPublicRead        CannedACL = "public-read"
	CannedACLPublicReadWrite   CannedACL = "public-read-write"
	CannedACLAuthenticatedRead CannedACL = "authenticated-read"
)

// DefaultOwnerID is the canonical owner of a single-tenant deployment.
const DefaultOwnerID = "kura-owner"

// DefaultOwnerDisplay is the display name of the default owner.
const DefaultOwnerDisplay = "kura"

// DefaultACL is the owner-full-control ACL applied when none is set.
func DefaultACL() *ACL {
	return &ACL{
		OwnerID:      DefaultOwnerID,
		OwnerDisplay: DefaultOwnerDisplay,
		Grants: []ACLGrant{
			{
				Permission:  ACLPermissionFullControl,
				GranteeType: "CanonicalUser",
				GranteeID:   DefaultOwnerID,
			},
		},
	}
}

// CannedACLToACL expands a canned ACL into grant form.
func CannedACLToACL(canned CannedACL, ownerID, ownerDisplay string) *ACL {
	acl := &ACL{
		OwnerID:      ownerID,
		OwnerDisplay: ownerDisplay,
		Grants: []ACLGrant{
			{
				Permission:  ACLPermissionFullControl,
				GranteeType: "CanonicalUser",
				GranteeID:   ownerID,
			},
		},
	}

	switch canned {
	case CannedACLPrivate:
		// Owner FULL_CONTROL only.
	case CannedACLPublicRead:
		acl.Grants = append(acl.Grants, ACLGrant{
			Permission:  ACLPermissionRead,
			GranteeType: "Group",
			GranteeURI:  AllUsersGroupURI,
		})
	case CannedACLPublicReadWrite:
		acl.Grants = append(acl.Grants,
			ACLGrant{
				Permission:  ACLPermissionRead,
				GranteeType: "Group",
				GranteeURI:  AllUsersGroupURI,
			},
			ACLGrant{
				Permission:  ACLPermissionWrite,
				GranteeType: "Group",
				GranteeURI:  AllUsersGroupURI,
			})
	case CannedACLAuthenticatedRead:
		acl.Grants = append(acl.Grants, ACLGrant{
			Permission:  ACLPermissionRead,
			GranteeType: "Group",
			GranteeURI:  AuthenticatedUsersGroupURI,
		})
	}

	return acl
}
