package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Engine is the storage core. All writes to one object key are
// serialized through a key lock, so conditional evaluation, blob
// commit, and metadata update form one atomic step with respect to
// concurrent writers.
type Engine struct {
	db    *metadata
	blobs *blobStore
	locks *keyLock
	owner string
}

// NewEngine opens (or creates) a store rooted at dataDir. Metadata
// lives in a SQLite database next to the blobs.
func NewEngine(dataDir string) (*Engine, error) {
	blobs, err := newBlobStore(dataDir)
	if err != nil {
		return nil, err
	}
	db, err := openMetadata(filepath.Join(dataDir, "kura.db"))
	if err != nil {
		return nil, err
	}
	return &Engine{
		db:    db,
		blobs: blobs,
		locks: newKeyLock(),
		owner: DefaultOwnerID,
	}, nil
}

// Close releases the metadata database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Owner returns the canonical owner id of this deployment.
func (e *Engine) Owner() string {
	return e.owner
}

func (e *Engine) requireBucket(ctx context.Context, name string) (*Bucket, error) {
	b, err := e.db.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBucketNotFound
	}
	return b, nil
}

// ---- buckets ----

// CreateBucket creates a bucket. Re-creating a bucket that already
// exists reports ErrBucketAlreadyOwned, since this is a single-owner
// deployment.
func (e *Engine) CreateBucket(ctx context.Context, name string, objectLock bool) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	b := &Bucket{
		Name:              name,
		Owner:             e.owner,
		CreationDate:      time.Now().UTC(),
		ObjectLockEnabled: objectLock,
	}
	if err := e.db.CreateBucket(ctx, b); err != nil {
		return err
	}
	if objectLock {
		// Object lock requires versioning; enabling lock at creation
		// turns versioning on immediately.
		if err := e.db.SetBucketVersioning(ctx, name, VersioningEnabled); err != nil {
			return err
		}
	}
	log.Info().Str("bucket", name).Bool("object_lock", objectLock).Msg("bucket created")
	return nil
}

// HeadBucket reports bucket metadata or ErrBucketNotFound.
func (e *Engine) HeadBucket(ctx context.Context, name string) (*Bucket, error) {
	return e.requireBucket(ctx, name)
}

// DeleteBucket removes an empty bucket. A bucket holding any object
// version, delete marker, or in-progress multipart upload cannot be
// deleted.
func (e *Engine) DeleteBucket(ctx context.Context, name string) error {
	if err := e.db.DeleteBucketIfEmpty(ctx, name); err != nil {
		return err
	}
	if err := e.blobs.RemoveBucket(name); err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("failed to remove bucket data directory")
	}
	log.Info().Str("bucket", name).Msg("bucket deleted")
	return nil
}

// ListBucketsResult is one page of buckets.
type ListBucketsResult struct {
	Buckets           []Bucket
	IsTruncated       bool
	ContinuationToken string
}

// ListBuckets returns buckets in lexicographic name order, optionally
// filtered by prefix and resumed from a continuation token.
func (e *Engine) ListBuckets(ctx context.Context, prefix, token string, maxBuckets int32) (*ListBucketsResult, error) {
	if maxBuckets <= 0 {
		maxBuckets = 10000
	}
	buckets, err := e.db.ListBuckets(ctx, prefix, token, maxBuckets+1)
	if err != nil {
		return nil, err
	}
	res := &ListBucketsResult{Buckets: buckets}
	if int32(len(buckets)) > maxBuckets {
		res.Buckets = buckets[:maxBuckets]
		res.IsTruncated = true
		res.ContinuationToken = res.Buckets[len(res.Buckets)-1].Name
	}
	return res, nil
}

// SetBucketVersioning transitions the bucket's versioning state.
// Enabled and Suspended may alternate freely; returning to the initial
// unversioned state is not possible.
func (e *Engine) SetBucketVersioning(ctx context.Context, name string, status VersioningStatus) error {
	b, err := e.requireBucket(ctx, name)
	if err != nil {
		return err
	}
	if status != VersioningEnabled && status != VersioningSuspended {
		return fmt.Errorf("%w: versioning status %q", ErrInvalidArgument, status)
	}
	if b.ObjectLockEnabled && status == VersioningSuspended {
		return fmt.Errorf("%w: cannot suspend versioning on an object lock bucket", ErrInvalidArgument)
	}
	return e.db.SetBucketVersioning(ctx, name, status)
}

// GetBucketVersioning returns the bucket's versioning state.
func (e *Engine) GetBucketVersioning(ctx context.Context, name string) (VersioningStatus, error) {
	b, err := e.requireBucket(ctx, name)
	if err != nil {
		return "", err
	}
	return b.Versioning, nil
}

// ---- bucket configuration ----

// PutBucketTagging replaces the bucket tag set.
func (e *Engine) PutBucketTagging(ctx context.Context, name string, tags []Tag) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	if err := ValidateTags(tags); err != nil {
		return err
	}
	return e.db.PutBucketTags(ctx, name, tags)
}

// GetBucketTagging returns the bucket tag set; an empty set is
// ErrNoSuchTagSet.
func (e *Engine) GetBucketTagging(ctx context.Context, name string) ([]Tag, error) {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return nil, err
	}
	tags, err := e.db.GetBucketTags(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, ErrNoSuchTagSet
	}
	return tags, nil
}

// DeleteBucketTagging removes the bucket tag set.
func (e *Engine) DeleteBucketTagging(ctx context.Context, name string) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	return e.db.DeleteBucketTags(ctx, name)
}

// PutBucketPolicy stores a bucket policy document. The document must be
// valid JSON and at most 20 KiB.
func (e *Engine) PutBucketPolicy(ctx context.Context, name, policy string) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	if len(policy) > MaxPolicyBytes {
		return ErrPolicyTooLarge
	}
	if !validPolicyDocument(policy) {
		return ErrMalformedPolicy
	}
	return e.db.SetPolicy(ctx, name, policy)
}

// GetBucketPolicy returns the stored policy document.
func (e *Engine) GetBucketPolicy(ctx context.Context, name string) (string, error) {
	policy, err := e.db.GetPolicy(ctx, name)
	if err != nil {
		return "", err
	}
	if policy == "" {
		return "", ErrNoSuchBucketPolicy
	}
	return policy, nil
}

// DeleteBucketPolicy removes the stored policy document.
func (e *Engine) DeleteBucketPolicy(ctx context.Context, name string) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	return e.db.SetPolicy(ctx, name, "")
}

// PutOwnershipControls sets the bucket's object ownership rule.
func (e *Engine) PutOwnershipControls(ctx context.Context, name string, rule OwnershipRule) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	if err := ValidateOwnershipRule(rule); err != nil {
		return err
	}
	return e.db.SetOwnership(ctx, name, rule)
}

// GetOwnershipControls returns the bucket's object ownership rule.
// Buckets default to BucketOwnerEnforced unless configured otherwise.
func (e *Engine) GetOwnershipControls(ctx context.Context, name string) (OwnershipRule, error) {
	rule, err := e.db.GetOwnership(ctx, name)
	if err != nil {
		return "", err
	}
	if rule == "" {
		return "", ErrNoOwnershipControls
	}
	return rule, nil
}

// DeleteOwnershipControls removes the configured ownership rule.
func (e *Engine) DeleteOwnershipControls(ctx context.Context, name string) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	return e.db.SetOwnership(ctx, name, "")
}

// PutBucketACL replaces the bucket ACL.
func (e *Engine) PutBucketACL(ctx context.Context, name string, acl *ACL) error {
	if _, err := e.requireBucket(ctx, name); err != nil {
		return err
	}
	return e.db.SetBucketACL(ctx, name, acl)
}

// GetBucketACL returns the bucket ACL, falling back to the default
// owner-full-control ACL.
func (e *Engine) GetBucketACL(ctx context.Context, name string) (*ACL, error) {
	acl, err := e.db.GetBucketACL(ctx, name)
	if err != nil {
		return nil, err
	}
	if acl == nil {
		return DefaultACL(), nil
	}
	return acl, nil
}

// PutObjectLockConfiguration stores the bucket's default lock
// configuration. The bucket must have been created with object lock.
func (e *Engine) PutObjectLockConfiguration(ctx context.Context, name, config string) error {
	b, err := e.requireBucket(ctx, name)
	if err != nil {
		return err
	}
	if !b.ObjectLockEnabled {
		return ErrObjectLockDisabled
	}
	return e.db.SetLockConfig(ctx, name, config)
}

// GetObjectLockConfiguration returns the stored lock configuration.
func (e *Engine) GetObjectLockConfiguration(ctx context.Context, name string) (string, error) {
	b, err := e.requireBucket(ctx, name)
	if err != nil {
		return "", err
	}
	if !b.ObjectLockEnabled {
		return "", ErrNoSuchObjectLockInfo
	}
	config, err := e.db.GetLockConfig(ctx, name)
	if err != nil {
		return "", err
	}
	if config == "" {
		// Lock enabled at creation but never configured: report the
		// bare enabled state.
		return `{"ObjectLockEnabled":"Enabled"}`, nil
	}
	return config, nil
}

// ---- objects ----

// PutObject commits a new object version. Conditional headers are
// evaluated against the latest version under the key's write lock, so
// check and commit are atomic.
func (e *Engine) PutObject(ctx context.Context, in *PutObjectInput) (*PutObjectResult, error) {
	b, err := e.requireBucket(ctx, in.Bucket)
	if err != nil {
		return nil, err
	}
	if err := ValidateObjectKey(in.Key); err != nil {
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	e.locks.Lock(in.Bucket, in.Key)
	defer e.locks.Unlock(in.Bucket, in.Key)

	if err := e.checkWritePreconditions(ctx, in.Bucket, in.Key, in.IfMatch, in.IfNoneMatch); err != nil {
		return nil, err
	}

	wr, err := e.blobs.Write(in.Bucket, in.Body, in.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	versioned := b.Versioning == VersioningEnabled
	row := &versionRow{
		ObjectInfo: ObjectInfo{
			Key:                in.Key,
			VersionID:          NullVersionID,
			Size:               wr.Size,
			ETag:               wr.ETag,
			ContentType:        in.ContentType,
			CacheControl:       in.CacheControl,
			ContentEncoding:    in.ContentEncoding,
			ContentDisposition: in.ContentDisposition,
			StorageClass:       storageClassOrDefault(in.StorageClass),
			Metadata:           in.Metadata,
			ChecksumAlgorithm:  in.ChecksumAlgorithm,
			ChecksumValue:      wr.ChecksumValue,
			LastModified:       time.Now().UTC(),
		},
		Blob: wr.BlobID,
	}
	if versioned {
		row.VersionID = uuid.New().String()
	}

	replaced, err := e.db.InsertVersion(ctx, in.Bucket, row, !versioned)
	if err != nil {
		e.blobs.Remove(in.Bucket, wr.BlobID)
		return nil, err
	}
	e.blobs.Remove(in.Bucket, replaced)

	if len(in.Tags) > 0 {
		if err := e.db.PutObjectTags(ctx, in.Bucket, in.Key, row.VersionID, in.Tags); err != nil {
			return nil, err
		}
	}

	res := &PutObjectResult{
		ETag:          wr.ETag,
		ChecksumValue: wr.ChecksumValue,
	}
	if b.Versioning != VersioningUnversioned {
		res.VersionID = row.VersionID
	}
	return res, nil
}

// checkWritePreconditions evaluates If-Match / If-None-Match against
// the latest version. Must be called with the key lock held.
func (e *Engine) checkWritePreconditions(ctx context.Context, bucket, key, ifMatch, ifNoneMatch string) error {
	if ifMatch == "" && ifNoneMatch == "" {
		return nil
	}
	latest, err := e.db.GetLatest(ctx, bucket, key)
	if err != nil {
		return err
	}
	exists := latest != nil && !latest.IsDeleteMarker

	if ifMatch != "" {
		if !exists {
			return ErrObjectNotFound
		}
		if etagsDiffer(ifMatch, latest.ETag) {
			return ErrPreconditionFailed
		}
	}
	if ifNoneMatch != "" && exists {
		if ifNoneMatch == "*" || !etagsDiffer(ifNoneMatch, latest.ETag) {
			return ErrPreconditionFailed
		}
	}
	return nil
}

func etagsDiffer(header, stored string) bool {
	return trimETag(header) != stored
}

func trimETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}

func storageClassOrDefault(class string) string {
	if class == "" {
		return DefaultStorageClass
	}
	return class
}

// resolveVersion finds the version a read addresses. An empty
// versionID means the latest; a latest delete marker reads as a
// missing object, while an explicitly addressed delete marker is a
// distinct error so the caller can reject the method.
func (e *Engine) resolveVersion(ctx context.Context, bucket, key, versionID string) (*versionRow, error) {
	if _, err := e.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}
	if versionID == "" {
		v, err := e.db.GetLatest(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ErrObjectNotFound
		}
		if v.IsDeleteMarker {
			return nil, fmt.Errorf("latest version is a delete marker: %w (%w)", ErrObjectNotFound, ErrDeleteMarker)
		}
		return v, nil
	}
	v, err := e.db.GetVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVersionNotFound
	}
	if v.IsDeleteMarker {
		return nil, ErrDeleteMarker
	}
	return v, nil
}

// HeadObject returns object metadata without content.
func (e *Engine) HeadObject(ctx context.Context, bucket, key, versionID string) (*ObjectInfo, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	info := v.ObjectInfo
	return &info, nil
}

// GetObject returns object metadata and a reader over the full content.
func (e *Engine) GetObject(ctx context.Context, bucket, key, versionID string) (*ObjectData, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	body, err := e.blobs.Open(bucket, v.Blob)
	if err != nil {
		return nil, err
	}
	return &ObjectData{ObjectInfo: v.ObjectInfo, Body: body}, nil
}

// RangeSpec is a parsed byte range request. End < 0 means to the end
// of the object; Suffix means Start is a length counted from the end.
type RangeSpec struct {
	Start  int64
	End    int64
	Suffix bool
}

// ResolvedRange is a range clamped against the object size.
type ResolvedRange struct {
	Start int64
	End   int64
	Total int64
}

func (r RangeSpec) resolve(size int64) (ResolvedRange, error) {
	res := ResolvedRange{Total: size}
	if r.Suffix {
		if r.Start <= 0 {
			return res, ErrInvalidRange
		}
		res.Start = size - r.Start
		if res.Start < 0 {
			res.Start = 0
		}
		res.End = size - 1
	} else {
		res.Start = r.Start
		res.End = r.End
		if res.End < 0 || res.End > size-1 {
			res.End = size - 1
		}
	}
	if res.Start > res.End || res.Start >= size {
		return res, ErrInvalidRange
	}
	return res, nil
}

// GetObjectRange returns metadata and a reader over part of the
// content. The end is clamped to the object size; a start at or past
// the size is ErrInvalidRange.
func (e *Engine) GetObjectRange(ctx context.Context, bucket, key, versionID string, spec RangeSpec) (*ObjectData, *ResolvedRange, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, nil, err
	}
	rng, err := spec.resolve(v.Size)
	if err != nil {
		return nil, &rng, err
	}
	body, err := e.blobs.OpenRange(bucket, v.Blob, rng.Start, rng.End)
	if err != nil {
		return nil, nil, err
	}
	return &ObjectData{ObjectInfo: v.ObjectInfo, Body: body}, &rng, nil
}

// GetObjectPart returns the byte range covered by one part of a
// multipart-assembled object. For objects not assembled from parts,
// part 1 addresses the whole object.
func (e *Engine) GetObjectPart(ctx context.Context, bucket, key, versionID string, partNumber int32) (*ObjectData, *ResolvedRange, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, nil, err
	}

	var start, end int64
	switch {
	case len(v.PartSizes) == 0:
		if partNumber != 1 {
			return nil, nil, ErrInvalidPartNumber
		}
		start, end = 0, v.Size-1
	case int(partNumber) < 1 || int(partNumber) > len(v.PartSizes):
		return nil, nil, ErrInvalidPartNumber
	default:
		for _, sz := range v.PartSizes[:partNumber-1] {
			start += sz
		}
		end = start + v.PartSizes[partNumber-1] - 1
	}

	body, err := e.blobs.OpenRange(bucket, v.Blob, start, end)
	if err != nil {
		return nil, nil, err
	}
	rng := &ResolvedRange{Start: start, End: end, Total: v.Size}
	return &ObjectData{ObjectInfo: v.ObjectInfo, Body: body}, rng, nil
}

// DeleteObject removes an object or records a delete marker, depending
// on the bucket's versioning state and whether a version is addressed.
func (e *Engine) DeleteObject(ctx context.Context, bucket, key, versionID string) (*DeleteObjectResult, error) {
	b, err := e.requireBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return nil, err
	}

	e.locks.Lock(bucket, key)
	defer e.locks.Unlock(bucket, key)

	if versionID != "" {
		return e.deleteVersion(ctx, bucket, key, versionID)
	}

	switch b.Versioning {
	case VersioningEnabled:
		marker := &versionRow{
			ObjectInfo: ObjectInfo{
				Key:            key,
				VersionID:      uuid.New().String(),
				IsDeleteMarker: true,
				LastModified:   time.Now().UTC(),
			},
		}
		if _, err := e.db.InsertVersion(ctx, bucket, marker, false); err != nil {
			return nil, err
		}
		return &DeleteObjectResult{VersionID: marker.VersionID, DeleteMarker: true}, nil

	case VersioningSuspended:
		// The delete marker takes the "null" slot, permanently
		// removing whatever null version was there.
		marker := &versionRow{
			ObjectInfo: ObjectInfo{
				Key:            key,
				VersionID:      NullVersionID,
				IsDeleteMarker: true,
				LastModified:   time.Now().UTC(),
			},
		}
		replaced, err := e.db.InsertVersion(ctx, bucket, marker, true)
		if err != nil {
			return nil, err
		}
		e.blobs.Remove(bucket, replaced)
		return &DeleteObjectResult{VersionID: NullVersionID, DeleteMarker: true}, nil

	default:
		// Unversioned: remove the object outright. Deleting a missing
		// key succeeds with no effect.
		blob, err := e.db.DeleteVersion(ctx, bucket, key, NullVersionID)
		if errors.Is(err, ErrVersionNotFound) {
			return &DeleteObjectResult{}, nil
		}
		if err != nil {
			return nil, err
		}
		e.blobs.Remove(bucket, blob)
		return &DeleteObjectResult{}, nil
	}
}

// deleteVersion permanently removes one addressed version or delete
// marker. Must be called with the key lock held.
func (e *Engine) deleteVersion(ctx context.Context, bucket, key, versionID string) (*DeleteObjectResult, error) {
	v, err := e.db.GetVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVersionNotFound
	}
	blob, err := e.db.DeleteVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	e.blobs.Remove(bucket, blob)
	return &DeleteObjectResult{VersionID: versionID, DeleteMarker: v.IsDeleteMarker}, nil
}

// DeleteObjects deletes a batch of objects, reporting per-key outcomes.
// Failures on one key never abort the rest of the batch; a missing
// bucket fails the whole request.
func (e *Engine) DeleteObjects(ctx context.Context, bucket string, objects []ObjectIdentifier) ([]DeletedObject, []DeleteError, error) {
	if _, err := e.requireBucket(ctx, bucket); err != nil {
		return nil, nil, err
	}
	var deleted []DeletedObject
	var failed []DeleteError
	for _, obj := range objects {
		res, err := e.DeleteObject(ctx, bucket, obj.Key, obj.VersionID)
		if err != nil {
			code, msg := deleteErrorCode(err)
			failed = append(failed, DeleteError{Key: obj.Key, Code: code, Message: msg})
			continue
		}
		d := DeletedObject{Key: obj.Key, VersionID: obj.VersionID}
		if res.DeleteMarker {
			d.DeleteMarker = true
			d.DeleteMarkerVersionID = res.VersionID
		}
		deleted = append(deleted, d)
	}
	return deleted, failed, nil
}

func deleteErrorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, ErrBucketNotFound):
		return "NoSuchBucket", "The specified bucket does not exist"
	case errors.Is(err, ErrVersionNotFound):
		return "NoSuchVersion", "The specified version does not exist"
	case errors.Is(err, ErrKeyTooLong):
		return "KeyTooLongError", "Your key is too long"
	case errors.Is(err, ErrInvalidKey):
		return "InvalidArgument", err.Error()
	default:
		return "InternalError", err.Error()
	}
}

// CopyObjectResult reports a committed server-side copy.
type CopyObjectResult struct {
	ETag            string
	VersionID       string
	SourceVersionID string
	LastModified    time.Time
	ChecksumValue   string
}

// CopyObject copies an object server-side. With the COPY directive the
// destination inherits the source's metadata and tags; with REPLACE it
// takes the values supplied in the request. A copy of an object onto
// itself requires REPLACE.
func (e *Engine) CopyObject(ctx context.Context, in *CopyObjectInput) (*CopyObjectResult, error) {
	src, err := e.resolveVersion(ctx, in.SrcBucket, in.SrcKey, in.SrcVersionID)
	if err != nil {
		return nil, err
	}

	selfCopy := in.SrcBucket == in.DstBucket && in.SrcKey == in.DstKey && in.SrcVersionID == ""
	if selfCopy && !in.ReplaceMetadata {
		return nil, fmt.Errorf("%w: copying an object to itself requires replacing its metadata", ErrInvalidArgument)
	}

	body, err := e.blobs.Open(in.SrcBucket, src.Blob)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	put := &PutObjectInput{
		Bucket:             in.DstBucket,
		Key:                in.DstKey,
		Body:               body,
		ContentType:        src.ContentType,
		CacheControl:       src.CacheControl,
		ContentEncoding:    src.ContentEncoding,
		ContentDisposition: src.ContentDisposition,
		StorageClass:       storageClassOrDefault(in.StorageClass),
		Metadata:           src.Metadata,
		ChecksumAlgorithm:  src.ChecksumAlgorithm,
	}
	if in.ReplaceMetadata {
		put.ContentType = in.ContentType
		put.CacheControl = ""
		put.ContentEncoding = ""
		put.ContentDisposition = ""
		put.Metadata = in.Metadata
	}
	if in.ReplaceTags {
		put.Tags = in.Tags
	} else {
		tags, err := e.db.GetObjectTags(ctx, in.SrcBucket, in.SrcKey, src.VersionID)
		if err != nil {
			return nil, err
		}
		put.Tags = tags
	}

	res, err := e.PutObject(ctx, put)
	if err != nil {
		return nil, err
	}
	return &CopyObjectResult{
		ETag:            res.ETag,
		VersionID:       res.VersionID,
		SourceVersionID: src.VersionID,
		LastModified:    time.Now().UTC(),
		ChecksumValue:   res.ChecksumValue,
	}, nil
}

// ---- object tagging ----

// PutObjectTagging replaces the tag set of one object version.
func (e *Engine) PutObjectTagging(ctx context.Context, bucket, key, versionID string, tags []Tag) (string, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return "", err
	}
	if err := ValidateTags(tags); err != nil {
		return "", err
	}
	if err := e.db.PutObjectTags(ctx, bucket, key, v.VersionID, tags); err != nil {
		return "", err
	}
	return v.VersionID, nil
}

// GetObjectTagging returns the tag set of one object version.
func (e *Engine) GetObjectTagging(ctx context.Context, bucket, key, versionID string) ([]Tag, string, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, "", err
	}
	tags, err := e.db.GetObjectTags(ctx, bucket, key, v.VersionID)
	if err != nil {
		return nil, "", err
	}
	return tags, v.VersionID, nil
}

// DeleteObjectTagging removes the tag set of one object version.
func (e *Engine) DeleteObjectTagging(ctx context.Context, bucket, key, versionID string) (string, error) {
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return "", err
	}
	if err := e.db.DeleteObjectTags(ctx, bucket, key, v.VersionID); err != nil {
		return "", err
	}
	return v.VersionID, nil
}

// ---- object lock ----

// PutObjectRetention sets the retention mode and date on a version.
func (e *Engine) PutObjectRetention(ctx context.Context, bucket, key, versionID string, ret *ObjectRetention) error {
	b, err := e.requireBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if !b.ObjectLockEnabled {
		return ErrObjectLockDisabled
	}
	if ret.Mode != "GOVERNANCE" && ret.Mode != "COMPLIANCE" {
		return fmt.Errorf("%w: retention mode %q", ErrInvalidArgument, ret.Mode)
	}
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return err
	}
	return e.db.UpdateRetention(ctx, bucket, key, v.VersionID, ret.Mode, ret.RetainUntilDate)
}

// GetObjectRetention returns the retention state of a version.
func (e *Engine) GetObjectRetention(ctx context.Context, bucket, key, versionID string) (*ObjectRetention, error) {
	b, err := e.requireBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !b.ObjectLockEnabled {
		return nil, ErrObjectLockDisabled
	}
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if v.RetentionMode == "" || v.RetainUntil == nil {
		return nil, ErrNoSuchObjectLockInfo
	}
	return &ObjectRetention{Mode: v.RetentionMode, RetainUntilDate: *v.RetainUntil}, nil
}

// PutObjectLegalHold sets the legal hold status of a version.
func (e *Engine) PutObjectLegalHold(ctx context.Context, bucket, key, versionID, status string) error {
	b, err := e.requireBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if !b.ObjectLockEnabled {
		return ErrObjectLockDisabled
	}
	if status != "ON" && status != "OFF" {
		return fmt.Errorf("%w: legal hold status %q", ErrInvalidArgument, status)
	}
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return err
	}
	return e.db.UpdateLegalHold(ctx, bucket, key, v.VersionID, status)
}

// GetObjectLegalHold returns the legal hold status of a version.
func (e *Engine) GetObjectLegalHold(ctx context.Context, bucket, key, versionID string) (string, error) {
	b, err := e.requireBucket(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !b.ObjectLockEnabled {
		return "", ErrObjectLockDisabled
	}
	v, err := e.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return "", err
	}
	if v.LegalHoldStatus == "" {
		return "", ErrNoSuchObjectLockInfo
	}
	return v.LegalHoldStatus, nil
}
