package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateMultipartUploadInput carries the object-level settings captured
// when an upload is initiated. They are applied to the final object at
// completion, regardless of later changes to the request defaults.
type CreateMultipartUploadInput struct {
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
}

// CreateMultipartUpload initiates an upload and returns its id. The
// upload holds no object data until completed; the target key remains
// unchanged and invisible to listings.
func (e *Engine) CreateMultipartUpload(ctx context.Context, in *CreateMultipartUploadInput) (*MultipartUpload, error) {
	if _, err := e.requireBucket(ctx, in.Bucket); err != nil {
		return nil, err
	}
	if err := ValidateObjectKey(in.Key); err != nil {
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	u := &MultipartUpload{
		UploadID:           uuid.New().String(),
		Bucket:             in.Bucket,
		Key:                in.Key,
		ContentType:        in.ContentType,
		CacheControl:       in.CacheControl,
		ContentEncoding:    in.ContentEncoding,
		ContentDisposition: in.ContentDisposition,
		StorageClass:       storageClassOrDefault(in.StorageClass),
		Metadata:           in.Metadata,
		Tags:               in.Tags,
		ChecksumAlgorithm:  in.ChecksumAlgorithm,
		Initiated:          time.Now().UTC(),
	}
	if err := e.db.CreateUpload(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// requireUpload loads an upload and checks it addresses the given
// bucket and key.
func (e *Engine) requireUpload(ctx context.Context, bucket, key, uploadID string) (*MultipartUpload, error) {
	if _, err := e.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}
	u, err := e.db.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Bucket != bucket || u.Key != key {
		return nil, ErrUploadNotFound
	}
	return u, nil
}

// UploadPart stages one part of an upload. Re-uploading a part number
// replaces the previous data for that number.
func (e *Engine) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader) (*Part, error) {
	if _, err := e.requireUpload(ctx, bucket, key, uploadID); err != nil {
		return nil, err
	}
	if partNumber < MinPartNumber || partNumber > MaxPartNumber {
		return nil, fmt.Errorf("%w: part number %d out of range", ErrInvalidPartNumber, partNumber)
	}

	wr, err := e.blobs.Write(bucket, body, ChecksumNone)
	if err != nil {
		return nil, err
	}

	p := &Part{
		PartNumber:   partNumber,
		Size:         wr.Size,
		ETag:         wr.ETag,
		LastModified: time.Now().UTC(),
	}
	replaced, err := e.db.PutPart(ctx, uploadID, p, wr.BlobID)
	if err != nil {
		e.blobs.Remove(bucket, wr.BlobID)
		return nil, err
	}
	e.blobs.Remove(bucket, replaced)
	return p, nil
}

// UploadPartCopyInput describes copying a source object (or a byte
// range of it) into one part of an upload.
type UploadPartCopyInput struct {
	Bucket       string
	Key          string
	UploadID     string
	PartNumber   int32
	SrcBucket    string
	SrcKey       string
	SrcVersionID string
	Range        *RangeSpec
}

// UploadPartCopy stages a part from an existing object.
func (e *Engine) UploadPartCopy(ctx context.Context, in *UploadPartCopyInput) (*Part, error) {
	if _, err := e.requireUpload(ctx, in.Bucket, in.Key, in.UploadID); err != nil {
		return nil, err
	}
	if in.PartNumber < MinPartNumber || in.PartNumber > MaxPartNumber {
		return nil, fmt.Errorf("%w: part number %d out of range", ErrInvalidPartNumber, in.PartNumber)
	}

	var body io.ReadCloser
	if in.Range != nil {
		data, _, err := e.GetObjectRange(ctx, in.SrcBucket, in.SrcKey, in.SrcVersionID, *in.Range)
		if err != nil {
			return nil, err
		}
		body = data.Body
	} else {
		data, err := e.GetObject(ctx, in.SrcBucket, in.SrcKey, in.SrcVersionID)
		if err != nil {
			return nil, err
		}
		body = data.Body
	}
	defer body.Close()

	return e.UploadPart(ctx, in.Bucket, in.Key, in.UploadID, in.PartNumber, body)
}

// ListParts returns one page of staged parts in ascending part-number
// order.
func (e *Engine) ListParts(ctx context.Context, in *ListPartsInput) (*ListPartsOutput, error) {
	u, err := e.requireUpload(ctx, in.Bucket, in.Key, in.UploadID)
	if err != nil {
		return nil, err
	}
	max := in.MaxParts
	if max <= 0 || max > 1000 {
		max = 1000
	}
	parts, err := e.db.ListParts(ctx, in.UploadID, in.PartNumberMarker, max+1)
	if err != nil {
		return nil, err
	}
	out := &ListPartsOutput{Upload: u, Parts: parts}
	if int32(len(parts)) > max {
		out.Parts = parts[:max]
		out.IsTruncated = true
		out.NextPartNumberMarker = out.Parts[len(out.Parts)-1].PartNumber
	}
	return out, nil
}

// ListMultipartUploads returns one page of in-progress uploads ordered
// by key, then upload id.
func (e *Engine) ListMultipartUploads(ctx context.Context, in *ListUploadsInput) (*ListUploadsOutput, error) {
	if _, err := e.requireBucket(ctx, in.Bucket); err != nil {
		return nil, err
	}
	max := in.MaxUploads
	if max <= 0 || max > 1000 {
		max = 1000
	}
	uploads, err := e.db.ListUploads(ctx, in.Bucket, in.Prefix, in.KeyMarker, in.UploadIDMarker, max+1)
	if err != nil {
		return nil, err
	}
	out := &ListUploadsOutput{Uploads: uploads}
	if int32(len(uploads)) > max {
		out.Uploads = uploads[:max]
		last := out.Uploads[len(out.Uploads)-1]
		out.IsTruncated = true
		out.NextKeyMarker = last.Key
		out.NextUploadIDMarker = last.UploadID
	}
	return out, nil
}

// AbortMultipartUpload discards an upload and all its staged parts.
func (e *Engine) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if _, err := e.requireUpload(ctx, bucket, key, uploadID); err != nil {
		return err
	}
	blobs, err := e.db.DeleteUpload(ctx, uploadID)
	if err != nil {
		return err
	}
	for _, b := range blobs {
		e.blobs.Remove(bucket, b)
	}
	return nil
}

// CompleteMultipartUpload assembles the staged parts into one object
// version. The completion list must name existing parts with matching
// ETags, in strictly ascending order; every part but the last must meet
// the minimum part size. Commit is atomic: the object appears with all
// parts or not at all, and the upload is gone afterwards.
func (e *Engine) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, completed []CompletedPart) (*ObjectInfo, error) {
	b, err := e.requireBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	u, err := e.requireUpload(ctx, bucket, key, uploadID)
	if err != nil {
		return nil, err
	}
	if len(completed) == 0 {
		return nil, fmt.Errorf("%w: empty part list", ErrInvalidPart)
	}

	staged, stagedBlobs, err := e.db.GetParts(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int32]int, len(staged))
	for i, p := range staged {
		byNumber[p.PartNumber] = i
	}

	// Validate the completion list against the staged parts and compute
	// the composite ETag over the part MD5s.
	compositeMD5 := md5.New()
	var totalSize int64
	partSizes := make([]int64, 0, len(completed))
	useBlobs := make([]string, 0, len(completed))
	prev := int32(0)
	for i, cp := range completed {
		if cp.PartNumber <= prev {
			return nil, fmt.Errorf("%w: part numbers must be in ascending order", ErrInvalidPartOrder)
		}
		prev = cp.PartNumber
		idx, ok := byNumber[cp.PartNumber]
		if !ok {
			return nil, fmt.Errorf("%w: part %d was not uploaded", ErrInvalidPart, cp.PartNumber)
		}
		p := staged[idx]
		if etagsDiffer(cp.ETag, p.ETag) {
			return nil, fmt.Errorf("%w: part %d etag mismatch", ErrInvalidPart, cp.PartNumber)
		}
		if i < len(completed)-1 && p.Size < MinPartSize {
			return nil, fmt.Errorf("%w: part %d is %d bytes", ErrEntityTooSmall, cp.PartNumber, p.Size)
		}
		sum, err := hex.DecodeString(p.ETag)
		if err != nil {
			return nil, fmt.Errorf("corrupt part etag %q: %w", p.ETag, err)
		}
		compositeMD5.Write(sum)
		totalSize += p.Size
		partSizes = append(partSizes, p.Size)
		useBlobs = append(useBlobs, stagedBlobs[idx])
	}
	compositeETag := fmt.Sprintf("%s-%d", hex.EncodeToString(compositeMD5.Sum(nil)), len(completed))

	// Concatenate the part blobs into one object blob.
	readers := make([]io.Reader, 0, len(useBlobs))
	closers := make([]io.Closer, 0, len(useBlobs))
	for _, blobID := range useBlobs {
		f, err := e.blobs.Open(bucket, blobID)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, err
		}
		readers = append(readers, f)
		closers = append(closers, f)
	}
	wr, err := e.blobs.Write(bucket, io.MultiReader(readers...), u.ChecksumAlgorithm)
	for _, c := range closers {
		c.Close()
	}
	if err != nil {
		return nil, err
	}

	e.locks.Lock(bucket, key)
	defer e.locks.Unlock(bucket, key)

	versioned := b.Versioning == VersioningEnabled
	row := &versionRow{
		ObjectInfo: ObjectInfo{
			Key:                key,
			VersionID:          NullVersionID,
			Size:               totalSize,
			ETag:               compositeETag,
			ContentType:        u.ContentType,
			CacheControl:       u.CacheControl,
			ContentEncoding:    u.ContentEncoding,
			ContentDisposition: u.ContentDisposition,
			StorageClass:       u.StorageClass,
			Metadata:           u.Metadata,
			ChecksumAlgorithm:  u.ChecksumAlgorithm,
			ChecksumValue:      wr.ChecksumValue,
			PartSizes:          partSizes,
			LastModified:       time.Now().UTC(),
		},
		Blob: wr.BlobID,
	}
	if versioned {
		row.VersionID = uuid.New().String()
	}

	replaced, err := e.db.InsertVersion(ctx, bucket, row, !versioned)
	if err != nil {
		e.blobs.Remove(bucket, wr.BlobID)
		return nil, err
	}
	e.blobs.Remove(bucket, replaced)

	if len(u.Tags) > 0 {
		if err := e.db.PutObjectTags(ctx, bucket, key, row.VersionID, u.Tags); err != nil {
			return nil, err
		}
	}

	// Drop the upload record and every staged part blob, including
	// parts that were re-uploaded or left out of the completion list.
	partBlobs, err := e.db.DeleteUpload(ctx, uploadID)
	if err != nil {
		log.Warn().Err(err).Str("upload_id", uploadID).Msg("failed to remove completed upload record")
	}
	for _, blobID := range partBlobs {
		e.blobs.Remove(bucket, blobID)
	}

	info := row.ObjectInfo
	if b.Versioning == VersioningUnversioned {
		info.VersionID = ""
	}
	return &info, nil
}
