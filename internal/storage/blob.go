package storage

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// blobStore keeps object content on the local filesystem. Blobs are
// named by fresh uuids, never by object key, so arbitrary byte keys and
// trailing-slash keys are purely metadata. A blob is written to a temp
// file and renamed into place; the metadata row that references it is
// only committed afterwards, so readers never observe a partial blob.
type blobStore struct {
	dataDir string
}

func newBlobStore(dataDir string) (*blobStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &blobStore{dataDir: dataDir}, nil
}

func (bs *blobStore) bucketDir(bucket string) string {
	return filepath.Join(bs.dataDir, bucket, "blobs")
}

func (bs *blobStore) path(bucket, blobID string) string {
	return filepath.Join(bs.bucketDir(bucket), blobID)
}

// writeResult reports what was written to a fresh blob.
type writeResult struct {
	BlobID        string
	Size          int64
	ETag          string // md5 hex, unquoted
	ChecksumValue string // base64, empty unless an algorithm was requested
}

// Write streams body into a new blob and computes its MD5 ETag plus an
// optional checksum.
func (bs *blobStore) Write(bucket string, body io.Reader, algorithm ChecksumAlgorithm) (*writeResult, error) {
	dir := bs.bucketDir(bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	md5h := md5.New()
	writers := []io.Writer{tmp, md5h}

	var sum checksummer
	if algorithm != ChecksumNone {
		sum, err = newChecksummer(algorithm)
		if err != nil {
			return nil, err
		}
		writers = append(writers, sum)
	}

	written, err := io.Copy(io.MultiWriter(writers...), body)
	if err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	blobID := uuid.New().String()
	if err := os.Rename(tmpPath, bs.path(bucket, blobID)); err != nil {
		return nil, fmt.Errorf("failed to commit blob: %w", err)
	}

	res := &writeResult{
		BlobID: blobID,
		Size:   written,
		ETag:   hex.EncodeToString(md5h.Sum(nil)),
	}
	if sum != nil {
		res.ChecksumValue = sum.Encoded()
	}
	return res, nil
}

// Open returns a reader over the whole blob.
func (bs *blobStore) Open(bucket, blobID string) (io.ReadCloser, error) {
	f, err := os.Open(bs.path(bucket, blobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// OpenRange returns a reader over bytes [start, end] of the blob.
func (bs *blobStore) OpenRange(bucket, blobID string, start, end int64) (io.ReadCloser, error) {
	f, err := os.Open(bs.path(bucket, blobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek blob: %w", err)
	}
	return &limitedReadCloser{r: f, n: end - start + 1}, nil
}

// Remove deletes a blob; missing blobs are not an error.
func (bs *blobStore) Remove(bucket, blobID string) {
	if blobID == "" {
		return
	}
	os.Remove(bs.path(bucket, blobID))
}

// RemoveBucket deletes everything stored for a bucket.
func (bs *blobStore) RemoveBucket(bucket string) error {
	return os.RemoveAll(filepath.Join(bs.dataDir, bucket))
}

type limitedReadCloser struct {
	r io.ReadCloser
	n int64
}

func (lr *limitedReadCloser) Read(p []byte) (int, error) {
	if lr.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > lr.n {
		p = p[:lr.n]
	}
	n, err := lr.r.Read(p)
	lr.n -= int64(n)
	return n, err
}

func (lr *limitedReadCloser) Close() error {
	return lr.r.Close()
}

// checksummer accumulates one of the supported content checksums and
// reports it base64-encoded, matching the wire format.
type checksummer interface {
	io.Writer
	Encoded() string
}

type hashChecksummer struct {
	hash.Hash
}

func (h *hashChecksummer) Encoded() string {
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func newChecksummer(algorithm ChecksumAlgorithm) (checksummer, error) {
	switch algorithm {
	case ChecksumCRC32:
		return &hashChecksummer{crc32.NewIEEE()}, nil
	case ChecksumCRC32C:
		return &hashChecksummer{crc32.New(crc32.MakeTable(crc32.Castagnoli))}, nil
	case ChecksumSHA1:
		return &hashChecksummer{sha1.New()}, nil
	case ChecksumSHA256:
		return &hashChecksummer{sha256.New()}, nil
	}
	return nil, fmt.Errorf("%w: unsupported checksum algorithm %q", ErrInvalidArgument, algorithm)
}
