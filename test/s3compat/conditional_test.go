package s3compat

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/harukado/kura/test/testutil"
)

func TestPutObjectIfNoneMatchCreate(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()

	// First conditional create succeeds
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(key),
		Body:        strings.NewReader("first"),
		IfNoneMatch: aws.String("*"),
	})
	require.NoError(t, err)

	// Second conditional create fails: the key now exists
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(key),
		Body:        strings.NewReader("second"),
		IfNoneMatch: aws.String("*"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PreconditionFailed")
}

func TestPutObjectIfMatch(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()

	first, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("version one"),
	})
	require.NoError(t, err)

	// Matching ETag: overwrite allowed
	second, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(bucketName),
		Key:     aws.String(key),
		Body:    strings.NewReader("version two"),
		IfMatch: first.ETag,
	})
	require.NoError(t, err)

	// Stale ETag: overwrite rejected
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(bucketName),
		Key:     aws.String(key),
		Body:    strings.NewReader("version three"),
		IfMatch: first.ETag,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PreconditionFailed")

	// Current ETag still works
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(bucketName),
		Key:     aws.String(key),
		Body:    strings.NewReader("version three"),
		IfMatch: second.ETag,
	})
	require.NoError(t, err)
}

func TestPutObjectIfMatchMissingKey(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	// If-Match on a key that does not exist is NoSuchKey, not 412
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(bucketName),
		Key:     aws.String("missing"),
		Body:    strings.NewReader("content"),
		IfMatch: aws.String(`"d41d8cd98f00b204e9800998ecf8427e"`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey")
}

func TestPutObjectIfNoneMatchConcurrent(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()

	// Many writers race on If-None-Match: * — exactly one may win.
	const writers = 16
	var successes atomic.Int32

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(bucketName),
				Key:         aws.String(key),
				Body:        strings.NewReader("winner"),
				IfNoneMatch: aws.String("*"),
			})
			if err == nil {
				successes.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), successes.Load())
}
