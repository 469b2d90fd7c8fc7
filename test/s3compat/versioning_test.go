package s3compat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/harukado/kura/test/testutil"
)

func enableVersioning(t *testing.T, client *s3.Client, bucket string) {
	t.Helper()
	_, err := client.PutBucketVersioning(context.Background(), &s3.PutBucketVersioningInput{
		Bucket: aws.String(bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	require.NoError(t, err)
}

func suspendVersioning(t *testing.T, client *s3.Client, bucket string) {
	t.Helper()
	_, err := client.PutBucketVersioning(context.Background(), &s3.PutBucketVersioningInput{
		Bucket: aws.String(bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusSuspended,
		},
	})
	require.NoError(t, err)
}

func TestGetBucketVersioningNeverEnabled(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	result, err := client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)

	// Never-enabled buckets report no status at all
	assert.Empty(t, result.Status)
}

func TestPutBucketVersioningLifecycle(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	result, err := client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)
	assert.Equal(t, types.BucketVersioningStatusEnabled, result.Status)

	suspendVersioning(t, client, bucketName)

	result, err = client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)
	assert.Equal(t, types.BucketVersioningStatusSuspended, result.Status)
}

func TestPutObjectVersioned(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	key := testutil.RandomObjectKey()

	// Each write produces a distinct version
	v1, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("one"),
	})
	require.NoError(t, err)
	require.NotNil(t, v1.VersionId)

	v2, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("two"),
	})
	require.NoError(t, err)
	require.NotNil(t, v2.VersionId)
	assert.NotEqual(t, aws.ToString(v1.VersionId), aws.ToString(v2.VersionId))

	// Plain GET returns the latest
	latest, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	body, _ := io.ReadAll(latest.Body)
	latest.Body.Close()
	assert.Equal(t, "two", string(body))

	// GET by version retrieves the older write
	old, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(bucketName),
		Key:       aws.String(key),
		VersionId: v1.VersionId,
	})
	require.NoError(t, err)
	body, _ = io.ReadAll(old.Body)
	old.Body.Close()
	assert.Equal(t, "one", string(body))
}

func TestDeleteObjectCreatesMarker(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	key := testutil.RandomObjectKey()

	put, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("content"),
	})
	require.NoError(t, err)

	del, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	assert.True(t, aws.ToBool(del.DeleteMarker))
	require.NotNil(t, del.VersionId)

	// Latest is now a delete marker: plain GET is 404
	_, err = client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.Error(t, err)
	var noSuchKey *types.NoSuchKey
	assert.ErrorAs(t, err, &noSuchKey)

	// The data version is still reachable explicitly
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(bucketName),
		Key:       aws.String(key),
		VersionId: put.VersionId,
	})
	require.NoError(t, err)
	body, _ := io.ReadAll(result.Body)
	result.Body.Close()
	assert.Equal(t, "content", string(body))
}

func TestDeleteSpecificVersionPromotesPrevious(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	key := testutil.RandomObjectKey()

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("one"),
	})
	require.NoError(t, err)

	v2, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("two"),
	})
	require.NoError(t, err)

	// Deleting the latest version by id removes it permanently, no
	// marker, and the previous version becomes latest again.
	del, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(bucketName),
		Key:       aws.String(key),
		VersionId: v2.VersionId,
	})
	require.NoError(t, err)
	assert.False(t, aws.ToBool(del.DeleteMarker))

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	body, _ := io.ReadAll(result.Body)
	result.Body.Close()
	assert.Equal(t, "one", string(body))
}

func TestRemoveDeleteMarkerRestoresObject(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	key := testutil.RandomObjectKey()

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("restored"),
	})
	require.NoError(t, err)

	del, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)

	// Deleting the marker itself brings the object back
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(bucketName),
		Key:       aws.String(key),
		VersionId: del.VersionId,
	})
	require.NoError(t, err)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	body, _ := io.ReadAll(result.Body)
	result.Body.Close()
	assert.Equal(t, "restored", string(body))
}

func TestSuspendedVersioningNullVersion(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()

	// Write before versioning was ever enabled: occupies the null slot
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("pre-versioning"),
	})
	require.NoError(t, err)

	enableVersioning(t, client, bucketName)

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("versioned"),
	})
	require.NoError(t, err)

	suspendVersioning(t, client, bucketName)

	// Suspended writes report the literal null version id
	put, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   strings.NewReader("suspended"),
	})
	require.NoError(t, err)
	assert.Equal(t, "null", aws.ToString(put.VersionId))

	// The null version is addressable by id
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(bucketName),
		Key:       aws.String(key),
		VersionId: aws.String("null"),
	})
	require.NoError(t, err)
	body, _ := io.ReadAll(result.Body)
	result.Body.Close()
	assert.Equal(t, "suspended", string(body))
}

func TestListObjectVersions(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	key := testutil.RandomObjectKey()

	for _, content := range []string{"one", "two", "three"} {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String(key),
			Body:   strings.NewReader(content),
		})
		require.NoError(t, err)
	}

	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)

	result, err := client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)

	require.Len(t, result.Versions, 3)
	require.Len(t, result.DeleteMarkers, 1)

	// The marker is the latest entry for the key
	assert.True(t, aws.ToBool(result.DeleteMarkers[0].IsLatest))
	for _, v := range result.Versions {
		assert.False(t, aws.ToBool(v.IsLatest))
	}
}

func TestListObjectVersionsPagination(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	enableVersioning(t, client, bucketName)

	// Three versions each of three keys
	for _, key := range []string{"pa", "pb", "pc"} {
		for i := 0; i < 3; i++ {
			_, err := client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(bucketName),
				Key:    aws.String(key),
				Body:   strings.NewReader("v"),
			})
			require.NoError(t, err)
		}
	}

	seen := map[string]int{}
	var keyMarker, versionMarker *string
	for {
		result, err := client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          aws.String(bucketName),
			MaxKeys:         aws.Int32(2),
			KeyMarker:       keyMarker,
			VersionIdMarker: versionMarker,
		})
		require.NoError(t, err)

		for _, v := range result.Versions {
			seen[aws.ToString(v.Key)+"#"+aws.ToString(v.VersionId)]++
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		keyMarker = result.NextKeyMarker
		versionMarker = result.NextVersionIdMarker
	}

	require.Len(t, seen, 9)
	for entry, count := range seen {
		assert.Equal(t, 1, count, "version %s listed more than once", entry)
	}
}

func TestConcurrentPutsDistinctVersionIDs(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()
	enableVersioning(t, client, bucketName)

	key := "herd/doc"

	// Concurrent writers on a versioned bucket each commit their own
	// version; none is lost and no id is handed out twice.
	const writers = 16
	payloads := make([]string, writers)
	for i := range payloads {
		payloads[i] = fmt.Sprintf("revision-%d", i)
	}

	var mu sync.Mutex
	versionIDs := make(map[string]bool, writers)

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		body := payloads[i]
		g.Go(func() error {
			put, err := client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(bucketName),
				Key:    aws.String(key),
				Body:   strings.NewReader(body),
			})
			if err != nil {
				return err
			}
			mu.Lock()
			versionIDs[aws.ToString(put.VersionId)] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, versionIDs, writers)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Contains(t, payloads, string(data))

	versions, err := client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)
	assert.Len(t, versions.Versions, writers)
}
