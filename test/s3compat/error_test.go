package s3compat

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harukado/kura/test/testutil"
)

// S3ErrorResponse represents the XML error response from S3.
type S3ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

func TestErrorResponseFormat(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	resp, err := http.Get(ts.Endpoint + "/non-existent-bucket/non-existent-key")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/xml")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var errorResp S3ErrorResponse
	err = xml.Unmarshal(body, &errorResp)
	require.NoError(t, err)

	assert.Equal(t, "NoSuchBucket", errorResp.Code)
	assert.NotEmpty(t, errorResp.Message)
	assert.NotEmpty(t, errorResp.RequestID)
}

func TestNoSuchBucketError(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	_, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("non-existent-bucket"),
		Key:    aws.String("some-key"),
	})
	require.Error(t, err)

	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NoSuchBucket", apiErr.ErrorCode())
}

func TestNoSuchVersionError(t *testing.T) {
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
		Body:   strings.NewReader("content"),
	})
	require.NoError(t, err)

	_, err = client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(bucketName),
		Key:       aws.String(key),
		VersionId: aws.String("00000000-0000-0000-0000-000000000000"),
	})
	require.Error(t, err)

	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NoSuchVersion", apiErr.ErrorCode())
}

func TestDeleteMarkerHeaderOnGet(t *testing.T) {
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
		Body:   strings.NewReader("content"),
	})
	require.NoError(t, err)

	del, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)

	// Latest is a marker: GET is 404 with the marker flag set
	resp, err := http.Get(ts.Endpoint + "/" + bucketName + "/" + key)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("x-amz-delete-marker"))

	// GET of the marker version itself is 405
	resp, err = http.Get(ts.Endpoint + "/" + bucketName + "/" + key + "?versionId=" + aws.ToString(del.VersionId))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("x-amz-delete-marker"))
}

func TestMethodNotAllowed(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	req, err := http.NewRequest(http.MethodPatch, ts.Endpoint+"/some-bucket", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
