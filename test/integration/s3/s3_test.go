//go:build integration

// Integration tests for the S3 blob store against Localstack or another
// S3-compatible endpoint.
//
// Run with:
//
//	LOCALSTACK_ENDPOINT=http://localhost:4566 go test -tags integration ./test/integration/s3/...
package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
	cass3 "github.com/marmos91/depotfs/pkg/cas/s3"
	castesting "github.com/marmos91/depotfs/pkg/cas/testing"
)

// setupTestS3 creates an S3 client and a test bucket, and returns a cleanup
// function that empties and deletes the bucket.
func setupTestS3(t *testing.T, bucketName string) (*s3.Client, func()) {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err, "failed to create test bucket (is Localstack running?)")

	cleanup := func() {
		emptyBucket(t, client, bucketName)
		_, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
		if err != nil {
			t.Logf("failed to delete test bucket %s: %v", bucketName, err)
		}
	}

	return client, cleanup
}

// emptyBucket deletes every object in the bucket.
func emptyBucket(t *testing.T, client *s3.Client, bucketName string) {
	t.Helper()
	ctx := context.Background()

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			t.Logf("failed to list objects in %s: %v", bucketName, err)
			return
		}
		for _, object := range page.Contents {
			_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucketName),
				Key:    object.Key,
			})
			if err != nil {
				t.Logf("failed to delete object %s: %v", aws.ToString(object.Key), err)
			}
		}
	}
}

func TestS3BlobStoreContract(t *testing.T) {
	bucketName := fmt.Sprintf("depotfs-test-%d", time.Now().UnixNano())
	client, cleanup := setupTestS3(t, bucketName)
	defer cleanup()

	suite := &castesting.BlobStoreTestSuite{
		NewStore: func() cas.BlobStore {
			store, err := cass3.NewBlobStore(context.Background(), cass3.BlobStoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("run-%d/", time.Now().UnixNano()),
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestS3BlobStoreKeyPrefix(t *testing.T) {
	bucketName := fmt.Sprintf("depotfs-test-prefix-%d", time.Now().UnixNano())
	client, cleanup := setupTestS3(t, bucketName)
	defer cleanup()

	ctx := context.Background()
	store, err := cass3.NewBlobStore(ctx, cass3.BlobStoreConfig{
		Client:    client,
		Bucket:    bucketName,
		KeyPrefix: "tenant-a/",
	})
	require.NoError(t, err)

	result, err := store.Put(ctx, []byte("prefixed content"), "text/plain", nil)
	require.NoError(t, err)

	// The object must land under the configured prefix.
	listing, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
		Prefix: aws.String("tenant-a/sha256/"),
	})
	require.NoError(t, err)
	require.Len(t, listing.Contents, 1)

	blob, err := store.Get(ctx, result.Key)
	require.NoError(t, err)
	require.Equal(t, []byte("prefixed content"), blob.Content)
}
