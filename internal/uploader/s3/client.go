// Package s3 implements the S3 upload backend on top of the AWS upload
// manager, which handles multipart transfers for large recordings.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"tablodl/internal/logctx"
)

type Client struct {
	s3client *awss3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewClient builds an S3 backend. Static credentials are optional; when
// absent the default AWS credential chain applies.
func NewClient(ctx context.Context, bucket, prefix, region, accessKeyID, secretAccessKey string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	s3client := awss3.NewFromConfig(cfg)

	return &Client{
		s3client: s3client,
		uploader: manager.NewUploader(s3client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}, nil
}

func (c *Client) Name() string { return "s3" }

// Authenticate verifies the credentials can see the target bucket.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "authenticating with s3", "bucket", c.bucket)

	if _, err := c.s3client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", c.bucket, err)
	}

	return nil
}

// Upload streams one file to {prefix}/{name} and returns the object
// location.
func (c *Client) Upload(ctx context.Context, r io.Reader, name string, size int64) (string, error) {
	key := name
	if c.prefix != "" {
		key = c.prefix + "/" + name
	}

	result, err := c.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return result.Location, nil
}
