package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Client wraps Cloudflare R2's S3-compatible API for backup archive
// storage. R2 has no region concept, so "auto" is used as required by
// the S3 API surface.
type R2Client struct {
	client *s3.Client
	bucket string
}

// R2Config holds the credentials and bucket R2Client connects to.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// NewR2Client builds an S3 client pointed at Cloudflare R2's
// account-scoped S3 endpoint.
func NewR2Client(ctx context.Context, cfg R2Config) (*R2Client, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{client: client, bucket: cfg.Bucket}, nil
}

// Upload streams data to R2 at the given key, using the multipart
// uploader so large backup archives don't need to be buffered entirely
// in memory on the client side.
func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	uploader := manager.NewUploader(c.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("r2 upload failed for %s: %w", key, err)
	}
	return nil
}

// R2Object is the subset of S3 object metadata ListBackups needs.
type R2Object struct {
	Key  *string
	Size *int64
}

// List returns objects under the given key prefix.
func (c *R2Client) List(ctx context.Context, prefix string) ([]R2Object, error) {
	var out []R2Object

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("r2 list failed for prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, R2Object{Key: obj.Key, Size: obj.Size})
		}
	}

	return out, nil
}

// Delete removes a single object.
func (c *R2Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("r2 delete failed for %s: %w", key, err)
	}
	return nil
}
