// Package storage provides the blob fetch capability used by batch indexing
// to resolve source keys to image bytes, backed by Amazon S3 or any
// S3-compatible object store (MinIO, R2, etc.).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrObjectNotFound is returned when the requested key does not exist in the
// bucket.
var ErrObjectNotFound = errors.New("storage: object not found")

// Fetcher resolves a source reference to image bytes. Batch indexing treats
// each fetch failure as a per-item error, not a batch failure.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// S3API abstracts the S3 operations used by S3Fetcher.
// The s3.Client type satisfies this interface.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches objects from a single bucket.
type S3Fetcher struct {
	client S3API
	bucket string
}

// NewS3Fetcher creates a fetcher for the given pre-configured client and bucket.
func NewS3Fetcher(client S3API, bucket string) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket}
}

// Config holds the connection settings for an S3-compatible store.
type Config struct {
	Endpoint  string // empty for AWS S3
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an s3.Client from static credentials, honoring a custom
// endpoint for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// Fetch downloads the object at key and returns its bytes.
// Returns an error wrapping ErrObjectNotFound when the key does not exist.
func (f *S3Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("fetch %s: %w", key, ErrObjectNotFound)
		}

		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return data, nil
}

// isS3NotFound reports whether err is an S3 NoSuchKey/NotFound error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	return false
}
