// Package s3 wraps the AWS S3 client for reading deployment secrets.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mikepodsy/my-finance-app/internal/config"
)

// MaxObjectSize caps how much of an object FetchObject reads.
const MaxObjectSize = 64 << 10

// ErrObjectTooLarge is returned when an object exceeds MaxObjectSize.
var ErrObjectTooLarge = errors.New("s3 object too large")

// Client wraps the S3 client
type Client struct {
	*s3.Client
}

// NewClient creates an S3 client. Static credentials are used when both keys
// are configured; otherwise the default AWS credential chain applies. A
// custom endpoint switches to path-style addressing for S3-compatible stores.
func NewClient(ctx context.Context, cfg config.S3Config) (*Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("S3 client initialized", "region", cfg.Region, "endpoint", cfg.Endpoint)
	return &Client{Client: client}, nil
}

// FetchObject reads the object at bucket/key into memory.
func (c *Client) FetchObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	if len(data) > MaxObjectSize {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}
