package spcline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures snapshot upload to S3 or S3-compatible storage.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // For S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer using IAM roles, instance
	// profiles, or environment variables (AWS_ACCESS_KEY_ID,
	// AWS_SECRET_ACCESS_KEY) instead of setting these directly.
	// DO NOT commit credentials to source control.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`         // Key prefix for all objects
	UsePathStyle    bool   `yaml:"use_path_style"` // Use path-style addressing

	// MaxRetries is the max retry attempts for S3 operations (default: 3)
	MaxRetries int `yaml:"max_retries"`
}

// S3SnapshotClient pushes snapshot archives to object storage and pulls
// them back. Every operation retries transient failures with backoff.
type S3SnapshotClient struct {
	client  *s3.Client
	config  S3Config
	retryer *Retryer
}

// NewS3SnapshotClient creates a snapshot client for the configured bucket.
func NewS3SnapshotClient(cfg S3Config) (*S3SnapshotClient, error) {
	if cfg.Bucket == "" {
		return nil, newSnapshotError("s3", errors.New("bucket is required"))
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, newSnapshotError("s3", fmt.Errorf("load AWS config: %w", err))
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3SnapshotClient{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
		}),
	}, nil
}

// Upload pushes one snapshot archive under the configured prefix.
func (c *S3SnapshotClient) Upload(ctx context.Context, name string, data []byte) error {
	key := c.config.Prefix + name
	return c.retryer.Do(ctx, func() error {
		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.config.Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return newSnapshotError("upload", err)
		}
		return nil
	})
}

// Download pulls one snapshot archive.
func (c *S3SnapshotClient) Download(ctx context.Context, name string) ([]byte, error) {
	key := c.config.Prefix + name
	var data []byte
	err := c.retryer.Do(ctx, func() error {
		resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.config.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *s3types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return newSnapshotError("download", fmt.Errorf("no snapshot %q", name))
			}
			return newSnapshotError("download", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return newSnapshotError("download", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List returns the snapshot names under the configured prefix.
func (c *S3SnapshotClient) List(ctx context.Context) ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.Bucket),
		Prefix: aws.String(c.config.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newSnapshotError("list", err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(*obj.Key, c.config.Prefix))
		}
	}
	return names, nil
}

// Delete removes one snapshot archive.
func (c *S3SnapshotClient) Delete(ctx context.Context, name string) error {
	key := c.config.Prefix + name
	return c.retryer.Do(ctx, func() error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.config.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return newSnapshotError("delete", err)
		}
		return nil
	})
}
