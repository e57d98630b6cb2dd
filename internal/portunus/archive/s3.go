// Package archive uploads the exported event log to S3-compatible
// storage before it is cleared.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, e.g. MinIO
	PathStyle bool
	Prefix    string
	DeviceID  string

	// Static credentials; empty falls back to the default chain.
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores archives at <prefix><device>/<name>.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	device string
}

func NewS3(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})

	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, device: cfg.DeviceID}, nil
}

// Key returns the object key for an archive name.
func (a *S3) Key(name string) string {
	return a.prefix + path.Join(a.device, name)
}

func (a *S3) Archive(ctx context.Context, name string, body io.Reader) error {
	// The SDK needs a seekable body to sign and checksum.
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("s3 archive: read body: %w", err)
	}
	key := a.Key(name)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("s3 archive: put %s: %w", key, err)
	}
	return nil
}
