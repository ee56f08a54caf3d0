// Package source constructs content fetchers from configuration: the Dropbox
// API itself, or an S3 bucket holding previously mirrored revision blobs.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"packrat-go/internal/config"
	"packrat-go/internal/replay"
	"packrat-go/internal/retry"
)

// s3API is the S3 surface the mirror uses, abstracted for tests.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Mirror fetches revision content from an S3 bucket where blobs are stored
// under <prefix>/<revision>. It serves replay only; it holds content, not
// history.
type S3Mirror struct {
	client s3API
	bucket string
	prefix string
	retry  retry.Policy
}

// NewS3Mirror creates a mirror from the source configuration, using the
// default AWS credential chain.
func NewS3Mirror(ctx context.Context, cfg config.SourceConfig) (*S3Mirror, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 source requires s3_bucket to be set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	return &S3Mirror{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
		retry:  retry.Default(),
	}, nil
}

// Fetch downloads the blob for the given revision into destPath.
func (m *S3Mirror) Fetch(ctx context.Context, revision string, destPath string) error {
	key := path.Join(m.prefix, revision)

	return m.retry.Do(ctx, func() error {
		out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("getting s3://%s/%s: %w", m.bucket, key, err)
		}
		defer out.Body.Close()

		f, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("creating %q: %w", destPath, err)
		}
		if _, err := io.Copy(f, out.Body); err != nil {
			f.Close()
			return fmt.Errorf("writing %q: %w", destPath, err)
		}
		return f.Close()
	})
}

// Compile-time check that S3Mirror implements replay.Fetcher
var _ replay.Fetcher = (*S3Mirror)(nil)
