package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appconfig "github.com/semmidev/donky/internal/config"
)

// S3Source downloads obfuscation scripts from an S3 compatible bucket.
type S3Source struct {
	client     *s3.Client
	downloader *s3manager.Downloader
	bucket     string
}

// NewS3 creates a new S3Source using AWS SDK v2. Static keys are optional; the
// default credential chain is used without them.
func NewS3(ctx context.Context, cfg appconfig.ScriptConfig) (*S3Source, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Source{
		client:     client,
		downloader: s3manager.NewDownloader(client),
		bucket:     cfg.Bucket,
	}, nil
}

func (s *S3Source) Name() string {
	return "s3"
}

// Fetch downloads the object at key ref into destDir.
func (s *S3Source) Fetch(ctx context.Context, ref string, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dest directory: %w", err)
	}
	destPath := filepath.Join(destDir, path.Base(ref))

	file, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	_, err = s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("failed to download s3://%s/%s: %w", s.bucket, ref, err)
	}

	return destPath, nil
}
