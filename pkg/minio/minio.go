package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config contains the connection settings of an S3 compatible object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service stores submission files in a MinIO bucket.
type Service struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create minio bucket: %w", err)
		}
	}

	return &Service{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "minio").Logger(),
	}, nil
}

// Upload writes the object and returns its URL.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, name, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Info().Str("object", info.Key).Int64("size", info.Size).Msg("file uploaded to minio")

	return s.objectURL(name), nil
}

// Delete removes the object. Removing a missing object succeeds.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *Service) objectURL(name string) string {
	endpoint := strings.TrimSuffix(s.client.EndpointURL().String(), "/")
	return fmt.Sprintf("%s/%s/%s", endpoint, s.bucket, name)
}
