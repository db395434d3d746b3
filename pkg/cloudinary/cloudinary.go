package cloudinary

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Submission files are stored as raw assets so deletes never need the original media type.
const resourceType = "raw"

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores submission files in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload sends the object to Cloudinary under name and returns its secure URL.
// Size and content type are detected by Cloudinary itself.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (string, error) {
	params := uploader.UploadParams{
		PublicID:     s.publicID(name),
		ResourceType: resourceType,
		Overwrite:    api.Bool(false),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Int64("size", size).
		Str("content_type", contentType).
		Msg("file uploaded to cloudinary")

	return result.SecureURL, nil
}

// Delete removes a previously uploaded object. Missing objects are not an error.
func (s *Service) Delete(ctx context.Context, name string) error {
	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     s.publicID(name),
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to delete asset: %s", result.Error.Message)
	}

	switch result.Result {
	case "ok", "not found":
		s.logger.Info().Str("public_id", s.publicID(name)).Str("result", result.Result).Msg("file removed from cloudinary")
		return nil
	default:
		return fmt.Errorf("failed to delete asset: unexpected result %q", result.Result)
	}
}

func (s *Service) publicID(name string) string {
	if s.folder == "" {
		return name
	}
	return s.folder + "/" + name
}
