package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// FileStorage abstracts the file-bytes collaborator. Upload returns a public URL for the stored object.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, name string) error
}

// StoredFile is the metadata kept for bytes handed to FileStorage.
type StoredFile struct {
	OriginalFilename string
	StoredFilename   string
	URL              string
	Size             int64
	MimeType         string
	Hash             string
}

// FileIntake validates uploaded bytes and places them in file storage.
type FileIntake interface {
	Store(ctx context.Context, files []dto.FileUpload) ([]StoredFile, error)
	Discard(ctx context.Context, storedNames []string)
}

var allowedSubmissionTypes = []string{
	"application/pdf",
	"application/zip",
	"text/plain",
	"text/markdown",
	"text/csv",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
}

type fileIntake struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
	now     func() time.Time
}

// NewFileIntake constructs the intake with a per-file size limit in megabytes.
func NewFileIntake(storage FileStorage, maxSizeMB int, logger zerolog.Logger) FileIntake {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &fileIntake{
		storage: storage,
		logger:  logger.With().Str("component", "file_intake").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/file_intake"),
		now:     time.Now,
	}
}

type checkedFile struct {
	upload dto.FileUpload
	mime   string
	hash   string
}

// Store validates every file before uploading any of them. If an upload fails, files already
// stored by this call are removed and ErrStorageUnavailable is returned.
func (s *fileIntake) Store(ctx context.Context, files []dto.FileUpload) ([]StoredFile, error) {
	if len(files) == 0 {
		return nil, nil
	}

	ctx, span := s.tracer.Start(ctx, "files.store")
	defer span.End()
	span.SetAttributes(attribute.Int("files.count", len(files)), attribute.Int64("files.max_bytes", s.maxSize))

	checked := make([]checkedFile, 0, len(files))
	for _, file := range files {
		c, err := s.check(file)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			return nil, err
		}
		checked = append(checked, c)
	}

	if s.storage == nil {
		span.SetStatus(codes.Error, "storage not configured")
		return nil, ErrStorageUnavailable
	}

	stored := make([]StoredFile, 0, len(checked))
	for _, c := range checked {
		start := s.now()
		name := storedFileName(c.upload.Name)
		url, err := s.storage.Upload(ctx, name, bytes.NewReader(c.upload.Data), int64(len(c.upload.Data)), c.mime)
		observability.UploadLatency().Observe(time.Since(start).Seconds())
		if err != nil {
			observability.UploadRejected().WithLabelValues("storage").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failed")
			s.logger.Error().Err(err).Str("file", c.upload.Name).Msg("file storage upload failed")
			s.Discard(ctx, storedNames(stored))
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		observability.UploadRequests().WithLabelValues(c.mime).Inc()
		stored = append(stored, StoredFile{
			OriginalFilename: strings.TrimSpace(c.upload.Name),
			StoredFilename:   name,
			URL:              url,
			Size:             int64(len(c.upload.Data)),
			MimeType:         c.mime,
			Hash:             c.hash,
		})
	}

	span.SetStatus(codes.Ok, "stored")
	return stored, nil
}

// Discard removes stored objects. Failures are logged only.
func (s *fileIntake) Discard(ctx context.Context, storedNames []string) {
	if s.storage == nil {
		return
	}
	for _, name := range storedNames {
		if err := s.storage.Delete(ctx, name); err != nil {
			s.logger.Warn().Err(err).Str("stored_filename", name).Msg("failed to delete stored file")
		}
	}
}

func (s *fileIntake) check(file dto.FileUpload) (checkedFile, error) {
	if strings.TrimSpace(file.Name) == "" {
		return checkedFile{}, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if len(file.Data) == 0 {
		return checkedFile{}, fmt.Errorf("%w: file %q is empty", ErrValidation, file.Name)
	}
	if int64(len(file.Data)) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return checkedFile{}, ErrUploadTooLarge
	}

	detected := mimetype.Detect(file.Data)
	mime := normalizeMime(detected)
	if !isAllowedType(detected) {
		observability.UploadRejected().WithLabelValues("type").Inc()
		return checkedFile{}, ErrUploadTypeNotAllowed
	}
	if err := s.scan(file.Data, mime); err != nil {
		observability.UploadRejected().WithLabelValues("scan").Inc()
		return checkedFile{}, err
	}

	checksum := sha256.Sum256(file.Data)
	return checkedFile{upload: file, mime: mime, hash: hex.EncodeToString(checksum[:])}, nil
}

func (s *fileIntake) scan(payload []byte, mime string) error {
	if mime != "application/zip" {
		return nil
	}
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return fmt.Errorf("%w: unreadable zip archive", ErrValidation)
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("%w: zip archive uncompressed size too large", ErrValidation)
		}
	}
	return nil
}

func storedFileName(original string) string {
	return fmt.Sprintf("submissions/%s-%s", uuid.NewString(), sanitizeFileName(original))
}

func storedNames(files []StoredFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.StoredFilename)
	}
	return names
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "file"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeMime(m *mimetype.MIME) string {
	value := strings.ToLower(m.String())
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	if value == "application/x-zip-compressed" {
		return "application/zip"
	}
	return value
}

func isAllowedType(m *mimetype.MIME) bool {
	if strings.HasPrefix(m.String(), "image/") {
		return true
	}
	for _, allowed := range allowedSubmissionTypes {
		if m.Is(allowed) {
			return true
		}
	}
	return false
}
