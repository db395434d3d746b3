package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// PlagiarismService stores similarity reports produced by an external checker, one per version.
type PlagiarismService interface {
	RecordReport(ctx context.Context, submissionID uint, versionNumber int, payload dto.PlagiarismReportRequest, actor ActivityActor) (dto.PlagiarismReportResponse, error)
	GetReport(ctx context.Context, submissionID uint, versionNumber int) (dto.PlagiarismReportResponse, error)
}

type plagiarismService struct {
	uow       repository.UnitOfWork
	validator *validator.Validate
	effects   gradingEffects
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPlagiarismService constructs the plagiarism report service.
func NewPlagiarismService(uow repository.UnitOfWork, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) PlagiarismService {
	log := logger.With().Str("component", "plagiarism_service").Logger()
	return &plagiarismService{
		uow:       uow,
		validator: validate,
		effects:   gradingEffects{activity: activity, logger: log},
		logger:    log,
		now:       time.Now,
	}
}

func (s *plagiarismService) RecordReport(ctx context.Context, submissionID uint, versionNumber int, payload dto.PlagiarismReportRequest, actor ActivityActor) (dto.PlagiarismReportResponse, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if err := s.validator.Struct(payload); err != nil {
		return dto.PlagiarismReportResponse{}, err
	}

	report := datatypes.JSON([]byte("{}"))
	if len(payload.Report) > 0 {
		if !json.Valid(payload.Report) {
			return dto.PlagiarismReportResponse{}, fmt.Errorf("%w: report must be valid JSON", ErrValidation)
		}
		report = datatypes.JSON(payload.Report)
	}
	checkedAt := s.now().UTC()
	if payload.CheckedAt != nil {
		checkedAt = payload.CheckedAt.UTC()
	}

	model := models.PlagiarismReport{
		Provider:        payload.Provider,
		SimilarityScore: payload.SimilarityScore,
		Report:          report,
		CheckedAt:       checkedAt,
	}
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		version, err := repos.Versions.GetByNumber(ctx, submissionID, versionNumber)
		if err != nil {
			return notFound(err, ErrVersionNotFound)
		}
		model.VersionID = version.ID
		if err := repos.Plagiarism.Upsert(ctx, &model); err != nil {
			return err
		}
		model, err = repos.Plagiarism.GetByVersion(ctx, version.ID)
		return err
	})
	if err != nil {
		return dto.PlagiarismReportResponse{}, err
	}

	s.effects.record(ctx, actor, ActionPlagiarismChecked, "submission", submissionID, map[string]interface{}{
		"version_number":   versionNumber,
		"provider":         model.Provider,
		"similarity_score": model.SimilarityScore,
	})
	return plagiarismResponse(submissionID, versionNumber, model), nil
}

func (s *plagiarismService) GetReport(ctx context.Context, submissionID uint, versionNumber int) (dto.PlagiarismReportResponse, error) {
	repos := s.uow.Repositories()
	version, err := repos.Versions.GetByNumber(ctx, submissionID, versionNumber)
	if err != nil {
		return dto.PlagiarismReportResponse{}, notFound(err, ErrVersionNotFound)
	}
	model, err := repos.Plagiarism.GetByVersion(ctx, version.ID)
	if err != nil {
		return dto.PlagiarismReportResponse{}, notFound(err, ErrPlagiarismReportNotFound)
	}
	return plagiarismResponse(submissionID, versionNumber, model), nil
}

func plagiarismResponse(submissionID uint, versionNumber int, model models.PlagiarismReport) dto.PlagiarismReportResponse {
	return dto.PlagiarismReportResponse{
		SubmissionID:    submissionID,
		VersionNumber:   versionNumber,
		Provider:        model.Provider,
		SimilarityScore: model.SimilarityScore,
		Report:          json.RawMessage(model.Report),
		CheckedAt:       model.CheckedAt,
	}
}
