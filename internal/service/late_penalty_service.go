package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// LatePenaltyService applies and waives late submission penalties.
type LatePenaltyService interface {
	ApplyLatePenalty(ctx context.Context, submissionID uint) (*dto.LatePenaltyResponse, error)
	WaiveLatePenalty(ctx context.Context, submissionID uint, payload dto.WaiveLatePenaltyRequest, actor ActivityActor) (dto.LatePenaltyResponse, error)
	GetLatePenalty(ctx context.Context, submissionID uint) (dto.LatePenaltyResponse, error)
}

type latePenaltyService struct {
	uow       repository.UnitOfWork
	validator *validator.Validate
	capMode   grading.CapMode
	sanitizer *bluemonday.Policy
	effects   gradingEffects
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewLatePenaltyService constructs the late penalty service.
func NewLatePenaltyService(uow repository.UnitOfWork, validate *validator.Validate, capMode grading.CapMode, activity ActivityRecorder, notifier Notifier, analytics AnalyticsInvalidator, logger zerolog.Logger) LatePenaltyService {
	if capMode == "" {
		capMode = grading.CapFreeze
	}
	log := logger.With().Str("component", "late_penalty_service").Logger()
	return &latePenaltyService{
		uow:       uow,
		validator: validate,
		capMode:   capMode,
		sanitizer: bluemonday.StrictPolicy(),
		effects:   gradingEffects{activity: activity, notifier: notifier, analytics: analytics, logger: log},
		logger:    log,
		tracer:    otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/late_penalty"),
		now:       time.Now,
	}
}

func (s *latePenaltyService) ApplyLatePenalty(ctx context.Context, submissionID uint) (*dto.LatePenaltyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "late_penalty.apply", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
	))
	defer span.End()

	var (
		submission models.Submission
		record     *models.LateSubmissionRecord
		changed    bool
	)
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		var err error
		submission, err = repos.Submissions.GetByIDForUpdate(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrSubmissionNotFound)
		}

		previous := submission.Grade
		record, err = reconcileLatePenalty(ctx, repos, &submission, s.capMode)
		if err != nil {
			return err
		}
		if sameGrade(previous, submission.Grade) {
			return nil
		}

		changed = true
		if err := repos.Submissions.Update(ctx, &submission); err != nil {
			return err
		}
		if record != nil && submission.Grade != nil {
			return appendHistory(ctx, repos, submission, *submission.Grade, "", models.GradeSourcePenalty, nil, s.now())
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply_failed")
		return nil, err
	}

	if record == nil {
		span.SetAttributes(attribute.Bool("late_penalty.applied", false))
		return nil, nil
	}

	span.SetAttributes(
		attribute.Int("late_penalty.days_late", record.DaysLate),
		attribute.Float64("late_penalty.percentage", record.PenaltyPercentage),
	)
	if changed {
		observability.LatePenalties().WithLabelValues("applied").Inc()
		s.effects.notify(ctx, EventPenaltyApplied, submission, "A late penalty was applied to your submission.")
		s.effects.invalidate(ctx, submission.Assignment)
	}

	response := dto.NewLatePenaltyResponse(*record)
	return &response, nil
}

func (s *latePenaltyService) WaiveLatePenalty(ctx context.Context, submissionID uint, payload dto.WaiveLatePenaltyRequest, actor ActivityActor) (dto.LatePenaltyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "late_penalty.waive", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	payload.Reason = strings.TrimSpace(s.sanitizer.Sanitize(payload.Reason))
	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.LatePenaltyResponse{}, err
	}

	var (
		submission models.Submission
		record     models.LateSubmissionRecord
	)
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		var err error
		submission, err = repos.Submissions.GetByIDForUpdate(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrSubmissionNotFound)
		}
		record, err = repos.LatePenalties.GetBySubmission(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrLatePenaltyNotFound)
		}
		if record.IsWaived() {
			return ErrPenaltyAlreadyWaived
		}

		waivedAt := s.now()
		record.WaivedBy = uintPtr(actor.ID)
		record.WaivedReason = payload.Reason
		record.WaivedAt = &waivedAt
		if err := repos.LatePenalties.Save(ctx, &record); err != nil {
			return err
		}

		submission.Grade = floatPtr(record.OriginalGrade)
		if err := repos.Submissions.Update(ctx, &submission); err != nil {
			return err
		}
		return appendHistory(ctx, repos, submission, record.OriginalGrade, payload.Reason, models.GradeSourceWaiver, uintPtr(actor.ID), waivedAt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "waive_failed")
		return dto.LatePenaltyResponse{}, err
	}

	observability.LatePenalties().WithLabelValues("waived").Inc()
	s.effects.record(ctx, actor, ActionPenaltyWaived, "submission", submission.ID, map[string]interface{}{
		"assignment_id":      submission.AssignmentID,
		"student_id":         submission.StudentID,
		"penalty_percentage": record.PenaltyPercentage,
		"original_grade":     record.OriginalGrade,
		"reason":             record.WaivedReason,
	})
	s.effects.notify(ctx, EventPenaltyWaived, submission, "The late penalty on your submission was waived.")
	s.effects.invalidate(ctx, submission.Assignment)

	s.logger.Info().Uint("submission_id", submission.ID).Uint("waived_by", actor.ID).Msg("late penalty waived")
	return dto.NewLatePenaltyResponse(record), nil
}

func (s *latePenaltyService) GetLatePenalty(ctx context.Context, submissionID uint) (dto.LatePenaltyResponse, error) {
	record, err := s.uow.Repositories().LatePenalties.GetBySubmission(ctx, submissionID)
	if err != nil {
		return dto.LatePenaltyResponse{}, notFound(err, ErrLatePenaltyNotFound)
	}
	return dto.NewLatePenaltyResponse(record), nil
}

// reconcileLatePenalty brings the late record and the live grade of submission in line with its raw
// grade, submission time and the assignment policy. The penalty is always derived from RawGrade, so
// repeated calls never stack. A waiver survives regrading and keeps the live grade at the raw grade.
// The caller persists submission.
func reconcileLatePenalty(ctx context.Context, repos repository.Repositories, submission *models.Submission, mode grading.CapMode) (*models.LateSubmissionRecord, error) {
	reset := func() (*models.LateSubmissionRecord, error) {
		submission.Grade = submission.RawGrade
		if err := repos.LatePenalties.DeleteBySubmission(ctx, submission.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if submission.RawGrade == nil || submission.SubmittedAt == nil {
		return reset()
	}

	assignment := submission.Assignment
	assessment := grading.AssessLateness(assignment.DueDate, *submission.SubmittedAt, latePolicy(assignment), mode)
	if !assessment.IsLate() || !assessment.Accepted {
		return reset()
	}

	record, err := repos.LatePenalties.GetBySubmission(ctx, submission.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		record = models.LateSubmissionRecord{SubmissionID: submission.ID}
	}

	raw := *submission.RawGrade
	record.VersionNumber = submission.LatestVersion
	record.DaysLate = assessment.DaysLate
	record.PenaltyPercentage = assessment.PenaltyPercentage
	record.OriginalGrade = raw
	record.FinalGrade = grading.ApplyPenalty(raw, assessment.PenaltyPercentage)
	if err := repos.LatePenalties.Save(ctx, &record); err != nil {
		return nil, err
	}

	submission.Grade = floatPtr(record.EffectiveGrade())
	return &record, nil
}

func latePolicy(assignment models.Assignment) grading.LatePolicy {
	return grading.LatePolicy{
		AllowLate:     assignment.AllowLateSubmissions,
		PenaltyPerDay: assignment.LateSubmissionPenalty,
		MaxLateDays:   assignment.MaxLateDays,
	}
}
