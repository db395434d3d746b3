package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// GradingService encapsulates manual grading workflows for teachers.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint, payload dto.GradeRequest, actor ActivityActor) (dto.SubmissionResponse, error)
	// BulkGrade commits every item in its own transaction. A failed item is reported and never
	// rolls back the items before it.
	BulkGrade(ctx context.Context, payload dto.BulkGradeRequest, actor ActivityActor) (dto.BulkGradeResponse, error)
}

type gradingService struct {
	uow       repository.UnitOfWork
	validator *validator.Validate
	writer    *gradeWriter
	effects   gradingEffects
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// gradeWriter writes teacher grades. It is shared by manual, bulk and rubric grading.
type gradeWriter struct {
	capMode   grading.CapMode
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

func newGradeWriter(capMode grading.CapMode) *gradeWriter {
	if capMode == "" {
		capMode = grading.CapFreeze
	}
	return &gradeWriter{capMode: capMode, sanitizer: bluemonday.UGCPolicy(), now: time.Now}
}

// NewGradingService constructs the grading service.
func NewGradingService(uow repository.UnitOfWork, validate *validator.Validate, capMode grading.CapMode, activity ActivityRecorder, notifier Notifier, analytics AnalyticsInvalidator, logger zerolog.Logger) GradingService {
	log := logger.With().Str("component", "grading_service").Logger()
	return &gradingService{
		uow:       uow,
		validator: validate,
		writer:    newGradeWriter(capMode),
		effects:   gradingEffects{activity: activity, notifier: notifier, analytics: analytics, logger: log},
		logger:    log,
		tracer:    otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/grading"),
	}
}

// gradeOutcome is what a committed manual grade leaves behind.
type gradeOutcome struct {
	submission models.Submission
	penalty    *models.LateSubmissionRecord
	unchanged  bool
}

func (o gradeOutcome) response() dto.SubmissionResponse {
	response := dto.NewSubmissionResponse(o.submission)
	if o.penalty != nil {
		late := dto.NewLatePenaltyResponse(*o.penalty)
		response.LatePenalty = &late
	}
	return response
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint, payload dto.GradeRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.update", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	var outcome gradeOutcome
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		var err error
		outcome, err = s.writer.apply(ctx, repos, submissionID, payload.Grade, payload.Feedback, models.GradeSourceManual, actor)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_failed")
		return dto.SubmissionResponse{}, err
	}

	span.SetAttributes(attribute.Bool("grading.idempotent", outcome.unchanged))
	if !outcome.unchanged {
		s.afterGrade(ctx, outcome, actor, ActionSubmissionGraded)
	}
	return outcome.response(), nil
}

func (s *gradingService) BulkGrade(ctx context.Context, payload dto.BulkGradeRequest, actor ActivityActor) (dto.BulkGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.bulk", trace.WithAttributes(
		attribute.Int("grading.items", len(payload.Items)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.BulkGradeResponse{}, err
	}

	response := dto.BulkGradeResponse{
		Graded: make([]dto.SubmissionResponse, 0, len(payload.Items)),
		Failed: make([]dto.BulkGradeFailure, 0),
	}
	for _, item := range payload.Items {
		if err := ctx.Err(); err != nil {
			response.Failed = append(response.Failed, dto.BulkGradeFailure{
				SubmissionID: item.SubmissionID,
				Kind:         string(KindOf(err)),
				Message:      PublicMessage(err),
			})
			continue
		}

		var outcome gradeOutcome
		err := s.uow.Do(ctx, func(repos repository.Repositories) error {
			var err error
			outcome, err = s.writer.apply(ctx, repos, item.SubmissionID, item.Grade, item.Feedback, models.GradeSourceManual, actor)
			return err
		})
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", item.SubmissionID).Msg("bulk grade item failed")
			response.Failed = append(response.Failed, dto.BulkGradeFailure{
				SubmissionID: item.SubmissionID,
				Kind:         string(KindOf(err)),
				Message:      PublicMessage(err),
			})
			continue
		}

		if !outcome.unchanged {
			s.afterGrade(ctx, outcome, actor, ActionBulkGraded)
		}
		response.Graded = append(response.Graded, outcome.response())
	}

	span.SetAttributes(attribute.Int("grading.graded", len(response.Graded)), attribute.Int("grading.failed", len(response.Failed)))
	return response, nil
}

// apply writes a teacher's grade as the new raw grade and reconciles the late penalty against it.
// It must run inside a unit of work.
func (s *gradeWriter) apply(ctx context.Context, repos repository.Repositories, submissionID uint, score float64, feedback string, source models.GradeSource, actor ActivityActor) (gradeOutcome, error) {
	submission, err := repos.Submissions.GetByIDForUpdate(ctx, submissionID)
	if err != nil {
		return gradeOutcome{}, notFound(err, ErrSubmissionNotFound)
	}
	if !submission.IsFinal() {
		return gradeOutcome{}, ErrSubmissionNotFinal
	}

	maxScore := submission.Assignment.EffectiveMaxScore()
	if score < 0 || score > maxScore+1e-9 {
		return gradeOutcome{}, ErrGradeOutOfRange
	}

	raw := grading.Round2(score)
	cleanFeedback := strings.TrimSpace(s.sanitizer.Sanitize(feedback))

	if submission.IsGraded() && sameGrade(submission.RawGrade, &raw) &&
		strings.TrimSpace(submission.Feedback) == cleanFeedback &&
		submission.GradedBy != nil && *submission.GradedBy == actor.ID {
		record, err := repos.LatePenalties.GetBySubmission(ctx, submission.ID)
		if err == nil {
			return gradeOutcome{submission: submission, penalty: &record, unchanged: true}, nil
		}
		return gradeOutcome{submission: submission, unchanged: true}, nil
	}

	gradedAt := s.now()
	submission.RawGrade = floatPtr(raw)
	submission.Grade = floatPtr(raw)
	submission.Feedback = cleanFeedback
	submission.Status = models.SubmissionStatusGraded
	submission.GradedBy = uintPtr(actor.ID)
	submission.GradedAt = &gradedAt

	record, err := reconcileLatePenalty(ctx, repos, &submission, s.capMode)
	if err != nil {
		return gradeOutcome{}, err
	}
	if err := repos.Submissions.Update(ctx, &submission); err != nil {
		return gradeOutcome{}, err
	}
	if err := appendHistory(ctx, repos, submission, raw, cleanFeedback, source, uintPtr(actor.ID), gradedAt); err != nil {
		return gradeOutcome{}, err
	}
	if record != nil && !sameGrade(submission.Grade, &raw) {
		if err := appendHistory(ctx, repos, submission, *submission.Grade, "", models.GradeSourcePenalty, nil, gradedAt); err != nil {
			return gradeOutcome{}, err
		}
	}

	return gradeOutcome{submission: submission, penalty: record}, nil
}

func (s *gradingService) afterGrade(ctx context.Context, outcome gradeOutcome, actor ActivityActor, action string) {
	submission := outcome.submission
	metadata := map[string]interface{}{
		"assignment_id": submission.AssignmentID,
		"student_id":    submission.StudentID,
		"raw_grade":     *submission.RawGrade,
		"grade":         *submission.Grade,
	}
	if outcome.penalty != nil {
		metadata["penalty_percentage"] = outcome.penalty.PenaltyPercentage
	}
	s.effects.record(ctx, actor, action, "submission", submission.ID, metadata)
	s.effects.notify(ctx, EventSubmissionGraded, submission, "Your submission has been graded.")
	s.effects.invalidate(ctx, submission.Assignment)
}
