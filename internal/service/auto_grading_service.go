package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// AutoGradingService scores the objective questions of a final submission.
type AutoGradingService interface {
	// AutoGrade writes the raw objective score. It returns nil, and writes nothing, when the
	// assignment has auto-grading disabled or no objective rules.
	AutoGrade(ctx context.Context, submissionID uint) (*dto.AutoGradeResponse, error)
}

type autoGradingService struct {
	uow     repository.UnitOfWork
	effects gradingEffects
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewAutoGradingService constructs the objective grader.
func NewAutoGradingService(uow repository.UnitOfWork, activity ActivityRecorder, notifier Notifier, analytics AnalyticsInvalidator, logger zerolog.Logger) AutoGradingService {
	log := logger.With().Str("component", "auto_grading_service").Logger()
	return &autoGradingService{
		uow:     uow,
		effects: gradingEffects{activity: activity, notifier: notifier, analytics: analytics, logger: log},
		logger:  log,
		tracer:  otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/auto_grading"),
		now:     time.Now,
	}
}

func (s *autoGradingService) AutoGrade(ctx context.Context, submissionID uint) (*dto.AutoGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.auto", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
	))
	defer span.End()

	var (
		submission models.Submission
		result     grading.ObjectiveResult
		graded     bool
	)
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		var err error
		submission, err = repos.Submissions.GetByIDForUpdate(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrSubmissionNotFound)
		}
		if !submission.IsFinal() {
			return ErrSubmissionNotFinal
		}
		if submission.GradedBy != nil {
			return ErrManuallyGraded
		}

		assignment := submission.Assignment
		if !assignment.AutoGradingEnabled {
			return nil
		}

		stored, err := repos.Rules.ListByAssignment(ctx, assignment.ID)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			return nil
		}
		rules, err := rulesFromModels(stored)
		if err != nil {
			return err
		}

		version, err := repos.Versions.Latest(ctx, submission.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoVersions
			}
			return err
		}

		result = grading.GradeObjective(dto.DecodeAnswers(version.QuizAnswers), rules)
		if result.Score == nil {
			return nil
		}

		manual := true
		if questions, err := assignmentQuestions(assignment); err == nil && len(questions) > 0 {
			manual = grading.HasManualQuestions(questions)
		} else if err != nil {
			s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("stored questions unreadable; leaving submission for manual grading")
		}

		score := grading.Round2(math.Min(*result.Score, assignment.EffectiveMaxScore()))
		gradedAt := s.now()
		submission.RawGrade = floatPtr(score)
		submission.Grade = floatPtr(score)
		submission.GradedAt = &gradedAt
		if assignment.Type == models.AssignmentTypeQuiz && !manual {
			submission.Status = models.SubmissionStatusGraded
		}
		if err := repos.Submissions.Update(ctx, &submission); err != nil {
			return err
		}

		graded = true
		return appendHistory(ctx, repos, submission, score, "", models.GradeSourceAuto, nil, gradedAt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auto_grade_failed")
		return nil, err
	}
	if !graded {
		span.SetAttributes(attribute.Bool("grading.applicable", false))
		return nil, nil
	}

	span.SetAttributes(attribute.Float64("grading.score", *result.Score), attribute.String("grading.status", string(submission.Status)))
	s.effects.record(ctx, ActivityActor{Role: "system"}, ActionAutoGraded, "submission", submission.ID, map[string]interface{}{
		"assignment_id": submission.AssignmentID,
		"student_id":    submission.StudentID,
		"score":         *submission.RawGrade,
		"max_score":     result.MaxScore,
	})
	s.effects.notify(ctx, EventSubmissionAutoGrad, submission, "Your quiz answers were graded automatically.")
	s.effects.invalidate(ctx, submission.Assignment)

	return &dto.AutoGradeResponse{
		SubmissionID: submission.ID,
		Score:        submission.RawGrade,
		MaxScore:     result.MaxScore,
		Questions:    result.Questions,
		Submission:   dto.NewSubmissionResponse(submission),
	}, nil
}
