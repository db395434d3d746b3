package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// RubricService defines rubrics and grades submissions with them.
type RubricService interface {
	DefineRubric(ctx context.Context, assignmentID uint, payload dto.RubricRequest, actor ActivityActor) (dto.RubricResponse, error)
	GetRubric(ctx context.Context, rubricID uint) (dto.RubricResponse, error)
	ListRubrics(ctx context.Context, assignmentID uint) ([]dto.RubricResponse, error)
	Calculate(ctx context.Context, rubricID uint, payload dto.RubricScoreRequest) (grading.RubricResult, error)
	GradeWithRubric(ctx context.Context, submissionID uint, payload dto.RubricGradeRequest, actor ActivityActor) (dto.RubricGradeResponse, error)
}

type rubricService struct {
	uow       repository.UnitOfWork
	validator *validator.Validate
	writer    *gradeWriter
	effects   gradingEffects
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRubricService constructs the rubric service.
func NewRubricService(uow repository.UnitOfWork, validate *validator.Validate, capMode grading.CapMode, activity ActivityRecorder, notifier Notifier, analytics AnalyticsInvalidator, logger zerolog.Logger) RubricService {
	log := logger.With().Str("component", "rubric_service").Logger()
	return &rubricService{
		uow:       uow,
		validator: validate,
		writer:    newGradeWriter(capMode),
		effects:   gradingEffects{activity: activity, notifier: notifier, analytics: analytics, logger: log},
		logger:    log,
		tracer:    otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/rubric"),
	}
}

func (s *rubricService) DefineRubric(ctx context.Context, assignmentID uint, payload dto.RubricRequest, actor ActivityActor) (dto.RubricResponse, error) {
	ctx, span := s.tracer.Start(ctx, "rubric.define", trace.WithAttributes(
		attribute.Int64("grading.assignment_id", int64(assignmentID)),
	))
	defer span.End()

	payload.Title = strings.TrimSpace(payload.Title)
	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.RubricResponse{}, err
	}
	for i := range payload.Criteria {
		payload.Criteria[i].ID = strings.TrimSpace(payload.Criteria[i].ID)
	}
	if err := grading.ValidateRubric(grading.Rubric{Criteria: payload.Criteria}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_rubric")
		return dto.RubricResponse{}, err
	}

	criteria, err := json.Marshal(payload.Criteria)
	if err != nil {
		return dto.RubricResponse{}, err
	}

	rubric := models.Rubric{
		AssignmentID: assignmentID,
		Title:        payload.Title,
		Criteria:     datatypes.JSON(criteria),
		CreatedBy:    actor.ID,
	}
	var assignment models.Assignment
	err = s.uow.Do(ctx, func(repos repository.Repositories) error {
		var err error
		assignment, err = repos.Assignments.GetByID(ctx, assignmentID)
		if err != nil {
			return notFound(err, ErrAssignmentNotFound)
		}
		return repos.Rubrics.Create(ctx, &rubric)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "define_failed")
		return dto.RubricResponse{}, err
	}

	s.effects.record(ctx, actor, ActionRubricDefined, "rubric", rubric.ID, map[string]interface{}{
		"assignment_id": assignment.ID,
		"criteria":      len(payload.Criteria),
	})
	return dto.NewRubricResponse(rubric)
}

func (s *rubricService) GetRubric(ctx context.Context, rubricID uint) (dto.RubricResponse, error) {
	rubric, err := s.uow.Repositories().Rubrics.GetByID(ctx, rubricID)
	if err != nil {
		return dto.RubricResponse{}, notFound(err, ErrRubricNotFound)
	}
	return dto.NewRubricResponse(rubric)
}

func (s *rubricService) ListRubrics(ctx context.Context, assignmentID uint) ([]dto.RubricResponse, error) {
	repos := s.uow.Repositories()
	if _, err := repos.Assignments.GetByID(ctx, assignmentID); err != nil {
		return nil, notFound(err, ErrAssignmentNotFound)
	}
	rubrics, err := repos.Rubrics.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.RubricResponse, 0, len(rubrics))
	for _, rubric := range rubrics {
		response, err := dto.NewRubricResponse(rubric)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}

// Calculate scores a rubric without persisting anything. Weighted scoring is opt-in.
func (s *rubricService) Calculate(ctx context.Context, rubricID uint, payload dto.RubricScoreRequest) (grading.RubricResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return grading.RubricResult{}, err
	}
	model, err := s.uow.Repositories().Rubrics.GetByID(ctx, rubricID)
	if err != nil {
		return grading.RubricResult{}, notFound(err, ErrRubricNotFound)
	}
	rubric, err := rubricDefinition(model)
	if err != nil {
		return grading.RubricResult{}, err
	}
	if payload.Weighted {
		return grading.CalculateWeightedRubricGrade(rubric, payload.Scores)
	}
	return grading.CalculateRubricGrade(rubric, payload.Scores)
}

// GradeWithRubric stores the assessment and sets the grade to the rubric percentage of the assignment max score.
func (s *rubricService) GradeWithRubric(ctx context.Context, submissionID uint, payload dto.RubricGradeRequest, actor ActivityActor) (dto.RubricGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "rubric.grade", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.rubric_id", int64(payload.RubricID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.RubricGradeResponse{}, err
	}

	var (
		result  grading.RubricResult
		outcome gradeOutcome
	)
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		model, err := repos.Rubrics.GetByID(ctx, payload.RubricID)
		if err != nil {
			return notFound(err, ErrRubricNotFound)
		}
		submission, err := repos.Submissions.GetByIDForUpdate(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrSubmissionNotFound)
		}
		if model.AssignmentID != submission.AssignmentID {
			return ErrRubricAssignment
		}

		rubric, err := rubricDefinition(model)
		if err != nil {
			return err
		}
		result, err = grading.CalculateRubricGrade(rubric, payload.Scores)
		if err != nil {
			return err
		}

		score := grading.Round2(result.Percentage / 100 * submission.Assignment.EffectiveMaxScore())
		outcome, err = s.writer.apply(ctx, repos, submissionID, score, payload.Feedback, models.GradeSourceRubric, actor)
		if err != nil {
			return err
		}

		scores, err := json.Marshal(payload.Scores)
		if err != nil {
			return err
		}
		return repos.Rubrics.CreateAssessment(ctx, &models.RubricAssessment{
			SubmissionID: submissionID,
			RubricID:     model.ID,
			Scores:       datatypes.JSON(scores),
			TotalScore:   result.TotalScore,
			MaxScore:     result.MaxScore,
			Percentage:   result.Percentage,
			LetterGrade:  result.LetterGrade,
			GradedBy:     actor.ID,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rubric_grade_failed")
		return dto.RubricGradeResponse{}, err
	}

	submission := outcome.submission
	if !outcome.unchanged {
		s.effects.record(ctx, actor, ActionRubricGraded, "submission", submission.ID, map[string]interface{}{
			"assignment_id": submission.AssignmentID,
			"student_id":    submission.StudentID,
			"rubric_id":     payload.RubricID,
			"percentage":    result.Percentage,
			"letter_grade":  result.LetterGrade,
		})
		s.effects.notify(ctx, EventSubmissionGraded, submission, "Your submission has been graded with a rubric.")
		s.effects.invalidate(ctx, submission.Assignment)
	}

	return dto.RubricGradeResponse{Result: result, Submission: outcome.response()}, nil
}

func rubricDefinition(model models.Rubric) (grading.Rubric, error) {
	var criteria []grading.Criterion
	if err := json.Unmarshal(model.Criteria, &criteria); err != nil {
		return grading.Rubric{}, fmt.Errorf("decode criteria of rubric %d: %w", model.ID, err)
	}
	return grading.Rubric{Criteria: criteria}, nil
}
