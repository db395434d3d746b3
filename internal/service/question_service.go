package service

import (
	"context"
	"encoding/json"
	"fmt"

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

// QuestionService defines quiz questions and derives their answer keys.
type QuestionService interface {
	DefineQuestions(ctx context.Context, assignmentID uint, payload json.RawMessage, actor ActivityActor) (dto.QuestionSetResponse, error)
	GetQuestions(ctx context.Context, assignmentID uint) (dto.QuestionSetResponse, error)
}

type questionService struct {
	uow     repository.UnitOfWork
	effects gradingEffects
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewQuestionService constructs the question service.
func NewQuestionService(uow repository.UnitOfWork, activity ActivityRecorder, analytics AnalyticsInvalidator, logger zerolog.Logger) QuestionService {
	log := logger.With().Str("component", "question_service").Logger()
	return &questionService{
		uow:     uow,
		effects: gradingEffects{activity: activity, analytics: analytics, logger: log},
		logger:  log,
		tracer:  otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/question"),
	}
}

// DefineQuestions stores the question list on the assignment and replaces its grading rules in one transaction.
func (s *questionService) DefineQuestions(ctx context.Context, assignmentID uint, payload json.RawMessage, actor ActivityActor) (dto.QuestionSetResponse, error) {
	ctx, span := s.tracer.Start(ctx, "questions.define", trace.WithAttributes(
		attribute.Int64("grading.assignment_id", int64(assignmentID)),
	))
	defer span.End()

	questions, err := grading.DecodeQuestions(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_questions")
		return dto.QuestionSetResponse{}, err
	}

	var assignment models.Assignment
	err = s.uow.Do(ctx, func(repos repository.Repositories) error {
		var err error
		assignment, err = repos.Assignments.GetByID(ctx, assignmentID)
		if err != nil {
			return notFound(err, ErrAssignmentNotFound)
		}
		if !assignment.Type.HasQuiz() {
			return ErrUnsupportedAssignment
		}

		var total float64
		for _, q := range questions {
			total += q.MaxPoints()
		}
		if total > assignment.EffectiveMaxScore()+1e-9 {
			return fmt.Errorf("%w (%.2f > %.2f)", ErrQuestionPointsExceeded, total, assignment.EffectiveMaxScore())
		}

		encoded, err := json.Marshal(grading.ToDefinitions(questions))
		if err != nil {
			return err
		}
		if err := repos.Assignments.UpdateQuestions(ctx, assignment.ID, datatypes.JSON(encoded)); err != nil {
			return err
		}
		assignment.Questions = datatypes.JSON(encoded)

		rules, err := rulesToModels(grading.RulesFromQuestions(questions))
		if err != nil {
			return err
		}
		return repos.Rules.ReplaceForAssignment(ctx, assignment.ID, rules)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "define_failed")
		return dto.QuestionSetResponse{}, err
	}

	response := questionSetResponse(assignment.ID, questions)
	s.effects.record(ctx, actor, ActionQuestionsDefined, "assignment", assignment.ID, map[string]interface{}{
		"questions":        len(questions),
		"objective_rules":  response.ObjectiveRules,
		"objective_points": response.ObjectivePoints,
	})
	s.effects.invalidate(ctx, assignment)

	return response, nil
}

func (s *questionService) GetQuestions(ctx context.Context, assignmentID uint) (dto.QuestionSetResponse, error) {
	assignment, err := s.uow.Repositories().Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return dto.QuestionSetResponse{}, notFound(err, ErrAssignmentNotFound)
	}
	questions, err := assignmentQuestions(assignment)
	if err != nil {
		return dto.QuestionSetResponse{}, err
	}
	return questionSetResponse(assignment.ID, questions), nil
}

func questionSetResponse(assignmentID uint, questions []grading.Question) dto.QuestionSetResponse {
	rules := grading.RulesFromQuestions(questions)
	var points float64
	for _, r := range rules {
		points += r.Points
	}
	return dto.QuestionSetResponse{
		AssignmentID:    assignmentID,
		Questions:       grading.ToDefinitions(questions),
		ObjectiveRules:  len(rules),
		ObjectivePoints: grading.Round2(points),
		ManualGrading:   grading.HasManualQuestions(questions),
	}
}

// assignmentQuestions decodes the stored question list. An assignment without questions yields none.
func assignmentQuestions(assignment models.Assignment) ([]grading.Question, error) {
	if len(assignment.Questions) == 0 || string(assignment.Questions) == "null" {
		return nil, nil
	}
	var defs []grading.QuestionDefinition
	if err := json.Unmarshal(assignment.Questions, &defs); err != nil {
		return nil, fmt.Errorf("decode questions of assignment %d: %w", assignment.ID, err)
	}
	return grading.FromDefinitions(defs)
}

func rulesToModels(rules []grading.Rule) ([]models.AutomatedGradingRule, error) {
	out := make([]models.AutomatedGradingRule, 0, len(rules))
	for _, r := range rules {
		variations, err := json.Marshal(r.Variations)
		if err != nil {
			return nil, err
		}
		partial, err := json.Marshal(r.PartialCredit)
		if err != nil {
			return nil, err
		}
		out = append(out, models.AutomatedGradingRule{
			QuestionIndex: r.QuestionIndex,
			QuestionType:  string(r.Type),
			CorrectAnswer: r.CorrectAnswer,
			Variations:    datatypes.JSON(variations),
			CaseSensitive: r.CaseSensitive,
			Points:        r.Points,
			PartialCredit: datatypes.JSON(partial),
		})
	}
	return out, nil
}

func rulesFromModels(stored []models.AutomatedGradingRule) ([]grading.Rule, error) {
	out := make([]grading.Rule, 0, len(stored))
	for _, m := range stored {
		rule := grading.Rule{
			QuestionIndex: m.QuestionIndex,
			Type:          grading.QuestionType(m.QuestionType),
			CorrectAnswer: m.CorrectAnswer,
			CaseSensitive: m.CaseSensitive,
			Points:        m.Points,
		}
		if len(m.Variations) > 0 {
			if err := json.Unmarshal(m.Variations, &rule.Variations); err != nil {
				return nil, fmt.Errorf("decode variations of rule %d: %w", m.ID, err)
			}
		}
		if len(m.PartialCredit) > 0 {
			if err := json.Unmarshal(m.PartialCredit, &rule.PartialCredit); err != nil {
				return nil, fmt.Errorf("decode partial credit of rule %d: %w", m.ID, err)
			}
		}
		out = append(out, rule)
	}
	return out, nil
}
