package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// GradeRequest is a manual grade entered by a teacher.
type GradeRequest struct {
	Grade    float64 `json:"grade" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=10000"`
}

// BulkGradeItem is one entry of a bulk grading call.
type BulkGradeItem struct {
	SubmissionID uint    `json:"submission_id" validate:"required,gt=0"`
	Grade        float64 `json:"grade" validate:"gte=0"`
	Feedback     string  `json:"feedback" validate:"max=10000"`
}

// BulkGradeRequest grades many submissions; each item commits on its own.
type BulkGradeRequest struct {
	Items []BulkGradeItem `json:"items" validate:"required,min=1,max=500,dive"`
}

// BulkGradeFailure explains why one item was not graded.
type BulkGradeFailure struct {
	SubmissionID uint   `json:"submission_id"`
	Kind         string `json:"error_kind"`
	Message      string `json:"message"`
}

// BulkGradeResponse lists committed and failed items.
type BulkGradeResponse struct {
	Graded []SubmissionResponse `json:"graded"`
	Failed []BulkGradeFailure   `json:"failed"`
}

// WaiveLatePenaltyRequest carries the reason for a waiver.
type WaiveLatePenaltyRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}

// LatePenaltyResponse serializes a late submission record.
type LatePenaltyResponse struct {
	SubmissionID      uint       `json:"submission_id"`
	VersionNumber     int        `json:"version_number"`
	DaysLate          int        `json:"days_late"`
	PenaltyPercentage float64    `json:"penalty_percentage"`
	OriginalGrade     float64    `json:"original_grade"`
	FinalGrade        float64    `json:"final_grade"`
	Waived            bool       `json:"waived"`
	WaivedBy          *uint      `json:"waived_by,omitempty"`
	WaivedReason      string     `json:"waived_reason,omitempty"`
	WaivedAt          *time.Time `json:"waived_at,omitempty"`
}

// NewLatePenaltyResponse converts a record into a DTO.
func NewLatePenaltyResponse(model models.LateSubmissionRecord) LatePenaltyResponse {
	return LatePenaltyResponse{
		SubmissionID:      model.SubmissionID,
		VersionNumber:     model.VersionNumber,
		DaysLate:          model.DaysLate,
		PenaltyPercentage: model.PenaltyPercentage,
		OriginalGrade:     model.OriginalGrade,
		FinalGrade:        model.FinalGrade,
		Waived:            model.IsWaived(),
		WaivedBy:          model.WaivedBy,
		WaivedReason:      model.WaivedReason,
		WaivedAt:          model.WaivedAt,
	}
}

// AutoGradeResponse reports the outcome of automatic grading.
type AutoGradeResponse struct {
	SubmissionID uint                     `json:"submission_id"`
	Score        *float64                 `json:"score"`
	MaxScore     float64                  `json:"max_score"`
	Questions    []grading.QuestionResult `json:"questions"`
	Submission   SubmissionResponse       `json:"submission"`
}

// QuestionSetResponse returns the stored questions and their derived rule count.
type QuestionSetResponse struct {
	AssignmentID    uint                         `json:"assignment_id"`
	Questions       []grading.QuestionDefinition `json:"questions"`
	ObjectiveRules  int                          `json:"objective_rules"`
	ObjectivePoints float64                      `json:"objective_points"`
	ManualGrading   bool                         `json:"manual_grading"`
}

// RubricRequest defines a rubric for an assignment.
type RubricRequest struct {
	Title    string              `json:"title" validate:"required,min=3,max=255"`
	Criteria []grading.Criterion `json:"criteria" validate:"required,min=1,max=50"`
}

// RubricResponse serializes a stored rubric.
type RubricResponse struct {
	ID           uint                `json:"id"`
	AssignmentID uint                `json:"assignment_id"`
	Title        string              `json:"title"`
	Criteria     []grading.Criterion `json:"criteria"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NewRubricResponse converts a rubric model into a DTO.
func NewRubricResponse(model models.Rubric) (RubricResponse, error) {
	var criteria []grading.Criterion
	if len(model.Criteria) > 0 {
		if err := json.Unmarshal(model.Criteria, &criteria); err != nil {
			return RubricResponse{}, err
		}
	}
	return RubricResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		Title:        model.Title,
		Criteria:     criteria,
		CreatedAt:    model.CreatedAt,
	}, nil
}

// RubricScoreRequest scores a rubric without persisting anything.
type RubricScoreRequest struct {
	Scores   map[string]float64 `json:"scores" validate:"required"`
	Weighted bool               `json:"weighted"`
}

// RubricGradeRequest grades a submission with a rubric.
type RubricGradeRequest struct {
	RubricID uint               `json:"rubric_id" validate:"required,gt=0"`
	Scores   map[string]float64 `json:"scores" validate:"required"`
	Feedback string             `json:"feedback" validate:"max=10000"`
}

// RubricGradeResponse returns the rubric result and the graded submission.
type RubricGradeResponse struct {
	Result     grading.RubricResult `json:"result"`
	Submission SubmissionResponse   `json:"submission"`
}

// PlagiarismReportRequest stores an externally computed similarity report.
type PlagiarismReportRequest struct {
	Provider        string          `json:"provider" validate:"required,max=64"`
	SimilarityScore float64         `json:"similarity_score" validate:"gte=0,lte=100"`
	Report          json.RawMessage `json:"report"`
	CheckedAt       *time.Time      `json:"checked_at"`
}

// PlagiarismReportResponse serializes a stored report.
type PlagiarismReportResponse struct {
	SubmissionID    uint            `json:"submission_id"`
	VersionNumber   int             `json:"version_number"`
	Provider        string          `json:"provider"`
	SimilarityScore float64         `json:"similarity_score"`
	Report          json.RawMessage `json:"report"`
	CheckedAt       time.Time       `json:"checked_at"`
}
