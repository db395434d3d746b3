package models

import (
	"time"

	"gorm.io/datatypes"
)

// AutomatedGradingRule is the answer key for one objective question of an assignment.
type AutomatedGradingRule struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	AssignmentID  uint           `gorm:"not null;uniqueIndex:idx_rule_assignment_question" json:"assignment_id"`
	QuestionIndex int            `gorm:"not null;uniqueIndex:idx_rule_assignment_question" json:"question_index"`
	QuestionType  string         `gorm:"size:32;not null" json:"question_type"`
	CorrectAnswer string         `gorm:"type:text;not null" json:"correct_answer"`
	Variations    datatypes.JSON `gorm:"type:json" json:"variations"`
	CaseSensitive bool           `gorm:"not null;default:false" json:"case_sensitive"`
	Points        float64        `gorm:"not null" json:"points"`
	PartialCredit datatypes.JSON `gorm:"type:json" json:"partial_credit"`
	CreatedAt     time.Time      `json:"created_at"`
}

// LateSubmissionRecord holds the late penalty computed for a submission.
type LateSubmissionRecord struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	SubmissionID      uint       `gorm:"not null;uniqueIndex" json:"submission_id"`
	VersionNumber     int        `gorm:"not null" json:"version_number"`
	DaysLate          int        `gorm:"not null" json:"days_late"`
	PenaltyPercentage float64    `gorm:"not null" json:"penalty_percentage"`
	OriginalGrade     float64    `gorm:"not null" json:"original_grade"`
	FinalGrade        float64    `gorm:"not null" json:"final_grade"`
	WaivedBy          *uint      `json:"waived_by"`
	WaivedReason      string     `gorm:"type:text" json:"waived_reason"`
	WaivedAt          *time.Time `json:"waived_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsWaived reports whether the penalty has been nullified.
func (r LateSubmissionRecord) IsWaived() bool {
	return r.WaivedAt != nil
}

// EffectiveGrade is the grade the submission should carry given this record.
func (r LateSubmissionRecord) EffectiveGrade() float64 {
	if r.IsWaived() {
		return r.OriginalGrade
	}
	return r.FinalGrade
}

// Rubric is a set of weighted criteria owned by an assignment.
type Rubric struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AssignmentID uint           `gorm:"not null;index" json:"assignment_id"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Criteria     datatypes.JSON `gorm:"type:json;not null" json:"criteria"`
	CreatedBy    uint           `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RubricAssessment stores the per-criterion scores a grader entered.
type RubricAssessment struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID uint           `gorm:"not null;index" json:"submission_id"`
	RubricID     uint           `gorm:"not null;index" json:"rubric_id"`
	Scores       datatypes.JSON `gorm:"type:json;not null" json:"scores"`
	TotalScore   float64        `gorm:"not null" json:"total_score"`
	MaxScore     float64        `gorm:"not null" json:"max_score"`
	Percentage   float64        `gorm:"not null" json:"percentage"`
	LetterGrade  string         `gorm:"size:4;not null" json:"letter_grade"`
	GradedBy     uint           `gorm:"not null" json:"graded_by"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PlagiarismReport is the stored result of an external similarity check on one version.
type PlagiarismReport struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	VersionID       uint           `gorm:"not null;uniqueIndex" json:"version_id"`
	Provider        string         `gorm:"size:64;not null" json:"provider"`
	SimilarityScore float64        `gorm:"not null" json:"similarity_score"`
	Report          datatypes.JSON `gorm:"type:json" json:"report"`
	CheckedAt       time.Time      `gorm:"not null" json:"checked_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
