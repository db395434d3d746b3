package models

import (
	"time"

	"gorm.io/datatypes"
)

// AssignmentType enumerates the supported assignment formats.
type AssignmentType string

const (
	AssignmentTypeEssay      AssignmentType = "essay"
	AssignmentTypeQuiz       AssignmentType = "quiz"
	AssignmentTypeFileUpload AssignmentType = "file_upload"
	AssignmentTypeMixed      AssignmentType = "mixed"
	AssignmentTypeCoding     AssignmentType = "coding"
)

// Valid reports whether the type is one of the supported formats.
func (t AssignmentType) Valid() bool {
	switch t {
	case AssignmentTypeEssay, AssignmentTypeQuiz, AssignmentTypeFileUpload, AssignmentTypeMixed, AssignmentTypeCoding:
		return true
	default:
		return false
	}
}

// HasQuiz reports whether the format can carry quiz questions.
func (t AssignmentType) HasQuiz() bool {
	return t == AssignmentTypeQuiz || t == AssignmentTypeMixed
}

// Assignment is the gradable unit learners submit against. Its CRUD lives outside this service.
type Assignment struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	CourseID              uint           `gorm:"index" json:"course_id"`
	Title                 string         `gorm:"size:255;not null" json:"title"`
	Description           string         `gorm:"type:text" json:"description"`
	Type                  AssignmentType `gorm:"size:32;not null;default:'essay'" json:"type"`
	DueDate               time.Time      `gorm:"not null" json:"due_date"`
	MaxScore              float64        `gorm:"not null;default:100" json:"max_score"`
	AllowLateSubmissions  bool           `gorm:"not null;default:false" json:"allow_late_submissions"`
	LateSubmissionPenalty float64        `gorm:"not null;default:0" json:"late_submission_penalty"`
	MaxLateDays           int            `gorm:"not null;default:0" json:"max_late_days"`
	AutoGradingEnabled    bool           `gorm:"not null;default:false" json:"auto_grading_enabled"`
	Questions             datatypes.JSON `gorm:"type:json" json:"questions"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// EffectiveMaxScore falls back to 100 for assignments stored without a max score.
func (a Assignment) EffectiveMaxScore() float64 {
	if a.MaxScore <= 0 {
		return 100
	}
	return a.MaxScore
}
