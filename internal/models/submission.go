package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusDraft indicates the learner is still editing.
	SubmissionStatusDraft SubmissionStatus = "draft"
	// SubmissionStatusSubmitted indicates the submission is final but not graded.
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded SubmissionStatus = "graded"
)

// Submission is the mutable head for one learner on one assignment. RawGrade is the grade before any
// late penalty; Grade is the live grade after it.
type Submission struct {
	ID            uint                     `gorm:"primaryKey" json:"id"`
	AssignmentID  uint                     `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID     uint                     `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	Status        SubmissionStatus         `gorm:"size:32;not null;default:'draft'" json:"status"`
	Attempt       int                      `gorm:"not null;default:1" json:"attempt"`
	LatestVersion int                      `gorm:"not null;default:0" json:"latest_version"`
	Content       string                   `gorm:"type:text" json:"content"`
	QuizAnswers   datatypes.JSON           `gorm:"type:json" json:"quiz_answers"`
	RawGrade      *float64                 `json:"raw_grade"`
	Grade         *float64                 `json:"grade"`
	Feedback      string                   `gorm:"type:text" json:"feedback"`
	GradedBy      *uint                    `json:"graded_by"`
	GradedAt      *time.Time               `json:"graded_at"`
	SubmittedAt   *time.Time               `json:"submitted_at"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	Assignment    Assignment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Versions      []SubmissionVersion      `gorm:"constraint:OnDelete:CASCADE" json:"versions,omitempty"`
	History       []SubmissionGradeHistory `gorm:"constraint:OnDelete:CASCADE" json:"history,omitempty"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// IsFinal reports whether the learner can no longer edit the current attempt.
func (s Submission) IsFinal() bool {
	return s.Status == SubmissionStatusSubmitted || s.Status == SubmissionStatusGraded
}

// SubmissionVersion is an immutable snapshot in a submission's edit history.
type SubmissionVersion struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	SubmissionID  uint             `gorm:"not null;uniqueIndex:idx_version_submission_number" json:"submission_id"`
	VersionNumber int              `gorm:"not null;uniqueIndex:idx_version_submission_number" json:"version_number"`
	Attempt       int              `gorm:"not null;default:1" json:"attempt"`
	Content       string           `gorm:"type:text" json:"content"`
	QuizAnswers   datatypes.JSON   `gorm:"type:json" json:"quiz_answers"`
	IsDraft       bool             `gorm:"not null;default:true" json:"is_draft"`
	AutoSaved     bool             `gorm:"not null;default:false" json:"auto_saved"`
	SubmittedAt   *time.Time       `json:"submitted_at"`
	CreatedAt     time.Time        `json:"created_at"`
	Files         []SubmissionFile `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// SubmissionFile is metadata for bytes held by the file storage collaborator.
type SubmissionFile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	VersionID        uint      `gorm:"not null;index" json:"version_id"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	StoredFilename   string    `gorm:"size:512;not null;index" json:"stored_filename"`
	URL              string    `gorm:"size:1024" json:"url"`
	Size             int64     `gorm:"not null" json:"size"`
	MimeType         string    `gorm:"size:128" json:"mime_type"`
	Hash             string    `gorm:"size:64" json:"hash"`
	UploadOrder      int       `gorm:"not null" json:"upload_order"`
	CreatedAt        time.Time `json:"created_at"`
}

// GradeSource tells who produced a grade history entry.
type GradeSource string

const (
	GradeSourceAuto    GradeSource = "auto"
	GradeSourceManual  GradeSource = "manual"
	GradeSourceRubric  GradeSource = "rubric"
	GradeSourcePenalty GradeSource = "late_penalty"
	GradeSourceWaiver  GradeSource = "waiver"
)

// SubmissionGradeHistory records every grade a submission has received.
type SubmissionGradeHistory struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	SubmissionID uint        `gorm:"not null;index" json:"submission_id"`
	Attempt      int         `gorm:"not null;default:1" json:"attempt"`
	Score        float64     `gorm:"not null" json:"score"`
	Feedback     string      `gorm:"type:text" json:"feedback"`
	Source       GradeSource `gorm:"size:32;not null" json:"source"`
	GradedBy     *uint       `json:"graded_by"`
	GradedAt     time.Time   `gorm:"not null" json:"graded_at"`
}
