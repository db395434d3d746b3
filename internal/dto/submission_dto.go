package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// FileUpload carries raw bytes received with a draft; it never reaches the database.
type FileUpload struct {
	Name string
	Data []byte
}

// SaveDraftRequest is the content of one autosave or manual save.
type SaveDraftRequest struct {
	Content           string         `json:"content" form:"content" validate:"max=200000"`
	QuizAnswers       map[int]string `json:"quiz_answers" validate:"omitempty,dive,max=10000"`
	AutoSaved         bool           `json:"auto_saved" form:"auto_saved"`
	KeepPreviousFiles bool           `json:"keep_previous_files" form:"keep_previous_files"`
	Files             []FileUpload   `json:"-" validate:"max=20"`
}

// SubmissionFileResponse describes stored file metadata.
type SubmissionFileResponse struct {
	ID               uint   `json:"id"`
	OriginalFilename string `json:"original_filename"`
	StoredFilename   string `json:"stored_filename"`
	URL              string `json:"url"`
	Size             int64  `json:"size"`
	MimeType         string `json:"mime_type"`
	Hash             string `json:"hash"`
	UploadOrder      int    `json:"upload_order"`
}

// SubmissionVersionResponse serializes one version snapshot.
type SubmissionVersionResponse struct {
	ID            uint                     `json:"id"`
	VersionNumber int                      `json:"version_number"`
	Attempt       int                      `json:"attempt"`
	Content       string                   `json:"content"`
	QuizAnswers   map[int]string           `json:"quiz_answers"`
	IsDraft       bool                     `json:"is_draft"`
	AutoSaved     bool                     `json:"auto_saved"`
	SubmittedAt   *time.Time               `json:"submitted_at"`
	CreatedAt     time.Time                `json:"created_at"`
	Files         []SubmissionFileResponse `json:"files"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Attempt  int       `json:"attempt"`
	Score    float64   `json:"score"`
	Feedback string    `json:"feedback"`
	Source   string    `json:"source"`
	GradedBy *uint     `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID       uint      `json:"id"`
	Title    string    `json:"title"`
	Type     string    `json:"type"`
	DueDate  time.Time `json:"due_date"`
	MaxScore float64   `json:"max_score"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID             uint                             `json:"id"`
	AssignmentID   uint                             `json:"assignment_id"`
	StudentID      uint                             `json:"student_id"`
	Status         string                           `json:"status"`
	Attempt        int                              `json:"attempt"`
	LatestVersion  int                              `json:"latest_version"`
	Content        string                           `json:"content"`
	QuizAnswers    map[int]string                   `json:"quiz_answers"`
	RawGrade       *float64                         `json:"raw_grade"`
	Grade          *float64                         `json:"grade"`
	LetterGrade    string                           `json:"letter_grade,omitempty"`
	Feedback       string                           `json:"feedback"`
	GradedBy       *uint                            `json:"graded_by"`
	GradedAt       *time.Time                       `json:"graded_at"`
	SubmittedAt    *time.Time                       `json:"submitted_at"`
	CreatedAt      time.Time                        `json:"created_at"`
	UpdatedAt      time.Time                        `json:"updated_at"`
	Assignment     *AssignmentLite                  `json:"assignment,omitempty"`
	CurrentVersion *SubmissionVersionResponse       `json:"current_version,omitempty"`
	Versions       []SubmissionVersionResponse      `json:"versions,omitempty"`
	History        []SubmissionGradeHistoryResponse `json:"history,omitempty"`
	LatePenalty    *LatePenaltyResponse             `json:"late_penalty,omitempty"`
	GradingPending bool                             `json:"grading_pending,omitempty"`
}

// DeleteVersionResponse reports the outcome of deleting a draft version.
type DeleteVersionResponse struct {
	SubmissionID  uint     `json:"submission_id"`
	VersionNumber int      `json:"version_number"`
	OrphanedFiles []string `json:"orphaned_files"`
}

// DecodeAnswers parses a stored quiz answer map. Malformed or empty input yields an empty map.
func DecodeAnswers(raw []byte) map[int]string {
	answers := map[int]string{}
	if len(raw) == 0 {
		return answers
	}
	if err := json.Unmarshal(raw, &answers); err != nil {
		return map[int]string{}
	}
	return answers
}

// NewSubmissionFileResponse converts file metadata into a DTO.
func NewSubmissionFileResponse(model models.SubmissionFile) SubmissionFileResponse {
	return SubmissionFileResponse{
		ID:               model.ID,
		OriginalFilename: model.OriginalFilename,
		StoredFilename:   model.StoredFilename,
		URL:              model.URL,
		Size:             model.Size,
		MimeType:         model.MimeType,
		Hash:             model.Hash,
		UploadOrder:      model.UploadOrder,
	}
}

// NewSubmissionVersionResponse converts a version into a DTO.
func NewSubmissionVersionResponse(model models.SubmissionVersion) SubmissionVersionResponse {
	files := make([]SubmissionFileResponse, 0, len(model.Files))
	for _, f := range model.Files {
		files = append(files, NewSubmissionFileResponse(f))
	}
	return SubmissionVersionResponse{
		ID:            model.ID,
		VersionNumber: model.VersionNumber,
		Attempt:       model.Attempt,
		Content:       model.Content,
		QuizAnswers:   DecodeAnswers(model.QuizAnswers),
		IsDraft:       model.IsDraft,
		AutoSaved:     model.AutoSaved,
		SubmittedAt:   model.SubmittedAt,
		CreatedAt:     model.CreatedAt,
		Files:         files,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:            model.ID,
		AssignmentID:  model.AssignmentID,
		StudentID:     model.StudentID,
		Status:        string(model.Status),
		Attempt:       model.Attempt,
		LatestVersion: model.LatestVersion,
		Content:       model.Content,
		QuizAnswers:   DecodeAnswers(model.QuizAnswers),
		RawGrade:      model.RawGrade,
		Grade:         model.Grade,
		Feedback:      model.Feedback,
		GradedBy:      model.GradedBy,
		GradedAt:      model.GradedAt,
		SubmittedAt:   model.SubmittedAt,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}

	if model.Assignment.ID != 0 {
		response.Assignment = &AssignmentLite{
			ID:       model.Assignment.ID,
			Title:    model.Assignment.Title,
			Type:     string(model.Assignment.Type),
			DueDate:  model.Assignment.DueDate,
			MaxScore: model.Assignment.EffectiveMaxScore(),
		}
		if model.Grade != nil {
			pct := grading.Percentage(*model.Grade, model.Assignment.EffectiveMaxScore())
			response.LetterGrade = grading.LetterGrade(grading.Round2(pct))
		}
	}

	if len(model.Versions) > 0 {
		versions := make([]SubmissionVersionResponse, 0, len(model.Versions))
		for _, v := range model.Versions {
			versions = append(versions, NewSubmissionVersionResponse(v))
		}
		response.Versions = versions
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Attempt:  entry.Attempt,
				Score:    entry.Score,
				Feedback: entry.Feedback,
				Source:   string(entry.Source),
				GradedBy: entry.GradedBy,
				GradedAt: entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}
