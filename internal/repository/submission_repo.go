package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// SubmissionRepository defines data operations for submission heads and their grade history.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByIDForUpdate(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	GetByAssignmentAndStudentForUpdate(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	CreateIfAbsent(ctx context.Context, submission *models.Submission) (bool, error)
	Update(ctx context.Context, submission *models.Submission) error
	ListByAssignments(ctx context.Context, assignmentIDs []uint) ([]models.Submission, error)
	CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error
	ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionGradeHistory, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).Preload("Assignment")
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

// GetByIDForUpdate locks the submission row for the rest of the transaction.
func (r *submissionRepository) GetByIDForUpdate(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudentForUpdate(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

// CreateIfAbsent inserts the submission unless one already exists for the assignment/student pair.
func (r *submissionRepository) CreateIfAbsent(ctx context.Context, submission *models.Submission) (bool, error) {
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).
		Create(submission)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(submission).Error
}

func (r *submissionRepository) ListByAssignments(ctx context.Context, assignmentIDs []uint) ([]models.Submission, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id IN ?", assignmentIDs).
		Order("id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *submissionRepository) ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionGradeHistory, error) {
	var history []models.SubmissionGradeHistory
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("graded_at ASC, id ASC").
		Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}
