package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// LateSubmissionRepository persists late penalty records, one per submission.
type LateSubmissionRepository interface {
	GetBySubmission(ctx context.Context, submissionID uint) (models.LateSubmissionRecord, error)
	Save(ctx context.Context, record *models.LateSubmissionRecord) error
	DeleteBySubmission(ctx context.Context, submissionID uint) error
	ListBySubmissions(ctx context.Context, submissionIDs []uint) ([]models.LateSubmissionRecord, error)
}

type lateSubmissionRepository struct {
	db *gorm.DB
}

// NewLateSubmissionRepository instantiates the repository.
func NewLateSubmissionRepository(db *gorm.DB) LateSubmissionRepository {
	return &lateSubmissionRepository{db: db}
}

func (r *lateSubmissionRepository) GetBySubmission(ctx context.Context, submissionID uint) (models.LateSubmissionRecord, error) {
	var record models.LateSubmissionRecord
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&record).Error; err != nil {
		return models.LateSubmissionRecord{}, err
	}
	return record, nil
}

func (r *lateSubmissionRepository) Save(ctx context.Context, record *models.LateSubmissionRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *lateSubmissionRepository) DeleteBySubmission(ctx context.Context, submissionID uint) error {
	return r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Delete(&models.LateSubmissionRecord{}).Error
}

func (r *lateSubmissionRepository) ListBySubmissions(ctx context.Context, submissionIDs []uint) ([]models.LateSubmissionRecord, error) {
	if len(submissionIDs) == 0 {
		return nil, nil
	}
	var records []models.LateSubmissionRecord
	if err := r.db.WithContext(ctx).
		Where("submission_id IN ?", submissionIDs).
		Order("submission_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
