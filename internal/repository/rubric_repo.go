package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// RubricRepository persists rubric definitions and the assessments made with them.
type RubricRepository interface {
	Create(ctx context.Context, rubric *models.Rubric) error
	GetByID(ctx context.Context, id uint) (models.Rubric, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Rubric, error)
	CreateAssessment(ctx context.Context, assessment *models.RubricAssessment) error
	ListAssessments(ctx context.Context, submissionID uint) ([]models.RubricAssessment, error)
}

type rubricRepository struct {
	db *gorm.DB
}

// NewRubricRepository instantiates the repository.
func NewRubricRepository(db *gorm.DB) RubricRepository {
	return &rubricRepository{db: db}
}

func (r *rubricRepository) Create(ctx context.Context, rubric *models.Rubric) error {
	return r.db.WithContext(ctx).Create(rubric).Error
}

func (r *rubricRepository) GetByID(ctx context.Context, id uint) (models.Rubric, error) {
	var rubric models.Rubric
	if err := r.db.WithContext(ctx).First(&rubric, id).Error; err != nil {
		return models.Rubric{}, err
	}
	return rubric, nil
}

func (r *rubricRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Rubric, error) {
	var rubrics []models.Rubric
	if err := r.db.WithContext(ctx).Where("assignment_id = ?", assignmentID).Order("id ASC").Find(&rubrics).Error; err != nil {
		return nil, err
	}
	return rubrics, nil
}

func (r *rubricRepository) CreateAssessment(ctx context.Context, assessment *models.RubricAssessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *rubricRepository) ListAssessments(ctx context.Context, submissionID uint) ([]models.RubricAssessment, error) {
	var assessments []models.RubricAssessment
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC, id DESC").
		Find(&assessments).Error; err != nil {
		return nil, err
	}
	return assessments, nil
}
