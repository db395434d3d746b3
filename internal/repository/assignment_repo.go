package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AssignmentRepository reads assignment definitions owned by the course service.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	ListByCourse(ctx context.Context, courseID uint) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	UpdateQuestions(ctx context.Context, id uint, questions datatypes.JSON) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (r *assignmentRepository) ListByCourse(ctx context.Context, courseID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("due_date ASC, id ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) UpdateQuestions(ctx context.Context, id uint, questions datatypes.JSON) error {
	result := r.db.WithContext(ctx).Model(&models.Assignment{}).Where("id = ?", id).Update("questions", questions)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
