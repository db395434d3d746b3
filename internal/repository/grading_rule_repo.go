package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// GradingRuleRepository stores the objective answer key of an assignment.
type GradingRuleRepository interface {
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.AutomatedGradingRule, error)
	ReplaceForAssignment(ctx context.Context, assignmentID uint, rules []models.AutomatedGradingRule) error
}

type gradingRuleRepository struct {
	db *gorm.DB
}

// NewGradingRuleRepository instantiates the repository.
func NewGradingRuleRepository(db *gorm.DB) GradingRuleRepository {
	return &gradingRuleRepository{db: db}
}

func (r *gradingRuleRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.AutomatedGradingRule, error) {
	var rules []models.AutomatedGradingRule
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("question_index ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// ReplaceForAssignment drops every rule of the assignment and inserts the new set. Run it inside a unit of work.
func (r *gradingRuleRepository) ReplaceForAssignment(ctx context.Context, assignmentID uint, rules []models.AutomatedGradingRule) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("assignment_id = ?", assignmentID).Delete(&models.AutomatedGradingRule{}).Error; err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	for i := range rules {
		rules[i].ID = 0
		rules[i].AssignmentID = assignmentID
	}
	return db.Create(&rules).Error
}
