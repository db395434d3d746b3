package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// PlagiarismRepository stores similarity reports, one per submission version.
type PlagiarismRepository interface {
	Upsert(ctx context.Context, report *models.PlagiarismReport) error
	GetByVersion(ctx context.Context, versionID uint) (models.PlagiarismReport, error)
}

type plagiarismRepository struct {
	db *gorm.DB
}

// NewPlagiarismRepository instantiates the repository.
func NewPlagiarismRepository(db *gorm.DB) PlagiarismRepository {
	return &plagiarismRepository{db: db}
}

func (r *plagiarismRepository) Upsert(ctx context.Context, report *models.PlagiarismReport) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "similarity_score", "report", "checked_at", "updated_at"}),
	}).Create(report).Error
}

func (r *plagiarismRepository) GetByVersion(ctx context.Context, versionID uint) (models.PlagiarismReport, error) {
	var report models.PlagiarismReport
	if err := r.db.WithContext(ctx).Where("version_id = ?", versionID).First(&report).Error; err != nil {
		return models.PlagiarismReport{}, err
	}
	return report, nil
}
