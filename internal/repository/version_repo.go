package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// VersionRepository persists submission versions and their file metadata.
type VersionRepository interface {
	MaxNumber(ctx context.Context, submissionID uint) (int, error)
	Create(ctx context.Context, version *models.SubmissionVersion) error
	Update(ctx context.Context, version *models.SubmissionVersion) error
	Latest(ctx context.Context, submissionID uint) (models.SubmissionVersion, error)
	GetByNumber(ctx context.Context, submissionID uint, number int) (models.SubmissionVersion, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionVersion, error)
	ListLatestFinal(ctx context.Context, submissionIDs []uint) ([]models.SubmissionVersion, error)
	Delete(ctx context.Context, version models.SubmissionVersion) error
	ReferencedStoredNames(ctx context.Context, storedNames []string) ([]string, error)
}

type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository instantiates the repository.
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func orderedFiles(tx *gorm.DB) *gorm.DB {
	return tx.Order("upload_order ASC, id ASC")
}

func (r *versionRepository) MaxNumber(ctx context.Context, submissionID uint) (int, error) {
	var max int
	if err := r.db.WithContext(ctx).
		Model(&models.SubmissionVersion{}).
		Where("submission_id = ?", submissionID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

// Create inserts the version together with its files.
func (r *versionRepository) Create(ctx context.Context, version *models.SubmissionVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

func (r *versionRepository) Update(ctx context.Context, version *models.SubmissionVersion) error {
	return r.db.WithContext(ctx).Omit("Files").Save(version).Error
}

func (r *versionRepository) Latest(ctx context.Context, submissionID uint) (models.SubmissionVersion, error) {
	var version models.SubmissionVersion
	if err := r.db.WithContext(ctx).
		Preload("Files", orderedFiles).
		Where("submission_id = ?", submissionID).
		Order("version_number DESC").
		First(&version).Error; err != nil {
		return models.SubmissionVersion{}, err
	}
	return version, nil
}

func (r *versionRepository) GetByNumber(ctx context.Context, submissionID uint, number int) (models.SubmissionVersion, error) {
	var version models.SubmissionVersion
	if err := r.db.WithContext(ctx).
		Preload("Files", orderedFiles).
		Where("submission_id = ? AND version_number = ?", submissionID, number).
		First(&version).Error; err != nil {
		return models.SubmissionVersion{}, err
	}
	return version, nil
}

func (r *versionRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionVersion, error) {
	var versions []models.SubmissionVersion
	if err := r.db.WithContext(ctx).
		Preload("Files", orderedFiles).
		Where("submission_id = ?", submissionID).
		Order("version_number ASC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// ListLatestFinal returns the highest-numbered final version of each submission.
func (r *versionRepository) ListLatestFinal(ctx context.Context, submissionIDs []uint) ([]models.SubmissionVersion, error) {
	if len(submissionIDs) == 0 {
		return nil, nil
	}
	var versions []models.SubmissionVersion
	if err := r.db.WithContext(ctx).
		Where("submission_id IN ? AND is_draft = ?", submissionIDs, false).
		Order("submission_id ASC, version_number DESC").
		Find(&versions).Error; err != nil {
		return nil, err
	}

	latest := make([]models.SubmissionVersion, 0, len(submissionIDs))
	seen := make(map[uint]struct{}, len(submissionIDs))
	for _, v := range versions {
		if _, ok := seen[v.SubmissionID]; ok {
			continue
		}
		seen[v.SubmissionID] = struct{}{}
		latest = append(latest, v)
	}
	return latest, nil
}

// Delete removes the version, its files and its plagiarism report.
func (r *versionRepository) Delete(ctx context.Context, version models.SubmissionVersion) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("version_id = ?", version.ID).Delete(&models.SubmissionFile{}).Error; err != nil {
		return err
	}
	if err := db.Where("version_id = ?", version.ID).Delete(&models.PlagiarismReport{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.SubmissionVersion{}, version.ID).Error
}

// ReferencedStoredNames returns the subset of storedNames still used by a file row.
func (r *versionRepository) ReferencedStoredNames(ctx context.Context, storedNames []string) ([]string, error) {
	if len(storedNames) == 0 {
		return nil, nil
	}
	var names []string
	if err := r.db.WithContext(ctx).
		Model(&models.SubmissionFile{}).
		Where("stored_filename IN ?", storedNames).
		Distinct().
		Pluck("stored_filename", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}
