package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// Migrate creates or updates every table owned by the grading engine.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
