package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func seedAssignment(t *testing.T, db *gorm.DB) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		CourseID: 1,
		Title:    "Quiz 1",
		Type:     models.AssignmentTypeQuiz,
		DueDate:  time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC),
		MaxScore: 100,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}
