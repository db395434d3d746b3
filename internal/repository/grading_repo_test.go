package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func TestGradingRuleRepositoryReplaceIsFull(t *testing.T) {
	db := setupTestDB(t)
	assignment := seedAssignment(t, db)
	repo := NewGradingRuleRepository(db)
	ctx := context.Background()

	first := []models.AutomatedGradingRule{
		{QuestionIndex: 0, QuestionType: "short_answer", CorrectAnswer: "2x", Points: 10},
		{QuestionIndex: 1, QuestionType: "true_false", CorrectAnswer: "true", Points: 5},
	}
	require.NoError(t, repo.ReplaceForAssignment(ctx, assignment.ID, first))

	second := []models.AutomatedGradingRule{
		{QuestionIndex: 2, QuestionType: "multiple_choice", CorrectAnswer: "B", Points: 4, Variations: datatypes.JSON(`[]`)},
	}
	require.NoError(t, repo.ReplaceForAssignment(ctx, assignment.ID, second))

	rules, err := repo.ListByAssignment(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, 2, rules[0].QuestionIndex)
	require.Equal(t, assignment.ID, rules[0].AssignmentID)

	require.NoError(t, repo.ReplaceForAssignment(ctx, assignment.ID, nil))
	rules, err = repo.ListByAssignment(ctx, assignment.ID)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestLateSubmissionRepositoryOnePerSubmission(t *testing.T) {
	db := setupTestDB(t)
	submission := seedSubmission(t, db)
	repo := NewLateSubmissionRepository(db)
	ctx := context.Background()

	record := models.LateSubmissionRecord{SubmissionID: submission.ID, VersionNumber: 1, DaysLate: 3, PenaltyPercentage: 30, OriginalGrade: 80, FinalGrade: 56}
	require.NoError(t, repo.Save(ctx, &record))

	record.FinalGrade = 60
	require.NoError(t, repo.Save(ctx, &record))

	clash := models.LateSubmissionRecord{SubmissionID: submission.ID, VersionNumber: 1, DaysLate: 1}
	require.Error(t, repo.Save(ctx, &clash))

	stored, err := repo.GetBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, 60.0, stored.FinalGrade)

	listed, err := repo.ListBySubmissions(ctx, []uint{submission.ID, 999})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, repo.DeleteBySubmission(ctx, submission.ID))
	_, err = repo.GetBySubmission(ctx, submission.ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestPlagiarismRepositoryUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlagiarismRepository(db)
	ctx := context.Background()

	checked := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &models.PlagiarismReport{VersionID: 9, Provider: "copyleaks", SimilarityScore: 10, CheckedAt: checked}))
	require.NoError(t, repo.Upsert(ctx, &models.PlagiarismReport{VersionID: 9, Provider: "copyleaks", SimilarityScore: 35.5, CheckedAt: checked.Add(time.Hour)}))

	var count int64
	require.NoError(t, db.Model(&models.PlagiarismReport{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	report, err := repo.GetByVersion(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 35.5, report.SimilarityScore)
}

func TestActivityLogRepositoryFiltersByEntity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	one, two := uint(1), uint(2)
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 5, ActorRole: "teacher", Action: "submission.graded", EntityType: "submission", EntityID: &one}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 5, ActorRole: "teacher", Action: "late_penalty.waived", EntityType: "submission", EntityID: &one}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 6, ActorRole: "teacher", Action: "submission.graded", EntityType: "submission", EntityID: &two}))

	entries, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "submission", EntityID: &one})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	paged, total, err := repo.List(ctx, ActivityLogFilter{Action: "submission.graded", Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, paged, 1)
}
