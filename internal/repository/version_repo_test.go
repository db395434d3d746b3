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

func seedSubmission(t *testing.T, db *gorm.DB) models.Submission {
	t.Helper()
	assignment := seedAssignment(t, db)
	submission := models.Submission{AssignmentID: assignment.ID, StudentID: 3, Status: models.SubmissionStatusDraft, Attempt: 1}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestVersionRepositoryNumbering(t *testing.T) {
	db := setupTestDB(t)
	submission := seedSubmission(t, db)
	repo := NewVersionRepository(db)
	ctx := context.Background()

	max, err := repo.MaxNumber(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, 0, max)

	for n := 1; n <= 3; n++ {
		require.NoError(t, repo.Create(ctx, &models.SubmissionVersion{
			SubmissionID:  submission.ID,
			VersionNumber: n,
			Attempt:       1,
			IsDraft:       true,
			Files: []models.SubmissionFile{
				{OriginalFilename: "b.pdf", StoredFilename: "stored-b", Size: 2, UploadOrder: 2},
				{OriginalFilename: "a.pdf", StoredFilename: "stored-a", Size: 1, UploadOrder: 1},
			},
		}))
	}

	max, err = repo.MaxNumber(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, 3, max)

	latest, err := repo.Latest(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, 3, latest.VersionNumber)
	require.Len(t, latest.Files, 2)
	require.Equal(t, "a.pdf", latest.Files[0].OriginalFilename)

	duplicate := models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 3, Attempt: 1}
	require.Error(t, repo.Create(ctx, &duplicate))
}

func TestVersionRepositoryRejectsDuplicateNumber(t *testing.T) {
	db := setupTestDB(t)
	submission := seedSubmission(t, db)
	other := seedSubmission(t, db)
	repo := NewVersionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 1, Attempt: 1, Content: "first", IsDraft: true}))

	err := db.Create(&models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 1, Attempt: 1, Content: "racer", IsDraft: true}).Error
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.SubmissionVersion{}).Where("submission_id = ?", submission.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
	latest, err := repo.Latest(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, "first", latest.Content)

	require.NoError(t, repo.Create(ctx, &models.SubmissionVersion{SubmissionID: other.ID, VersionNumber: 1, Attempt: 1, IsDraft: true}))
}

func TestVersionRepositoryDeleteAndReferencedNames(t *testing.T) {
	db := setupTestDB(t)
	submission := seedSubmission(t, db)
	repo := NewVersionRepository(db)
	plagiarism := NewPlagiarismRepository(db)
	ctx := context.Background()

	v1 := models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 1, Attempt: 1, IsDraft: true, Files: []models.SubmissionFile{
		{OriginalFilename: "shared.pdf", StoredFilename: "shared", Size: 1, UploadOrder: 1},
		{OriginalFilename: "only.pdf", StoredFilename: "only-v1", Size: 1, UploadOrder: 2},
	}}
	v2 := models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 2, Attempt: 1, IsDraft: true, Files: []models.SubmissionFile{
		{OriginalFilename: "shared.pdf", StoredFilename: "shared", Size: 1, UploadOrder: 1},
	}}
	require.NoError(t, repo.Create(ctx, &v1))
	require.NoError(t, repo.Create(ctx, &v2))
	require.NoError(t, plagiarism.Upsert(ctx, &models.PlagiarismReport{VersionID: v1.ID, Provider: "turnitin", SimilarityScore: 12, CheckedAt: time.Now()}))

	require.NoError(t, repo.Delete(ctx, v1))

	_, err := repo.GetByNumber(ctx, submission.ID, 1)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	_, err = plagiarism.GetByVersion(ctx, v1.ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	var fileCount int64
	require.NoError(t, db.Model(&models.SubmissionFile{}).Where("version_id = ?", v1.ID).Count(&fileCount).Error)
	require.Zero(t, fileCount)

	referenced, err := repo.ReferencedStoredNames(ctx, []string{"shared", "only-v1"})
	require.NoError(t, err)
	require.Equal(t, []string{"shared"}, referenced)

	max, err := repo.MaxNumber(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, 2, max)
}

func TestVersionRepositoryListLatestFinal(t *testing.T) {
	db := setupTestDB(t)
	submission := seedSubmission(t, db)
	repo := NewVersionRepository(db)
	ctx := context.Background()

	answers := datatypes.JSON(`{"0":"a"}`)
	require.NoError(t, repo.Create(ctx, &models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 1, Attempt: 1, IsDraft: false, QuizAnswers: answers}))
	require.NoError(t, repo.Create(ctx, &models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 2, Attempt: 2, IsDraft: false, QuizAnswers: answers}))
	require.NoError(t, repo.Create(ctx, &models.SubmissionVersion{SubmissionID: submission.ID, VersionNumber: 3, Attempt: 3, IsDraft: true}))

	versions, err := repo.ListLatestFinal(ctx, []uint{submission.ID})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, 2, versions[0].VersionNumber)
}
