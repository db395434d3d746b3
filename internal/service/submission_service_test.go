package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func saveDraft(t *testing.T, h *harness, assignmentID uint, payload dto.SaveDraftRequest) dto.SubmissionResponse {
	t.Helper()
	response, err := h.submission.SaveDraft(testContext, assignmentID, payload, student)
	require.NoError(t, err)
	return response
}

func TestSaveDraftAppendsVersions(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	first := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "first draft", AutoSaved: true})
	require.Equal(t, 1, first.LatestVersion)
	require.Equal(t, string(models.SubmissionStatusDraft), first.Status)
	require.True(t, first.CurrentVersion.AutoSaved)

	second := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "second draft"})
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 2, second.LatestVersion)
	require.Equal(t, "second draft", second.Content)

	view, err := h.submission.GetWithVersions(testContext, second.ID, student)
	require.NoError(t, err)
	require.Len(t, view.Versions, 2)
	require.Equal(t, 1, view.Versions[0].VersionNumber)
	require.Equal(t, 2, view.Versions[1].VersionNumber)
	require.Equal(t, "second draft", view.CurrentVersion.Content)

	latest, err := h.submission.GetLatestVersion(testContext, assignment.ID, student.ID)
	require.NoError(t, err)
	require.Equal(t, 2, latest.LatestVersion)
}

func TestSaveDraftUnknownAssignment(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})

	_, err := h.submission.SaveDraft(testContext, 404, dto.SaveDraftRequest{Content: "x"}, student)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
	require.Equal(t, KindNotFound, KindOf(err))
}

// The sqlite pool has a single connection, so these writers are serialized and the row lock is
// never contended. The version uniqueness constraint itself is covered in the repository tests.
func TestConcurrentSavesProduceDenseVersionNumbers(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.submission.SaveDraft(testContext, assignment.ID, dto.SaveDraftRequest{Content: "autosave", AutoSaved: true}, student)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	submission, err := h.uow.Repositories().Submissions.GetByAssignmentAndStudent(testContext, assignment.ID, student.ID)
	require.NoError(t, err)
	versions, err := h.uow.Repositories().Versions.ListBySubmission(testContext, submission.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers)
	for i, v := range versions {
		require.Equal(t, i+1, v.VersionNumber)
	}
	require.Equal(t, writers, submission.LatestVersion)
}

func TestSubmitFinalLockedPolicyRejectsNewDrafts(t *testing.T) {
	h := newHarness(t, SubmissionOptions{ResubmissionPolicy: config.ResubmissionLocked})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "done"})
	require.NoError(t, h.submitAt(t, draft.ID, onTime))

	_, err := h.submission.SaveDraft(testContext, assignment.ID, dto.SaveDraftRequest{Content: "more"}, student)
	require.ErrorIs(t, err, ErrSubmissionFinal)
	require.Equal(t, KindStateConflict, KindOf(err))

	require.ErrorIs(t, h.submitAt(t, draft.ID, onTime), ErrSubmissionFinal)

	view, err := h.submission.GetWithVersions(testContext, draft.ID, teacher)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusSubmitted), view.Status)
	require.Len(t, view.Versions, 1)
	require.False(t, view.Versions[0].IsDraft)
	require.NotNil(t, view.Versions[0].SubmittedAt)
}

func TestNewAttemptPolicyOpensFreshAttempt(t *testing.T) {
	h := newHarness(t, SubmissionOptions{ResubmissionPolicy: config.ResubmissionNewAttempt})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "attempt one"})
	require.NoError(t, h.submitAt(t, draft.ID, threeLate))
	_, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 80}, teacher)
	require.NoError(t, err)

	next := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "attempt two"})
	require.Equal(t, draft.ID, next.ID)
	require.Equal(t, 2, next.Attempt)
	require.Equal(t, 2, next.LatestVersion)
	require.Equal(t, string(models.SubmissionStatusDraft), next.Status)
	require.Nil(t, next.Grade)
	require.Nil(t, next.RawGrade)
	require.Nil(t, next.SubmittedAt)

	_, err = h.penalties.GetLatePenalty(testContext, draft.ID)
	require.ErrorIs(t, err, ErrLatePenaltyNotFound)

	view, err := h.submission.GetWithVersions(testContext, draft.ID, student)
	require.NoError(t, err)
	require.Equal(t, 1, view.Versions[0].Attempt)
	require.Equal(t, 2, view.Versions[1].Attempt)
	require.NotEmpty(t, view.History)
}

func TestSubmitFinalWithoutVersions(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)
	submission := models.Submission{AssignmentID: assignment.ID, StudentID: student.ID, Status: models.SubmissionStatusDraft, Attempt: 1}
	require.NoError(t, h.db.Create(&submission).Error)

	err := h.submitAt(t, submission.ID, onTime)
	require.ErrorIs(t, err, ErrNoVersions)
}

func TestSubmitFinalRejectsLateWhenPolicyForbids(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, func(a *models.Assignment) { a.AllowLateSubmissions = false })

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "late"})
	err := h.submitAt(t, draft.ID, threeLate)
	require.ErrorIs(t, err, ErrLateSubmissionRejected)
	require.Equal(t, KindValidation, KindOf(err))

	view, err := h.submission.GetWithVersions(testContext, draft.ID, student)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusDraft), view.Status)
	require.True(t, view.Versions[0].IsDraft)
}

func TestStudentsCannotReachOtherSubmissions(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)
	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "mine"})

	intruder := ActivityActor{ID: 99, Role: "student"}
	_, err := h.submission.GetWithVersions(testContext, draft.ID, intruder)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
	_, err = h.submission.SubmitFinal(testContext, draft.ID, intruder)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSaveDraftStoresAndCarriesFiles(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, func(a *models.Assignment) { a.Type = models.AssignmentTypeFileUpload })

	first := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{
		Files: []dto.FileUpload{{Name: "notes.txt", Data: []byte("plain notes for the essay")}},
	})
	require.Len(t, first.CurrentVersion.Files, 1)
	file := first.CurrentVersion.Files[0]
	require.Equal(t, "notes.txt", file.OriginalFilename)
	require.Equal(t, "text/plain", file.MimeType)
	require.Len(t, file.Hash, 64)
	require.Contains(t, file.URL, file.StoredFilename)

	second := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{
		KeepPreviousFiles: true,
		Files:             []dto.FileUpload{{Name: "appendix.txt", Data: []byte("appendix text")}},
	})
	require.Len(t, second.CurrentVersion.Files, 2)
	require.Equal(t, file.StoredFilename, second.CurrentVersion.Files[0].StoredFilename)
	require.Equal(t, 1, second.CurrentVersion.Files[0].UploadOrder)
	require.Equal(t, 2, second.CurrentVersion.Files[1].UploadOrder)
	require.Equal(t, 2, h.storage.count())
}

func TestSaveDraftStorageFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)
	h.storage.failAt = 2

	_, err := h.submission.SaveDraft(testContext, assignment.ID, dto.SaveDraftRequest{
		Files: []dto.FileUpload{
			{Name: "a.txt", Data: []byte("first file")},
			{Name: "b.txt", Data: []byte("second file")},
		},
	}, student)
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.Equal(t, KindDependencyFailure, KindOf(err))
	require.Equal(t, 0, h.storage.count())
	require.Len(t, h.storage.deleted, 1)

	_, err = h.submission.GetLatestVersion(testContext, assignment.ID, student.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestDeleteVersionRemovesOnlyOrphanedFiles(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	v1 := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{
		Files: []dto.FileUpload{{Name: "a.txt", Data: []byte("alpha")}},
	})
	v2 := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{
		KeepPreviousFiles: true,
		Files:             []dto.FileUpload{{Name: "b.txt", Data: []byte("bravo")}},
	})
	saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "text only"})

	shared := v1.CurrentVersion.Files[0].StoredFilename
	own := v2.CurrentVersion.Files[1].StoredFilename

	result, err := h.submission.DeleteVersion(testContext, v1.ID, 1, student)
	require.NoError(t, err)
	require.Empty(t, result.OrphanedFiles)
	require.Equal(t, 2, h.storage.count())

	_, err = h.submission.DeleteVersion(testContext, v1.ID, 3, student)
	require.ErrorIs(t, err, ErrVersionNotDeletable)

	_, err = h.submission.DeleteVersion(testContext, v1.ID, 1, student)
	require.ErrorIs(t, err, ErrVersionNotFound)

	result, err = h.submission.DeleteVersion(testContext, v1.ID, 2, student)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{shared, own}, result.OrphanedFiles)
	require.Equal(t, 0, h.storage.count())

	view, err := h.submission.GetWithVersions(testContext, v1.ID, student)
	require.NoError(t, err)
	require.Len(t, view.Versions, 1)
	require.Equal(t, 3, view.Versions[0].VersionNumber)

	next := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "after delete"})
	require.Equal(t, 4, next.LatestVersion)
}

func TestDeleteVersionRefusesFinalVersion(t *testing.T) {
	h := newHarness(t, SubmissionOptions{ResubmissionPolicy: config.ResubmissionNewAttempt})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "final"})
	require.NoError(t, h.submitAt(t, draft.ID, onTime))
	saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "attempt two"})

	_, err := h.submission.DeleteVersion(testContext, draft.ID, 1, student)
	require.ErrorIs(t, err, ErrVersionNotDeletable)
}

func TestDeleteVersionKeepsGradedHistoryForStudents(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "outline"})
	saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "full essay"})
	require.NoError(t, h.submitAt(t, draft.ID, onTime))
	_, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 70}, teacher)
	require.NoError(t, err)

	_, err = h.submission.DeleteVersion(testContext, draft.ID, 1, student)
	require.ErrorIs(t, err, ErrSubmissionFinal)
	require.Equal(t, KindStateConflict, KindOf(err))

	view, err := h.submission.GetWithVersions(testContext, draft.ID, student)
	require.NoError(t, err)
	require.Len(t, view.Versions, 2)

	result, err := h.submission.DeleteVersion(testContext, draft.ID, 1, teacher)
	require.NoError(t, err)
	require.Equal(t, 1, result.VersionNumber)
}

func TestDifferenceIsSortedAndDeduplicated(t *testing.T) {
	got := difference([]string{"c", "a", "b", "a"}, []string{"b"})
	require.Equal(t, []string{"a", "c"}, got)
}
