package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func historySources(t *testing.T, h *harness, submissionID uint) []models.GradeSource {
	t.Helper()
	history, err := h.uow.Repositories().Submissions.ListHistory(testContext, submissionID)
	require.NoError(t, err)
	sources := make([]models.GradeSource, 0, len(history))
	for _, entry := range history {
		sources = append(sources, entry.Source)
	}
	return sources
}

func TestLateSubmissionGradeWaiveAndRegrade(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "late essay"})
	require.NoError(t, h.submitAt(t, draft.ID, threeLate))

	_, err := h.penalties.GetLatePenalty(testContext, draft.ID)
	require.ErrorIs(t, err, ErrLatePenaltyNotFound)

	graded, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 80, Feedback: "solid"}, teacher)
	require.NoError(t, err)
	require.Equal(t, 80.0, *graded.RawGrade)
	require.Equal(t, 56.0, *graded.Grade)
	require.NotNil(t, graded.LatePenalty)
	require.Equal(t, 3, graded.LatePenalty.DaysLate)
	require.Equal(t, 30.0, graded.LatePenalty.PenaltyPercentage)
	require.Equal(t, 80.0, graded.LatePenalty.OriginalGrade)
	require.Equal(t, 56.0, graded.LatePenalty.FinalGrade)
	require.False(t, graded.LatePenalty.Waived)

	applied, err := h.penalties.ApplyLatePenalty(testContext, draft.ID)
	require.NoError(t, err)
	require.Equal(t, 56.0, applied.FinalGrade)
	again, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 80, Feedback: "solid"}, teacher)
	require.NoError(t, err)
	require.Equal(t, 56.0, *again.Grade)
	require.Equal(t, []models.GradeSource{models.GradeSourceManual, models.GradeSourcePenalty}, historySources(t, h, draft.ID))

	waived, err := h.penalties.WaiveLatePenalty(testContext, draft.ID, dto.WaiveLatePenaltyRequest{Reason: "medical <b>note</b>"}, teacher)
	require.NoError(t, err)
	require.True(t, waived.Waived)
	require.Equal(t, "medical note", waived.WaivedReason)
	require.Equal(t, teacher.ID, *waived.WaivedBy)

	view, err := h.submission.GetWithVersions(testContext, draft.ID, student)
	require.NoError(t, err)
	require.Equal(t, 80.0, *view.Grade)
	require.True(t, view.LatePenalty.Waived)

	_, err = h.penalties.WaiveLatePenalty(testContext, draft.ID, dto.WaiveLatePenaltyRequest{Reason: "twice over"}, teacher)
	require.ErrorIs(t, err, ErrPenaltyAlreadyWaived)
	require.Equal(t, KindStateConflict, KindOf(err))

	regraded, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 90, Feedback: "revised"}, teacher)
	require.NoError(t, err)
	require.Equal(t, 90.0, *regraded.Grade)
	require.True(t, regraded.LatePenalty.Waived)
	require.Equal(t, 63.0, regraded.LatePenalty.FinalGrade)

	require.Contains(t, h.notifier.types(), EventPenaltyWaived)
	require.Contains(t, h.notifier.types(), EventSubmissionGraded)
}

func TestOnTimeSubmissionHasNoPenalty(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "on time"})
	require.NoError(t, h.submitAt(t, draft.ID, onTime))

	graded, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 75}, teacher)
	require.NoError(t, err)
	require.Equal(t, 75.0, *graded.Grade)
	require.Nil(t, graded.LatePenalty)

	record, err := h.penalties.ApplyLatePenalty(testContext, draft.ID)
	require.NoError(t, err)
	require.Nil(t, record)

	_, err = h.penalties.WaiveLatePenalty(testContext, draft.ID, dto.WaiveLatePenaltyRequest{Reason: "nothing to waive"}, teacher)
	require.ErrorIs(t, err, ErrLatePenaltyNotFound)
}

func TestLatePenaltyFreezesPastMaxDays(t *testing.T) {
	h := newHarness(t, SubmissionOptions{LateCapMode: grading.CapFreeze})
	assignment := createAssignment(t, h.db, nil)

	draft := saveDraft(t, h, assignment.ID, dto.SaveDraftRequest{Content: "very late"})
	require.NoError(t, h.submitAt(t, draft.ID, dueDate.Add(7*24*time.Hour+time.Hour)))

	graded, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 80}, teacher)
	require.NoError(t, err)
	require.Equal(t, 8, graded.LatePenalty.DaysLate)
	require.Equal(t, 50.0, graded.LatePenalty.PenaltyPercentage)
	require.Equal(t, 40.0, *graded.Grade)
}

func TestLatePenaltyRejectModeBoundary(t *testing.T) {
	h := newHarness(t, SubmissionOptions{LateCapMode: grading.CapReject})
	assignment := createAssignment(t, h.db, nil)
	svc := h.submission.(*submissionService)

	atLimit := ActivityActor{ID: 21, Role: "student"}
	draft, err := h.submission.SaveDraft(testContext, assignment.ID, dto.SaveDraftRequest{Content: "last minute"}, atLimit)
	require.NoError(t, err)
	svc.now = fixedClock(dueDate.Add(5 * 24 * time.Hour))
	submitted, err := h.submission.SubmitFinal(testContext, draft.ID, atLimit)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusSubmitted), submitted.Status)

	graded, err := h.grading.Grade(testContext, draft.ID, dto.GradeRequest{Grade: 80}, teacher)
	require.NoError(t, err)
	require.Equal(t, 5, graded.LatePenalty.DaysLate)
	require.Equal(t, 40.0, *graded.Grade)

	pastLimit := ActivityActor{ID: 22, Role: "student"}
	draft, err = h.submission.SaveDraft(testContext, assignment.ID, dto.SaveDraftRequest{Content: "too late"}, pastLimit)
	require.NoError(t, err)
	svc.now = fixedClock(dueDate.Add(5*24*time.Hour + time.Second))
	_, err = h.submission.SubmitFinal(testContext, draft.ID, pastLimit)
	require.ErrorIs(t, err, ErrLateSubmissionRejected)
}

func TestWaiveRequiresReason(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})

	_, err := h.penalties.WaiveLatePenalty(testContext, 1, dto.WaiveLatePenaltyRequest{Reason: "<script></script>"}, teacher)
	require.Error(t, err)
	require.Equal(t, KindValidation, KindOf(err))
}
