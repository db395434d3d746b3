package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func weightOf(v float64) *float64 { return &v }

func essayRubric() dto.RubricRequest {
	return dto.RubricRequest{
		Title: "Essay rubric",
		Criteria: []grading.Criterion{
			{ID: "thesis", Name: "Thesis", MaxPoints: 10, Weight: weightOf(2)},
			{ID: "evidence", Name: "Evidence", MaxPoints: 20},
			{ID: "style", Name: "Style", MaxPoints: 10, Weight: weightOf(0.5)},
		},
	}
}

func TestDefineRubricValidates(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)

	invalid := essayRubric()
	invalid.Criteria[1].ID = "thesis"
	_, err := h.rubrics.DefineRubric(testContext, assignment.ID, invalid, teacher)
	require.ErrorIs(t, err, grading.ErrInvalid)

	overweight := essayRubric()
	overweight.Criteria[0].Weight = weightOf(3)
	_, err = h.rubrics.DefineRubric(testContext, assignment.ID, overweight, teacher)
	require.ErrorIs(t, err, grading.ErrInvalid)

	_, err = h.rubrics.DefineRubric(testContext, 555, essayRubric(), teacher)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	created, err := h.rubrics.DefineRubric(testContext, assignment.ID, essayRubric(), teacher)
	require.NoError(t, err)
	require.Len(t, created.Criteria, 3)

	listed, err := h.rubrics.ListRubrics(testContext, assignment.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, created.ID, listed[0].ID)
}

func TestCalculateRubricUnweightedAndWeighted(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, nil)
	rubric, err := h.rubrics.DefineRubric(testContext, assignment.ID, essayRubric(), teacher)
	require.NoError(t, err)

	scores := map[string]float64{"thesis": 10, "evidence": 10, "style": 0}
	plain, err := h.rubrics.Calculate(testContext, rubric.ID, dto.RubricScoreRequest{Scores: scores})
	require.NoError(t, err)
	require.False(t, plain.Weighted)
	require.Equal(t, 20.0, plain.TotalScore)
	require.Equal(t, 40.0, plain.MaxScore)
	require.Equal(t, 50.0, plain.Percentage)

	weighted, err := h.rubrics.Calculate(testContext, rubric.ID, dto.RubricScoreRequest{Scores: scores, Weighted: true})
	require.NoError(t, err)
	require.True(t, weighted.Weighted)
	require.Equal(t, 71.43, weighted.Percentage)

	_, err = h.rubrics.Calculate(testContext, rubric.ID, dto.RubricScoreRequest{Scores: map[string]float64{"thesis": 11}})
	require.ErrorIs(t, err, grading.ErrInvalid)
}

func TestGradeWithRubricScalesToAssignmentMax(t *testing.T) {
	h := newHarness(t, SubmissionOptions{})
	assignment := createAssignment(t, h.db, func(a *models.Assignment) { a.MaxScore = 50 })
	other := createAssignment(t, h.db, nil)
	rubric, err := h.rubrics.DefineRubric(testContext, assignment.ID, essayRubric(), teacher)
	require.NoError(t, err)
	foreign, err := h.rubrics.DefineRubric(testContext, other.ID, essayRubric(), teacher)
	require.NoError(t, err)

	id := submittedDraft(t, h, assignment.ID, student)

	_, err = h.rubrics.GradeWithRubric(testContext, id, dto.RubricGradeRequest{RubricID: foreign.ID, Scores: map[string]float64{"thesis": 5}}, teacher)
	require.ErrorIs(t, err, ErrRubricAssignment)

	result, err := h.rubrics.GradeWithRubric(testContext, id, dto.RubricGradeRequest{
		RubricID: rubric.ID,
		Scores:   map[string]float64{"thesis": 9, "evidence": 18, "style": 7},
		Feedback: "well argued",
	}, teacher)
	require.NoError(t, err)
	require.Equal(t, 85.0, result.Result.Percentage)
	require.Equal(t, "A-", result.Result.LetterGrade)
	require.Equal(t, 42.5, *result.Submission.Grade)
	require.LessOrEqual(t, *result.Submission.Grade, assignment.MaxScore)

	assessments, err := h.uow.Repositories().Rubrics.ListAssessments(testContext, id)
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	require.Equal(t, 34.0, assessments[0].TotalScore)
	require.Equal(t, []models.GradeSource{models.GradeSourceRubric}, historySources(t, h, id))
}
