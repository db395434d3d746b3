package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var due = time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC)

func TestDaysLate(t *testing.T) {
	require.Equal(t, 0, DaysLate(due, due))
	require.Equal(t, 0, DaysLate(due, due.Add(-time.Hour)))
	require.Equal(t, 1, DaysLate(due, due.Add(time.Second)))
	require.Equal(t, 1, DaysLate(due, due.Add(24*time.Hour)))
	require.Equal(t, 2, DaysLate(due, due.Add(24*time.Hour+time.Second)))
	require.Equal(t, 3, DaysLate(due, time.Date(2025, 1, 13, 12, 0, 0, 0, time.UTC)))
}

func TestAssessLatenessPenalty(t *testing.T) {
	policy := LatePolicy{AllowLate: true, PenaltyPerDay: 10}

	onTime := AssessLateness(due, due.Add(-time.Minute), policy, CapFreeze)
	require.False(t, onTime.IsLate())
	require.True(t, onTime.Accepted)
	require.Zero(t, onTime.PenaltyPercentage)

	late := AssessLateness(due, due.Add(60*time.Hour), policy, CapFreeze)
	require.Equal(t, 3, late.DaysLate)
	require.Equal(t, 30.0, late.PenaltyPercentage)
	require.Equal(t, 56.0, ApplyPenalty(80, late.PenaltyPercentage))

	veryLate := AssessLateness(due, due.Add(30*24*time.Hour), policy, CapFreeze)
	require.Equal(t, 100.0, veryLate.PenaltyPercentage)
	require.Equal(t, 0.0, ApplyPenalty(80, veryLate.PenaltyPercentage))
}

func TestAssessLatenessDisallowed(t *testing.T) {
	assessment := AssessLateness(due, due.Add(time.Hour), LatePolicy{AllowLate: false, PenaltyPerDay: 10}, CapFreeze)
	require.True(t, assessment.IsLate())
	require.False(t, assessment.Accepted)
	require.Zero(t, assessment.PenaltyPercentage)
}

func TestAssessLatenessCapModes(t *testing.T) {
	policy := LatePolicy{AllowLate: true, PenaltyPerDay: 10, MaxLateDays: 3}
	atCap := due.Add(72 * time.Hour)
	pastCap := due.Add(72*time.Hour + time.Second)

	for _, mode := range []CapMode{CapFreeze, CapReject} {
		a := AssessLateness(due, atCap, policy, mode)
		require.True(t, a.Accepted, mode)
		require.Equal(t, 3, a.EffectiveDays)
		require.Equal(t, 30.0, a.PenaltyPercentage)
	}

	frozen := AssessLateness(due, pastCap, policy, CapFreeze)
	require.True(t, frozen.Accepted)
	require.Equal(t, 4, frozen.DaysLate)
	require.Equal(t, 3, frozen.EffectiveDays)
	require.Equal(t, 30.0, frozen.PenaltyPercentage)

	rejected := AssessLateness(due, pastCap, policy, CapReject)
	require.False(t, rejected.Accepted)
	require.Equal(t, 4, rejected.DaysLate)
	require.Zero(t, rejected.PenaltyPercentage)
}

func TestParseCapMode(t *testing.T) {
	mode, err := ParseCapMode("")
	require.NoError(t, err)
	require.Equal(t, CapFreeze, mode)

	mode, err = ParseCapMode(" Reject ")
	require.NoError(t, err)
	require.Equal(t, CapReject, mode)

	_, err = ParseCapMode("explode")
	require.Error(t, err)
}
