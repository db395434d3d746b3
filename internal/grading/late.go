package grading

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CapMode decides what happens past the maximum number of late days.
type CapMode string

const (
	// CapFreeze keeps accepting the submission with the penalty frozen at the max-late-days value.
	CapFreeze CapMode = "freeze"
	// CapReject refuses submissions later than the max-late-days window.
	CapReject CapMode = "reject"
)

// ParseCapMode parses a configured cap mode. Empty input selects CapFreeze.
func ParseCapMode(value string) (CapMode, error) {
	switch CapMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", CapFreeze:
		return CapFreeze, nil
	case CapReject:
		return CapReject, nil
	default:
		return "", fmt.Errorf("unknown late cap mode %q", value)
	}
}

// LatePolicy is the late-submission policy of an assignment.
type LatePolicy struct {
	AllowLate     bool
	PenaltyPerDay float64
	MaxLateDays   int
}

// LateAssessment describes how late a submission is and what it costs.
type LateAssessment struct {
	DaysLate          int
	EffectiveDays     int
	PenaltyPercentage float64
	Accepted          bool
}

// IsLate reports whether the submission arrived after the due date.
func (a LateAssessment) IsLate() bool {
	return a.DaysLate > 0
}

// DaysLate counts started days past due. Submissions on time return 0.
func DaysLate(due, submittedAt time.Time) int {
	diff := submittedAt.Sub(due)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// AssessLateness applies policy to a submission time.
func AssessLateness(due, submittedAt time.Time, policy LatePolicy, mode CapMode) LateAssessment {
	days := DaysLate(due, submittedAt)
	assessment := LateAssessment{DaysLate: days, Accepted: true}
	if days == 0 {
		return assessment
	}
	if !policy.AllowLate {
		assessment.Accepted = false
		return assessment
	}

	effective := days
	if policy.MaxLateDays > 0 && days > policy.MaxLateDays {
		if mode == CapReject {
			assessment.Accepted = false
			return assessment
		}
		effective = policy.MaxLateDays
	}

	assessment.EffectiveDays = effective
	assessment.PenaltyPercentage = math.Min(float64(effective)*policy.PenaltyPerDay, 100)
	if assessment.PenaltyPercentage < 0 {
		assessment.PenaltyPercentage = 0
	}
	return assessment
}

// ApplyPenalty reduces a grade by a percentage.
func ApplyPenalty(original, penaltyPercentage float64) float64 {
	return Round2(original * (1 - penaltyPercentage/100))
}
