package grading

import "math"

// PassingThreshold is the minimum percentage counted as a pass.
const PassingThreshold = 60.0

// LetterBand is one step of the letter grade table.
type LetterBand struct {
	Letter string
	Min    float64
}

// letterBands is ordered from the highest band to the lowest. The cut points are policy, not a formula.
var letterBands = []LetterBand{
	{Letter: "A+", Min: 95},
	{Letter: "A", Min: 90},
	{Letter: "A-", Min: 85},
	{Letter: "B+", Min: 80},
	{Letter: "B", Min: 75},
	{Letter: "B-", Min: 70},
	{Letter: "C+", Min: 65},
	{Letter: "C", Min: 60},
	{Letter: "C-", Min: 55},
	{Letter: "D+", Min: 50},
	{Letter: "D", Min: 45},
	{Letter: "D-", Min: 40},
	{Letter: "F", Min: math.Inf(-1)},
}

// LetterBands returns a copy of the letter grade table, highest band first.
func LetterBands() []LetterBand {
	return append([]LetterBand(nil), letterBands...)
}

// Letters lists every letter grade symbol, highest band first.
func Letters() []string {
	letters := make([]string, 0, len(letterBands))
	for _, band := range letterBands {
		letters = append(letters, band.Letter)
	}
	return letters
}

// LetterGrade maps a percentage onto its letter grade band.
func LetterGrade(percentage float64) string {
	for _, band := range letterBands {
		if percentage >= band.Min {
			return band.Letter
		}
	}
	return "F"
}

// Percentage converts a score into a percentage of maxScore. A non-positive maxScore yields 0.
func Percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return score / maxScore * 100
}

// Round2 rounds to the two decimal places used for stored grades.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// IsPassing reports whether a percentage meets the passing threshold.
func IsPassing(percentage float64) bool {
	return percentage >= PassingThreshold
}
