package grading

import "math"

// Difficulty labels assigned to quiz questions from their success rate.
const (
	DifficultyEasy     = "Easy"
	DifficultyMedium   = "Medium"
	DifficultyHard     = "Hard"
	DifficultyVeryHard = "Very Hard"
	DifficultyUnknown  = "Unknown"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStdDev returns the population standard deviation of values.
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// MinMax returns the lowest and highest value. Both are 0 for an empty slice.
func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Distribution counts percentages per letter band. Every band is present in the result.
func Distribution(percentages []float64) map[string]int {
	counts := make(map[string]int, len(letterBands))
	for _, band := range letterBands {
		counts[band.Letter] = 0
	}
	for _, p := range percentages {
		counts[LetterGrade(p)]++
	}
	return counts
}

// Rate returns part/total as a percentage, 0 when total is 0.
func Rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// DifficultyLabel buckets a question success rate (0-100).
func DifficultyLabel(successRate float64, answered int) string {
	if answered == 0 {
		return DifficultyUnknown
	}
	switch {
	case successRate >= 80:
		return DifficultyEasy
	case successRate >= 60:
		return DifficultyMedium
	case successRate >= 40:
		return DifficultyHard
	default:
		return DifficultyVeryHard
	}
}
