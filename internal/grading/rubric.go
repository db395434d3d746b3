package grading

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultCriterionWeight applies when a criterion omits its weight.
	DefaultCriterionWeight = 1.0
	// MaxCriterionWeight is the upper bound accepted for a criterion weight.
	MaxCriterionWeight = 2.0
)

// RubricLevel is a named performance level inside a criterion.
type RubricLevel struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Points      float64 `json:"points"`
}

// Criterion is one point-bounded dimension of a rubric.
type Criterion struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	MaxPoints   float64       `json:"max_points"`
	Weight      *float64      `json:"weight,omitempty"`
	Levels      []RubricLevel `json:"levels,omitempty"`
}

// EffectiveWeight returns the configured weight or the default.
func (c Criterion) EffectiveWeight() float64 {
	if c.Weight == nil {
		return DefaultCriterionWeight
	}
	return *c.Weight
}

// Rubric is an ordered set of criteria.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
}

// CriterionScore is the per-criterion breakdown of a rubric result.
type CriterionScore struct {
	CriterionID string  `json:"criterion_id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	MaxPoints   float64 `json:"max_points"`
	Percentage  float64 `json:"percentage"`
	Weight      float64 `json:"weight"`
}

// RubricResult is the outcome of scoring a rubric.
type RubricResult struct {
	TotalScore  float64          `json:"total_score"`
	MaxScore    float64          `json:"max_score"`
	Percentage  float64          `json:"percentage"`
	LetterGrade string           `json:"letter_grade"`
	Weighted    bool             `json:"weighted"`
	Breakdown   []CriterionScore `json:"breakdown"`
}

// ValidateRubric checks a rubric definition before it is stored.
func ValidateRubric(r Rubric) error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("%w: rubric needs at least one criterion", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(r.Criteria))
	for i, c := range r.Criteria {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("%w: criterion %d has no id", ErrInvalid, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate criterion id %q", ErrInvalid, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: criterion %q has no name", ErrInvalid, id)
		}
		if c.MaxPoints <= 0 {
			return fmt.Errorf("%w: criterion %q max points must be positive", ErrInvalid, id)
		}
		if w := c.EffectiveWeight(); w < 0 || w > MaxCriterionWeight {
			return fmt.Errorf("%w: criterion %q weight %.2f outside [0,%.0f]", ErrInvalid, id, w, MaxCriterionWeight)
		}
		for _, level := range c.Levels {
			if level.Points < 0 || level.Points > c.MaxPoints {
				return fmt.Errorf("%w: level %q of criterion %q exceeds max points", ErrInvalid, level.Name, id)
			}
		}
	}
	return nil
}

// CalculateRubricGrade sums raw criterion scores. Weights are ignored here; see CalculateWeightedRubricGrade.
func CalculateRubricGrade(r Rubric, scores map[string]float64) (RubricResult, error) {
	if err := checkScores(r, scores); err != nil {
		return RubricResult{}, err
	}

	result := RubricResult{Breakdown: make([]CriterionScore, 0, len(r.Criteria))}
	for _, c := range r.Criteria {
		score := scores[c.ID]
		result.TotalScore += score
		result.MaxScore += c.MaxPoints
		result.Breakdown = append(result.Breakdown, CriterionScore{
			CriterionID: c.ID,
			Name:        c.Name,
			Score:       score,
			MaxPoints:   c.MaxPoints,
			Percentage:  Round2(Percentage(score, c.MaxPoints)),
			Weight:      c.EffectiveWeight(),
		})
	}

	result.Percentage = Round2(Percentage(result.TotalScore, result.MaxScore))
	result.LetterGrade = LetterGrade(result.Percentage)
	return result, nil
}

// CalculateWeightedRubricGrade scores each criterion as a fraction of its max and averages by weight.
func CalculateWeightedRubricGrade(r Rubric, scores map[string]float64) (RubricResult, error) {
	result, err := CalculateRubricGrade(r, scores)
	if err != nil {
		return RubricResult{}, err
	}

	var weighted, weights float64
	for _, c := range r.Criteria {
		w := c.EffectiveWeight()
		weighted += scores[c.ID] / c.MaxPoints * w
		weights += w
	}

	result.Weighted = true
	if weights == 0 {
		result.Percentage = 0
	} else {
		result.Percentage = Round2(weighted / weights * 100)
	}
	result.LetterGrade = LetterGrade(result.Percentage)
	return result, nil
}

// checkScores reports the first invalid score in criterion order, then the first unknown id in sorted order.
func checkScores(r Rubric, scores map[string]float64) error {
	known := make(map[string]struct{}, len(r.Criteria))
	for _, c := range r.Criteria {
		known[c.ID] = struct{}{}
		score, ok := scores[c.ID]
		if !ok {
			continue
		}
		if score < 0 {
			return fmt.Errorf("%w: score for %q must not be negative", ErrInvalid, c.ID)
		}
		if score > c.MaxPoints {
			return fmt.Errorf("%w: score %.2f for %q exceeds max points %.2f", ErrInvalid, score, c.ID, c.MaxPoints)
		}
	}

	unknown := make([]string, 0)
	for id := range scores {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown criterion %q", ErrInvalid, unknown[0])
	}
	return nil
}
