package grading

import (
	"sort"
	"strings"
)

// Rule is the answer key for one objectively gradable question.
type Rule struct {
	QuestionIndex int
	Type          QuestionType
	CorrectAnswer string
	Variations    []string
	CaseSensitive bool
	Points        float64
	PartialCredit []PartialCredit
}

// QuestionResult is the per-question outcome of an automatic grading run.
type QuestionResult struct {
	Index    int          `json:"index"`
	Type     QuestionType `json:"type"`
	Answered bool         `json:"answered"`
	Correct  bool         `json:"correct"`
	Earned   float64      `json:"earned"`
	Points   float64      `json:"points"`
}

// ObjectiveResult aggregates the automatic grading run. Score is nil when there is nothing to grade.
type ObjectiveResult struct {
	Score     *float64         `json:"score"`
	MaxScore  float64          `json:"max_score"`
	Questions []QuestionResult `json:"questions"`
}

// RulesFromQuestions derives the answer key for the objective questions, indexed by position.
func RulesFromQuestions(questions []Question) []Rule {
	rules := make([]Rule, 0, len(questions))
	for i, q := range questions {
		switch v := q.(type) {
		case MultipleChoice:
			rules = append(rules, Rule{
				QuestionIndex: i, Type: v.Type(), CorrectAnswer: v.Correct, Variations: v.Variations,
				CaseSensitive: v.CaseSensitive, Points: v.Points, PartialCredit: v.PartialCredit,
			})
		case TrueFalse:
			correct := "false"
			if v.Correct {
				correct = "true"
			}
			rules = append(rules, Rule{QuestionIndex: i, Type: v.Type(), CorrectAnswer: correct, Points: v.Points})
		case ShortAnswer:
			rules = append(rules, Rule{
				QuestionIndex: i, Type: v.Type(), CorrectAnswer: v.Correct, Variations: v.Variations,
				CaseSensitive: v.CaseSensitive, Points: v.Points, PartialCredit: v.PartialCredit,
			})
		}
	}
	return rules
}

// GradeObjective scores answers against rules. Identical input always yields identical output.
func GradeObjective(answers map[int]string, rules []Rule) ObjectiveResult {
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].QuestionIndex < ordered[j].QuestionIndex })

	result := ObjectiveResult{Questions: make([]QuestionResult, 0, len(ordered))}
	var total float64
	graded := 0
	for _, rule := range ordered {
		if !rule.Type.IsObjective() {
			continue
		}
		graded++
		result.MaxScore += rule.Points

		answer, ok := answers[rule.QuestionIndex]
		qr := QuestionResult{
			Index:    rule.QuestionIndex,
			Type:     rule.Type,
			Answered: ok && strings.TrimSpace(answer) != "",
			Points:   rule.Points,
		}
		if qr.Answered {
			qr.Earned, qr.Correct = rule.Match(answer)
		}
		total += qr.Earned
		result.Questions = append(result.Questions, qr)
	}

	if graded > 0 {
		score := Round2(total)
		result.Score = &score
	}
	return result
}

// Match returns the points earned by answer and whether it is fully correct.
func (r Rule) Match(answer string) (float64, bool) {
	caseSensitive := r.CaseSensitive && r.Type != QuestionTrueFalse
	got := normalizeAnswer(answer, caseSensitive)

	if got == normalizeAnswer(r.CorrectAnswer, caseSensitive) {
		return r.Points, true
	}
	for _, v := range r.Variations {
		if got == normalizeAnswer(v, caseSensitive) {
			return r.Points, true
		}
	}
	for _, pc := range r.PartialCredit {
		if got == normalizeAnswer(pc.Answer, caseSensitive) {
			return pc.Points, false
		}
	}
	return 0, false
}

func normalizeAnswer(value string, caseSensitive bool) string {
	trimmed := strings.TrimSpace(value)
	if caseSensitive {
		return trimmed
	}
	return strings.ToLower(trimmed)
}
