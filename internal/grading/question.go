package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// QuestionType tags the variants of Question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// IsObjective reports whether the type can be graded by string matching.
func (t QuestionType) IsObjective() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer:
		return true
	default:
		return false
	}
}

// Question is a quiz question. The concrete variants are MultipleChoice, TrueFalse, ShortAnswer and Essay.
type Question interface {
	Type() QuestionType
	MaxPoints() float64
	question()
}

// PartialCredit awards points for a specific, not fully correct answer.
type PartialCredit struct {
	Answer string  `json:"answer"`
	Points float64 `json:"points"`
}

// MultipleChoice requires the answer to be one of its declared options.
type MultipleChoice struct {
	Prompt        string
	Options       []string
	Correct       string
	Variations    []string
	CaseSensitive bool
	Points        float64
	PartialCredit []PartialCredit
}

// TrueFalse is a boolean question.
type TrueFalse struct {
	Prompt  string
	Correct bool
	Points  float64
}

// ShortAnswer is matched against the answer and its accepted variations.
type ShortAnswer struct {
	Prompt        string
	Correct       string
	Variations    []string
	CaseSensitive bool
	Points        float64
	PartialCredit []PartialCredit
}

// Essay is left for manual grading.
type Essay struct {
	Prompt    string
	Points    float64
	WordLimit int
}

func (MultipleChoice) Type() QuestionType { return QuestionMultipleChoice }
func (TrueFalse) Type() QuestionType      { return QuestionTrueFalse }
func (ShortAnswer) Type() QuestionType    { return QuestionShortAnswer }
func (Essay) Type() QuestionType          { return QuestionEssay }

func (q MultipleChoice) MaxPoints() float64 { return q.Points }
func (q TrueFalse) MaxPoints() float64      { return q.Points }
func (q ShortAnswer) MaxPoints() float64    { return q.Points }
func (q Essay) MaxPoints() float64          { return q.Points }

func (MultipleChoice) question() {}
func (TrueFalse) question()      {}
func (ShortAnswer) question()    {}
func (Essay) question()          {}

// QuestionDefinition is the wire form of a question.
type QuestionDefinition struct {
	Type          QuestionType    `json:"type"`
	Prompt        string          `json:"prompt"`
	Options       []string        `json:"options,omitempty"`
	CorrectAnswer string          `json:"correct_answer,omitempty"`
	Variations    []string        `json:"variations,omitempty"`
	CaseSensitive bool            `json:"case_sensitive,omitempty"`
	Points        float64         `json:"points"`
	PartialCredit []PartialCredit `json:"partial_credit,omitempty"`
	WordLimit     int             `json:"word_limit,omitempty"`
}

const questionSchemaURL = "questions.schema.json"

const questionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["type", "points"],
    "properties": {
      "type": {"enum": ["multiple_choice", "true_false", "short_answer", "essay"]},
      "prompt": {"type": "string"},
      "options": {"type": "array", "items": {"type": "string"}},
      "correct_answer": {"type": "string"},
      "variations": {"type": "array", "items": {"type": "string"}},
      "case_sensitive": {"type": "boolean"},
      "points": {"type": "number", "exclusiveMinimum": 0},
      "word_limit": {"type": "integer", "minimum": 0},
      "partial_credit": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["answer", "points"],
          "properties": {
            "answer": {"type": "string"},
            "points": {"type": "number", "minimum": 0}
          }
        }
      }
    },
    "allOf": [
      {
        "if": {"properties": {"type": {"const": "multiple_choice"}}},
        "then": {"required": ["options", "correct_answer"], "properties": {"options": {"minItems": 2}}}
      },
      {
        "if": {"properties": {"type": {"const": "true_false"}}},
        "then": {"required": ["correct_answer"], "properties": {"correct_answer": {"enum": ["true", "false"]}}}
      },
      {
        "if": {"properties": {"type": {"const": "short_answer"}}},
        "then": {"required": ["correct_answer"]}
      }
    ]
  }
}`

var compiledQuestionSchema = jsonschema.MustCompileString(questionSchemaURL, questionSchema)

// DecodeQuestions validates a raw question list and returns its typed form.
func DecodeQuestions(raw []byte) ([]Question, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed question payload: %v", ErrInvalid, err)
	}
	if err := compiledQuestionSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var defs []QuestionDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("%w: malformed question payload: %v", ErrInvalid, err)
	}
	return FromDefinitions(defs)
}

// FromDefinitions converts and exhaustively validates question definitions.
func FromDefinitions(defs []QuestionDefinition) ([]Question, error) {
	questions := make([]Question, 0, len(defs))
	for i, def := range defs {
		q, err := def.toQuestion()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// ToDefinitions converts typed questions back into their wire form.
func ToDefinitions(questions []Question) []QuestionDefinition {
	defs := make([]QuestionDefinition, 0, len(questions))
	for _, q := range questions {
		switch v := q.(type) {
		case MultipleChoice:
			defs = append(defs, QuestionDefinition{
				Type: v.Type(), Prompt: v.Prompt, Options: v.Options, CorrectAnswer: v.Correct,
				Variations: v.Variations, CaseSensitive: v.CaseSensitive, Points: v.Points, PartialCredit: v.PartialCredit,
			})
		case TrueFalse:
			defs = append(defs, QuestionDefinition{
				Type: v.Type(), Prompt: v.Prompt, CorrectAnswer: fmt.Sprintf("%t", v.Correct), Points: v.Points,
			})
		case ShortAnswer:
			defs = append(defs, QuestionDefinition{
				Type: v.Type(), Prompt: v.Prompt, CorrectAnswer: v.Correct, Variations: v.Variations,
				CaseSensitive: v.CaseSensitive, Points: v.Points, PartialCredit: v.PartialCredit,
			})
		case Essay:
			defs = append(defs, QuestionDefinition{Type: v.Type(), Prompt: v.Prompt, Points: v.Points, WordLimit: v.WordLimit})
		}
	}
	return defs
}

func (d QuestionDefinition) toQuestion() (Question, error) {
	if d.Points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ErrInvalid)
	}

	switch d.Type {
	case QuestionMultipleChoice:
		if len(d.Options) < 2 {
			return nil, fmt.Errorf("%w: multiple choice needs at least two options", ErrInvalid)
		}
		if !containsOption(d.Options, d.CorrectAnswer, d.CaseSensitive) {
			return nil, fmt.Errorf("%w: correct answer %q is not one of the options", ErrInvalid, d.CorrectAnswer)
		}
		for _, v := range d.Variations {
			if !containsOption(d.Options, v, d.CaseSensitive) {
				return nil, fmt.Errorf("%w: variation %q is not one of the options", ErrInvalid, v)
			}
		}
		if err := checkPartialCredit(d.PartialCredit, d.Points); err != nil {
			return nil, err
		}
		for _, pc := range d.PartialCredit {
			if !containsOption(d.Options, pc.Answer, d.CaseSensitive) {
				return nil, fmt.Errorf("%w: partial credit answer %q is not one of the options", ErrInvalid, pc.Answer)
			}
		}
		return MultipleChoice{
			Prompt: d.Prompt, Options: d.Options, Correct: d.CorrectAnswer, Variations: d.Variations,
			CaseSensitive: d.CaseSensitive, Points: d.Points, PartialCredit: d.PartialCredit,
		}, nil
	case QuestionTrueFalse:
		switch strings.ToLower(strings.TrimSpace(d.CorrectAnswer)) {
		case "true":
			return TrueFalse{Prompt: d.Prompt, Correct: true, Points: d.Points}, nil
		case "false":
			return TrueFalse{Prompt: d.Prompt, Correct: false, Points: d.Points}, nil
		default:
			return nil, fmt.Errorf("%w: true/false answer must be true or false", ErrInvalid)
		}
	case QuestionShortAnswer:
		if strings.TrimSpace(d.CorrectAnswer) == "" {
			return nil, fmt.Errorf("%w: short answer needs a correct answer", ErrInvalid)
		}
		if err := checkPartialCredit(d.PartialCredit, d.Points); err != nil {
			return nil, err
		}
		return ShortAnswer{
			Prompt: d.Prompt, Correct: d.CorrectAnswer, Variations: d.Variations,
			CaseSensitive: d.CaseSensitive, Points: d.Points, PartialCredit: d.PartialCredit,
		}, nil
	case QuestionEssay:
		if d.WordLimit < 0 {
			return nil, fmt.Errorf("%w: word limit must not be negative", ErrInvalid)
		}
		return Essay{Prompt: d.Prompt, Points: d.Points, WordLimit: d.WordLimit}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported question type %q", ErrInvalid, d.Type)
	}
}

func checkPartialCredit(entries []PartialCredit, points float64) error {
	for _, pc := range entries {
		if pc.Points < 0 || pc.Points > points {
			return fmt.Errorf("%w: partial credit for %q must be within [0,%.2f]", ErrInvalid, pc.Answer, points)
		}
	}
	return nil
}

func containsOption(options []string, candidate string, caseSensitive bool) bool {
	want := normalizeAnswer(candidate, caseSensitive)
	for _, opt := range options {
		if normalizeAnswer(opt, caseSensitive) == want {
			return true
		}
	}
	return false
}

// HasManualQuestions reports whether any question needs a human grader.
func HasManualQuestions(questions []Question) bool {
	for _, q := range questions {
		if !q.Type().IsObjective() {
			return true
		}
	}
	return false
}
