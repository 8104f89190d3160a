// Package study defines the instruments a run executes: surveys of Likert and
// open questions, and interview guides. Definitions are static data; engines
// never mutate them.
package study

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	twinerrors "twinlab/internal/errors"
)

// QuestionKind distinguishes scored questions from free-text ones.
type QuestionKind string

const (
	// KindScale expects an integer on the 1-7 agreement scale plus reasoning.
	KindScale QuestionKind = "scale"
	// KindOpen expects free text with no score.
	KindOpen QuestionKind = "open"
)

// Question is one item in a survey or interview guide.
type Question struct {
	ID               string       `json:"id" yaml:"id"`
	Text             string       `json:"text" yaml:"text"`
	Kind             QuestionKind `json:"kind" yaml:"kind"`
	Category         string       `json:"category,omitempty" yaml:"category,omitempty"`
	RequireReasoning bool         `json:"require_reasoning,omitempty" yaml:"require_reasoning,omitempty"`
	MinLength        int          `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength        int          `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// Survey is an ordered fixed question list put to every selected persona.
// Context, when set, is included in every question's prompt to frame the
// study (e.g. "You are taking a consumer research survey").
type Survey struct {
	Name      string     `json:"name" yaml:"name"`
	Context   string     `json:"context,omitempty" yaml:"context,omitempty"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// InterviewMode selects who asks the follow-up questions.
type InterviewMode string

const (
	// ModeBatch asks each guide question independently, like a survey with
	// open answers.
	ModeBatch InterviewMode = "batch"
	// ModeInteractive carries the full conversation between questions.
	// Questions come from the guide when present, otherwise from an operator.
	ModeInteractive InterviewMode = "interactive"
)

// Interview is a guide of open questions asked in order.
type Interview struct {
	Name      string        `json:"name" yaml:"name"`
	Mode      InterviewMode `json:"mode" yaml:"mode"`
	Questions []Question    `json:"questions" yaml:"questions"`
}

// definitionFile is the on-disk shape. A file holds a survey, an interview,
// or both.
type definitionFile struct {
	Survey    *Survey    `yaml:"survey"`
	Interview *Interview `yaml:"interview"`
}

// Definition is the parsed content of one study file.
type Definition struct {
	Survey    *Survey
	Interview *Interview
}

// LoadFile reads and validates a study definition from a YAML file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &twinerrors.LoadError{Source: path, Err: err}
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &twinerrors.LoadError{Source: path, Err: fmt.Errorf("parse study definition: %w", err)}
	}

	def := &Definition{Survey: file.Survey, Interview: file.Interview}
	if def.Survey == nil && def.Interview == nil {
		return nil, &twinerrors.LoadError{Source: path, Err: fmt.Errorf("file defines neither a survey nor an interview")}
	}
	if def.Survey != nil {
		if err := def.Survey.Validate(); err != nil {
			return nil, &twinerrors.LoadError{Source: path, Err: err}
		}
	}
	if def.Interview != nil {
		if err := def.Interview.Validate(); err != nil {
			return nil, &twinerrors.LoadError{Source: path, Err: err}
		}
	}
	return def, nil
}

// Validate checks the survey is runnable.
func (s *Survey) Validate() error {
	if len(s.Questions) == 0 {
		return fmt.Errorf("survey %q has no questions", s.Name)
	}
	return validateQuestions(s.Questions, false)
}

// Validate checks the interview guide is runnable. Interactive guides may be
// empty since questions arrive from the operator.
func (iv *Interview) Validate() error {
	switch iv.Mode {
	case "", ModeBatch:
		iv.Mode = ModeBatch
		if len(iv.Questions) == 0 {
			return fmt.Errorf("interview %q has no questions", iv.Name)
		}
	case ModeInteractive:
	default:
		return fmt.Errorf("interview %q has unknown mode %q", iv.Name, iv.Mode)
	}
	return validateQuestions(iv.Questions, true)
}

func validateQuestions(questions []Question, openOnly bool) error {
	seen := map[string]bool{}
	for i := range questions {
		q := &questions[i]
		if q.Text == "" {
			return fmt.Errorf("question %d has no text", i)
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
		switch q.Kind {
		case "":
			if openOnly {
				q.Kind = KindOpen
			} else {
				q.Kind = KindScale
			}
		case KindScale, KindOpen:
		default:
			return fmt.Errorf("question %q has unknown kind %q", q.ID, q.Kind)
		}
		if openOnly && q.Kind != KindOpen {
			return fmt.Errorf("question %q: interviews take open questions only", q.ID)
		}
		if q.MinLength < 0 || q.MaxLength < 0 {
			return fmt.Errorf("question %q has negative length bound", q.ID)
		}
		if q.MaxLength > 0 && q.MinLength > q.MaxLength {
			return fmt.Errorf("question %q: min_length exceeds max_length", q.ID)
		}
	}
	return nil
}
