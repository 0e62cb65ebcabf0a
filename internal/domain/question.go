package domain

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Question type tags as they appear on the wire.
const (
	QuestionTypeTrueFalse = "true-false"
	QuestionTypeStandard  = "standard"
)

// Option is one selectable answer of a standard question.
type Option struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Question is a tagged variant: either a true/false question carrying
// CorrectAnswer, or a standard question carrying Options and CorrectAnswers
// (indices into Options). TimeLimit overrides the game-wide question time
// limit when positive.
type Question struct {
	ID             string   `json:"id,omitempty"`
	Type           string   `json:"type"`
	Text           string   `json:"question"`
	Image          string   `json:"image,omitempty"`
	TimeLimit      int      `json:"timeLimit,omitempty"` // seconds
	CorrectAnswer  bool     `json:"correctAnswer,omitempty"`
	Options        []Option `json:"options,omitempty"`
	CorrectAnswers []int    `json:"correctAnswers,omitempty"`
}

// Validate checks the variant-specific invariants.
func (q Question) Validate() error {
	switch q.Type {
	case QuestionTypeTrueFalse:
		return nil
	case QuestionTypeStandard:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: standard question needs at least 2 options", ErrValidation)
		}
		if len(q.CorrectAnswers) == 0 {
			return fmt.Errorf("%w: standard question needs at least one correct answer", ErrValidation)
		}
		for _, idx := range q.CorrectAnswers {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("%w: correct answer index %d out of range", ErrValidation, idx)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrValidation, q.Type)
	}
}

// Sanitized returns a copy safe to broadcast while the question is open:
// correct answers are stripped so clients cannot inspect them.
func (q Question) Sanitized() Question {
	q.CorrectAnswer = false
	q.CorrectAnswers = nil
	return q
}

// AnswerValue is the tagged union of submitted answer payloads: a boolean
// for true/false questions, an option index for standard ones. Exactly one
// field is set after a successful decode.
type AnswerValue struct {
	Bool   *bool
	Option *int
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	case v.Option != nil:
		return json.Marshal(*v.Option)
	default:
		return []byte("null"), nil
	}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		v.Bool = &b
		v.Option = nil
		return nil
	}
	var idx int
	if err := json.Unmarshal(data, &idx); err == nil {
		v.Option = &idx
		v.Bool = nil
		return nil
	}
	return fmt.Errorf("%w: answer must be a boolean or an option index", ErrValidation)
}

// AnswerChecker decides whether a submitted value answers a question of one
// registered type correctly.
type AnswerChecker func(q Question, v AnswerValue) (bool, error)

var (
	checkersMu sync.RWMutex
	checkers   = map[string]AnswerChecker{}
)

// RegisterQuestionType installs a correctness check for a question type.
// New variants plug in here without touching the session state machine.
func RegisterQuestionType(questionType string, checker AnswerChecker) {
	checkersMu.Lock()
	defer checkersMu.Unlock()
	checkers[questionType] = checker
}

// CheckAnswer dispatches to the registered checker for the question's type.
func CheckAnswer(q Question, v AnswerValue) (bool, error) {
	checkersMu.RLock()
	checker, ok := checkers[q.Type]
	checkersMu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: unknown question type %q", ErrValidation, q.Type)
	}
	return checker(q, v)
}

func init() {
	RegisterQuestionType(QuestionTypeTrueFalse, func(q Question, v AnswerValue) (bool, error) {
		if v.Bool == nil {
			return false, fmt.Errorf("%w: true/false question expects a boolean answer", ErrValidation)
		}
		return *v.Bool == q.CorrectAnswer, nil
	})
	RegisterQuestionType(QuestionTypeStandard, func(q Question, v AnswerValue) (bool, error) {
		if v.Option == nil {
			return false, fmt.Errorf("%w: standard question expects an option index", ErrValidation)
		}
		if *v.Option < 0 || *v.Option >= len(q.Options) {
			return false, fmt.Errorf("%w: option index %d out of range", ErrValidation, *v.Option)
		}
		for _, idx := range q.CorrectAnswers {
			if idx == *v.Option {
				return true, nil
			}
		}
		return false, nil
	})
}
