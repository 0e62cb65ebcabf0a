package domain

import (
	"encoding/json"
	"testing"
)

func TestStandardQuestionValidation(t *testing.T) {
	q := Question{
		Type:           QuestionTypeStandard,
		Text:           "pick one",
		Options:        []Option{{Text: "a"}, {Text: "b"}},
		CorrectAnswers: []int{1},
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("expected valid question, got %v", err)
	}

	q.Options = q.Options[:1]
	if err := q.Validate(); err == nil {
		t.Fatalf("expected error for single-option question")
	}

	q.Options = []Option{{Text: "a"}, {Text: "b"}}
	q.CorrectAnswers = []int{5}
	if err := q.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range correct answer")
	}

	q.CorrectAnswers = nil
	if err := q.Validate(); err == nil {
		t.Fatalf("expected error for empty correct answers")
	}
}

func TestCheckAnswerVariants(t *testing.T) {
	tf := Question{Type: QuestionTypeTrueFalse, CorrectAnswer: true}
	yes := true
	no := false
	if ok, err := CheckAnswer(tf, AnswerValue{Bool: &yes}); err != nil || !ok {
		t.Fatalf("expected true to be correct, got ok=%v err=%v", ok, err)
	}
	if ok, _ := CheckAnswer(tf, AnswerValue{Bool: &no}); ok {
		t.Fatalf("expected false to be incorrect")
	}

	idx := 1
	if _, err := CheckAnswer(tf, AnswerValue{Option: &idx}); err == nil {
		t.Fatalf("expected variant mismatch error")
	}

	std := Question{
		Type:           QuestionTypeStandard,
		Options:        []Option{{Text: "a"}, {Text: "b"}},
		CorrectAnswers: []int{0},
	}
	zero := 0
	if ok, err := CheckAnswer(std, AnswerValue{Option: &zero}); err != nil || !ok {
		t.Fatalf("expected option 0 correct, got ok=%v err=%v", ok, err)
	}
	if ok, _ := CheckAnswer(std, AnswerValue{Option: &idx}); ok {
		t.Fatalf("expected option 1 incorrect")
	}
}

func TestAnswerValueJSON(t *testing.T) {
	var v AnswerValue
	if err := json.Unmarshal([]byte(`true`), &v); err != nil {
		t.Fatalf("unmarshal bool: %v", err)
	}
	if v.Bool == nil || !*v.Bool || v.Option != nil {
		t.Fatalf("expected boolean variant, got %+v", v)
	}

	if err := json.Unmarshal([]byte(`2`), &v); err != nil {
		t.Fatalf("unmarshal index: %v", err)
	}
	if v.Option == nil || *v.Option != 2 || v.Bool != nil {
		t.Fatalf("expected option variant, got %+v", v)
	}

	if err := json.Unmarshal([]byte(`"nope"`), &v); err == nil {
		t.Fatalf("expected error for string payload")
	}
}

func TestSanitizedStripsAnswers(t *testing.T) {
	q := Question{
		Type:           QuestionTypeStandard,
		Options:        []Option{{Text: "a"}, {Text: "b"}},
		CorrectAnswers: []int{1},
		CorrectAnswer:  true,
	}
	clean := q.Sanitized()
	if clean.CorrectAnswers != nil || clean.CorrectAnswer {
		t.Fatalf("expected answers stripped, got %+v", clean)
	}
	if len(q.CorrectAnswers) != 1 {
		t.Fatalf("original question mutated")
	}
}

func TestStateTransitionsForwardOnly(t *testing.T) {
	legal := [][2]GameState{
		{StateWaiting, StateCountdown},
		{StateCountdown, StateQuestion},
		{StateQuestion, StateResults},
		{StateResults, StateCountdown},
		{StateResults, StateFinished},
	}
	for _, pair := range legal {
		if !pair[0].CanTransition(pair[1]) {
			t.Fatalf("expected %s -> %s to be legal", pair[0], pair[1])
		}
	}

	states := []GameState{StateWaiting, StateCountdown, StateQuestion, StateResults, StateFinished}
	for _, from := range states {
		if from.CanTransition(StateWaiting) {
			t.Fatalf("%s must never re-enter waiting", from)
		}
	}
	for _, to := range states {
		if StateFinished.CanTransition(to) {
			t.Fatalf("finished is terminal, allowed -> %s", to)
		}
	}
}
