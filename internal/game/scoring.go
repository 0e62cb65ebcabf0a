package game

import (
	"time"

	"livequiz-service/internal/domain"
)

const (
	basePoints     = 1000
	bonusPerSecond = 10
)

// Score evaluates a submission against a question. Correct answers earn the
// base plus a time bonus of 10 points per full second left in the window;
// incorrect answers always earn zero. The function is pure: remaining must
// already come from the authoritative clock.
func Score(q domain.Question, v domain.AnswerValue, remaining time.Duration) (bool, int, error) {
	correct, err := domain.CheckAnswer(q, v)
	if err != nil {
		return false, 0, err
	}
	if !correct {
		return false, 0, nil
	}
	if remaining < 0 {
		remaining = 0
	}
	bonus := int(remaining.Milliseconds()/1000) * bonusPerSecond
	return true, basePoints + bonus, nil
}
