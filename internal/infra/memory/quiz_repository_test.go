package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz-service/internal/domain"
)

type countingLoader struct {
	inner QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.inner.LoadQuiz(ctx, quizID)
}

func TestGetQuizCachesWithinTTL(t *testing.T) {
	loader := &countingLoader{inner: NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "cached"},
	})}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 3; i++ {
		quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if quiz.Title != "cached" {
			t.Fatalf("unexpected quiz %+v", quiz)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected a single store hit, got %d", loader.calls)
	}
}

func TestGetQuizReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{inner: NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1"},
	})}
	repo := NewQuizRepository(loader, time.Minute)

	now := time.Now()
	repo.clock = func() time.Time { return now }
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Jitter adds at most 10%, so two TTLs later the entry is gone.
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, got %d calls", loader.calls)
	}
}

func TestGetQuizUnknownID(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}
