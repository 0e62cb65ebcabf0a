package game

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"livequiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache or backing store). The core
// never writes quizzes; authoring is someone else's job.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Service exposes the orchestrator use cases to the transport layer.
type Service struct {
	registry  Registry
	quizzes   QuizRepository
	authority Clock
	clk       clockwork.Clock
	opts      SessionOptions
}

func NewService(registry Registry, quizzes QuizRepository, authority Clock, clk clockwork.Clock, opts SessionOptions) *Service {
	return &Service{
		registry:  registry,
		quizzes:   quizzes,
		authority: authority,
		clk:       clk,
		opts:      opts,
	}
}

// CreateGame starts a new session for the host. The quiz comes either inline
// (quizData) or by id through the quiz repository. The registry draws a free
// PIN with bounded retries.
func (s *Service) CreateGame(ctx context.Context, hostID, quizID string, quizData *domain.Quiz, settings *domain.GameSettings) (*Session, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: missing host id", domain.ErrValidation)
	}

	var quiz domain.Quiz
	if quizData != nil {
		quiz = *quizData
	} else {
		loaded, err := s.quizzes.GetQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		quiz = loaded
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}

	gameSettings := domain.DefaultGameSettings()
	if settings != nil {
		gameSettings = *settings
		if gameSettings.QuestionTimeLimit <= 0 {
			gameSettings.QuestionTimeLimit = domain.DefaultGameSettings().QuestionTimeLimit
		}
	}

	session, err := s.registry.Create(ctx, func(pin string) *Session {
		return NewSession(pin, hostID, quiz, gameSettings, s.authority, s.clk, s.opts, func(id string) {
			s.registry.Evict(context.Background(), id)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("pin", session.PIN()).Str("quiz", quiz.ID).Str("host", hostID).Msg("game created")
	return session, nil
}

// Lookup resolves a join PIN to its live session.
func (s *Service) Lookup(pin string) (*Session, error) {
	return s.registry.Lookup(pin)
}

// LookupByID resolves a session id, used by host control frames.
func (s *Service) LookupByID(id string) (*Session, error) {
	return s.registry.LookupByID(id)
}
