package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session matches a PIN or id.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrSessionClosed is returned when a command reaches an already-evicted session.
	ErrSessionClosed = errors.New("game session closed")
	// ErrParticipantNotFound is returned when a player acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in game")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidState rejects a message that is well-formed but illegal in the
	// session's current phase. It never mutates state.
	ErrInvalidState = errors.New("not allowed in current game state")
	// ErrDuplicateAnswer marks a repeated submission for the same question.
	// Callers treat it as success; scoring happens at most once.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrRegistryExhausted is returned when PIN generation keeps colliding.
	ErrRegistryExhausted = errors.New("no free game pin after retries")
	// ErrNotHost rejects host-only control messages from other senders.
	ErrNotHost = errors.New("only the host may control the game")
	// ErrValidation flags malformed input at the protocol boundary.
	ErrValidation = errors.New("invalid message")
)
