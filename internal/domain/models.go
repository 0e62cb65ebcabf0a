package domain

import "time"

// Quiz is an ordered sequence of questions, read-only for the duration of a
// game session.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Validate checks every question in the quiz.
func (q Quiz) Validate() error {
	for _, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GameSettings are the host-chosen knobs for one session.
type GameSettings struct {
	QuestionTimeLimit  int  `json:"questionTimeLimit"` // seconds
	ShowCorrectAnswers bool `json:"showCorrectAnswers"`
	AllowLateJoins     bool `json:"allowLateJoins"`
}

// DefaultGameSettings is what hosts get when they send no settings.
func DefaultGameSettings() GameSettings {
	return GameSettings{
		QuestionTimeLimit:  30,
		ShowCorrectAnswers: true,
		AllowLateJoins:     true,
	}
}

// AnswerRecord is one scored submission, append-only per participant.
type AnswerRecord struct {
	ParticipantID string      `json:"participantId"`
	QuestionIndex int         `json:"questionIndex"`
	Value         AnswerValue `json:"answer"`
	Correct       bool        `json:"isCorrect"`
	Points        int         `json:"points"`
	SubmittedAt   time.Time   `json:"answeredAt"`
}

// Participant is a joined player. Participants are never deleted mid-session;
// Online flips on disconnect and rejoin so the score survives.
type Participant struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Score         int            `json:"score"`
	Online        bool           `json:"isOnline"`
	JoinedAt      time.Time      `json:"joinedAt"`
	AnswerHistory []AnswerRecord `json:"answerHistory"`
}

// GameState is the session lifecycle phase.
type GameState string

const (
	StateWaiting   GameState = "waiting"
	StateCountdown GameState = "countdown"
	StateQuestion  GameState = "question"
	StateResults   GameState = "results"
	StateFinished  GameState = "finished"
)

// transitions is the forward-only edge set of the session state machine.
// Waiting is never re-entered and Finished is terminal.
var transitions = map[GameState][]GameState{
	StateWaiting:   {StateCountdown},
	StateCountdown: {StateQuestion},
	StateQuestion:  {StateResults},
	StateResults:   {StateCountdown, StateFinished},
	StateFinished:  {},
}

// CanTransition reports whether moving from s to next is legal.
func (s GameState) CanTransition(next GameState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
