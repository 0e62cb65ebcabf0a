package game

import (
	"time"

	"livequiz-service/internal/domain"
)

// EventType names an outbound broadcast frame.
type EventType string

const (
	EventGameCreated        EventType = "game_created"
	EventJoined             EventType = "joined"
	EventPlayerRejoined     EventType = "player_rejoined"
	EventCountdown          EventType = "countdown"
	EventQuestion           EventType = "question"
	EventAnswerUpdate       EventType = "answer_update"
	EventResults            EventType = "results"
	EventGameFinished       EventType = "game_finished"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventError              EventType = "error"
	EventDisconnected       EventType = "disconnected"
)

// Event is one session broadcast. HostOnly events (currently answer_update)
// carry live submission telemetry the host screen shows; they are filtered
// out of participant connections so nobody learns who answered what before
// results open.
type Event struct {
	Type     EventType `json:"type"`
	Payload  any       `json:"payload,omitempty"`
	HostOnly bool      `json:"-"`
}

// Snapshot is a consistent copy of session state, used for game_created and
// for syncing late joiners and rejoining clients.
type Snapshot struct {
	ID                   string               `json:"id"`
	PIN                  string               `json:"pin"`
	HostID               string               `json:"hostId,omitempty"`
	QuizID               string               `json:"quizId"`
	QuizTitle            string               `json:"quizTitle"`
	State                domain.GameState     `json:"state"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	TotalQuestions       int                  `json:"totalQuestions"`
	Settings             domain.GameSettings  `json:"settings"`
	Participants         []domain.Participant `json:"participants"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// CountdownPayload ticks down before each question.
type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

// QuestionPayload opens a question window. The question is sanitized: no
// correct answers cross the wire while the window is open.
type QuestionPayload struct {
	Index          int             `json:"index"`
	Question       domain.Question `json:"question"`
	EndsAt         time.Time       `json:"endsAt"`
	TotalQuestions int             `json:"totalQuestions"`
}

// AnswerUpdatePayload tells the host how many submissions are in.
type AnswerUpdatePayload struct {
	QuestionIndex int                  `json:"questionIndex"`
	AnsweredCount int                  `json:"answeredCount"`
	Answered      []string             `json:"answered"`
	OnlineCount   int                  `json:"onlineCount"`
	Roster        []domain.Participant `json:"roster"`
}

// ResultsPayload closes a question window. Question includes the correct
// answers only when the session settings allow revealing them.
type ResultsPayload struct {
	Index    int                   `json:"index"`
	Question domain.Question       `json:"question"`
	Answers  []domain.AnswerRecord `json:"answers"`
	Roster   []domain.Participant  `json:"roster"`
}

// GameFinishedPayload carries the final standings, best score first.
type GameFinishedPayload struct {
	Winners []domain.Participant `json:"winners"`
}

// PlayerPayload wraps a single participant for join/rejoin/disconnect frames.
type PlayerPayload struct {
	Player domain.Participant `json:"player"`
	Reason string             `json:"reason,omitempty"`
}

// JoinedPayload is sent directly to a joining client together with a state
// snapshot so late joiners render the in-flight game.
type JoinedPayload struct {
	Player domain.Participant `json:"player"`
	Game   Snapshot           `json:"game"`
}

// DisconnectedPayload explains a server-initiated connection teardown.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is the only user-visible failure frame.
type ErrorPayload struct {
	Message string `json:"message"`
}
