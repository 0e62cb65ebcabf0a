package http

import (
	"encoding/json"

	"livequiz-service/internal/domain"
)

// MessageKind tags every inbound frame. Dispatch goes through a handler
// table keyed by kind, so adding a message type means adding a handler, not
// extending a switch.
type MessageKind string

const (
	KindCreateGame       MessageKind = "create_game"
	KindStartGame        MessageKind = "start_game"
	KindNextQuestion     MessageKind = "next_question"
	KindQuestionTimeout  MessageKind = "question_timeout"
	KindFinishGame       MessageKind = "finish_game"
	KindDisconnectPlayer MessageKind = "disconnect_player"
	KindJoinGame         MessageKind = "join_game"
	KindAddAnswer        MessageKind = "addAnswer"
)

type inboundMessage struct {
	Type    MessageKind     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// frame is the outbound envelope; event broadcasts reuse their own type and
// payload directly.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type createGamePayload struct {
	QuizID   string               `json:"quizId,omitempty"`
	QuizData *domain.Quiz         `json:"quizData,omitempty"`
	Settings *domain.GameSettings `json:"settings,omitempty"`
}

type gameRefPayload struct {
	GameID string `json:"gameId"`
}

type disconnectPlayerPayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type joinGamePayload struct {
	GameID string `json:"gameId"` // the join PIN
	Player struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"player"`
}

type addAnswerPayload struct {
	GameID        string             `json:"gameId"`
	PlayerID      string             `json:"playerId"`
	QuestionIndex int                `json:"questionIndex"`
	Answer        domain.AnswerValue `json:"answer"`
}
