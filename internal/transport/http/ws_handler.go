package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

// WSHandler terminates the persistent per-client connections and routes
// validated frames into the owning session. Connection I/O only enqueues
// work; it never blocks on session mutation.
type WSHandler struct {
	service  *game.Service
	upgrader websocket.Upgrader
	handlers map[MessageKind]handlerFunc
}

type handlerFunc func(c *client, payload json.RawMessage) error

func NewWSHandler(service *game.Service) *WSHandler {
	h := &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	h.handlers = map[MessageKind]handlerFunc{
		KindCreateGame:       h.handleCreateGame,
		KindJoinGame:         h.handleJoinGame,
		KindStartGame:        h.handleStartGame,
		KindNextQuestion:     h.handleNextQuestion,
		KindQuestionTimeout:  h.handleQuestionTimeout,
		KindFinishGame:       h.handleFinishGame,
		KindDisconnectPlayer: h.handleDisconnectPlayer,
		KindAddAnswer:        h.handleAddAnswer,
	}
	return h
}

// client is one live connection, bound to a session by create_game or
// join_game. Outbound writes go through the send channel so only the writer
// goroutine ever touches the socket.
type client struct {
	ctx    context.Context
	hostID string

	conn         *websocket.Conn
	send         chan outbound
	closeSignals chan struct{}
	writerDone   chan struct{}

	session   *game.Session
	isHost    bool
	playerID  string
	cancelSub func()
	pumpDone  chan struct{}
}

// outbound pairs a frame with an optional written-signal, closed by the
// writer once the frame is on the socket.
type outbound struct {
	frame frame
	done  chan struct{}
}

// ServeWS upgrades the request and runs the read loop until the peer goes
// away. The hostId query parameter is the opaque identity the external
// provider handed the host client.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{
		ctx:          r.Context(),
		hostID:       r.URL.Query().Get("hostId"),
		conn:         conn,
		send:         make(chan outbound, 32),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	if c.hostID == "" {
		c.hostID = uuid.NewString()
	}

	go func() {
		defer close(c.writerDone)
		for msg := range c.send {
			err := conn.WriteJSON(msg.frame)
			if msg.done != nil {
				close(msg.done)
			}
			if err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		handler, ok := h.handlers[inbound.Type]
		if !ok {
			c.reply(frame{Type: string(game.EventError), Payload: game.ErrorPayload{Message: "unsupported message type"}})
			continue
		}
		if err := handler(c, inbound.Payload); err != nil {
			h.replyError(c, inbound.Type, err)
		}
	}

	h.teardown(c)
	close(c.closeSignals)
	if c.pumpDone != nil {
		<-c.pumpDone
	}
	close(c.send)
	<-c.writerDone
}

// replyError maps the error taxonomy onto the wire: validation and not-found
// problems go back to the sender, state errors are dropped quietly so a late
// or duplicate frame cannot spam the client.
func (h *WSHandler) replyError(c *client, kind MessageKind, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrDuplicateAnswer):
		log.Debug().Err(err).Str("kind", string(kind)).Msg("frame dropped for current state")
	case errors.Is(err, domain.ErrSessionClosed):
		c.reply(frame{Type: string(game.EventDisconnected), Payload: game.DisconnectedPayload{Reason: "session_closed"}})
	default:
		c.reply(frame{Type: string(game.EventError), Payload: game.ErrorPayload{Message: err.Error()}})
	}
}

func (c *client) reply(f frame) {
	select {
	case c.send <- outbound{frame: f}:
	case <-c.closeSignals:
	}
}

// replyFlush blocks until the frame reached the socket. Used for the final
// frame before the server closes a connection, so the peer sees the reason
// instead of an abnormal close.
func (c *client) replyFlush(f frame) {
	done := make(chan struct{})
	select {
	case c.send <- outbound{frame: f, done: done}:
	case <-c.closeSignals:
		return
	case <-c.writerDone:
		return
	}
	select {
	case <-done:
	case <-c.closeSignals:
	case <-c.writerDone:
	}
}

// teardown runs once the read loop ends: participants go offline but keep
// their score for rejoin, a vanished host starts the session grace timer.
func (h *WSHandler) teardown(c *client) {
	if c.cancelSub != nil {
		c.cancelSub()
	}
	if c.session == nil {
		return
	}
	if c.isHost {
		c.session.HostOffline()
	} else if c.playerID != "" {
		c.session.MarkOffline(c.playerID)
	}
}

func (h *WSHandler) handleCreateGame(c *client, payload json.RawMessage) error {
	if c.session != nil {
		return domain.ErrInvalidState
	}
	var req createGamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return domain.ErrValidation
	}
	session, err := h.service.CreateGame(c.ctx, c.hostID, req.QuizID, req.QuizData, req.Settings)
	if err != nil {
		return err
	}
	c.session = session
	c.isHost = true
	if err := h.attach(c); err != nil {
		return err
	}
	snap, err := session.Snapshot()
	if err != nil {
		return err
	}
	c.reply(frame{Type: string(game.EventGameCreated), Payload: snap})
	return nil
}

func (h *WSHandler) handleJoinGame(c *client, payload json.RawMessage) error {
	if c.session != nil {
		return domain.ErrInvalidState
	}
	var req joinGamePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.GameID == "" {
		return domain.ErrValidation
	}
	session, err := h.service.Lookup(req.GameID)
	if err != nil {
		return err
	}

	if req.Player.ID != "" && req.Player.ID == session.HostID() {
		// Host coming back within the grace window.
		c.session = session
		c.isHost = true
		c.hostID = session.HostID()
		session.HostOnline()
		if err := h.attach(c); err != nil {
			return err
		}
		snap, err := session.Snapshot()
		if err != nil {
			return err
		}
		c.reply(frame{Type: string(game.EventGameCreated), Payload: snap})
		return nil
	}

	joined, err := session.Join(req.Player.ID, req.Player.Name)
	if err != nil {
		return err
	}
	c.session = session
	c.playerID = joined.Player.ID
	if err := h.attach(c); err != nil {
		return err
	}
	c.reply(frame{Type: string(game.EventJoined), Payload: joined})
	return nil
}

// attach subscribes the connection to session broadcasts and pumps them into
// the writer. Host-only events are filtered for participants; a kick
// addressed to this participant turns into a disconnected frame and a closed
// socket.
func (h *WSHandler) attach(c *client) error {
	events, cancel, err := c.session.Subscribe()
	if err != nil {
		return err
	}
	c.cancelSub = cancel
	c.pumpDone = make(chan struct{})

	go func() {
		defer close(c.pumpDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					c.conn.Close()
					return
				}
				if ev.HostOnly && !c.isHost {
					continue
				}
				if kicked, reason := h.kickedBy(c, ev); kicked {
					c.replyFlush(frame{Type: string(game.EventDisconnected), Payload: game.DisconnectedPayload{Reason: reason}})
					c.conn.Close()
					return
				}
				if ev.Type == game.EventDisconnected {
					c.replyFlush(frame{Type: string(ev.Type), Payload: ev.Payload})
					c.conn.Close()
					return
				}
				c.reply(frame{Type: string(ev.Type), Payload: ev.Payload})
			case <-c.closeSignals:
				return
			}
		}
	}()
	return nil
}

func (h *WSHandler) kickedBy(c *client, ev game.Event) (bool, string) {
	if c.isHost || ev.Type != game.EventPlayerDisconnected {
		return false, ""
	}
	p, ok := ev.Payload.(game.PlayerPayload)
	if !ok || p.Player.ID != c.playerID || p.Reason == "connection_lost" {
		return false, ""
	}
	return true, p.Reason
}

func (h *WSHandler) handleStartGame(c *client, payload json.RawMessage) error {
	session, err := h.boundHostSession(c, payload)
	if err != nil {
		return err
	}
	return session.Start(c.hostID)
}

func (h *WSHandler) handleNextQuestion(c *client, payload json.RawMessage) error {
	session, err := h.boundHostSession(c, payload)
	if err != nil {
		return err
	}
	return session.NextQuestion(c.hostID)
}

func (h *WSHandler) handleQuestionTimeout(c *client, payload json.RawMessage) error {
	session, err := h.boundHostSession(c, payload)
	if err != nil {
		return err
	}
	return session.ForceTimeout(c.hostID)
}

func (h *WSHandler) handleFinishGame(c *client, payload json.RawMessage) error {
	session, err := h.boundHostSession(c, payload)
	if err != nil {
		return err
	}
	return session.Finish(c.hostID)
}

func (h *WSHandler) handleDisconnectPlayer(c *client, payload json.RawMessage) error {
	if c.session == nil || !c.isHost {
		return domain.ErrNotHost
	}
	var req disconnectPlayerPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.PlayerID == "" {
		return domain.ErrValidation
	}
	return c.session.DisconnectPlayer(c.hostID, req.PlayerID, req.Reason)
}

func (h *WSHandler) handleAddAnswer(c *client, payload json.RawMessage) error {
	if c.session == nil || c.playerID == "" {
		return domain.ErrInvalidState
	}
	var req addAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return domain.ErrValidation
	}
	if req.PlayerID != "" && req.PlayerID != c.playerID {
		return domain.ErrValidation
	}
	if req.Answer.Bool == nil && req.Answer.Option == nil {
		return domain.ErrValidation
	}
	return c.session.SubmitAnswer(c.playerID, req.QuestionIndex, req.Answer)
}

// boundHostSession resolves the session a host control frame targets. The
// connection must already be bound by create_game (or host rejoin) and the
// frame's gameId, when present, must match.
func (h *WSHandler) boundHostSession(c *client, payload json.RawMessage) (*game.Session, error) {
	if c.session == nil || !c.isHost {
		return nil, domain.ErrNotHost
	}
	var ref gameRefPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ref); err != nil {
			return nil, domain.ErrValidation
		}
	}
	if ref.GameID != "" && ref.GameID != c.session.ID() {
		return nil, domain.ErrValidation
	}
	return c.session, nil
}
