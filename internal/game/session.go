package game

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"livequiz-service/internal/domain"
)

// Clock supplies the authoritative "now" used for deadlines and scoring.
// Production wires the skew-corrected synchronizer here; tests wire a fake.
type Clock interface {
	Now() time.Time
}

// SessionOptions tune the per-session timing behavior.
type SessionOptions struct {
	CountdownTicks int           // ticks before each question, default 3
	TickInterval   time.Duration // default 1s
	HostGrace      time.Duration // host reconnect window, default 60s
	FinishedGrace  time.Duration // lifetime after game_finished, default 5m
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.CountdownTicks <= 0 {
		o.CountdownTicks = 3
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.HostGrace <= 0 {
		o.HostGrace = time.Minute
	}
	if o.FinishedGrace <= 0 {
		o.FinishedGrace = 5 * time.Minute
	}
	return o
}

// questionWindow is the time-bounded period during which answers for the
// current question are accepted.
type questionWindow struct {
	startedAt time.Time
	endsAt    time.Time
	answers   map[string]domain.AnswerRecord
}

// Session owns one quiz playthrough. All state lives behind a single-writer
// actor: public methods enqueue closures onto the command channel and only
// the run goroutine ever touches the fields below it, so two racing answer
// submissions can neither double-count nor lose an update.
type Session struct {
	id       string
	pin      string
	hostID   string
	quiz     domain.Quiz
	settings domain.GameSettings
	opts     SessionOptions

	authority Clock
	clk       clockwork.Clock
	onEvict   func(sessionID string)

	commands chan func()
	stopc    chan struct{}
	stopOnce sync.Once

	// Owned by the run goroutine.
	state        domain.GameState
	currentIndex int
	window       *questionWindow
	participants map[string]*domain.Participant
	joinOrder    []string
	subscribers  map[chan Event]struct{}
	createdAt    time.Time
	hostOnline   bool

	phaseTimer clockwork.Timer
	phaseGen   uint64
	graceTimer clockwork.Timer
	graceGen   uint64
}

// NewSession builds and starts a session actor in the waiting state.
func NewSession(pin, hostID string, quiz domain.Quiz, settings domain.GameSettings, authority Clock, clk clockwork.Clock, opts SessionOptions, onEvict func(string)) *Session {
	s := &Session{
		id:           uuid.NewString(),
		pin:          pin,
		hostID:       hostID,
		quiz:         quiz,
		settings:     settings,
		opts:         opts.withDefaults(),
		authority:    authority,
		clk:          clk,
		onEvict:      onEvict,
		commands:     make(chan func(), 64),
		stopc:        make(chan struct{}),
		state:        domain.StateWaiting,
		currentIndex: -1,
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan Event]struct{}),
		hostOnline:   true,
	}
	s.createdAt = authority.Now()
	go s.run()
	return s
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) PIN() string                   { return s.pin }
func (s *Session) HostID() string                { return s.hostID }
func (s *Session) Settings() domain.GameSettings { return s.settings }

func (s *Session) run() {
	defer s.cleanup()
	for {
		select {
		case fn := <-s.commands:
			fn()
		case <-s.stopc:
			return
		}
	}
}

func (s *Session) cleanup() {
	s.stopTimer(&s.phaseTimer)
	s.stopTimer(&s.graceTimer)
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

// do enqueues a mutation for the run goroutine. Callers never block on the
// mutation itself, only on queue admission.
func (s *Session) do(fn func()) error {
	select {
	case <-s.stopc:
		return domain.ErrSessionClosed
	case s.commands <- fn:
		return nil
	}
}

// doWait enqueues a mutation and waits for its serialized result.
func (s *Session) doWait(fn func() error) error {
	errc := make(chan error, 1)
	if err := s.do(func() { errc <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-s.stopc:
		return domain.ErrSessionClosed
	}
}

// Close stops the actor. Safe to call more than once; pending commands are
// dropped and all subscriber channels close.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stopc) })
}

// terminate runs on the loop goroutine: announce teardown, then stop.
func (s *Session) terminate(reason string) {
	select {
	case <-s.stopc:
		return
	default:
	}
	s.broadcast(Event{Type: EventDisconnected, Payload: DisconnectedPayload{Reason: reason}})
	log.Info().Str("pin", s.pin).Str("reason", reason).Msg("session terminated")
	if s.onEvict != nil {
		id := s.id
		evict := s.onEvict
		go evict(id)
	}
	s.Close()
}

// Subscribe registers a listener for session broadcasts. The returned cancel
// must be called to release the channel; the channel also closes when the
// session terminates.
func (s *Session) Subscribe() (<-chan Event, func(), error) {
	ch := make(chan Event, 16)
	if err := s.doWait(func() error {
		s.subscribers[ch] = struct{}{}
		return nil
	}); err != nil {
		return nil, nil, err
	}
	cancel := func() {
		_ = s.do(func() {
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

func (s *Session) broadcast(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event rather than block the actor
			// on a slow connection.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.doWait(func() error {
		snap = s.snapshotLocked()
		return nil
	})
	return snap, err
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:                   s.id,
		PIN:                  s.pin,
		HostID:               s.hostID,
		QuizID:               s.quiz.ID,
		QuizTitle:            s.quiz.Title,
		State:                s.state,
		CurrentQuestionIndex: s.currentIndex,
		TotalQuestions:       len(s.quiz.Questions),
		Settings:             s.settings,
		Participants:         s.rosterLocked(),
		CreatedAt:            s.createdAt,
	}
}

func (s *Session) rosterLocked() []domain.Participant {
	roster := make([]domain.Participant, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		p := s.participants[id]
		cp := *p
		cp.AnswerHistory = append([]domain.AnswerRecord(nil), p.AnswerHistory...)
		roster = append(roster, cp)
	}
	return roster
}

// peerViewLocked hides what a participant did in the still-open question:
// the record and its points stay invisible to other participants until
// results, so a second device cannot join mid-question and copy a known
// answer.
func (s *Session) peerViewLocked(p domain.Participant) domain.Participant {
	if s.state != domain.StateQuestion || s.window == nil {
		return p
	}
	if rec, ok := s.window.answers[p.ID]; ok {
		p.Score -= rec.Points
	}
	kept := make([]domain.AnswerRecord, 0, len(p.AnswerHistory))
	for _, rec := range p.AnswerHistory {
		if rec.QuestionIndex != s.currentIndex {
			kept = append(kept, rec)
		}
	}
	p.AnswerHistory = kept
	return p
}

// peerSnapshotLocked is the snapshot variant sent to participants: open
// answers hidden, and no host identity (knowing it would let anyone
// reconnect as the host).
func (s *Session) peerSnapshotLocked() Snapshot {
	snap := s.snapshotLocked()
	snap.HostID = ""
	for i := range snap.Participants {
		snap.Participants[i] = s.peerViewLocked(snap.Participants[i])
	}
	return snap
}

// Join admits a participant, or restores one rejoining by id: the score and
// answer history survive disconnects.
func (s *Session) Join(playerID, name string) (JoinedPayload, error) {
	var joined JoinedPayload
	err := s.doWait(func() error {
		if p, ok := s.participants[playerID]; ok {
			p.Online = true
			if name != "" {
				p.Name = name
			}
			joined = JoinedPayload{Player: *p, Game: s.peerSnapshotLocked()}
			s.broadcast(Event{Type: EventPlayerRejoined, Payload: PlayerPayload{Player: s.peerViewLocked(*p)}})
			log.Debug().Str("pin", s.pin).Str("player", playerID).Msg("participant rejoined")
			return nil
		}
		if s.state == domain.StateFinished {
			return domain.ErrInvalidState
		}
		if s.state != domain.StateWaiting && !s.settings.AllowLateJoins {
			return domain.ErrInvalidState
		}
		if playerID == "" {
			playerID = uuid.NewString()
		}
		p := &domain.Participant{
			ID:       playerID,
			Name:     name,
			Online:   true,
			JoinedAt: s.authority.Now(),
		}
		s.participants[playerID] = p
		s.joinOrder = append(s.joinOrder, playerID)
		joined = JoinedPayload{Player: *p, Game: s.peerSnapshotLocked()}
		s.broadcast(Event{Type: EventJoined, Payload: PlayerPayload{Player: *p}})
		log.Debug().Str("pin", s.pin).Str("player", playerID).Str("name", name).Msg("participant joined")
		return nil
	})
	return joined, err
}

// Start moves Waiting to Countdown. Host-only; requires at least one
// participant so an empty room can never leave the lobby.
func (s *Session) Start(requesterID string) error {
	return s.doWait(func() error {
		if requesterID != s.hostID {
			return domain.ErrNotHost
		}
		if s.state != domain.StateWaiting {
			return domain.ErrInvalidState
		}
		if len(s.participants) == 0 {
			return domain.ErrInvalidState
		}
		s.beginCountdown(0)
		return nil
	})
}

// NextQuestion advances out of Results: either into the next countdown or,
// when no questions remain, into Finished. During a countdown it acts as the
// host's "skip ahead" signal and opens the question immediately.
func (s *Session) NextQuestion(requesterID string) error {
	return s.doWait(func() error {
		if requesterID != s.hostID {
			return domain.ErrNotHost
		}
		switch s.state {
		case domain.StateCountdown:
			s.openQuestion()
			return nil
		case domain.StateResults:
			if s.currentIndex+1 < len(s.quiz.Questions) {
				s.beginCountdown(s.currentIndex + 1)
			} else {
				s.finishGame()
			}
			return nil
		default:
			return domain.ErrInvalidState
		}
	})
}

// ForceTimeout lets the host close the current question window early.
func (s *Session) ForceTimeout(requesterID string) error {
	return s.doWait(func() error {
		if requesterID != s.hostID {
			return domain.ErrNotHost
		}
		if s.state != domain.StateQuestion {
			return domain.ErrInvalidState
		}
		s.closeQuestion()
		return nil
	})
}

// Finish ends the game from the results screen, skipping remaining questions.
func (s *Session) Finish(requesterID string) error {
	return s.doWait(func() error {
		if requesterID != s.hostID {
			return domain.ErrNotHost
		}
		if s.state != domain.StateResults {
			return domain.ErrInvalidState
		}
		s.finishGame()
		return nil
	})
}

// DisconnectPlayer is the host kicking a participant. The participant record
// stays (scores are never deleted mid-session) but goes offline and the
// transport drops the connection.
func (s *Session) DisconnectPlayer(requesterID, playerID, reason string) error {
	return s.doWait(func() error {
		if requesterID != s.hostID {
			return domain.ErrNotHost
		}
		p, ok := s.participants[playerID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		p.Online = false
		s.broadcast(Event{Type: EventPlayerDisconnected, Payload: PlayerPayload{Player: s.peerViewLocked(*p), Reason: reason}})
		s.checkAllAnswered()
		return nil
	})
}

// MarkOffline records an abrupt participant disconnect.
func (s *Session) MarkOffline(playerID string) {
	_ = s.do(func() {
		p, ok := s.participants[playerID]
		if !ok || !p.Online {
			return
		}
		p.Online = false
		s.broadcast(Event{Type: EventPlayerDisconnected, Payload: PlayerPayload{Player: s.peerViewLocked(*p), Reason: "connection_lost"}})
		// A straggler dropping out may leave everyone else already answered.
		s.checkAllAnswered()
	})
}

// HostOffline starts the grace window after which an abandoned session is
// evicted. HostOnline cancels it on reconnect.
func (s *Session) HostOffline() {
	_ = s.do(func() {
		s.hostOnline = false
		s.graceGen++
		gen := s.graceGen
		s.stopTimer(&s.graceTimer)
		s.graceTimer = s.clk.AfterFunc(s.opts.HostGrace, func() {
			_ = s.do(func() {
				if gen != s.graceGen || s.hostOnline {
					return
				}
				s.terminate("host_disconnected")
			})
		})
		log.Debug().Str("pin", s.pin).Dur("grace", s.opts.HostGrace).Msg("host offline, grace timer armed")
	})
}

func (s *Session) HostOnline() {
	_ = s.do(func() {
		s.hostOnline = true
		s.graceGen++
		s.stopTimer(&s.graceTimer)
	})
}

// SubmitAnswer scores one submission exactly once. Duplicates come back as
// ErrDuplicateAnswer without re-scoring, stale indices are soft-acked
// no-ops, and answers outside the Question state are rejected as state
// errors.
func (s *Session) SubmitAnswer(playerID string, questionIndex int, value domain.AnswerValue) error {
	return s.doWait(func() error {
		if s.state != domain.StateQuestion {
			return domain.ErrInvalidState
		}
		if questionIndex != s.currentIndex {
			// Stale submission from a previous question, common under
			// client retry. Dropped without noise.
			return nil
		}
		p, ok := s.participants[playerID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		if _, dup := s.window.answers[playerID]; dup {
			log.Debug().Str("pin", s.pin).Str("player", playerID).Int("question", questionIndex).Msg("duplicate answer ignored")
			return domain.ErrDuplicateAnswer
		}

		question := s.quiz.Questions[s.currentIndex]
		now := s.authority.Now()
		remaining := s.window.endsAt.Sub(now)
		correct, points, err := Score(question, value, remaining)
		if err != nil {
			return err
		}

		record := domain.AnswerRecord{
			ParticipantID: playerID,
			QuestionIndex: s.currentIndex,
			Value:         value,
			Correct:       correct,
			Points:        points,
			SubmittedAt:   now,
		}
		s.window.answers[playerID] = record
		p.AnswerHistory = append(p.AnswerHistory, record)
		p.Score += points

		s.broadcast(Event{
			Type:     EventAnswerUpdate,
			HostOnly: true,
			Payload:  s.answerUpdateLocked(),
		})
		s.checkAllAnswered()
		return nil
	})
}

func (s *Session) answerUpdateLocked() AnswerUpdatePayload {
	answered := make([]string, 0, len(s.window.answers))
	for _, id := range s.joinOrder {
		if _, ok := s.window.answers[id]; ok {
			answered = append(answered, id)
		}
	}
	online := 0
	for _, p := range s.participants {
		if p.Online {
			online++
		}
	}
	return AnswerUpdatePayload{
		QuestionIndex: s.currentIndex,
		AnsweredCount: len(s.window.answers),
		Answered:      answered,
		OnlineCount:   online,
		Roster:        s.rosterLocked(),
	}
}

// checkAllAnswered closes the window early once every online participant has
// answered the current question, so one straggler cannot stall the game.
func (s *Session) checkAllAnswered() {
	if s.state != domain.StateQuestion {
		return
	}
	online := 0
	for id, p := range s.participants {
		if !p.Online {
			continue
		}
		online++
		if _, ok := s.window.answers[id]; !ok {
			return
		}
	}
	if online == 0 {
		return
	}
	log.Debug().Str("pin", s.pin).Int("question", s.currentIndex).Msg("all online participants answered, closing window")
	s.closeQuestion()
}

func (s *Session) beginCountdown(index int) {
	s.transition(domain.StateCountdown)
	s.currentIndex = index
	remaining := s.opts.CountdownTicks
	s.broadcast(Event{Type: EventCountdown, Payload: CountdownPayload{Seconds: remaining}})
	s.armTick(remaining)
}

func (s *Session) armTick(remaining int) {
	s.phaseGen++
	gen := s.phaseGen
	s.stopTimer(&s.phaseTimer)
	s.phaseTimer = s.clk.AfterFunc(s.opts.TickInterval, func() {
		_ = s.do(func() {
			if gen != s.phaseGen || s.state != domain.StateCountdown {
				return
			}
			if remaining <= 1 {
				s.openQuestion()
				return
			}
			s.broadcast(Event{Type: EventCountdown, Payload: CountdownPayload{Seconds: remaining - 1}})
			s.armTick(remaining - 1)
		})
	})
}

func (s *Session) questionLimit(q domain.Question) time.Duration {
	limit := s.settings.QuestionTimeLimit
	if q.TimeLimit > 0 {
		limit = q.TimeLimit
	}
	if limit <= 0 {
		limit = 30
	}
	return time.Duration(limit) * time.Second
}

func (s *Session) openQuestion() {
	s.transition(domain.StateQuestion)
	question := s.quiz.Questions[s.currentIndex]
	limit := s.questionLimit(question)
	now := s.authority.Now()
	s.window = &questionWindow{
		startedAt: now,
		endsAt:    now.Add(limit),
		answers:   make(map[string]domain.AnswerRecord),
	}
	s.broadcast(Event{Type: EventQuestion, Payload: QuestionPayload{
		Index:          s.currentIndex,
		Question:       question.Sanitized(),
		EndsAt:         s.window.endsAt,
		TotalQuestions: len(s.quiz.Questions),
	}})
	log.Info().Str("pin", s.pin).Int("question", s.currentIndex).Time("endsAt", s.window.endsAt).Msg("question window opened")

	s.phaseGen++
	gen := s.phaseGen
	s.stopTimer(&s.phaseTimer)
	s.phaseTimer = s.clk.AfterFunc(limit, func() {
		_ = s.do(func() {
			// A stale timeout must never fire into a later phase.
			if gen != s.phaseGen || s.state != domain.StateQuestion {
				return
			}
			s.closeQuestion()
		})
	})
}

func (s *Session) closeQuestion() {
	s.transition(domain.StateResults)
	question := s.quiz.Questions[s.currentIndex]
	if !s.settings.ShowCorrectAnswers {
		question = question.Sanitized()
	}
	answers := make([]domain.AnswerRecord, 0, len(s.window.answers))
	for _, id := range s.joinOrder {
		if rec, ok := s.window.answers[id]; ok {
			answers = append(answers, rec)
		}
	}
	s.broadcast(Event{Type: EventResults, Payload: ResultsPayload{
		Index:    s.currentIndex,
		Question: question,
		Answers:  answers,
		Roster:   s.rosterLocked(),
	}})
}

func (s *Session) finishGame() {
	s.transition(domain.StateFinished)
	winners := s.rosterLocked()
	sort.SliceStable(winners, func(i, j int) bool {
		if winners[i].Score != winners[j].Score {
			return winners[i].Score > winners[j].Score
		}
		return winners[i].JoinedAt.Before(winners[j].JoinedAt)
	})
	s.broadcast(Event{Type: EventGameFinished, Payload: GameFinishedPayload{Winners: winners}})
	log.Info().Str("pin", s.pin).Int("participants", len(winners)).Msg("game finished")

	s.graceGen++
	gen := s.graceGen
	s.stopTimer(&s.graceTimer)
	s.graceTimer = s.clk.AfterFunc(s.opts.FinishedGrace, func() {
		_ = s.do(func() {
			if gen != s.graceGen {
				return
			}
			s.terminate("session_closed")
		})
	})
}

// transition moves the state machine forward, cancelling whatever timer the
// outgoing phase had armed so it cannot fire into the new phase.
func (s *Session) transition(next domain.GameState) {
	if !s.state.CanTransition(next) {
		// Guarded by every caller; a hit here is a bug, not user input.
		log.Error().Str("pin", s.pin).Str("from", string(s.state)).Str("to", string(next)).Msg("illegal state transition blocked")
		return
	}
	s.phaseGen++
	s.stopTimer(&s.phaseTimer)
	s.state = next
}

func (s *Session) stopTimer(t *clockwork.Timer) {
	if *t == nil {
		return
	}
	(*t).Stop()
	*t = nil
}
