package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

// Registry is the in-memory PIN-to-session map.
type Registry struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	byPIN map[string]*game.Session
	byID  map[string]*game.Session
}

func NewRegistry() *Registry {
	return NewRegistryWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewRegistryWithRand allows deterministic PIN draws in tests.
func NewRegistryWithRand(rnd *rand.Rand) *Registry {
	return &Registry{
		rnd:   rnd,
		byPIN: make(map[string]*game.Session),
		byID:  make(map[string]*game.Session),
	}
}

func (r *Registry) Create(_ context.Context, build func(pin string) *game.Session) (*game.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for attempt := 0; attempt < game.PinAttempts; attempt++ {
		pin := game.NewPIN(r.rnd)
		if _, taken := r.byPIN[pin]; taken {
			continue
		}
		session := build(pin)
		r.byPIN[pin] = session
		r.byID[session.ID()] = session
		return session, nil
	}
	return nil, domain.ErrRegistryExhausted
}

func (r *Registry) Lookup(pin string) (*game.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byPIN[pin]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *Registry) LookupByID(id string) (*game.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *Registry) Evict(_ context.Context, id string) {
	r.mu.Lock()
	session, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byPIN, session.PIN())
	}
	r.mu.Unlock()
	if ok {
		session.Close()
	}
}
