package redis

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

// Registry keeps live session actors in a local map (an actor cannot live in
// Redis) and reserves PINs in Redis with SETNX, so several instances sharing
// one Redis never hand out the same join code. Reservations carry a TTL as a
// safety net against leaked pins from crashed instances.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
	rnd    *rand.Rand

	mu    sync.Mutex
	byPIN map[string]*game.Session
	byID  map[string]*game.Session
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return NewRegistryWithRand(client, ttl, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewRegistryWithRand allows deterministic PIN draws in tests.
func NewRegistryWithRand(client *redis.Client, ttl time.Duration, rnd *rand.Rand) *Registry {
	return &Registry{
		client: client,
		ttl:    ttl,
		rnd:    rnd,
		byPIN:  make(map[string]*game.Session),
		byID:   make(map[string]*game.Session),
	}
}

func (r *Registry) Create(ctx context.Context, build func(pin string) *game.Session) (*game.Session, error) {
	for attempt := 0; attempt < game.PinAttempts; attempt++ {
		r.mu.Lock()
		pin := game.NewPIN(r.rnd)
		if _, taken := r.byPIN[pin]; taken {
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()

		reserved, err := r.client.SetNX(ctx, r.pinKey(pin), "1", r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if !reserved {
			log.Debug().Str("pin", pin).Msg("pin reserved elsewhere, retrying")
			continue
		}

		session := build(pin)
		r.mu.Lock()
		r.byPIN[pin] = session
		r.byID[session.ID()] = session
		r.mu.Unlock()
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

func (r *Registry) Evict(ctx context.Context, id string) {
	r.mu.Lock()
	session, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byPIN, session.PIN())
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.client.Del(ctx, r.pinKey(session.PIN())).Err(); err != nil {
		log.Warn().Err(err).Str("pin", session.PIN()).Msg("failed to release pin reservation")
	}
	session.Close()
}

func (r *Registry) pinKey(pin string) string {
	return "game:pin:" + pin
}
