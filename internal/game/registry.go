package game

import (
	"context"
	"math/rand"
	"strconv"
)

// PinAttempts bounds how often a registry retries a colliding PIN draw
// before giving up with ErrRegistryExhausted.
const PinAttempts = 10

// NewPIN draws a random 6-digit join code.
func NewPIN(rnd *rand.Rand) string {
	return strconv.Itoa(100000 + rnd.Intn(900000))
}

// Registry maps live PINs to session actors. Implementations guard their
// own maps; they never reach into a session's internal state.
type Registry interface {
	// Create reserves a free PIN, builds the session through the callback
	// and tracks it. Fails with domain.ErrRegistryExhausted when every
	// attempted PIN collides.
	Create(ctx context.Context, build func(pin string) *Session) (*Session, error)
	// Lookup resolves a join PIN to its live session.
	Lookup(pin string) (*Session, error)
	// LookupByID resolves a session id.
	LookupByID(id string) (*Session, error)
	// Evict removes a session, releases its PIN and stops the actor.
	Evict(ctx context.Context, id string)
}
