// Package clock keeps an authoritative notion of "now" for scoring and
// question deadlines, independent of any single machine's drift.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Source provides an external authoritative timestamp.
type Source interface {
	Fetch(ctx context.Context) (time.Time, error)
}

// Synchronizer maintains an offset between the local process clock and an
// external time source. Reads never block on the network: Now returns the
// local clock adjusted by the last known offset, which is zero until the
// first successful refresh.
type Synchronizer struct {
	local   clockwork.Clock
	source  Source
	refresh time.Duration

	mu       sync.RWMutex
	offset   time.Duration
	syncedAt time.Time
}

// NewSynchronizer builds a synchronizer refreshing every interval. A nil
// source disables refreshing and Now mirrors the local clock.
func NewSynchronizer(local clockwork.Clock, source Source, refresh time.Duration) *Synchronizer {
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	return &Synchronizer{local: local, source: source, refresh: refresh}
}

// Now returns the skew-corrected current time.
func (s *Synchronizer) Now() time.Time {
	s.mu.RLock()
	offset := s.offset
	s.mu.RUnlock()
	return s.local.Now().Add(offset)
}

// Offset exposes the cached skew, mostly for logging and tests.
func (s *Synchronizer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Stale reports whether the offset has not been refreshed within maxAge.
// Callers may trigger a lazy Refresh before opening a question window.
func (s *Synchronizer) Stale(maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt.IsZero() || s.local.Now().Sub(s.syncedAt) > maxAge
}

// Refresh queries the source once and recomputes the offset. Network delay
// is compensated by anchoring the server time against the midpoint of the
// local timestamps taken around the call. Failure keeps the previous offset;
// time synchronization is best effort and never fatal.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	before := s.local.Now()
	server, err := s.source.Fetch(ctx)
	after := s.local.Now()
	if err != nil {
		log.Warn().Err(err).Msg("time source unreachable, keeping cached offset")
		return err
	}

	midpoint := before.Add(after.Sub(before) / 2)
	offset := server.Sub(midpoint)

	s.mu.Lock()
	s.offset = offset
	s.syncedAt = after
	s.mu.Unlock()

	log.Debug().Dur("offset", offset).Msg("clock offset refreshed")
	return nil
}

// Run refreshes immediately and then on the configured interval until the
// context is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	if s.source == nil {
		return
	}
	_ = s.Refresh(ctx)

	ticker := s.local.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_ = s.Refresh(ctx)
		}
	}
}
