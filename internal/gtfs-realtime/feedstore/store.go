// Package feedstore keeps the latest realtime snapshot per feed for the
// active city. Every snapshot carries the city and generation it was
// fetched for; anything that does not match the current pair is discarded,
// which is how late responses for a deselected city are dropped.
package feedstore

import (
	"sync"
	"sync/atomic"

	"github.com/nextstop-data/pkg/gtfs-realtime/models"
)

type state struct {
	cityID     string
	generation uint64
	feeds      map[string]*models.Snapshot
}

type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[state]
}

func New() *Store {
	s := &Store{}
	s.current.Store(&state{feeds: map[string]*models.Snapshot{}})
	return s
}

// Activate switches to cityID, drops all held snapshots and returns the new
// generation that fetches for this activation must carry.
func (s *Store) Activate(cityID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &state{
		cityID:     cityID,
		generation: s.current.Load().generation + 1,
		feeds:      map[string]*models.Snapshot{},
	}
	s.current.Store(next)
	return next.generation
}

// Active returns the current city and generation.
func (s *Store) Active() (string, uint64) {
	st := s.current.Load()
	return st.cityID, st.generation
}

// Publish installs snap as the latest for its feed. It reports false, and
// keeps the previous state, when snap belongs to another activation.
func (s *Store) Publish(snap *models.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if snap == nil || snap.CityID != cur.cityID || snap.Generation != cur.generation {
		return false
	}

	feeds := make(map[string]*models.Snapshot, len(cur.feeds)+1)
	for k, v := range cur.feeds {
		feeds[k] = v
	}
	feeds[snap.Feed] = snap
	s.current.Store(&state{cityID: cur.cityID, generation: cur.generation, feeds: feeds})
	return true
}

// Latest returns the newest snapshot for feed, or false when none has been
// published since activation.
func (s *Store) Latest(feed string) (*models.Snapshot, bool) {
	snap, ok := s.current.Load().feeds[feed]
	return snap, ok
}
