package scraper

import (
	"sync"
	"time"
)

type State string

const (
	StateIdle        State = "idle"
	StateListing     State = "listing"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateFailed      State = "failed"
)

// StateChange is delivered to subscribers on every transition. File is set
// while downloading or processing; Err is set on failure.
type StateChange struct {
	CityID string    `json:"cityId"`
	State  State     `json:"state"`
	File   string    `json:"file,omitempty"`
	Err    error     `json:"-"`
	At     time.Time `json:"at"`
}

type stateTracker struct {
	mu      sync.Mutex
	current map[string]StateChange
	subs    map[int]func(StateChange)
	nextSub int
}

func newStateTracker() *stateTracker {
	return &stateTracker{
		current: map[string]StateChange{},
		subs:    map[int]func(StateChange){},
	}
}

func (t *stateTracker) set(cityID string, state State, file string, err error) {
	change := StateChange{CityID: cityID, State: state, File: file, Err: err, At: time.Now()}

	t.mu.Lock()
	t.current[cityID] = change
	fns := make([]func(StateChange), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (t *stateTracker) get(cityID string) StateChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.current[cityID]; ok {
		return c
	}
	return StateChange{CityID: cityID, State: StateIdle}
}

func (t *stateTracker) subscribe(fn func(StateChange)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}
