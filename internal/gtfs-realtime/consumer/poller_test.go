package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/gtfs-realtime/feedstore"
	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	block chan struct{} // when set, fetches wait on it
}

func (f *scriptedFetcher) FetchSnapshot(ctx context.Context, city models.City, feed string) (*rtmodels.Snapshot, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[feed]++
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &rtmodels.Snapshot{CityID: city.ID, Feed: feed, FetchedAt: time.Now()}, nil
}

func (f *scriptedFetcher) count(feed string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[feed]
}

func TestPollerFetchesImmediatelyThenOnTicks(t *testing.T) {
	store := feedstore.New()
	gen := store.Activate("sydney")
	fetcher := &scriptedFetcher{}
	p := NewPoller(fetcher, store, 20*time.Millisecond, logger.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, models.City{ID: "sydney"}, gen, []string{"bus", "bus_position"})
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, ok := store.Latest("bus_position")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return fetcher.count("bus") >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	stopped := fetcher.count("bus")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, fetcher.count("bus"), "no fetch after cancellation")
}

func TestPollerKeepsPreviousSnapshotOnFailure(t *testing.T) {
	store := feedstore.New()
	gen := store.Activate("sydney")
	prev := &rtmodels.Snapshot{CityID: "sydney", Generation: gen, Feed: "bus"}
	require.True(t, store.Publish(prev))

	fetcher := &scriptedFetcher{err: errors.Join(errs.ErrTransport, errors.New("timeout"))}
	p := NewPoller(fetcher, store, time.Hour, logger.Nop(), nil)
	p.fetchOnce(context.Background(), models.City{ID: "sydney"}, gen, "bus")

	got, ok := store.Latest("bus")
	require.True(t, ok)
	assert.Same(t, prev, got)
}

func TestLateResponseAfterCitySwitchIsDiscarded(t *testing.T) {
	store := feedstore.New()
	genA := store.Activate("sydney")

	release := make(chan struct{})
	fetcher := &scriptedFetcher{block: release}
	p := NewPoller(fetcher, store, time.Hour, logger.Nop(), nil)

	// The fetch for city A is in flight while the user switches to city B.
	finished := make(chan struct{})
	go func() {
		p.fetchOnce(context.Background(), models.City{ID: "sydney"}, genA, "bus")
		close(finished)
	}()
	assert.Eventually(t, func() bool { return fetcher.count("bus") == 1 }, time.Second, 5*time.Millisecond)

	store.Activate("toulouse")
	close(release)
	<-finished

	_, ok := store.Latest("bus")
	assert.False(t, ok, "sydney's late snapshot must not be visible under toulouse")
}
