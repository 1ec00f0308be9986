package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/metrics"
	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Fetcher is the single-shot fetch the poller repeats.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, city models.City, feedName string) (*rtmodels.Snapshot, error)
}

// Publisher accepts snapshots tagged for the current activation.
type Publisher interface {
	Publish(snap *rtmodels.Snapshot) bool
}

// Poller fetches every feed of one city immediately and then on each tick.
type Poller struct {
	fetcher   Fetcher
	publisher Publisher
	interval  time.Duration
	logger    logger.Logger
	metrics   *metrics.Collector
}

func NewPoller(fetcher Fetcher, publisher Publisher, interval time.Duration, log logger.Logger, m *metrics.Collector) *Poller {
	return &Poller{
		fetcher:   fetcher,
		publisher: publisher,
		interval:  interval,
		logger:    log,
		metrics:   m,
	}
}

// Run polls feeds for city until ctx is cancelled. Snapshots are stamped
// with generation before publishing. Run returns once all feed loops exit.
func (p *Poller) Run(ctx context.Context, city models.City, generation uint64, feeds []string) {
	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		go func(feed string) {
			defer wg.Done()
			p.pollFeed(ctx, city, generation, feed)
		}(feed)
	}
	wg.Wait()
}

func (p *Poller) pollFeed(ctx context.Context, city models.City, generation uint64, feed string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting feed polling", "city", city.ID, "feed", feed, "interval", p.interval)

	p.fetchOnce(ctx, city, generation, feed)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Feed polling stopped", "city", city.ID, "feed", feed)
			return
		case <-ticker.C:
			p.fetchOnce(ctx, city, generation, feed)
		}
	}
}

func (p *Poller) fetchOnce(ctx context.Context, city models.City, generation uint64, feed string) {
	snap, err := p.fetcher.FetchSnapshot(ctx, city, feed)
	if ctx.Err() != nil {
		// Cancelled mid-flight; whatever came back belongs to a stale activation.
		return
	}
	if err != nil {
		p.metrics.ObservePoll(feed, err, 0)
		if errs.IsConfiguration(err) {
			p.logger.Error("Feed misconfigured", "city", city.ID, "feed", feed, "error", err)
		} else {
			p.logger.Warn("Feed fetch failed, keeping previous snapshot", "city", city.ID, "feed", feed, "error", err)
		}
		return
	}

	snap.Generation = generation
	if !p.publisher.Publish(snap) {
		p.metrics.LateSnapshot()
		p.logger.Debug("Discarded snapshot for inactive city", "city", city.ID, "feed", feed)
		return
	}
	p.metrics.ObservePoll(feed, nil, len(snap.Entities))
}
