package gtfs_realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nextstop-data/internal/common/config"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/gtfs-realtime/consumer"
	"github.com/nextstop-data/internal/gtfs-realtime/feedstore"
	"github.com/nextstop-data/internal/metrics"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Manager owns the poller of the active city. Switching cities cancels the
// old poller and bumps the feed store generation before the new poller
// starts, so no response for the previous city can be published.
type Manager struct {
	config config.GTFSRealtimeConfig
	logger logger.Logger
	store  *feedstore.Store
	poller *consumer.Poller

	mu        sync.Mutex
	isRunning bool
	cityID    string
	cancelFn  context.CancelFunc
	done      chan struct{}
}

func NewManager(cfg config.GTFSRealtimeConfig, fetcher consumer.Fetcher, store *feedstore.Store, log logger.Logger, m *metrics.Collector) *Manager {
	return &Manager{
		config: cfg,
		logger: log,
		store:  store,
		poller: consumer.NewPoller(fetcher, store, cfg.PollingInterval, log, m),
	}
}

// SwitchCity stops polling the current city and starts polling city. A city
// without realtime feeds leaves the manager idle with an empty store.
func (m *Manager) SwitchCity(ctx context.Context, city models.City) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	generation := m.store.Activate(city.ID)
	m.cityID = city.ID

	if !city.Realtime || len(city.FeedURLs) == 0 {
		m.logger.Info("City has no realtime feeds, polling disabled", "city", city.ID)
		return nil
	}
	if err := m.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	feeds := make([]string, 0, len(city.FeedURLs))
	for name := range city.FeedURLs {
		feeds = append(feeds, name)
	}
	sort.Strings(feeds)

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancelFn = cancel
	m.done = done
	m.isRunning = true

	go func() {
		defer close(done)
		m.poller.Run(pollCtx, city, generation, feeds)
	}()

	m.logger.Info("GTFS-realtime polling started", "city", city.ID, "feeds", feeds, "generation", generation)
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if !m.isRunning {
		return
	}

	m.logger.Info("Stopping GTFS-realtime polling", "city", m.cityID)
	if m.cancelFn != nil {
		m.cancelFn()
	}
	if m.done != nil {
		<-m.done
	}

	m.cancelFn = nil
	m.done = nil
	m.isRunning = false
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// ActiveCity returns the city most recently switched to.
func (m *Manager) ActiveCity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cityID
}

func (m *Manager) validateConfig() error {
	if m.config.PollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	return nil
}
