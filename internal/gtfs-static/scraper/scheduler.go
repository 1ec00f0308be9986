package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// ActiveCitySource tells the scheduler which city to sync.
type ActiveCitySource interface {
	Active() (models.City, bool)
}

type GTFSScheduler struct {
	checkInterval time.Duration
	syncer        *Syncer
	cities        ActiveCitySource
	logger        logger.Logger

	trigger chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewScheduler syncs the active city on start and on every Trigger. A
// non-zero checkInterval adds periodic checks.
func NewScheduler(checkInterval time.Duration, syncer *Syncer, cities ActiveCitySource, logger logger.Logger) *GTFSScheduler {
	return &GTFSScheduler{
		checkInterval: checkInterval,
		syncer:        syncer,
		cities:        cities,
		logger:        logger,
		trigger:       make(chan struct{}, 1),
	}
}

// Trigger requests a sync of the active city. Requests made while one is
// already pending are merged.
func (s *GTFSScheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *GTFSScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting static sync scheduler", "check_interval", s.checkInterval)

	// Initial check
	s.checkAndUpdate(ctx)

	var tick <-chan time.Time
	if s.checkInterval > 0 {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-s.trigger:
			s.checkAndUpdate(ctx)
		case <-tick:
			s.checkAndUpdate(ctx)
		}
	}
}

func (s *GTFSScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.running = false
	return nil
}

func (s *GTFSScheduler) checkAndUpdate(ctx context.Context) {
	city, ok := s.cities.Active()
	if !ok {
		s.logger.Debug("No active city, skipping static sync")
		return
	}

	report, err := s.syncer.Sync(ctx, city.ID)
	if err != nil {
		return
	}
	if len(report.Applied) > 0 {
		s.logger.Info("Static data updated", "city", city.ID, "files", report.Applied)
	}
}
