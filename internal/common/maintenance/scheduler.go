package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextstop-data/internal/common/db"
	"github.com/nextstop-data/internal/common/logger"
)

// CitySource lists the ids of the configured cities.
type CitySource func() []string

// CleanupScheduler runs catalog maintenance periodically, never while a
// static sync is writing.
type CleanupScheduler struct {
	maintenance *Maintenance
	logger      logger.Logger
	cities      CitySource
	config      SchedulerConfig

	mu       sync.RWMutex
	running  bool
	cancelFn context.CancelFunc

	importMu           sync.RWMutex
	isImportInProgress bool
}

type SchedulerConfig struct {
	Interval     time.Duration // 0 disables the periodic loop
	InitialDelay time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     24 * time.Hour,
		InitialDelay: 5 * time.Minute,
	}
}

func NewCleanupScheduler(database *db.DB, cities CitySource, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		maintenance: New(database, logger),
		logger:      logger,
		cities:      cities,
		config:      config,
	}
}

// Start launches the cleanup loop and returns immediately.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cleanup scheduler is already running")
	}
	if s.config.Interval <= 0 {
		s.logger.Info("Catalog maintenance disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.running = true

	s.logger.Info("Starting cleanup scheduler", "interval", s.config.Interval, "initial_delay", s.config.InitialDelay)
	go s.loop(ctx)
	return nil
}

func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.running = false
	s.logger.Info("Cleanup scheduler stopped")
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LockForImport blocks cleanup until UnlockAfterImport. Both are idempotent.
func (s *CleanupScheduler) LockForImport() {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	if !s.isImportInProgress {
		s.isImportInProgress = true
		s.logger.Debug("Cleanup locked for static sync")
	}
}

func (s *CleanupScheduler) UnlockAfterImport() {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	if s.isImportInProgress {
		s.isImportInProgress = false
		s.logger.Debug("Cleanup unlocked after static sync")
	}
}

func (s *CleanupScheduler) canPerformCleanup() bool {
	s.importMu.RLock()
	defer s.importMu.RUnlock()
	return !s.isImportInProgress
}

func (s *CleanupScheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(s.config.InitialDelay)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initialDelay.C:
			s.performCleanup(ctx)
		case <-ticker.C:
			s.performCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performCleanup(ctx context.Context) {
	if err := s.TriggerCleanup(ctx); err != nil {
		s.logger.Warn("Scheduled catalog maintenance skipped", "error", err)
	}
}

// TriggerCleanup runs one maintenance pass now.
func (s *CleanupScheduler) TriggerCleanup(ctx context.Context) error {
	if !s.canPerformCleanup() {
		return fmt.Errorf("cannot perform cleanup: static sync in progress")
	}

	start := time.Now()
	if err := s.maintenance.PerformPostSyncMaintenance(ctx, s.cities()); err != nil {
		return err
	}
	s.logger.Info("Catalog maintenance completed", "duration", time.Since(start))
	return nil
}

func (s *CleanupScheduler) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"is_running":            s.running,
		"is_import_in_progress": !s.canPerformCleanup(),
		"interval":              s.config.Interval.String(),
	}
}
