package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/metrics"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Report describes one sync run.
type Report struct {
	CityID  string   `json:"cityId"`
	Listed  int      `json:"listed"`
	Pending int      `json:"pending"`
	Applied []string `json:"applied"`
	Failed  []string `json:"failed"`
}

// Syncer brings a city's catalog up to date with the dated files in the
// remote store. Runs are serialized.
type Syncer struct {
	store       RemoteStore
	cities      CityStore
	importer    Importer
	alerter     Alerter
	metrics     *metrics.Collector
	downloadDir string
	logger      logger.Logger

	runMu  sync.Mutex
	states *stateTracker
}

func NewSyncer(store RemoteStore, cities CityStore, imp Importer, downloadDir string, log logger.Logger) *Syncer {
	return &Syncer{
		store:       store,
		cities:      cities,
		importer:    imp,
		downloadDir: downloadDir,
		logger:      log,
		states:      newStateTracker(),
	}
}

// WithAlerter reports skipped files through a.
func (s *Syncer) WithAlerter(a Alerter) *Syncer {
	s.alerter = a
	return s
}

func (s *Syncer) WithMetrics(m *metrics.Collector) *Syncer {
	s.metrics = m
	return s
}

// Subscribe registers fn for state transitions of every city.
func (s *Syncer) Subscribe(fn func(StateChange)) func() {
	return s.states.subscribe(fn)
}

// State returns the latest transition recorded for cityID.
func (s *Syncer) State(cityID string) StateChange {
	return s.states.get(cityID)
}

// PendingFiles lists the files newer than the city's last applied date,
// oldest first. Names that do not follow the naming convention are dropped.
func PendingFiles(names []string, city models.City) []models.RemoteFile {
	prefix := city.StoragePrefix()
	var out []models.RemoteFile
	for _, name := range names {
		f, err := models.ParseRemoteFile(name, prefix)
		if err != nil {
			continue
		}
		if city.LastSyncDate != nil && f.Date.OnOrBefore(*city.LastSyncDate) {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Sync lists, downloads and applies every pending file for cityID in date
// order. A file that fails is reported and skipped. Progress is recorded
// after each applied file, so an interrupted run resumes after it.
func (s *Syncer) Sync(ctx context.Context, cityID string) (report Report, err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report = Report{CityID: cityID}
	defer func() {
		if err != nil {
			s.states.set(cityID, StateFailed, "", err)
			s.logger.Error("Static sync failed", "city", cityID, "error", err)
		}
		s.states.set(cityID, StateIdle, "", nil)
		s.metrics.SyncRun(err)
	}()

	city, ok := s.cities.Get(cityID)
	if !ok {
		return report, fmt.Errorf("syncing %q: %w", cityID, errs.ErrUnknownCity)
	}

	s.states.set(cityID, StateListing, "", nil)
	names, err := s.store.List(ctx, city.StoragePrefix())
	if err != nil {
		return report, fmt.Errorf("listing static files for %s: %w", cityID, err)
	}
	pending := PendingFiles(names, city)
	report.Listed, report.Pending = len(names), len(pending)

	s.logger.Info("Static sync started",
		"city", cityID,
		"listed", len(names),
		"pending", len(pending),
		"last_sync_date", city.LastSyncDate)

	for _, file := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := s.syncFile(ctx, city, file); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed = append(report.Failed, file.Name)
			s.metrics.SyncFile("failed")
			s.logger.Error("Static file skipped", "city", cityID, "file", file.Name, "error", err)
			if s.alerter != nil {
				if alertErr := s.alerter.SendSyncFailure(ctx, cityID, file.Name, err); alertErr != nil {
					s.logger.Warn("Failed to send sync alert", "error", alertErr)
				}
			}
			continue
		}

		if err := s.cities.UpdateSyncState(cityID, file.Date, file.Name); err != nil {
			return report, fmt.Errorf("recording sync state after %s: %w", file.Name, err)
		}
		report.Applied = append(report.Applied, file.Name)
	}

	s.logger.Info("Static sync finished",
		"city", cityID,
		"applied", len(report.Applied),
		"failed", len(report.Failed))
	return report, nil
}

func (s *Syncer) syncFile(ctx context.Context, city models.City, file models.RemoteFile) error {
	cityID := city.ID
	dest := filepath.Join(s.downloadDir, cityID, file.Name)
	defer os.Remove(dest)

	s.states.set(cityID, StateDownloading, file.Name, nil)
	if err := s.store.Download(ctx, city.StoragePrefix(), file.Name, dest); err != nil {
		return fmt.Errorf("downloading %s: %w: %w", file.Name, errs.ErrSyncFile, err)
	}

	s.states.set(cityID, StateProcessing, file.Name, nil)
	res, err := s.importer.Import(ctx, cityID, file, dest)
	if err != nil {
		return fmt.Errorf("processing %s: %w: %w", file.Name, errs.ErrSyncFile, err)
	}

	if res.Unhandled {
		s.metrics.SyncFile("unhandled")
	} else {
		s.metrics.SyncFile("applied")
	}
	return nil
}
