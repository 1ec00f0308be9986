// Package city keeps the list of supported cities, which one is active and
// how far each city's static data has been synced.
package city

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

type seedFile struct {
	Cities []models.City `yaml:"cities" validate:"required,dive"`
}

// overlayEntry is the mutable part of a city, persisted between runs.
type overlayEntry struct {
	ID               string           `json:"id"`
	GTFSDownloadDate *models.FileDate `json:"gtfsDownloadDate"`
	GTFSFileName     *string          `json:"gtfsFileName"`
}

type activeDoc struct {
	ID string `json:"id"`
}

type Registry struct {
	mu     sync.RWMutex
	cities []models.City
	byID   map[string]int
	active string

	overlayPath string
	activePath  string
	log         logger.Logger

	subMu   sync.Mutex
	subs    map[int]func(models.City)
	nextSub int
}

// Load reads the bundled seed list, merges the persisted overlay and the
// active city. A missing overlay is created from the seed list.
func Load(seedPath, overlayPath, activePath string, log logger.Logger) (*Registry, error) {
	raw, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("reading city seed list: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &seed); err != nil {
		return nil, fmt.Errorf("decoding city seed list: %w", err)
	}
	if err := validator.New().Struct(seed); err != nil {
		return nil, fmt.Errorf("validating city seed list: %w", err)
	}

	r := &Registry{
		byID:        make(map[string]int, len(seed.Cities)),
		overlayPath: overlayPath,
		activePath:  activePath,
		log:         log,
		subs:        map[int]func(models.City){},
	}
	for _, c := range seed.Cities {
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("city %q listed twice in seed list", c.ID)
		}
		r.byID[c.ID] = len(r.cities)
		r.cities = append(r.cities, c)
	}

	if err := r.loadOverlay(); err != nil {
		return nil, err
	}
	if err := r.loadActive(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadOverlay() error {
	raw, err := os.ReadFile(r.overlayPath)
	if errors.Is(err, os.ErrNotExist) {
		r.log.Info("Seeding city overlay", "path", r.overlayPath, "cities", len(r.cities))
		return r.persistOverlayLocked()
	}
	if err != nil {
		return fmt.Errorf("reading city overlay: %w", err)
	}

	var entries []overlayEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decoding city overlay: %w", err)
	}
	for _, e := range entries {
		i, ok := r.byID[e.ID]
		if !ok {
			r.log.Warn("Ignoring overlay entry for unknown city", "city_id", e.ID)
			continue
		}
		if e.GTFSDownloadDate != nil && !e.GTFSDownloadDate.IsZero() {
			r.cities[i].LastSyncDate = e.GTFSDownloadDate
		}
		r.cities[i].LastSyncedFile = e.GTFSFileName
	}
	return nil
}

func (r *Registry) loadActive() error {
	raw, err := os.ReadFile(r.activePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading active city: %w", err)
	}

	var doc activeDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding active city: %w", err)
	}
	if _, ok := r.byID[doc.ID]; !ok {
		r.log.Warn("Persisted active city is no longer listed", "city_id", doc.ID)
		return nil
	}
	r.active = doc.ID
	return nil
}

// Cities returns every known city in seed order.
func (r *Registry) Cities() []models.City {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.City, len(r.cities))
	copy(out, r.cities)
	return out
}

func (r *Registry) Get(id string) (models.City, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return models.City{}, false
	}
	return r.cities[i], true
}

// Active returns the selected city, if any.
func (r *Registry) Active() (models.City, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return models.City{}, false
	}
	return r.cities[r.byID[r.active]], true
}

// SetActive selects id, persists the choice and notifies subscribers.
// Selecting the already active city is a no-op.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	i, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("activating city %q: %w", id, errs.ErrUnknownCity)
	}
	if r.active == id {
		r.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(activeDoc{ID: id})
	if err == nil {
		err = writeFileDurable(r.activePath, data)
	}
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persisting active city %q: %w", id, err)
	}
	r.active = id
	c := r.cities[i]
	r.mu.Unlock()

	r.log.Info("Active city changed", "city_id", id)
	r.notify(c)
	return nil
}

// UpdateSyncState records the last applied static file for id. It returns
// only once the overlay is on disk.
func (r *Registry) UpdateSyncState(id string, date models.FileDate, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("updating sync state of %q: %w", id, errs.ErrUnknownCity)
	}

	prevDate, prevFile := r.cities[i].LastSyncDate, r.cities[i].LastSyncedFile
	r.cities[i].LastSyncDate = &date
	r.cities[i].LastSyncedFile = &fileName

	if err := r.persistOverlayLocked(); err != nil {
		r.cities[i].LastSyncDate, r.cities[i].LastSyncedFile = prevDate, prevFile
		return err
	}
	return nil
}

// IsStaticDataDownloaded reports whether any static file was applied for id.
func (r *Registry) IsStaticDataDownloaded(id string) bool {
	c, ok := r.Get(id)
	return ok && c.LastSyncDate != nil
}

// Subscribe registers fn for active-city changes. Call the returned func to
// stop receiving them.
func (r *Registry) Subscribe(fn func(models.City)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) notify(c models.City) {
	r.subMu.Lock()
	fns := make([]func(models.City), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (r *Registry) persistOverlayLocked() error {
	entries := make([]overlayEntry, 0, len(r.cities))
	for _, c := range r.cities {
		entries = append(entries, overlayEntry{ID: c.ID, GTFSDownloadDate: c.LastSyncDate, GTFSFileName: c.LastSyncedFile})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding city overlay: %w", err)
	}
	if err := writeFileDurable(r.overlayPath, data); err != nil {
		return fmt.Errorf("persisting city overlay: %w", err)
	}
	return nil
}

// writeFileDurable replaces path with data via a synced temp file.
func writeFileDurable(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
