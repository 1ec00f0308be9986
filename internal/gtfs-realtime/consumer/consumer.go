package consumer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/nextstop-data/internal/common/config"
	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/gtfs-realtime/processor"
	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

const (
	HeaderAuthorization = "Authorization"
	UserAgent           = "nextstop-data/1.0"
)

// Consumer fetches and decodes one realtime feed per call.
type Consumer struct {
	httpClient *http.Client
	processor  *processor.Processor
	logger     logger.Logger
	cache      *feedCache
}

type feedCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex
}

type cacheEntry struct {
	snapshot *rtmodels.Snapshot
	etag     string
}

func NewConsumer(cfg config.GTFSRealtimeConfig, proc *processor.Processor, log logger.Logger) *Consumer {
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &Consumer{
		httpClient: client,
		processor:  proc,
		logger:     log,
		cache:      &feedCache{data: make(map[string]*cacheEntry)},
	}
}

// FetchSnapshot performs a single GET of city's feedName endpoint and
// returns the decoded snapshot. Errors wrap errs.ErrInvalidEndpoint,
// errs.ErrMissingCredential, errs.ErrTransport or errs.ErrDecode.
func (c *Consumer) FetchSnapshot(ctx context.Context, city models.City, feedName string) (*rtmodels.Snapshot, error) {
	endpoint, err := feedEndpoint(city, feedName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(city.APIKey) == "" {
		return nil, fmt.Errorf("city %s: %w", city.ID, errs.ErrMissingCredential)
	}

	cacheKey := city.ID + "/" + feedName

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", feedName, errs.ErrInvalidEndpoint)
	}
	req.Header.Set(HeaderAuthorization, city.APIKey)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/x-protobuf")

	cached := c.cache.get(cacheKey)
	if cached != nil && cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s for %s: %w: %v", feedName, city.ID, errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		c.logger.Debug("Feed not modified, reusing cached snapshot", "city", city.ID, "feed", feedName)
		return refreshed(cached.snapshot), nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s for %s: %w: HTTP %d", feedName, city.ID, errs.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w: %v", feedName, errs.ErrTransport, err)
	}

	msg := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("unmarshalling %s: %w: %v", feedName, errs.ErrDecode, err)
	}

	entities, skipped := c.processor.Decode(feedName, msg)
	snap := &rtmodels.Snapshot{
		ID:          uuid.New(),
		CityID:      city.ID,
		Feed:        feedName,
		FetchedAt:   time.Now(),
		HeaderTime:  processor.HeaderTime(msg),
		Entities:    entities,
		SkippedRows: skipped,
	}

	c.cache.set(cacheKey, &cacheEntry{snapshot: snap, etag: resp.Header.Get("ETag")})

	c.logger.Debug("Successfully fetched feed",
		"city", city.ID,
		"feed", feedName,
		"entities", len(entities),
		"bytes", len(body))
	return snap, nil
}

// feedEndpoint resolves and validates the URL configured for feedName.
func feedEndpoint(city models.City, feedName string) (string, error) {
	raw, ok := city.FeedURLs[feedName]
	if !ok || strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("city %s has no %q feed: %w", city.ID, feedName, errs.ErrInvalidEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("city %s feed %q url %q: %w", city.ID, feedName, raw, errs.ErrInvalidEndpoint)
	}
	return raw, nil
}

// refreshed returns a copy of snap stamped as fetched now. The entity slice
// is shared since snapshots are never mutated.
func refreshed(snap *rtmodels.Snapshot) *rtmodels.Snapshot {
	cp := *snap
	cp.ID = uuid.New()
	cp.FetchedAt = time.Now()
	return &cp
}

func (fc *feedCache) get(key string) *cacheEntry {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.data[key]
}

func (fc *feedCache) set(key string, entry *cacheEntry) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.data[key] = entry
}
