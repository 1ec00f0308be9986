// Package scheduleapi reads upcoming departures from a city's own schedule
// service, for cities without a realtime feed.
package scheduleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/nextstop-data/internal/common/config"
	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/departures"
	"github.com/nextstop-data/internal/metrics"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

const dateTimeLayout = "2006-01-02 15:04:05"

type scheduleResponse struct {
	Departures *struct {
		Departure []scheduleDeparture `json:"departure"`
	} `json:"departures"`
}

type scheduleDeparture struct {
	DateTime string `json:"dateTime"`
	Line     *struct {
		ID        string `json:"id"`
		ShortName string `json:"shortName"`
	} `json:"line"`
	Destination []struct {
		Name string `json:"name"`
	} `json:"destination"`
}

type Client struct {
	client  *http.Client
	cache   gcache.Cache
	logger  logger.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewClient(cfg config.ScheduleAPIConfig, timeout time.Duration, log logger.Logger, m *metrics.Collector) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		cache:   gcache.New(cfg.CacheSize).LRU().Expiration(cfg.CacheTTL).Build(),
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// Departures returns the upcoming departures at stop, soonest first.
// Responses are cached per city and stop; entries that have passed are
// dropped on every call.
func (c *Client) Departures(ctx context.Context, city models.City, stop models.Stop) ([]departures.Event, error) {
	key := city.ID + "\x00" + stop.StopID

	var all []departures.Event
	if cached, err := c.cache.Get(key); err == nil {
		all = cached.([]departures.Event)
		c.metrics.ScheduleAPICall("cached")
	} else {
		fetched, err := c.fetch(ctx, city, stop)
		if err != nil {
			c.metrics.ScheduleAPICall("error")
			return nil, err
		}
		c.metrics.ScheduleAPICall("ok")
		if err := c.cache.Set(key, fetched); err != nil {
			c.logger.Warn("Failed to cache schedule response", "city", city.ID, "stop", stop.StopID, "error", err)
		}
		all = fetched
	}

	now := c.now()
	out := make([]departures.Event, 0, len(all))
	for _, e := range all {
		if e.ArrivalAt.Before(now) {
			continue
		}
		e.ArrivalText = departures.FormatArrival(now, e.ArrivalAt)
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, city models.City, stop models.Stop) ([]departures.Event, error) {
	if city.ScheduleAPI == "" {
		return nil, fmt.Errorf("city %s has no schedule api: %w", city.ID, errs.ErrInvalidEndpoint)
	}
	if city.APIKey == "" {
		return nil, fmt.Errorf("city %s schedule api: %w", city.ID, errs.ErrMissingCredential)
	}

	u, err := url.Parse(city.ScheduleAPI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("schedule api %q: %w", city.ScheduleAPI, errs.ErrInvalidEndpoint)
	}
	q := u.Query()
	q.Set("stopPointId", stop.StopID)
	q.Set("key", city.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", errs.ErrInvalidEndpoint)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schedule api request: %w: %w", errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("schedule api returned status %d: %w", resp.StatusCode, errs.ErrTransport)
	}

	var body scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding schedule response: %w: %w", errs.ErrDecode, err)
	}
	if body.Departures == nil {
		return nil, fmt.Errorf("schedule response has no departures: %w", errs.ErrDecode)
	}

	loc := c.location(city)
	point := stop.Point()
	events := make([]departures.Event, 0, len(body.Departures.Departure))
	skipped := 0
	for _, d := range body.Departures.Departure {
		if d.Line == nil || len(d.Destination) == 0 || d.DateTime == "" {
			skipped++
			continue
		}
		at, err := time.ParseInLocation(dateTimeLayout, d.DateTime, loc)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, departures.Event{
			ID:        uuid.New(),
			RouteID:   d.Line.ID,
			BusNumber: d.Line.ShortName,
			Headsign:  d.Destination[0].Name,
			StopID:    stop.StopID,
			StopName:  stop.StopName,
			StopPoint: &point,
			ArrivalAt: at,
		})
	}
	if skipped > 0 {
		c.logger.Debug("Skipped schedule entries", "city", city.ID, "stop", stop.StopID, "skipped", skipped)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].ArrivalAt.Before(events[j].ArrivalAt) })
	return events, nil
}

func (c *Client) location(city models.City) *time.Location {
	if city.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(city.Timezone)
	if err != nil {
		c.logger.Warn("Unknown city timezone, using UTC", "city", city.ID, "timezone", city.Timezone)
		return time.UTC
	}
	return loc
}
