// Package catalog serves static trips, stops, routes and shapes for the
// active city. Reads go to an immutable in-memory snapshot; writes go to
// the store in a single transaction and then swap the snapshot, so readers
// see either the old partition or the new one, never a mix.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Repository is the persistence the catalog writes through.
type Repository interface {
	Load(ctx context.Context, cityID string) (*Partition, error)
	ReplaceTrips(ctx context.Context, cityID string, trips []models.Trip) error
	ReplaceStops(ctx context.Context, cityID string, stops []models.Stop) error
	ReplaceRoutes(ctx context.Context, cityID string, routes []models.Route) error
	ReplaceShapes(ctx context.Context, cityID string, points []models.ShapePoint) error
}

type snapshot struct {
	cityID string

	trips   map[string]models.Trip
	tripIDs []string // sorted, for prefix lookups

	stops   map[string]models.Stop
	stopIDs []string // sorted

	routes       map[string]models.Route
	routesByName map[string]models.Route // agency + "\x00" + short name

	shapes      map[string][]models.ShapePoint
	shapePoints int
}

type Catalog struct {
	repo   Repository
	logger logger.Logger

	mu      sync.Mutex // serializes loads and replaces
	current atomic.Pointer[snapshot]
}

func New(repo Repository, log logger.Logger) *Catalog {
	c := &Catalog{repo: repo, logger: log}
	c.current.Store(&snapshot{})
	return c
}

func (c *Catalog) snap() *snapshot {
	return c.current.Load()
}

// LoadCity makes cityID the active partition. An unpopulated partition is
// an empty catalog, not an error. A store failure also leaves an empty
// catalog in place and is returned for the caller to report.
func (c *Catalog) LoadCity(ctx context.Context, cityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.repo.Load(ctx, cityID)
	if err != nil {
		c.current.Store(&snapshot{cityID: cityID})
		c.logger.Error("Failed to load catalog partition", "city", cityID, "error", err)
		return fmt.Errorf("loading partition %s: %w", cityID, err)
	}

	s := &snapshot{cityID: cityID}
	s.setTrips(p.Trips)
	s.setStops(p.Stops)
	s.setRoutes(p.Routes)
	s.setShapes(p.Shapes)
	c.current.Store(s)

	c.logger.Info("Catalog loaded",
		"city", cityID,
		"trips", len(s.trips),
		"stops", len(s.stops),
		"routes", len(s.routes),
		"shape_points", s.shapePoints)
	return nil
}

func (c *Catalog) ActiveCity() string {
	return c.snap().cityID
}

// TripByDerivedID resolves a feed trip id to a stored trip. The feed id is
// cut at its first underscore and the lexicographically first stored trip
// id starting with that prefix wins.
func (c *Catalog) TripByDerivedID(feedTripID string) (models.Trip, bool) {
	prefix := feedTripID
	if i := strings.Index(prefix, "_"); i >= 0 {
		prefix = prefix[:i]
	}
	if prefix == "" {
		return models.Trip{}, false
	}

	s := c.snap()
	i := sort.SearchStrings(s.tripIDs, prefix)
	if i < len(s.tripIDs) && strings.HasPrefix(s.tripIDs[i], prefix) {
		return s.trips[s.tripIDs[i]], true
	}
	return models.Trip{}, false
}

func (c *Catalog) Stop(stopID string) (models.Stop, bool) {
	st, ok := c.snap().stops[stopID]
	return st, ok
}

// StopsByIDs returns the stops for ids in the same order, skipping ids
// that are not stored.
func (c *Catalog) StopsByIDs(ids []string) []models.Stop {
	s := c.snap()
	out := make([]models.Stop, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.stops[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Stops returns every stop of the active partition ordered by id.
func (c *Catalog) Stops() []models.Stop {
	s := c.snap()
	out := make([]models.Stop, 0, len(s.stopIDs))
	for _, id := range s.stopIDs {
		out = append(out, s.stops[id])
	}
	return out
}

func (c *Catalog) RouteByAgencyAndShortName(agencyID, shortName string) (models.Route, bool) {
	r, ok := c.snap().routesByName[agencyID+"\x00"+shortName]
	return r, ok
}

// RouteByFeedRouteID resolves a feed route id shaped <agency>_..._<short>.
func (c *Catalog) RouteByFeedRouteID(routeID string) (models.Route, bool) {
	s := c.snap()
	if r, ok := s.routes[routeID]; ok {
		return r, true
	}
	parts := strings.Split(routeID, "_")
	if len(parts) < 2 {
		return models.Route{}, false
	}
	return c.RouteByAgencyAndShortName(parts[0], parts[len(parts)-1])
}

// Shape returns the ordered points of a shape, or nil.
func (c *Catalog) Shape(shapeID string) []models.ShapePoint {
	return c.snap().shapes[shapeID]
}

func (c *Catalog) CountTrips() int  { return len(c.snap().trips) }
func (c *Catalog) CountStops() int  { return len(c.snap().stops) }
func (c *Catalog) CountRoutes() int { return len(c.snap().routes) }

// ReplaceTrips replaces all trips of cityID. When cityID is the active city
// the in-memory snapshot is swapped after the store commits.
func (c *Catalog) ReplaceTrips(ctx context.Context, cityID string, trips []models.Trip) error {
	return c.replace(ctx, cityID, "trips", len(trips),
		func() error { return c.repo.ReplaceTrips(ctx, cityID, trips) },
		func(s *snapshot) { s.setTrips(trips) })
}

func (c *Catalog) ReplaceStops(ctx context.Context, cityID string, stops []models.Stop) error {
	return c.replace(ctx, cityID, "stops", len(stops),
		func() error { return c.repo.ReplaceStops(ctx, cityID, stops) },
		func(s *snapshot) { s.setStops(stops) })
}

func (c *Catalog) ReplaceRoutes(ctx context.Context, cityID string, routes []models.Route) error {
	return c.replace(ctx, cityID, "routes", len(routes),
		func() error { return c.repo.ReplaceRoutes(ctx, cityID, routes) },
		func(s *snapshot) { s.setRoutes(routes) })
}

func (c *Catalog) ReplaceShapes(ctx context.Context, cityID string, points []models.ShapePoint) error {
	return c.replace(ctx, cityID, "shapes", len(points),
		func() error { return c.repo.ReplaceShapes(ctx, cityID, points) },
		func(s *snapshot) { s.setShapes(points) })
}

func (c *Catalog) replace(ctx context.Context, cityID, kind string, n int, persist func() error, apply func(*snapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := persist(); err != nil {
		return fmt.Errorf("replacing %s for %s: %w", kind, cityID, err)
	}

	cur := c.snap()
	if cur.cityID != cityID {
		c.logger.Debug("Replaced inactive partition", "city", cityID, "kind", kind, "count", n)
		return nil
	}

	next := *cur
	apply(&next)
	c.current.Store(&next)

	c.logger.Info("Catalog partition replaced", "city", cityID, "kind", kind, "count", n)
	return nil
}

func (s *snapshot) setTrips(trips []models.Trip) {
	s.trips = make(map[string]models.Trip, len(trips))
	s.tripIDs = make([]string, 0, len(trips))
	for _, t := range trips {
		if _, dup := s.trips[t.TripID]; dup {
			continue
		}
		s.trips[t.TripID] = t
		s.tripIDs = append(s.tripIDs, t.TripID)
	}
	sort.Strings(s.tripIDs)
}

func (s *snapshot) setStops(stops []models.Stop) {
	s.stops = make(map[string]models.Stop, len(stops))
	s.stopIDs = make([]string, 0, len(stops))
	for _, st := range stops {
		if _, dup := s.stops[st.StopID]; dup {
			continue
		}
		s.stops[st.StopID] = st
		s.stopIDs = append(s.stopIDs, st.StopID)
	}
	sort.Strings(s.stopIDs)
}

func (s *snapshot) setRoutes(routes []models.Route) {
	s.routes = make(map[string]models.Route, len(routes))
	s.routesByName = make(map[string]models.Route, len(routes))
	for _, r := range routes {
		s.routes[r.RouteID] = r
		key := r.AgencyID + "\x00" + r.RouteShortName
		if _, ok := s.routesByName[key]; !ok {
			s.routesByName[key] = r
		}
	}
}

func (s *snapshot) setShapes(points []models.ShapePoint) {
	s.shapes = make(map[string][]models.ShapePoint)
	for _, p := range points {
		s.shapes[p.ShapeID] = append(s.shapes[p.ShapeID], p)
	}
	for id := range s.shapes {
		pts := s.shapes[id]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].ShapePtSequence < pts[j].ShapePtSequence })
	}
	s.shapePoints = len(points)
}
