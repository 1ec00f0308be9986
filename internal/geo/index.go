// Package geo answers spatial stop queries over the active catalog
// partition. The index holds no copy of the stops; every query reads the
// catalog's current snapshot.
package geo

import (
	"sort"
	"strings"
	"sync"

	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// DefaultRadiusMeters is the nearby-stops radius when callers pass none.
const DefaultRadiusMeters = 200.0

// StopSource is the slice of the catalog the index reads.
type StopSource interface {
	ActiveCity() string
	Stops() []models.Stop
}

// Rule reports whether a stop must be hidden from spatial results.
type Rule func(models.Stop) bool

// PrefixRule hides stops whose name starts with prefix.
func PrefixRule(prefix string) Rule {
	return func(s models.Stop) bool {
		return strings.HasPrefix(s.StopName, prefix)
	}
}

// Rules maps a city id to its exclusion rules.
type Rules struct {
	mu     sync.RWMutex
	byCity map[string][]Rule
}

// DefaultRules carries the per-city exclusions known for the bundled cities.
func DefaultRules() *Rules {
	r := &Rules{byCity: make(map[string][]Rule)}
	r.Register("toulouse", PrefixRule("SA_"))
	return r
}

func (r *Rules) Register(cityID string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCity[cityID] = append(r.byCity[cityID], rule)
}

func (r *Rules) excluded(cityID string, s models.Stop) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.byCity[cityID] {
		if rule(s) {
			return true
		}
	}
	return false
}

type Index struct {
	source StopSource
	rules  *Rules
}

func NewIndex(source StopSource, rules *Rules) *Index {
	return &Index{source: source, rules: rules}
}

// StopsInBoundingBox returns the visible stops inside box.
func (ix *Index) StopsInBoundingBox(box BoundingBox) []models.Stop {
	city := ix.source.ActiveCity()
	var out []models.Stop
	for _, s := range ix.source.Stops() {
		if box.Contains(s.Point()) && !ix.rules.excluded(city, s) {
			out = append(out, s)
		}
	}
	return out
}

// NearbyStop is a stop with its distance from the query point.
type NearbyStop struct {
	models.Stop
	DistanceMeters float64 `json:"distanceMeters"`
}

// ClosestStops returns the visible stops within radiusMeters of p, nearest
// first. A non-positive radius uses DefaultRadiusMeters.
func (ix *Index) ClosestStops(p models.Point, radiusMeters float64) []NearbyStop {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	city := ix.source.ActiveCity()

	var out []NearbyStop
	for _, s := range ix.source.Stops() {
		d := Haversine(p, s.Point())
		if d > radiusMeters || ix.rules.excluded(city, s) {
			continue
		}
		out = append(out, NearbyStop{Stop: s, DistanceMeters: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out
}
