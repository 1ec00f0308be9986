// Package departures joins realtime trip updates with the static catalog
// and produces time-ordered upcoming departures. Everything a derivation
// reads is passed in through Context; nothing here holds state.
package departures

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/geo"
	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Catalog is the static lookup a derivation needs.
type Catalog interface {
	TripByDerivedID(feedTripID string) (models.Trip, bool)
	Stop(stopID string) (models.Stop, bool)
}

// Context captures one derivation: the catalog, the snapshots as they were
// when the request started, the reference instant and, optionally, where
// the rider is.
type Context struct {
	Catalog     Catalog
	TripUpdates *rtmodels.Snapshot
	Vehicles    *rtmodels.Snapshot
	Now         time.Time
	Rider       *models.Point
}

type candidate struct {
	update *rtmodels.TripUpdate
	stop   rtmodels.StopTimeUpdate
	at     time.Time
}

// candidates is the filter shared by every derivation. It keeps trip
// updates accepted by keepTrip, then their stop-time updates accepted by
// keepStop whose relationship is served and whose time is not before Now.
// Only the first candidate per dedupe key survives.
func (c *Context) candidates(
	keepTrip func(*rtmodels.TripUpdate) bool,
	keepStop func(rtmodels.StopTimeUpdate) bool,
	dedupe func(*rtmodels.TripUpdate, rtmodels.StopTimeUpdate) string,
) []candidate {
	var out []candidate
	seen := map[string]bool{}

	for _, tu := range c.TripUpdates.TripUpdates() {
		if tu.TripID == "" || !keepTrip(tu) {
			continue
		}
		for _, u := range tu.StopTimeUpdates {
			if !keepStop(u) || !u.ScheduleRelationship.Served() {
				continue
			}
			at, ok := u.EffectiveTime()
			if !ok || at.Before(c.Now) {
				continue
			}
			key := dedupe(tu, u)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate{update: tu, stop: u, at: at})
		}
	}
	return out
}

func (c *Context) event(cand candidate, stop models.Stop, stopKnown bool) Event {
	e := Event{
		ID:          uuid.New(),
		TripID:      cand.update.TripID,
		RouteID:     cand.update.RouteID,
		BusNumber:   BusNumber(cand.update.RouteID),
		Headsign:    UnknownHeadsign,
		StopID:      cand.stop.StopID,
		StopName:    UnknownHeadsign,
		ArrivalAt:   cand.at,
		ArrivalText: FormatArrival(c.Now, cand.at),
	}
	if trip, ok := c.Catalog.TripByDerivedID(cand.update.TripID); ok {
		e.Headsign = trip.TripHeadsign
		e.DirectionID = trip.DirectionID
		e.ShapeID = trip.ShapeID
		if e.RouteID == "" {
			e.RouteID = trip.RouteID
			e.BusNumber = BusNumber(trip.RouteID)
		}
	}
	if stopKnown {
		p := stop.Point()
		e.StopName = stop.StopName
		e.StopPoint = &p
	}
	return e
}

func sortByArrival(events []Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].ArrivalAt.Before(events[j].ArrivalAt) })
}

// DeriveForStop returns upcoming departures at stop, soonest first. It
// returns errs.ErrNoData when no trip-update snapshot has been fetched.
func (c *Context) DeriveForStop(stop models.Stop) ([]Event, error) {
	if c.TripUpdates == nil {
		return nil, fmt.Errorf("deriving for stop %s: %w", stop.StopID, errs.ErrNoData)
	}
	return c.deriveForStop(stop, nil), nil
}

func (c *Context) deriveForStop(stop models.Stop, distance *float64) []Event {
	cands := c.candidates(
		func(tu *rtmodels.TripUpdate) bool { return tu.HasStop(stop.StopID) },
		func(u rtmodels.StopTimeUpdate) bool { return u.StopID == stop.StopID },
		func(tu *rtmodels.TripUpdate, _ rtmodels.StopTimeUpdate) string { return tu.TripID },
	)

	events := make([]Event, 0, len(cands))
	for _, cand := range cands {
		e := c.event(cand, stop, true)
		if distance != nil {
			d := *distance
			e.DistanceMeters = &d
			e.DistanceText = FormatDistance(d)
		}
		events = append(events, e)
	}
	sortByArrival(events)
	return events
}

// DeriveForStops derives every stop in order and groups the result. When
// the rider location is known each event carries its stop's distance.
func (c *Context) DeriveForStops(stops []models.Stop) (*Tree, error) {
	if c.TripUpdates == nil {
		return nil, fmt.Errorf("deriving for %d stops: %w", len(stops), errs.ErrNoData)
	}

	tree := NewTree()
	for _, stop := range stops {
		var distance *float64
		if c.Rider != nil {
			d := geo.Haversine(*c.Rider, stop.Point())
			distance = &d
		}
		for _, e := range c.deriveForStop(stop, distance) {
			tree.Insert(e)
		}
	}
	tree.Sort()
	return tree, nil
}

// DeriveForTrip returns the remaining stops of tripID, soonest first, with
// stop names and coordinates from the catalog.
func (c *Context) DeriveForTrip(tripID string) ([]Event, error) {
	if c.TripUpdates == nil {
		return nil, fmt.Errorf("deriving for trip %s: %w", tripID, errs.ErrNoData)
	}

	cands := c.candidates(
		func(tu *rtmodels.TripUpdate) bool { return tu.TripID == tripID },
		func(rtmodels.StopTimeUpdate) bool { return true },
		func(_ *rtmodels.TripUpdate, u rtmodels.StopTimeUpdate) string { return u.StopID },
	)

	events := make([]Event, 0, len(cands))
	for _, cand := range cands {
		stop, ok := c.Catalog.Stop(cand.stop.StopID)
		events = append(events, c.event(cand, stop, ok))
	}
	sortByArrival(events)
	return events, nil
}

// MatchVehicles returns the served vehicles running one of the events' trips.
func (c *Context) MatchVehicles(events []Event) ([]VehiclePosition, error) {
	if c.Vehicles == nil {
		return nil, fmt.Errorf("matching vehicles: %w", errs.ErrNoData)
	}

	trips := make(map[string]bool, len(events))
	for _, e := range events {
		trips[e.TripID] = true
	}

	var out []VehiclePosition
	for _, v := range c.Vehicles.Vehicles() {
		if !trips[v.TripID] || !v.ScheduleRelationship.Served() {
			continue
		}
		out = append(out, VehiclePosition{
			VehicleID: v.VehicleID,
			TripID:    v.TripID,
			RouteID:   v.RouteID,
			Point:     models.Point{Lat: v.Lat, Lon: v.Lon},
			Timestamp: v.Timestamp,
		})
	}
	return out, nil
}

// TripCoordinates returns the stop coordinates of events in order,
// skipping events whose stop could not be resolved.
func TripCoordinates(events []Event) []models.Point {
	out := make([]models.Point, 0, len(events))
	for _, e := range events {
		if e.StopPoint != nil {
			out = append(out, *e.StopPoint)
		}
	}
	return out
}
