package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleRelationship is the raw relationship code carried by stop-time
// updates and trip descriptors. The same numeric filter is applied to both.
type ScheduleRelationship int32

const (
	Scheduled   ScheduleRelationship = 0
	Added       ScheduleRelationship = 1
	Unscheduled ScheduleRelationship = 2
	Canceled    ScheduleRelationship = 3
	Replacement ScheduleRelationship = 5
)

// Served reports whether the code is 0, 1 or 5. Anything else is dropped
// rather than shown as cancelled.
func (r ScheduleRelationship) Served() bool {
	switch r {
	case Scheduled, Added, Replacement:
		return true
	}
	return false
}

// Well-known feed names keyed in City.FeedURLs.
const (
	FeedTripUpdates      = "bus"
	FeedVehiclePositions = "bus_position"
)

type StopTimeUpdate struct {
	StopID               string
	StopSequence         uint32
	ArrivalTime          int64 // epoch seconds, 0 when absent
	DepartureTime        int64 // epoch seconds, 0 when absent
	ScheduleRelationship ScheduleRelationship
}

// EffectiveTime is the departure instant, falling back to arrival.
func (u StopTimeUpdate) EffectiveTime() (time.Time, bool) {
	switch {
	case u.DepartureTime > 0:
		return time.Unix(u.DepartureTime, 0), true
	case u.ArrivalTime > 0:
		return time.Unix(u.ArrivalTime, 0), true
	}
	return time.Time{}, false
}

type TripUpdate struct {
	TripID          string
	RouteID         string
	StopTimeUpdates []StopTimeUpdate
}

// HasStop reports whether any update references stopID.
func (t *TripUpdate) HasStop(stopID string) bool {
	for _, u := range t.StopTimeUpdates {
		if u.StopID == stopID {
			return true
		}
	}
	return false
}

type VehicleUpdate struct {
	VehicleID            string
	TripID               string
	RouteID              string
	ScheduleRelationship ScheduleRelationship
	Lat                  float64
	Lon                  float64
	Timestamp            time.Time
}

// FeedEntity holds exactly one of TripUpdate or Vehicle.
type FeedEntity struct {
	ID         string
	TripUpdate *TripUpdate
	Vehicle    *VehicleUpdate
}

// Snapshot is an immutable decoded feed. Publishers replace it wholesale.
type Snapshot struct {
	ID          uuid.UUID
	CityID      string
	Feed        string
	Generation  uint64
	FetchedAt   time.Time
	HeaderTime  time.Time
	Entities    []FeedEntity
	SkippedRows int
}

// TripUpdates returns the trip-update entities in feed order.
func (s *Snapshot) TripUpdates() []*TripUpdate {
	if s == nil {
		return nil
	}
	out := make([]*TripUpdate, 0, len(s.Entities))
	for i := range s.Entities {
		if s.Entities[i].TripUpdate != nil {
			out = append(out, s.Entities[i].TripUpdate)
		}
	}
	return out
}

// Vehicles returns the vehicle entities in feed order.
func (s *Snapshot) Vehicles() []*VehicleUpdate {
	if s == nil {
		return nil
	}
	out := make([]*VehicleUpdate, 0, len(s.Entities))
	for i := range s.Entities {
		if s.Entities[i].Vehicle != nil {
			out = append(out, s.Entities[i].Vehicle)
		}
	}
	return out
}
