package departures

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// UnknownHeadsign is shown when a feed trip cannot be resolved.
const UnknownHeadsign = "Unknown"

// Event is one upcoming departure of a trip at a stop.
type Event struct {
	ID             uuid.UUID     `json:"id"`
	TripID         string        `json:"tripId"`
	RouteID        string        `json:"routeId"`
	BusNumber      string        `json:"busNumber"`
	Headsign       string        `json:"headsign"`
	DirectionID    string        `json:"directionId"`
	ShapeID        string        `json:"shapeId,omitempty"`
	StopID         string        `json:"stopId"`
	StopName       string        `json:"stopName"`
	StopPoint      *models.Point `json:"stopPoint,omitempty"`
	ArrivalAt      time.Time     `json:"arrivalAt"`
	ArrivalText    string        `json:"arrivalTime"`
	DistanceMeters *float64      `json:"distanceMeters,omitempty"`
	DistanceText   string        `json:"distance,omitempty"`
}

func (e Event) distance() float64 {
	if e.DistanceMeters == nil {
		return 0
	}
	return *e.DistanceMeters
}

type VehiclePosition struct {
	VehicleID string       `json:"vehicleId"`
	TripID    string       `json:"tripId"`
	RouteID   string       `json:"routeId"`
	Point     models.Point `json:"point"`
	Timestamp time.Time    `json:"timestamp"`
}

// BusNumber is the public line number: the last underscore-separated
// component of a feed route id.
func BusNumber(routeID string) string {
	if i := strings.LastIndex(routeID, "_"); i >= 0 {
		return routeID[i+1:]
	}
	return routeID
}

// FormatArrival renders the whole minutes from now until at, e.g. "3 min".
func FormatArrival(now, at time.Time) string {
	minutes := int(at.Sub(now) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d min", minutes)
}

// FormatDistance renders meters with no fractional digits, e.g. "142 m".
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%d m", int64(math.Round(meters)))
}
