package processor

import (
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-realtime/models"
)

// Processor turns decoded feed messages into domain entities. Malformed
// entities are skipped and counted; the rest of the batch is kept.
type Processor struct {
	logger logger.Logger

	mu    sync.Mutex
	stats ProcessorStats
}

type ProcessorStats struct {
	ProcessedMessages int64
	ProcessedEntities int64
	VehiclePositions  int64
	TripUpdates       int64
	SkippedEntities   int64
	LastProcessedTime time.Time
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log}
}

// Stats returns a copy of the running counters.
func (p *Processor) Stats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Decode converts msg into entities and reports how many were skipped.
func (p *Processor) Decode(feedName string, msg *gtfs.FeedMessage) ([]models.FeedEntity, int) {
	entities := make([]models.FeedEntity, 0, len(msg.GetEntity()))
	var trips, vehicles, skipped int64

	for _, e := range msg.GetEntity() {
		if e.GetIsDeleted() {
			continue
		}

		if tu := e.GetTripUpdate(); tu != nil {
			update, ok := convertTripUpdate(tu)
			if !ok {
				skipped++
				p.logger.Debug("Skipping malformed trip update", "feed", feedName, "entity", e.GetId())
				continue
			}
			entities = append(entities, models.FeedEntity{ID: e.GetId(), TripUpdate: update})
			trips++
			continue
		}

		if vp := e.GetVehicle(); vp != nil {
			vehicle, ok := convertVehicle(vp)
			if !ok {
				skipped++
				p.logger.Debug("Skipping malformed vehicle position", "feed", feedName, "entity", e.GetId())
				continue
			}
			entities = append(entities, models.FeedEntity{ID: e.GetId(), Vehicle: vehicle})
			vehicles++
			continue
		}

		// Alerts and empty entities carry nothing we derive from.
	}

	p.mu.Lock()
	p.stats.ProcessedMessages++
	p.stats.ProcessedEntities += int64(len(entities))
	p.stats.TripUpdates += trips
	p.stats.VehiclePositions += vehicles
	p.stats.SkippedEntities += skipped
	p.stats.LastProcessedTime = time.Now()
	p.mu.Unlock()

	if skipped > 0 {
		p.logger.Warn("Skipped malformed feed entities", "feed", feedName, "skipped", skipped, "kept", len(entities))
	}
	return entities, int(skipped)
}

// HeaderTime returns the feed header timestamp, zero when absent.
func HeaderTime(msg *gtfs.FeedMessage) time.Time {
	ts := msg.GetHeader().GetTimestamp()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0)
}

func convertTripUpdate(tu *gtfs.TripUpdate) (*models.TripUpdate, bool) {
	tripID := tu.GetTrip().GetTripId()
	if tripID == "" {
		return nil, false
	}

	out := &models.TripUpdate{
		TripID:          tripID,
		RouteID:         tu.GetTrip().GetRouteId(),
		StopTimeUpdates: make([]models.StopTimeUpdate, 0, len(tu.GetStopTimeUpdate())),
	}
	for _, stu := range tu.GetStopTimeUpdate() {
		if stu.GetStopId() == "" {
			// An update we cannot place at a stop is useless downstream.
			continue
		}
		out.StopTimeUpdates = append(out.StopTimeUpdates, models.StopTimeUpdate{
			StopID:               stu.GetStopId(),
			StopSequence:         stu.GetStopSequence(),
			ArrivalTime:          stu.GetArrival().GetTime(),
			DepartureTime:        stu.GetDeparture().GetTime(),
			ScheduleRelationship: models.ScheduleRelationship(stu.GetScheduleRelationship()),
		})
	}
	return out, true
}

func convertVehicle(vp *gtfs.VehiclePosition) (*models.VehicleUpdate, bool) {
	pos := vp.GetPosition()
	if pos == nil || vp.GetTrip().GetTripId() == "" {
		return nil, false
	}

	v := &models.VehicleUpdate{
		VehicleID:            vp.GetVehicle().GetId(),
		TripID:               vp.GetTrip().GetTripId(),
		RouteID:              vp.GetTrip().GetRouteId(),
		ScheduleRelationship: models.ScheduleRelationship(vp.GetTrip().GetScheduleRelationship()),
		Lat:                  float64(pos.GetLatitude()),
		Lon:                  float64(pos.GetLongitude()),
	}
	if ts := vp.GetTimestamp(); ts > 0 {
		v.Timestamp = time.Unix(int64(ts), 0)
	}
	return v, true
}
