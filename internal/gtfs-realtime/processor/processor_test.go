package processor

import (
	"testing"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-realtime/models"
)

func feed(entities ...*gtfs.FeedEntity) *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: entities,
	}
}

func TestDecodeTripUpdatesAndVehicles(t *testing.T) {
	msg := feed(
		&gtfs.FeedEntity{
			Id: proto.String("1"),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{TripId: proto.String("123_A"), RouteId: proto.String("2441_M10")},
				StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
					{
						StopId:               proto.String("1122233"),
						Departure:            &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(1700000180)},
						ScheduleRelationship: gtfs.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
					},
					{Arrival: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(1700000200)}},
				},
			},
		},
		&gtfs.FeedEntity{
			Id: proto.String("2"),
			Vehicle: &gtfs.VehiclePosition{
				Trip:      &gtfs.TripDescriptor{TripId: proto.String("123_A")},
				Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String("bus-7")},
				Position:  &gtfs.Position{Latitude: proto.Float32(-33.9), Longitude: proto.Float32(151.2)},
				Timestamp: proto.Uint64(1700000010),
			},
		},
	)

	p := NewProcessor(logger.Nop())
	entities, skipped := p.Decode("bus", msg)
	assert.Zero(t, skipped)
	require.Len(t, entities, 2)

	tu := entities[0].TripUpdate
	require.NotNil(t, tu)
	assert.Equal(t, "123_A", tu.TripID)
	require.Len(t, tu.StopTimeUpdates, 1, "updates without a stop id are dropped")
	assert.Equal(t, models.ScheduleRelationship(1), tu.StopTimeUpdates[0].ScheduleRelationship)
	assert.EqualValues(t, 1700000180, tu.StopTimeUpdates[0].DepartureTime)

	v := entities[1].Vehicle
	require.NotNil(t, v)
	assert.Equal(t, "bus-7", v.VehicleID)
	assert.Equal(t, models.Scheduled, v.ScheduleRelationship)
	assert.InDelta(t, -33.9, v.Lat, 1e-4)

	assert.EqualValues(t, 1700000000, HeaderTime(msg).Unix())
	assert.EqualValues(t, 1, p.Stats().TripUpdates)
}

func TestDecodeSkipsMalformedEntities(t *testing.T) {
	msg := feed(
		&gtfs.FeedEntity{Id: proto.String("no-trip"), TripUpdate: &gtfs.TripUpdate{Trip: &gtfs.TripDescriptor{}}},
		&gtfs.FeedEntity{Id: proto.String("no-pos"), Vehicle: &gtfs.VehiclePosition{Trip: &gtfs.TripDescriptor{TripId: proto.String("x")}}},
		&gtfs.FeedEntity{
			Id:         proto.String("ok"),
			TripUpdate: &gtfs.TripUpdate{Trip: &gtfs.TripDescriptor{TripId: proto.String("1")}},
		},
	)

	p := NewProcessor(logger.Nop())
	entities, skipped := p.Decode("bus", msg)
	assert.Equal(t, 2, skipped)
	require.Len(t, entities, 1)
	assert.Equal(t, "ok", entities[0].ID)
	assert.EqualValues(t, 2, p.Stats().SkippedEntities)
}
