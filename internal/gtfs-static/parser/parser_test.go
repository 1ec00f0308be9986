package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

func TestParseTrips(t *testing.T) {
	body := `[
		{"route_id":"2441_M10","trip_id":"123","trip_headsign":"Maroubra","direction_id":"0","shape_id":"s1","wheelchair_accessible":"1"},
		{"route_id":"2441_M10","trip_id":"124","trip_headsign":"Leichhardt","direction_id":1}
	]`

	var trips []*models.Trip
	var completed int
	err := New(logger.Nop()).Parse(context.Background(), strings.NewReader(body), models.FileTypeTrips, ParseCallbacks{
		OnTrip:         func(tr *models.Trip) error { trips = append(trips, tr); return nil },
		OnFileComplete: func(_ string, n int) error { completed = n; return nil },
	})
	require.NoError(t, err)
	require.Len(t, trips, 2)

	assert.Equal(t, "123", trips[0].TripID)
	assert.Equal(t, "Maroubra", trips[0].TripHeadsign)
	assert.Equal(t, "0", trips[0].DirectionID)
	assert.Equal(t, 1, trips[0].WheelchairAccessible)
	assert.Equal(t, "1", trips[1].DirectionID, "numeric values are accepted")
	assert.Equal(t, 2, completed)
}

func TestParseFileStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toulouse_stops_20240501.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"stop_id":"SP_1","stop_name":"Capitole","stop_lat":"43.6045","stop_lon":"1.4440"}]`), 0o644))

	var stops []*models.Stop
	err := New(logger.Nop()).ParseFile(context.Background(), path, models.FileTypeStops, ParseCallbacks{
		OnStop: func(s *models.Stop) error { stops = append(stops, s); return nil },
	})
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "Capitole", stops[0].StopName)
	assert.InDelta(t, 43.6045, stops[0].StopLat, 1e-9)
}

func TestParseErrors(t *testing.T) {
	p := New(logger.Nop())
	ctx := context.Background()

	tests := []struct {
		name     string
		body     string
		fileType string
	}{
		{"unsupported type", `[]`, "calendar"},
		{"not an array", `{"stop_id":"1"}`, models.FileTypeStops},
		{"truncated", `[{"stop_id":"1"},`, models.FileTypeStops},
		{"not json", `stop_id,stop_name`, models.FileTypeStops},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, p.Parse(ctx, strings.NewReader(tt.body), tt.fileType, ParseCallbacks{}))
		})
	}
}

func TestParseStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(logger.Nop()).Parse(ctx, strings.NewReader(`[{"stop_id":"1"}]`), models.FileTypeStops, ParseCallbacks{})
	assert.ErrorIs(t, err, context.Canceled)
}
