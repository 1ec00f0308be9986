package departures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

func ev(route, dir, stop, headsign string, dist float64, arrival time.Duration) Event {
	d := dist
	return Event{
		RouteID:        route,
		DirectionID:    dir,
		StopID:         stop,
		Headsign:       headsign,
		DistanceMeters: &d,
		ArrivalAt:      now.Add(arrival),
	}
}

func TestTreeDistinctHeadsignsAreDistinctLeaves(t *testing.T) {
	tree := NewTree()
	tree.Insert(ev("r1", "0", "s1", "Maroubra", 10, time.Minute))
	tree.Insert(ev("r1", "0", "s1", "Maroubra Junction", 10, 2*time.Minute))
	tree.Insert(ev("r1", "0", "s1", "Maroubra", 10, 3*time.Minute))

	require.Len(t, tree.Routes, 1)
	leaves := tree.Routes[0].Directions[0].Stops[0].Headsigns
	require.Len(t, leaves, 2)
	assert.Equal(t, "Maroubra", leaves[0].Headsign)
	assert.Len(t, leaves[0].Events, 2)
	assert.Equal(t, "Maroubra Junction", leaves[1].Headsign)
	assert.Equal(t, 3, tree.Len())
}

func TestTreeSortOrdersDirectionsAndRoutes(t *testing.T) {
	tree := NewTree()
	// Route r1: direction 1 is seen first but is farther.
	tree.Insert(ev("r1", "1", "far", "A", 300, time.Minute))
	tree.Insert(ev("r1", "0", "near", "B", 50, 5*time.Minute))
	tree.Insert(ev("r1", "2", "far", "C", 300, 2*time.Minute))
	// Route r2 ties r3 on distance but arrives later.
	tree.Insert(ev("r2", "0", "s", "D", 20, 9*time.Minute))
	tree.Insert(ev("r3", "0", "s", "E", 20, 4*time.Minute))
	tree.Sort()

	routes := make([]string, 0, len(tree.Routes))
	for _, rg := range tree.Routes {
		routes = append(routes, rg.RouteID)
	}
	assert.Equal(t, []string{"r3", "r2", "r1"}, routes)

	dirs := make([]string, 0, 3)
	for _, dg := range tree.Routes[2].Directions {
		dirs = append(dirs, dg.DirectionID)
	}
	assert.Equal(t, []string{"0", "1", "2"}, dirs, "closest first, ties keep insertion order")
}

func TestTreeMissingDistanceSortsAsZero(t *testing.T) {
	tree := NewTree()
	tree.Insert(ev("r1", "0", "s", "A", 10, time.Minute))
	tree.Insert(Event{RouteID: "r2", DirectionID: "0", StopID: "s", Headsign: "B", ArrivalAt: now.Add(time.Minute)})
	tree.Sort()

	assert.Equal(t, "r2", tree.Routes[0].RouteID)
}

func TestFlattenMirrorsTree(t *testing.T) {
	tree := NewTree()
	tree.Insert(ev("r1", "0", "s1", "A", 10, time.Minute))
	tree.Insert(ev("r1", "1", "s2", "B", 20, time.Minute))

	flat := tree.Flatten()
	require.Len(t, flat, 1)
	require.Len(t, flat[0], 2)
	assert.Equal(t, "B", flat[0][1][0][0][0].Headsign)
}

func TestDeriveForStopsBuildsSortedTree(t *testing.T) {
	rider := models.Point{Lat: anzac.StopLat, Lon: anzac.StopLon}
	central := models.Stop{StopID: "2", StopName: "Central", StopLat: -33.88, StopLon: 151.2}

	c := &Context{
		Catalog: sydneyCatalog(),
		TripUpdates: snapshot(
			tripUpdate("124", "2441_M10", stu("2", 2*time.Minute, rtmodels.Scheduled)),
			tripUpdate("123", "2441_M10", stu("1122233", 6*time.Minute, rtmodels.Scheduled)),
			tripUpdate("125", "2441_M10", stu("1122233", 4*time.Minute, rtmodels.Scheduled)),
		),
		Now:   now,
		Rider: &rider,
	}

	// Central is processed first, so direction 1 is seen first.
	tree, err := c.DeriveForStops([]models.Stop{central, anzac})
	require.NoError(t, err)
	require.Len(t, tree.Routes, 1)

	rg := tree.Routes[0]
	assert.Equal(t, "M10", rg.BusNumber)
	require.Len(t, rg.Directions, 2)
	assert.Equal(t, "0", rg.Directions[0].DirectionID, "the rider is at Anzac Pde so direction 0 is closest")

	stop := rg.Directions[0].Stops[0]
	require.NotNil(t, stop.DistanceMeters)
	assert.InDelta(t, 0, *stop.DistanceMeters, 1e-6)
	require.Len(t, stop.Headsigns, 2)
	assert.Equal(t, "Maroubra Junction", stop.Headsigns[0].Headsign, "earlier arrival seen first")
	assert.Equal(t, "0 m", stop.Headsigns[0].Events[0].DistanceText)

	far := rg.Directions[1].Stops[0].Headsigns[0].Events[0]
	require.NotNil(t, far.DistanceMeters)
	assert.Greater(t, *far.DistanceMeters, 1000.0)
}

func TestDeriveForStopsWithoutRiderHasNoDistance(t *testing.T) {
	c := &Context{
		Catalog:     sydneyCatalog(),
		TripUpdates: snapshot(tripUpdate("123", "2441_M10", stu("1122233", time.Minute, rtmodels.Scheduled))),
		Now:         now,
	}
	tree, err := c.DeriveForStops([]models.Stop{anzac})
	require.NoError(t, err)
	e := tree.Flatten()[0][0][0][0][0]
	assert.Nil(t, e.DistanceMeters)
	assert.Empty(t, e.DistanceText)
}
