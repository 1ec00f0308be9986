package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop-data/pkg/gtfs-static/models"
)

type staticStops struct {
	city  string
	stops []models.Stop
}

func (s staticStops) ActiveCity() string   { return s.city }
func (s staticStops) Stops() []models.Stop { return s.stops }

var capitole = models.Point{Lat: 43.6045, Lon: 1.4440}

func TestHaversine(t *testing.T) {
	assert.Zero(t, Haversine(capitole, capitole))

	// One thousandth of a degree of latitude is ~111 m.
	d := Haversine(capitole, models.Point{Lat: capitole.Lat + 0.001, Lon: capitole.Lon})
	assert.InDelta(t, 111.2, d, 0.5)
}

func TestBoxAround(t *testing.T) {
	box := BoxAround(capitole, 0.02, 0.04)
	assert.InDelta(t, 43.5945, box.MinLat, 1e-9)
	assert.InDelta(t, 1.4640, box.MaxLon, 1e-9)
	assert.True(t, box.Contains(capitole))
	assert.True(t, box.Valid())
}

func TestClosestStopsAppliesRadiusOrderAndRules(t *testing.T) {
	src := staticStops{city: "toulouse", stops: []models.Stop{
		{StopID: "far", StopName: "Far", StopLat: capitole.Lat + 0.01, StopLon: capitole.Lon},
		{StopID: "mid", StopName: "Mid", StopLat: capitole.Lat + 0.001, StopLon: capitole.Lon},
		{StopID: "near", StopName: "Near", StopLat: capitole.Lat + 0.0002, StopLon: capitole.Lon},
		{StopID: "hidden", StopName: "SA_Capitole", StopLat: capitole.Lat, StopLon: capitole.Lon},
	}}
	ix := NewIndex(src, DefaultRules())

	got := ix.ClosestStops(capitole, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].StopID)
	assert.Equal(t, "mid", got[1].StopID)
	assert.Less(t, got[0].DistanceMeters, got[1].DistanceMeters)
}

func TestRulesAreScopedToCity(t *testing.T) {
	stops := []models.Stop{{StopID: "1", StopName: "SA_Gare", StopLat: capitole.Lat, StopLon: capitole.Lon}}

	toulouse := NewIndex(staticStops{city: "toulouse", stops: stops}, DefaultRules())
	assert.Empty(t, toulouse.StopsInBoundingBox(BoxAround(capitole, 0.01, 0.01)))

	sydney := NewIndex(staticStops{city: "sydney", stops: stops}, DefaultRules())
	assert.Len(t, sydney.StopsInBoundingBox(BoxAround(capitole, 0.01, 0.01)), 1)
}

func TestStopsInBoundingBoxExcludesOutside(t *testing.T) {
	src := staticStops{city: "sydney", stops: []models.Stop{
		{StopID: "in", StopLat: 1, StopLon: 1},
		{StopID: "out", StopLat: 3, StopLon: 1},
	}}
	got := NewIndex(src, nil).StopsInBoundingBox(BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 2, MaxLon: 2})
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].StopID)
}
