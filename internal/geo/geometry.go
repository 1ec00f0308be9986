package geo

import (
	"math"

	"github.com/nextstop-data/pkg/gtfs-static/models"
)

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b models.Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaPhi := (b.Lat - a.Lat) * math.Pi / 180
	deltaLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// BoxAround builds the visible region of a map centered on center spanning
// latDelta by lonDelta degrees.
func BoxAround(center models.Point, latDelta, lonDelta float64) BoundingBox {
	return BoundingBox{
		MinLat: center.Lat - latDelta/2,
		MaxLat: center.Lat + latDelta/2,
		MinLon: center.Lon - lonDelta/2,
		MaxLon: center.Lon + lonDelta/2,
	}
}

// Contains is inclusive on every edge.
func (b BoundingBox) Contains(p models.Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

func (b BoundingBox) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}
