package models

import "strings"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// City is one supported metropolitan area. Cities are seeded from a bundled
// list and only ever mutated by static sync and active-city selection.
type City struct {
	ID          string            `json:"id" yaml:"id" validate:"required"`
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Country     string            `json:"country" yaml:"country"`
	Centroid    Point             `json:"centroid" yaml:"centroid"`
	Realtime    bool              `json:"realtime" yaml:"realtime"`
	FeedURLs    map[string]string `json:"feedUrls,omitempty" yaml:"feedUrls" validate:"required_if=Realtime true,dive,keys,required,endkeys,url"`
	APIKey      string            `json:"-" yaml:"apiKey"`
	ScheduleAPI string            `json:"scheduleApi,omitempty" yaml:"scheduleApi" validate:"omitempty,url"`
	Timezone    string            `json:"timezone,omitempty" yaml:"timezone"`

	LastSyncDate   *FileDate `json:"gtfsDownloadDate,omitempty" yaml:"-"`
	LastSyncedFile *string   `json:"gtfsFileName,omitempty" yaml:"-"`
}

// StoragePrefix is the object-store folder and file-name prefix for the city.
func (c City) StoragePrefix() string {
	return strings.ToLower(c.Name)
}

// Trip is a static trip record. DirectionID is "0" or "1" when known.
type Trip struct {
	TripID               string `json:"tripId"`
	RouteID              string `json:"routeId"`
	ServiceID            string `json:"serviceId,omitempty"`
	ShapeID              string `json:"shapeId,omitempty"`
	TripHeadsign         string `json:"headsign"`
	DirectionID          string `json:"directionId,omitempty"`
	BlockID              string `json:"blockId,omitempty"`
	WheelchairAccessible int    `json:"wheelchairAccessible"`
	RouteDirection       string `json:"routeDirection,omitempty"`
	TripNote             string `json:"tripNote,omitempty"`
}

type Stop struct {
	StopID             string  `json:"stopId"`
	StopName           string  `json:"name"`
	StopLat            float64 `json:"lat"`
	StopLon            float64 `json:"lon"`
	LocationType       int     `json:"locationType"`
	ParentStation      string  `json:"parentStation,omitempty"`
	WheelchairBoarding int     `json:"wheelchairBoarding"`
	PlatformCode       string  `json:"platformCode,omitempty"`
}

// Point returns the stop coordinate.
func (s Stop) Point() Point {
	return Point{Lat: s.StopLat, Lon: s.StopLon}
}

type Route struct {
	RouteID        string `json:"routeId"`
	AgencyID       string `json:"agencyId,omitempty"`
	RouteShortName string `json:"shortName"`
	RouteLongName  string `json:"longName,omitempty"`
	RouteDesc      string `json:"description,omitempty"`
	RouteType      int    `json:"type"`
	RouteColor     string `json:"color,omitempty"`
	RouteTextColor string `json:"textColor,omitempty"`
}

type ShapePoint struct {
	ShapeID           string  `json:"shapeId"`
	ShapePtLat        float64 `json:"lat"`
	ShapePtLon        float64 `json:"lon"`
	ShapePtSequence   int     `json:"sequence"`
	ShapeDistTraveled float64 `json:"distTraveled,omitempty"`
}
