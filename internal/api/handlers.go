package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/departures"
	"github.com/nextstop-data/internal/geo"
	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type HealthResponse struct {
	Status     string           `json:"status"`
	ActiveCity string           `json:"activeCity,omitempty"`
	Trips      int              `json:"trips"`
	Stops      int              `json:"stops"`
	Routes     int              `json:"routes"`
	FeedAges   map[string]int64 `json:"feedAgeSeconds,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type DeparturesResponse struct {
	StopID string             `json:"stopId"`
	Source string             `json:"source"`
	Events []departures.Event `json:"events"`
	Count  int                `json:"count"`
	AsOf   time.Time          `json:"asOf"`
}

type NearbyResponse struct {
	Stops  []geo.NearbyStop         `json:"stops"`
	Routes []*departures.RouteGroup `json:"routes"`
	Count  int                      `json:"count"`
	AsOf   time.Time                `json:"asOf"`
}

type TripResponse struct {
	TripID      string                       `json:"tripId"`
	Events      []departures.Event           `json:"events"`
	Coordinates []models.Point               `json:"coordinates"`
	Vehicles    []departures.VehiclePosition `json:"vehicles"`
	Shape       []models.ShapePoint          `json:"shape,omitempty"`
}

const (
	sourceRealtime = "realtime"
	sourceSchedule = "schedule"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = map[string]interface{}{"cause": err.Error()}
	}
	writeJSON(w, status, resp)
}

func writeLoading(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "loading"})
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Trips:     s.Catalog.CountTrips(),
		Stops:     s.Catalog.CountStops(),
		Routes:    s.Catalog.CountRoutes(),
		Timestamp: s.Now().UTC(),
	}

	city, ok := s.Cities.Active()
	if !ok {
		resp.Status = "no active city"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.ActiveCity = city.ID

	for _, feed := range []string{rtmodels.FeedTripUpdates, rtmodels.FeedVehiclePositions} {
		if snap, ok := s.Snapshots.Latest(feed); ok {
			if resp.FeedAges == nil {
				resp.FeedAges = map[string]int64{}
			}
			resp.FeedAges[feed] = int64(s.Now().Sub(snap.FetchedAt).Seconds())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCities handles GET /api/cities
func (s *Server) ListCities(w http.ResponseWriter, r *http.Request) {
	active, _ := s.Cities.Active()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cities": s.Cities.Cities(),
		"active": active.ID,
	})
}

// SetActiveCity handles PUT /api/cities/active with {"id": "..."}
func (s *Server) SetActiveCity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "Body must be {\"id\": \"<city id>\"}", err)
		return
	}

	if err := s.Cities.SetActive(body.ID); err != nil {
		if errors.Is(err, errs.ErrUnknownCity) {
			writeError(w, http.StatusNotFound, "Unknown city", err)
			return
		}
		s.Logger.Error("Failed to activate city", "city_id", body.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to activate city", err)
		return
	}

	city, _ := s.Cities.Active()
	writeJSON(w, http.StatusOK, city)
}

// TriggerSync handles POST /api/sync
func (s *Server) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.Cities.Active(); !ok {
		writeError(w, http.StatusConflict, "No active city", nil)
		return
	}
	s.Sync.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// StopsInBox handles GET /api/stops. The box is given either as
// minLat/minLon/maxLat/maxLon or as a lat/lon center with latDelta/lonDelta.
func (s *Server) StopsInBox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var box geo.BoundingBox
	var err error
	if q.Has("minLat") {
		box.MinLat, err = floatParam(r, "minLat")
		if err == nil {
			box.MinLon, err = floatParam(r, "minLon")
		}
		if err == nil {
			box.MaxLat, err = floatParam(r, "maxLat")
		}
		if err == nil {
			box.MaxLon, err = floatParam(r, "maxLon")
		}
	} else {
		var center models.Point
		var latDelta, lonDelta float64
		center, err = pointParams(r)
		if err == nil {
			latDelta, err = floatParam(r, "latDelta")
		}
		if err == nil {
			lonDelta, err = floatParam(r, "lonDelta")
		}
		box = geo.BoxAround(center, latDelta, lonDelta)
	}
	if err != nil || !box.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid bounding box", err)
		return
	}

	stops := s.Stops.StopsInBoundingBox(box)
	if stops == nil {
		stops = []models.Stop{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stops": stops, "count": len(stops)})
}

// NearbyStops handles GET /api/stops/nearby?lat&lon&radius
func (s *Server) NearbyStops(w http.ResponseWriter, r *http.Request) {
	p, err := pointParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid coordinates", err)
		return
	}
	stops := s.Stops.ClosestStops(p, radiusParam(r))
	if stops == nil {
		stops = []geo.NearbyStop{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stops": stops, "count": len(stops)})
}

// StopDepartures handles GET /api/stops/{stopId}/departures
func (s *Server) StopDepartures(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	stopID := chi.URLParam(r, "stopId")

	city, ok := s.Cities.Active()
	if !ok {
		writeError(w, http.StatusConflict, "No active city", nil)
		return
	}
	stop, ok := s.Catalog.Stop(stopID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown stop", nil)
		return
	}

	now := s.Now()
	resp := DeparturesResponse{StopID: stopID, AsOf: now.UTC()}

	if !city.Realtime {
		events, err := s.Schedule.Departures(r.Context(), city, stop)
		if err != nil {
			s.scheduleError(w, city, err)
			return
		}
		resp.Source, resp.Events = sourceSchedule, events
	} else {
		dc := s.derivation(now, nil)
		events, err := dc.DeriveForStop(stop)
		if err != nil {
			s.deriveError(w, err)
			return
		}
		resp.Source, resp.Events = sourceRealtime, events
	}

	resp.Count = len(resp.Events)
	s.Metrics.ObserveDerive("stop", started)
	writeJSON(w, http.StatusOK, resp)
}

// NearbyDepartures handles GET /api/nearby?lat&lon&radius and returns the
// grouped departures of every stop around the rider.
func (s *Server) NearbyDepartures(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rider, err := pointParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid coordinates", err)
		return
	}
	city, ok := s.Cities.Active()
	if !ok {
		writeError(w, http.StatusConflict, "No active city", nil)
		return
	}

	nearby := s.Stops.ClosestStops(rider, radiusParam(r))
	stops := make([]models.Stop, 0, len(nearby))
	for _, n := range nearby {
		stops = append(stops, n.Stop)
	}

	now := s.Now()
	var tree *departures.Tree
	if !city.Realtime {
		tree = departures.NewTree()
		var configErr error
		configFailures := 0
		for _, n := range nearby {
			events, err := s.Schedule.Departures(r.Context(), city, n.Stop)
			if err != nil {
				if errs.IsConfiguration(err) {
					configErr = err
					configFailures++
				}
				s.Logger.Warn("Skipping stop in nearby view", "city", city.ID, "stop", n.Stop.StopID, "error", err)
				s.Metrics.ScheduleAPICall("skipped")
				continue
			}
			d := n.DistanceMeters
			for _, e := range events {
				e.DistanceMeters = &d
				e.DistanceText = departures.FormatDistance(d)
				tree.Insert(e)
			}
		}
		// A missing key or endpoint fails every stop alike.
		if len(nearby) > 0 && configFailures == len(nearby) {
			s.scheduleError(w, city, configErr)
			return
		}
		tree.Sort()
	} else {
		tree, err = s.derivation(now, &rider).DeriveForStops(stops)
		if err != nil {
			s.deriveError(w, err)
			return
		}
	}

	if nearby == nil {
		nearby = []geo.NearbyStop{}
	}
	routes := tree.Routes
	if routes == nil {
		routes = []*departures.RouteGroup{}
	}

	s.Metrics.ObserveDerive("nearby", started)
	writeJSON(w, http.StatusOK, NearbyResponse{Stops: nearby, Routes: routes, Count: tree.Len(), AsOf: now.UTC()})
}

// TripDetails handles GET /api/trips/{tripId}
func (s *Server) TripDetails(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	tripID := chi.URLParam(r, "tripId")

	dc := s.derivation(s.Now(), nil)
	events, err := dc.DeriveForTrip(tripID)
	if err != nil {
		s.deriveError(w, err)
		return
	}

	resp := TripResponse{
		TripID:      tripID,
		Events:      events,
		Coordinates: departures.TripCoordinates(events),
		Vehicles:    []departures.VehiclePosition{},
	}

	if vehicles, err := dc.MatchVehicles(events); err == nil && vehicles != nil {
		resp.Vehicles = vehicles
	}
	if trip, ok := s.Catalog.TripByDerivedID(tripID); ok && trip.ShapeID != "" {
		resp.Shape = s.Catalog.Shape(trip.ShapeID)
	}

	s.Metrics.ObserveDerive("trip", started)
	writeJSON(w, http.StatusOK, resp)
}

// derivation captures the current snapshots once for the whole request.
func (s *Server) derivation(now time.Time, rider *models.Point) *departures.Context {
	tu, _ := s.Snapshots.Latest(rtmodels.FeedTripUpdates)
	vp, _ := s.Snapshots.Latest(rtmodels.FeedVehiclePositions)
	return &departures.Context{
		Catalog:     s.Catalog,
		TripUpdates: tu,
		Vehicles:    vp,
		Now:         now,
		Rider:       rider,
	}
}

// deriveError answers 202 until the first trip-update snapshot arrives.
func (s *Server) deriveError(w http.ResponseWriter, err error) {
	if errors.Is(err, errs.ErrNoData) {
		writeLoading(w)
		return
	}
	s.Logger.Error("Derivation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Failed to derive departures", err)
}

func (s *Server) scheduleError(w http.ResponseWriter, city models.City, err error) {
	if errs.IsConfiguration(err) {
		s.Logger.Error("Schedule api misconfigured", "city", city.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Schedule api unavailable for this city", err)
		return
	}
	s.Logger.Warn("Schedule api request failed", "city", city.ID, "error", err)
	writeError(w, http.StatusBadGateway, "Schedule api request failed", err)
}

func floatParam(r *http.Request, name string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(name), 64)
}

func pointParams(r *http.Request) (models.Point, error) {
	lat, err := floatParam(r, "lat")
	if err != nil {
		return models.Point{}, err
	}
	lon, err := floatParam(r, "lon")
	if err != nil {
		return models.Point{}, err
	}
	return models.Point{Lat: lat, Lon: lon}, nil
}

// radiusParam returns the radius query value, or 0 for the index default.
func radiusParam(r *http.Request) float64 {
	v, err := floatParam(r, "radius")
	if err != nil {
		return 0
	}
	return v
}
