// Package api exposes the departure engine over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/departures"
	"github.com/nextstop-data/internal/geo"
	"github.com/nextstop-data/internal/metrics"
	rtmodels "github.com/nextstop-data/pkg/gtfs-realtime/models"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

type CityRegistry interface {
	Cities() []models.City
	Active() (models.City, bool)
	SetActive(id string) error
}

type Catalog interface {
	departures.Catalog
	ActiveCity() string
	Shape(shapeID string) []models.ShapePoint
	CountTrips() int
	CountStops() int
	CountRoutes() int
}

type Snapshots interface {
	Latest(feed string) (*rtmodels.Snapshot, bool)
}

type StopFinder interface {
	StopsInBoundingBox(box geo.BoundingBox) []models.Stop
	ClosestStops(p models.Point, radiusMeters float64) []geo.NearbyStop
}

// ScheduleSource serves cities that have no realtime feed.
type ScheduleSource interface {
	Departures(ctx context.Context, city models.City, stop models.Stop) ([]departures.Event, error)
}

type SyncTrigger interface {
	Trigger()
}

type Deps struct {
	Cities    CityRegistry
	Catalog   Catalog
	Snapshots Snapshots
	Stops     StopFinder
	Schedule  ScheduleSource
	Sync      SyncTrigger
	Metrics   *metrics.Collector
	Logger    logger.Logger

	AllowedOrigins string
	Now            func() time.Time
}

type Server struct {
	Deps
}

func NewRouter(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	s := &Server{Deps: deps}

	origins := []string{"*"}
	if deps.AllowedOrigins != "" {
		origins = strings.Split(deps.AllowedOrigins, ",")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.Health)
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/cities", s.ListCities)
		r.Put("/cities/active", s.SetActiveCity)
		r.Post("/sync", s.TriggerSync)

		r.Get("/stops", s.StopsInBox)
		r.Get("/stops/nearby", s.NearbyStops)
		r.Get("/stops/{stopId}/departures", s.StopDepartures)
		r.Get("/nearby", s.NearbyDepartures)
		r.Get("/trips/{tripId}", s.TripDetails)
	})

	return r
}
