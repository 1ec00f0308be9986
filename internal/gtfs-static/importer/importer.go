package importer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/gtfs-static/parser"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// CatalogWriter is the part of the catalog an import replaces.
type CatalogWriter interface {
	ReplaceTrips(ctx context.Context, cityID string, trips []models.Trip) error
	ReplaceStops(ctx context.Context, cityID string, stops []models.Stop) error
	ReplaceRoutes(ctx context.Context, cityID string, routes []models.Route) error
	ReplaceShapes(ctx context.Context, cityID string, points []models.ShapePoint) error
}

// Result summarises one imported file.
type Result struct {
	FileType  string
	Records   int
	Imported  int
	Skipped   int
	Unhandled bool
}

type Importer struct {
	catalog CatalogWriter
	parser  *parser.Parser
	logger  logger.Logger
}

func NewImporter(catalog CatalogWriter, log logger.Logger) *Importer {
	return &Importer{
		catalog: catalog,
		parser:  parser.New(log),
		logger:  log,
	}
}

// Import parses the file at path and replaces the city's partition for its
// file type. Records without an id and repeated keys are skipped. An
// unknown file type is not an error: the result is marked Unhandled.
func (i *Importer) Import(ctx context.Context, cityID string, file models.RemoteFile, path string) (Result, error) {
	res := Result{FileType: file.FileType}
	if !parser.Supports(file.FileType) {
		i.logger.Warn("Skipping static file of unknown type", "city", cityID, "file", file.Name, "type", file.FileType)
		res.Unhandled = true
		return res, nil
	}

	var (
		trips  []models.Trip
		stops  []models.Stop
		routes []models.Route
		shapes []models.ShapePoint
		seen   = map[string]bool{}
	)

	keep := func(key string) bool {
		res.Records++
		if key == "" || seen[key] {
			res.Skipped++
			return false
		}
		seen[key] = true
		return true
	}

	callbacks := parser.ParseCallbacks{
		OnTrip: func(t *models.Trip) error {
			if keep(t.TripID) {
				trips = append(trips, *t)
			}
			return nil
		},
		OnStop: func(s *models.Stop) error {
			if keep(s.StopID) {
				stops = append(stops, *s)
			}
			return nil
		},
		OnRoute: func(r *models.Route) error {
			if keep(r.RouteID) {
				routes = append(routes, *r)
			}
			return nil
		},
		OnShape: func(p *models.ShapePoint) error {
			key := ""
			if p.ShapeID != "" {
				key = p.ShapeID + "\x00" + strconv.Itoa(p.ShapePtSequence)
			}
			if keep(key) {
				shapes = append(shapes, *p)
			}
			return nil
		},
	}

	if err := i.parser.ParseFile(ctx, path, file.FileType, callbacks); err != nil {
		return res, fmt.Errorf("parsing %s: %w", file.Name, err)
	}

	var err error
	switch file.FileType {
	case models.FileTypeTrips:
		res.Imported = len(trips)
		err = i.catalog.ReplaceTrips(ctx, cityID, trips)
	case models.FileTypeStops:
		res.Imported = len(stops)
		err = i.catalog.ReplaceStops(ctx, cityID, stops)
	case models.FileTypeRoutes:
		res.Imported = len(routes)
		err = i.catalog.ReplaceRoutes(ctx, cityID, routes)
	case models.FileTypeShapes:
		res.Imported = len(shapes)
		err = i.catalog.ReplaceShapes(ctx, cityID, shapes)
	}
	if err != nil {
		return res, fmt.Errorf("applying %s: %w", file.Name, err)
	}

	if res.Skipped > 0 {
		i.logger.Warn("Skipped static records", "city", cityID, "file", file.Name, "skipped", res.Skipped)
	}
	i.logger.Info("Static file imported", "city", cityID, "file", file.Name, "records", res.Imported)
	return res, nil
}
