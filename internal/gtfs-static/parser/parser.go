package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Record is one element of a static file: a flat map of GTFS column names
// to values.
type Record map[string]string

type Parser struct {
	logger logger.Logger
}

func New(logger logger.Logger) *Parser {
	return &Parser{logger: logger}
}

type ParseCallbacks struct {
	OnStop         func(stop *models.Stop) error
	OnRoute        func(route *models.Route) error
	OnTrip         func(trip *models.Trip) error
	OnShape        func(shape *models.ShapePoint) error
	OnFileComplete func(fileType string, records int) error
}

// Supports reports whether fileType has a record parser.
func Supports(fileType string) bool {
	switch fileType {
	case models.FileTypeTrips, models.FileTypeStops, models.FileTypeRoutes, models.FileTypeShapes:
		return true
	}
	return false
}

// ParseFile streams the JSON array at path, calling the callback matching
// fileType for each element.
func (p *Parser) ParseFile(ctx context.Context, path, fileType string, callbacks ParseCallbacks) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	p.logger.Debug("Parsing file", "path", path, "type", fileType)
	return p.Parse(ctx, f, fileType, callbacks)
}

// Parse is ParseFile over an arbitrary reader.
func (p *Parser) Parse(ctx context.Context, r io.Reader, fileType string, callbacks ParseCallbacks) error {
	if !Supports(fileType) {
		return fmt.Errorf("unsupported file type %q", fileType)
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading array start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected a JSON array, got %v", tok)
	}

	count := 0
	for dec.More() {
		if count%1000 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("reading record %d: %w", count, err)
		}
		if err := p.dispatch(fileType, flatten(raw), callbacks); err != nil {
			return err
		}

		count++
		if count%10000 == 0 {
			p.logger.Debug("Progress", "type", fileType, "records", count)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading array end: %w", err)
	}

	p.logger.Info("File parsed", "type", fileType, "records", count)

	if callbacks.OnFileComplete != nil {
		if err := callbacks.OnFileComplete(fileType, count); err != nil {
			return fmt.Errorf("file complete callback: %w", err)
		}
	}
	return nil
}

func (p *Parser) dispatch(fileType string, rec Record, callbacks ParseCallbacks) error {
	switch fileType {
	case models.FileTypeStops:
		if callbacks.OnStop != nil {
			return callbacks.OnStop(p.parseStop(rec))
		}
	case models.FileTypeRoutes:
		if callbacks.OnRoute != nil {
			return callbacks.OnRoute(p.parseRoute(rec))
		}
	case models.FileTypeTrips:
		if callbacks.OnTrip != nil {
			return callbacks.OnTrip(p.parseTrip(rec))
		}
	case models.FileTypeShapes:
		if callbacks.OnShape != nil {
			return callbacks.OnShape(p.parseShape(rec))
		}
	}
	return nil
}

// flatten turns scalar JSON values into strings; nested values are dropped.
func flatten(raw map[string]interface{}) Record {
	rec := make(Record, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			rec[k] = val
		case json.Number:
			rec[k] = val.String()
		case bool:
			rec[k] = strconv.FormatBool(val)
		}
	}
	return rec
}

func (p *Parser) getString(rec Record, field string) string {
	return strings.TrimSpace(rec[field])
}

func (p *Parser) getInt(rec Record, field string, defaultVal int) int {
	str := p.getString(rec, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

func (p *Parser) getFloat(rec Record, field string, defaultVal float64) float64 {
	str := p.getString(rec, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func (p *Parser) parseStop(rec Record) *models.Stop {
	return &models.Stop{
		StopID:             p.getString(rec, "stop_id"),
		StopName:           p.getString(rec, "stop_name"),
		StopLat:            p.getFloat(rec, "stop_lat", 0),
		StopLon:            p.getFloat(rec, "stop_lon", 0),
		LocationType:       p.getInt(rec, "location_type", 0),
		ParentStation:      p.getString(rec, "parent_station"),
		WheelchairBoarding: p.getInt(rec, "wheelchair_boarding", 0),
		PlatformCode:       p.getString(rec, "platform_code"),
	}
}

func (p *Parser) parseRoute(rec Record) *models.Route {
	return &models.Route{
		RouteID:        p.getString(rec, "route_id"),
		AgencyID:       p.getString(rec, "agency_id"),
		RouteShortName: p.getString(rec, "route_short_name"),
		RouteLongName:  p.getString(rec, "route_long_name"),
		RouteDesc:      p.getString(rec, "route_desc"),
		RouteType:      p.getInt(rec, "route_type", 0),
		RouteColor:     p.getString(rec, "route_color"),
		RouteTextColor: p.getString(rec, "route_text_color"),
	}
}

func (p *Parser) parseTrip(rec Record) *models.Trip {
	return &models.Trip{
		TripID:               p.getString(rec, "trip_id"),
		RouteID:              p.getString(rec, "route_id"),
		ServiceID:            p.getString(rec, "service_id"),
		ShapeID:              p.getString(rec, "shape_id"),
		TripHeadsign:         p.getString(rec, "trip_headsign"),
		DirectionID:          p.getString(rec, "direction_id"),
		BlockID:              p.getString(rec, "block_id"),
		WheelchairAccessible: p.getInt(rec, "wheelchair_accessible", 0),
		RouteDirection:       p.getString(rec, "route_direction"),
		TripNote:             p.getString(rec, "trip_note"),
	}
}

func (p *Parser) parseShape(rec Record) *models.ShapePoint {
	return &models.ShapePoint{
		ShapeID:           p.getString(rec, "shape_id"),
		ShapePtLat:        p.getFloat(rec, "shape_pt_lat", 0),
		ShapePtLon:        p.getFloat(rec, "shape_pt_lon", 0),
		ShapePtSequence:   p.getInt(rec, "shape_pt_sequence", 0),
		ShapeDistTraveled: p.getFloat(rec, "shape_dist_traveled", 0),
	}
}
