package catalog

import (
	"context"
	"fmt"

	"github.com/nextstop-data/internal/common/db"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Store persists city partitions in the relational catalog.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Partition is everything stored for one city.
type Partition struct {
	Trips  []models.Trip
	Stops  []models.Stop
	Routes []models.Route
	Shapes []models.ShapePoint
}

func (s *Store) Load(ctx context.Context, cityID string) (*Partition, error) {
	p := &Partition{}
	var err error
	if p.Trips, err = s.loadTrips(ctx, cityID); err != nil {
		return nil, err
	}
	if p.Stops, err = s.loadStops(ctx, cityID); err != nil {
		return nil, err
	}
	if p.Routes, err = s.loadRoutes(ctx, cityID); err != nil {
		return nil, err
	}
	if p.Shapes, err = s.loadShapes(ctx, cityID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) loadTrips(ctx context.Context, cityID string) ([]models.Trip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, route_id, service_id, shape_id, trip_headsign, direction_id,
		       block_id, wheelchair_accessible, route_direction, trip_note
		FROM trips WHERE city_id = ? ORDER BY trip_id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	var out []models.Trip
	for rows.Next() {
		var t models.Trip
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ServiceID, &t.ShapeID, &t.TripHeadsign,
			&t.DirectionID, &t.BlockID, &t.WheelchairAccessible, &t.RouteDirection, &t.TripNote); err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) loadStops(ctx context.Context, cityID string) ([]models.Stop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station,
		       wheelchair_boarding, platform_code
		FROM stops WHERE city_id = ? ORDER BY stop_id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	var out []models.Stop
	for rows.Next() {
		var st models.Stop
		if err := rows.Scan(&st.StopID, &st.StopName, &st.StopLat, &st.StopLon, &st.LocationType,
			&st.ParentStation, &st.WheelchairBoarding, &st.PlatformCode); err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) loadRoutes(ctx context.Context, cityID string) ([]models.Route, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, agency_id, route_short_name, route_long_name, route_desc,
		       route_type, route_color, route_text_color
		FROM routes WHERE city_id = ? ORDER BY route_id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	var out []models.Route
	for rows.Next() {
		var r models.Route
		if err := rows.Scan(&r.RouteID, &r.AgencyID, &r.RouteShortName, &r.RouteLongName, &r.RouteDesc,
			&r.RouteType, &r.RouteColor, &r.RouteTextColor); err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadShapes(ctx context.Context, cityID string) ([]models.ShapePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence, shape_dist_traveled
		FROM shapes WHERE city_id = ? ORDER BY shape_id, shape_pt_sequence`, cityID)
	if err != nil {
		return nil, fmt.Errorf("querying shapes: %w", err)
	}
	defer rows.Close()

	var out []models.ShapePoint
	for rows.Next() {
		var p models.ShapePoint
		if err := rows.Scan(&p.ShapeID, &p.ShapePtLat, &p.ShapePtLon, &p.ShapePtSequence, &p.ShapeDistTraveled); err != nil {
			return nil, fmt.Errorf("scanning shape point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// replace deletes the city's rows from table and inserts n new rows, all in
// one transaction. args(i) returns the column values after city_id.
func (s *Store) replace(ctx context.Context, table, insert string, cityID string, n int, args func(i int) []interface{}) error {
	return s.db.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE city_id = ?", cityID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("preparing %s insert: %w", table, err)
		}
		defer stmt.Close()

		for i := 0; i < n; i++ {
			values := append([]interface{}{cityID}, args(i)...)
			if _, err := stmt.ExecContext(ctx, values...); err != nil {
				return fmt.Errorf("inserting into %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Store) ReplaceTrips(ctx context.Context, cityID string, trips []models.Trip) error {
	return s.replace(ctx, "trips", `
		INSERT INTO trips (city_id, trip_id, route_id, service_id, shape_id, trip_headsign,
		                   direction_id, block_id, wheelchair_accessible, route_direction, trip_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cityID, len(trips), func(i int) []interface{} {
			t := trips[i]
			return []interface{}{t.TripID, t.RouteID, t.ServiceID, t.ShapeID, t.TripHeadsign,
				t.DirectionID, t.BlockID, t.WheelchairAccessible, t.RouteDirection, t.TripNote}
		})
}

func (s *Store) ReplaceStops(ctx context.Context, cityID string, stops []models.Stop) error {
	return s.replace(ctx, "stops", `
		INSERT INTO stops (city_id, stop_id, stop_name, stop_lat, stop_lon, location_type,
		                   parent_station, wheelchair_boarding, platform_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cityID, len(stops), func(i int) []interface{} {
			st := stops[i]
			return []interface{}{st.StopID, st.StopName, st.StopLat, st.StopLon, st.LocationType,
				st.ParentStation, st.WheelchairBoarding, st.PlatformCode}
		})
}

func (s *Store) ReplaceRoutes(ctx context.Context, cityID string, routes []models.Route) error {
	return s.replace(ctx, "routes", `
		INSERT INTO routes (city_id, route_id, agency_id, route_short_name, route_long_name,
		                    route_desc, route_type, route_color, route_text_color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cityID, len(routes), func(i int) []interface{} {
			r := routes[i]
			return []interface{}{r.RouteID, r.AgencyID, r.RouteShortName, r.RouteLongName,
				r.RouteDesc, r.RouteType, r.RouteColor, r.RouteTextColor}
		})
}

func (s *Store) ReplaceShapes(ctx context.Context, cityID string, points []models.ShapePoint) error {
	return s.replace(ctx, "shapes", `
		INSERT INTO shapes (city_id, shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence, shape_dist_traveled)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cityID, len(points), func(i int) []interface{} {
			p := points[i]
			return []interface{}{p.ShapeID, p.ShapePtLat, p.ShapePtLon, p.ShapePtSequence, p.ShapeDistTraveled}
		})
}
