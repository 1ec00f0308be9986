// Package maintenance keeps the catalog store tidy: it drops partitions of
// cities that are no longer configured and compacts the tables afterwards.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextstop-data/internal/common/db"
	"github.com/nextstop-data/internal/common/logger"
)

// CatalogTables are the city-partitioned tables.
var CatalogTables = []string{"trips", "stops", "routes", "shapes"}

// CleanupResult reports the rows removed from one table.
type CleanupResult struct {
	Table          string
	RecordsDeleted int64
	Success        bool
	Error          string
}

// PartitionSize is the row count of one city in one table.
type PartitionSize struct {
	CityID string
	Table  string
	Rows   int64
}

type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// PartitionSizes counts rows per city and table.
func (m *Maintenance) PartitionSizes(ctx context.Context) ([]PartitionSize, error) {
	var out []PartitionSize
	for _, table := range CatalogTables {
		rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT city_id, COUNT(*) FROM %s GROUP BY city_id ORDER BY city_id`, table))
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		for rows.Next() {
			p := PartitionSize{Table: table}
			if err := rows.Scan(&p.CityID, &p.Rows); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning %s count: %w", table, err)
			}
			out = append(out, p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterating %s counts: %w", table, err)
		}
	}
	return out, nil
}

// PurgeUnknownCities deletes every partition whose city is not in keep,
// in a single transaction. An empty keep list is refused so a broken seed
// list cannot wipe the store.
func (m *Maintenance) PurgeUnknownCities(ctx context.Context, keep []string) ([]CleanupResult, error) {
	if len(keep) == 0 {
		return nil, fmt.Errorf("refusing to purge with no known cities")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]interface{}, len(keep))
	for i, id := range keep {
		args[i] = id
	}

	results := make([]CleanupResult, 0, len(CatalogTables))
	err := m.db.WithTx(ctx, func(tx *db.Tx) error {
		for _, table := range CatalogTables {
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE city_id NOT IN (%s)`, table, placeholders), args...)
			if err != nil {
				return fmt.Errorf("purging %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			results = append(results, CleanupResult{Table: table, RecordsDeleted: n, Success: true})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var total int64
	for _, r := range results {
		total += r.RecordsDeleted
	}
	m.logger.Info("Purged partitions of unknown cities", "kept_cities", len(keep), "records_deleted", total)
	return results, nil
}

// Vacuum compacts the catalog tables. It must run outside a transaction.
func (m *Maintenance) Vacuum(ctx context.Context) error {
	start := time.Now()

	var stmts []string
	switch m.db.Driver() {
	case db.DriverPostgres:
		for _, table := range CatalogTables {
			stmts = append(stmts, "VACUUM ANALYZE "+table)
		}
	default:
		stmts = []string{"VACUUM", "PRAGMA optimize"}
	}

	failed := 0
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			failed++
			m.logger.Error("Vacuum statement failed", "statement", stmt, "error", err)
		}
	}

	m.logger.Info("Vacuum completed", "statements", len(stmts), "failed", failed, "duration", time.Since(start))
	if failed > 0 {
		return fmt.Errorf("vacuum failed for %d out of %d statements", failed, len(stmts))
	}
	return nil
}

// PerformPostSyncMaintenance purges stale partitions and compacts the store
// after static files were applied.
func (m *Maintenance) PerformPostSyncMaintenance(ctx context.Context, keep []string) error {
	if _, err := m.PurgeUnknownCities(ctx, keep); err != nil {
		return fmt.Errorf("purging unknown cities: %w", err)
	}
	if err := m.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuuming catalog: %w", err)
	}
	return nil
}
