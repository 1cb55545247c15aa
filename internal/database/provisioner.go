// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

/*
provisioner.go - Lazy Table Provisioning

One table exists per (period, breakdown-combination) pair, named
"insights_<period>_<breakdown>_<breakdown>...". Tables are created lazily
on first write and their resolved existence is cached process-wide: the
number of period x breakdown combinations is small and fixed, so the cache
never evicts and is invalidated only by restart.

Schema evolution is additive only. EnsureTable adds columns the table does
not have yet and never drops or retypes existing ones; added columns are
nullable since historical rows cannot be backfilled. Inserts append; there
is no dedup or upsert at this layer, idempotency comes from each record's
fresh insight id.
*/
package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/metrics"
	"github.com/tomtom215/adscope/internal/schema"
)

// Provisioner creates and evolves insight tables on demand.
type Provisioner struct {
	db *DB

	mu     sync.RWMutex
	tables map[string]struct{}
}

// NewProvisioner creates a provisioner over an open store.
func NewProvisioner(db *DB) *Provisioner {
	return &Provisioner{
		db:     db,
		tables: make(map[string]struct{}),
	}
}

// TableNameFor derives the table name for a period and breakdown combination.
func TableNameFor(period string, breakdowns []string) string {
	parts := append([]string{"insights", period}, breakdowns...)
	return strings.Join(parts, "_")
}

// EnsureTable creates the table if absent and adds any missing columns,
// then caches the result so later writes skip the catalog round-trip.
func (p *Provisioner) EnsureTable(ctx context.Context, name string, columns []schema.Column) error {
	p.mu.RLock()
	_, ok := p.tables[name]
	p.mu.RUnlock()
	if ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tables[name]; ok {
		return nil
	}

	if err := p.createOrEvolve(ctx, name, columns); err != nil {
		metrics.TableProvisions.WithLabelValues("error").Inc()
		return err
	}
	p.tables[name] = struct{}{}
	metrics.TableProvisions.WithLabelValues("ok").Inc()
	return nil
}

func (p *Provisioner) createOrEvolve(ctx context.Context, name string, columns []schema.Column) error {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		def, err := columnDef(col, true)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := p.db.conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	// Additive evolution for tables that predate newly declared columns.
	// Added columns are always nullable; prior rows have no value for them.
	for _, col := range columns {
		def, err := columnDef(col, false)
		if err != nil {
			return err
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", quoteIdent(name), def)
		if _, err := p.db.conn.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %s to %s: %w", col.Name, name, err)
		}
	}

	logging.Debug().Str("table", name).Int("columns", len(columns)).Msg("Table provisioned")
	return nil
}

// Insert appends one record. Values for repeated, record, and JSON columns
// are serialized before binding.
func (p *Provisioner) Insert(ctx context.Context, name string, record map[string]interface{}) error {
	if len(record) == 0 {
		return fmt.Errorf("insert into %s: empty record", name)
	}

	cols := make([]string, 0, len(record))
	for col := range record {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		placeholders[i] = "?"
		arg, err := bindValue(record[col])
		if err != nil {
			return fmt.Errorf("insert into %s: column %s: %w", name, col, err)
		}
		args[i] = arg
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if _, err := p.db.conn.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", name, err)
	}

	metrics.RowInserts.WithLabelValues(name).Inc()
	return nil
}

// CachedTables returns the names resolved so far, for diagnostics.
func (p *Provisioner) CachedTables() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// columnDef renders one column definition. NOT NULL applies only at table
// creation; columns added later must admit NULL for pre-existing rows.
func columnDef(col schema.Column, allowNotNull bool) (string, error) {
	sqlType, err := columnType(col)
	if err != nil {
		return "", err
	}
	def := quoteIdent(col.Name) + " " + sqlType
	if allowNotNull && col.Mode == schema.ModeRequired {
		def += " NOT NULL"
	}
	return def, nil
}

// columnType maps a column descriptor onto a DuckDB type. Repeated and
// nested values land in JSON columns: they arrive from the platform as
// arbitrary JSON fragments and are queried with DuckDB's JSON functions.
func columnType(col schema.Column) (string, error) {
	if col.Mode == schema.ModeRepeated || col.Kind == schema.KindRecord || col.Kind == schema.KindJSON {
		return "JSON", nil
	}
	switch col.Kind {
	case schema.KindBool:
		return "BOOLEAN", nil
	case schema.KindInteger:
		return "BIGINT", nil
	case schema.KindFloat:
		return "DOUBLE", nil
	case schema.KindString:
		return "VARCHAR", nil
	case schema.KindTimestamp:
		return "TIMESTAMP", nil
	case schema.KindDate:
		return "DATE", nil
	case schema.KindTime:
		return "TIME", nil
	default:
		return "", &schema.ConfigurationError{Field: col.Name, Reason: fmt.Sprintf("no column type for kind %s", col.Kind)}
	}
}

// bindValue prepares one value for parameter binding. Composite values are
// serialized so they bind cleanly into JSON columns.
func bindValue(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, bool, int, int32, int64, float32, float64, string, []byte, time.Time:
		return v, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw), nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize composite value: %w", err)
	}
	return string(encoded), nil
}

// quoteIdent quotes an identifier for DuckDB.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
