package readings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/metrics"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

const sqliteSourceName = "sqlite"

// SQLiteSource stores rows in a flat readings table. The value column has no
// declared type so numbers, numeric strings, "NaN" and NULL come back as
// they were written.
type SQLiteSource struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

var _ Writer = (*SQLiteSource)(nil)

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSource, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteSource{db: db, path: path}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteSource) Path() string { return s.path }

func (s *SQLiteSource) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteSource) createSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		car_type TEXT NOT NULL DEFAULT '',
		field TEXT NOT NULL,
		ts INTEGER NOT NULL,
		value
	);
	CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(device_id, ts);
	CREATE INDEX IF NOT EXISTS idx_readings_car_type ON readings(car_type);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Insert writes rows in one transaction. Times are stored with millisecond
// precision.
func (s *SQLiteSource) Insert(ctx context.Context, rows []telemetry.Row) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO readings (device_id, car_type, field, ts, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.DeviceID, r.CarType, r.Field, r.Time.UnixMilli(), r.Value); err != nil {
			return fmt.Errorf("failed to insert reading for %s: %w", r.DeviceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

// Query returns matching rows ordered by insertion.
func (s *SQLiteSource) Query(ctx context.Context, q Query) ([]telemetry.Row, error) {
	if s.closed.Load() {
		metrics.RecordSourceQueryError(sqliteSourceName)
		return nil, ErrClosed
	}
	start := time.Now()

	stmt, args := buildSelect(q)
	rs, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		metrics.RecordSourceQueryError(sqliteSourceName)
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer rs.Close()

	var out []telemetry.Row
	for rs.Next() {
		var (
			r  telemetry.Row
			ts int64
		)
		if err := rs.Scan(&r.DeviceID, &r.CarType, &r.Field, &ts, &r.Value); err != nil {
			metrics.RecordSourceQueryError(sqliteSourceName)
			return nil, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		r.Time = time.UnixMilli(ts).UTC()
		if b, ok := r.Value.([]byte); ok {
			r.Value = string(b)
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		metrics.RecordSourceQueryError(sqliteSourceName)
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	metrics.RecordSourceQuery(sqliteSourceName, float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

func buildSelect(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(q.DeviceIDs) > 0 {
		where = append(where, "device_id IN ("+placeholders(len(q.DeviceIDs))+")")
		for _, id := range q.DeviceIDs {
			args = append(args, strings.TrimSpace(id))
		}
	}
	if q.CarType != "" {
		where = append(where, "car_type = ? COLLATE NOCASE")
		args = append(args, q.CarType)
	}
	if len(q.Fields) > 0 {
		where = append(where, "LOWER(TRIM(field)) IN ("+placeholders(len(q.Fields))+")")
		for _, name := range fieldNames(q.Fields) {
			args = append(args, name)
		}
	}
	if !q.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Start.UnixMilli())
	}
	if !q.Stop.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, q.Stop.UnixMilli())
	}

	stmt := "SELECT device_id, car_type, field, ts, value FROM readings"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	return stmt + " ORDER BY id", args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
