package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/qualtrack/qualtrack/pkg/model"
)

// ErrNotFound is returned when a measurement or session does not exist.
var ErrNotFound = errors.New("store: not found")

// Schema for the measurement history and session tables.
const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	measurement_uuid TEXT PRIMARY KEY,
	metric_uuid TEXT NOT NULL,
	start TEXT NOT NULL,
	end TEXT NOT NULL,
	successful INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_measurements_metric_start ON measurements(metric_uuid, start);
CREATE INDEX IF NOT EXISTS idx_measurements_metric_successful ON measurements(metric_uuid, successful, start);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	email TEXT NOT NULL
);
`

// Pragmas applied once at open.
const pragmas = `
PRAGMA foreign_keys = ON;
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 10000;
PRAGMA synchronous = NORMAL;
`

// Store is the SQLite-backed measurement history. Per metric the history is
// append-only and ordered by window start; the most recently started row is
// the metric's current measurement.
//
// Store is safe for concurrent use. Extending a validity window is a single
// atomic row update, so concurrent ingestion for the same metric can at worst
// add one extra history record, never corrupt one.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the measurement database at path.
// Use ":memory:" for an ephemeral test database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// An in-memory database exists per connection; keep a single one.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// tsFormat is the stored timestamp layout: UTC with fixed fractional digits
// so that lexicographic order equals chronological order.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(tsFormat)
}

// InsertMeasurement stores m as the metric's new current measurement.
// In the same transaction the previous current measurement's window, if any,
// is closed at m's start. The measurement's UUID and window are filled in:
// start = end = now unless the caller set them.
func (s *Store) InsertMeasurement(ctx context.Context, m *model.Measurement) error {
	if m.MeasurementUUID == "" {
		m.MeasurementUUID = uuid.NewString()
	}
	if m.Start.IsZero() {
		m.Start = s.now().UTC()
	}
	if m.End.IsZero() {
		m.End = m.Start
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: marshal measurement: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Close the previous current measurement's window at the new start.
	_, err = tx.ExecContext(ctx, `
		UPDATE measurements SET end = ?
		WHERE measurement_uuid = (
			SELECT measurement_uuid FROM measurements
			WHERE metric_uuid = ? ORDER BY start DESC LIMIT 1
		)`,
		formatTime(m.Start), m.MetricUUID)
	if err != nil {
		return fmt.Errorf("store: close previous window: %w", err)
	}

	successful := 0
	if m.Successful() {
		successful = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO measurements (measurement_uuid, metric_uuid, start, end, successful, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.MeasurementUUID, m.MetricUUID, formatTime(m.Start), formatTime(m.End), successful, string(payload))
	if err != nil {
		return fmt.Errorf("store: insert measurement: %w", err)
	}

	return tx.Commit()
}

// UpdateMeasurementEnd advances the validity window end of one measurement.
// This is the merge path for repeated measurements.
func (s *Store) UpdateMeasurementEnd(ctx context.Context, measurementUUID string, end time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE measurements SET end = ? WHERE measurement_uuid = ?`,
		formatTime(end), measurementUUID)
	if err != nil {
		return fmt.Errorf("store: update measurement end: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestMeasurement returns the metric's current measurement, or nil if the
// metric has never been measured.
func (s *Store) LatestMeasurement(ctx context.Context, metricUUID string) (*model.Measurement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT measurement_uuid, start, end, payload FROM measurements
		WHERE metric_uuid = ? ORDER BY start DESC LIMIT 1`, metricUUID)
	return scanMeasurement(row)
}

// LatestSuccessfulMeasurement returns the metric's most recent measurement
// whose sources were all collected without error, or nil if there is none.
func (s *Store) LatestSuccessfulMeasurement(ctx context.Context, metricUUID string) (*model.Measurement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT measurement_uuid, start, end, payload FROM measurements
		WHERE metric_uuid = ? AND successful = 1 ORDER BY start DESC LIMIT 1`, metricUUID)
	return scanMeasurement(row)
}

// MeasurementByID returns one measurement by its UUID.
// Returns ErrNotFound if it does not exist.
func (s *Store) MeasurementByID(ctx context.Context, measurementUUID string) (*model.Measurement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT measurement_uuid, start, end, payload FROM measurements
		WHERE measurement_uuid = ?`, measurementUUID)
	m, err := scanMeasurement(row)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// CountMeasurements returns the total number of stored measurements across
// all metrics. The count never decreases.
func (s *Store) CountMeasurements(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count measurements: %w", err)
	}
	return n, nil
}

// MeasurementsAt returns the metric's measurements whose validity window
// covers the given reference time, oldest first. The current measurement's
// window is open-ended, so it covers any reference at or after its start.
func (s *Store) MeasurementsAt(ctx context.Context, metricUUID string, at time.Time) ([]*model.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT measurement_uuid, start, end, payload FROM measurements
		WHERE metric_uuid = ? AND start <= ? ORDER BY start`,
		metricUUID, formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("store: query measurements: %w", err)
	}
	defer rows.Close()

	var all []*model.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate measurements: %w", err)
	}

	covering := make([]*model.Measurement, 0, len(all))
	for i, m := range all {
		current := i == len(all)-1
		if current || !m.End.Before(at) {
			covering = append(covering, m)
		}
	}
	return covering, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row scanner) (*model.Measurement, error) {
	var id, start, end, payload string
	if err := row.Scan(&id, &start, &end, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan measurement: %w", err)
	}

	var m model.Measurement
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("store: unmarshal measurement %s: %w", id, err)
	}

	// The window columns are authoritative: the end column is advanced in
	// place on merge without rewriting the payload.
	m.MeasurementUUID = id
	var err error
	if m.Start, err = time.Parse(tsFormat, start); err != nil {
		return nil, fmt.Errorf("store: parse start of %s: %w", id, err)
	}
	if m.End, err = time.Parse(tsFormat, end); err != nil {
		return nil, fmt.Errorf("store: parse end of %s: %w", id, err)
	}
	return &m, nil
}
