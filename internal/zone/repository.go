package zone

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists zone runs.
type Repository interface {
	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, zone int, limit int) ([]Run, error)
}

// runTimeLayout is fixed width so stored timestamps sort as text.
const runTimeLayout = "2006-01-02T15:04:05.000000Z"

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed run journal.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordRun stores a run. Recording the same run ID again replaces its
// outcome, so a run is written once when it starts and again when it
// finishes.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - run: Run to store, keyed by run.ID
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO zone_runs (
			id, zone, zone_name, source, status,
			started_at, finished_at, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms,
			error = excluded.error`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Zone,
		run.ZoneName,
		run.Source,
		string(run.Status),
		run.StartedAt.UTC().Format(runTimeLayout),
		nullableTime(run.FinishedAt),
		nullableInt(run.DurationMS),
		nullableString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting zone run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs of zone, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - zone: Zone ID, or 0 for runs across all zones
//   - limit: Maximum runs to return (default 20, max 200)
//
// Returns:
//   - []Run: Runs ordered by started_at DESC, never nil
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) ListRuns(ctx context.Context, zone int, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	query := `
		SELECT id, zone, zone_name, source, status,
			started_at, finished_at, duration_ms, error
		FROM zone_runs
		WHERE (? = 0 OR zone = ?)
		ORDER BY started_at DESC, id
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, zone, zone, limit)
	if err != nil {
		return nil, fmt.Errorf("querying zone runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning zone run: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run by ID, or ErrRunNotFound.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (Run, error) {
	query := `
		SELECT id, zone, zone_name, source, status,
			started_at, finished_at, duration_ms, error
		FROM zone_runs
		WHERE id = ?`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return Run{}, fmt.Errorf("querying zone run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Run{}, fmt.Errorf("querying zone run: %w", err)
		}
		return Run{}, ErrRunNotFound
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var status, startedAt string
	var finishedAt, errText sql.NullString
	var durationMS sql.NullInt64

	err := rows.Scan(
		&run.ID,
		&run.Zone,
		&run.ZoneName,
		&run.Source,
		&status,
		&startedAt,
		&finishedAt,
		&durationMS,
		&errText,
	)
	if err != nil {
		return Run{}, err
	}

	run.Status = RunStatus(status)
	if t, parseErr := time.Parse(runTimeLayout, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, parseErr := time.Parse(runTimeLayout, finishedAt.String); parseErr == nil {
			run.FinishedAt = &t
		}
	}
	if durationMS.Valid {
		d := durationMS.Int64
		run.DurationMS = &d
	}
	if errText.Valid {
		run.Error = errText.String
	}
	return run, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(runTimeLayout), Valid: true}
}

func nullableInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
