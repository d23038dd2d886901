package device

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeLayout is fixed width so created_at sorts lexically.
	historyTimeLayout = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStateHistoryRepository implements StateHistoryRepository using SQLite.
//
// The state array is stored as a digit string, the same shape it has on
// the wire.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a new SQLite state history repository.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordStateChange inserts a new state history entry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: Change to persist; Device is 0 for a whole-array snapshot
//
// Returns:
//   - error: nil on success, otherwise a missing source or the database error
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, entry StateHistoryEntry) error {
	if entry.Source == "" {
		return fmt.Errorf("source is required")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO state_history (device, states, source, created_at) VALUES (?, ?, ?, ?)",
		entry.Device,
		formatStates(entry.States),
		entry.Source,
		time.Now().UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateHistoryEntry: History entries, never nil
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, limit int) ([]StateHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device, states, source, created_at
		 FROM state_history
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StateHistoryEntry
		var states, createdAt string

		if err := rows.Scan(&entry.ID, &entry.Device, &states, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		entry.States = parseStates(states)
		entry.CreatedAt, err = time.Parse(historyTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than the given duration.
//
// Returns the number of rows deleted.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func formatStates(states []int) string {
	var b strings.Builder
	b.Grow(len(states))
	for _, s := range states {
		b.WriteByte(byte('0' + s))
	}
	return b.String()
}

func parseStates(s string) []int {
	states := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		states[i] = int(s[i] - '0')
	}
	return states
}
