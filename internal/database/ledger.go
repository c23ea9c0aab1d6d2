// Package database holds the SQLite-backed pageview ledger. Presence itself
// is ephemeral and TTL-bounded, but cumulative view counts are monotonic and
// worth keeping across restarts, so they get their own durable store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Ledger wraps the SQLite handle holding cumulative per-scope view counts.
type Ledger struct {
	db *sql.DB
}

// Open initializes the SQLite database at the provided path. Call Close when done.
func Open(path string) (*Ledger, error) {
	if path == "" {
		path = "pulsewatch.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying DB connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (l *Ledger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS scope_views (
		scope TEXT PRIMARY KEY,
		views INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// IncrementViews adds one view to the scope's cumulative count.
func (l *Ledger) IncrementViews(ctx context.Context, scope string) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO scope_views (scope, views)
		VALUES (?, 1)
		ON CONFLICT(scope) DO UPDATE SET
			views = views + 1,
			updated_at = CURRENT_TIMESTAMP;`, scope)
	return err
}

// TotalViews returns the all-time view count across every scope.
func (l *Ledger) TotalViews(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	row := l.db.QueryRowContext(ctx, `SELECT SUM(views) FROM scope_views;`)
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// ViewsByScope returns the all-time view count per scope.
func (l *Ledger) ViewsByScope(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT scope, views FROM scope_views;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var scope string
		var views int64
		if err := rows.Scan(&scope, &views); err != nil {
			return nil, err
		}
		out[scope] = views
	}
	return out, rows.Err()
}
