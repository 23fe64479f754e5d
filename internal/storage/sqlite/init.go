package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS update_checks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	checked_at TEXT NOT NULL,
	outcome TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	instance_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_update_checks_checked_at ON update_checks (checked_at);
`

// InitDB opens the SQLite database at path and creates the schema.
// Use ":memory:" for a throwaway database.
func InitDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
