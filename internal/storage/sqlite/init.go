package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"tablodl/internal/storage"
	"tablodl/internal/storage/sqlite/migrations"
)

// Open opens (creating if necessary) the SQLite database at path, runs the
// schema migrations and verifies integrity. The returned handle is limited
// to a single connection: the catalog has exactly one writer at a time and
// SQLite serializes writes anyway.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, dsnParams())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	if err := checkIntegrity(db); err != nil {
		db.Close()

		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

func dsnParams() string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	return params.Encode()
}

func checkIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check failed: %v", storage.ErrCorrupt, err)
	}

	if result != "ok" {
		return fmt.Errorf("%w: integrity check reported %q", storage.ErrCorrupt, result)
	}

	return nil
}
