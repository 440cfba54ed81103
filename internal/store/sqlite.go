// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user, share, tool definition and audit persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Rows written by hand or older builds use plain RFC3339.
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			email      TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_roles (
			email      TEXT NOT NULL,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (email, role),
			FOREIGN KEY (email) REFERENCES users(email) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS shared_tools (
			email        TEXT NOT NULL,
			tool_name    TEXT NOT NULL,
			shared_by    TEXT,
			access_level TEXT NOT NULL,
			shared_at    TEXT NOT NULL,

			PRIMARY KEY (email, tool_name),
			FOREIGN KEY (email) REFERENCES users(email) ON DELETE CASCADE,
			CHECK (access_level IN ('read', 'write'))
		);

		CREATE INDEX IF NOT EXISTS idx_shared_tools_tool ON shared_tools(tool_name);

		CREATE TABLE IF NOT EXISTS hidden_tools (
			email      TEXT NOT NULL,
			tool_name  TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (email, tool_name),
			FOREIGN KEY (email) REFERENCES users(email) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS tool_definitions (
			name            TEXT PRIMARY KEY,
			creator         TEXT NOT NULL,
			definition_json TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			event       TEXT NOT NULL,
			user_email  TEXT NOT NULL,
			tool_name   TEXT,
			status      TEXT NOT NULL,
			reason      TEXT,
			ts          TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_email);
		CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string // Table being altered
		column string // Column name for the check and for logging
		apply  string // Query to apply the migration
	}{
		{
			table:  "users",
			column: "tools_available_json",
			apply:  `ALTER TABLE users ADD COLUMN tools_available_json TEXT`,
		},
		{
			table:  "tool_definitions",
			column: "handler_type",
			apply:  `ALTER TABLE tool_definitions ADD COLUMN handler_type TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString converts empty strings to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
