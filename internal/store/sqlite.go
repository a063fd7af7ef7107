// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Opens the database, applies embedded migrations and holds shared SQL helpers

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// busyTimeoutMillis is how long a connection waits on a lock held by another
// process before giving up with SQLITE_BUSY.
const busyTimeoutMillis = 5000

// SQLiteStore implements KeyStore, ArticleStore and AuditStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// schemaMu serializes EnsureSchema calls within this process.
	schemaMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created if it doesn't exist and parent directories are
// created if needed. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection keeps every
	// statement serialized and lets ":memory:" databases survive between calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// dsn builds the modernc.org/sqlite connection string with the pragmas the
// store relies on. WAL does not apply to in-memory databases.
func dsn(path string) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMillis),
		"_pragma=foreign_keys(1)",
	}
	if path == ":memory:" {
		return "file::memory:?" + strings.Join(pragmas, "&")
	}
	pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// Schema retry bounds. While another connection is applying a migration the
// version row is dirty, and the retry loop waits for it to finish.
const (
	schemaRetryAttempts = 40
	schemaRetryInitial  = 10 * time.Millisecond
	schemaRetryMax      = 250 * time.Millisecond
)

// EnsureSchema applies the embedded migrations. Every statement in them is
// written with IF NOT EXISTS, so running it again is a no-op. When another
// process is migrating the same file, EnsureSchema waits until the version it
// left behind is clean, then returns once the schema is current.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	delay := schemaRetryInitial
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.migrateUp()
		if err == nil {
			if attempt > 1 {
				s.logger.Debug("schema ready after waiting on another writer", "attempts", attempt)
			}
			return nil
		}
		if !isTransientMigrateErr(err) || attempt >= schemaRetryAttempts {
			return err
		}

		s.logger.Debug("schema busy, retrying", "attempt", attempt, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, schemaRetryMax)
	}
}

// migrateUp runs one pass of the embedded migrations. ErrNoChange counts as success.
func (s *SQLiteStore) migrateUp() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// isTransientMigrateErr reports whether a migration failure comes from another
// writer still working on the same file.
func isTransientMigrateErr(err error) bool {
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) || errors.Is(err, database.ErrLocked) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite UNIQUE failure on the
// given table.column. Other constraint failures (CHECK, NOT NULL) do not match.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

var (
	_ KeyStore     = (*SQLiteStore)(nil)
	_ ArticleStore = (*SQLiteStore)(nil)
	_ AuditStore   = (*SQLiteStore)(nil)
)
