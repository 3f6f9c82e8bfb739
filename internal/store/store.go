package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"text/template"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added assignments.completed_at
const currentSchemaVersion = 1

// DefaultBusyTimeout is how long SQLite waits on a locked database before
// returning SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

const metaConditionCount = "condition_count"

// Store provides durable storage for assignments and condition counters.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db         *sql.DB
	conditions int
	clock      Clock
}

// Options configures Open.
type Options struct {
	// Conditions is the fixed number of conditions N. Required, must be >= 1.
	Conditions int

	// BusyTimeout bounds how long a statement waits on a locked database.
	// Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration

	// Clock supplies assigned_at / completed_at timestamps. Nil means wall time.
	Clock Clock
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention
//   - immediate transaction locking
//
// This function is idempotent - safe to call multiple times with the same
// condition count.
func Open(path string, opts Options) (*Store, error) {
	if opts.Conditions < 1 {
		return nil, fmt.Errorf("invalid condition count %d: must be >= 1", opts.Conditions)
	}
	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_txlock=immediate", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// This also keeps ":memory:" databases on a single shared connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, opts.Conditions); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := checkConditionCount(db, opts.Conditions); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, conditions: opts.Conditions, clock: clock}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Conditions returns the condition count N this store was opened with.
func (s *Store) Conditions() int {
	return s.conditions
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema renders the schema for n conditions, creates tables if they
// don't exist and runs migrations. This function is idempotent.
func applySchema(db *sql.DB, n int) error {
	var buf bytes.Buffer
	if err := schemaTemplate.Execute(&buf, struct{ Conditions int }{n}); err != nil {
		return fmt.Errorf("failed to render schema: %w", err)
	}
	if _, err := db.Exec(buf.String()); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds assignments.completed_at for databases created before the
// column existed. New databases already have it from schema.sql.
func migrateToV1(db *sql.DB) error {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('assignments')
		WHERE name = 'completed_at'
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("migrate to v1: inspect assignments: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE assignments ADD COLUMN completed_at TEXT`); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// checkConditionCount records n on first open and rejects later opens that
// use a different count.
func checkConditionCount(db *sql.DB, n int) error {
	_, err := db.Exec(`
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, metaConditionCount, strconv.Itoa(n))
	if err != nil {
		return fmt.Errorf("record condition count: %w", err)
	}

	var stored string
	if err := db.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, metaConditionCount).Scan(&stored); err != nil {
		return fmt.Errorf("read condition count: %w", err)
	}
	if stored != strconv.Itoa(n) {
		return fmt.Errorf("%w: database has %s conditions, configured %d", ErrConditionMismatch, stored, n)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Begin opens a transaction for one balancing attempt.
// Lock contention while starting the transaction is reported as ErrBusy.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
