/*
Package sqlite provides a SQLite-backed implementation of bundle.TxStore.

KEY TABLES:
  months: one row per bundle month, url UNIQUE (the natural key)
  items:  one row per game, UNIQUE (month_id, name_key), month_id -> months

DRIVERS:
  DriverCGO  ("sqlite3"): github.com/mattn/go-sqlite3, the default
  DriverPure ("sqlite"):  modernc.org/sqlite, no cgo required

CONCURRENCY:
  Uses sync.RWMutex so write transactions are serialized in-process, on
  top of SQLite's single-writer lock. Two saves of the same URL therefore
  run one after the other, and the second finds the first's row.

WAL MODE:
  File databases are opened with WAL and foreign keys on. ":memory:"
  databases are pinned to one connection, since every new connection
  would otherwise see a fresh, empty database.

USAGE:
  store, err := sqlite.New("./data/archive.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  archive := bundle.NewArchive(store)

MIGRATION:
  Schema is created on New() with CREATE ... IF NOT EXISTS. There are no
  versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/rex8112/HumbleScrapperBot/bundle"
)

// Driver names as registered with database/sql.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// Store implements bundle.TxStore using SQLite.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

// Option configures New.
type Option func(*Store)

// WithDriver selects the database/sql driver (DriverCGO or DriverPure).
func WithDriver(driver string) Option {
	return func(s *Store) {
		if driver != "" {
			s.driver = driver
		}
	}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	store := &Store{driver: DriverCGO}
	for _, opt := range opts {
		opt(store)
	}

	dsn, err := dataSourceName(store.driver, dbPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(store.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(dbPath) {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}
	store.db = db

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func dataSourceName(driver, dbPath string) (string, error) {
	switch driver {
	case DriverCGO:
		if isMemory(dbPath) {
			return dbPath + "?_foreign_keys=on", nil
		}
		return dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverPure:
		if isMemory(dbPath) {
			return dbPath + "?_pragma=foreign_keys(1)", nil
		}
		return dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q", driver)
	}
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:"
}

// Driver returns the database/sql driver in use.
func (s *Store) Driver() string { return s.driver }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS months (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		year INTEGER NOT NULL,
		url TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		month_id INTEGER NOT NULL REFERENCES months(id),
		name TEXT NOT NULL,
		name_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (month_id, name_key)
	);

	CREATE INDEX IF NOT EXISTS idx_months_period
		ON months(year, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE (bundle.Store interface)
// =============================================================================

// FindMonthByURL returns the month stored under url.
func (s *Store) FindMonthByURL(ctx context.Context, url string) (bundle.MonthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findMonthByURL(ctx, s.db, url)
}

// FindItem returns the item of monthID with the given name key.
func (s *Store) FindItem(ctx context.Context, monthID bundle.ID, nameKey string) (bundle.ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findItem(ctx, s.db, monthID, nameKey)
}

func (s *Store) InsertMonth(ctx context.Context, rec bundle.MonthRecord) (bundle.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMonth(ctx, s.db, rec)
}

func (s *Store) UpdateMonth(ctx context.Context, rec bundle.MonthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMonth(ctx, s.db, rec)
}

func (s *Store) InsertItem(ctx context.Context, rec bundle.ItemRecord) (bundle.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertItem(ctx, s.db, rec)
}

func (s *Store) UpdateItem(ctx context.Context, rec bundle.ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateItem(ctx, s.db, rec)
}

// ListMonthsWithItems returns every month with its items.
func (s *Store) ListMonthsWithItems(ctx context.Context) ([]bundle.MonthRows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMonthsWithItems(ctx, s.db)
}

// Counts implements bundle.Counter.
func (s *Store) Counts(ctx context.Context) (months, items int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM months), (SELECT COUNT(*) FROM items)",
	).Scan(&months, &items)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return months, items, nil
}

// =============================================================================
// TRANSACTIONAL STORE (bundle.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store bundle.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore routes every statement through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindMonthByURL(ctx context.Context, url string) (bundle.MonthRecord, error) {
	return findMonthByURL(ctx, ts.tx, url)
}

func (ts *txStore) FindItem(ctx context.Context, monthID bundle.ID, nameKey string) (bundle.ItemRecord, error) {
	return findItem(ctx, ts.tx, monthID, nameKey)
}

func (ts *txStore) InsertMonth(ctx context.Context, rec bundle.MonthRecord) (bundle.ID, error) {
	return insertMonth(ctx, ts.tx, rec)
}

func (ts *txStore) UpdateMonth(ctx context.Context, rec bundle.MonthRecord) error {
	return updateMonth(ctx, ts.tx, rec)
}

func (ts *txStore) InsertItem(ctx context.Context, rec bundle.ItemRecord) (bundle.ID, error) {
	return insertItem(ctx, ts.tx, rec)
}

func (ts *txStore) UpdateItem(ctx context.Context, rec bundle.ItemRecord) error {
	return updateItem(ctx, ts.tx, rec)
}

func (ts *txStore) ListMonthsWithItems(ctx context.Context) ([]bundle.MonthRows, error) {
	return listMonthsWithItems(ctx, ts.tx)
}

// =============================================================================
// QUERIES
// =============================================================================

func findMonthByURL(ctx context.Context, db execer, url string) (bundle.MonthRecord, error) {
	var rec bundle.MonthRecord
	var month int
	err := db.QueryRowContext(ctx,
		"SELECT id, month, year, url FROM months WHERE url = ?", url,
	).Scan(&rec.ID, &month, &rec.Year, &rec.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("month %q: %w", url, bundle.ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to find month: %w", err)
	}
	rec.Month = time.Month(month)
	return rec, nil
}

// findItem matches on both columns of the (month_id, name_key) key.
func findItem(ctx context.Context, db execer, monthID bundle.ID, nameKey string) (bundle.ItemRecord, error) {
	var rec bundle.ItemRecord
	err := db.QueryRowContext(ctx,
		"SELECT id, month_id, name, name_key FROM items WHERE month_id = ? AND name_key = ?",
		monthID, nameKey,
	).Scan(&rec.ID, &rec.MonthID, &rec.Name, &rec.NameKey)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("item %q of month %d: %w", nameKey, monthID, bundle.ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to find item: %w", err)
	}
	return rec, nil
}

func insertMonth(ctx context.Context, db execer, rec bundle.MonthRecord) (bundle.ID, error) {
	ts := timestamp()
	res, err := db.ExecContext(ctx,
		"INSERT INTO months (month, year, url, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		int(rec.Month), rec.Year, rec.URL, ts, ts,
	)
	if err != nil {
		return 0, classify("insert month", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read month id: %w", err)
	}
	return bundle.ID(id), nil
}

func updateMonth(ctx context.Context, db execer, rec bundle.MonthRecord) error {
	res, err := db.ExecContext(ctx,
		`UPDATE months SET
			updated_at = CASE WHEN month IS NOT ? OR year IS NOT ? OR url IS NOT ? THEN ? ELSE updated_at END,
			month = ?, year = ?, url = ?
		WHERE id = ?`,
		int(rec.Month), rec.Year, rec.URL, timestamp(),
		int(rec.Month), rec.Year, rec.URL, rec.ID,
	)
	if err != nil {
		return classify("update month", err)
	}
	return requireRow(res, "month", rec.ID)
}

func insertItem(ctx context.Context, db execer, rec bundle.ItemRecord) (bundle.ID, error) {
	ts := timestamp()
	res, err := db.ExecContext(ctx,
		"INSERT INTO items (month_id, name, name_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		rec.MonthID, rec.Name, rec.NameKey, ts, ts,
	)
	if err != nil {
		return 0, classify("insert item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read item id: %w", err)
	}
	return bundle.ID(id), nil
}

func updateItem(ctx context.Context, db execer, rec bundle.ItemRecord) error {
	res, err := db.ExecContext(ctx,
		`UPDATE items SET
			updated_at = CASE WHEN month_id IS NOT ? OR name IS NOT ? OR name_key IS NOT ? THEN ? ELSE updated_at END,
			month_id = ?, name = ?, name_key = ?
		WHERE id = ?`,
		rec.MonthID, rec.Name, rec.NameKey, timestamp(),
		rec.MonthID, rec.Name, rec.NameKey, rec.ID,
	)
	if err != nil {
		return classify("update item", err)
	}
	return requireRow(res, "item", rec.ID)
}

func listMonthsWithItems(ctx context.Context, db execer) ([]bundle.MonthRows, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, month, year, url FROM months ORDER BY year, month, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query months: %w", err)
	}
	defer rows.Close()

	var result []bundle.MonthRows
	index := make(map[bundle.ID]int)
	for rows.Next() {
		var rec bundle.MonthRecord
		var month int
		if err := rows.Scan(&rec.ID, &month, &rec.Year, &rec.URL); err != nil {
			return nil, fmt.Errorf("failed to scan month: %w", err)
		}
		rec.Month = time.Month(month)
		index[rec.ID] = len(result)
		result = append(result, bundle.MonthRows{MonthRecord: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	itemRows, err := db.QueryContext(ctx,
		"SELECT id, month_id, name, name_key FROM items ORDER BY month_id, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var rec bundle.ItemRecord
		if err := itemRows.Scan(&rec.ID, &rec.MonthID, &rec.Name, &rec.NameKey); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		i, ok := index[rec.MonthID]
		if !ok {
			continue
		}
		result[i].Items = append(result[i].Items, rec)
	}
	return result, itemRows.Err()
}

// Helper functions

// now is replaced in tests.
var now = time.Now

// timestamp is the value written to created_at and updated_at. An update
// only moves updated_at when a column actually changes, so re-saving
// unchanged data leaves the row byte-for-byte identical.
func timestamp() string {
	return now().UTC().Format(time.RFC3339)
}

func requireRow(res sql.Result, table string, id bundle.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, bundle.ErrNotFound)
	}
	return nil
}

func classify(op string, err error) error {
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: %w: %v", op, bundle.ErrDuplicateKey, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// isUniqueConstraintError matches the messages of both drivers.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
