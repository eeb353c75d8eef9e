/*
store.go - Persistence interface for months and items

PURPOSE:
  Defines the interface between the archive and the database. The archive
  only ever sees rows through these methods; it never touches SQL.

KEY INTERFACES:
  Store:   point lookups by natural key, insert, update, full listing
  TxStore: Store plus an atomic transaction scope (WithTx)
  Counter: optional row counts, published as metrics

LOOKUP CONTRACT:
  FindMonthByURL and FindItem return ErrNotFound (possibly wrapped) when no
  row matches. FindItem filters on BOTH the month id and the normalized name.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (mattn/go-sqlite3 or modernc.org/sqlite)
  - bundle/store/memory.go: In-memory for testing
*/
package bundle

import (
	"context"
	"time"
)

// MonthRecord is a stored month row.
type MonthRecord struct {
	ID    ID
	Month time.Month
	Year  int
	URL   string
}

// ItemRecord is a stored item row. NameKey is NormalizeName(Name).
type ItemRecord struct {
	ID      ID
	MonthID ID
	Name    string
	NameKey string
}

// MonthRows is a month row with all of its item rows.
type MonthRows struct {
	MonthRecord
	Items []ItemRecord
}

// Store handles persistence of months and items.
type Store interface {
	// FindMonthByURL returns the month row with the given URL.
	FindMonthByURL(ctx context.Context, url string) (MonthRecord, error)

	// FindItem returns the item row of monthID whose name key is nameKey.
	FindItem(ctx context.Context, monthID ID, nameKey string) (ItemRecord, error)

	// InsertMonth stores a new month row and returns its id. rec.ID is ignored.
	InsertMonth(ctx context.Context, rec MonthRecord) (ID, error)

	// UpdateMonth overwrites month, year and url of row rec.ID.
	// Returns ErrNotFound if the row does not exist.
	UpdateMonth(ctx context.Context, rec MonthRecord) error

	InsertItem(ctx context.Context, rec ItemRecord) (ID, error)

	// UpdateItem overwrites name and month reference of row rec.ID.
	UpdateItem(ctx context.Context, rec ItemRecord) error

	// ListMonthsWithItems returns every month row with its item rows,
	// ordered by year, month and id.
	ListMonthsWithItems(ctx context.Context) ([]MonthRows, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Counter is implemented by stores that can report their row counts.
type Counter interface {
	Counts(ctx context.Context) (months, items int64, err error)
}
