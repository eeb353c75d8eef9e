/*
archive.go - Save protocol and load path

SAVE PROTOCOL (one transaction per call):
  1. Month. Bound -> overwrite row by id. Transient -> look up by URL;
     found -> overwrite, missing -> insert.
  2. Every item of the month, same logic scoped to the month's row id,
     looked up by (month id AND normalized name).
  3. Commit. Only now are new ids bound onto the in-memory entities, so a
     rolled back save leaves both the store and the entities untouched.

IDEMPOTENCY:
  Saving unchanged data again resolves every entity to its existing row and
  overwrites it with identical values. No rows are created.

CONCURRENCY:
  Archive holds no mutable state of its own. Concurrent saves are isolated
  by the store's transactions; stores in this repo serialize write
  transactions, so two saves of the same URL never both insert.
*/
package bundle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rex8112/HumbleScrapperBot/metrics"
)

// Operation names used for logs and metrics.
const (
	OpSave     = "save"
	OpSaveItem = "save_item"
	OpLoadAll  = "load_all"
)

// Archive persists months and items into a TxStore.
type Archive struct {
	store   TxStore
	logger  zerolog.Logger
	metrics metrics.Collector
}

// Option configures an Archive.
type Option func(*Archive)

func WithLogger(l zerolog.Logger) Option {
	return func(a *Archive) { a.logger = l.With().Str("component", "archive").Logger() }
}

func WithMetrics(c metrics.Collector) Option {
	return func(a *Archive) {
		if c != nil {
			a.metrics = c
		}
	}
}

// NewArchive creates an archive backed by store.
func NewArchive(store TxStore, opts ...Option) *Archive {
	a := &Archive{
		store:   store,
		logger:  zerolog.Nop(),
		metrics: metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// binding is an id to attach after commit.
type binding struct {
	identity *identity
	id       ID
}

type bindings []binding

func (bs *bindings) add(i *identity, id ID) {
	*bs = append(*bs, binding{identity: i, id: id})
}

func (bs bindings) apply(logger zerolog.Logger) {
	for _, b := range bs {
		if err := b.identity.bind(b.id); err != nil {
			logger.Error().Err(err).Int64("id", int64(b.id)).Msg("identity rebinding refused")
		}
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save upserts m and all of its items atomically.
func (a *Archive) Save(ctx context.Context, m *Month) error {
	start := time.Now()
	log := a.logger.With().Str("url", m.URL()).Logger()

	var pending bindings
	var inserted, updated int
	err := a.store.WithTx(ctx, func(tx Store) error {
		stageStart := time.Now()
		monthID, created, err := a.saveMonth(ctx, tx, m, &pending)
		if err != nil {
			return err
		}
		a.metrics.RecordStage(ctx, OpSave, "month", time.Since(stageStart))

		stageStart = time.Now()
		for _, it := range m.Items() {
			created, err := a.saveItem(ctx, tx, monthID, it, &pending)
			if err != nil {
				return err
			}
			if created {
				inserted++
			} else {
				updated++
			}
		}
		a.metrics.RecordStage(ctx, OpSave, "items", time.Since(stageStart))

		log.Debug().Bool("month_created", created).Int64("month_id", int64(monthID)).Msg("month upserted")
		return nil
	})
	err = surface("save month", err)
	a.finish(ctx, OpSave, start, err)
	if err != nil {
		log.Warn().Err(err).Msg("save rolled back")
		return err
	}

	pending.apply(log)
	a.publishCounts(ctx)
	log.Info().
		Int("items_inserted", inserted).
		Int("items_updated", updated).
		Dur("took", time.Since(start)).
		Msg("month saved")
	return nil
}

// SaveItem upserts a single item. Its month must already be bound.
func (a *Archive) SaveItem(ctx context.Context, it *Item) error {
	start := time.Now()
	month := it.Month()
	if month == nil {
		err := &InvalidStateError{Op: "save item", Reason: "item has no month"}
		a.finish(ctx, OpSaveItem, start, err)
		return err
	}
	monthID, ok := month.ID()
	if !ok {
		err := &InvalidStateError{Op: "save item", Reason: "month " + month.URL() + " must be saved first"}
		a.finish(ctx, OpSaveItem, start, err)
		return err
	}

	var pending bindings
	err := a.store.WithTx(ctx, func(tx Store) error {
		_, err := a.saveItem(ctx, tx, monthID, it, &pending)
		return err
	})
	err = surface("save item", err)
	a.finish(ctx, OpSaveItem, start, err)
	if err != nil {
		return err
	}
	pending.apply(a.logger)
	a.publishCounts(ctx)
	return nil
}

// saveMonth upserts the month row and returns its id. New ids are queued
// on pending rather than bound.
func (a *Archive) saveMonth(ctx context.Context, tx Store, m *Month, pending *bindings) (ID, bool, error) {
	rec := m.record()
	if id, ok := m.ID(); ok {
		rec.ID = id
		if err := tx.UpdateMonth(ctx, rec); err != nil {
			return 0, false, storeError("update month", staleIfMissing(err))
		}
		return id, false, nil
	}

	existing, err := tx.FindMonthByURL(ctx, rec.URL)
	switch {
	case err == nil:
		rec.ID = existing.ID
		if err := tx.UpdateMonth(ctx, rec); err != nil {
			return 0, false, storeError("update month", staleIfMissing(err))
		}
		pending.add(&m.identity, existing.ID)
		return existing.ID, false, nil
	case errors.Is(err, ErrNotFound):
		id, err := tx.InsertMonth(ctx, rec)
		if err != nil {
			return 0, false, storeError("insert month", err)
		}
		pending.add(&m.identity, id)
		return id, true, nil
	default:
		return 0, false, storeError("find month", err)
	}
}

// saveItem upserts one item row under monthID.
func (a *Archive) saveItem(ctx context.Context, tx Store, monthID ID, it *Item, pending *bindings) (bool, error) {
	if monthID == 0 {
		return false, &InvalidStateError{Op: "save item", Reason: "month has no persisted identity"}
	}
	name := it.Name()
	rec := ItemRecord{MonthID: monthID, Name: name, NameKey: NormalizeName(name)}

	if id, ok := it.ID(); ok {
		rec.ID = id
		if err := tx.UpdateItem(ctx, rec); err != nil {
			return false, storeError("update item", staleIfMissing(err))
		}
		return false, nil
	}

	existing, err := tx.FindItem(ctx, monthID, rec.NameKey)
	switch {
	case err == nil:
		rec.ID = existing.ID
		if err := tx.UpdateItem(ctx, rec); err != nil {
			return false, storeError("update item", staleIfMissing(err))
		}
		pending.add(&it.identity, existing.ID)
		return false, nil
	case errors.Is(err, ErrNotFound):
		id, err := tx.InsertItem(ctx, rec)
		if err != nil {
			return false, storeError("insert item", err)
		}
		pending.add(&it.identity, id)
		return true, nil
	default:
		return false, storeError("find item", err)
	}
}

func staleIfMissing(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrStaleIdentity
	}
	return err
}

// =============================================================================
// LOAD
// =============================================================================

// LoadAll rebuilds every stored month with its items, keyed by URL.
// Entities come back bound; the store is not written.
func (a *Archive) LoadAll(ctx context.Context) (map[string]*Month, error) {
	start := time.Now()
	rows, err := a.store.ListMonthsWithItems(ctx)
	if err != nil {
		err = storeError("list months", err)
		a.finish(ctx, OpLoadAll, start, err)
		return nil, err
	}

	months := make(map[string]*Month, len(rows))
	for _, row := range rows {
		m, err := restoreMonth(row.MonthRecord)
		if err != nil {
			err = storeError("restore month", err)
			a.finish(ctx, OpLoadAll, start, err)
			return nil, err
		}
		for _, rec := range row.Items {
			it := restoreItem(rec, m)
			m.items[NormalizeName(rec.Name)] = it
		}
		months[m.Key()] = m
	}

	a.finish(ctx, OpLoadAll, start, nil)
	a.logger.Debug().Int("months", len(months)).Msg("archive loaded")
	return months, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (a *Archive) finish(ctx context.Context, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		a.metrics.RecordError(ctx, op, ClassifyError(err))
	}
	a.metrics.RecordOperation(ctx, op, status, time.Since(start))
}

func (a *Archive) publishCounts(ctx context.Context) {
	counter, ok := a.store.(Counter)
	if !ok {
		return
	}
	months, items, err := counter.Counts(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("counting rows failed")
		return
	}
	a.metrics.SetStorageCount(ctx, "months", months)
	a.metrics.SetStorageCount(ctx, "items", items)
}

// Error classes used as metric labels.
const (
	ErrTypeInvalidState = "invalid_state"
	ErrTypeDuplicate    = "duplicate"
	ErrTypeStale        = "stale"
	ErrTypeTimeout      = "timeout"
	ErrTypeStore        = "store"
	ErrTypeUnknown      = "unknown"
)

// ClassifyError returns a metric label for err.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidState):
		return ErrTypeInvalidState
	case errors.Is(err, ErrDuplicateKey):
		return ErrTypeDuplicate
	case errors.Is(err, ErrStaleIdentity):
		return ErrTypeStale
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return ErrTypeTimeout
	case errors.Is(err, ErrStore):
		return ErrTypeStore
	default:
		return ErrTypeUnknown
	}
}
