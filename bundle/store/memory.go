// Package store provides in-memory bundle.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rex8112/HumbleScrapperBot/bundle"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	tables tables
}

type itemKey struct {
	MonthID bundle.ID
	NameKey string
}

// tables is everything a transaction may change. It is copied for rollback.
type tables struct {
	months      map[bundle.ID]bundle.MonthRecord
	monthByURL  map[string]bundle.ID
	items       map[bundle.ID]bundle.ItemRecord
	itemByKey   map[itemKey]bundle.ID
	nextMonthID bundle.ID
	nextItemID  bundle.ID
}

func newTables() tables {
	return tables{
		months:      make(map[bundle.ID]bundle.MonthRecord),
		monthByURL:  make(map[string]bundle.ID),
		items:       make(map[bundle.ID]bundle.ItemRecord),
		itemByKey:   make(map[itemKey]bundle.ID),
		nextMonthID: 1,
		nextItemID:  1,
	}
}

func (t tables) clone() tables {
	c := tables{
		months:      make(map[bundle.ID]bundle.MonthRecord, len(t.months)),
		monthByURL:  make(map[string]bundle.ID, len(t.monthByURL)),
		items:       make(map[bundle.ID]bundle.ItemRecord, len(t.items)),
		itemByKey:   make(map[itemKey]bundle.ID, len(t.itemByKey)),
		nextMonthID: t.nextMonthID,
		nextItemID:  t.nextItemID,
	}
	for k, v := range t.months {
		c.months[k] = v
	}
	for k, v := range t.monthByURL {
		c.monthByURL[k] = v
	}
	for k, v := range t.items {
		c.items[k] = v
	}
	for k, v := range t.itemByKey {
		c.itemByKey[k] = v
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{tables: newTables()}
}

func (m *Memory) FindMonthByURL(_ context.Context, url string) (bundle.MonthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findMonthLocked(url)
}

func (m *Memory) FindItem(_ context.Context, monthID bundle.ID, nameKey string) (bundle.ItemRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findItemLocked(monthID, nameKey)
}

func (m *Memory) InsertMonth(_ context.Context, rec bundle.MonthRecord) (bundle.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertMonthLocked(rec)
}

func (m *Memory) UpdateMonth(_ context.Context, rec bundle.MonthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMonthLocked(rec)
}

func (m *Memory) InsertItem(_ context.Context, rec bundle.ItemRecord) (bundle.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertItemLocked(rec)
}

func (m *Memory) UpdateItem(_ context.Context, rec bundle.ItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateItemLocked(rec)
}

func (m *Memory) ListMonthsWithItems(_ context.Context) ([]bundle.MonthRows, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(), nil
}

// Counts implements bundle.Counter.
func (m *Memory) Counts(_ context.Context) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.tables.months)), int64(len(m.tables.items)), nil
}

func (m *Memory) findMonthLocked(url string) (bundle.MonthRecord, error) {
	id, ok := m.tables.monthByURL[url]
	if !ok {
		return bundle.MonthRecord{}, fmt.Errorf("month %q: %w", url, bundle.ErrNotFound)
	}
	return m.tables.months[id], nil
}

func (m *Memory) findItemLocked(monthID bundle.ID, nameKey string) (bundle.ItemRecord, error) {
	id, ok := m.tables.itemByKey[itemKey{MonthID: monthID, NameKey: nameKey}]
	if !ok {
		return bundle.ItemRecord{}, fmt.Errorf("item %q of month %d: %w", nameKey, monthID, bundle.ErrNotFound)
	}
	return m.tables.items[id], nil
}

func (m *Memory) insertMonthLocked(rec bundle.MonthRecord) (bundle.ID, error) {
	if _, dup := m.tables.monthByURL[rec.URL]; dup {
		return 0, fmt.Errorf("month %q: %w", rec.URL, bundle.ErrDuplicateKey)
	}
	rec.ID = m.tables.nextMonthID
	m.tables.nextMonthID++
	m.tables.months[rec.ID] = rec
	m.tables.monthByURL[rec.URL] = rec.ID
	return rec.ID, nil
}

func (m *Memory) updateMonthLocked(rec bundle.MonthRecord) error {
	old, ok := m.tables.months[rec.ID]
	if !ok {
		return fmt.Errorf("month %d: %w", rec.ID, bundle.ErrNotFound)
	}
	if other, dup := m.tables.monthByURL[rec.URL]; dup && other != rec.ID {
		return fmt.Errorf("month %q: %w", rec.URL, bundle.ErrDuplicateKey)
	}
	delete(m.tables.monthByURL, old.URL)
	m.tables.months[rec.ID] = rec
	m.tables.monthByURL[rec.URL] = rec.ID
	return nil
}

func (m *Memory) insertItemLocked(rec bundle.ItemRecord) (bundle.ID, error) {
	if _, ok := m.tables.months[rec.MonthID]; !ok {
		return 0, fmt.Errorf("item %q references month %d: %w", rec.Name, rec.MonthID, bundle.ErrNotFound)
	}
	k := itemKey{MonthID: rec.MonthID, NameKey: rec.NameKey}
	if _, dup := m.tables.itemByKey[k]; dup {
		return 0, fmt.Errorf("item %q of month %d: %w", rec.NameKey, rec.MonthID, bundle.ErrDuplicateKey)
	}
	rec.ID = m.tables.nextItemID
	m.tables.nextItemID++
	m.tables.items[rec.ID] = rec
	m.tables.itemByKey[k] = rec.ID
	return rec.ID, nil
}

func (m *Memory) updateItemLocked(rec bundle.ItemRecord) error {
	old, ok := m.tables.items[rec.ID]
	if !ok {
		return fmt.Errorf("item %d: %w", rec.ID, bundle.ErrNotFound)
	}
	if _, ok := m.tables.months[rec.MonthID]; !ok {
		return fmt.Errorf("item %q references month %d: %w", rec.Name, rec.MonthID, bundle.ErrNotFound)
	}
	k := itemKey{MonthID: rec.MonthID, NameKey: rec.NameKey}
	if other, dup := m.tables.itemByKey[k]; dup && other != rec.ID {
		return fmt.Errorf("item %q of month %d: %w", rec.NameKey, rec.MonthID, bundle.ErrDuplicateKey)
	}
	delete(m.tables.itemByKey, itemKey{MonthID: old.MonthID, NameKey: old.NameKey})
	m.tables.items[rec.ID] = rec
	m.tables.itemByKey[k] = rec.ID
	return nil
}

func (m *Memory) listLocked() []bundle.MonthRows {
	byMonth := make(map[bundle.ID][]bundle.ItemRecord)
	for _, it := range m.tables.items {
		byMonth[it.MonthID] = append(byMonth[it.MonthID], it)
	}

	result := make([]bundle.MonthRows, 0, len(m.tables.months))
	for id, rec := range m.tables.months {
		items := byMonth[id]
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
		result = append(result, bundle.MonthRows{MonthRecord: rec, Items: items})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.ID < b.ID
	})
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(bundle.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := tm.tables.clone()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.tables = snapshot
		return err
	}
	return nil
}

// txMemoryView runs store operations while WithTx holds the lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) FindMonthByURL(_ context.Context, url string) (bundle.MonthRecord, error) {
	return tv.parent.findMonthLocked(url)
}

func (tv *txMemoryView) FindItem(_ context.Context, monthID bundle.ID, nameKey string) (bundle.ItemRecord, error) {
	return tv.parent.findItemLocked(monthID, nameKey)
}

func (tv *txMemoryView) InsertMonth(_ context.Context, rec bundle.MonthRecord) (bundle.ID, error) {
	return tv.parent.insertMonthLocked(rec)
}

func (tv *txMemoryView) UpdateMonth(_ context.Context, rec bundle.MonthRecord) error {
	return tv.parent.updateMonthLocked(rec)
}

func (tv *txMemoryView) InsertItem(_ context.Context, rec bundle.ItemRecord) (bundle.ID, error) {
	return tv.parent.insertItemLocked(rec)
}

func (tv *txMemoryView) UpdateItem(_ context.Context, rec bundle.ItemRecord) error {
	return tv.parent.updateItemLocked(rec)
}

func (tv *txMemoryView) ListMonthsWithItems(_ context.Context) ([]bundle.MonthRows, error) {
	return tv.parent.listLocked(), nil
}
