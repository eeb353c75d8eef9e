/*
Package bundle keeps an archive of Humble Choice months and their games.

KEY CONCEPTS:
  - Month: a bundle month, identified by the URL it was scraped from.
  - Item:  a game offered in a month, identified by name within that month.
  - Archive: the save protocol that upserts a month and its items inside one
    store transaction, and the load path that rebuilds them.

IDENTITY:
  Equality is defined on natural keys only (URL for months, name + month URL
  for items), so maps and sets of entities behave the same before and after
  the first save. The surrogate id assigned by the store is bound onto the
  entity once, after the first successful commit, and never changes.

USAGE:
  m, _ := bundle.NewMonth("october", 2023, "https://www.humblebundle.com/membership/october-2023")
  m.NewItem("Game A")
  err := archive.Save(ctx, m)

SEE ALSO:
  - archive.go: Save, SaveItem, LoadAll
  - store.go: Store / TxStore interfaces
*/
package bundle

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the subscription a month was sold under.
type Kind string

const (
	KindChoice  Kind = "choice"
	KindMonthly Kind = "monthly"
)

// Brand returns the product name shown for the kind.
func (k Kind) Brand() string {
	if k == KindMonthly {
		return "Humble Bundle Monthly"
	}
	return "Humble Choice"
}

// NormalizeName returns the key under which an item name is stored in its
// month. Case variants of the same name share a key.
func NormalizeName(name string) string {
	return cases.Lower(language.Und).String(name)
}

// =============================================================================
// MONTH
// =============================================================================

// Month is a bundle month and the items it owns.
type Month struct {
	mu    sync.RWMutex
	month time.Month
	year  int
	url   string
	items map[string]*Item

	identity identity
}

// NewMonth creates a transient month from a scraped label such as "october".
func NewMonth(label string, year int, url string) (*Month, error) {
	m, err := ParseMonth(label)
	if err != nil {
		return nil, err
	}
	return newMonth(m, year, url)
}

func newMonth(month time.Month, year int, url string) (*Month, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if !ValidMonth(month) {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidPeriod, int(month))
	}
	return &Month{
		month: month,
		year:  year,
		url:   url,
		items: make(map[string]*Item),
	}, nil
}

// restoreMonth rebuilds a bound month from a stored row.
func restoreMonth(rec MonthRecord) (*Month, error) {
	m, err := newMonth(rec.Month, rec.Year, rec.URL)
	if err != nil {
		return nil, fmt.Errorf("month row %d: %w", rec.ID, err)
	}
	m.identity.id = rec.ID
	m.identity.bound = true
	return m, nil
}

func (m *Month) Label() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MonthLabel(m.month)
}

// Number returns the calendar month.
func (m *Month) Number() time.Month {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.month
}

func (m *Month) Year() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.year
}

// URL is the month's natural key. It never changes.
func (m *Month) URL() string { return m.url }

// Key is the natural key used to index months (the URL).
func (m *Month) Key() string { return m.url }

// Title returns the display form, e.g. "October 2023".
func (m *Month) Title() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Title(m.month, m.year)
}

// Kind tells pre-2020 Humble Monthly bundles, whose URLs end in "monthly",
// apart from Humble Choice months.
func (m *Month) Kind() Kind {
	if strings.HasSuffix(m.url, "monthly") {
		return KindMonthly
	}
	return KindChoice
}

// ID returns the persisted id and whether the month is bound.
func (m *Month) ID() (ID, bool) { return m.identity.get() }

func (m *Month) State() State { return m.identity.state() }

// SetPeriod corrects month and year. The next save overwrites the row.
func (m *Month) SetPeriod(label string, year int) error {
	month, err := ParseMonth(label)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.month = month
	m.year = year
	m.mu.Unlock()
	return nil
}

// Equal reports whether both months have the same URL.
func (m *Month) Equal(o *Month) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.url == o.url
}

// AddItem stores it under its normalized name, replacing any item with the
// same key. it must reference m (or an equal month).
func (m *Month) AddItem(it *Item) error {
	if it == nil {
		return fmt.Errorf("%w: nil item", ErrItemMonthMismatch)
	}
	if it.month == nil || !m.Equal(it.month) {
		return fmt.Errorf("%w: %q", ErrItemMonthMismatch, it.Name())
	}
	m.mu.Lock()
	m.items[it.Key().Name] = it
	m.mu.Unlock()
	return nil
}

// NewItem creates an item owned by m and adds it.
func (m *Month) NewItem(name string) *Item {
	it := NewItem(name, m)
	m.mu.Lock()
	m.items[NormalizeName(name)] = it
	m.mu.Unlock()
	return it
}

// Item looks up an item by name, ignoring case.
func (m *Month) Item(name string) (*Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[NormalizeName(name)]
	return it, ok
}

// Items returns the month's items ordered by normalized name.
func (m *Month) Items() []*Item {
	m.mu.RLock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]*Item, len(keys))
	for i, k := range keys {
		items[i] = m.items[k]
	}
	m.mu.RUnlock()
	return items
}

func (m *Month) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Month) String() string {
	return fmt.Sprintf("<Month: %s of %d>", m.Label(), m.Year())
}

// record returns the row values for m under a consistent read.
func (m *Month) record() MonthRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, _ := m.identity.get()
	return MonthRecord{ID: id, Month: m.month, Year: m.year, URL: m.url}
}

// =============================================================================
// ITEM
// =============================================================================

// Item is a game offered in a month. The month owns the item; the item only
// keeps a reference back for traversal and identity.
type Item struct {
	mu    sync.RWMutex
	name  string
	month *Month

	identity identity
}

// ItemKey is the natural key of an item.
type ItemKey struct {
	MonthURL string
	Name     string // normalized
}

// NewItem creates a transient item. It is not added to month.
func NewItem(name string, month *Month) *Item {
	return &Item{name: name, month: month}
}

func restoreItem(rec ItemRecord, month *Month) *Item {
	it := NewItem(rec.Name, month)
	it.identity.id = rec.ID
	it.identity.bound = true
	return it
}

func (it *Item) Name() string {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.name
}

// Month returns the owning month.
func (it *Item) Month() *Month { return it.month }

func (it *Item) Key() ItemKey {
	return ItemKey{MonthURL: it.month.URL(), Name: NormalizeName(it.Name())}
}

// ID returns the persisted id and whether the item is bound.
func (it *Item) ID() (ID, bool) { return it.identity.get() }

func (it *Item) State() State { return it.identity.state() }

// Equal reports whether both items have the same name and equal months.
func (it *Item) Equal(o *Item) bool {
	if it == nil || o == nil {
		return it == o
	}
	return it.Name() == o.Name() && it.month.Equal(o.month)
}

func (it *Item) String() string {
	return fmt.Sprintf("<Item: %s>", it.Name())
}

func (it *Item) rename(name string) {
	it.mu.Lock()
	it.name = name
	it.mu.Unlock()
}
