package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rex8112/HumbleScrapperBot/bundle"
	"github.com/rex8112/HumbleScrapperBot/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var drivers = []string{sqlite.DriverCGO, sqlite.DriverPure}

func newTestStore(t *testing.T, driver string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:", sqlite.WithDriver(driver))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func forEachDriver(t *testing.T, fn func(t *testing.T, store *sqlite.Store)) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			fn(t, newTestStore(t, driver))
		})
	}
}

func october(t *testing.T, url string, names ...string) *bundle.Month {
	t.Helper()
	m, err := bundle.NewMonth("october", 2023, url)
	require.NoError(t, err)
	for _, n := range names {
		m.NewItem(n)
	}
	return m
}

func list(t *testing.T, store *sqlite.Store) []bundle.MonthRows {
	t.Helper()
	all, err := store.ListMonthsWithItems(context.Background())
	require.NoError(t, err)
	return all
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

func TestNew_UnknownDriver(t *testing.T) {
	_, err := sqlite.New(":memory:", sqlite.WithDriver("postgres"))
	assert.Error(t, err)
}

func TestStore_LookupMisses(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		ctx := context.Background()

		_, err := store.FindMonthByURL(ctx, "u1")
		assert.ErrorIs(t, err, bundle.ErrNotFound)

		_, err = store.FindItem(ctx, 1, "game a")
		assert.ErrorIs(t, err, bundle.ErrNotFound)
	})
}

func TestStore_InsertFindUpdate(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		ctx := context.Background()

		id, err := store.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
		require.NoError(t, err)

		rec, err := store.FindMonthByURL(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, bundle.MonthRecord{ID: id, Month: time.October, Year: 2023, URL: "u1"}, rec)

		rec.Month, rec.Year = time.November, 2024
		require.NoError(t, store.UpdateMonth(ctx, rec))

		again, err := store.FindMonthByURL(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, rec, again)
	})
}

func TestStore_DuplicateURL(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		ctx := context.Background()
		_, err := store.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
		require.NoError(t, err)

		_, err = store.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
		assert.ErrorIs(t, err, bundle.ErrDuplicateKey)
		assert.True(t, bundle.IsRetryable(err))
	})
}

func TestStore_FindItemFiltersByMonthAndName(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		ctx := context.Background()
		m1, err := store.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
		require.NoError(t, err)
		m2, err := store.InsertMonth(ctx, bundle.MonthRecord{Month: time.November, Year: 2023, URL: "u2"})
		require.NoError(t, err)
		_, err = store.InsertItem(ctx, bundle.ItemRecord{MonthID: m1, Name: "Game A", NameKey: "game a"})
		require.NoError(t, err)

		_, err = store.FindItem(ctx, m2, "game a")
		assert.ErrorIs(t, err, bundle.ErrNotFound, "same name under another month is a miss")

		_, err = store.FindItem(ctx, m1, "game b")
		assert.ErrorIs(t, err, bundle.ErrNotFound, "other name under the same month is a miss")

		rec, err := store.FindItem(ctx, m1, "game a")
		require.NoError(t, err)
		assert.Equal(t, m1, rec.MonthID)
		assert.Equal(t, "Game A", rec.Name)
	})
}

func TestStore_ItemForeignKey(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		_, err := store.InsertItem(context.Background(), bundle.ItemRecord{MonthID: 99, Name: "x", NameKey: "x"})
		assert.Error(t, err, "items must reference an existing month")
	})
}

func TestStore_UpdateMissingRow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		err := store.UpdateMonth(context.Background(), bundle.MonthRecord{ID: 5, Month: time.May, Year: 2020, URL: "u"})
		assert.ErrorIs(t, err, bundle.ErrNotFound)
	})
}

func TestStore_WithTx_Rollback(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := store.WithTx(ctx, func(tx bundle.Store) error {
			id, err := tx.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
			if err != nil {
				return err
			}
			if _, err := tx.FindMonthByURL(ctx, "u1"); err != nil {
				return err
			}
			if _, err := tx.InsertItem(ctx, bundle.ItemRecord{MonthID: id, Name: "Game A", NameKey: "game a"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		months, items, err := store.Counts(ctx)
		require.NoError(t, err)
		assert.Zero(t, months)
		assert.Zero(t, items)
	})
}

// =============================================================================
// ARCHIVE ON SQLITE
// =============================================================================

func TestArchive_SaveIdempotent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		archive := bundle.NewArchive(store)
		ctx := context.Background()
		m := october(t, "u1", "Game A", "Game B", "Game C")

		require.NoError(t, archive.Save(ctx, m))
		before := list(t, store)

		require.NoError(t, archive.Save(ctx, m))
		require.NoError(t, archive.Save(ctx, october(t, "u1", "Game A", "Game B", "Game C")))

		assert.Equal(t, before, list(t, store))
		months, items, err := store.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), months)
		assert.Equal(t, int64(3), items)
	})
}

func TestArchive_CaseVariantScenario(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		archive := bundle.NewArchive(store)
		ctx := context.Background()

		m := october(t, "u1")
		require.NoError(t, m.AddItem(bundle.NewItem("Game A", m)))
		require.NoError(t, m.AddItem(bundle.NewItem("game a", m)))
		require.NoError(t, archive.Save(ctx, m))

		loaded, err := archive.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		got := loaded["u1"]
		require.Equal(t, 1, got.Len())
		it, ok := got.Item("GAME A")
		require.True(t, ok)
		assert.Equal(t, "game a", it.Name())
	})
}

// failNthItem makes the nth InsertItem of every transaction fail.
type failNthItem struct {
	bundle.TxStore
	n int
}

var errInjected = errors.New("injected item failure")

func (f *failNthItem) WithTx(ctx context.Context, fn func(bundle.Store) error) error {
	count := 0
	return f.TxStore.WithTx(ctx, func(tx bundle.Store) error {
		return fn(&failingTx{Store: tx, count: &count, n: f.n})
	})
}

type failingTx struct {
	bundle.Store
	count *int
	n     int
}

func (f *failingTx) InsertItem(ctx context.Context, rec bundle.ItemRecord) (bundle.ID, error) {
	*f.count++
	if *f.count == f.n {
		return 0, errInjected
	}
	return f.Store.InsertItem(ctx, rec)
}

func TestArchive_AtomicOnItemFailure(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		ctx := context.Background()
		m := october(t, "u1", "Game A", "Game B", "Game C")

		// GIVEN: the second item insert fails
		err := bundle.NewArchive(&failNthItem{TxStore: store, n: 2}).Save(ctx, m)

		// THEN: nothing was written and nothing was bound
		require.Error(t, err)
		assert.ErrorIs(t, err, errInjected)
		assert.True(t, bundle.IsStoreError(err))
		assert.Empty(t, list(t, store))
		assert.Equal(t, bundle.Transient, m.State())
		for _, it := range m.Items() {
			assert.Equal(t, bundle.Transient, it.State())
		}

		// WHEN: retried against a healthy store
		require.NoError(t, bundle.NewArchive(store).Save(ctx, m))
		all := list(t, store)
		require.Len(t, all, 1)
		assert.Len(t, all[0].Items, 3)
		assert.Equal(t, bundle.Bound, m.State())
	})
}

func TestArchive_PeriodCorrectionKeepsRow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		archive := bundle.NewArchive(store)
		ctx := context.Background()

		m := october(t, "u1", "Game A")
		require.NoError(t, archive.Save(ctx, m))
		id, _ := m.ID()

		require.NoError(t, m.SetPeriod("december", 2030))
		require.NoError(t, archive.Save(ctx, m))

		all := list(t, store)
		require.Len(t, all, 1)
		assert.Equal(t, id, all[0].ID)
		assert.Equal(t, time.December, all[0].Month)
		assert.Equal(t, 2030, all[0].Year)
	})
}

func TestArchive_RoundTrip(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		archive := bundle.NewArchive(store)
		ctx := context.Background()

		saved := []*bundle.Month{
			october(t, "u0"),
			october(t, "u1", "Game A"),
			october(t, "uN", "Game A", "Game B", "Game C", "Game D"),
		}
		for _, m := range saved {
			require.NoError(t, archive.Save(ctx, m))
		}

		loaded, err := archive.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, len(saved))

		for _, m := range saved {
			got, ok := loaded[m.URL()]
			require.True(t, ok)
			assert.True(t, got.Equal(m))
			wantID, _ := m.ID()
			gotID, _ := got.ID()
			assert.Equal(t, wantID, gotID)
			require.Equal(t, m.Len(), got.Len())
			for _, it := range m.Items() {
				li, ok := got.Item(it.Name())
				require.True(t, ok)
				assert.True(t, li.Equal(it))
				itID, _ := it.ID()
				liID, _ := li.ID()
				assert.Equal(t, itID, liID)
			}
		}
	})
}

func TestArchive_SaveItemBeforeMonth(t *testing.T) {
	forEachDriver(t, func(t *testing.T, store *sqlite.Store) {
		archive := bundle.NewArchive(store)
		ctx := context.Background()

		m := october(t, "u1")
		err := archive.SaveItem(ctx, m.NewItem("Game A"))
		assert.True(t, bundle.IsInvalidState(err))

		months, items, err := store.Counts(ctx)
		require.NoError(t, err)
		assert.Zero(t, months)
		assert.Zero(t, items)
	})
}

func TestArchive_ConcurrentSavesSameURL(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	archive := bundle.NewArchive(store)
	ctx := context.Background()

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- archive.Save(ctx, october(t, "u1", "Game A", "Game B"))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	months, items, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), months)
	assert.Equal(t, int64(2), items)
}

func TestStore_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	store, err := sqlite.New(path, sqlite.WithDriver(sqlite.DriverPure))
	require.NoError(t, err)
	m := october(t, "u1", "Game A")
	require.NoError(t, bundle.NewArchive(store).Save(ctx, m))
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path, sqlite.WithDriver(sqlite.DriverPure))
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := bundle.NewArchive(reopened).LoadAll(ctx)
	require.NoError(t, err)
	require.Contains(t, loaded, "u1")
	assert.Equal(t, 1, loaded["u1"].Len())
}
