package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rex8112/HumbleScrapperBot/bundle"
)

func TestMemory_FindMissIsNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.FindMonthByURL(ctx, "u1")
	assert.ErrorIs(t, err, bundle.ErrNotFound)

	_, err = m.FindItem(ctx, 1, "game a")
	assert.ErrorIs(t, err, bundle.ErrNotFound)
}

func TestMemory_UniqueKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
	require.NoError(t, err)

	_, err = m.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
	assert.ErrorIs(t, err, bundle.ErrDuplicateKey)

	_, err = m.InsertItem(ctx, bundle.ItemRecord{MonthID: id, Name: "Game A", NameKey: "game a"})
	require.NoError(t, err)
	_, err = m.InsertItem(ctx, bundle.ItemRecord{MonthID: id, Name: "GAME A", NameKey: "game a"})
	assert.ErrorIs(t, err, bundle.ErrDuplicateKey)
}

func TestMemory_FindItemFiltersByMonthAndName(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m1, _ := m.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
	m2, _ := m.InsertMonth(ctx, bundle.MonthRecord{Month: time.November, Year: 2023, URL: "u2"})
	_, err := m.InsertItem(ctx, bundle.ItemRecord{MonthID: m1, Name: "Game A", NameKey: "game a"})
	require.NoError(t, err)

	_, err = m.FindItem(ctx, m2, "game a")
	assert.ErrorIs(t, err, bundle.ErrNotFound, "same name in another month is a miss")

	rec, err := m.FindItem(ctx, m1, "game a")
	require.NoError(t, err)
	assert.Equal(t, m1, rec.MonthID)
}

func TestMemory_ItemRequiresMonth(t *testing.T) {
	m := NewMemory()
	_, err := m.InsertItem(context.Background(), bundle.ItemRecord{MonthID: 42, Name: "x", NameKey: "x"})
	assert.ErrorIs(t, err, bundle.ErrNotFound)
}

func TestMemory_UpdateMissingRow(t *testing.T) {
	m := NewMemory()
	err := m.UpdateMonth(context.Background(), bundle.MonthRecord{ID: 7, Month: time.May, Year: 2020, URL: "u"})
	assert.ErrorIs(t, err, bundle.ErrNotFound)
}

func TestTxMemory_RollbackRestoresEverything(t *testing.T) {
	tm := NewTxMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := tm.WithTx(ctx, func(s bundle.Store) error {
		id, err := s.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
		require.NoError(t, err)
		_, err = s.InsertItem(ctx, bundle.ItemRecord{MonthID: id, Name: "Game A", NameKey: "game a"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	months, items, err := tm.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, months)
	assert.Zero(t, items)

	id, err := tm.InsertMonth(ctx, bundle.MonthRecord{Month: time.October, Year: 2023, URL: "u1"})
	require.NoError(t, err)
	assert.Equal(t, bundle.ID(1), id, "id sequence rolled back too")
}

func TestTxMemory_ListOrdered(t *testing.T) {
	tm := NewTxMemory()
	ctx := context.Background()

	_, _ = tm.InsertMonth(ctx, bundle.MonthRecord{Month: time.March, Year: 2024, URL: "c"})
	_, _ = tm.InsertMonth(ctx, bundle.MonthRecord{Month: time.December, Year: 2023, URL: "b"})
	_, _ = tm.InsertMonth(ctx, bundle.MonthRecord{Month: time.January, Year: 2023, URL: "a"})

	all, err := tm.ListMonthsWithItems(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].URL, all[1].URL, all[2].URL})
}
