package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/domain"
	localdb "github.com/iho/ledgersync/internal/infrastructure/sqlite"
	"github.com/iho/ledgersync/internal/usecase"
)

func TestCollection_PutManyIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	entries := NewCollection[*domain.Entry](newTestDB(t), domain.CollectionEntries)

	require.NoError(t, entries.PutMany(ctx, []*domain.Entry{
		{ID: "e1", AccountID: "a1", Number: "5", FirstAmount: 100},
	}))
	require.NoError(t, entries.PutMany(ctx, []*domain.Entry{
		{ID: "e1", AccountID: "a1", Number: "5", FirstAmount: 80},
	}))

	got, ok, err := entries.Get(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(80), got.FirstAmount)

	all, err := entries.Query(ctx, usecase.CacheFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCollection_GetMissing(t *testing.T) {
	accounts := NewCollection[*domain.Account](newTestDB(t), domain.CollectionAccounts)

	got, ok, err := accounts.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCollection_QueryFiltersByAccountAndPredicate(t *testing.T) {
	ctx := context.Background()
	entries := NewCollection[*domain.Entry](newTestDB(t), domain.CollectionEntries)

	require.NoError(t, entries.PutMany(ctx, []*domain.Entry{
		{ID: "e1", AccountID: "a1", FirstAmount: 10},
		{ID: "e2", AccountID: "a1", FirstAmount: 500},
		{ID: "e3", AccountID: "a2", FirstAmount: 900},
	}))

	got, err := entries.Query(ctx, usecase.CacheFilter{AccountID: "a1"}, func(e *domain.Entry) bool {
		return e.FirstAmount > 100
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].ID)
}

func TestCollection_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache(newTestDB(t))

	require.NoError(t, cache.Entries.PutMany(ctx, []*domain.Entry{{ID: "x", AccountID: "a1"}}))
	require.NoError(t, cache.Deductions.PutMany(ctx, []*domain.AdminDeduction{{ID: "x", EntryID: "x", AccountID: "a1"}}))

	require.NoError(t, cache.Entries.Clear(ctx))

	_, ok, err := cache.Deductions.Get(ctx, "x")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = cache.Entries.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCollection_Delete(t *testing.T) {
	ctx := context.Background()
	settings := NewCollection[*domain.Setting](newTestDB(t), domain.CollectionSettings)

	require.NoError(t, settings.PutMany(ctx, []*domain.Setting{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}))
	require.NoError(t, settings.Delete(ctx, "a", "missing"))

	all, err := settings.Query(ctx, usecase.CacheFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Key)
}

func TestCollection_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	db, err := localdb.Open(ctx, path)
	require.NoError(t, err)
	accounts := NewCollection[*domain.Account](db, domain.CollectionAccounts)
	require.NoError(t, accounts.PutMany(ctx, []*domain.Account{{ID: "a1", Balance: 1000}}))
	require.NoError(t, db.Close())

	db, err = localdb.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	got, ok, err := NewCollection[*domain.Account](db, domain.CollectionAccounts).Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got.Balance)
}
