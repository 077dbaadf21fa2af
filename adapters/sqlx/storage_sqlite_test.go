package sqlx_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "signwise/adapters/sqlx"
	"signwise/core"
	"signwise/engine"
)

func newSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = filepath.Join(t.TempDir(), "streak.db")
	store, err := storage.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLite_RoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	day := core.MustParseDay("2026-07-04")

	require.NoError(t, store.SetInt(ctx, engine.KeyLongestStreak, 30))
	require.NoError(t, store.SetInt(ctx, engine.KeyLongestStreak, 31))
	require.NoError(t, store.SetDay(ctx, engine.KeyLastLearned, day))

	v, ok, err := store.GetInt(ctx, engine.KeyLongestStreak)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(31), v)

	d, ok, err := store.GetDay(ctx, engine.KeyLastLearned)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, day, d)

	_, _, err = store.GetInt(ctx, engine.KeyLastLearned)
	assert.ErrorIs(t, err, engine.ErrInvalidValue)

	require.NoError(t, store.Remove(ctx, engine.AllKeys...))
	_, ok, err = store.GetInt(ctx, engine.KeyLongestStreak)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_EngineSurvivesReopen(t *testing.T) {
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = filepath.Join(t.TempDir(), "streak.db")
	ctx := context.Background()
	clock := engine.NewManualClock(core.MustParseDay("2026-07-01"))

	store, err := storage.New(cfg)
	require.NoError(t, err)
	eng := engine.New(store, engine.WithClock(clock))
	require.NoError(t, eng.Load(ctx))
	for i := 0; i < 5; i++ {
		_, err := eng.RecordLearning(ctx)
		require.NoError(t, err)
		clock.Advance(1)
	}
	require.NoError(t, store.Close())

	reopened, err := storage.New(cfg)
	require.NoError(t, err)
	defer reopened.Close()
	next := engine.New(reopened, engine.WithClock(clock))
	require.NoError(t, next.Load(ctx))
	assert.Equal(t, 5, next.State().CurrentStreak)
	assert.Equal(t, "🎉", next.Status().Emoji)
}

func TestSQLite_KeysMatchPrefixLiterally(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Apply(ctx, []engine.Mutation{
		engine.SetIntMutation("device:a_b:currentStreak", 1),
		engine.SetIntMutation("device:axb:currentStreak", 2),
		engine.SetIntMutation("device:a_b:longestStreak", 3),
	}))

	keys, err := store.Keys(ctx, "device:a_b:")
	require.NoError(t, err)
	assert.Equal(t, []string{"device:a_b:currentStreak", "device:a_b:longestStreak"}, keys)

	all, err := store.Keys(ctx, "device:")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
