package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "signwise/adapters/memory"
	"signwise/core"
	"signwise/engine"
)

func TestRegistryIsolatesDevices(t *testing.T) {
	store := mem.New()
	clock := engine.NewManualClock(start)
	reg := engine.NewRegistry(store, engine.WithRegistryClock(clock))
	ctx := context.Background()

	_, err := reg.RecordLearning(ctx, "Tablet-1")
	require.NoError(t, err)
	clock.Advance(1)
	res, err := reg.RecordLearning(ctx, "tablet-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.CurrentStreak)

	res, err = reg.RecordLearning(ctx, "phone")
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CurrentStreak)

	assert.Equal(t, []core.DeviceID{"phone", "tablet-1"}, reg.Devices())

	v, ok, err := store.GetInt(ctx, engine.DevicePrefix("tablet-1")+engine.KeyCurrentStreak)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestRegistryEventsCarryDevice(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	events := collect(bus)
	reg := engine.NewRegistry(mem.New(),
		engine.WithRegistryClock(engine.NewManualClock(start)),
		engine.WithRegistryBus(bus),
	)
	_, err := reg.RecordLearning(context.Background(), "kiosk")
	require.NoError(t, err)
	require.Len(t, *events, 1)
	assert.Equal(t, core.DeviceID("kiosk"), (*events)[0].Device)
}

func TestRegistryObserverAndReset(t *testing.T) {
	var snaps []engine.Snapshot
	clock := engine.NewManualClock(start)
	reg := engine.NewRegistry(mem.New(),
		engine.WithRegistryClock(clock),
		engine.WithObserver(func(_ context.Context, s engine.Snapshot) { snaps = append(snaps, s) }),
	)
	ctx := context.Background()
	_, err := reg.RecordLearning(ctx, "a")
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	assert.Equal(t, 1, snaps[len(snaps)-1].State.LongestStreak)

	require.NoError(t, reg.Reset(ctx, "a"))
	last := snaps[len(snaps)-1]
	assert.Equal(t, 0, last.State.LongestStreak)
	assert.Equal(t, "⏳", last.Status.Emoji)
}

func TestRegistryCheckStatusAfterGap(t *testing.T) {
	clock := engine.NewManualClock(start)
	reg := engine.NewRegistry(mem.New(), engine.WithRegistryClock(clock))
	ctx := context.Background()
	_, err := reg.RecordLearning(ctx, "a")
	require.NoError(t, err)

	clock.Advance(2)
	snap, err := reg.CheckStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.State.CurrentStreak)
	assert.Equal(t, "⏳", snap.Status.Emoji)
}

func TestRegistryRejectsBadDeviceID(t *testing.T) {
	reg := engine.NewRegistry(mem.New())
	_, err := reg.RecordLearning(context.Background(), "bad id!")
	assert.Error(t, err)
	_, err = reg.Snapshot(context.Background(), "  ")
	assert.Error(t, err)
}

func TestPrefixedKeepsBatching(t *testing.T) {
	store := mem.New()
	p := engine.Prefixed(store, "x:")
	_, ok := p.(engine.BatchStore)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, engine.Apply(ctx, p, []engine.Mutation{engine.SetIntMutation("k", 7)}))
	v, ok, err := store.GetInt(ctx, "x:k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	require.NoError(t, p.Remove(ctx, "k"))
	assert.Equal(t, 0, store.Len())
}

func seedDevice(t *testing.T, store engine.KeyValueStore, device core.DeviceID, current, longest int, last core.Day) {
	t.Helper()
	p := engine.Prefixed(store, engine.DevicePrefix(device))
	ctx := context.Background()
	require.NoError(t, engine.Apply(ctx, p, []engine.Mutation{
		engine.SetIntMutation(engine.KeyCurrentStreak, int64(current)),
		engine.SetIntMutation(engine.KeyLongestStreak, int64(longest)),
		engine.SetDayMutation(engine.KeyLastLearned, last),
		engine.SetIntMutation(engine.KeySignsToday, 1),
		engine.SetDayMutation(engine.KeyTodayDate, last),
	}))
}

func storedStreaks(t *testing.T, store engine.KeyValueStore, device core.DeviceID) (current, longest int64) {
	t.Helper()
	p := engine.Prefixed(store, engine.DevicePrefix(device))
	ctx := context.Background()
	current, _, err := p.GetInt(ctx, engine.KeyCurrentStreak)
	require.NoError(t, err)
	longest, _, err = p.GetInt(ctx, engine.KeyLongestStreak)
	require.NoError(t, err)
	return current, longest
}

func TestRegistryRecoversFromFailedLoad(t *testing.T) {
	store := &failingStore{Store: mem.New()}
	seedDevice(t, store, "ipad", 9, 50, start.AddDays(-1))

	bus := engine.NewEventBus(engine.DispatchSync)
	events := collect(bus)
	var snaps []engine.Snapshot
	reg := engine.NewRegistry(store,
		engine.WithRegistryClock(engine.NewManualClock(start)),
		engine.WithRegistryBus(bus),
		engine.WithObserver(func(_ context.Context, s engine.Snapshot) { snaps = append(snaps, s) }),
	)
	ctx := context.Background()

	store.arm(true)
	snap, err := reg.Snapshot(ctx, "ipad")
	require.ErrorIs(t, err, engine.ErrStorageUnavailable)
	assert.Zero(t, snap.State.LongestStreak)
	assert.Empty(t, snaps, "observers never see unloaded defaults")

	store.arm(false)
	res, err := reg.RecordLearning(ctx, "ipad")
	require.NoError(t, err)
	assert.Equal(t, 10, res.State.CurrentStreak)
	assert.Equal(t, 50, res.State.LongestStreak)
	require.Len(t, *events, 1)
	assert.Equal(t, core.EventStreakIncrease, (*events)[0].Kind)

	current, longest := storedStreaks(t, store, "ipad")
	assert.Equal(t, int64(10), current)
	assert.Equal(t, int64(50), longest)
	require.NotEmpty(t, snaps)
	assert.Equal(t, 50, snaps[len(snaps)-1].State.LongestStreak)
}

func TestRegistryReplaysLearningRecordedWhileDown(t *testing.T) {
	store := &failingStore{Store: mem.New()}
	seedDevice(t, store, "ipad", 9, 50, start.AddDays(-1))

	bus := engine.NewEventBus(engine.DispatchSync)
	events := collect(bus)
	reg := engine.NewRegistry(store,
		engine.WithRegistryClock(engine.NewManualClock(start)),
		engine.WithRegistryBus(bus),
	)
	ctx := context.Background()

	store.arm(true)
	res, err := reg.RecordLearning(ctx, "ipad")
	require.ErrorIs(t, err, engine.ErrStorageUnavailable)
	assert.Equal(t, 1, res.State.CurrentStreak, "in-memory view while down")
	assert.Empty(t, *events)

	current, longest := storedStreaks(t, store.Store, "ipad")
	assert.Equal(t, int64(9), current, "stored history untouched")
	assert.Equal(t, int64(50), longest)

	store.arm(false)
	snap, err := reg.Snapshot(ctx, "ipad")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.State.CurrentStreak)
	assert.Equal(t, 50, snap.State.LongestStreak)
	assert.Equal(t, 1, snap.SignsToday)

	current, longest = storedStreaks(t, store, "ipad")
	assert.Equal(t, int64(10), current)
	assert.Equal(t, int64(50), longest)
}

// slowStore blocks reads of one device until release is closed.
type slowStore struct {
	*mem.Store
	prefix  string
	release chan struct{}
}

func (s *slowStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	if strings.HasPrefix(key, s.prefix) {
		<-s.release
	}
	return s.Store.GetInt(ctx, key)
}

func TestRegistryLoadDoesNotBlockOtherDevices(t *testing.T) {
	store := &slowStore{Store: mem.New(), prefix: engine.DevicePrefix("slow"), release: make(chan struct{})}
	reg := engine.NewRegistry(store, engine.WithRegistryClock(engine.NewManualClock(start)))
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		_, err := reg.RecordLearning(ctx, "slow")
		slowDone <- err
	}()

	fastDone := make(chan error, 1)
	go func() {
		_, err := reg.RecordLearning(ctx, "fast")
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fast device waited on slow device load")
	}

	close(store.release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, []core.DeviceID{"fast", "slow"}, reg.Devices())
}

func TestRegistryDiscoverFindsStoredDevices(t *testing.T) {
	store := mem.New()
	seedDevice(t, store, "ipad", 3, 7, start.AddDays(-1))
	seedDevice(t, store, "tv", 1, 1, start.AddDays(-5))
	require.NoError(t, store.SetInt(context.Background(), "healthcheck:ping", 1))

	var snaps []engine.Snapshot
	reg := engine.NewRegistry(store,
		engine.WithRegistryClock(engine.NewManualClock(start)),
		engine.WithObserver(func(_ context.Context, s engine.Snapshot) { snaps = append(snaps, s) }),
	)
	n, err := reg.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []core.DeviceID{"ipad", "tv"}, reg.Devices())
	assert.Len(t, snaps, 2)

	snap, err := reg.Snapshot(context.Background(), "tv")
	require.NoError(t, err)
	assert.Zero(t, snap.State.CurrentStreak, "stale streak cleared on discovery")
}

// plainStore hides the memory store's key listing.
type plainStore struct{ engine.KeyValueStore }

func TestRegistryDiscoverWithoutListing(t *testing.T) {
	store := mem.New()
	seedDevice(t, store, "ipad", 3, 7, start)
	reg := engine.NewRegistry(plainStore{store})
	n, err := reg.Discover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, reg.Devices())
}
