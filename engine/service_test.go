package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "signwise/adapters/memory"
	"signwise/core"
	"signwise/engine"
)

var start = core.MustParseDay("2026-04-01")

func newEngine(t *testing.T, store engine.KeyValueStore) (*engine.StreakEngine, *engine.ManualClock, *engine.EventBus) {
	t.Helper()
	clock := engine.NewManualClock(start)
	bus := engine.NewEventBus(engine.DispatchSync)
	eng := engine.New(store, engine.WithClock(clock), engine.WithBus(bus))
	require.NoError(t, eng.Load(context.Background()))
	return eng, clock, bus
}

func collect(bus *engine.EventBus) *[]core.Event {
	var mu sync.Mutex
	var got []core.Event
	bus.SubscribeAll(func(_ context.Context, e core.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	return &got
}

func TestNoEventsEver(t *testing.T) {
	eng, _, _ := newEngine(t, mem.New())
	st := eng.State()
	assert.Equal(t, 0, st.CurrentStreak)
	assert.False(t, st.HasActivity())
	assert.Equal(t, "⏳", eng.Status().Emoji)
	assert.False(t, eng.IsActive())
}

func TestSevenDaysNoGaps(t *testing.T) {
	eng, clock, _ := newEngine(t, mem.New())
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := eng.RecordLearning(ctx)
		require.NoError(t, err)
		clock.Advance(1)
	}
	clock.Advance(-1)
	assert.Equal(t, 7, eng.State().CurrentStreak)
	assert.Equal(t, "🔥", eng.Status().Emoji)
	assert.Equal(t, "🔥 A full week!", eng.MilestoneMessage())
	assert.Equal(t, 7, eng.DaysUntilNextMilestone())
}

func TestSameDayRepeats(t *testing.T) {
	eng, _, bus := newEngine(t, mem.New())
	events := collect(bus)
	ctx := context.Background()

	_, err := eng.RecordLearning(ctx)
	require.NoError(t, err)
	for i := 2; i <= 3; i++ {
		res, err := eng.RecordLearning(ctx)
		require.NoError(t, err)
		assert.Empty(t, res.Events)
		assert.Equal(t, 1, res.State.CurrentStreak)
		assert.Equal(t, i, res.State.SignsToday)
	}
	assert.Len(t, *events, 1, "only the first event of the day emits")
	assert.Equal(t, 3, eng.Snapshot().SignsToday)
}

func TestStreakBrokenAfterGap(t *testing.T) {
	eng, clock, bus := newEngine(t, mem.New())
	events := collect(bus)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := eng.RecordLearning(ctx)
		require.NoError(t, err)
		clock.Advance(1)
	}
	clock.Advance(3)
	*events = nil

	res, err := eng.RecordLearning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CurrentStreak)
	assert.Equal(t, 5, res.State.LongestStreak)
	require.Len(t, *events, 1)
	assert.Equal(t, core.EventStreakBroken, (*events)[0].Kind)
	assert.Equal(t, 5, (*events)[0].Streak)
}

func TestCheckStatusClearsStaleStreak(t *testing.T) {
	store := mem.New()
	eng, clock, bus := newEngine(t, store)
	events := collect(bus)
	ctx := context.Background()
	_, _ = eng.RecordLearning(ctx)
	clock.Advance(1)
	_, _ = eng.RecordLearning(ctx)
	*events = nil

	clock.Advance(1)
	changed, err := eng.CheckStatus(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "yesterday keeps the streak alive")
	assert.Equal(t, "💪", eng.Status().Emoji)

	clock.Advance(1)
	assert.Equal(t, "😢", eng.Status().Emoji, "lapsed streak before the check runs")
	changed, err = eng.CheckStatus(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 0, eng.State().CurrentStreak)
	assert.Equal(t, 2, eng.State().LongestStreak)
	assert.Empty(t, *events)

	v, ok, err := store.GetInt(ctx, engine.KeyCurrentStreak)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), v)
}

func TestStatePersistsAcrossLoad(t *testing.T) {
	store := mem.New()
	eng, clock, _ := newEngine(t, store)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := eng.RecordLearning(ctx)
		require.NoError(t, err)
		clock.Advance(1)
	}
	clock.Advance(-1)
	_, _ = eng.RecordLearning(ctx)

	reloaded := engine.New(store, engine.WithClock(clock))
	require.NoError(t, reloaded.Load(ctx))
	st := reloaded.State()
	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 3, st.LongestStreak)
	assert.Equal(t, clock.Today(), st.LastActivity)
	assert.Equal(t, 2, st.SignsToday)
}

func TestLoadRollsDailyCounter(t *testing.T) {
	store := mem.New()
	eng, clock, _ := newEngine(t, store)
	ctx := context.Background()
	_, _ = eng.RecordLearning(ctx)
	_, _ = eng.RecordLearning(ctx)

	clock.Advance(1)
	reloaded := engine.New(store, engine.WithClock(clock))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 0, reloaded.State().SignsToday)
	assert.Equal(t, clock.Today(), reloaded.State().CountedDay)

	d, ok, err := store.GetDay(ctx, engine.KeyTodayDate)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, clock.Today(), d)
	assert.Equal(t, 1, reloaded.State().CurrentStreak, "load alone never changes the streak")
}

func TestResetThenLoad(t *testing.T) {
	store := mem.New()
	eng, clock, bus := newEngine(t, store)
	events := collect(bus)
	ctx := context.Background()
	_, _ = eng.RecordLearning(ctx)
	clock.Advance(1)
	_, _ = eng.RecordLearning(ctx)
	*events = nil

	require.NoError(t, eng.Reset(ctx))
	assert.Empty(t, *events)
	assert.Equal(t, 0, store.Len())

	require.NoError(t, eng.Load(ctx))
	st := eng.State()
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 0, st.LongestStreak)
	assert.False(t, st.HasActivity())
}

func TestCorruptPersistedValueTreatedAsAbsent(t *testing.T) {
	store := mem.New()
	ctx := context.Background()
	require.NoError(t, store.SetInt(ctx, engine.KeyCurrentStreak, 4))
	require.NoError(t, store.SetInt(ctx, engine.KeyLongestStreak, 4))
	require.NoError(t, store.SetInt(ctx, engine.KeyLastLearned, 12345))

	eng := engine.New(store, engine.WithClock(engine.NewManualClock(start)))
	require.NoError(t, eng.Load(ctx))
	st := eng.State()
	assert.False(t, st.HasActivity())
	assert.Equal(t, 0, st.CurrentStreak, "streak without a valid activity day is zero")
	assert.Equal(t, 4, st.LongestStreak)
}

func TestConcurrentRecordLearningIncrementsOnce(t *testing.T) {
	eng, clock, _ := newEngine(t, mem.New())
	ctx := context.Background()
	_, err := eng.RecordLearning(ctx)
	require.NoError(t, err)
	clock.Advance(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = eng.RecordLearning(ctx)
		}()
	}
	wg.Wait()

	st := eng.State()
	assert.Equal(t, 2, st.CurrentStreak)
	assert.Equal(t, 50, st.SignsToday)
}

// failingStore fails every write once armed.
type failingStore struct {
	*mem.Store
	mu   sync.Mutex
	fail bool
}

var errDown = errors.New("disk unavailable")

func (f *failingStore) arm(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *failingStore) down() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *failingStore) Apply(ctx context.Context, muts []engine.Mutation) error {
	if f.down() {
		return errDown
	}
	return f.Store.Apply(ctx, muts)
}

func (f *failingStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	if f.down() {
		return 0, false, errDown
	}
	return f.Store.GetInt(ctx, key)
}

func TestStorageFailureKeepsInMemoryState(t *testing.T) {
	store := &failingStore{Store: mem.New()}
	eng, clock, bus := newEngine(t, store)
	events := collect(bus)
	ctx := context.Background()

	store.arm(true)
	res, err := eng.RecordLearning(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrStorageUnavailable)
	assert.Equal(t, 1, res.State.CurrentStreak)
	assert.Equal(t, 1, eng.State().CurrentStreak)
	assert.Len(t, *events, 1, "notifications still go out")

	store.arm(false)
	clock.Advance(1)
	_, err = eng.RecordLearning(ctx)
	require.NoError(t, err)

	reloaded := engine.New(store, engine.WithClock(clock))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 2, reloaded.State().CurrentStreak)
}

func TestLoadFailureFallsBackToDefaults(t *testing.T) {
	store := &failingStore{Store: mem.New()}
	store.arm(true)
	eng := engine.New(store, engine.WithClock(engine.NewManualClock(start)))
	err := eng.Load(context.Background())
	require.ErrorIs(t, err, engine.ErrStorageUnavailable)
	assert.Equal(t, core.State{}, eng.State())
	assert.Equal(t, "⏳", eng.Status().Emoji)
}

func TestMutationAfterFailedLoadKeepsStoredHistory(t *testing.T) {
	store := &failingStore{Store: mem.New()}
	ctx := context.Background()
	yesterday := start.AddDays(-1)
	require.NoError(t, store.Apply(ctx, []engine.Mutation{
		engine.SetIntMutation(engine.KeyCurrentStreak, 4),
		engine.SetIntMutation(engine.KeyLongestStreak, 20),
		engine.SetDayMutation(engine.KeyLastLearned, yesterday),
	}))

	store.arm(true)
	eng := engine.New(store, engine.WithClock(engine.NewManualClock(start)))
	require.Error(t, eng.Load(ctx))
	assert.False(t, eng.Loaded())

	changed, err := eng.CheckStatus(ctx)
	require.ErrorIs(t, err, engine.ErrStorageUnavailable)
	assert.False(t, changed)

	store.arm(false)
	res, err := eng.RecordLearning(ctx)
	require.NoError(t, err)
	assert.True(t, eng.Loaded())
	assert.Equal(t, 5, res.State.CurrentStreak)
	assert.Equal(t, 20, res.State.LongestStreak)

	longest, _, err := store.GetInt(ctx, engine.KeyLongestStreak)
	require.NoError(t, err)
	assert.Equal(t, int64(20), longest)
}

func TestPanickingSubscriberDoesNotAffectState(t *testing.T) {
	eng, _, bus := newEngine(t, mem.New())
	bus.Subscribe(core.EventNewRecord, func(context.Context, core.Event) { panic("sink exploded") })
	res, err := eng.RecordLearning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CurrentStreak)
}

func TestLongestNeverBelowCurrent(t *testing.T) {
	eng, clock, _ := newEngine(t, mem.New())
	ctx := context.Background()
	for _, step := range []int{0, 1, 1, 0, 3, 1, 1, 1, 5, 1} {
		clock.Advance(step)
		_, _ = eng.CheckStatus(ctx)
		_, _ = eng.RecordLearning(ctx)
		st := eng.State()
		require.GreaterOrEqual(t, st.LongestStreak, st.CurrentStreak)
	}
}
