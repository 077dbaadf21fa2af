package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signwise/core"
	"signwise/engine"
)

var day = core.MustParseDay("2026-10-05")

func TestRenderPerKind(t *testing.T) {
	tests := []struct {
		ev    core.Event
		title string
		body  string
	}{
		{core.NewStreakIncrease(day, 4), "🎉 +1 STREAK!", "4 days in a row – keep it up!"},
		{core.NewStreakBroken(day, 6), "😢 Streak Broken!", "Start again today. Learn one sign!"},
		{core.NewRecord(day, 12), "🏆 NEW RECORD!", "12 day streak – your personal best!"},
		{core.NewDailyReminder(day, 3), "⏰ Daily Reminder", "One sign a day – 5 minutes is enough!"},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Kind), func(t *testing.T) {
			n := Render(tt.ev.ForDevice("ipad"))
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, tt.body, n.Body)
			assert.Equal(t, tt.ev.Streak, n.Badge)
			assert.Equal(t, core.DeviceID("ipad"), n.Device)
			assert.Len(t, n.ID, 36)
		})
	}
}

func TestRenderMotivational(t *testing.T) {
	n := RenderWith(core.NewMotivational(day, 2), func(int) int { return 2 })
	assert.Equal(t, "📚 Knowledge is power!", n.Title)
	assert.Equal(t, "Continue learning", n.Body)

	n = RenderWith(core.NewMotivational(day, 2), func(int) int { return -1 })
	assert.Equal(t, "💪 Keep Going!", n.Title)

	n = Render(core.NewMotivational(day, 2))
	assert.NotEmpty(t, n.Title)
}

func TestRenderIDsAreUnique(t *testing.T) {
	a := Render(core.NewRecord(day, 1))
	b := Render(core.NewRecord(day, 1))
	assert.NotEqual(t, a.ID, b.ID)
}

type recordingSink struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recordingSink) Deliver(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func TestDispatcherFansOutAndSwallowsErrors(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	rec := &recordingSink{}
	failing := SinkFunc(func(context.Context, Notification) error { return errors.New("offline") })
	d := NewDispatcher([]NotificationSink{failing, rec})
	unsub := d.Attach(bus)

	bus.Publish(context.Background(), core.NewStreakIncrease(day, 2))
	bus.Publish(context.Background(), core.NewRecord(day, 2))

	require.Len(t, rec.got, 2)
	assert.Equal(t, core.EventStreakIncrease, rec.got[0].Kind)
	delivered, failed := d.Stats()
	assert.Equal(t, int64(2), delivered)
	assert.Equal(t, int64(2), failed)

	unsub()
	bus.Publish(context.Background(), core.NewRecord(day, 3))
	assert.Len(t, rec.got, 2)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, sink.Deliver(context.Background(), Render(core.NewDailyReminder(day, 0))))
	assert.True(t, strings.Contains(buf.String(), "Daily Reminder"))
}

func TestSchedulerRemindPerTarget(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	var got []core.Event
	bus.Subscribe(core.EventDailyReminder, func(_ context.Context, e core.Event) { got = append(got, e) })

	targets := func(context.Context) []engine.Snapshot {
		return []engine.Snapshot{
			{Device: "a", State: core.State{CurrentStreak: 3}},
			{Device: "b"},
		}
	}
	s, err := NewScheduler(bus, time.UTC,
		WithSchedulerClock(engine.NewManualClock(day)),
		WithTargets(targets),
	)
	require.NoError(t, err)
	s.Remind(context.Background())

	require.Len(t, got, 2)
	assert.Equal(t, core.DeviceID("a"), got[0].Device)
	assert.Equal(t, 3, got[0].Streak)
	assert.Equal(t, day, got[1].Day)
}

func TestSchedulerRemindBroadcast(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	count := 0
	bus.Subscribe(core.EventDailyReminder, func(context.Context, core.Event) { count++ })
	s, err := NewScheduler(bus, nil)
	require.NoError(t, err)
	s.Remind(context.Background())
	assert.Equal(t, 1, count)
	assert.Zero(t, s.MotivateIdle(context.Background()))
}

func TestSchedulerMotivateIdle(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	var got []core.Event
	bus.Subscribe(core.EventMotivational, func(_ context.Context, e core.Event) { got = append(got, e) })
	s, err := NewScheduler(bus, time.UTC,
		WithSchedulerClock(engine.NewManualClock(day)),
		WithTargets(func(context.Context) []engine.Snapshot {
			return []engine.Snapshot{
				{Device: "busy", State: core.State{CurrentStreak: 4}, SignsToday: 2},
				{Device: "idle", State: core.State{CurrentStreak: 9}},
			}
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, s.MotivateIdle(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, core.DeviceID("idle"), got[0].Device)
	assert.Equal(t, 9, got[0].Streak)
	assert.Equal(t, day, got[0].Day)
}

func TestSchedulerRejectsBadTime(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	_, err := NewScheduler(bus, time.UTC, WithReminderAt("9am"))
	assert.Error(t, err)
	_, err = NewScheduler(bus, time.UTC, WithMotivationAt("25:00"))
	assert.Error(t, err)
	_, err = NewScheduler(nil, time.UTC)
	assert.Error(t, err)
}

func TestSchedulerStartSchedulesDaily(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	s, err := NewScheduler(bus, time.UTC, WithReminderAt("07:30"))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	next, ok := s.NextRun()
	require.True(t, ok)
	next = next.In(time.UTC)
	assert.Equal(t, 7, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.True(t, next.After(time.Now().Add(-time.Minute)))
}

func TestSchedulerStartSchedulesMotivation(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	s, err := NewScheduler(bus, time.UTC, WithReminderAt("07:30"), WithMotivationAt("19:45"))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	next, ok := s.NextMotivation()
	require.True(t, ok)
	next = next.In(time.UTC)
	assert.Equal(t, 19, next.Hour())
	assert.Equal(t, 45, next.Minute())
}

func TestSchedulerWithoutMotivation(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	s, err := NewScheduler(bus, time.UTC)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	_, ok := s.NextMotivation()
	assert.False(t, ok)
}
