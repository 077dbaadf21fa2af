package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"signwise/core"
)

var day = core.MustParseDay("2026-03-10")

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventStreakIncrease, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewStreakIncrease(day, 2))
	bus.Publish(context.Background(), core.NewRecord(day, 2))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventStreakIncrease, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewStreakIncrease(day, 2))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	unsub := bus.Subscribe(core.EventStreakBroken, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewStreakBroken(day, 4))
	unsub()
	bus.Publish(context.Background(), core.NewStreakBroken(day, 4))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var kinds []core.EventKind
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { kinds = append(kinds, e.Kind) })
	bus.Publish(context.Background(), core.NewDailyReminder(day, 0))
	bus.Publish(context.Background(), core.NewRecord(day, 9))
	if len(kinds) != 2 || kinds[0] != core.EventDailyReminder || kinds[1] != core.EventNewRecord {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}

func TestEventBusPanicIsolated(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var after atomic.Int32
	bus.Subscribe(core.EventNewRecord, func(ctx context.Context, e core.Event) { panic("boom") })
	bus.Subscribe(core.EventNewRecord, func(ctx context.Context, e core.Event) { after.Add(1) })
	bus.Publish(context.Background(), core.NewRecord(day, 3))
	if after.Load() != 1 {
		t.Fatal("second subscriber should still run")
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var seen atomic.Int32
	bus.Subscribe(core.EventStreakIncrease, func(ctx context.Context, e core.Event) { seen.Add(1) })
	for i := 0; i < 100; i++ {
		bus.Publish(context.Background(), core.NewStreakIncrease(day, i+1))
	}
	bus.Close()
	if got := seen.Load() + int32(bus.Dropped()); got != 100 {
		t.Fatalf("delivered+dropped = %d, want 100", got)
	}
}
