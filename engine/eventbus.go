package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"signwise/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// Handler receives a published event.
type Handler func(context.Context, core.Event)

type subscription struct {
	id   int64
	kind core.EventKind
	fn   Handler
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
// Publishing never blocks on subscribers in async mode: a full queue drops
// the event.
type EventBus struct {
	mode       DispatchMode
	mu         sync.RWMutex
	subs       map[core.EventKind]map[int64]subscription
	nextID     int64
	asyncQueue chan core.Event
	workers    int
	dropped    atomic.Int64
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
}

func NewEventBus(mode DispatchMode) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		mode:       mode,
		subs:       make(map[core.EventKind]map[int64]subscription),
		asyncQueue: make(chan core.Event, 1024),
		workers:    2,
		ctx:        ctx,
		cancel:     cancel,
		logger:     slog.Default(),
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case ev := <-e.asyncQueue:
					e.dispatch(context.Background(), ev)
				case <-e.ctx.Done():
					e.drain()
					return
				}
			}
		}()
	}
}

// drain delivers whatever is still queued at shutdown.
func (e *EventBus) drain() {
	for {
		select {
		case ev := <-e.asyncQueue:
			e.dispatch(context.Background(), ev)
		default:
			return
		}
	}
}

// Close stops async workers after the queue is drained.
func (e *EventBus) Close() {
	e.cancel()
	e.wg.Wait()
}

// Dropped returns how many events were discarded because the queue was full.
func (e *EventBus) Dropped() int64 { return e.dropped.Load() }

// Subscribe registers a handler for an event kind. Returns unsubscribe func.
func (e *EventBus) Subscribe(kind core.EventKind, handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[kind] == nil {
		e.subs[kind] = make(map[int64]subscription)
	}
	e.subs[kind][id] = subscription{id: id, kind: kind, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[kind]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers handler for every event kind.
func (e *EventBus) SubscribeAll(handler Handler) func() {
	unsubs := make([]func(), 0, len(core.AllEventKinds))
	for _, k := range core.AllEventKinds {
		unsubs = append(unsubs, e.Subscribe(k, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish sends an event to subscribers.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		select {
		case e.asyncQueue <- ev:
		default:
			e.dropped.Add(1)
			e.logger.Warn("event queue full, dropping event", "kind", ev.Kind, "device", ev.Device)
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	subs := e.subs[ev.Kind]
	// copy to avoid holding lock during callbacks
	handlers := make([]Handler, 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		e.safeCall(ctx, h, ev)
	}
}

// safeCall isolates a panicking subscriber so the publisher is never affected.
func (e *EventBus) safeCall(ctx context.Context, h Handler, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	h(ctx, ev)
}
