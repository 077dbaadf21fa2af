package notify

import (
	"context"
	"log/slog"
	"sync/atomic"

	"signwise/core"
	"signwise/engine"
)

// NotificationSink delivers a rendered notification somewhere.
type NotificationSink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// Dispatcher renders bus events and hands them to every sink. Delivery is
// fire-and-forget: a failing sink is logged and counted, never reported back
// to the publisher.
type Dispatcher struct {
	sinks     []NotificationSink
	logger    *slog.Logger
	delivered atomic.Int64
	failed    atomic.Int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(sinks []NotificationSink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sinks: append([]NotificationSink{}, sinks...), logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Attach subscribes the dispatcher to every event kind on bus.
func (d *Dispatcher) Attach(bus *engine.EventBus) func() {
	return bus.SubscribeAll(d.Handle)
}

// Handle renders ev and delivers it. It satisfies engine.Handler.
func (d *Dispatcher) Handle(ctx context.Context, ev core.Event) {
	n := Render(ev)
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			d.failed.Add(1)
			d.logger.Warn("notification delivery failed", "kind", n.Kind, "device", n.Device, "error", err)
			continue
		}
		d.delivered.Add(1)
	}
}

// Stats reports delivery counts since start.
func (d *Dispatcher) Stats() (delivered, failed int64) {
	return d.delivered.Load(), d.failed.Load()
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Deliver(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"kind", n.Kind,
		"device", n.Device,
		"title", n.Title,
		"body", n.Body,
		"badge", n.Badge,
	)
	return nil
}
