// Package streaks assembles a ready-to-use streak service from the engine,
// realtime, leaderboard, analytics and notify packages.
package streaks

import (
	"context"
	"log/slog"
	"time"

	mem "signwise/adapters/memory"
	"signwise/analytics"
	"signwise/engine"
	"signwise/leaderboard"
	"signwise/notify"
	"signwise/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	storage    engine.KeyValueStore
	clock      engine.Clock
	mode       engine.DispatchMode
	hub        *realtime.Hub
	board      leaderboard.Board
	metrics    *analytics.Metrics
	sinks      []notify.NotificationSink
	reminderAt string
	motivateAt string
	location   *time.Location
	logger     *slog.Logger
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.KeyValueStore) Option { return func(c *config) { c.storage = s } }

// WithClock sets the clock every device engine reads today from.
func WithClock(clk engine.Clock) Option { return func(c *config) { c.clock = clk } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all events and snapshots.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard replaces the default skip list board.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithMetrics replaces the default in-memory metrics.
func WithMetrics(m *analytics.Metrics) Option { return func(c *config) { c.metrics = m } }

// WithSinks adds notification sinks. Without any, notifications are not rendered.
func WithSinks(s ...notify.NotificationSink) Option {
	return func(c *config) { c.sinks = append(c.sinks, s...) }
}

// WithReminder enables the daily reminder at HH:MM in loc.
func WithReminder(at string, loc *time.Location) Option {
	return func(c *config) { c.reminderAt, c.location = at, loc }
}

// WithMotivation adds a daily HH:MM nudge for devices that have not learned
// yet that day. It takes effect together with WithReminder.
func WithMotivation(at string) Option { return func(c *config) { c.motivateAt = at } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// Service is the assembled streak service.
type Service struct {
	Registry   *engine.Registry
	Clock      engine.Clock
	Bus        *engine.EventBus
	Hub        *realtime.Hub
	Board      leaderboard.Board
	Metrics    *analytics.Metrics
	Dispatcher *notify.Dispatcher
	// Scheduler is nil unless WithReminder was given.
	Scheduler *notify.Scheduler

	logger *slog.Logger
}

// New builds a Service. If not provided, defaults are used:
//   - storage: in-memory
//   - clock: system clock in the local zone
//   - dispatch: async
//   - leaderboard: skip list
func New(opts ...Option) (*Service, error) {
	cfg := &config{mode: engine.DispatchAsync, logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.clock == nil {
		cfg.clock = engine.SystemClock{Location: cfg.location}
	}
	if cfg.board == nil {
		cfg.board = leaderboard.NewSkipList()
	}
	if cfg.metrics == nil {
		cfg.metrics = analytics.NewMetrics()
	}

	bus := engine.NewEventBus(cfg.mode)
	bus.SubscribeAll(analytics.NewBridge(cfg.metrics).Handle)

	regOpts := []engine.RegistryOption{
		engine.WithRegistryClock(cfg.clock),
		engine.WithRegistryBus(bus),
		engine.WithRegistryLogger(cfg.logger),
		engine.WithObserver(leaderboard.Observer(cfg.board)),
		engine.WithObserver(cfg.metrics.Observe),
	}
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.BroadcastEvent)
		regOpts = append(regOpts, engine.WithObserver(cfg.hub.BroadcastSnapshot))
	}

	svc := &Service{
		logger:   cfg.logger,
		Registry: engine.NewRegistry(cfg.storage, regOpts...),
		Clock:    cfg.clock,
		Bus:      bus,
		Hub:      cfg.hub,
		Board:    cfg.board,
		Metrics:  cfg.metrics,
		Dispatcher: notify.NewDispatcher(cfg.sinks,
			notify.WithDispatcherLogger(cfg.logger)),
	}
	if len(cfg.sinks) > 0 {
		svc.Dispatcher.Attach(bus)
	}

	if cfg.reminderAt != "" {
		sched, err := notify.NewScheduler(bus, cfg.location,
			notify.WithReminderAt(cfg.reminderAt),
			notify.WithMotivationAt(cfg.motivateAt),
			notify.WithSchedulerClock(cfg.clock),
			notify.WithTargets(svc.Snapshots),
			notify.WithSchedulerLogger(cfg.logger),
		)
		if err != nil {
			bus.Close()
			return nil, err
		}
		svc.Scheduler = sched
	}
	return svc, nil
}

// Snapshots returns the current view of every known device.
func (s *Service) Snapshots(ctx context.Context) []engine.Snapshot {
	devices := s.Registry.Devices()
	out := make([]engine.Snapshot, 0, len(devices))
	for _, d := range devices {
		snap, err := s.Registry.Snapshot(ctx, d)
		if err != nil && snap.Device == "" {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// Start loads the devices already in storage, so reminders and the
// leaderboard cover them after a restart, then begins the schedule, if any.
// A discovery failure is logged; those devices load on their next request.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.Registry.Discover(ctx); err != nil {
		s.logger.Warn("device discovery incomplete", "error", err)
	}
	if s.Scheduler == nil {
		return nil
	}
	return s.Scheduler.Start()
}

// Close stops the scheduler and drains queued events.
func (s *Service) Close() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	s.Bus.Close()
}
