package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"signwise/core"
)

// StreakEngine owns one device's streak state. Every operation runs under a
// single mutex, so overlapping RecordLearning calls are serialized and never
// observe the same last-activity day. Events are published after the lock is
// released; a failing subscriber cannot roll back or block a mutation.
type StreakEngine struct {
	mu     sync.Mutex
	store  KeyValueStore
	clock  Clock
	bus    *EventBus
	logger *slog.Logger
	device core.DeviceID
	state  core.State

	// loaded is set once state has been read from the store. Until then no
	// full snapshot is written, and learning days queue in pending.
	loaded  bool
	pending []core.Day
}

// Option configures a StreakEngine.
type Option func(*StreakEngine)

// WithClock sets the day source (defaults to SystemClock in time.Local).
func WithClock(c Clock) Option { return func(e *StreakEngine) { e.clock = c } }

// WithBus sets the bus events are published to. Without one, events are only
// returned to the caller.
func WithBus(b *EventBus) Option { return func(e *StreakEngine) { e.bus = b } }

// WithLogger sets the logger (defaults to slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(e *StreakEngine) { e.logger = l } }

// WithDevice tags emitted events and log lines with device.
func WithDevice(d core.DeviceID) Option { return func(e *StreakEngine) { e.device = d } }

func New(store KeyValueStore, opts ...Option) *StreakEngine {
	if store == nil {
		panic("engine.New requires a non-nil store")
	}
	e := &StreakEngine{store: store}
	for _, o := range opts {
		o(e)
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.device != "" {
		e.logger = e.logger.With("device", e.device)
	}
	return e
}

// Result describes the outcome of RecordLearning.
type Result struct {
	State  core.State   `json:"state"`
	Status core.Status  `json:"status"`
	Events []core.Event `json:"events"`
}

// Snapshot is a read-only view of the engine for presentation.
type Snapshot struct {
	Device          core.DeviceID `json:"device,omitempty"`
	Today           core.Day      `json:"today"`
	State           core.State    `json:"state"`
	Status          core.Status   `json:"status"`
	Active          bool          `json:"active"`
	SignsToday      int           `json:"signs_today"`
	Milestone       string        `json:"milestone"`
	DaysToMilestone int           `json:"days_to_milestone"`
}

// Load reads persisted state. Missing fields default to zero; undecodable
// ones are treated as missing. On a new counting day the daily counter is
// reset and today is persisted as the counting day. A store failure keeps
// the in-memory state (defaults on first load) and returns an error wrapping
// ErrStorageUnavailable; the engine then retries the read before its next
// mutation.
func (e *StreakEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx)
}

// Loaded reports whether the state has been read from the store.
func (e *StreakEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *StreakEngine) ensureLoaded(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	return e.load(ctx)
}

func (e *StreakEngine) load(ctx context.Context) error {
	st, err := e.read(ctx)
	if err != nil {
		if !e.loaded {
			e.logger.Warn("streak load failed, using defaults", "error", err)
		}
		return err
	}
	if repaired := st.Normalize(); repaired != st {
		e.logger.Warn("repaired inconsistent streak state", "loaded", st, "repaired", repaired)
		st = repaired
	}

	replayed := len(e.pending)
	for _, day := range e.pending {
		st, _ = st.RecordLearning(day)
	}
	e.pending = nil
	e.loaded = true

	today := e.clock.Today()
	st, rolled := st.Rollover(today)
	e.state = st
	if replayed > 0 {
		e.logger.Info("replayed learning recorded while storage was down", "actions", replayed)
		return e.persist(ctx, stateMutations(st))
	}
	if rolled {
		return e.persist(ctx, []Mutation{
			SetIntMutation(KeySignsToday, 0),
			SetDayMutation(KeyTodayDate, today),
		})
	}
	return nil
}

func (e *StreakEngine) read(ctx context.Context) (core.State, error) {
	var st core.State
	var err error
	if st.CurrentStreak, err = e.readInt(ctx, KeyCurrentStreak); err != nil {
		return core.State{}, err
	}
	if st.LongestStreak, err = e.readInt(ctx, KeyLongestStreak); err != nil {
		return core.State{}, err
	}
	if st.LastActivity, err = e.readDay(ctx, KeyLastLearned); err != nil {
		return core.State{}, err
	}
	if st.SignsToday, err = e.readInt(ctx, KeySignsToday); err != nil {
		return core.State{}, err
	}
	if st.CountedDay, err = e.readDay(ctx, KeyTodayDate); err != nil {
		return core.State{}, err
	}
	return st, nil
}

func (e *StreakEngine) readInt(ctx context.Context, key string) (int, error) {
	v, ok, err := e.store.GetInt(ctx, key)
	switch {
	case errors.Is(err, ErrInvalidValue):
		e.logger.Warn("ignoring corrupt persisted value", "key", key, "error", err)
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, key, err)
	case !ok:
		return 0, nil
	}
	return int(v), nil
}

func (e *StreakEngine) readDay(ctx context.Context, key string) (core.Day, error) {
	d, ok, err := e.store.GetDay(ctx, key)
	switch {
	case errors.Is(err, ErrInvalidValue):
		e.logger.Warn("ignoring corrupt persisted value", "key", key, "error", err)
		return core.Day{}, nil
	case err != nil:
		return core.Day{}, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, key, err)
	case !ok:
		return core.Day{}, nil
	}
	return d, nil
}

// CheckStatus clears a streak whose last activity is more than a day old.
// It is idempotent and reports whether the state changed.
func (e *StreakEngine) CheckStatus(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoaded(ctx); err != nil {
		return false, err
	}
	next, changed := e.state.CheckStatus(e.clock.Today())
	if !changed {
		return false, nil
	}
	e.logger.Info("streak expired", "previous", e.state.CurrentStreak, "last_activity", e.state.LastActivity)
	e.state = next
	return true, e.persist(ctx, stateMutations(next))
}

// RecordLearning registers one learning action for today. While the stored
// state cannot be read the action is applied in memory, queued for replay
// onto the stored state, and no events are emitted.
func (e *StreakEngine) RecordLearning(ctx context.Context) (Result, error) {
	e.mu.Lock()
	today := e.clock.Today()
	err := e.ensureLoaded(ctx)
	next, events := e.state.RecordLearning(today)
	e.state = next
	if err != nil {
		e.pending = append(e.pending, today)
		events = nil
	} else {
		err = e.persist(ctx, stateMutations(next))
	}
	res := Result{State: next, Status: next.StatusOn(today)}
	e.mu.Unlock()

	for i := range events {
		events[i] = events[i].ForDevice(e.device)
	}
	res.Events = events
	if len(events) > 0 {
		e.logger.Info("streak updated", "current", next.CurrentStreak, "longest", next.LongestStreak, "events", len(events))
	}
	e.publish(ctx, events)
	return res, err
}

// Reset returns every field to its default and clears it from the store.
// No notification is emitted.
func (e *StreakEngine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = core.State{}
	e.pending = nil
	if err := e.store.Remove(ctx, AllKeys...); err != nil {
		return fmt.Errorf("%w: reset: %v", ErrStorageUnavailable, err)
	}
	e.loaded = true
	e.logger.Info("streak reset")
	return nil
}

// State returns a copy of the in-memory state.
func (e *StreakEngine) State() core.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status derives the emoji and message for today.
func (e *StreakEngine) Status() core.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.StatusOn(e.clock.Today())
}

// IsActive reports whether the last activity was today or yesterday.
func (e *StreakEngine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsActiveOn(e.clock.Today())
}

func (e *StreakEngine) MilestoneMessage() string {
	return core.MilestoneMessage(e.State().CurrentStreak)
}

func (e *StreakEngine) DaysUntilNextMilestone() int {
	return core.DaysUntilNextMilestone(e.State().CurrentStreak)
}

// Snapshot returns the full presentation view in one consistent read.
func (e *StreakEngine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	today := e.clock.Today()
	st := e.state
	return Snapshot{
		Device:          e.device,
		Today:           today,
		State:           st,
		Status:          st.StatusOn(today),
		Active:          st.IsActiveOn(today),
		SignsToday:      st.SignsLearnedOn(today),
		Milestone:       core.MilestoneMessage(st.CurrentStreak),
		DaysToMilestone: core.DaysUntilNextMilestone(st.CurrentStreak),
	}
}

// Device returns the device this engine serves, if any.
func (e *StreakEngine) Device() core.DeviceID { return e.device }

// persist writes muts as one unit where the store allows it. On failure the
// in-memory state stays authoritative; the next full write repairs the store.
func (e *StreakEngine) persist(ctx context.Context, muts []Mutation) error {
	if err := Apply(ctx, e.store, muts); err != nil {
		e.logger.Warn("streak persist failed", "error", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (e *StreakEngine) publish(ctx context.Context, events []core.Event) {
	if e.bus == nil {
		return
	}
	for _, ev := range events {
		e.bus.Publish(ctx, ev)
	}
}

// stateMutations writes every field of st, so a retry after a failed write
// leaves the store fully consistent.
func stateMutations(st core.State) []Mutation {
	muts := []Mutation{
		SetIntMutation(KeyCurrentStreak, int64(st.CurrentStreak)),
		SetIntMutation(KeyLongestStreak, int64(st.LongestStreak)),
		SetIntMutation(KeySignsToday, int64(st.SignsToday)),
	}
	if st.CountedDay.IsZero() {
		muts = append(muts, RemoveMutation(KeyTodayDate))
	} else {
		muts = append(muts, SetDayMutation(KeyTodayDate, st.CountedDay))
	}
	if st.HasActivity() {
		muts = append(muts, SetDayMutation(KeyLastLearned, st.LastActivity))
	} else {
		muts = append(muts, RemoveMutation(KeyLastLearned))
	}
	return muts
}
