package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"signwise/core"
)

// Observer is told about a device's snapshot after every registry operation.
type Observer func(ctx context.Context, snap Snapshot)

// Registry hosts one StreakEngine per device over a shared store. Each
// device's keys live under "device:<id>:".
type Registry struct {
	mu        sync.Mutex
	store     KeyValueStore
	clock     Clock
	bus       *EventBus
	logger    *slog.Logger
	engines   map[core.DeviceID]*StreakEngine
	observers []Observer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithRegistryClock(c Clock) RegistryOption { return func(r *Registry) { r.clock = c } }

func WithRegistryBus(b *EventBus) RegistryOption { return func(r *Registry) { r.bus = b } }

func WithRegistryLogger(l *slog.Logger) RegistryOption { return func(r *Registry) { r.logger = l } }

// WithObserver registers fn to receive snapshots after each operation.
func WithObserver(fn Observer) RegistryOption {
	return func(r *Registry) { r.observers = append(r.observers, fn) }
}

func NewRegistry(store KeyValueStore, opts ...RegistryOption) *Registry {
	if store == nil {
		panic("NewRegistry requires a non-nil store")
	}
	r := &Registry{store: store, engines: map[core.DeviceID]*StreakEngine{}}
	for _, o := range opts {
		o(r)
	}
	if r.clock == nil {
		r.clock = SystemClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// DevicePrefix returns the key prefix used for device.
func DevicePrefix(device core.DeviceID) string {
	return devicePrefix + string(device) + ":"
}

const devicePrefix = "device:"

// For returns the engine of device, loading and status-checking it on first
// use. A storage failure during load still returns a usable engine together
// with the error; that engine re-reads the store on the next access.
func (r *Registry) For(ctx context.Context, device core.DeviceID) (*StreakEngine, error) {
	id, err := core.NormalizeDeviceID(device)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	eng, ok := r.engines[id]
	r.mu.Unlock()
	if ok {
		if eng.Loaded() {
			return eng, nil
		}
		return eng, r.open(ctx, eng)
	}

	eng = New(Prefixed(r.store, DevicePrefix(id)),
		WithClock(r.clock),
		WithBus(r.bus),
		WithLogger(r.logger),
		WithDevice(id),
	)
	openErr := r.open(ctx, eng)

	r.mu.Lock()
	if existing, ok := r.engines[id]; ok {
		r.mu.Unlock()
		if existing.Loaded() {
			return existing, nil
		}
		return existing, r.open(ctx, existing)
	}
	r.engines[id] = eng
	r.mu.Unlock()
	return eng, openErr
}

// open loads eng if it has not been loaded yet and applies the staleness
// check. Observers only see engines backed by stored state.
func (r *Registry) open(ctx context.Context, eng *StreakEngine) error {
	eng.mu.Lock()
	err := eng.ensureLoaded(ctx)
	eng.mu.Unlock()
	if err != nil {
		return err
	}
	if _, err := eng.CheckStatus(ctx); err != nil {
		return err
	}
	r.notify(ctx, eng)
	return nil
}

// RecordLearning records a learning action for device.
func (r *Registry) RecordLearning(ctx context.Context, device core.DeviceID) (Result, error) {
	eng, err := r.For(ctx, device)
	if eng == nil {
		return Result{}, err
	}
	res, recErr := eng.RecordLearning(ctx)
	r.notify(ctx, eng)
	return res, errors.Join(err, recErr)
}

// CheckStatus runs the staleness check for device.
func (r *Registry) CheckStatus(ctx context.Context, device core.DeviceID) (Snapshot, error) {
	eng, err := r.For(ctx, device)
	if eng == nil {
		return Snapshot{}, err
	}
	_, checkErr := eng.CheckStatus(ctx)
	r.notify(ctx, eng)
	return eng.Snapshot(), errors.Join(err, checkErr)
}

// Snapshot returns the current view of device.
func (r *Registry) Snapshot(ctx context.Context, device core.DeviceID) (Snapshot, error) {
	eng, err := r.For(ctx, device)
	if eng == nil {
		return Snapshot{}, err
	}
	return eng.Snapshot(), err
}

// Reset clears device's streak.
func (r *Registry) Reset(ctx context.Context, device core.DeviceID) error {
	eng, err := r.For(ctx, device)
	if eng == nil {
		return err
	}
	resetErr := eng.Reset(ctx)
	r.notify(ctx, eng)
	return resetErr
}

// Devices lists devices with a loaded engine, sorted.
func (r *Registry) Devices() []core.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.DeviceID, 0, len(r.engines))
	for id := range r.engines {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Discover loads every device that has keys in the store, so devices seen
// by an earlier process are known before they call in again. Stores that
// cannot list keys discover nothing.
func (r *Registry) Discover(ctx context.Context) (int, error) {
	lister, ok := r.store.(KeyLister)
	if !ok {
		return 0, nil
	}
	keys, err := lister.Keys(ctx, devicePrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: list devices: %v", ErrStorageUnavailable, err)
	}
	seen := map[core.DeviceID]bool{}
	var errs []error
	for _, k := range keys {
		raw, _, ok := strings.Cut(strings.TrimPrefix(k, devicePrefix), ":")
		if !ok {
			continue
		}
		id, err := core.NormalizeDeviceID(core.DeviceID(raw))
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := r.For(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if len(seen) > 0 {
		r.logger.Info("discovered stored devices", "devices", len(seen))
	}
	return len(seen), errors.Join(errs...)
}

// Ping checks the store with a read of a key no device uses.
func (r *Registry) Ping(ctx context.Context) error {
	if _, _, err := r.store.GetInt(ctx, "healthcheck:ping"); err != nil && !errors.Is(err, ErrInvalidValue) {
		return err
	}
	return nil
}

func (r *Registry) notify(ctx context.Context, eng *StreakEngine) {
	if len(r.observers) == 0 || !eng.Loaded() {
		return
	}
	snap := eng.Snapshot()
	for _, fn := range r.observers {
		fn(ctx, snap)
	}
}
