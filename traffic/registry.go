// Package traffic implements the Traffic Sampler engine: a
// hash-indexed per-interface registry that samples paired counter
// snapshots on a periodic tick and serves overflow-safe per-second rate
// queries.
//
// Structural changes (register/unregister) and the periodic snapshot
// refresh take the registry's exclusive lock; rate queries take only
// the shared lock, mirroring original_source/traffic_monitor.c's
// read-write-lock discipline.
package traffic

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchcore/periodwatch/internal/clock"
	"github.com/watchcore/periodwatch/internal/scheduler"
)

// SamplePeriodMS is the fixed interval between traffic registry ticks.
const SamplePeriodMS = 100

// StatsReader is the host's device-stats adaptor capability: given an
// interface name, it returns the current counter snapshot.
type StatsReader func(name string) (Stats, error)

// DeviceEvent is a device lifecycle notification kind.
type DeviceEvent int

const (
	DeviceUp DeviceEvent = iota
	DeviceGoingDown
	DeviceUnregister
)

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithClock overrides the monotonic time source.
func WithClock(c clock.Source) Option {
	return func(r *Registry) { r.clock = c }
}

// WithStatsReader sets the primary device-stats adaptor.
func WithStatsReader(reader StatsReader) Option {
	return func(r *Registry) { r.reader = reader }
}

// WithFallbackStatsReader sets the fallback adaptor consulted when the
// primary reader fails.
func WithFallbackStatsReader(reader StatsReader) Option {
	return func(r *Registry) { r.fallback = reader }
}

// WithMaxEntries caps the number of interfaces the registry will hold
// at once; Register beyond the cap fails with ErrKindOutOfMemory. Zero
// (the default) means unlimited.
func WithMaxEntries(n int) Option {
	return func(r *Registry) { r.maxEntries = n }
}

// Registry tracks the set of monitored interfaces and their counter
// snapshots.
type Registry struct {
	mu sync.RWMutex

	entries    map[string]*Entry
	targets    map[string]struct{}
	maxEntries int

	stopping    atomic.Bool
	initialized atomic.Bool

	clock    clock.Source
	reader   StatsReader
	fallback StatsReader
	task     *scheduler.Task
}

// New constructs a Registry. Call Init before use.
func New(opts ...Option) *Registry {
	r := &Registry{
		clock: clock.New(),
		task:  scheduler.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init prepares the registry for a configured set of target device
// names, resets the stopping flag, and marks the registry ready to
// accept Register calls and device events. Subscribing to device
// events is the host's responsibility — it calls HandleDeviceEvent;
// Init itself only resets local state.
func (r *Registry) Init(targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry)
	tset := make(map[string]struct{}, len(targets))
	for _, name := range targets {
		tset[name] = struct{}{}
	}
	r.targets = tset
	r.stopping.Store(false)
	r.initialized.Store(true)
}

// Cleanup sets the stopping flag, cancels the tick, and drops every
// entry. Handlers observing stopping=true exit without touching the
// registry.
func (r *Registry) Cleanup() {
	r.stopping.Store(true)

	r.mu.Lock()
	r.entries = nil
	r.targets = nil
	r.initialized.Store(false)
	r.mu.Unlock()

	r.task.CancelSync()
}

// Register allocates an entry for name if the device collaborator knows
// it and it is not already present, takes an initial stats snapshot,
// and ensures the tick is scheduled.
func (r *Registry) Register(name string) (*Entry, error) {
	if name == "" {
		return nil, newError(ErrKindInvalidArgument, "interface name required")
	}
	if !r.initialized.Load() {
		return nil, newError(ErrKindNotInitialized, "traffic registry not initialized")
	}

	r.mu.Lock()
	if _, ok := r.entries[name]; ok {
		r.mu.Unlock()
		return nil, newError(ErrKindExists, "interface %q already registered", name)
	}
	if r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		r.mu.Unlock()
		return nil, newError(ErrKindOutOfMemory, "registry at capacity (%d entries)", r.maxEntries)
	}

	stats, err := r.readStats(name)
	if err != nil {
		r.mu.Unlock()
		return nil, newError(ErrKindNotFound, "interface %q: %v", name, err)
	}

	wasEmpty := len(r.entries) == 0
	now := r.clock.NowMS()
	e := &Entry{name: name, current: stats, currentTS: now}
	r.entries[name] = e
	r.mu.Unlock()

	if wasEmpty {
		r.task.Schedule(SamplePeriodMS*time.Millisecond, r.tick)
	}
	return e, nil
}

// Unregister detaches name if present. A duplicate or unknown-name
// unregister is a no-op success.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	if _, ok := r.entries[name]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, name)
	nowEmpty := len(r.entries) == 0
	r.mu.Unlock()

	if nowEmpty {
		r.task.CancelSync()
	}
	return nil
}

// HandleDeviceEvent reacts to a device lifecycle notification: on "up"
// for a targeted name, register and ensure the tick is scheduled; on
// "going down", unregister; on "unregister", unregister idempotently
// as backup cleanup.
func (r *Registry) HandleDeviceEvent(name string, kind DeviceEvent) {
	if r.stopping.Load() {
		return
	}

	switch kind {
	case DeviceUp:
		r.mu.RLock()
		_, targeted := r.targets[name]
		r.mu.RUnlock()
		if !targeted {
			return
		}
		if _, err := r.Register(name); err != nil && !IsExists(err) {
			slog.Warn("traffic: register on device-up failed", "interface", name, "error", err)
		}
	case DeviceGoingDown, DeviceUnregister:
		_ = r.Unregister(name)
	}
}

// DeltaSingle returns the per-second rate snapshot for one interface,
// or a zero snapshot (logged, not an error) if name is not registered.
func (r *Registry) DeltaSingle(name string) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		slog.Debug("traffic: delta_single miss", "interface", name)
		return Stats{}
	}
	return e.rates()
}

// DeltaAll returns the elementwise sum of per-second rates across every
// registered interface.
func (r *Registry) DeltaAll() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total Stats
	for _, e := range r.entries {
		total = total.add(e.rates())
	}
	return total
}

// readStats must be called with mu held. It tries the primary reader,
// falling back to the fallback reader on failure.
func (r *Registry) readStats(name string) (Stats, error) {
	if r.reader == nil {
		return Stats{}, errors.New("no stats reader configured")
	}
	stats, err := r.reader(name)
	if err == nil {
		return stats, nil
	}
	if r.fallback != nil {
		return r.fallback(name)
	}
	return Stats{}, err
}

// tick is the scheduler.Task body: it refreshes every registered
// interface's counter snapshot. The exclusive lock is held for the
// whole pass — a stats read is a register read, not a blocking user
// callback, so it does not need the lock-drop-around-callback
// treatment the watch and watchdog engines require for their
// sampler/action/recovery capabilities.
func (r *Registry) tick() {
	r.mu.Lock()
	if r.stopping.Load() || !r.initialized.Load() {
		r.mu.Unlock()
		return
	}

	t := r.clock.NowMS()
	for _, e := range r.entries {
		stats, err := r.readStats(e.name)
		if err != nil {
			// StatsReadError: the read adaptor can fail transiently
			// without the interface being unregistered. Leave the
			// previous/current pair untouched this tick rather than
			// smearing a zeroed snapshot into the rate computation.
			slog.Warn("traffic: stats read failed, keeping last snapshot", "interface", e.name, "error", err)
			continue
		}
		e.previous = e.current
		e.previousTS = e.currentTS
		e.current = stats
		e.currentTS = t
	}

	active := len(r.entries) > 0 && !r.stopping.Load()
	r.mu.Unlock()

	if active {
		r.task.Schedule(SamplePeriodMS*time.Millisecond, r.tick)
	}
}
