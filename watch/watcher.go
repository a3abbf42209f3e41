// Package watch implements the State Watcher engine: a multi-item
// sampling engine with per-item interval scheduling, hysteresis-based
// change detection, and temporary state override ("forced state").
//
// A Watcher owns zero or more Items. Each Item carries its own sampling
// period (a multiple of the Watcher's base period), its own hysteresis
// filter, and its own forced-state override. A single periodic task
// drives every item belonging to a Watcher; see internal/scheduler for
// the underlying self-rescheduling primitive and internal/clock for the
// monotonic time source.
package watch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchcore/periodwatch/internal/clock"
	"github.com/watchcore/periodwatch/internal/handle"
	"github.com/watchcore/periodwatch/internal/scheduler"
)

// DefaultBasePeriodMS is the scheduling granularity used when Init is
// called with basePeriodMS == 0.
const DefaultBasePeriodMS = 200

// DefaultHysteresis is the hysteresis value assumed when an ItemInit
// leaves Hysteresis unset and the caller means "no filtering".
const DefaultHysteresis = 0

type lifecycleState int32

const (
	stateUninitialized lifecycleState = iota
	stateStopped
	stateRunning
)

// Option configures a Watcher at construction time.
type Option func(*Watcher)

// WithClock overrides the monotonic time source. Tests use this to
// inject internal/clock.Manual for deterministic interval math.
func WithClock(c clock.Source) Option {
	return func(w *Watcher) { w.clock = c }
}

// WithHandleGenerator overrides the item handle generator. Tests use
// this to inject handle.NewFixedGenerator for deterministic handles.
func WithHandleGenerator(g handle.Generator) Option {
	return func(w *Watcher) { w.gen = g }
}

// Watcher is a container of watch items sharing one base sampling
// period and one periodic tick.
type Watcher struct {
	mu sync.Mutex

	state atomic.Int32

	basePeriodMS uint64
	items        []*Item
	byHandle     map[string]*Item
	totalSamples uint64
	totalActions uint64
	nextSeq      int

	clock clock.Source
	gen   handle.Generator
	task  *scheduler.Task
}

// New constructs a Watcher in the Uninitialized state. Call Init before
// use.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		clock: clock.New(),
		gen:   handle.UUIDGenerator{},
		task:  scheduler.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.state.Store(int32(stateUninitialized))
	return w
}

// Init brings the watcher to the Stopped state with no items.
// basePeriodMS == 0 resolves to DefaultBasePeriodMS. Safe to call again
// after Cleanup.
func (w *Watcher) Init(basePeriodMS uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if basePeriodMS == 0 {
		basePeriodMS = DefaultBasePeriodMS
	}
	w.basePeriodMS = basePeriodMS
	w.items = nil
	w.byHandle = make(map[string]*Item)
	w.totalSamples = 0
	w.totalActions = 0
	w.nextSeq = 0
	w.state.Store(int32(stateStopped))
}

// Cleanup stops the watcher (idempotent), drops all items, and returns
// it to Uninitialized.
func (w *Watcher) Cleanup() {
	_ = w.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = nil
	w.byHandle = nil
	w.totalSamples = 0
	w.totalActions = 0
	w.state.Store(int32(stateUninitialized))
}

// Start transitions Stopped to Running and schedules the first tick.
// Returns ErrAlreadyRunning (non-fatal) if already Running, or an
// Error of kind NotInitialized if Init has not been called.
func (w *Watcher) Start() error {
	if lifecycleState(w.state.Load()) == stateUninitialized {
		return newError(ErrKindNotInitialized, "watcher not initialized")
	}
	if !w.state.CompareAndSwap(int32(stateStopped), int32(stateRunning)) {
		return ErrAlreadyRunning
	}

	w.mu.Lock()
	base := w.basePeriodMS
	w.mu.Unlock()
	w.task.Schedule(time.Duration(base)*time.Millisecond, w.tick)
	return nil
}

// Stop transitions Running to Stopped and blocks until any in-flight
// tick completes. Returns ErrAlreadyStopped (non-fatal) if already
// Stopped or Uninitialized.
func (w *Watcher) Stop() error {
	if !w.state.CompareAndSwap(int32(stateRunning), int32(stateStopped)) {
		return ErrAlreadyStopped
	}
	w.task.CancelSync()
	return nil
}

// AddItem validates init and registers a new item, returning its stable
// handle.
func (w *Watcher) AddItem(init ItemInit) (*Item, error) {
	if init.Sampler == nil {
		return nil, newError(ErrKindInvalidArgument, "sampler is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if lifecycleState(w.state.Load()) == stateUninitialized {
		return nil, newError(ErrKindNotInitialized, "watcher not initialized")
	}

	periodMS := init.PeriodMS
	if periodMS == 0 {
		periodMS = w.basePeriodMS
	}
	if periodMS < w.basePeriodMS || periodMS%w.basePeriodMS != 0 {
		return nil, newError(ErrKindInvalidArgument,
			"period_ms %d must be a positive multiple of base_period_ms %d", periodMS, w.basePeriodMS)
	}

	name := init.Name
	if name == "" {
		name = handle.AutoName(w.nextSeq)
	}
	name = handle.NormalizeName(name)
	w.nextSeq++

	it := &Item{
		owner:      w,
		handle:     w.gen.Generate(),
		name:       name,
		periodMS:   periodMS,
		hysteresis: init.Hysteresis,
		sampler:    init.Sampler,
		action:     init.Action,
		ctx:        init.Ctx,
	}
	w.items = append(w.items, it)
	w.byHandle[it.handle] = it
	return it, nil
}

// RemoveItem detaches and destroys an item. Safe to call from within
// the item's own action callback: the tick loop observes the removal
// on re-acquiring the lock and does not touch the item again
// afterward.
func (w *Watcher) RemoveItem(it *Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if it == nil || it.owner != w {
		return newError(ErrKindNotFound, "item does not belong to this watcher")
	}
	if _, ok := w.byHandle[it.handle]; !ok {
		return newError(ErrKindNotFound, "item already removed")
	}

	delete(w.byHandle, it.handle)
	for i, cur := range w.items {
		if cur == it {
			w.items = append(w.items[:i], w.items[i+1:]...)
			break
		}
	}
	it.removed = true
	return nil
}

// GetItemState returns the item's last computed state.
func (w *Watcher) GetItemState(it *Item) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.validateOwned(it); err != nil {
		return 0, err
	}
	return it.currentState, nil
}

// GetItemStats returns the item's sample and action counters.
func (w *Watcher) GetItemStats(it *Item) (sampleCount, actionCount uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.validateOwned(it); err != nil {
		return 0, 0, err
	}
	return it.sampleCount, it.actionCount, nil
}

// GetStats returns the watcher's aggregate counters.
func (w *Watcher) GetStats() (totalSamples, totalActions uint64, activeCount int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if lifecycleState(w.state.Load()) == stateUninitialized {
		return 0, 0, 0, newError(ErrKindNotInitialized, "watcher not initialized")
	}
	return w.totalSamples, w.totalActions, len(w.items), nil
}

// ForceState overrides an item's sampled value until now + duration.
// Re-arming overwrites the previous override with a new deadline and
// value. duration must be positive.
func (w *Watcher) ForceState(it *Item, value int64, duration time.Duration) error {
	if duration <= 0 {
		return newError(ErrKindInvalidArgument, "duration must be positive")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.validateOwned(it); err != nil {
		return err
	}

	it.forcedState = value
	it.forcedExpiryTime = w.clock.NowMS() + uint64(duration.Milliseconds())
	it.isForced = true
	return nil
}

// ClearForcedState deactivates an item's override. It does not reset
// the hysteresis scratch; the next non-forced sample resumes the
// normal filter against whatever baseline the override left behind.
func (w *Watcher) ClearForcedState(it *Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.validateOwned(it); err != nil {
		return err
	}
	it.isForced = false
	return nil
}

// IsStateForced reports whether an item's override is active, and if
// so, how much time remains before it auto-expires. An override past
// its deadline is cleared as a side effect of checking it.
func (w *Watcher) IsStateForced(it *Item) (active bool, remaining time.Duration, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.validateOwned(it); err != nil {
		return false, 0, err
	}

	if !it.isForced {
		return false, 0, nil
	}

	now := w.clock.NowMS()
	if now > it.forcedExpiryTime {
		it.isForced = false
		return false, 0, nil
	}
	return true, time.Duration(it.forcedExpiryTime-now) * time.Millisecond, nil
}

// validateOwned must be called with mu held.
func (w *Watcher) validateOwned(it *Item) error {
	if it == nil || it.owner != w {
		return newError(ErrKindNotFound, "invalid item handle")
	}
	if _, ok := w.byHandle[it.handle]; !ok {
		return newError(ErrKindNotFound, "item no longer registered")
	}
	return nil
}

// tick is the scheduler.Task body: it samples every item whose interval
// has elapsed, runs the result through the hysteresis filter (or the
// forced-state bypass), and dispatches the registered action on a
// confirmed transition.
func (w *Watcher) tick() {
	w.mu.Lock()
	if lifecycleState(w.state.Load()) != stateRunning {
		w.mu.Unlock()
		return
	}

	t := w.clock.NowMS()
	items := make([]*Item, len(w.items))
	copy(items, w.items)

	for _, it := range items {
		if it.removed {
			continue
		}
		if t < it.lastSampleTime+it.periodMS {
			continue
		}
		if it.isForced && t > it.forcedExpiryTime {
			it.isForced = false
		}
		if it.sampler == nil {
			continue
		}

		raw := it.sampler(it.ctx)
		it.sampleCount++
		w.totalSamples++

		var newState int64
		if it.isForced {
			newState = it.forcedState
		} else {
			newState = raw
		}

		var fire bool
		if it.isForced {
			fire = newState != it.lastActionState
		} else {
			fire = hysteresisComparator(it.lastActionState, newState, it.hysteresis, &it.candidateState, &it.consecutiveCount)
		}

		if fire && it.action != nil {
			prevState := it.lastActionState
			action := it.action
			ctx := it.ctx

			w.mu.Unlock()
			action(prevState, newState, ctx)
			w.mu.Lock()

			if lifecycleState(w.state.Load()) != stateRunning {
				w.mu.Unlock()
				return
			}
			// The action fired regardless of whether it removed its own
			// item (property P12), so the engine-wide counter always
			// advances; the per-item fields only make sense while the
			// item is still registered.
			w.totalActions++
			if it.removed {
				continue
			}
			it.lastActionState = newState
			it.actionCount++
		}

		if it.removed {
			continue
		}
		it.currentState = newState
		it.lastSampleTime = t
	}

	if lifecycleState(w.state.Load()) == stateRunning {
		base := w.basePeriodMS
		w.mu.Unlock()
		w.task.Schedule(time.Duration(base)*time.Millisecond, w.tick)
		return
	}
	w.mu.Unlock()
}
