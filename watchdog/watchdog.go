// Package watchdog implements the Adaptive Watchdog engine: a
// lock-free, on-demand timeout supervisor whose sampling period
// auto-adjusts to the shortest registered timeout and whose idle cost
// is zero.
//
// Unlike the watch engine, per-item state (active, valid, start_time)
// is managed entirely with atomics — Start and Cancel never touch the
// Supervisor's mutex. The mutex only protects the registry's structure
// (the items slice/map) and the derived scheduling fields (period_ms,
// work_active), which only change on Add/Remove.
package watchdog

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchcore/periodwatch/internal/clock"
	"github.com/watchcore/periodwatch/internal/handle"
	"github.com/watchcore/periodwatch/internal/scheduler"
)

// MinTimeoutMS is the minimum timeout a watchdog item may be added
// with. Violating it is a programmer error, not a recoverable failure
// — Add panics.
const MinTimeoutMS = 200

// MaxWorkPeriodMS (MinTimeoutMS/2) is the floor on how short the
// adaptive tick period is ever allowed to become, regardless of how
// short the shortest active timeout is.
const MaxWorkPeriodMS = MinTimeoutMS / 2

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithClock overrides the monotonic time source.
func WithClock(c clock.Source) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithHandleGenerator overrides the item handle generator.
func WithHandleGenerator(g handle.Generator) Option {
	return func(s *Supervisor) { s.gen = g }
}

// Supervisor is a watchdog context: a registry of timeout items sharing
// one adaptive tick. Nothing about it requires a process-wide
// singleton — Init simply rejects a second call on the same instance,
// so callers that want one watchdog per process get that by
// convention, not by construction.
type Supervisor struct {
	mu sync.Mutex

	items    []*Item
	byHandle map[string]*Item
	periodMS uint64
	workActive bool

	initialized atomic.Bool

	clock clock.Source
	gen   handle.Generator
	task  *scheduler.Task
}

// New constructs a Supervisor. Call Init before use.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		clock: clock.New(),
		gen:   handle.UUIDGenerator{},
		task:  scheduler.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init prepares the registry. A second call without an intervening
// Deinit fails with ErrKindAlreadyInitialized.
func (s *Supervisor) Init() error {
	if !s.initialized.CompareAndSwap(false, true) {
		return newError(ErrKindAlreadyInitialized, "watchdog already initialized")
	}
	s.mu.Lock()
	s.items = nil
	s.byHandle = make(map[string]*Item)
	s.periodMS = 0
	s.workActive = false
	s.mu.Unlock()
	return nil
}

// Deinit marks every item invalid, drops them, and cancels the tick.
func (s *Supervisor) Deinit() {
	s.mu.Lock()
	for _, it := range s.items {
		it.valid.Store(false)
	}
	s.items = nil
	s.byHandle = nil
	s.periodMS = 0
	s.workActive = false
	s.initialized.Store(false)
	s.mu.Unlock()

	s.task.CancelSync()
}

// Add registers a new watchdog item in the Inactive state and triggers
// period recomputation.
//
// Add panics if timeoutMS is below MinTimeoutMS: violating the minimum
// timeout is a programmer error the library cannot recover from, not a
// reportable error kind.
func (s *Supervisor) Add(timeoutMS uint64, recovery func(ctx any), ctx any) *Item {
	if timeoutMS < MinTimeoutMS {
		panic(fmt.Sprintf("watchdog: timeout_ms %d is below the minimum of %d", timeoutMS, MinTimeoutMS))
	}

	s.mu.Lock()
	it := &Item{
		owner:     s,
		handle:    s.gen.Generate(),
		timeoutMS: timeoutMS,
		recovery:  recovery,
		ctx:       ctx,
	}
	it.valid.Store(true)
	s.items = append(s.items, it)
	s.byHandle[it.handle] = it

	needCancel, needSchedule, period := s.recomputeLocked()
	s.mu.Unlock()

	s.applySchedule(needCancel, needSchedule, period)
	return it
}

// Remove marks an item invalid, detaches it, and recomputes the
// adaptive period. If the registry is now empty, the tick is cancelled.
func (s *Supervisor) Remove(it *Item) error {
	s.mu.Lock()
	if it == nil || it.owner != s {
		s.mu.Unlock()
		return newError(ErrKindNotFound, "item does not belong to this watchdog")
	}
	if _, ok := s.byHandle[it.handle]; !ok {
		s.mu.Unlock()
		return newError(ErrKindNotFound, "item already removed")
	}

	// valid is cleared before unlinking: any tick path that already
	// snapshotted this item observes valid=false and skips it rather
	// than dereferencing a half-removed entry.
	it.valid.Store(false)
	delete(s.byHandle, it.handle)
	for i, cur := range s.items {
		if cur == it {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}

	needCancel, needSchedule, period := s.recomputeLocked()
	s.mu.Unlock()

	s.applySchedule(needCancel, needSchedule, period)
	return nil
}

// recomputeLocked derives the adaptive period from the shortest
// timeout among valid (registered) items, whether or not they have
// been started. Must be called with mu held; it mutates
// s.periodMS/s.workActive and reports what scheduling action the caller
// must take after releasing the lock (scheduler calls never happen
// while mu is held, to avoid a self-deadlock against an in-flight tick
// trying to re-acquire mu).
func (s *Supervisor) recomputeLocked() (needCancel, needSchedule bool, periodMS uint64) {
	var minTimeout uint64
	found := false
	for _, it := range s.items {
		if !it.valid.Load() {
			continue
		}
		if !found || it.timeoutMS < minTimeout {
			minTimeout = it.timeoutMS
			found = true
		}
	}

	oldPeriod, oldActive := s.periodMS, s.workActive

	if !found {
		s.periodMS = 0
		s.workActive = false
		slog.Debug("watchdog: period recomputed", "old_period_ms", oldPeriod, "period_ms", 0, "work_active", false)
		return oldActive, false, 0
	}

	newPeriod := minTimeout / 2
	if newPeriod < MaxWorkPeriodMS {
		newPeriod = MaxWorkPeriodMS
	}
	s.periodMS = newPeriod
	s.workActive = true
	slog.Debug("watchdog: period recomputed", "old_period_ms", oldPeriod, "period_ms", newPeriod, "work_active", true, "min_timeout_ms", minTimeout)

	if !oldActive {
		return false, true, newPeriod // idle -> active: schedule the first tick
	}
	if newPeriod != oldPeriod {
		return false, true, newPeriod // shortest timeout changed: reschedule
	}
	return false, false, newPeriod // unchanged: leave the pending timer alone
}

func (s *Supervisor) applySchedule(needCancel, needSchedule bool, periodMS uint64) {
	if needCancel {
		s.task.CancelSync()
		return
	}
	if needSchedule {
		s.task.Schedule(time.Duration(periodMS)*time.Millisecond, s.tick)
	}
}

// tick is the scheduler.Task body: it fires recovery for every active
// item whose timeout has elapsed since its last Start.
func (s *Supervisor) tick() {
	s.mu.Lock()
	if !s.initialized.Load() {
		s.mu.Unlock()
		return
	}
	t := s.clock.NowMS()
	items := make([]*Item, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()

	for _, it := range items {
		if !it.valid.Load() || !it.active.Load() {
			continue
		}
		start := it.startTime.Load()
		if t-start >= it.timeoutMS {
			// active is left true unconditionally, so every subsequent
			// tick past timeout calls recovery again until Cancel/Remove.
			it.recovery(it.ctx)
		}
	}

	s.mu.Lock()
	initialized := s.initialized.Load()
	workActive := s.workActive
	period := s.periodMS
	s.mu.Unlock()

	if initialized && workActive {
		s.task.Schedule(time.Duration(period)*time.Millisecond, s.tick)
	}
}

// PeriodMS returns the current adaptive tick period (0 if idle).
func (s *Supervisor) PeriodMS() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periodMS
}

// WorkActive reports whether a tick is currently scheduled.
func (s *Supervisor) WorkActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workActive
}
