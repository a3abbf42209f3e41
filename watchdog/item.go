package watchdog

import "sync/atomic"

// Item is a single watchdog-supervised timeout. active, valid, and
// startTime are the only fields a concurrent tick touches without
// holding the owning Supervisor's mutex.
type Item struct {
	owner  *Supervisor
	handle string

	timeoutMS uint64
	recovery  func(ctx any)
	ctx       any

	startTime atomic.Uint64
	active    atomic.Bool
	valid     atomic.Bool
}

// Handle returns the item's stable identifier.
func (it *Item) Handle() string { return it.handle }

// TimeoutMS returns the timeout this item was added with.
func (it *Item) TimeoutMS() uint64 { return it.timeoutMS }

// Start arms the item: if it is not already active, it publishes the
// current time as start_time and marks the item active. If already
// active, Start is a no-op and the existing start_time is left
// untouched.
//
// Start assumes a single logical owner drives it — the
// active/valid/start_time triple is lock-free for the hot path (ticks
// racing a Start/Cancel from the owning goroutine), not a linearizable
// CAS across concurrent Start callers.
func (it *Item) Start() {
	if it.active.Load() {
		return
	}
	it.startTime.Store(it.owner.clock.NowMS())
	it.active.Store(true)
}

// Cancel disarms the item. A cancelled item is skipped by every
// subsequent tick until Start is called again.
func (it *Item) Cancel() {
	it.active.Store(false)
}

// Active reports whether the item is currently armed.
func (it *Item) Active() bool { return it.active.Load() }

// StartTimeMS returns the start_time last published by Start, in the
// owning Supervisor's clock units. Only meaningful while Active.
func (it *Item) StartTimeMS() uint64 { return it.startTime.Load() }
