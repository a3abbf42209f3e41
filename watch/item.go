package watch

// Sampler produces an integer state reading from caller-owned context.
// Every watch item requires one.
type Sampler func(ctx any) int64

// Action consumes a hysteresis-confirmed (or forced) state transition.
// It is optional on a watch item.
type Action func(prevActionState, newState int64, ctx any)

// ItemInit describes a watch item at AddItem time.
type ItemInit struct {
	// Name is a display name truncated/normalized to handle.MaxNameLen
	// characters. Left empty, an auto-generated name is assigned.
	Name string
	// PeriodMS is the item's sampling interval. Zero resolves to the
	// watcher's base period; otherwise it must be a positive multiple of
	// the base period.
	PeriodMS uint64
	// Hysteresis is the number of consecutive identical non-baseline
	// samples required before Action fires. Zero disables filtering.
	Hysteresis uint64
	// Sampler is required.
	Sampler Sampler
	// Action is optional; a watch item with no Action still samples and
	// runs change detection, it just never dispatches.
	Action Action
	// Ctx is an opaque value owned by the caller, passed back to Sampler
	// and Action unmodified. The engine never frees or inspects it.
	Ctx any
}

// Item is a single monitored signal within a Watcher. All mutable state
// is guarded by the owning Watcher's mutex; Item is never safe to use
// independently of the Watcher that created it.
type Item struct {
	owner  *Watcher
	handle string

	name       string
	periodMS   uint64
	hysteresis uint64
	sampler    Sampler
	action     Action
	ctx        any

	currentState     int64
	lastActionState  int64
	lastSampleTime   uint64
	candidateState   int64
	consecutiveCount uint64

	forcedState      int64
	forcedExpiryTime uint64
	isForced         bool

	sampleCount uint64
	actionCount uint64

	removed bool
}

// Handle returns the item's stable identifier, stable for the item's
// entire lifetime (independent of removal from the registry — it just
// stops resolving to a live item).
func (it *Item) Handle() string {
	return it.handle
}

// Name returns the item's (possibly auto-generated, normalized)
// display name.
func (it *Item) Name() string {
	it.owner.mu.Lock()
	defer it.owner.mu.Unlock()
	return it.name
}
