package traffic

// Entry is one registered interface's paired counter snapshots. Reads
// and writes are synchronized entirely by the owning Registry's
// RWMutex; Entry itself has no internal locking.
type Entry struct {
	name string

	current  Stats
	previous Stats

	currentTS  uint64
	previousTS uint64
}

// Name returns the interface name this entry tracks.
func (e *Entry) Name() string { return e.name }

// rates computes the per-second rate snapshot from the current/previous
// pair, using the overflow-safe delta and wide-arithmetic
// normalization.
func (e *Entry) rates() Stats {
	dt := deltaWithOverflow(e.currentTS, e.previousTS)
	return Stats{
		TxPackets: perSecondRate(deltaWithOverflow(e.current.TxPackets, e.previous.TxPackets), dt),
		TxBytes:   perSecondRate(deltaWithOverflow(e.current.TxBytes, e.previous.TxBytes), dt),
		RxPackets: perSecondRate(deltaWithOverflow(e.current.RxPackets, e.previous.RxPackets), dt),
		RxBytes:   perSecondRate(deltaWithOverflow(e.current.RxBytes, e.previous.RxBytes), dt),
	}
}
