package traffic

import "math/bits"

// Stats holds the four counters a network device stack typically
// exposes for one interface (packets and bytes per direction). It
// carries raw cumulative counts as read by a StatsReader, and
// per-second rates as returned by DeltaSingle/DeltaAll.
type Stats struct {
	TxPackets uint64
	TxBytes   uint64
	RxPackets uint64
	RxBytes   uint64
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		TxPackets: s.TxPackets + o.TxPackets,
		TxBytes:   s.TxBytes + o.TxBytes,
		RxPackets: s.RxPackets + o.RxPackets,
		RxBytes:   s.RxBytes + o.RxBytes,
	}
}

// deltaWithOverflow computes cur-prev over an unsigned counter that may
// have wrapped exactly once between samples.
func deltaWithOverflow(cur, prev uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return (^uint64(0) - prev) + cur + 1
}

// perSecondRate normalizes delta over dtMS to a per-second rate. The
// multiplication is carried out as a 128-bit intermediate (via
// math/bits) so that delta*1000 cannot silently overflow a 64-bit
// product before the division narrows it back down.
func perSecondRate(delta, dtMS uint64) uint64 {
	if dtMS == 0 {
		return 0
	}
	hi, lo := bits.Mul64(delta, 1000)
	q, _ := bits.Div64(hi, lo, dtMS)
	return q
}
