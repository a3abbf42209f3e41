package traffic

import (
	"testing"

	"github.com/watchcore/periodwatch/internal/clock"
	"github.com/watchcore/periodwatch/internal/goldentest"
)

func TestRegistry_DeltaSingle_PerSecondRateScenario_Golden(t *testing.T) {
	// Same setup as TestRegistry_DeltaSingle_PerSecondRateScenario,
	// recorded as a canonical snapshot.
	mc := clock.NewManual(1000)
	current := map[string]Stats{"eth0": {TxPackets: 100, TxBytes: 2000, RxPackets: 50, RxBytes: 1000}}
	r := New(WithClock(mc), WithStatsReader(scriptedReader(current)))
	r.Init([]string{"eth0"})

	if _, err := r.Register("eth0"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	mc.Set(1500)
	current["eth0"] = Stats{TxPackets: 110, TxBytes: 2800, RxPackets: 55, RxBytes: 1100}
	r.tick()

	goldentest.AssertJSON(t, "per_second_rate_scenario", r.DeltaSingle("eth0"))
}
