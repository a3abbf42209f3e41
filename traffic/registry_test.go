package traffic

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcore/periodwatch/internal/clock"
)

// scriptedReader returns a StatsReader that yields values from a map
// keyed by interface name, defaulting to a zero snapshot for unlisted
// interfaces.
func scriptedReader(byName map[string]Stats) StatsReader {
	return func(name string) (Stats, error) {
		if s, ok := byName[name]; ok {
			return s, nil
		}
		return Stats{}, errors.New("unknown interface")
	}
}

func TestRegistry_DeltaSingle_PerSecondRateScenario(t *testing.T) {
	// A 500ms gap between snapshots must normalize deltas to a per-second rate.
	mc := clock.NewManual(1000)
	current := map[string]Stats{"eth0": {TxPackets: 100, TxBytes: 2000, RxPackets: 50, RxBytes: 1000}}
	r := New(WithClock(mc), WithStatsReader(scriptedReader(current)))
	r.Init([]string{"eth0"})

	_, err := r.Register("eth0")
	require.NoError(t, err)

	mc.Set(1500)
	current["eth0"] = Stats{TxPackets: 110, TxBytes: 2800, RxPackets: 55, RxBytes: 1100}
	r.tick()

	got := r.DeltaSingle("eth0")
	assert.Equal(t, Stats{TxPackets: 20, TxBytes: 1600, RxPackets: 10, RxBytes: 200}, got)
}

func TestRegistry_TrafficWrapScenario(t *testing.T) {
	// A counter wrap between snapshots must still produce a sane delta.
	mc := clock.NewManual(0)
	current := map[string]Stats{"eth0": {TxBytes: math.MaxUint64 - 100}}
	r := New(WithClock(mc), WithStatsReader(scriptedReader(current)))
	r.Init([]string{"eth0"})

	_, err := r.Register("eth0")
	require.NoError(t, err)

	mc.Set(1000)
	current["eth0"] = Stats{TxBytes: 900}
	r.tick()

	got := r.DeltaSingle("eth0")
	assert.Equal(t, uint64(1001), got.TxBytes)
}

func TestRegistry_DeltaSingleUnknownInterfaceIsZero(t *testing.T) {
	r := New(WithStatsReader(scriptedReader(nil)))
	r.Init(nil)
	assert.Equal(t, Stats{}, r.DeltaSingle("ghost0"))
}

func TestRegistry_DeltaAllSumsAcrossInterfaces(t *testing.T) {
	// P10
	mc := clock.NewManual(0)
	current := map[string]Stats{
		"eth0": {TxPackets: 100, TxBytes: 1000},
		"eth1": {TxPackets: 50, TxBytes: 500},
	}
	r := New(WithClock(mc), WithStatsReader(scriptedReader(current)))
	r.Init([]string{"eth0", "eth1"})
	_, err := r.Register("eth0")
	require.NoError(t, err)
	_, err = r.Register("eth1")
	require.NoError(t, err)

	mc.Set(1000)
	current["eth0"] = Stats{TxPackets: 200, TxBytes: 2000}
	current["eth1"] = Stats{TxPackets: 150, TxBytes: 1500}
	r.tick()

	single0 := r.DeltaSingle("eth0")
	single1 := r.DeltaSingle("eth1")
	all := r.DeltaAll()
	assert.Equal(t, single0.add(single1), all)
}

func TestRegistry_RegisterRejectsUnknownDevice(t *testing.T) {
	r := New(WithStatsReader(scriptedReader(nil)))
	r.Init([]string{"eth0"})

	_, err := r.Register("eth0")
	assert.True(t, IsNotFound(err))
}

func TestRegistry_RegisterRejectsDuplicate(t *testing.T) {
	r := New(WithStatsReader(scriptedReader(map[string]Stats{"eth0": {}})))
	r.Init([]string{"eth0"})

	_, err := r.Register("eth0")
	require.NoError(t, err)
	_, err = r.Register("eth0")
	assert.True(t, IsExists(err))
}

func TestRegistry_RegisterEnforcesMaxEntries(t *testing.T) {
	reader := scriptedReader(map[string]Stats{"eth0": {}, "eth1": {}})
	r := New(WithStatsReader(reader), WithMaxEntries(1))
	r.Init([]string{"eth0", "eth1"})

	_, err := r.Register("eth0")
	require.NoError(t, err)
	_, err = r.Register("eth1")
	assert.True(t, IsOutOfMemory(err))
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := New(WithStatsReader(scriptedReader(map[string]Stats{"eth0": {}})))
	r.Init([]string{"eth0"})

	_, err := r.Register("eth0")
	require.NoError(t, err)
	assert.NoError(t, r.Unregister("eth0"))
	assert.NoError(t, r.Unregister("eth0"), "duplicate unregister is a no-op success")
	assert.NoError(t, r.Unregister("never-registered"))
}

func TestRegistry_HandleDeviceEvent(t *testing.T) {
	reader := scriptedReader(map[string]Stats{"eth0": {}, "eth1": {}})
	r := New(WithStatsReader(reader))
	r.Init([]string{"eth0"}) // eth1 is not a target

	r.HandleDeviceEvent("eth1", DeviceUp)
	assert.Equal(t, Stats{}, r.DeltaSingle("eth1"), "non-targeted device-up is ignored")

	r.HandleDeviceEvent("eth0", DeviceUp)
	_, err := r.Register("eth0")
	assert.True(t, IsExists(err), "device-up already registered eth0")

	r.HandleDeviceEvent("eth0", DeviceGoingDown)
	_, err = r.Register("eth0")
	assert.NoError(t, err, "going-down unregistered eth0, so it can be registered again")

	r.HandleDeviceEvent("eth0", DeviceUnregister)
	_, err = r.Register("eth0")
	assert.NoError(t, err, "backup unregister cleanup is idempotent")
}

func TestRegistry_StatsReadFailureKeepsLastSnapshot(t *testing.T) {
	mc := clock.NewManual(0)
	current := map[string]Stats{"eth0": {TxPackets: 100}}
	r := New(WithClock(mc), WithStatsReader(scriptedReader(current)))
	r.Init([]string{"eth0"})
	_, err := r.Register("eth0")
	require.NoError(t, err)

	mc.Set(1000)
	current["eth0"] = Stats{TxPackets: 200}
	r.tick()
	afterGoodTick := r.DeltaSingle("eth0")
	assert.Equal(t, uint64(100), afterGoodTick.TxPackets)

	delete(current, "eth0") // next read fails: interface temporarily unreadable
	mc.Set(2000)
	r.tick()
	afterFailedTick := r.DeltaSingle("eth0")
	assert.Equal(t, afterGoodTick, afterFailedTick, "a failed read leaves the previous/current pair untouched")
}

func TestRegistry_RegisterBeforeInitFails(t *testing.T) {
	r := New(WithStatsReader(scriptedReader(map[string]Stats{"eth0": {}})))
	_, err := r.Register("eth0")
	assert.True(t, IsNotInitialized(err))
}

func TestRegistry_CleanupDropsEntriesAndStopsTicking(t *testing.T) {
	r := New(WithStatsReader(scriptedReader(map[string]Stats{"eth0": {}})))
	r.Init([]string{"eth0"})
	_, err := r.Register("eth0")
	require.NoError(t, err)

	r.Cleanup()
	assert.Equal(t, Stats{}, r.DeltaSingle("eth0"))
}
