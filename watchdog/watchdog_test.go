package watchdog

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcore/periodwatch/internal/clock"
	"github.com/watchcore/periodwatch/internal/handle"
)

func TestSupervisor_AddPanicsBelowMinTimeout(t *testing.T) {
	s := New()
	require.NoError(t, s.Init())

	assert.Panics(t, func() {
		s.Add(MinTimeoutMS-1, func(any) {}, nil)
	})
}

func TestSupervisor_InitTwiceFails(t *testing.T) {
	s := New()
	require.NoError(t, s.Init())
	err := s.Init()
	assert.True(t, IsAlreadyInitialized(err))
}

func TestSupervisor_AdaptivePeriodSequence(t *testing.T) {
	// Adding and removing items of varying timeouts must keep the
	// adaptive period tracking the shortest still-registered one.
	mc := clock.NewManual(0)
	s := New(WithClock(mc), WithHandleGenerator(handle.NewFixedGenerator("a", "b", "c")))
	require.NoError(t, s.Init())

	itA := s.Add(2000, func(any) {}, nil)
	assert.Equal(t, uint64(1000), s.PeriodMS())
	assert.True(t, s.WorkActive())

	itB := s.Add(800, func(any) {}, nil)
	assert.Equal(t, uint64(400), s.PeriodMS())

	s.Add(50000, func(any) {}, nil)
	assert.Equal(t, uint64(400), s.PeriodMS(), "shortest timeout is still 800ms")

	require.NoError(t, s.Remove(itB))
	assert.Equal(t, uint64(1000), s.PeriodMS(), "shortest remaining is 2000ms")

	require.NoError(t, s.Remove(itA))
	assert.Equal(t, uint64(25000), s.PeriodMS(), "only the 50000ms item remains")

	it50000 := s.items[0]
	require.NoError(t, s.Remove(it50000))
	assert.Equal(t, uint64(0), s.PeriodMS())
	assert.False(t, s.WorkActive())
}

func TestSupervisor_PeriodFloorsAtMaxWorkPeriod(t *testing.T) {
	s := New()
	require.NoError(t, s.Init())

	s.Add(MinTimeoutMS, func(any) {}, nil) // 200/2 == 100 == MaxWorkPeriodMS exactly
	assert.Equal(t, uint64(MaxWorkPeriodMS), s.PeriodMS())
}

func TestItem_StartIsIdempotentUntilCancel(t *testing.T) {
	// P5: repeated Start calls without an intervening Cancel do not
	// change start_time.
	mc := clock.NewManual(1000)
	s := New(WithClock(mc))
	require.NoError(t, s.Init())

	it := s.Add(MinTimeoutMS, func(any) {}, nil)
	it.Start()
	first := it.StartTimeMS()
	assert.Equal(t, uint64(1000), first)

	mc.Advance(500)
	it.Start()
	assert.Equal(t, first, it.StartTimeMS(), "second Start before Cancel is a no-op")

	it.Cancel()
	mc.Advance(500)
	it.Start()
	assert.Equal(t, uint64(2000), it.StartTimeMS(), "Start after Cancel re-publishes start_time")
}

func TestSupervisor_RepeatedRecoveryUntilCancel(t *testing.T) {
	// P6: recovery fires on every tick past timeout until the item is
	// cancelled or removed.
	mc := clock.NewManual(0)
	s := New(WithClock(mc))
	require.NoError(t, s.Init())

	var calls atomic.Int32
	it := s.Add(MinTimeoutMS, func(any) { calls.Add(1) }, nil)
	it.Start()

	mc.Advance(MinTimeoutMS) // exactly at timeout: due
	s.tick()
	assert.Equal(t, int32(1), calls.Load())

	s.tick() // clock unchanged, still past timeout: fires again
	assert.Equal(t, int32(2), calls.Load())

	mc.Advance(50)
	s.tick()
	assert.Equal(t, int32(3), calls.Load(), "recovery repeats every tick past timeout")

	it.Cancel()
	s.tick()
	assert.Equal(t, int32(3), calls.Load(), "cancelled item stops firing")
}

func TestSupervisor_InactiveItemNeverFires(t *testing.T) {
	mc := clock.NewManual(0)
	s := New(WithClock(mc))
	require.NoError(t, s.Init())

	var calls atomic.Int32
	s.Add(MinTimeoutMS, func(any) { calls.Add(1) }, nil)

	mc.Advance(MinTimeoutMS * 10)
	s.tick()
	assert.Equal(t, int32(0), calls.Load(), "an item that was never Started cannot time out")
}

func TestSupervisor_RemoveUnknownItemFails(t *testing.T) {
	s1 := New()
	require.NoError(t, s1.Init())
	s2 := New()
	require.NoError(t, s2.Init())

	it := s1.Add(MinTimeoutMS, func(any) {}, nil)
	err := s2.Remove(it)
	assert.True(t, IsNotFound(err))

	require.NoError(t, s1.Remove(it))
	err = s1.Remove(it)
	assert.True(t, IsNotFound(err))
}

func TestSupervisor_DeinitInvalidatesItemsAndStopsTicking(t *testing.T) {
	s := New()
	require.NoError(t, s.Init())

	it := s.Add(MinTimeoutMS, func(any) {}, nil)
	it.Start()
	assert.True(t, s.WorkActive(), "Add schedules the tick once the registry is non-empty")

	s.Deinit()
	assert.False(t, it.valid.Load())
	assert.False(t, s.WorkActive())
}
