package simtime

import (
	"testing"
	"time"

	"simulation-training-api/internal/realtime"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ClockStore, *time.Time) {
	t.Helper()
	cs := NewClockStore()
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return current }
	return cs, &current
}

func TestClock_StartDefaults(t *testing.T) {
	cs, _ := newTestStore(t)

	clock, err := cs.Start("s-1", 60)
	require.NoError(t, err)
	require.Equal(t, ModeRealTime, clock.Mode)
	require.Equal(t, float64(60), clock.AccelerationRate)
	require.True(t, cs.Exists("s-1"))

	// Starting twice returns the existing clock unchanged.
	again, err := cs.Start("s-1", 10)
	require.NoError(t, err)
	require.Equal(t, float64(60), again.AccelerationRate)
}

func TestClock_StartRejectsBadRate(t *testing.T) {
	cs, _ := newTestStore(t)
	_, err := cs.Start("s-1", 0)
	require.Error(t, err)
	require.False(t, cs.Exists("s-1"))
}

func TestClock_FastForwardRequiresAcceleratedMode(t *testing.T) {
	cs, _ := newTestStore(t)
	started, err := cs.Start("s-1", 60)
	require.NoError(t, err)

	_, err = cs.FastForward("s-1", 30)
	require.Error(t, err)
	rtErr, ok := err.(*realtime.Error)
	require.True(t, ok)
	require.Equal(t, realtime.CodeInvalidMode, rtErr.Code)

	// A rejected fast-forward leaves the clock untouched.
	clock, err := cs.Get("s-1")
	require.NoError(t, err)
	require.Equal(t, started.CurrentVirtualTime, clock.CurrentVirtualTime)
	require.Zero(t, clock.TotalVirtualElapsed)
}

func TestClock_FastForwardMath(t *testing.T) {
	cs, _ := newTestStore(t)
	_, err := cs.Start("s-1", 60)
	require.NoError(t, err)
	_, err = cs.SetMode("s-1", ModeAccelerated)
	require.NoError(t, err)

	// Rate 60: 30 virtual minutes cost floor(30*60/60) = 30 real seconds.
	adv, err := cs.FastForward("s-1", 30)
	require.NoError(t, err)
	require.Equal(t, 30, adv.RealSeconds)
	require.Equal(t, float64(30), adv.VirtualMinutes)
	require.Equal(t, 30*time.Minute, adv.To.Sub(adv.From))

	clock, _ := cs.Get("s-1")
	require.Equal(t, adv.To, clock.CurrentVirtualTime)
	require.Equal(t, float64(30), clock.TotalVirtualElapsed)
	require.Equal(t, 30, clock.TotalRealElapsed)
}

func TestClock_FastForwardAccumulatesMonotonically(t *testing.T) {
	cs, _ := newTestStore(t)
	cs.Start("s-1", 90)
	cs.SetMode("s-1", ModeAccelerated)

	var total float64
	last, _ := cs.Get("s-1")
	for _, minutes := range []int{5, 45, 1, 120} {
		adv, err := cs.FastForward("s-1", minutes)
		require.NoError(t, err)
		total += float64(minutes)
		require.False(t, adv.To.Before(last.CurrentVirtualTime), "virtual time went backwards")
		last, _ = cs.Get("s-1")
	}

	clock, _ := cs.Get("s-1")
	require.Equal(t, total, clock.TotalVirtualElapsed)
}

func TestClock_PauseFreezesVirtualTime(t *testing.T) {
	cs, current := newTestStore(t)
	cs.Start("s-1", 60)

	clock, err := cs.SetMode("s-1", ModePaused)
	require.NoError(t, err)
	frozen := clock.CurrentVirtualTime

	// Wall clock marches on; virtual time must not.
	*current = current.Add(30 * time.Minute)
	require.Empty(t, cs.SyncAll())
	clock, _ = cs.Get("s-1")
	require.Equal(t, frozen, clock.CurrentVirtualTime)
}

func TestClock_ResumeRestoresPriorMode(t *testing.T) {
	cs, _ := newTestStore(t)
	cs.Start("s-1", 60)
	cs.SetMode("s-1", ModeAccelerated)
	cs.SetMode("s-1", ModePaused)

	clock, err := cs.Resume("s-1")
	require.NoError(t, err)
	require.Equal(t, ModeAccelerated, clock.Mode)

	// Pausing then resuming never decreases virtual time.
	adv, err := cs.FastForward("s-1", 10)
	require.NoError(t, err)
	require.True(t, adv.To.After(adv.From))
}

func TestClock_RealTimeSyncAdvancesLazily(t *testing.T) {
	cs, current := newTestStore(t)
	started, _ := cs.Start("s-1", 60)

	*current = current.Add(90 * time.Second)
	advances := cs.SyncAll()
	require.Len(t, advances, 1)
	require.Equal(t, "s-1", advances[0].SessionID)
	require.Equal(t, 90, advances[0].RealSeconds)

	clock, _ := cs.Get("s-1")
	require.Equal(t, started.CurrentVirtualTime.Add(90*time.Second), clock.CurrentVirtualTime)

	// Accelerated clocks only move via explicit fast-forward.
	cs.SetMode("s-1", ModeAccelerated)
	*current = current.Add(time.Hour)
	require.Empty(t, cs.SyncAll())
}

func TestClock_UnknownSessionErrors(t *testing.T) {
	cs, _ := newTestStore(t)

	_, err := cs.Get("missing")
	require.Error(t, err)
	_, err = cs.SetMode("missing", ModePaused)
	require.Error(t, err)
	_, err = cs.FastForward("missing", 5)
	require.Error(t, err)

	_, ok := cs.Stop("missing")
	require.False(t, ok)
}

func TestClock_StopReturnsFinalSnapshot(t *testing.T) {
	cs, _ := newTestStore(t)
	cs.Start("s-1", 60)
	cs.SetMode("s-1", ModeAccelerated)
	cs.FastForward("s-1", 30)

	snapshot, ok := cs.Stop("s-1")
	require.True(t, ok)
	require.Equal(t, float64(30), snapshot.TotalVirtualElapsed)
	require.False(t, cs.Exists("s-1"))
}
