package simtime

import (
	"fmt"
	"math"
	"sync"
	"time"

	"simulation-training-api/internal/realtime"
)

// FlowMode is how a session's virtual clock advances relative to wall time.
type FlowMode string

const (
	ModeRealTime    FlowMode = "REAL_TIME"
	ModeAccelerated FlowMode = "ACCELERATED"
	ModePaused      FlowMode = "PAUSED"
)

func validMode(m FlowMode) bool {
	return m == ModeRealTime || m == ModeAccelerated || m == ModePaused
}

// ClockState is the live virtual-time state of one session. Virtual time is
// monotonically non-decreasing and never moves while paused.
type ClockState struct {
	SessionID           string    `json:"sessionId"`
	CurrentVirtualTime  time.Time `json:"currentVirtualTime"`
	Mode                FlowMode  `json:"timeFlowMode"`
	AccelerationRate    float64   `json:"accelerationRate"`        // virtual minutes per real minute
	TotalVirtualElapsed float64   `json:"totalVirtualTimeElapsed"` // minutes
	TotalRealElapsed    int       `json:"totalRealTimeElapsed"`    // seconds
	LastSyncAt          time.Time `json:"lastSyncAt"`

	prevMode FlowMode // mode to restore on resume
}

// Advance is a closed window of virtual time handed to the event scheduler.
type Advance struct {
	SessionID      string
	From           time.Time
	To             time.Time
	VirtualMinutes float64
	RealSeconds    int
}

// ClockStore holds one virtual clock per active session. Clocks are created
// when a session activates and dropped when it reaches a terminal state.
type ClockStore struct {
	mu     sync.Mutex
	clocks map[string]*ClockState
	now    func() time.Time
}

// NewClockStore constructs an empty store.
func NewClockStore() *ClockStore {
	return &ClockStore{clocks: make(map[string]*ClockState), now: time.Now}
}

// Start creates the clock for a newly activated session. The acceleration
// rate comes from scenario authoring and is fixed for the session's lifetime.
// The initial flow mode is REAL_TIME.
func (cs *ClockStore) Start(sessionID string, accelerationRate float64) (ClockState, error) {
	if accelerationRate <= 0 {
		return ClockState{}, fmt.Errorf("acceleration rate must be > 0, got %v", accelerationRate)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if existing, ok := cs.clocks[sessionID]; ok {
		return *existing, nil
	}

	now := cs.now()
	clock := &ClockState{
		SessionID:          sessionID,
		CurrentVirtualTime: now,
		Mode:               ModeRealTime,
		AccelerationRate:   accelerationRate,
		LastSyncAt:         now,
		prevMode:           ModeRealTime,
	}
	cs.clocks[sessionID] = clock
	return *clock, nil
}

// Get returns a snapshot of the session's clock.
func (cs *ClockStore) Get(sessionID string) (ClockState, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	clock, ok := cs.clocks[sessionID]
	if !ok {
		return ClockState{}, realtime.ErrNotFound("session clock", sessionID)
	}
	return *clock, nil
}

// Exists reports whether the session still has a live clock. Terminal
// sessions do not.
func (cs *ClockStore) Exists(sessionID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.clocks[sessionID]
	return ok
}

// SetMode switches the flow mode. Any transition is legal; LastSyncAt is
// always reset to the transition instant so no wall-clock span is counted
// twice or skipped. Entering PAUSED freezes virtual time at its present
// value after applying any pending real-time drift.
func (cs *ClockStore) SetMode(sessionID string, mode FlowMode) (ClockState, error) {
	if !validMode(mode) {
		return ClockState{}, realtime.NewError(realtime.CodeInvalidMode, "unknown time flow mode %q", mode)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	clock, ok := cs.clocks[sessionID]
	if !ok {
		return ClockState{}, realtime.ErrNotFound("session clock", sessionID)
	}

	cs.syncLocked(clock)
	if mode == ModePaused && clock.Mode != ModePaused {
		clock.prevMode = clock.Mode
	}
	clock.Mode = mode
	clock.LastSyncAt = cs.now()
	return *clock, nil
}

// Resume restores the mode that was in effect before the last pause. The
// wall-clock span spent paused is never replayed into virtual time.
func (cs *ClockStore) Resume(sessionID string) (ClockState, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	clock, ok := cs.clocks[sessionID]
	if !ok {
		return ClockState{}, realtime.ErrNotFound("session clock", sessionID)
	}
	if clock.Mode == ModePaused {
		clock.Mode = clock.prevMode
		clock.LastSyncAt = cs.now()
	}
	return *clock, nil
}

// FastForward advances virtual time by virtualMinutes in one step. Legal
// only in ACCELERATED mode. The real-time equivalent is
// floor(virtualMinutes*60/accelerationRate) seconds; both elapsed counters
// accumulate. The returned window is what the event scheduler must process.
func (cs *ClockStore) FastForward(sessionID string, virtualMinutes int) (Advance, error) {
	if virtualMinutes <= 0 {
		return Advance{}, realtime.NewError(realtime.CodeInvalidMode, "virtual minutes must be > 0")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	clock, ok := cs.clocks[sessionID]
	if !ok {
		return Advance{}, realtime.ErrNotFound("session clock", sessionID)
	}
	if clock.Mode != ModeAccelerated {
		return Advance{}, realtime.NewError(realtime.CodeInvalidMode,
			"session is not in accelerated time mode")
	}

	realSeconds := int(math.Floor(float64(virtualMinutes) * 60 / clock.AccelerationRate))
	from := clock.CurrentVirtualTime
	to := from.Add(time.Duration(virtualMinutes) * time.Minute)

	clock.CurrentVirtualTime = to
	clock.TotalVirtualElapsed += float64(virtualMinutes)
	clock.TotalRealElapsed += realSeconds
	clock.LastSyncAt = cs.now()

	return Advance{
		SessionID:      sessionID,
		From:           from,
		To:             to,
		VirtualMinutes: float64(virtualMinutes),
		RealSeconds:    realSeconds,
	}, nil
}

// syncLocked folds pending wall-clock drift into virtual time. Only
// REAL_TIME flows continuously; ACCELERATED advances solely through explicit
// fast-forwards and PAUSED never moves.
func (cs *ClockStore) syncLocked(clock *ClockState) (Advance, bool) {
	if clock.Mode != ModeRealTime {
		return Advance{}, false
	}
	now := cs.now()
	elapsed := now.Sub(clock.LastSyncAt)
	if elapsed <= 0 {
		return Advance{}, false
	}

	from := clock.CurrentVirtualTime
	to := from.Add(elapsed)
	clock.CurrentVirtualTime = to
	clock.TotalVirtualElapsed += elapsed.Minutes()
	clock.TotalRealElapsed += int(elapsed.Seconds())
	clock.LastSyncAt = now

	return Advance{
		SessionID:      clock.SessionID,
		From:           from,
		To:             to,
		VirtualMinutes: elapsed.Minutes(),
		RealSeconds:    int(elapsed.Seconds()),
	}, true
}

// SyncAll applies real-time drift to every REAL_TIME clock and returns the
// advanced windows for the scheduler. Called from a periodic tick.
func (cs *ClockStore) SyncAll() []Advance {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var advances []Advance
	for _, clock := range cs.clocks {
		if adv, ok := cs.syncLocked(clock); ok {
			advances = append(advances, adv)
		}
	}
	return advances
}

// Stop removes the clock of a session entering a terminal state and returns
// its final snapshot for persistence.
func (cs *ClockStore) Stop(sessionID string) (ClockState, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	clock, ok := cs.clocks[sessionID]
	if !ok {
		return ClockState{}, false
	}
	cs.syncLocked(clock)
	snapshot := *clock
	delete(cs.clocks, sessionID)
	return snapshot, true
}
