package simtime

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"simulation-training-api/internal/realtime"
)

// TimeEvent is a pending or fired virtual-time trigger: a lab result coming
// back, a medication taking effect, a deterioration. Pending -> triggered
// happens exactly once; "missed" is a terminal annotation, never a re-fire.
type TimeEvent struct {
	ID                   string                        `json:"id"`
	SessionID            string                        `json:"sessionId"`
	Kind                 string                        `json:"kind"`
	Data                 map[string]any                `json:"data,omitempty"`
	ScheduledVirtualTime time.Time                     `json:"scheduledVirtualTime"`
	TriggeredAt          *time.Time                    `json:"triggeredAt,omitempty"`
	RequiresAttention    bool                          `json:"requiresAttention"`
	Severity             realtime.NotificationPriority `json:"severity"`
	WasMissed            bool                          `json:"wasMissed"`
	MissPenalty          float64                       `json:"missPenalty,omitempty"`

	notificationID string
	seq            int64
}

// Broadcaster fans scheduler output to a session's subscribers.
type Broadcaster interface {
	BroadcastToSession(sessionID string, msg realtime.Message, excludeUserID string)
}

// Notifier is the notification-store surface the scheduler needs for
// attention tracking.
type Notifier interface {
	Create(in realtime.CreateNotification) (*realtime.Notification, error)
	IsResolvedByUser(id string) bool
}

// missPenalties keys the penalty annotation by event severity.
var missPenalties = map[realtime.NotificationPriority]float64{
	realtime.PriorityLow:      1,
	realtime.PriorityMedium:   3,
	realtime.PriorityHigh:     5,
	realtime.PriorityCritical: 10,
}

// Scheduler holds the pending time-triggered events of every session and
// fires them as the virtual clock crosses their scheduled instants.
type Scheduler struct {
	mu     sync.Mutex
	events map[string][]*TimeEvent // per session, all events
	byID   map[string]*TimeEvent
	seq    int64

	broadcaster Broadcaster
	notifier    Notifier

	// GraceWindow is how long a requiresAttention event may stay
	// unacknowledged after triggering before it counts as missed.
	GraceWindow time.Duration

	now func() time.Time
}

// NewScheduler constructs a scheduler emitting through broadcaster and
// tracking attention through notifier.
func NewScheduler(broadcaster Broadcaster, notifier Notifier) *Scheduler {
	return &Scheduler{
		events:      make(map[string][]*TimeEvent),
		byID:        make(map[string]*TimeEvent),
		broadcaster: broadcaster,
		notifier:    notifier,
		GraceWindow: 2 * time.Minute,
		now:         time.Now,
	}
}

// Schedule inserts a pending event keyed by its scheduled virtual time and
// returns a snapshot of it. Events scheduled at the same instant fire in
// insertion order.
func (s *Scheduler) Schedule(sessionID string, ev TimeEvent) TimeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Severity == "" {
		ev.Severity = realtime.PriorityMedium
	}
	ev.SessionID = sessionID
	ev.TriggeredAt = nil
	s.seq++
	ev.seq = s.seq

	stored := ev
	s.events[sessionID] = append(s.events[sessionID], &stored)
	s.byID[stored.ID] = &stored
	return ev
}

// Advance fires every untriggered event with scheduledVirtualTime <= to, in
// ascending scheduled order (insertion order breaks ties), broadcasting one
// TIME_EVENT frame per event. Repeated advances over the same window fire
// nothing twice. It returns snapshots of the fired events.
func (s *Scheduler) Advance(sessionID string, from, to time.Time) []TimeEvent {
	s.mu.Lock()
	var due []*TimeEvent
	for _, ev := range s.events[sessionID] {
		if ev.TriggeredAt == nil && !ev.ScheduledVirtualTime.After(to) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledVirtualTime.Equal(due[j].ScheduledVirtualTime) {
			return due[i].seq < due[j].seq
		}
		return due[i].ScheduledVirtualTime.Before(due[j].ScheduledVirtualTime)
	})

	now := s.now()
	fired := make([]TimeEvent, 0, len(due))
	for _, ev := range due {
		t := now
		ev.TriggeredAt = &t
		fired = append(fired, *ev)
	}
	s.mu.Unlock()

	for _, ev := range fired {
		s.emit(ev, to)
	}
	return fired
}

func (s *Scheduler) emit(ev TimeEvent, virtualNow time.Time) {
	msg := realtime.NewMessage(realtime.TypeTimeEvent, ev.SessionID, realtime.TimeEventPayload{
		EventID:              ev.ID,
		Kind:                 ev.Kind,
		Severity:             string(ev.Severity),
		RequiresAttention:    ev.RequiresAttention,
		ScheduledVirtualTime: ev.ScheduledVirtualTime,
		VirtualTime:          virtualNow,
		Data:                 ev.Data,
	})
	s.broadcaster.BroadcastToSession(ev.SessionID, msg, "")

	if !ev.RequiresAttention || s.notifier == nil {
		return
	}

	n, err := s.notifier.Create(realtime.CreateNotification{
		SessionID:    ev.SessionID,
		Kind:         "time_event",
		Title:        ev.Kind,
		Message:      "A scheduled event requires attention",
		Priority:     ev.Severity,
		AutoExpireIn: int(s.GraceWindow.Seconds()),
	})
	if err != nil {
		log.Printf("attention notification for event %s: %v", ev.ID, err)
		return
	}

	s.mu.Lock()
	if stored, ok := s.byID[ev.ID]; ok {
		stored.notificationID = n.ID
	}
	s.mu.Unlock()

	eventID := ev.ID
	time.AfterFunc(s.GraceWindow, func() { s.checkMissed(eventID) })
}

// checkMissed annotates a requiresAttention event as missed when its grace
// window elapsed without a human resolving the attention notification.
func (s *Scheduler) checkMissed(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[eventID]
	if !ok || ev.WasMissed || ev.notificationID == "" {
		return
	}
	if s.notifier.IsResolvedByUser(ev.notificationID) {
		return
	}
	ev.WasMissed = true
	ev.MissPenalty = missPenalties[ev.Severity]
	log.Printf("event %s (%s) missed in session %s, penalty %.0f",
		ev.ID, ev.Kind, ev.SessionID, ev.MissPenalty)
}

// Pending returns snapshots of the untriggered events of a session in
// scheduled order.
func (s *Scheduler) Pending(sessionID string) []TimeEvent {
	return s.snapshot(sessionID, func(ev *TimeEvent) bool { return ev.TriggeredAt == nil })
}

// Triggered returns snapshots of the fired events of a session.
func (s *Scheduler) Triggered(sessionID string) []TimeEvent {
	return s.snapshot(sessionID, func(ev *TimeEvent) bool { return ev.TriggeredAt != nil })
}

func (s *Scheduler) snapshot(sessionID string, keep func(*TimeEvent) bool) []TimeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TimeEvent, 0)
	for _, ev := range s.events[sessionID] {
		if keep(ev) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledVirtualTime.Equal(out[j].ScheduledVirtualTime) {
			return out[i].seq < out[j].seq
		}
		return out[i].ScheduledVirtualTime.Before(out[j].ScheduledVirtualTime)
	})
	return out
}

// DropSession discards all events of a session entering a terminal state.
func (s *Scheduler) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events[sessionID] {
		delete(s.byID, ev.ID)
	}
	delete(s.events, sessionID)
}
