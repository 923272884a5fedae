package realtime

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationStatus is the resolution state of a notification. It is
// monotone: once ACKNOWLEDGED or DISMISSED it never becomes ACTIVE or
// EXPIRED again.
type NotificationStatus string

const (
	NotificationActive       NotificationStatus = "ACTIVE"
	NotificationAcknowledged NotificationStatus = "ACKNOWLEDGED"
	NotificationExpired      NotificationStatus = "EXPIRED"
	NotificationDismissed    NotificationStatus = "DISMISSED"
)

// NotificationPriority grades a notification. Critical notifications always
// reach the full session regardless of targeting policy.
type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "low"
	PriorityMedium   NotificationPriority = "medium"
	PriorityHigh     NotificationPriority = "high"
	PriorityCritical NotificationPriority = "critical"
)

// Notification is an ephemeral, session-scoped record with TTL.
type Notification struct {
	ID             string               `json:"id"`
	SessionID      string               `json:"sessionId"`
	Kind           string               `json:"kind"`
	Title          string               `json:"title,omitempty"`
	Message        string               `json:"message"`
	Priority       NotificationPriority `json:"priority"`
	Status         NotificationStatus   `json:"status"`
	CreatedAt      time.Time            `json:"createdAt"`
	AutoExpireAt   *time.Time           `json:"autoExpireAt,omitempty"`
	AcknowledgedBy string               `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time           `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time           `json:"-"`

	seq int64
}

// CreateNotification is the producer-facing input for Create.
type CreateNotification struct {
	SessionID    string               `json:"sessionId"`
	Kind         string               `json:"kind"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	Priority     NotificationPriority `json:"priority"`
	AutoExpireIn int                  `json:"autoExpireIn"` // seconds; 0 means no expiry
}

// NotificationStore holds the live notifications of all sessions and their
// expiry timers. Every status change is an atomic compare-and-set under one
// mutex, so a timer firing against an already-resolved notification is a
// guaranteed no-op; the race always favors the human action.
type NotificationStore struct {
	mu     sync.Mutex
	items  map[string]*Notification
	timers map[string]*time.Timer
	seq    int64

	router *Router

	// TargetPolicy selects recipients for non-critical notifications.
	// nil means the whole session.
	TargetPolicy func(n *Notification) []string

	now func() time.Time
}

// NewNotificationStore constructs a store delivering through router.
func NewNotificationStore(router *Router) *NotificationStore {
	return &NotificationStore{
		items:  make(map[string]*Notification),
		timers: make(map[string]*time.Timer),
		router: router,
		now:    time.Now,
	}
}

// Create registers a notification as ACTIVE, schedules its expiry timer when
// a TTL is present, and delivers the NOTIFICATION frame. Critical priority
// always goes to the full session; others pass through TargetPolicy.
func (s *NotificationStore) Create(in CreateNotification) (*Notification, error) {
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}

	s.mu.Lock()
	s.seq++
	n := &Notification{
		ID:        uuid.NewString(),
		SessionID: in.SessionID,
		Kind:      in.Kind,
		Title:     in.Title,
		Message:   in.Message,
		Priority:  in.Priority,
		Status:    NotificationActive,
		CreatedAt: s.now(),
		seq:       s.seq,
	}
	if in.AutoExpireIn > 0 {
		at := n.CreatedAt.Add(time.Duration(in.AutoExpireIn) * time.Second)
		n.AutoExpireAt = &at
		id := n.ID
		s.timers[id] = time.AfterFunc(time.Until(at), func() { s.Expire(id) })
	}
	s.items[n.ID] = n
	out := *n
	s.mu.Unlock()

	s.deliver(&out)
	return &out, nil
}

func (s *NotificationStore) deliver(n *Notification) {
	msg := NewMessage(TypeNotification, n.SessionID, NotificationPayload{Notification: n})
	msg.Metadata = &Metadata{
		Priority:               string(n.Priority),
		RequiresAcknowledgment: true,
	}
	if n.AutoExpireAt != nil {
		msg.Metadata.TTLSeconds = int(time.Until(*n.AutoExpireAt).Seconds())
	}

	if n.Priority != PriorityCritical && s.TargetPolicy != nil {
		for _, userID := range s.TargetPolicy(n) {
			s.router.SendToUser(userID, msg)
		}
		return
	}
	s.router.BroadcastToSession(n.SessionID, msg, "")
}

// resolve performs the compare-and-set from ACTIVE to the target status and
// cancels the expiry timer. It reports whether the transition happened and,
// separately, whether the id exists at all.
func (s *NotificationStore) resolve(id string, to NotificationStatus, by string) (n Notification, applied, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return Notification{}, false, false
	}
	if item.Status != NotificationActive {
		return *item, false, true
	}

	now := s.now()
	item.Status = to
	item.ResolvedAt = &now
	if to == NotificationAcknowledged {
		item.AcknowledgedBy = by
		item.AcknowledgedAt = &now
	}
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	return *item, true, true
}

// Acknowledge transitions ACTIVE -> ACKNOWLEDGED and informs the session.
// An already-resolved notification is a no-op; an unknown id is an error,
// since it indicates a client desync.
func (s *NotificationStore) Acknowledge(id, userID string) error {
	n, applied, found := s.resolve(id, NotificationAcknowledged, userID)
	if !found {
		return ErrNotFound("notification", id)
	}
	if !applied {
		return nil
	}
	msg := NewMessage(TypeNotificationAcknowledged, n.SessionID, NotificationRefPayload{NotificationID: id, By: userID})
	s.router.BroadcastToSession(n.SessionID, msg, "")
	return nil
}

// Dismiss transitions ACTIVE -> DISMISSED and informs the session.
func (s *NotificationStore) Dismiss(id, userID string) error {
	n, applied, found := s.resolve(id, NotificationDismissed, userID)
	if !found {
		return ErrNotFound("notification", id)
	}
	if !applied {
		return nil
	}
	msg := NewMessage(TypeNotificationDismissed, n.SessionID, NotificationRefPayload{NotificationID: id, By: userID})
	s.router.BroadcastToSession(n.SessionID, msg, "")
	return nil
}

// Expire is the timer path: ACTIVE -> EXPIRED only. A notification resolved
// before the timer fired stays resolved.
func (s *NotificationStore) Expire(id string) {
	n, applied, found := s.resolve(id, NotificationExpired, "")
	if !found || !applied {
		return
	}
	log.Printf("notification %s expired unacknowledged in session %s", id, n.SessionID)
	msg := NewMessage(TypeNotificationExpired, n.SessionID, NotificationRefPayload{NotificationID: id})
	s.router.BroadcastToSession(n.SessionID, msg, "")
}

// IsResolvedByUser reports whether the notification was acknowledged or
// dismissed by a human, as opposed to still active or expired.
func (s *NotificationStore) IsResolvedByUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return false
	}
	return n.Status == NotificationAcknowledged || n.Status == NotificationDismissed
}

// ListActive returns the ACTIVE notifications of a session, newest first.
func (s *NotificationStore) ListActive(sessionID string) []*Notification {
	return s.list(sessionID, true)
}

// ListAll returns every retained notification of a session, newest first.
func (s *NotificationStore) ListAll(sessionID string) []*Notification {
	return s.list(sessionID, false)
}

func (s *NotificationStore) list(sessionID string, activeOnly bool) []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Notification, 0)
	for _, n := range s.items {
		if n.SessionID != sessionID {
			continue
		}
		if activeOnly && n.Status != NotificationActive {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].seq > out[j].seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// PurgeResolved garbage-collects resolved and expired notifications older
// than the retention window.
func (s *NotificationStore) PurgeResolved(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	purged := 0
	for id, n := range s.items {
		if n.Status == NotificationActive {
			continue
		}
		if n.ResolvedAt != nil && n.ResolvedAt.After(cutoff) {
			continue
		}
		delete(s.items, id)
		purged++
	}
	return purged
}

// Close stops every pending expiry timer.
func (s *NotificationStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
