package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Router fans messages out to the subscribers of a session, or to one user
// directly. Delivery to each recipient is independent and best-effort: a
// failed or slow transport never blocks the others (Client.Send is
// non-blocking). A single dispatch mutex keeps the enqueue order identical
// for every recipient within this process; no ordering is guaranteed across
// processes.
type Router struct {
	registry *Registry

	// AllowMutating gates session-state frame types. When set and returning
	// false for a session, TIME_EVENT and the order/patient-state types are
	// dropped, which is how terminal sessions go quiet.
	AllowMutating func(sessionID string) bool

	dispatchMu sync.Mutex
	now        func() time.Time
}

// NewRouter constructs a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry, now: time.Now}
}

// BroadcastToSession delivers the message to every subscriber of the session
// except excludeUserID (empty string excludes no one).
func (rt *Router) BroadcastToSession(sessionID string, msg Message, excludeUserID string) {
	if msg.Type.IsMutating() && rt.AllowMutating != nil && !rt.AllowMutating(sessionID) {
		return
	}

	subscribers := rt.registry.SubscribersOf(sessionID)
	if len(subscribers) == 0 {
		return
	}

	rt.dispatchMu.Lock()
	defer rt.dispatchMu.Unlock()

	data := rt.marshal(&msg)
	if data == nil {
		return
	}
	for _, userID := range subscribers {
		if userID == excludeUserID {
			continue
		}
		rt.deliver(userID, data)
	}
}

// SendToUser delivers a message directly. If the user has no live connection
// the message is dropped, not queued; this layer holds no durable log.
func (rt *Router) SendToUser(userID string, msg Message) bool {
	rt.dispatchMu.Lock()
	defer rt.dispatchMu.Unlock()

	data := rt.marshal(&msg)
	if data == nil {
		return false
	}
	return rt.deliver(userID, data)
}

func (rt *Router) deliver(userID string, data []byte) bool {
	client := rt.registry.clientOf(userID)
	if client == nil {
		return false
	}
	if !client.Send(data) {
		log.Printf("dropped frame for user %s: send buffer full or closed", userID)
		return false
	}
	return true
}

func (rt *Router) marshal(msg *Message) []byte {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = rt.now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal %s frame: %v", msg.Type, err)
		return nil
	}
	return data
}

// SendChatMessage routes one chat message. With a target it is private:
// delivered only to the target and echoed to the sender tagged isOwnMessage.
// Without a target it goes to every subscriber except the sender, then the
// sender receives the echo. The message id and timestamp are stamped here,
// never taken from the client.
func (rt *Router) SendChatMessage(sessionID, senderID, content, targetUserID string) error {
	if !rt.registry.IsSubscribed(senderID, sessionID) {
		return ErrNotSubscribed(sessionID)
	}

	payload := ChatPayload{
		MessageID:    uuid.NewString(),
		SenderID:     senderID,
		Content:      content,
		TargetUserID: targetUserID,
	}
	msg := NewMessage(TypeChatMessage, sessionID, payload)
	msg.UserID = senderID

	echo := msg
	echoPayload := payload
	echoPayload.IsOwnMessage = true
	echo.Payload = echoPayload

	if targetUserID != "" {
		if !rt.registry.IsSubscribed(targetUserID, sessionID) {
			return ErrNotSubscribed(sessionID)
		}
		rt.SendToUser(targetUserID, msg)
		rt.SendToUser(senderID, echo)
		return nil
	}

	rt.BroadcastToSession(sessionID, msg, senderID)
	rt.SendToUser(senderID, echo)
	return nil
}

// BroadcastTypingIndicator fans a typing state to everyone but the typist.
// Fire-and-forget: no acknowledgment, nothing persisted.
func (rt *Router) BroadcastTypingIndicator(sessionID, userID string, isTyping bool, target string) {
	msg := NewMessage(TypeTypingIndicator, sessionID, TypingPayload{IsTyping: isTyping, Target: target})
	msg.UserID = userID
	rt.BroadcastToSession(sessionID, msg, userID)
}

// NotifyUserJoined announces a new subscriber to everyone else in the session.
func (rt *Router) NotifyUserJoined(sessionID, userID, role string) {
	count := len(rt.registry.SubscribersOf(sessionID))
	msg := NewMessage(TypeUserJoined, sessionID, PresencePayload{Role: role, ActiveUsers: count})
	msg.UserID = userID
	rt.BroadcastToSession(sessionID, msg, userID)
}

// NotifyUserLeft announces a departed subscriber to the remaining session.
func (rt *Router) NotifyUserLeft(sessionID, userID, role string) {
	count := len(rt.registry.SubscribersOf(sessionID))
	msg := NewMessage(TypeUserLeft, sessionID, PresencePayload{Role: role, ActiveUsers: count})
	msg.UserID = userID
	rt.BroadcastToSession(sessionID, msg, "")
}

// UpdateConnectionStatus fans a user's connection state to the session.
func (rt *Router) UpdateConnectionStatus(sessionID, userID, status string) {
	msg := NewMessage(TypeConnectionStatus, sessionID, ConnectionStatusPayload{Status: status})
	msg.UserID = userID
	rt.BroadcastToSession(sessionID, msg, userID)
}

// NotifySessionStatusChange announces a lifecycle transition.
func (rt *Router) NotifySessionStatusChange(sessionID, status, changedBy string) {
	msg := NewMessage(TypeSessionStatusChange, sessionID, SessionStatusPayload{Status: status, ChangedBy: changedBy})
	rt.BroadcastToSession(sessionID, msg, "")
}

// SendFeedback delivers supervisor feedback directly to one user.
func (rt *Router) SendFeedback(sessionID, targetUserID string, payload FeedbackPayload) {
	msg := NewMessage(TypeRealTimeFeedback, sessionID, payload)
	rt.SendToUser(targetUserID, msg)
}

// SendError delivers a structured error frame to one user.
func (rt *Router) SendError(userID, sessionID string, rtErr *Error) {
	msg := NewMessage(TypeError, sessionID, ErrorPayload{Code: rtErr.Code, Message: rtErr.Message})
	rt.SendToUser(userID, msg)
}
