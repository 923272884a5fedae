package realtime

import (
	"time"
)

// MessageType enumerates every frame type delivered over the real-time
// transport. The catalog is stable across versions; consumers must tolerate
// unknown types.
type MessageType string

const (
	TypePatientStateUpdate       MessageType = "PATIENT_STATE_UPDATE"
	TypeOrderCreated             MessageType = "ORDER_CREATED"
	TypeOrderStatusChanged       MessageType = "ORDER_STATUS_CHANGED"
	TypeTimeEvent                MessageType = "TIME_EVENT"
	TypeSessionStatusChange      MessageType = "SESSION_STATUS_CHANGE"
	TypeRealTimeFeedback         MessageType = "REAL_TIME_FEEDBACK"
	TypeUserJoined               MessageType = "USER_JOINED"
	TypeUserLeft                 MessageType = "USER_LEFT"
	TypeChatMessage              MessageType = "CHAT_MESSAGE"
	TypeNotification             MessageType = "NOTIFICATION"
	TypeNotificationAcknowledged MessageType = "NOTIFICATION_ACKNOWLEDGED"
	TypeNotificationExpired      MessageType = "NOTIFICATION_EXPIRED"
	TypeNotificationDismissed    MessageType = "NOTIFICATION_DISMISSED"
	TypeTypingIndicator          MessageType = "TYPING_INDICATOR"
	TypeConnectionStatus         MessageType = "CONNECTION_STATUS"
	TypeActiveUsers              MessageType = "ACTIVE_USERS"
	TypeActiveNotifications      MessageType = "ACTIVE_NOTIFICATIONS"
	TypeSubscribed               MessageType = "SUBSCRIBED"
	TypeUnsubscribed             MessageType = "UNSUBSCRIBED"
	TypeAuthenticated            MessageType = "AUTHENTICATED"
	TypeError                    MessageType = "ERROR"
	TypePong                     MessageType = "pong"
)

// Metadata carries optional delivery hints on a message.
type Metadata struct {
	Priority               string `json:"priority,omitempty"`
	RequiresAcknowledgment bool   `json:"requiresAcknowledgment,omitempty"`
	TTLSeconds             int    `json:"ttlSeconds,omitempty"`
}

// Message is the envelope for every frame pushed to clients. Payload is one
// of the typed payload structs below, selected by Type; messages are only
// built through the constructors so the pairing cannot drift.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
	Metadata  *Metadata   `json:"metadata,omitempty"`
}

// ChatPayload is the payload of a CHAT_MESSAGE frame. MessageID and the
// envelope timestamp are stamped server-side at send time.
type ChatPayload struct {
	MessageID    string `json:"messageId"`
	SenderID     string `json:"senderId"`
	Content      string `json:"content"`
	TargetUserID string `json:"targetUserId,omitempty"`
	IsOwnMessage bool   `json:"isOwnMessage,omitempty"`
}

// TypingPayload is the payload of a TYPING_INDICATOR frame.
type TypingPayload struct {
	IsTyping bool   `json:"isTyping"`
	Target   string `json:"target,omitempty"`
}

// PresencePayload is the payload of USER_JOINED and USER_LEFT frames.
type PresencePayload struct {
	Role        string `json:"role"`
	ActiveUsers int    `json:"activeUsers"`
}

// ConnectionStatusPayload is the payload of a CONNECTION_STATUS frame.
type ConnectionStatusPayload struct {
	Status string `json:"status"`
}

// SessionStatusPayload is the payload of a SESSION_STATUS_CHANGE frame.
type SessionStatusPayload struct {
	Status    string `json:"status"`
	ChangedBy string `json:"changedBy,omitempty"`
}

// TimeEventPayload is the payload of a TIME_EVENT frame.
type TimeEventPayload struct {
	EventID              string         `json:"eventId"`
	Kind                 string         `json:"kind"`
	Severity             string         `json:"severity"`
	RequiresAttention    bool           `json:"requiresAttention"`
	ScheduledVirtualTime time.Time      `json:"scheduledVirtualTime"`
	VirtualTime          time.Time      `json:"virtualTime"`
	Data                 map[string]any `json:"data,omitempty"`
}

// FeedbackPayload is the payload of a REAL_TIME_FEEDBACK frame.
type FeedbackPayload struct {
	Severity         string   `json:"severity"`
	Message          string   `json:"message"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`
	SentBy           string   `json:"sentBy,omitempty"`
	SentByRole       string   `json:"sentByRole,omitempty"`
}

// NotificationPayload is the payload of a NOTIFICATION frame.
type NotificationPayload struct {
	Notification *Notification `json:"notification"`
}

// NotificationRefPayload is the payload of the acknowledgment, dismissal and
// expiry frames, which reference an existing notification by id.
type NotificationRefPayload struct {
	NotificationID string `json:"notificationId"`
	By             string `json:"by,omitempty"`
}

// ActiveUsersPayload is the payload of an ACTIVE_USERS frame.
type ActiveUsersPayload struct {
	ActiveUsers []ActiveUser `json:"activeUsers"`
}

// ActiveNotificationsPayload is the payload of an ACTIVE_NOTIFICATIONS frame.
type ActiveNotificationsPayload struct {
	Notifications []*Notification `json:"notifications"`
}

// ErrorPayload is the payload of an ERROR frame.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewMessage builds an envelope stamped with the current server time.
func NewMessage(t MessageType, sessionID string, payload any) Message {
	return Message{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// mutatingTypes are the frame types that reflect a mutation of session state.
// They stop flowing once a session reaches a terminal lifecycle state.
var mutatingTypes = map[MessageType]struct{}{
	TypePatientStateUpdate: {},
	TypeOrderCreated:       {},
	TypeOrderStatusChanged: {},
	TypeTimeEvent:          {},
}

// IsMutating reports whether the message type reflects session-state mutation.
func (t MessageType) IsMutating() bool {
	_, ok := mutatingTypes[t]
	return ok
}
