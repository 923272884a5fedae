package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"simulation-training-api/internal/access"
	"simulation-training-api/internal/models"
	"simulation-training-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxFrameSize   = 4096
	sendBufferSize = 64
)

// wsClient implements realtime.Client by wrapping a websocket connection.
// Frames are queued on a buffered channel and drained by a single writer
// goroutine, so one dead or slow socket never blocks a broadcast.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send queues a frame without blocking. A full buffer drops the frame.
func (c *wsClient) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close sends a close frame and tears the connection down; safe to call twice.
func (c *wsClient) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is already handled at Gin level; allow upgrade from any origin here
		return true
	},
}

// inboundFrame is the single decode target for every client control
// operation; Action selects which fields are meaningful.
type inboundFrame struct {
	Action         string `json:"action"`
	SessionID      string `json:"sessionId,omitempty"`
	Content        string `json:"content,omitempty"`
	TargetUserID   string `json:"targetUserId,omitempty"`
	IsTyping       bool   `json:"isTyping,omitempty"`
	Target         string `json:"target,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
}

// Gateway upgrades authenticated requests and dispatches inbound control
// operations into the real-time core.
type Gateway struct {
	Registry      *realtime.Registry
	Router        *realtime.Router
	Notifications *realtime.NotificationStore
	Authority     *access.Authority
}

// HandleWS upgrades the connection and runs its read loop.
// It requires JWT middleware to have set "user_id" and "role" in context.
// GET /ws
func (g *Gateway) HandleWS(c *gin.Context) {
	userID := c.GetString("user_id")
	role := c.GetString("role")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authorized"})
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("websocket upgrade error:", err)
		return
	}

	client := newWSClient(conn)
	connID := g.Registry.Register(userID, role, client)
	go client.writePump()

	ack := realtime.NewMessage(realtime.TypeAuthenticated, "", nil)
	ack.UserID = userID
	g.Router.SendToUser(userID, ack)

	defer func() {
		gone, goneRole, sessions := g.Registry.Deregister(connID)
		for _, sessionID := range sessions {
			g.Router.UpdateConnectionStatus(sessionID, gone, "disconnected")
			g.Router.NotifyUserLeft(sessionID, gone, goneRole)
		}
		client.Close("connection closed")
	}()

	// Reader loop: every inbound frame refreshes liveness, then dispatches.
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Normal close or error; exit loop
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		g.Registry.Touch(connID)

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		g.dispatch(userID, role, &frame)
	}
}

func (g *Gateway) dispatch(userID, role string, frame *inboundFrame) {
	switch frame.Action {
	case "ping":
		msg := realtime.NewMessage(realtime.TypePong, "", nil)
		g.Router.SendToUser(userID, msg)

	case "subscribe":
		g.subscribe(userID, role, frame.SessionID, false)

	case "connect-session":
		g.subscribe(userID, role, frame.SessionID, true)

	case "unsubscribe":
		g.Registry.Unsubscribe(userID, frame.SessionID)
		g.Router.SendToUser(userID, realtime.NewMessage(realtime.TypeUnsubscribed, frame.SessionID, nil))

	case "disconnect-session":
		if g.Registry.Unsubscribe(userID, frame.SessionID) {
			g.Router.UpdateConnectionStatus(frame.SessionID, userID, "disconnected")
			g.Router.NotifyUserLeft(frame.SessionID, userID, role)
		}

	case "chat-message":
		if err := g.Router.SendChatMessage(frame.SessionID, userID, frame.Content, frame.TargetUserID); err != nil {
			g.Router.SendError(userID, frame.SessionID, realtime.AsError(err, realtime.CodeNotSubscribed))
		}

	case "typing-indicator":
		if !g.Registry.IsSubscribed(userID, frame.SessionID) {
			return
		}
		g.Router.BroadcastTypingIndicator(frame.SessionID, userID, frame.IsTyping, frame.Target)

	case "acknowledge-notification":
		if err := g.Notifications.Acknowledge(frame.NotificationID, userID); err != nil {
			g.Router.SendError(userID, frame.SessionID, realtime.AsError(err, realtime.CodeNotFound))
		}

	case "dismiss-notification":
		if err := g.Notifications.Dismiss(frame.NotificationID, userID); err != nil {
			g.Router.SendError(userID, frame.SessionID, realtime.AsError(err, realtime.CodeNotFound))
		}

	case "get-active-users":
		if !g.Registry.IsSubscribed(userID, frame.SessionID) {
			g.Router.SendError(userID, frame.SessionID, realtime.ErrNotSubscribed(frame.SessionID))
			return
		}
		msg := realtime.NewMessage(realtime.TypeActiveUsers, frame.SessionID, realtime.ActiveUsersPayload{
			ActiveUsers: g.Registry.ActiveUsers(frame.SessionID),
		})
		g.Router.SendToUser(userID, msg)

	case "get-active-notifications":
		if !g.Registry.IsSubscribed(userID, frame.SessionID) {
			g.Router.SendError(userID, frame.SessionID, realtime.ErrNotSubscribed(frame.SessionID))
			return
		}
		msg := realtime.NewMessage(realtime.TypeActiveNotifications, frame.SessionID, realtime.ActiveNotificationsPayload{
			Notifications: g.Notifications.ListActive(frame.SessionID),
		})
		g.Router.SendToUser(userID, msg)

	default:
		log.Printf("unknown ws action %q from user %s", frame.Action, userID)
	}
}

// subscribe runs the external access check, records the edge, and (for
// connect-session) announces presence. Subscribing twice is idempotent and
// never produces a duplicate join notification.
func (g *Gateway) subscribe(userID, role, sessionID string, announce bool) {
	allowed, err := g.Authority.CanAccess(userID, models.UserRole(role), sessionID)
	if err != nil {
		g.Router.SendError(userID, sessionID, realtime.AsError(err, realtime.CodeNotFound))
		return
	}
	if !allowed {
		g.Router.SendError(userID, sessionID,
			realtime.NewError(realtime.CodeAuthorization, "access denied to session %s", sessionID))
		return
	}

	added := g.Registry.Subscribe(userID, sessionID)
	g.Router.SendToUser(userID, realtime.NewMessage(realtime.TypeSubscribed, sessionID, nil))

	if announce && added {
		g.Router.UpdateConnectionStatus(sessionID, userID, "connected")
		g.Router.NotifyUserJoined(sessionID, userID, role)
	}
}
