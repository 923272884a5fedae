package realtime

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is the transport handle of a live connection. It is used only for
// sending; identity lives in the Connection record. Send must not block.
type Client interface {
	Send(message []byte) bool
	Close(reason string)
}

// Connection tracks one authenticated live connection. The sessions set on
// the connection is the canonical record of its subscriptions; the registry
// maintains the session->users inverse under the same lock.
type Connection struct {
	ID           string
	UserID       string
	Role         string
	client       Client
	sessions     map[string]struct{}
	ConnectedAt  time.Time
	LastActivity time.Time
}

// ActiveUser is the projection of a connection returned to clients.
type ActiveUser struct {
	UserID       string    `json:"userId"`
	Role         string    `json:"role"`
	ConnectedAt  time.Time `json:"connectionTime"`
	LastActivity time.Time `json:"lastActivity"`
}

// SweptConnection describes a connection force-closed by the inactivity sweep.
type SweptConnection struct {
	UserID   string
	Role     string
	Sessions []string
}

// Registry owns all live connections and the session subscription index.
// One mutex guards both maps so the connection's session set and the
// session's subscriber set can never diverge.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection         // by connection id
	byUser map[string]string              // user id -> connection id
	subs   map[string]map[string]struct{} // session id -> user ids

	now func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]string),
		subs:   make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// Register records a new authenticated connection and returns its id.
// A user has at most one live connection: registering again replaces the
// previous one and drops its subscriptions.
func (r *Registry) Register(userID, role string, client Client) string {
	r.mu.Lock()

	var replaced Client
	if oldID, ok := r.byUser[userID]; ok {
		if old := r.conns[oldID]; old != nil {
			replaced = old.client
			r.removeLocked(old)
		}
	}

	now := r.now()
	conn := &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		Role:         role,
		client:       client,
		sessions:     make(map[string]struct{}),
		ConnectedAt:  now,
		LastActivity: now,
	}
	r.conns[conn.ID] = conn
	r.byUser[userID] = conn.ID
	r.mu.Unlock()

	if replaced != nil {
		replaced.Close("replaced by a newer connection")
	}

	log.Printf("user %s connected with role %s (conn %s)", userID, role, conn.ID)
	return conn.ID
}

// Deregister removes a connection and all its subscription edges. Unknown
// ids are a no-op; disconnect races are expected. It returns the sessions
// the connection was watching so callers can emit presence updates.
func (r *Registry) Deregister(connID string) (userID, role string, sessions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return "", "", nil
	}
	for sessionID := range conn.sessions {
		sessions = append(sessions, sessionID)
	}
	r.removeLocked(conn)
	log.Printf("user %s disconnected (conn %s)", conn.UserID, connID)
	return conn.UserID, conn.Role, sessions
}

// removeLocked detaches conn from every map. Caller holds the write lock.
func (r *Registry) removeLocked(conn *Connection) {
	for sessionID := range conn.sessions {
		r.dropEdgeLocked(conn.UserID, sessionID)
	}
	delete(r.conns, conn.ID)
	if r.byUser[conn.UserID] == conn.ID {
		delete(r.byUser, conn.UserID)
	}
}

func (r *Registry) dropEdgeLocked(userID, sessionID string) {
	if set, ok := r.subs[sessionID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(r.subs, sessionID)
		}
	}
}

// Touch updates the connection's activity timestamp. Unknown ids are a no-op.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connID]; ok {
		conn.LastActivity = r.now()
	}
}

// Subscribe adds the (user, session) edge. It reports whether the edge was
// newly added so callers can suppress duplicate join notifications. A user
// without a live connection cannot subscribe.
func (r *Registry) Subscribe(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return false
	}
	conn := r.conns[connID]
	if _, already := conn.sessions[sessionID]; already {
		return false
	}
	conn.sessions[sessionID] = struct{}{}
	conn.LastActivity = r.now()

	if _, ok := r.subs[sessionID]; !ok {
		r.subs[sessionID] = make(map[string]struct{})
	}
	r.subs[sessionID][userID] = struct{}{}
	return true
}

// Unsubscribe removes the (user, session) edge. Removing a non-member is a
// no-op; it reports whether an edge was actually removed.
func (r *Registry) Unsubscribe(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	if connID, ok := r.byUser[userID]; ok {
		conn := r.conns[connID]
		if _, member := conn.sessions[sessionID]; member {
			delete(conn.sessions, sessionID)
			conn.LastActivity = r.now()
			removed = true
		}
	}
	r.dropEdgeLocked(userID, sessionID)
	return removed
}

// IsSubscribed reports whether the user currently watches the session.
func (r *Registry) IsSubscribed(userID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[sessionID][userID]
	return ok
}

// SubscribersOf returns the user ids watching a session, sorted for
// deterministic iteration.
func (r *Registry) SubscribersOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.subs[sessionID]))
	for userID := range r.subs[sessionID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// SessionsOf returns the sessions the user currently watches.
func (r *Registry) SessionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	conn := r.conns[connID]
	sessions := make([]string, 0, len(conn.sessions))
	for sessionID := range conn.sessions {
		sessions = append(sessions, sessionID)
	}
	sort.Strings(sessions)
	return sessions
}

// ActiveUsers returns the connection details of every subscriber of a session.
func (r *Registry) ActiveUsers(sessionID string) []ActiveUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]ActiveUser, 0, len(r.subs[sessionID]))
	for userID := range r.subs[sessionID] {
		connID, ok := r.byUser[userID]
		if !ok {
			continue
		}
		conn := r.conns[connID]
		users = append(users, ActiveUser{
			UserID:       conn.UserID,
			Role:         conn.Role,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.LastActivity,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// clientOf returns the transport handle for a user, if connected.
func (r *Registry) clientOf(userID string) Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if connID, ok := r.byUser[userID]; ok {
		return r.conns[connID].client
	}
	return nil
}

// Sweep force-closes every connection whose last activity is older than
// threshold and removes it with all its edges. This is the only source of
// involuntary disconnection besides transport failure.
func (r *Registry) Sweep(threshold time.Duration) []SweptConnection {
	r.mu.Lock()
	cutoff := r.now().Add(-threshold)

	var swept []SweptConnection
	var clients []Client
	for _, conn := range r.conns {
		if conn.LastActivity.After(cutoff) {
			continue
		}
		sc := SweptConnection{UserID: conn.UserID, Role: conn.Role}
		for sessionID := range conn.sessions {
			sc.Sessions = append(sc.Sessions, sessionID)
		}
		sort.Strings(sc.Sessions)
		swept = append(swept, sc)
		clients = append(clients, conn.client)
		r.removeLocked(conn)
	}
	r.mu.Unlock()

	for i, c := range clients {
		c.Close("inactive connection")
		log.Printf("swept inactive connection for user %s", swept[i].UserID)
	}
	return swept
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
