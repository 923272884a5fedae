package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClient records delivered frames; broken simulates a dead transport.
type fakeClient struct {
	mu     sync.Mutex
	frames [][]byte
	broken bool
	closed bool
}

func (f *fakeClient) Send(message []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return false
	}
	f.frames = append(f.frames, message)
	return true
}

func (f *fakeClient) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) messages(t *testing.T) []Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(f.frames))
	for _, frame := range f.frames {
		var msg Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		out = append(out, msg)
	}
	return out
}

func (f *fakeClient) types(t *testing.T) []MessageType {
	t.Helper()
	msgs := f.messages(t)
	out := make([]MessageType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestRegistry_RegisterReplacesPreviousConnection(t *testing.T) {
	r := NewRegistry()
	first := &fakeClient{}
	second := &fakeClient{}

	id1 := r.Register("u-1", "STUDENT", first)
	require.True(t, r.Subscribe("u-1", "s-1"))

	id2 := r.Register("u-1", "STUDENT", second)
	require.NotEqual(t, id1, id2)
	require.True(t, first.closed)

	// Old subscriptions do not survive the replacement.
	require.False(t, r.IsSubscribed("u-1", "s-1"))
	require.Equal(t, 1, r.ConnectionCount())
}

func TestRegistry_SubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("u-1", "STUDENT", &fakeClient{})

	require.True(t, r.Subscribe("u-1", "s-1"))
	require.False(t, r.Subscribe("u-1", "s-1"), "second subscribe must report no new edge")
	require.Equal(t, []string{"u-1"}, r.SubscribersOf("s-1"))
	require.Equal(t, []string{"s-1"}, r.SessionsOf("u-1"))
}

func TestRegistry_SubscribeWithoutConnection(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Subscribe("ghost", "s-1"))
	require.Empty(t, r.SubscribersOf("s-1"))
}

func TestRegistry_UnsubscribeNonMemberIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Register("u-1", "STUDENT", &fakeClient{})

	require.False(t, r.Unsubscribe("u-1", "s-1"))

	r.Subscribe("u-1", "s-1")
	require.True(t, r.Unsubscribe("u-1", "s-1"))
	// Empty subscriber sets are dropped, not kept around.
	require.Empty(t, r.SubscribersOf("s-1"))
	require.False(t, r.IsSubscribed("u-1", "s-1"))
}

func TestRegistry_DeregisterRemovesAllEdges(t *testing.T) {
	r := NewRegistry()
	connID := r.Register("u-1", "STUDENT", &fakeClient{})
	r.Register("u-2", "OBSERVER", &fakeClient{})
	r.Subscribe("u-1", "s-1")
	r.Subscribe("u-1", "s-2")
	r.Subscribe("u-2", "s-1")

	userID, role, sessions := r.Deregister(connID)
	require.Equal(t, "u-1", userID)
	require.Equal(t, "STUDENT", role)
	require.ElementsMatch(t, []string{"s-1", "s-2"}, sessions)

	require.Equal(t, []string{"u-2"}, r.SubscribersOf("s-1"))
	require.Empty(t, r.SubscribersOf("s-2"))

	// Deregistering twice is a no-op, not an error.
	userID, _, sessions = r.Deregister(connID)
	require.Empty(t, userID)
	require.Empty(t, sessions)
}

func TestRegistry_SweepClosesStaleConnections(t *testing.T) {
	r := NewRegistry()
	current := time.Now()
	r.now = func() time.Time { return current }

	stale := &fakeClient{}
	fresh := &fakeClient{}
	r.Register("u-stale", "STUDENT", stale)
	r.Subscribe("u-stale", "s-1")
	current = current.Add(10 * time.Minute)
	freshID := r.Register("u-fresh", "STUDENT", fresh)
	r.Subscribe("u-fresh", "s-1")

	swept := r.Sweep(5 * time.Minute)
	require.Len(t, swept, 1)
	require.Equal(t, "u-stale", swept[0].UserID)
	require.Equal(t, []string{"s-1"}, swept[0].Sessions)
	require.True(t, stale.closed)
	require.False(t, fresh.closed)
	require.Equal(t, []string{"u-fresh"}, r.SubscribersOf("s-1"))

	// Touch refreshes liveness and keeps a connection out of the sweep.
	current = current.Add(4 * time.Minute)
	r.Touch(freshID)
	current = current.Add(2 * time.Minute)
	require.Empty(t, r.Sweep(5*time.Minute))
}

func TestRegistry_ActiveUsers(t *testing.T) {
	r := NewRegistry()
	r.Register("u-b", "SUPERVISOR", &fakeClient{})
	r.Register("u-a", "STUDENT", &fakeClient{})
	r.Subscribe("u-b", "s-1")
	r.Subscribe("u-a", "s-1")

	users := r.ActiveUsers("s-1")
	require.Len(t, users, 2)
	require.Equal(t, "u-a", users[0].UserID)
	require.Equal(t, "STUDENT", users[0].Role)
	require.Equal(t, "u-b", users[1].UserID)
}
