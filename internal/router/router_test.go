package router

import (
	"encoding/json"
	"sync"
	"testing"

	"collabhub/internal/broadcast"
	"collabhub/internal/eventlog"
	"collabhub/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recorder struct {
	mu     sync.Mutex
	events []eventlog.SessionEvent
}

func (r *recorder) Append(ev eventlog.SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

type fixture struct {
	reg    *registry.Registry
	router *Router
	events *recorder
}

func newFixture(limits Limits) *fixture {
	reg := registry.New()
	events := &recorder{}
	return &fixture{
		reg:    reg,
		router: New(reg, broadcast.New(reg, nil), events, limits),
		events: events,
	}
}

func (f *fixture) join(t *testing.T, roomID, userID string) *registry.Conn {
	t.Helper()
	c := registry.NewConn(64)
	f.reg.Register(c)
	require.NoError(t, f.reg.Bind(c.ID(), roomID, userID))
	return c
}

func frames(c *registry.Conn) []map[string]any {
	var out []map[string]any
	for {
		select {
		case raw := <-c.Outbound():
			var m map[string]any
			_ = json.Unmarshal(raw, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

var unlimited = Limits{Rate: rate.Inf, Burst: 1}

func TestRoute_Chat(t *testing.T) {
	f := newFixture(unlimited)
	a := f.join(t, "X", "alice")
	b := f.join(t, "X", "bob")
	c := f.join(t, "X", "carol")
	y := f.join(t, "Y", "dave")

	res := f.router.Route(a.ID(), []byte(`{"type":"chat","content":"hi","user_id":"mallory"}`))
	require.NoError(t, res.Dropped)
	assert.Equal(t, 2, res.Delivered)
	assert.True(t, res.Logged)

	assert.Empty(t, frames(a))
	assert.Empty(t, frames(y))
	for _, peer := range []*registry.Conn{b, c} {
		got := frames(peer)
		require.Len(t, got, 1)
		assert.Equal(t, "chat", got[0]["type"])
		assert.Equal(t, "alice", got[0]["user_id"])
		assert.Equal(t, "hi", got[0]["content"])
	}

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, eventlog.EventChatMessage, ev.EventType)
	assert.Equal(t, "X", ev.RoomID)
	assert.Equal(t, "alice", ev.UserID)
	assert.JSONEq(t, `{"content":"hi"}`, string(ev.EventData))
}

func TestRoute_Ping(t *testing.T) {
	f := newFixture(unlimited)
	a := f.join(t, "X", "alice")
	b := f.join(t, "X", "bob")

	res := f.router.Route(a.ID(), []byte(`{"type":"ping"}`))
	require.NoError(t, res.Dropped)
	assert.True(t, res.Replied)
	assert.Equal(t, 0, res.Delivered)

	got := frames(a)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"type": "pong"}, got[0])
	assert.Empty(t, frames(b))
	assert.Empty(t, f.events.events)
}

func TestRoute_RelayedVariants(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantEvent string
	}{
		{name: "position", raw: `{"type":"position_update","position":{"x":1,"y":2,"z":3}}`},
		{name: "object create", raw: `{"type":"object_create","object_id":"o1","object_type":"cube"}`, wantEvent: eventlog.EventObjectCreated},
		{name: "object update", raw: `{"type":"object_update","object_id":"o1","data":{"x":1}}`},
		{name: "object delete", raw: `{"type":"object_delete","object_id":"o1"}`, wantEvent: eventlog.EventObjectDeleted},
		{name: "voice", raw: `{"type":"voice_status","is_muted":true}`},
		{name: "screen share", raw: `{"type":"screen_share","is_sharing":true}`},
		{name: "thinking", raw: `{"type":"thinking_share","content":"idea"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(unlimited)
			a := f.join(t, "X", "alice")
			b := f.join(t, "X", "bob")
			a2 := f.join(t, "X", "alice") // same user, other device

			res := f.router.Route(a.ID(), []byte(tt.raw))
			require.NoError(t, res.Dropped)
			assert.Equal(t, 2, res.Delivered)

			assert.Empty(t, frames(a), "sender connection is excluded")
			for _, peer := range []*registry.Conn{b, a2} {
				got := frames(peer)
				require.Len(t, got, 1)
				assert.Equal(t, "alice", got[0]["user_id"])
			}

			if tt.wantEvent == "" {
				assert.False(t, res.Logged)
				assert.Empty(t, f.events.events)
				return
			}
			assert.True(t, res.Logged)
			require.Len(t, f.events.events, 1)
			assert.Equal(t, tt.wantEvent, f.events.events[0].EventType)
		})
	}
}

func TestRoute_DropsBadFrames(t *testing.T) {
	f := newFixture(unlimited)
	a := f.join(t, "X", "alice")
	b := f.join(t, "X", "bob")

	for _, raw := range []string{`not json`, `{"type":"warp"}`, `{"type":"chat"}`, `{"type":"room_status"}`} {
		res := f.router.Route(a.ID(), []byte(raw))
		assert.Error(t, res.Dropped, raw)
	}
	assert.Empty(t, frames(b))

	// connection keeps working afterwards
	res := f.router.Route(a.ID(), []byte(`{"type":"chat","content":"still here"}`))
	assert.NoError(t, res.Dropped)
	assert.Len(t, frames(b), 1)
}

func TestRoute_UnboundConnectionIsNoop(t *testing.T) {
	f := newFixture(unlimited)
	a := f.join(t, "X", "alice")
	b := f.join(t, "X", "bob")

	_, _, err := f.reg.Unbind(a.ID())
	require.NoError(t, err)
	res := f.router.Route(a.ID(), []byte(`{"type":"chat","content":"late"}`))
	assert.ErrorIs(t, res.Dropped, registry.ErrNotFound)

	pending := registry.NewConn(4)
	f.reg.Register(pending)
	res = f.router.Route(pending.ID(), []byte(`{"type":"chat","content":"early"}`))
	assert.ErrorIs(t, res.Dropped, ErrUnbound)

	assert.Empty(t, frames(b))
	assert.Empty(t, f.events.events)
}

func TestRoute_ThrottlesHighFrequency(t *testing.T) {
	f := newFixture(Limits{Rate: rate.Limit(0.001), Burst: 3})
	a := f.join(t, "X", "alice")
	b := f.join(t, "X", "bob")

	var throttled int
	for i := 0; i < 10; i++ {
		res := f.router.Route(a.ID(), []byte(`{"type":"position_update","position":{"x":1,"y":0,"z":0}}`))
		if res.Dropped != nil {
			assert.ErrorIs(t, res.Dropped, ErrThrottled)
			throttled++
		}
	}
	assert.Equal(t, 7, throttled)
	assert.Len(t, frames(b), 3)

	// chat is never throttled
	res := f.router.Route(a.ID(), []byte(`{"type":"chat","content":"hi"}`))
	assert.NoError(t, res.Dropped)

	f.router.Forget(a.ID())
	res = f.router.Route(a.ID(), []byte(`{"type":"object_update","object_id":"o1"}`))
	assert.NoError(t, res.Dropped, "limiter state reset after Forget")
}

func TestRoute_PerSenderOrder(t *testing.T) {
	f := newFixture(unlimited)
	a := f.join(t, "X", "alice")
	b := f.join(t, "X", "bob")

	for i := 0; i < 20; i++ {
		raw, _ := json.Marshal(map[string]any{"type": "chat", "content": string(rune('a' + i))})
		f.router.Route(a.ID(), raw)
	}
	got := frames(b)
	require.Len(t, got, 20)
	for i, m := range got {
		assert.Equal(t, string(rune('a'+i)), m["content"])
	}
}
