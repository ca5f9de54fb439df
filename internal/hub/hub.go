// Package hub wires the registry, broadcaster, router and event log into
// the connect/disconnect lifecycle of collaboration sessions.
package hub

import (
	"errors"
	"sort"
	"sync"

	"collabhub/internal/broadcast"
	"collabhub/internal/eventlog"
	"collabhub/internal/protocol"
	"collabhub/internal/registry"
	"collabhub/internal/router"

	"go.uber.org/zap"
)

var (
	ErrShuttingDown = errors.New("hub is shutting down")
	ErrMissingIDs   = errors.New("room_id and user_id are required")
	ErrJoinFailed   = errors.New("could not deliver room status")
)

// RoomFeed is told when a session enters or leaves a room so it can hold
// per-room external subscriptions while the room has members.
type RoomFeed interface {
	Subscribe(roomID string)
	Unsubscribe(roomID string)
}

type Options struct {
	QueueDepth int
	Limits     router.Limits
}

type Hub struct {
	reg        *registry.Registry
	bc         *broadcast.Broadcaster
	router     *router.Router
	events     eventlog.Appender
	feed       RoomFeed
	queueDepth int

	sessions sync.Map // registry.ConnID -> *Session

	mu     sync.RWMutex
	closed bool
}

// New builds a hub. events may be nil, in which case nothing is recorded.
func New(opts Options, events eventlog.Appender) *Hub {
	h := &Hub{
		reg:        registry.New(),
		events:     events,
		queueDepth: opts.QueueDepth,
	}
	h.bc = broadcast.New(h.reg, h.evict)
	h.router = router.New(h.reg, h.bc, events, opts.Limits)
	return h
}

// SetRoomFeed installs the external per-room feed. Call before serving.
func (h *Hub) SetRoomFeed(f RoomFeed) { h.feed = f }

// Connect registers a transport for userID in roomID. Existing members are
// told about the newcomer and the newcomer receives the current roster.
func (h *Hub) Connect(roomID, userID string) (*Session, error) {
	if roomID == "" || userID == "" {
		return nil, ErrMissingIDs
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrShuttingDown
	}
	c := registry.NewConn(h.queueDepth)
	s := &Session{hub: h, conn: c, roomID: roomID, userID: userID}
	id := h.reg.Register(c)
	h.sessions.Store(id, s)
	h.mu.RUnlock()

	if h.feed != nil {
		h.feed.Subscribe(roomID)
	}
	if err := h.reg.Bind(id, roomID, userID); err != nil {
		if h.feed != nil {
			h.feed.Unsubscribe(roomID)
		}
		s.Close()
		return nil, err
	}
	if !s.state.CompareAndSwap(int32(Connecting), int32(Joined)) {
		// closed by a concurrent Shutdown; leave already ran
		return nil, ErrShuttingDown
	}

	others := h.othersIn(roomID, userID)
	h.bc.SendToRoom(roomID, protocol.NewUserJoined(userID), id)
	if err := h.bc.SendToConnection(id, protocol.NewRoomStatus(roomID, others)); err != nil {
		s.Close()
		return nil, errors.Join(ErrJoinFailed, err)
	}
	h.record(roomID, userID, eventlog.EventUserJoined)

	zap.L().Info("hub.join",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.Uint64("conn_id", uint64(id)),
	)
	return s, nil
}

// othersIn is the sorted roster of roomID without userID.
func (h *Hub) othersIn(roomID, userID string) []string {
	users := h.reg.Roster(roomID)
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != userID {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// evict is the broadcaster's failure callback.
func (h *Hub) evict(id registry.ConnID, err error) {
	v, ok := h.sessions.Load(id)
	if !ok {
		return
	}
	s := v.(*Session)
	if s.State() == Joined {
		zap.L().Warn("hub.evict",
			zap.String("room_id", s.roomID),
			zap.String("user_id", s.userID),
			zap.Uint64("conn_id", uint64(id)),
			zap.Error(err),
		)
	}
	s.Close()
}

func (h *Hub) leave(s *Session) {
	id := s.conn.ID()
	roomID, userID, err := h.reg.Unbind(id)
	s.conn.Close()
	h.router.Forget(id)
	h.sessions.Delete(id)
	if err != nil || roomID == "" {
		return
	}

	if h.feed != nil {
		h.feed.Unsubscribe(roomID)
	}
	if !h.shuttingDown() {
		h.bc.SendToRoom(roomID, protocol.NewUserLeft(userID), 0)
	}
	h.record(roomID, userID, eventlog.EventUserLeft)

	zap.L().Info("hub.leave",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.Uint64("conn_id", uint64(id)),
	)
}

func (h *Hub) record(roomID, userID, eventType string) {
	if h.events != nil {
		h.events.Append(eventlog.NewEvent(roomID, userID, eventType, nil))
	}
}

// BroadcastExternal fans a payload published outside the hub (for example an
// analysis result) out to every member of roomID.
func (h *Hub) BroadcastExternal(roomID string, payload []byte) int {
	data, err := protocol.WrapExternal(payload)
	if err != nil {
		zap.L().Warn("hub.external_wrap_failed", zap.String("room_id", roomID), zap.Error(err))
		return 0
	}
	return h.bc.SendRawToRoom(roomID, data, 0)
}

// CloseRoom ends every session in roomID and returns how many were closed.
func (h *Hub) CloseRoom(roomID string) int {
	n := 0
	for _, id := range h.reg.MembersOf(roomID) {
		if v, ok := h.sessions.Load(id); ok {
			v.(*Session).Close()
			n++
		}
	}
	if n > 0 {
		zap.L().Info("hub.room_closed", zap.String("room_id", roomID), zap.Int("sessions", n))
	}
	return n
}

// Shutdown refuses new sessions and closes every live one. Queued outbound
// messages are dropped.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.sessions.Range(func(_, v any) bool {
		v.(*Session).Close()
		return true
	})
	zap.L().Info("hub.shutdown")
}

func (h *Hub) shuttingDown() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// RoomSummary is the read-only view of one room.
type RoomSummary struct {
	RoomID      string   `json:"room_id"`
	Users       []string `json:"users"`
	Connections int      `json:"connections"`
}

func (h *Hub) Room(roomID string) RoomSummary {
	users := h.reg.Roster(roomID)
	sort.Strings(users)
	return RoomSummary{
		RoomID:      roomID,
		Users:       users,
		Connections: len(h.reg.MembersOf(roomID)),
	}
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

func (h *Hub) Stats() Stats {
	return Stats{Rooms: len(h.reg.Rooms()), Connections: h.reg.Len()}
}
