package hub

import (
	"errors"
	"sync/atomic"

	"collabhub/internal/registry"
	"collabhub/internal/router"
)

var ErrNotJoined = errors.New("session is not joined")

// State is the lifecycle position of a session.
type State int32

const (
	Connecting State = iota
	Joined
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session is the handle returned by Connect. Close must run on every exit
// path of the transport; it performs unbind and the departure announcement
// exactly once no matter how many times or from where it is called.
type Session struct {
	hub    *Hub
	conn   *registry.Conn
	roomID string
	userID string
	state  atomic.Int32
}

func (s *Session) ID() registry.ConnID  { return s.conn.ID() }
func (s *Session) Conn() *registry.Conn { return s.conn }
func (s *Session) RoomID() string       { return s.roomID }
func (s *Session) UserID() string       { return s.userID }
func (s *Session) State() State         { return State(s.state.Load()) }

// Handle routes one inbound frame. Frames are only processed while joined.
func (s *Session) Handle(raw []byte) router.Result {
	if s.State() != Joined {
		return router.Result{Dropped: ErrNotJoined}
	}
	s.conn.Touch()
	return s.hub.router.Route(s.conn.ID(), raw)
}

// Close leaves the room. Only the first call does any work.
func (s *Session) Close() {
	for {
		cur := State(s.state.Load())
		if cur == Closing || cur == Closed {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(Closing)) {
			break
		}
	}
	s.hub.leave(s)
	s.state.Store(int32(Closed))
}
