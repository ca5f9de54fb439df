// Package registry tracks every live connection and the (room, user) it is
// bound to. Room membership is derived from bindings and guarded per room, so
// traffic in one room never contends with joins and leaves in another.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrNotFound     = errors.New("connection not found")
	ErrRoomMismatch = errors.New("connection already bound to another room")
	ErrQueueFull    = errors.New("outbound queue full")
	ErrClosed       = errors.New("connection closed")
)

// roomSet is the membership of one room. A set marked dead has been removed
// from the registry and must not receive new members.
type roomSet struct {
	mu      sync.RWMutex
	members map[ConnID]*Conn
	dead    bool
}

type Registry struct {
	conns sync.Map // ConnID -> *Conn
	rooms sync.Map // roomID -> *roomSet
	count atomic.Int64
}

func New() *Registry { return &Registry{} }

// Register adds c unbound and returns its id.
func (r *Registry) Register(c *Conn) ConnID {
	if _, loaded := r.conns.LoadOrStore(c.id, c); !loaded {
		r.count.Add(1)
	}
	return c.id
}

// Bind associates a registered connection with a room and user. Binding again
// to the same room is a no-op.
func (r *Registry) Bind(id ConnID, roomID, userID string) error {
	c, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return ErrNotFound
	}
	if c.roomID != "" {
		if c.roomID != roomID {
			return ErrRoomMismatch
		}
		return nil
	}

	for {
		v, _ := r.rooms.LoadOrStore(roomID, &roomSet{members: make(map[ConnID]*Conn)})
		rs := v.(*roomSet)
		rs.mu.Lock()
		if rs.dead {
			// lost a race with the last member leaving; retry on a fresh set
			rs.mu.Unlock()
			continue
		}
		rs.members[id] = c
		rs.mu.Unlock()
		break
	}
	c.roomID, c.userID = roomID, userID
	return nil
}

// Unbind removes the connection from its room and from the registry. It
// returns the binding the connection had; a second call yields ErrNotFound.
func (r *Registry) Unbind(id ConnID) (roomID, userID string, err error) {
	v, ok := r.conns.LoadAndDelete(id)
	if !ok {
		return "", "", ErrNotFound
	}
	r.count.Add(-1)
	c := v.(*Conn)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	roomID, userID = c.roomID, c.userID
	if roomID == "" {
		return roomID, userID, nil
	}

	if v, ok := r.rooms.Load(roomID); ok {
		rs := v.(*roomSet)
		rs.mu.Lock()
		delete(rs.members, id)
		if len(rs.members) == 0 {
			rs.dead = true
			r.rooms.CompareAndDelete(roomID, rs)
		}
		rs.mu.Unlock()
	}
	return roomID, userID, nil
}

// Get returns a snapshot of a registered connection.
func (r *Registry) Get(id ConnID) (Info, error) {
	c, ok := r.lookup(id)
	if !ok {
		return Info{}, ErrNotFound
	}
	return c.Info(), nil
}

// Conn returns the live connection for id.
func (r *Registry) Conn(id ConnID) (*Conn, bool) { return r.lookup(id) }

// MembersOf returns a snapshot of the connection ids bound to roomID.
func (r *Registry) MembersOf(roomID string) []ConnID {
	conns := r.Members(roomID)
	ids := make([]ConnID, len(conns))
	for i, c := range conns {
		ids[i] = c.id
	}
	return ids
}

// Members returns a snapshot of the connections bound to roomID. The slice
// is a copy; later binds and unbinds do not affect it.
func (r *Registry) Members(roomID string) []*Conn {
	v, ok := r.rooms.Load(roomID)
	if !ok {
		return nil
	}
	rs := v.(*roomSet)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*Conn, 0, len(rs.members))
	for _, c := range rs.members {
		out = append(out, c)
	}
	return out
}

// Roster returns the distinct user ids bound to roomID.
func (r *Registry) Roster(roomID string) []string {
	members := r.Members(roomID)
	seen := make(map[string]struct{}, len(members))
	users := make([]string, 0, len(members))
	for _, c := range members {
		_, userID := c.Binding()
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	return users
}

// Rooms lists the ids of rooms with at least one member.
func (r *Registry) Rooms() []string {
	var ids []string
	r.rooms.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// Len is the number of registered connections, bound or not.
func (r *Registry) Len() int { return int(r.count.Load()) }

func (r *Registry) lookup(id ConnID) (*Conn, bool) {
	v, ok := r.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Conn), true
}
