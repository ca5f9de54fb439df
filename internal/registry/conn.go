package registry

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ConnID is a process-unique connection identifier. Ids are never reused.
type ConnID uint64

func (id ConnID) String() string { return "c-" + strconv.FormatUint(uint64(id), 10) }

var lastConnID atomic.Uint64

func nextConnID() ConnID { return ConnID(lastConnID.Add(1)) }

// Conn is one live transport as seen by the hub: its binding and a bounded
// outbound queue drained by the transport's writer.
type Conn struct {
	id        ConnID
	createdAt time.Time
	lastSeen  atomic.Int64 // unix nanos

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu guards the binding. Lock order: Conn.mu before roomSet.mu.
	mu      sync.RWMutex
	roomID  string
	userID  string
	removed bool
}

// NewConn allocates a connection with an outbound queue of the given depth.
func NewConn(queueDepth int) *Conn {
	if queueDepth < 1 {
		queueDepth = 1
	}
	now := time.Now()
	c := &Conn{
		id:        nextConnID(),
		createdAt: now,
		send:      make(chan []byte, queueDepth),
		done:      make(chan struct{}),
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

func (c *Conn) ID() ConnID { return c.id }

// Binding returns the room and user the connection is bound to.
func (c *Conn) Binding() (roomID, userID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.userID
}

// Touch records inbound activity.
func (c *Conn) Touch() { c.lastSeen.Store(time.Now().UnixNano()) }

// Enqueue queues msg without blocking. A full queue means the peer is not
// keeping up and yields ErrQueueFull.
func (c *Conn) Enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Outbound is drained by the transport writer.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close stops the connection. Queued messages are dropped. Safe to call
// more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Info is a point-in-time copy of a connection's attributes.
type Info struct {
	ID         ConnID
	RoomID     string
	UserID     string
	CreatedAt  time.Time
	LastActive time.Time
	Queued     int
}

func (c *Conn) Info() Info {
	roomID, userID := c.Binding()
	return Info{
		ID:         c.id,
		RoomID:     roomID,
		UserID:     userID,
		CreatedAt:  c.createdAt,
		LastActive: time.Unix(0, c.lastSeen.Load()),
		Queued:     len(c.send),
	}
}
