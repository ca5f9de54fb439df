// Package roomfeed injects payloads published on Redis by outside
// collaborators (analysis results and the like) into live rooms.
package roomfeed

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Target receives payloads published for a room.
type Target interface {
	BroadcastExternal(roomID string, payload []byte) int
}

// Subscriber opens a Redis subscription. *redis.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Manager guarantees that we have **exactly one** Redis subscription per
// "<prefix><roomID>:events" channel no matter how many sessions are in the
// room. The subscription is dropped when the last session leaves.
type Manager struct {
	rdb    Subscriber
	target Target
	prefix string

	mu   sync.Mutex
	subs map[string]*subEntry // roomID ➜ subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func NewManager(rdb Subscriber, target Target, prefix string) *Manager {
	return &Manager{
		rdb:    rdb,
		target: target,
		prefix: prefix,
		subs:   make(map[string]*subEntry),
	}
}

// Channel is the Redis channel carrying external payloads for roomID.
func (m *Manager) Channel(roomID string) string {
	return m.prefix + roomID + ":events"
}

// Subscribe ensures the process is subscribed to the room's channel;
// subsequent calls for the same room only increment the ref-counter.
func (m *Manager) Subscribe(roomID string) {
	m.mu.Lock()
	if e, ok := m.subs[roomID]; ok {
		e.refCnt++
		m.mu.Unlock()
		return
	}

	// First member → create Redis SUB and fan-out loop.
	ctx, cancel := context.WithCancel(context.Background())
	m.subs[roomID] = &subEntry{refCnt: 1, cancel: cancel}
	m.mu.Unlock()

	ps := m.rdb.Subscribe(ctx, m.Channel(roomID))
	go m.forward(ctx, roomID, ps)
}

func (m *Manager) forward(ctx context.Context, roomID string, ps *redis.PubSub) {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok { // Redis connection closed.
				return
			}
			n := m.target.BroadcastExternal(roomID, []byte(msg.Payload))
			zap.L().Debug("roomfeed.forward", zap.String("room_id", roomID), zap.Int("delivered", n))
		}
	}
}

// Unsubscribe decrements the ref-counter and tears the Redis SUB down when
// the last session leaves the room.
func (m *Manager) Unsubscribe(roomID string) {
	m.mu.Lock()
	e, ok := m.subs[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.subs, roomID)
	m.mu.Unlock()

	// Outside the lock → stop the fan-out goroutine.
	e.cancel()
}

// Refs reports the current ref-count for roomID.
func (m *Manager) Refs(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.subs[roomID]; ok {
		return e.refCnt
	}
	return 0
}

// Close tears down every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*subEntry)
	m.mu.Unlock()
	for _, e := range subs {
		e.cancel()
	}
}
