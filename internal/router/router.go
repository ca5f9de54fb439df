// Package router classifies inbound frames and dispatches each variant to
// its handler: relay to the room, reply to the sender, and optionally record
// a session event.
package router

import (
	"errors"
	"sync"

	"collabhub/internal/broadcast"
	"collabhub/internal/eventlog"
	"collabhub/internal/protocol"
	"collabhub/internal/registry"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrUnbound   = errors.New("connection has no room binding")
	ErrThrottled = errors.New("rate limit exceeded")
)

// Result describes what Route did with one frame.
type Result struct {
	Type      protocol.Type
	Delivered int   // connections that accepted the outbound message
	Replied   bool  // a direct reply went to the sender
	Logged    bool  // a session event was handed to the event log
	Dropped   error // non-nil when the frame was discarded
}

// Limits bounds the high-frequency variants (position_update, object_update)
// per connection.
type Limits struct {
	Rate  rate.Limit
	Burst int
}

type Router struct {
	reg    *registry.Registry
	bc     *broadcast.Broadcaster
	events eventlog.Appender
	limits Limits

	limiters sync.Map // registry.ConnID -> *rate.Limiter
}

func New(reg *registry.Registry, bc *broadcast.Broadcaster, events eventlog.Appender, limits Limits) *Router {
	if limits.Burst < 1 {
		limits.Burst = 1
	}
	return &Router{reg: reg, bc: bc, events: events, limits: limits}
}

// Route handles one inbound frame from id. Malformed, unknown and unbound
// frames are dropped with a diagnostic; none of them is an error for the
// connection.
func (r *Router) Route(id registry.ConnID, raw []byte) Result {
	c, ok := r.reg.Conn(id)
	if !ok {
		return r.drop(id, "", registry.ErrNotFound)
	}
	roomID, userID := c.Binding()
	if roomID == "" {
		return r.drop(id, "", ErrUnbound)
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		return r.drop(id, "", err)
	}
	protocol.Stamp(msg, userID)

	res := Result{Type: msg.Kind()}
	switch m := msg.(type) {
	case *protocol.Ping:
		if err := r.bc.SendToConnection(id, protocol.NewPong()); err != nil {
			res.Dropped = err
			return res
		}
		res.Replied = true

	case *protocol.Chat:
		res.Delivered = r.bc.SendToRoom(roomID, m, id)
		res.Logged = r.record(roomID, userID, eventlog.EventChatMessage, map[string]string{
			"content": m.Content,
		})

	case *protocol.PositionUpdate:
		if !r.allow(id) {
			return r.drop(id, m.Kind(), ErrThrottled)
		}
		res.Delivered = r.bc.SendToRoom(roomID, m, id)

	case *protocol.ObjectCreate:
		res.Delivered = r.bc.SendToRoom(roomID, m, id)
		res.Logged = r.record(roomID, userID, eventlog.EventObjectCreated, map[string]any{
			"object_id":   m.ObjectID,
			"object_type": m.ObjectType,
			"data":        m.Data,
		})

	case *protocol.ObjectUpdate:
		if !r.allow(id) {
			return r.drop(id, m.Kind(), ErrThrottled)
		}
		res.Delivered = r.bc.SendToRoom(roomID, m, id)

	case *protocol.ObjectDelete:
		res.Delivered = r.bc.SendToRoom(roomID, m, id)
		res.Logged = r.record(roomID, userID, eventlog.EventObjectDeleted, map[string]string{
			"object_id": m.ObjectID,
		})

	case *protocol.VoiceStatus, *protocol.ScreenShare, *protocol.ThinkingShare:
		res.Delivered = r.bc.SendToRoom(roomID, msg, id)

	default:
		// Decode only yields the variants above.
		return r.drop(id, msg.Kind(), protocol.ErrUnknownType)
	}
	return res
}

// Forget discards per-connection state once a connection is gone.
func (r *Router) Forget(id registry.ConnID) { r.limiters.Delete(id) }

func (r *Router) allow(id registry.ConnID) bool {
	if v, ok := r.limiters.Load(id); ok {
		return v.(*rate.Limiter).Allow()
	}
	v, _ := r.limiters.LoadOrStore(id, rate.NewLimiter(r.limits.Rate, r.limits.Burst))
	return v.(*rate.Limiter).Allow()
}

func (r *Router) record(roomID, userID, eventType string, data any) bool {
	if r.events == nil {
		return false
	}
	r.events.Append(eventlog.NewEvent(roomID, userID, eventType, data))
	return true
}

func (r *Router) drop(id registry.ConnID, t protocol.Type, err error) Result {
	if errors.Is(err, ErrThrottled) {
		zap.L().Debug("router.throttled", zap.Uint64("conn_id", uint64(id)), zap.String("type", string(t)))
	} else {
		zap.L().Info("router.drop", zap.Uint64("conn_id", uint64(id)), zap.String("type", string(t)), zap.Error(err))
	}
	return Result{Type: t, Dropped: err}
}
