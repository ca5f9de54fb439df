// Package broadcast fans messages out to the members of a room.
//
// Delivery is a non-blocking enqueue onto each target's bounded outbound
// queue, so a slow peer never delays the rest of the room. Targets whose
// enqueue fails are reported through the failure callback; the broadcaster
// never removes registry entries itself.
package broadcast

import (
	"collabhub/internal/protocol"
	"collabhub/internal/registry"

	"go.uber.org/zap"
)

// FailureFunc is told about every target that could not take a message.
type FailureFunc func(id registry.ConnID, err error)

type Broadcaster struct {
	reg       *registry.Registry
	onFailure FailureFunc
}

func New(reg *registry.Registry, onFailure FailureFunc) *Broadcaster {
	if onFailure == nil {
		onFailure = func(registry.ConnID, error) {}
	}
	return &Broadcaster{reg: reg, onFailure: onFailure}
}

// SendToRoom encodes m once and delivers it to every member of roomID
// except exclude (zero excludes nobody). It returns the number of
// connections that accepted the message.
func (b *Broadcaster) SendToRoom(roomID string, m protocol.Message, exclude registry.ConnID) int {
	data, err := protocol.Encode(m)
	if err != nil {
		zap.L().Error("broadcast.encode", zap.String("type", string(m.Kind())), zap.Error(err))
		return 0
	}
	return b.SendRawToRoom(roomID, data, exclude)
}

// SendRawToRoom is SendToRoom for an already encoded frame.
func (b *Broadcaster) SendRawToRoom(roomID string, data []byte, exclude registry.ConnID) int {
	delivered := 0
	var failed []registry.ConnID
	var errs []error
	for _, c := range b.reg.Members(roomID) {
		if c.ID() == exclude {
			continue
		}
		if err := c.Enqueue(data); err != nil {
			failed = append(failed, c.ID())
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	// Report after the loop so a failure handler that announces departures
	// cannot interleave with this fan-out.
	for i, id := range failed {
		zap.L().Debug("broadcast.target_failed",
			zap.String("room_id", roomID),
			zap.Uint64("conn_id", uint64(id)),
			zap.Error(errs[i]),
		)
		b.onFailure(id, errs[i])
	}
	return delivered
}

// SendToConnection delivers m to one connection.
func (b *Broadcaster) SendToConnection(id registry.ConnID, m protocol.Message) error {
	c, ok := b.reg.Conn(id)
	if !ok {
		return registry.ErrNotFound
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := c.Enqueue(data); err != nil {
		b.onFailure(id, err)
		return err
	}
	return nil
}
