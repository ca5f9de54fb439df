// Package eventlog hands durable session events to the external persistence
// collaborator without ever blocking message delivery.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session event types.
const (
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
	EventChatMessage   = "chat_message"
	EventObjectCreated = "object_created"
	EventObjectDeleted = "object_deleted"
)

// SessionEvent is an immutable record of a collaboration occurrence. ID
// makes repeated inserts of the same event idempotent.
type SessionEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent stamps a fresh id and the current time. data is marshalled to a
// JSON object; nil becomes {}.
func NewEvent(roomID, userID, eventType string, data any) SessionEvent {
	raw := json.RawMessage(`{}`)
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	return SessionEvent{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		EventType: eventType,
		EventData: raw,
		Timestamp: time.Now().UTC(),
	}
}

// Sink is the collaborator call surface.
type Sink interface {
	AppendSessionEvent(ctx context.Context, ev SessionEvent) error
}

// Appender is what the hub depends on: a fire-and-forget append.
type Appender interface {
	Append(ev SessionEvent)
}
