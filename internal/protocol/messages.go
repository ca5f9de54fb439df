// Package protocol defines the JSON wire format exchanged with collaboration
// clients. Every frame is a flat object carrying a "type" tag; each tag maps
// to exactly one Go type implementing Message.
package protocol

import "encoding/json"

// Type is the wire tag of a message.
type Type string

const (
	// Client → hub (and relayed to peers)
	TypeChat           Type = "chat"
	TypePositionUpdate Type = "position_update"
	TypeObjectCreate   Type = "object_create"
	TypeObjectUpdate   Type = "object_update"
	TypeObjectDelete   Type = "object_delete"
	TypeVoiceStatus    Type = "voice_status"
	TypeScreenShare    Type = "screen_share"
	TypeThinkingShare  Type = "thinking_share"
	TypePing           Type = "ping"

	// Hub → client
	TypePong          Type = "pong"
	TypeUserJoined    Type = "user_joined"
	TypeUserLeft      Type = "user_left"
	TypeRoomStatus    Type = "room_status"
	TypeExternalEvent Type = "external_event"
)

// Message is implemented by every wire variant. The unexported method keeps
// the set closed to this package.
type Message interface {
	Kind() Type
	header() *Header
}

// Header is embedded by every variant so the tag and sender sit at the top
// level of the JSON object.
type Header struct {
	Type   Type   `json:"type"`
	UserID string `json:"user_id,omitempty"`
}

func (h *Header) header() *Header { return h }

// Sender returns the user id stamped on m.
func Sender(m Message) string { return m.header().UserID }

// Stamp overwrites the sender of m with the bound identity of the
// originating connection.
func Stamp(m Message, userID string) { m.header().UserID = userID }

// ──────────────────────────── Relayed variants ─────────────────────────────

type Chat struct {
	Header
	Content string `json:"content" validate:"required,max=4000"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// PositionUpdate carries the sender's avatar or cursor pose.
type PositionUpdate struct {
	Header
	Position  Vec3   `json:"position"`
	Rotation  *Quat  `json:"rotation,omitempty"`
	Animation string `json:"animation,omitempty" validate:"max=64"`
}

type ObjectCreate struct {
	Header
	ObjectID   string          `json:"object_id"   validate:"required,max=128"`
	ObjectType string          `json:"object_type" validate:"required,max=64"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type ObjectUpdate struct {
	Header
	ObjectID string          `json:"object_id" validate:"required,max=128"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type ObjectDelete struct {
	Header
	ObjectID string `json:"object_id" validate:"required,max=128"`
}

type VoiceStatus struct {
	Header
	IsMuted    bool `json:"is_muted"`
	IsSpeaking bool `json:"is_speaking"`
}

// ScreenShare toggles a share and optionally carries opaque signaling data
// (SDP/ICE) for peers.
type ScreenShare struct {
	Header
	IsSharing bool            `json:"is_sharing"`
	StreamID  string          `json:"stream_id,omitempty" validate:"max=128"`
	Signal    json.RawMessage `json:"signal,omitempty"`
}

type ThinkingShare struct {
	Header
	Content string          `json:"content" validate:"max=16000"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Ping struct{ Header }

// ──────────────────────────── Hub-originated variants ──────────────────────

type Pong struct{ Header }

type UserJoined struct{ Header }

type UserLeft struct{ Header }

type RoomStatus struct {
	Header
	RoomID string   `json:"room_id"`
	Users  []string `json:"users"`
}

// ExternalEvent wraps a payload injected from outside the hub that is not
// itself a typed object.
type ExternalEvent struct {
	Header
	Data json.RawMessage `json:"data"`
}

func (*Chat) Kind() Type           { return TypeChat }
func (*PositionUpdate) Kind() Type { return TypePositionUpdate }
func (*ObjectCreate) Kind() Type   { return TypeObjectCreate }
func (*ObjectUpdate) Kind() Type   { return TypeObjectUpdate }
func (*ObjectDelete) Kind() Type   { return TypeObjectDelete }
func (*VoiceStatus) Kind() Type    { return TypeVoiceStatus }
func (*ScreenShare) Kind() Type    { return TypeScreenShare }
func (*ThinkingShare) Kind() Type  { return TypeThinkingShare }
func (*Ping) Kind() Type           { return TypePing }
func (*Pong) Kind() Type           { return TypePong }
func (*UserJoined) Kind() Type     { return TypeUserJoined }
func (*UserLeft) Kind() Type       { return TypeUserLeft }
func (*RoomStatus) Kind() Type     { return TypeRoomStatus }
func (*ExternalEvent) Kind() Type  { return TypeExternalEvent }

// NewUserJoined announces userID to a room.
func NewUserJoined(userID string) *UserJoined {
	return &UserJoined{Header{UserID: userID}}
}

// NewUserLeft announces the departure of userID.
func NewUserLeft(userID string) *UserLeft {
	return &UserLeft{Header{UserID: userID}}
}

// NewRoomStatus lists the users already present in roomID.
func NewRoomStatus(roomID string, users []string) *RoomStatus {
	if users == nil {
		users = []string{}
	}
	return &RoomStatus{RoomID: roomID, Users: users}
}

func NewPong() *Pong { return &Pong{} }
