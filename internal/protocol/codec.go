package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
	ErrNotInbound  = errors.New("message type is hub-originated")
)

var validate = validator.New()

// Decode parses one inbound frame into its typed variant and validates its
// fields. Hub-originated tags are rejected.
func Decode(raw []byte) (Message, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	switch probe.Type {
	case TypeChat:
		m = &Chat{}
	case TypePositionUpdate:
		m = &PositionUpdate{}
	case TypeObjectCreate:
		m = &ObjectCreate{}
	case TypeObjectUpdate:
		m = &ObjectUpdate{}
	case TypeObjectDelete:
		m = &ObjectDelete{}
	case TypeVoiceStatus:
		m = &VoiceStatus{}
	case TypeScreenShare:
		m = &ScreenShare{}
	case TypeThinkingShare:
		m = &ThinkingShare{}
	case TypePing:
		m = &Ping{}
	case TypePong, TypeUserJoined, TypeUserLeft, TypeRoomStatus, TypeExternalEvent:
		return nil, fmt.Errorf("%w: %q", ErrNotInbound, probe.Type)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, probe.Type)
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Encode marshals m with its type tag set.
func Encode(m Message) ([]byte, error) {
	m.header().Type = m.Kind()
	return json.Marshal(m)
}

// WrapExternal turns a payload published by an outside collaborator into a
// frame. A JSON object with a non-empty string "type" is forwarded as is;
// anything else is wrapped in an external_event.
func WrapExternal(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err == nil {
		var tag string
		if rawTag, ok := probe["type"]; ok && json.Unmarshal(rawTag, &tag) == nil && tag != "" {
			return trimmed, nil
		}
	}

	data := json.RawMessage(trimmed)
	if !json.Valid(trimmed) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return nil, err
		}
		data = quoted
	}
	return Encode(&ExternalEvent{Data: data})
}
