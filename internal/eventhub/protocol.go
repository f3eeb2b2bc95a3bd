// Package eventhub streams repository models and events to a UI client over
// a WebSocket.
//
// # Frames
//
// Every server frame is a JSON text message:
//
//	{"id": "<uuid>", "type": "statusChanged", "repository": "/wc", "payload": {...}}
//
// Clients send actions:
//
//	{"action": "snapshot"}
//	{"action": "refresh", "repository": "/wc"}
package eventhub

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Frame types besides the forwarded repository event kinds.
const (
	TypeSnapshot = "snapshot"
	TypeOutput   = "output"
	TypeError    = "error"
)

// Client actions.
const (
	actionSnapshot = "snapshot"
	actionRefresh  = "refresh"
)

// Frame is one server message.
type Frame struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Repository string `json:"repository,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

type clientMsg struct {
	Action     string `json:"action"`
	Repository string `json:"repository,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// NewFrame returns a frame with a fresh ID.
func NewFrame(typ, repository string, payload any) Frame {
	return Frame{ID: uuid.NewString(), Type: typ, Repository: repository, Payload: payload}
}

// EncodeFrame marshals f, rejecting frames without a type.
func EncodeFrame(f Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, fmt.Errorf("eventhub: encode frame: type must not be empty")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("eventhub: encode frame %s: %w", f.Type, err)
	}
	return data, nil
}

func decodeClientMsg(data []byte) (clientMsg, error) {
	var msg clientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMsg{}, fmt.Errorf("eventhub: decode client message: %w", err)
	}
	return msg, nil
}
