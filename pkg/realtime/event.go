package realtime

import (
	"encoding/json"
	"errors"
)

// Push event names sent by the backend.
const (
	EventNotification = "notification"
	EventOrderUpdate  = "orderUpdate"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a single push message.
type Event struct {
	// Name is the channel, e.g. "notification" or "orderUpdate".
	Name string

	// Type is the payload type discriminator.
	Type string

	// Data is the raw payload data.
	Data json.RawMessage
}

// Handler receives push events for a channel.
type Handler func(Event)

// ErrMalformedFrame is returned by DecodeFrame for frames without an event name.
var ErrMalformedFrame = errors.New("realtime: malformed frame")

type wireFrame struct {
	Event   string      `json:"event"`
	Payload wirePayload `json:"payload"`
}

type wirePayload struct {
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame encodes an event as {"event":..., "payload":{"type":..., "data":...}}.
func EncodeFrame(ev Event) ([]byte, error) {
	if ev.Name == "" {
		return nil, ErrMalformedFrame
	}
	return json.Marshal(wireFrame{
		Event:   ev.Name,
		Payload: wirePayload{Type: ev.Type, Data: ev.Data},
	})
}

// DecodeFrame decodes a frame produced by EncodeFrame.
func DecodeFrame(data []byte) (Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, err
	}
	if f.Event == "" {
		return Event{}, ErrMalformedFrame
	}
	return Event{Name: f.Event, Type: f.Payload.Type, Data: f.Payload.Data}, nil
}
