package domain

import "encoding/json"

// EventEnvelope wraps every message on the wire so consumers can dispatch on
// the event name before decoding the payload.
type EventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(event string, payload any) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &EventEnvelope{Event: event, Payload: raw}, nil
}
