// Package eventstore provides append-only persistence for applied trade
// actions, one stream per token. The engine appends an event for every
// mutation it commits and rebuilds token aggregates by replaying streams
// at startup; optimistic concurrency on the stream version keeps a single
// writer honest across restarts.
package eventstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one committed mutation in a token's history.
type Event struct {
	// ID is a unique event identifier.
	ID string `json:"id"`

	// Stream is the token id this event belongs to.
	Stream string `json:"stream"`

	// Type is the action kind that produced the event.
	Type string `json:"type"`

	// Version is the event's position in the stream, assigned on append.
	Version int `json:"version"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Data is the JSON-encoded action payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent creates an event for a stream with the given payload.
func NewEvent(stream, eventType string, data any) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Event{
		ID:        uuid.New().String(),
		Stream:    stream,
		Type:      eventType,
		Version:   -1,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
