package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/luahost/internal/event/topic"
)

// Event is a typed notification. Events are immutable once created.
type Event[T any] struct {
	// Type is the event topic, e.g. "debug.stopped".
	Type topic.Topic

	// Payload carries the event data.
	Payload T

	// Metadata is attached to every event.
	Metadata Metadata
}

// Metadata contains standard information attached to every event.
type Metadata struct {
	// ID uniquely identifies this event instance.
	ID string

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Source names the publishing component.
	Source string

	// SessionID ties the event to a debugger session, when there is one.
	SessionID string
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent[T any](eventType topic.Topic, payload T, source string) Event[T] {
	return Event[T]{
		Type:    eventType,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}

// WithSession returns a copy of the event tagged with a session ID.
func (e Event[T]) WithSession(id string) Event[T] {
	e.Metadata.SessionID = id
	return e
}

// Envelope is the type-erased form of an Event carried by the bus.
type Envelope struct {
	Topic    topic.Topic
	Payload  any
	Metadata Metadata
}

// NewEnvelope erases the payload type of e.
func NewEnvelope[T any](e Event[T]) Envelope {
	return Envelope{
		Topic:    e.Type,
		Payload:  e.Payload,
		Metadata: e.Metadata,
	}
}
