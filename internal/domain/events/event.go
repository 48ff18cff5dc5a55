package events

import "time"

// DomainEvent encapsulates all event data flowing through the system, providing
// a standardized format for event processing and distribution.
type DomainEvent struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically the run id so every
	// event of one run lands on the same partition.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload carries the event attributes.
	Payload map[string]any
}

// NewDomainEvent builds an event stamped with now.
func NewDomainEvent(t EventType, key string, now time.Time, payload map[string]any) DomainEvent {
	return DomainEvent{Type: t, Key: key, Timestamp: now, Payload: payload}
}
