package enums

import "fmt"

// OutboxEventType tags rows in outbox_events.
type OutboxEventType string

const (
	EventNoteCreated OutboxEventType = "NOTE_CREATED"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNoteCreated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
