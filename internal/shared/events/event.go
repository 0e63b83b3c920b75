package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Actor information
	ActorID   int64  `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"` // admin, doctor, receptionist, system

	Data map[string]any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID int64, actorRole string) Event {
	e.ActorID = actorID
	e.ActorRole = actorRole
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// MatchesPattern checks if an event type matches a wildcard pattern.
// "inventory.*" matches "inventory.item.created"; "*" and ">" match anything.
func MatchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" || pp == ">" {
			return i < len(typeParts)
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// normalizeEventType converts event type to stream-safe format
func normalizeEventType(eventType string) string {
	return strings.ReplaceAll(eventType, ".", "-")
}
