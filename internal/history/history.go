// Package history journals backend lifecycle events so crashes and restart
// storms can be inspected after the fact.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart          EventType = "start"
	EventStop           EventType = "stop"
	EventCrash          EventType = "crash"
	EventRestartAttempt EventType = "restart_attempt"
	EventGiveUp         EventType = "give_up"
)

// Event is one lifecycle observation of the supervised backend.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	Phase      string    `json:"phase"`
	Attempt    int       `json:"attempt"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for lifecycle events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
