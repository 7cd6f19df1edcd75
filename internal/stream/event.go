// Package stream fans job progress, terminal results, and queue snapshots
// out to every connected client.
package stream

import (
	"github.com/tbourn/review-orchestrator/internal/domain"
)

// EventType names an event on the wire.
type EventType string

const (
	EventProgress    EventType = "progress"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
	EventQueueUpdate EventType = "queueUpdate"
	EventThrottled   EventType = "throttled"
)

// Reasons carried by error events.
const (
	ReasonFailed    = "failed"
	ReasonCancelled = "cancelled"
)

// ErrorPayload explains why a job ended without an outcome.
type ErrorPayload struct {
	Reason  string `json:"reason"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ThrottledPayload tells a client when it may send commands again.
type ThrottledPayload struct {
	Event      string `json:"event"`
	RetryAfter int64  `json:"retry_after"`
}

// Event is one message pushed to clients. Which payload is set depends on Type.
type Event struct {
	Type           EventType             `json:"type"`
	Entity         *domain.EntityKey     `json:"entity,omitempty"`
	Step           *domain.Step          `json:"step,omitempty"`
	Outcome        *domain.Outcome       `json:"outcome,omitempty"`
	HistoryEntryID string                `json:"history_entry_id,omitempty"`
	Error          *ErrorPayload         `json:"error,omitempty"`
	Queue          *domain.QueueSnapshot `json:"queue,omitempty"`
	Throttled      *ThrottledPayload     `json:"throttled,omitempty"`
}

// Progress builds a progress event.
func Progress(key domain.EntityKey, step domain.Step) Event {
	return Event{Type: EventProgress, Entity: &key, Step: &step}
}

// Complete builds a complete event. historyEntryID is empty when the
// outcome was not persisted.
func Complete(key domain.EntityKey, outcome domain.Outcome, historyEntryID string) Event {
	return Event{Type: EventComplete, Entity: &key, Outcome: &outcome, HistoryEntryID: historyEntryID}
}

// Failed builds an error event for a failed job.
func Failed(key domain.EntityKey, info domain.ErrorInfo) Event {
	return Event{Type: EventError, Entity: &key, Error: &ErrorPayload{Reason: ReasonFailed, Code: info.Code, Message: info.Message}}
}

// Cancelled builds an error event for a cancelled job.
func Cancelled(key domain.EntityKey) Event {
	return Event{Type: EventError, Entity: &key, Error: &ErrorPayload{Reason: ReasonCancelled, Message: "cancelled"}}
}

// QueueUpdate builds a queue snapshot event.
func QueueUpdate(snap domain.QueueSnapshot) Event {
	return Event{Type: EventQueueUpdate, Queue: &snap}
}

// Throttled builds the notification sent to a rate-limited client.
func Throttled(command string, retryAfterMS int64) Event {
	return Event{Type: EventThrottled, Throttled: &ThrottledPayload{Event: command, RetryAfter: retryAfterMS}}
}
