// Package provider drives an external AI provider and turns its step-by-step
// execution into a uniform event stream that ends in exactly one terminal
// event: an Outcome, an ErrorInfo, or Cancelled.
package provider

import (
	"context"
	"errors"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

// ErrStopped is returned by the yield function once the execution has been
// cancelled. Cooperative providers should return promptly when they see it.
var ErrStopped = errors.New("execution stopped")

// ErrProviderPanic wraps a recovered provider panic.
var ErrProviderPanic = errors.New("provider panicked")

// Params describes one execution.
type Params struct {
	Key      domain.EntityKey
	RepoPath string
	Profile  Profile
	// HeadSHA is the current PR head revision, when the client knows it.
	HeadSHA string

	// Chained re-review inputs. Previous is nil for a first run.
	Previous        *domain.Outcome
	PreviousHeadSHA string
	IncrementalDiff bool
}

// Chained reports whether the execution continues a previous review.
func (p Params) Chained() bool { return p.Previous != nil }

// StepUpdate is what a provider yields; the driver assigns id, sequence and
// timestamp.
type StepUpdate struct {
	Message  string
	Kind     domain.StepKind
	ToolName string
	FilePath string
}

// Provider is the opaque analysis backend. Execute calls yield for every
// progress step, in order, and returns the final outcome or an error. It
// should watch ctx; yield returns ErrStopped after cancellation.
type Provider interface {
	Name() string
	Execute(ctx context.Context, params Params, yield func(StepUpdate) error) (domain.Outcome, error)
}

// EventKind discriminates driver events.
type EventKind int

const (
	EventStep EventKind = iota + 1
	EventOutcome
	EventError
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventStep:
		return "step"
	case EventOutcome:
		return "outcome"
	case EventError:
		return "error"
	case EventCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Event is one element of the driver's output stream.
type Event struct {
	Kind    EventKind
	Step    *domain.Step
	Outcome *domain.Outcome
	Err     *domain.ErrorInfo
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool { return e.Kind != EventStep }
