package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

// Driver wraps a Provider. It is safe for concurrent use; each Execute call
// is independent.
type Driver struct {
	provider Provider
	now      func() time.Time
	buffer   int
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the time source used for step timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithBuffer sets the output channel capacity.
func WithBuffer(n int) Option {
	return func(d *Driver) {
		if n >= 0 {
			d.buffer = n
		}
	}
}

// NewDriver returns a Driver for p.
func NewDriver(p Provider, opts ...Option) *Driver {
	d := &Driver{provider: p, now: time.Now, buffer: 16}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Provider returns the wrapped provider.
func (d *Driver) Provider() Provider { return d.provider }

// Execute starts the provider and returns its event stream. The stream
// carries zero or more EventStep events with strictly increasing Seq,
// followed by exactly one terminal event, after which it is closed.
//
// The consumer must drain the channel until it is closed.
func (d *Driver) Execute(ctx context.Context, params Params) <-chan Event {
	out := make(chan Event, d.buffer)
	go d.run(ctx, params, out)
	return out
}

type providerResult struct {
	outcome domain.Outcome
	err     error
}

func (d *Driver) run(ctx context.Context, params Params, out chan<- Event) {
	defer close(out)

	execID := uuid.NewString()
	start := d.now()
	updates := make(chan StepUpdate)
	done := make(chan providerResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- providerResult{err: fmt.Errorf("%w: %v", ErrProviderPanic, r)}
			}
		}()
		o, err := d.provider.Execute(ctx, params, func(u StepUpdate) error {
			select {
			case updates <- u:
				return nil
			case <-ctx.Done():
				return ErrStopped
			}
		})
		done <- providerResult{outcome: o, err: err}
	}()

	seq := 0
	for {
		select {
		case u := <-updates:
			// Yield point: nothing is forwarded once cancellation is observed.
			if ctx.Err() != nil {
				out <- interrupted(ctx)
				return
			}
			seq++
			kind := u.Kind
			if kind == "" {
				kind = domain.StepStatus
			}
			out <- Event{Kind: EventStep, Step: &domain.Step{
				ID:        fmt.Sprintf("%s-%d", execID, seq),
				Seq:       seq,
				Message:   u.Message,
				Timestamp: d.now(),
				Kind:      kind,
				ToolName:  u.ToolName,
				FilePath:  u.FilePath,
			}}
		case r := <-done:
			out <- d.classify(ctx, params, r, start)
			return
		case <-ctx.Done():
			// The provider may not honor ctx; stop forwarding and detach.
			// Its goroutine exits on its own since yield and done never block.
			out <- interrupted(ctx)
			return
		}
	}
}

// classify maps the provider's return onto a terminal event. The context is
// consulted first so a success reported after cancellation is never surfaced.
func (d *Driver) classify(ctx context.Context, params Params, r providerResult, start time.Time) Event {
	if ctx.Err() != nil {
		return interrupted(ctx)
	}
	if r.err != nil {
		return Event{Kind: EventError, Err: &domain.ErrorInfo{
			Code:    domain.ErrCodeProviderFailure,
			Message: r.err.Error(),
		}}
	}
	o := r.outcome
	if err := o.Validate(); err != nil {
		return Event{Kind: EventError, Err: &domain.ErrorInfo{
			Code:    domain.ErrCodeProviderFailure,
			Message: err.Error(),
		}}
	}
	if o.Provider == "" {
		o.Provider = d.provider.Name()
	}
	if o.Model == "" {
		o.Model = params.Profile.Model
	}
	if o.HeadSHA == "" {
		o.HeadSHA = params.HeadSHA
	}
	if o.Metrics.DurationMS == 0 {
		o.Metrics.DurationMS = d.now().Sub(start).Milliseconds()
	}
	return Event{Kind: EventOutcome, Outcome: &o}
}

// interrupted reports why ctx ended. Only explicit cancellation is
// Cancelled; an expired deadline imposed by a caller is a failure.
func interrupted(ctx context.Context) Event {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Event{Kind: EventError, Err: &domain.ErrorInfo{
			Code:    domain.ErrCodeProviderFailure,
			Message: "deadline exceeded",
		}}
	}
	return Event{Kind: EventCancelled}
}
