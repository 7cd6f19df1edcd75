// Package services – Orchestrator
//
// This file implements the Orchestrator, the root facade behind every client
// command. It composes the job registry, the event bus, and the history
// service: progress and queue snapshots flow to the bus as they happen, and
// each terminal job is persisted (when completed) before its terminal event
// is published.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/jobs"
	"github.com/tbourn/review-orchestrator/internal/provider"
	"github.com/tbourn/review-orchestrator/internal/stream"
)

// StartRequest describes one analysis request.
type StartRequest struct {
	Key      domain.EntityKey
	RepoPath string
	// Profile selects a provider profile; empty uses the default.
	Profile string
	// HeadSHA is the current PR head revision, if known.
	HeadSHA string
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	MaxConcurrent int
	Profiles      *provider.Profiles
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	registry *jobs.Registry
	bus      *stream.Bus
	history  *HistoryService
	profiles *provider.Profiles
}

// NewOrchestrator wires exec, bus and history together.
func NewOrchestrator(exec jobs.Executor, bus *stream.Bus, history *HistoryService, opts OrchestratorOptions) *Orchestrator {
	if opts.Profiles == nil {
		opts.Profiles = provider.DefaultProfiles("", "")
	}
	o := &Orchestrator{bus: bus, history: history, profiles: opts.Profiles}
	o.registry = jobs.New(exec, jobs.Options{
		MaxConcurrent: opts.MaxConcurrent,
		Hooks: jobs.Hooks{
			OnStep: func(key domain.EntityKey, step domain.Step) {
				bus.Publish(stream.Progress(key, step))
			},
			OnSnapshot: func(snap domain.QueueSnapshot) {
				bus.Publish(stream.QueueUpdate(snap))
			},
			Persist:    o.persist,
			OnTerminal: o.onTerminal,
		},
	})
	return o
}

// Start admits a fresh analysis for req.Key.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (domain.JobSummary, error) {
	_, span := otel.Tracer("services/Orchestrator").Start(ctx, "Start",
		trace.WithAttributes(attribute.String("entity", req.Key.String())),
	)
	defer span.End()

	params, err := o.params(req)
	if err != nil {
		return domain.JobSummary{}, spanErr(span, err)
	}
	h, err := o.registry.Start(req.Key, jobs.Spec{Params: params})
	if err != nil {
		return domain.JobSummary{}, spanErr(span, err)
	}
	return h.Summary(), nil
}

// ReReview admits an analysis that continues the chain ending at
// previousEntryID. The previous entry must exist, belong to the same entity,
// and hold a review.
func (o *Orchestrator) ReReview(ctx context.Context, req StartRequest, previousEntryID string) (domain.JobSummary, error) {
	ctx, span := otel.Tracer("services/Orchestrator").Start(ctx, "ReReview",
		trace.WithAttributes(
			attribute.String("entity", req.Key.String()),
			attribute.String("history.previous_id", previousEntryID),
		),
	)
	defer span.End()

	prev, err := o.history.Get(ctx, previousEntryID)
	if errors.Is(err, ErrHistoryNotFound) {
		return domain.JobSummary{}, spanErr(span, ErrPreviousNotFound)
	}
	if err != nil {
		return domain.JobSummary{}, spanErr(span, err)
	}
	if prev.RepositoryFullName != req.Key.Repository || prev.EntityKind != req.Key.Kind || prev.EntityNumber != req.Key.Number {
		return domain.JobSummary{}, spanErr(span, fmt.Errorf("%w: entry %s belongs to %s#%s/%d", ErrInvalidChain, prev.ID, prev.RepositoryFullName, prev.EntityKind, prev.EntityNumber))
	}
	if prev.Outcome.Kind != domain.OutcomeReview {
		return domain.JobSummary{}, spanErr(span, fmt.Errorf("%w: entry %s is a %s", ErrInvalidChain, prev.ID, prev.Outcome.Kind))
	}

	params, err := o.params(req)
	if err != nil {
		return domain.JobSummary{}, spanErr(span, err)
	}
	previous := prev.Outcome
	params.Previous = &previous
	params.PreviousHeadSHA = prev.Outcome.HeadSHA
	params.IncrementalDiff = true

	h, err := o.registry.ReReview(req.Key, prev.ID, jobs.Spec{Params: params})
	if err != nil {
		return domain.JobSummary{}, spanErr(span, err)
	}
	return h.Summary(), nil
}

// Cancel requests cancellation and reports whether a live job was found.
func (o *Orchestrator) Cancel(key domain.EntityKey) bool {
	return o.registry.Cancel(key)
}

// Job returns the live job for key.
func (o *Orchestrator) Job(key domain.EntityKey) (domain.JobSummary, bool) {
	return o.registry.Get(key)
}

// Queue returns the current queue snapshot.
func (o *Orchestrator) Queue() domain.QueueSnapshot {
	return o.registry.Snapshot()
}

// Subscribe attaches a client to the event stream and queues the current
// snapshot for it alone. The snapshot is queued under the registry's snapshot
// lock so the client never sees an older version after a newer one.
func (o *Orchestrator) Subscribe(sink stream.Sink) (unsubscribe func()) {
	unsub := o.bus.Subscribe(sink)
	o.registry.SnapshotTo(func(snap domain.QueueSnapshot) {
		o.bus.Deliver(sink.ID(), stream.QueueUpdate(snap))
	})
	return unsub
}

// HistoryList lists entries for repo, most recent first.
func (o *Orchestrator) HistoryList(ctx context.Context, repo string, opts ListOptions) ([]domain.HistoryEntry, error) {
	return o.history.List(ctx, repo, opts)
}

// HistoryGet returns one entry.
func (o *Orchestrator) HistoryGet(ctx context.Context, id string) (*domain.HistoryEntry, error) {
	return o.history.Get(ctx, id)
}

// HistoryDelete removes an entry and reports whether it existed.
func (o *Orchestrator) HistoryDelete(ctx context.Context, id string) (bool, error) {
	return o.history.Delete(ctx, id)
}

// Chain returns the review chain for an entity, oldest first.
func (o *Orchestrator) Chain(ctx context.Context, key domain.EntityKey) ([]domain.HistoryEntry, error) {
	return o.history.Chain(ctx, key.Repository, key.Kind, key.Number)
}

// IsStale reports whether the entity changed after entry id was recorded.
func (o *Orchestrator) IsStale(ctx context.Context, id string, entityUpdatedAt time.Time) (bool, error) {
	e, err := o.history.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return o.history.IsStale(*e, entityUpdatedAt), nil
}

// Shutdown cancels running jobs, waits for them, and closes every subscriber.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.registry.Shutdown(ctx)
	o.bus.Shutdown()
	return err
}

func (o *Orchestrator) params(req StartRequest) (provider.Params, error) {
	profile, err := o.profiles.Resolve(req.Profile)
	if err != nil {
		return provider.Params{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return provider.Params{
		Key:      req.Key,
		RepoPath: req.RepoPath,
		Profile:  profile,
		HeadSHA:  req.HeadSHA,
	}, nil
}

// persist records a completed outcome before the job's status becomes
// visible, so a completed snapshot always has a history entry behind it.
func (o *Orchestrator) persist(ctx context.Context, t jobs.Terminal) (string, error) {
	ctx, span := otel.Tracer("services/Orchestrator").Start(ctx, "Persist",
		trace.WithAttributes(attribute.String("entity", t.Key.String())),
	)
	defer span.End()

	entry, err := o.history.Record(ctx, *t.Outcome, t.Key, t.PreviousEntryID)
	if err != nil {
		log.Error().Err(err).Str("entity", t.Key.String()).Msg("persist outcome failed")
		return "", spanErr(span, err)
	}
	return entry.ID, nil
}

// onTerminal publishes the terminal event. Failed and cancelled jobs are
// never written to history.
func (o *Orchestrator) onTerminal(_ context.Context, t jobs.Terminal) {
	switch t.Status {
	case domain.JobCompleted:
		o.bus.Publish(stream.Complete(t.Key, *t.Outcome, t.EntryID))
	case domain.JobFailed:
		info := domain.ErrorInfo{Code: domain.ErrCodeInternal, Message: "failed"}
		if t.Err != nil {
			info = *t.Err
		}
		o.bus.Publish(stream.Failed(t.Key, info))
	default:
		o.bus.Publish(stream.Cancelled(t.Key))
	}
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
