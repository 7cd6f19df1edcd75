// Package jobs owns live analysis jobs: single-flight admission per entity,
// a global concurrency cap, cancellation, and the authoritative queue
// snapshot.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/observability"
	"github.com/tbourn/review-orchestrator/internal/provider"
)

var (
	// ErrAlreadyActive is returned when the entity already has a queued or running job.
	ErrAlreadyActive = errors.New("entity already has an active job")
	// ErrClosed is returned once Shutdown has begun. No job is created.
	ErrClosed = errors.New("job registry is shut down")
)

// DefaultMaxConcurrent bounds running jobs when Options leaves it unset.
const DefaultMaxConcurrent = 4

// Executor runs one job. *provider.Driver satisfies it.
type Executor interface {
	Execute(ctx context.Context, params provider.Params) <-chan provider.Event
}

// Hooks receive registry output. They are called synchronously from the
// job's goroutine and must not block for long. Nil hooks are skipped.
type Hooks struct {
	// OnStep is called for every step, in emission order.
	OnStep func(key domain.EntityKey, step domain.Step)
	// Persist is called for completed jobs after the outcome is fixed and
	// before the status is visible in a snapshot. It returns the id of the
	// stored entry. An error turns the job into failed with an internal
	// error code, so snapshots and the terminal event agree.
	Persist func(ctx context.Context, t Terminal) (entryID string, err error)
	// OnTerminal is called once per job after its terminal status is
	// visible in a snapshot and before the job leaves the live map.
	OnTerminal func(ctx context.Context, t Terminal)
	// OnSnapshot receives every queue snapshot in version order.
	OnSnapshot func(snap domain.QueueSnapshot)
}

// Options configures a Registry.
type Options struct {
	MaxConcurrent int
	Hooks         Hooks
	Clock         func() time.Time
}

// Registry is safe for concurrent use. Admission for a key is a single
// atomic LoadOrStore, so unrelated keys never contend on a shared lock.
type Registry struct {
	exec  Executor
	sem   *semaphore.Weighted
	hooks Hooks
	now   func() time.Time

	live sync.Map // domain.EntityKey -> *job

	// admitMu orders admissions against Shutdown.
	admitMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup

	baseCtx   context.Context
	cancelAll context.CancelFunc

	snapMu  sync.Mutex
	version uint64
}

// New returns a Registry that runs jobs on exec.
func New(exec Executor, opts Options) *Registry {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		exec:      exec,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		hooks:     opts.Hooks,
		now:       opts.Clock,
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// Handle refers to an admitted job.
type Handle struct {
	j *job
}

// Key returns the job's entity.
func (h *Handle) Key() domain.EntityKey { return h.j.key }

// Done is closed after the job has left the live map.
func (h *Handle) Done() <-chan struct{} { return h.j.done }

// Summary returns the job's current view.
func (h *Handle) Summary() domain.JobSummary { return h.j.summary() }

// Start admits a job for key. It fails with ErrAlreadyActive when key has a
// live job and with ErrClosed after Shutdown.
func (r *Registry) Start(key domain.EntityKey, spec Spec) (*Handle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r.admitMu.RLock()
	defer r.admitMu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	spec.Params.Key = key
	j := &job{
		key:      key,
		spec:     spec,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   domain.JobQueued,
		queuedAt: r.now(),
	}
	if _, loaded := r.live.LoadOrStore(key, j); loaded {
		cancel()
		observability.JobsRejected.WithLabelValues(string(key.Kind)).Inc()
		return nil, ErrAlreadyActive
	}

	observability.JobsStarted.WithLabelValues(string(key.Kind)).Inc()
	observability.JobsLive.WithLabelValues(string(domain.JobQueued)).Inc()
	log.Info().Str("entity", key.String()).Str("previous_entry_id", spec.PreviousEntryID).Msg("job queued")

	r.wg.Add(1)
	r.publishSnapshot()
	go r.run(j)
	return &Handle{j: j}, nil
}

// ReReview is Start for a job that continues the chain ending at previousEntryID.
func (r *Registry) ReReview(key domain.EntityKey, previousEntryID string, spec Spec) (*Handle, error) {
	spec.PreviousEntryID = previousEntryID
	return r.Start(key, spec)
}

// Cancel requests cancellation of key's live job. It reports whether a live
// job was found; cancelling an idle or already-terminal key is a no-op.
func (r *Registry) Cancel(key domain.EntityKey) bool {
	v, ok := r.live.Load(key)
	if !ok {
		return false
	}
	j := v.(*job)
	if !j.requestCancel() {
		return false
	}
	log.Info().Str("entity", key.String()).Msg("job cancel requested")
	r.publishSnapshot()
	return true
}

// Get returns the live job for key.
func (r *Registry) Get(key domain.EntityKey) (domain.JobSummary, bool) {
	v, ok := r.live.Load(key)
	if !ok {
		return domain.JobSummary{}, false
	}
	return v.(*job).summary(), true
}

// Snapshot returns the current queue with a fresh version.
func (r *Registry) Snapshot() domain.QueueSnapshot {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	r.version++
	return r.buildLocked()
}

// SnapshotTo builds a fresh snapshot and passes it to fn under the same lock
// that orders OnSnapshot, so whatever fn enqueues never lands behind a newer
// published snapshot. fn must not call back into the registry.
func (r *Registry) SnapshotTo(fn func(domain.QueueSnapshot)) {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	r.version++
	fn(r.buildLocked())
}

// Shutdown cancels every live job, refuses new ones, and waits for workers
// to finish or ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.admitMu.Lock()
	r.closed = true
	r.admitMu.Unlock()

	r.live.Range(func(_, v any) bool {
		v.(*job).requestCancel()
		return true
	})
	r.cancelAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) run(j *job) {
	defer r.wg.Done()
	defer close(j.done)

	if err := r.sem.Acquire(j.ctx, 1); err != nil {
		r.finish(j, domain.JobQueued, nil)
		return
	}
	defer r.sem.Release(1)

	if j.ctx.Err() != nil || !j.markRunning(r.now()) {
		r.finish(j, domain.JobQueued, nil)
		return
	}
	observability.JobsLive.WithLabelValues(string(domain.JobQueued)).Dec()
	observability.JobsLive.WithLabelValues(string(domain.JobRunning)).Inc()
	r.publishSnapshot()

	var term *provider.Event
	for ev := range r.exec.Execute(j.ctx, j.spec.Params) {
		if ev.Kind == provider.EventStep {
			if ev.Step == nil {
				continue
			}
			j.countStep()
			if r.hooks.OnStep != nil {
				r.hooks.OnStep(j.key, *ev.Step)
			}
			continue
		}
		if term == nil {
			e := ev
			term = &e
		}
	}
	if term == nil {
		term = &provider.Event{}
	}
	r.finish(j, domain.JobRunning, term)
}

// finish runs the terminal sequence: fix status, persist, commit, snapshot,
// hook, remove, snapshot.
func (r *Registry) finish(j *job, from domain.JobStatus, ev *provider.Event) {
	ctx := context.WithoutCancel(j.ctx)
	t := j.resolve(ev, r.now())
	if t.Status == domain.JobCompleted && r.hooks.Persist != nil {
		id, err := r.hooks.Persist(ctx, t)
		if err != nil {
			t.Status = domain.JobFailed
			t.Outcome = nil
			t.Err = &domain.ErrorInfo{Code: domain.ErrCodeInternal, Message: "result could not be saved"}
		} else {
			t.EntryID = id
		}
	}
	j.commit(t)
	r.publishSnapshot()

	if r.hooks.OnTerminal != nil {
		r.hooks.OnTerminal(ctx, t)
	}

	r.live.CompareAndDelete(j.key, j)
	j.cancel()
	r.publishSnapshot()

	kind := string(j.key.Kind)
	observability.JobsLive.WithLabelValues(string(from)).Dec()
	observability.JobsFinished.WithLabelValues(kind, string(t.Status)).Inc()
	observability.JobDuration.WithLabelValues(kind, string(t.Status)).Observe(t.CompletedAt.Sub(t.QueuedAt).Seconds())

	logEv := log.Info()
	if t.Err != nil {
		logEv = log.Warn().Str("error_code", t.Err.Code).Str("error", t.Err.Message)
	}
	logEv.Str("entity", j.key.String()).Str("status", string(t.Status)).Msg("job finished")
}

func (r *Registry) publishSnapshot() {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	r.version++
	snap := r.buildLocked()
	if r.hooks.OnSnapshot != nil {
		r.hooks.OnSnapshot(snap)
	}
}

// buildLocked must be called with snapMu held.
func (r *Registry) buildLocked() domain.QueueSnapshot {
	out := domain.QueueSnapshot{Version: r.version, Jobs: []domain.JobSummary{}}
	r.live.Range(func(_, v any) bool {
		out.Jobs = append(out.Jobs, v.(*job).summary())
		return true
	})
	sort.Slice(out.Jobs, func(a, b int) bool {
		ja, jb := out.Jobs[a], out.Jobs[b]
		if !ja.QueuedAt.Equal(jb.QueuedAt) {
			return ja.QueuedAt.Before(jb.QueuedAt)
		}
		return ja.Key.String() < jb.Key.String()
	})
	return out
}
