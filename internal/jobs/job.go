package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/provider"
)

// Spec carries what a job needs beyond its key.
type Spec struct {
	Params provider.Params
	// PreviousEntryID links a re-review to the history entry it continues.
	PreviousEntryID string
}

// Terminal is handed to Hooks.OnTerminal once a job's final status is fixed.
type Terminal struct {
	Key             domain.EntityKey
	Status          domain.JobStatus
	Outcome         *domain.Outcome
	Err             *domain.ErrorInfo
	PreviousEntryID string
	// EntryID is the history entry written by Hooks.Persist, if any.
	EntryID     string
	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt time.Time
}

// job is one execution attempt. All mutable fields are guarded by mu.
type job struct {
	key  domain.EntityKey
	spec Spec

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.Mutex
	status          domain.JobStatus
	queuedAt        time.Time
	startedAt       *time.Time
	completedAt     *time.Time
	cancelRequested bool
	settled         bool
	steps           int
}

func (j *job) summary() domain.JobSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return domain.JobSummary{
		Key:             j.key,
		Status:          j.status,
		QueuedAt:        j.queuedAt,
		StartedAt:       copyTime(j.startedAt),
		CompletedAt:     copyTime(j.completedAt),
		CancelRequested: j.cancelRequested,
		PreviousEntryID: j.spec.PreviousEntryID,
		Steps:           j.steps,
	}
}

// requestCancel marks the job and reports whether it was still live.
func (j *job) requestCancel() bool {
	j.mu.Lock()
	if j.settled {
		j.mu.Unlock()
		return false
	}
	j.cancelRequested = true
	j.mu.Unlock()
	j.cancel()
	return true
}

// markRunning moves queued to running. It fails if cancellation was
// requested while the job waited for a slot.
func (j *job) markRunning(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelRequested || j.status != domain.JobQueued {
		return false
	}
	j.status = domain.JobRunning
	j.startedAt = &now
	return true
}

func (j *job) countStep() {
	j.mu.Lock()
	j.steps++
	j.mu.Unlock()
}

// resolve fixes the terminal status from the driver's terminal event. From
// here on cancellation is refused, but snapshots keep showing the previous
// status until commit.
//
// Resolution order:
//  1. The driver reported Cancelled: cancelled.
//  2. cancelRequested was set before this call: cancelled, and any outcome
//     or error the driver produced is discarded.
//  3. Outcome: completed. ErrorInfo: failed.
//
// A nil event means the job never reached the driver.
func (j *job) resolve(ev *provider.Event, now time.Time) Terminal {
	j.mu.Lock()
	defer j.mu.Unlock()

	t := Terminal{
		Key:             j.key,
		PreviousEntryID: j.spec.PreviousEntryID,
		QueuedAt:        j.queuedAt,
		StartedAt:       copyTime(j.startedAt),
		CompletedAt:     now,
	}
	switch {
	case ev != nil && ev.Kind == provider.EventCancelled:
		t.Status = domain.JobCancelled
	case j.cancelRequested:
		t.Status = domain.JobCancelled
	case ev == nil:
		t.Status = domain.JobCancelled
	case ev.Kind == provider.EventOutcome && ev.Outcome != nil:
		t.Status = domain.JobCompleted
		t.Outcome = ev.Outcome
	case ev.Kind == provider.EventError && ev.Err != nil:
		t.Status = domain.JobFailed
		t.Err = ev.Err
	default:
		t.Status = domain.JobFailed
		t.Err = &domain.ErrorInfo{Code: domain.ErrCodeInternal, Message: "execution ended without a result"}
	}
	j.settled = true
	return t
}

// commit makes t's status visible to summaries.
func (j *job) commit(t Terminal) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = t.Status
	completed := t.CompletedAt
	j.completedAt = &completed
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
