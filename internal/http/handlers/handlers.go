// Package handlers exposes the REST surface of the orchestrator:
//   - GET    /queue                      (live jobs snapshot)
//   - GET    /jobs/{kind}/{number}       (one live job)
//   - DELETE /jobs/{kind}/{number}       (cancel)
//   - GET    /history                    (list)
//   - GET    /history/chain              (re-review chain)
//   - GET    /history/{id}               (one entry)
//   - GET    /history/{id}/stale         (staleness check)
//   - DELETE /history/{id}               (delete)
//
// Handlers are transport-thin: they parse input, call the Orchestrator, and
// map service errors onto the envelope in response.go.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/services"
	"github.com/tbourn/review-orchestrator/internal/utils"
)

// Orchestrator is the subset of services.Orchestrator the REST surface uses.
type Orchestrator interface {
	Queue() domain.QueueSnapshot
	Job(key domain.EntityKey) (domain.JobSummary, bool)
	Cancel(key domain.EntityKey) bool
	HistoryList(ctx context.Context, repo string, opts services.ListOptions) ([]domain.HistoryEntry, error)
	HistoryGet(ctx context.Context, id string) (*domain.HistoryEntry, error)
	HistoryDelete(ctx context.Context, id string) (bool, error)
	Chain(ctx context.Context, key domain.EntityKey) ([]domain.HistoryEntry, error)
	IsStale(ctx context.Context, id string, entityUpdatedAt time.Time) (bool, error)
}

// Handlers groups the REST endpoints.
type Handlers struct {
	orch Orchestrator
}

// New returns Handlers bound to orch.
func New(orch Orchestrator) *Handlers {
	return &Handlers{orch: orch}
}

//
// DTOs
//

// CancelResponse reports whether a live job was found and asked to stop.
type CancelResponse struct {
	Cancelled bool `json:"cancelled" example:"true"`
}

// DeleteResponse reports whether the entry existed.
type DeleteResponse struct {
	Deleted bool `json:"deleted" example:"true"`
}

// HistoryListResponse wraps a page of history entries.
type HistoryListResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
}

// ChainResponse is a re-review chain, oldest first.
type ChainResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
}

// StaleResponse answers a staleness check.
type StaleResponse struct {
	ID    string `json:"id"`
	Stale bool   `json:"stale"`
}

//
// Helpers
//

// entityKey builds a key from the repo query parameter and the given kind
// and number strings.
func entityKey(c *gin.Context, kind, number string) (domain.EntityKey, error) {
	k, err := domain.ParseEntityKind(kind)
	if err != nil {
		return domain.EntityKey{}, err
	}
	n := utils.AtoiDefault(strings.TrimSpace(number), 0)
	return domain.NewEntityKey(c.Query("repo"), k, n)
}
