// Package services – HistoryService
//
// This file implements the HistoryService, which owns persisted outcomes.
// It assigns ids and chain sequence numbers on record, lists entries
// most-recent-first, deletes idempotently, computes staleness, and walks
// re-review chains.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

// HistoryRepo defines the repository contract required by HistoryService.
type HistoryRepo interface {
	// CreateHistoryEntry inserts a fully populated entry.
	CreateHistoryEntry(ctx context.Context, db *gorm.DB, e *domain.HistoryEntry) error

	// GetHistoryEntry fetches an entry by id, or gorm.ErrRecordNotFound.
	GetHistoryEntry(ctx context.Context, db *gorm.DB, id string) (*domain.HistoryEntry, error)

	// ListHistory returns entries for a repository, most recent first.
	// Zero kind, number, or limit do not filter.
	ListHistory(ctx context.Context, db *gorm.DB, repo string, kind domain.EntityKind, number, limit int) ([]domain.HistoryEntry, error)

	// DeleteHistoryEntry removes an entry and reports whether it existed.
	DeleteHistoryEntry(ctx context.Context, db *gorm.DB, id string) (bool, error)
}

// ListOptions narrows HistoryService.List.
type ListOptions struct {
	Limit  int
	Kind   domain.EntityKind
	Number int
}

// HistoryService records and queries analysis history.
type HistoryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the history repository used by this service.
	Repo HistoryRepo

	// DefaultLimit applies when List is called without a limit.
	DefaultLimit int
	// MaxLimit caps List results.
	MaxLimit int

	// Now is the clock for PersistedAt.
	Now func() time.Time
}

// NewHistoryService constructs a HistoryService with default paging limits.
func NewHistoryService(db *gorm.DB, r HistoryRepo) *HistoryService {
	return &HistoryService{
		DB:           db,
		Repo:         r,
		DefaultLimit: 50,
		MaxLimit:     500,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Record persists outcome for key. When previousEntryID resolves to an entry
// in the same repository the new entry links to it with the next sequence
// number; otherwise it starts a new chain at sequence 1.
func (s *HistoryService) Record(ctx context.Context, outcome domain.Outcome, key domain.EntityKey, previousEntryID string) (*domain.HistoryEntry, error) {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("entity", key.String()),
			attribute.String("history.previous_id", previousEntryID),
		),
	)
	defer span.End()

	if err := key.Validate(); err != nil {
		return nil, err
	}

	e := &domain.HistoryEntry{
		ID:                 uuid.NewString(),
		RepositoryFullName: key.Repository,
		EntityKind:         key.Kind,
		EntityNumber:       key.Number,
		Outcome:            outcome,
		PersistedAt:        s.Now(),
		Sequence:           1,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prevID := strings.TrimSpace(previousEntryID); prevID != "" {
			prev, err := s.Repo.GetHistoryEntry(ctx, tx, prevID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				return err
			case prev.RepositoryFullName == key.Repository:
				e.PreviousEntryID = &prev.ID
				e.Sequence = prev.Sequence + 1
			}
		}
		return s.Repo.CreateHistoryEntry(ctx, tx, e)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("history.id", e.ID), attribute.Int("history.sequence", e.Sequence))
	return e, nil
}

// Get returns one entry.
func (s *HistoryService) Get(ctx context.Context, id string) (*domain.HistoryEntry, error) {
	e, err := s.Repo.GetHistoryEntry(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHistoryNotFound
	}
	return e, err
}

// List returns entries for repo, most recent first.
func (s *HistoryService) List(ctx context.Context, repo string, opts ListOptions) ([]domain.HistoryEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if s.MaxLimit > 0 && limit > s.MaxLimit {
		limit = s.MaxLimit
	}
	return s.Repo.ListHistory(ctx, s.DB, domain.NormalizeRepository(repo), opts.Kind, opts.Number, limit)
}

// Delete removes an entry. Unknown ids report false without an error, so
// deleting twice is harmless.
func (s *HistoryService) Delete(ctx context.Context, id string) (bool, error) {
	return s.Repo.DeleteHistoryEntry(ctx, s.DB, id)
}

// IsStale reports whether the entity changed after entry was persisted.
func (s *HistoryService) IsStale(entry domain.HistoryEntry, entityUpdatedAt time.Time) bool {
	return entry.IsStaleAt(entityUpdatedAt)
}

// Chain returns the re-review chain ending at the most recent entry for the
// entity, oldest first. The walk stops at a missing link, a link into another
// repository, or a repeated id. An entity with no history yields an empty chain.
func (s *HistoryService) Chain(ctx context.Context, repo string, kind domain.EntityKind, number int) ([]domain.HistoryEntry, error) {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "Chain",
		trace.WithAttributes(attribute.String("repo", repo), attribute.Int("entity.number", number)),
	)
	defer span.End()

	repo = domain.NormalizeRepository(repo)
	latest, err := s.Repo.ListHistory(ctx, s.DB, repo, kind, number, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return []domain.HistoryEntry{}, nil
	}

	chain := []domain.HistoryEntry{latest[0]}
	seen := map[string]struct{}{latest[0].ID: {}}
	cur := latest[0]
	for cur.PreviousEntryID != nil {
		id := *cur.PreviousEntryID
		if _, dup := seen[id]; dup {
			break
		}
		prev, err := s.Repo.GetHistoryEntry(ctx, s.DB, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if prev.RepositoryFullName != repo {
			break
		}
		seen[id] = struct{}{}
		chain = append(chain, *prev)
		cur = *prev
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	span.SetAttributes(attribute.Int("chain.length", len(chain)))
	return chain, nil
}
