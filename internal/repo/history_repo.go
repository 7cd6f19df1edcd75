// This file provides repository functions for the HistoryEntry model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction. They follow the "thin repository" approach:
// chain resolution and sequencing live in services.HistoryService.
//
// Error semantics:
//   - A missing entry yields ErrNotFound (gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// HistoryFilter narrows ListHistory. Zero fields do not filter.
type HistoryFilter struct {
	Kind   domain.EntityKind
	Number int
	Limit  int
}

// CreateHistoryEntry inserts e as given. The caller assigns ID, PersistedAt
// and Sequence.
func CreateHistoryEntry(ctx context.Context, db *gorm.DB, e *domain.HistoryEntry) error {
	return db.WithContext(ctx).Create(e).Error
}

// GetHistoryEntry fetches one entry by ID.
func GetHistoryEntry(ctx context.Context, db *gorm.DB, id string) (*domain.HistoryEntry, error) {
	var e domain.HistoryEntry
	if err := db.WithContext(ctx).First(&e, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListHistory returns entries for repo, most recent first.
func ListHistory(ctx context.Context, db *gorm.DB, repo string, f HistoryFilter) ([]domain.HistoryEntry, error) {
	q := db.WithContext(ctx).
		Where("repository_full_name = ?", repo).
		Order("persisted_at DESC").
		Order("sequence DESC")
	if f.Kind != "" {
		q = q.Where("entity_kind = ?", f.Kind)
	}
	if f.Number > 0 {
		q = q.Where("entity_number = ?", f.Number)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []domain.HistoryEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteHistoryEntry removes an entry and reports whether one existed.
func DeleteHistoryEntry(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&domain.HistoryEntry{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
