package domain

import "time"

// HistoryEntry is a persisted Outcome. Entries are append-only; they can be
// deleted but never updated.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - RepositoryFullName / EntityKind / EntityNumber: what was analyzed.
//   - Outcome: the result, stored as JSON.
//   - PersistedAt: when the entry was written; basis for staleness.
//   - PreviousEntryID: prior link in a re-review chain, if any.
//   - Sequence: 1 for a chain root, previous.Sequence+1 otherwise.
type HistoryEntry struct {
	ID                 string     `json:"id"                          gorm:"type:char(36);primaryKey"`
	RepositoryFullName string     `json:"repository_full_name"        gorm:"type:varchar(255);not null;index:idx_history_repo_entity,priority:1"`
	EntityKind         EntityKind `json:"entity_kind"                 gorm:"type:varchar(8);not null;check:chk_history_entity_kind,entity_kind IN ('issue','pr')"`
	EntityNumber       int        `json:"entity_number"               gorm:"not null;index:idx_history_repo_entity,priority:2"`
	Outcome            Outcome    `json:"outcome"                     gorm:"type:text;not null;serializer:json"`
	PersistedAt        time.Time  `json:"persisted_at"                gorm:"not null;index"`
	PreviousEntryID    *string    `json:"previous_entry_id,omitempty" gorm:"type:char(36);index"`
	Sequence           int        `json:"sequence"                    gorm:"not null;default:1"`
}

// TableName returns the database table name for HistoryEntry.
func (HistoryEntry) TableName() string { return "history_entries" }

// IsStaleAt reports whether the entity changed after the entry was persisted.
func (e HistoryEntry) IsStaleAt(entityUpdatedAt time.Time) bool {
	return entityUpdatedAt.After(e.PersistedAt)
}
