package repo

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "reviews.db")

	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error for %q, got db=%v err=%v", bad, db, err)
	}
	if !strings.Contains(err.Error(), "history db directory") {
		t.Fatalf("error should name the history db: %v", err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "reviews.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create the history table ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if !db.Migrator().HasTable(&domain.HistoryEntry{}) {
		t.Fatalf("expected history_entries table to exist")
	}
	if !db.Migrator().HasIndex(&domain.HistoryEntry{}, "idx_history_repo_entity") {
		t.Fatalf("expected idx_history_repo_entity index")
	}

	// Quick insert round-trip to prove schema and JSON outcome column are usable.
	e := &domain.HistoryEntry{
		ID:                 "11111111-1111-1111-1111-111111111111",
		RepositoryFullName: "acme/widgets",
		EntityKind:         domain.EntityPR,
		EntityNumber:       5,
		Outcome:            domain.Outcome{Kind: domain.OutcomeReview, Review: &domain.ReviewResult{Verdict: domain.VerdictComment, Score: 60}},
		PersistedAt:        time.Now().UTC(),
		Sequence:           1,
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("insert history entry: %v", err)
	}

	var got domain.HistoryEntry
	if err := db.First(&got, "id = ?", e.ID).Error; err != nil || got.Outcome.Review == nil || got.Outcome.Review.Score != 60 {
		t.Fatalf("readback entry failed: err=%v got=%+v", err, got)
	}

	// entity_kind is constrained.
	bad := *e
	bad.ID = "22222222-2222-2222-2222-222222222222"
	bad.EntityKind = "commit"
	if err := db.Create(&bad).Error; err == nil {
		t.Fatalf("expected check constraint to reject entity_kind=commit")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
