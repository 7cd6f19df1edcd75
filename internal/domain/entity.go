// Package domain defines the core types shared by the job registry, the
// provider driver, the event bus, and the history store: entity keys, jobs,
// progress steps, outcomes, and persisted history entries.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// EntityKind distinguishes GitHub issues from pull requests.
type EntityKind string

const (
	EntityIssue EntityKind = "issue"
	EntityPR    EntityKind = "pr"
)

// ErrInvalidEntity is returned when an entity key is malformed.
var ErrInvalidEntity = errors.New("invalid entity")

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool { return k == EntityIssue || k == EntityPR }

// ParseEntityKind accepts "issue" or "pr" (plus a few aliases) case-insensitively.
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "issue", "issues", "bug", "feature":
		return EntityIssue, nil
	case "pr", "prs", "pull", "pull_request":
		return EntityPR, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEntity, s)
}

// EntityKey identifies the unit of single-flight admission: one issue or PR
// within one repository.
type EntityKey struct {
	Repository string     `json:"repository"`
	Kind       EntityKind `json:"kind"`
	Number     int        `json:"number"`
}

// NewEntityKey builds a normalized, validated key.
func NewEntityKey(repository string, kind EntityKind, number int) (EntityKey, error) {
	k := EntityKey{Repository: NormalizeRepository(repository), Kind: kind, Number: number}
	if err := k.Validate(); err != nil {
		return EntityKey{}, err
	}
	return k, nil
}

// Validate checks that the key names a repository, a known kind, and a positive number.
func (k EntityKey) Validate() error {
	if k.Repository == "" || !strings.Contains(k.Repository, "/") {
		return fmt.Errorf("%w: repository must be owner/name, got %q", ErrInvalidEntity, k.Repository)
	}
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntity, k.Kind)
	}
	if k.Number <= 0 {
		return fmt.Errorf("%w: number must be > 0", ErrInvalidEntity)
	}
	return nil
}

// String renders the key as "owner/repo#pr/42".
func (k EntityKey) String() string {
	return fmt.Sprintf("%s#%s/%d", k.Repository, k.Kind, k.Number)
}

// NormalizeRepository trims and case-folds a repository full name. GitHub
// treats owner and repository names case-insensitively.
func NormalizeRepository(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return ""
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(s)
}
