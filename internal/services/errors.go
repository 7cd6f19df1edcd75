// Package services defines the business logic for analysis jobs and their
// history. This file centralizes service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages, HTTP status codes, or websocket
// reply codes is performed at the transport layer.
package services

import (
	"errors"

	"github.com/tbourn/review-orchestrator/internal/jobs"
)

// Job admission errors.
var (
	// ErrAlreadyActive is returned when the entity already has a queued or
	// running job. No job is created.
	ErrAlreadyActive = jobs.ErrAlreadyActive

	// ErrShuttingDown is returned when a start arrives after shutdown began.
	ErrShuttingDown = jobs.ErrClosed

	// ErrInvalidRequest is returned for malformed start requests, such as an
	// unknown provider profile.
	ErrInvalidRequest = errors.New("invalid request")
)

// History and chaining errors.
var (
	// ErrHistoryNotFound indicates that no history entry has the given id.
	ErrHistoryNotFound = errors.New("history entry not found")

	// ErrPreviousNotFound is returned by ReReview when the previous entry id
	// does not resolve.
	ErrPreviousNotFound = errors.New("previous history entry not found")

	// ErrInvalidChain is returned by ReReview when the previous entry belongs
	// to a different entity or is not a review.
	ErrInvalidChain = errors.New("previous entry cannot be chained")
)
