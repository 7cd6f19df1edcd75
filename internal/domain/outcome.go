package domain

import (
	"errors"
	"fmt"
)

// OutcomeKind discriminates the Outcome union.
type OutcomeKind string

const (
	OutcomeValidation OutcomeKind = "validation"
	OutcomeReview     OutcomeKind = "review"
)

// ErrInvalidOutcome is returned by Outcome.Validate.
var ErrInvalidOutcome = errors.New("invalid outcome")

// ValidationVerdict is the result of validating a bug report or feature request.
type ValidationVerdict string

const (
	VerdictConfirmed ValidationVerdict = "confirmed"
	VerdictLikely    ValidationVerdict = "likely"
	VerdictUnlikely  ValidationVerdict = "unlikely"
	VerdictInvalid   ValidationVerdict = "invalid"
	VerdictNeedsInfo ValidationVerdict = "needs_info"
)

// ReviewVerdict maps onto the GitHub review event a PR review would submit.
type ReviewVerdict string

const (
	VerdictApprove        ReviewVerdict = "approve"
	VerdictRequestChanges ReviewVerdict = "request_changes"
	VerdictComment        ReviewVerdict = "comment"
)

// Severity ranks a review finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ValidationResult is the issue-validation payload.
type ValidationResult struct {
	Verdict           ValidationVerdict `json:"verdict"`
	Confidence        int               `json:"confidence"`
	Summary           string            `json:"summary"`
	ReproductionSteps []string          `json:"reproduction_steps,omitempty"`
	SuggestedLabels   []string          `json:"suggested_labels,omitempty"`
}

// Finding is one inline review comment.
type Finding struct {
	Path     string   `json:"path"`
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ReviewResult is the pull-request review payload.
type ReviewResult struct {
	Verdict  ReviewVerdict `json:"verdict"`
	Score    int           `json:"score"`
	Summary  string        `json:"summary"`
	Findings []Finding     `json:"findings,omitempty"`
}

// RunMetrics records what an execution cost.
type RunMetrics struct {
	CostUSD      float64 `json:"cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Turns        int     `json:"turns"`
}

// Outcome is the immutable success value of a job: exactly one of
// Validation or Review is set, matching Kind.
type Outcome struct {
	Kind       OutcomeKind       `json:"kind"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Review     *ReviewResult     `json:"review,omitempty"`
	Metrics    RunMetrics        `json:"metrics"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	// HeadSHA is the PR head revision the review looked at. Chained
	// re-reviews diff against it.
	HeadSHA string `json:"head_sha,omitempty"`
}

// Validate checks the union discriminator and payload ranges.
func (o Outcome) Validate() error {
	switch o.Kind {
	case OutcomeValidation:
		if o.Validation == nil || o.Review != nil {
			return fmt.Errorf("%w: validation outcome must carry only a validation payload", ErrInvalidOutcome)
		}
		switch o.Validation.Verdict {
		case VerdictConfirmed, VerdictLikely, VerdictUnlikely, VerdictInvalid, VerdictNeedsInfo:
		default:
			return fmt.Errorf("%w: unknown validation verdict %q", ErrInvalidOutcome, o.Validation.Verdict)
		}
		if o.Validation.Confidence < 0 || o.Validation.Confidence > 100 {
			return fmt.Errorf("%w: confidence out of range", ErrInvalidOutcome)
		}
	case OutcomeReview:
		if o.Review == nil || o.Validation != nil {
			return fmt.Errorf("%w: review outcome must carry only a review payload", ErrInvalidOutcome)
		}
		switch o.Review.Verdict {
		case VerdictApprove, VerdictRequestChanges, VerdictComment:
		default:
			return fmt.Errorf("%w: unknown review verdict %q", ErrInvalidOutcome, o.Review.Verdict)
		}
		if o.Review.Score < 0 || o.Review.Score > 100 {
			return fmt.Errorf("%w: score out of range", ErrInvalidOutcome)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOutcome, o.Kind)
	}
	return nil
}

// OutcomeKindFor returns the outcome kind produced for an entity kind:
// issues are validated, pull requests are reviewed.
func OutcomeKindFor(k EntityKind) OutcomeKind {
	if k == EntityPR {
		return OutcomeReview
	}
	return OutcomeValidation
}
