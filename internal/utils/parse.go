// Package utils holds small parsing helpers shared by the REST handlers and
// the CLI. Nothing here knows about jobs or history.
package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadTime is returned by ParseTimeParam for unparseable input.
var ErrBadTime = errors.New("time must be RFC 3339 or unix seconds")

// AtoiDefault parses s as a base-10 int, returning def for empty or
// malformed input.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds n to [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ParseTimeParam accepts an RFC 3339 timestamp (GitHub's updated_at format)
// or integer unix seconds.
func ParseTimeParam(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadTime
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, ErrBadTime
}
