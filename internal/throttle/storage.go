// Package throttle implements the ingress rate limiter that gates every
// inbound client command. A Guard derives a per-client key, increments a
// fixed-window counter in a shared Storage, and denies the command once the
// client has exceeded its limit, blocking it for a configured duration.
//
// Two storages are provided: MemoryStorage for a single process and
// BadgerStorage for a counter store that survives restarts and can be shared
// by every connection handler in the process through one *badger.DB.
package throttle

import (
	"context"
	"time"
)

// Record is the result of one Increment call.
type Record struct {
	TotalHits         int
	TimeToExpire      time.Duration
	IsBlocked         bool
	TimeToBlockExpire time.Duration
}

// Storage is an atomic increment-and-check counter store. Implementations
// must be safe for concurrent use across connections.
type Storage interface {
	Increment(ctx context.Context, key string, ttl time.Duration, limit int, blockDuration time.Duration, name string) (Record, error)
}

// window is the persisted state behind a key.
type window struct {
	Hits         int       `json:"hits"`
	ExpiresAt    time.Time `json:"expires_at"`
	BlockedUntil time.Time `json:"blocked_until,omitempty"`
}

// hit applies one request at now and reports the resulting record.
//
// A window opens on the first hit and lasts ttl. Once hits exceed limit the
// key is blocked for blockDuration; hits are not counted while blocked.
// When the block lapses the key starts over with a fresh window.
func (w *window) hit(now time.Time, ttl time.Duration, limit int, blockDuration time.Duration) Record {
	blocked := !w.BlockedUntil.IsZero() && now.Before(w.BlockedUntil)
	if !blocked && !w.BlockedUntil.IsZero() {
		*w = window{}
	}
	if !blocked {
		if w.ExpiresAt.IsZero() || !now.Before(w.ExpiresAt) {
			w.Hits = 0
			w.ExpiresAt = now.Add(ttl)
		}
		w.Hits++
		if w.Hits > limit {
			w.BlockedUntil = now.Add(blockDuration)
			blocked = true
		}
	}

	rec := Record{TotalHits: w.Hits, IsBlocked: blocked}
	if d := w.ExpiresAt.Sub(now); d > 0 {
		rec.TimeToExpire = d
	}
	if blocked {
		if d := w.BlockedUntil.Sub(now); d > 0 {
			rec.TimeToBlockExpire = d
		}
	}
	return rec
}

// deadline is when the window stops mattering and may be discarded.
func (w *window) deadline() time.Time {
	if w.BlockedUntil.After(w.ExpiresAt) {
		return w.BlockedUntil
	}
	return w.ExpiresAt
}
