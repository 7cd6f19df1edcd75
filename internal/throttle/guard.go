package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/review-orchestrator/internal/observability"
)

// DefaultName is the limiter name used when none is configured.
const DefaultName = "default"

// Client is the connection a command arrived on.
type Client interface {
	// ID is a stable per-connection identifier.
	ID() string
	// RemoteAddr is the client's network address, or "" when unknown.
	RemoteAddr() string
	// Notify delivers a throttled notification. Failures are ignored.
	Notify(Throttled) error
}

// Throttled is the notification sent to a blocked client.
type Throttled struct {
	Event      string `json:"event"`
	RetryAfter int64  `json:"retry_after"` // milliseconds
}

// DeniedError is returned by Check when a command is rejected. Durations
// are reported in milliseconds.
type DeniedError struct {
	Limit             int   `json:"limit"`
	IsBlocked         bool  `json:"is_blocked"`
	TotalHits         int   `json:"total_hits"`
	TimeToExpire      int64 `json:"time_to_expire"`
	TimeToBlockExpire int64 `json:"time_to_block_expire"`
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("too many requests: %d hits over limit %d, retry in %dms", e.TotalHits, e.Limit, e.TimeToBlockExpire)
}

// Options configures a Guard.
type Options struct {
	Name          string
	Limit         int
	TTL           time.Duration
	BlockDuration time.Duration
}

// Guard applies one limiter to every command, regardless of which command it is.
type Guard struct {
	store Storage
	opts  Options
}

// NewGuard returns a guard over store. A zero BlockDuration blocks for one TTL.
func NewGuard(store Storage, opts Options) *Guard {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = DefaultName
	}
	if opts.Limit < 1 {
		opts.Limit = 1
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = opts.TTL
	}
	return &Guard{store: store, opts: opts}
}

// Name returns the limiter name.
func (g *Guard) Name() string { return g.opts.Name }

// Tracker identifies a client: its network address when known, else its
// connection id.
func Tracker(c Client) string {
	if addr := strings.TrimSpace(c.RemoteAddr()); addr != "" {
		return addr
	}
	return c.ID()
}

// Key is the storage key for a tracker under a limiter name.
func Key(name, tracker string) string {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	return name + "-" + tracker
}

// Check counts one command from c. It returns nil when the command may
// proceed and a *DeniedError when it must be rejected. A storage failure
// lets the command through.
func (g *Guard) Check(ctx context.Context, c Client, command string) error {
	key := Key(g.opts.Name, Tracker(c))
	rec, err := g.store.Increment(ctx, key, g.opts.TTL, g.opts.Limit, g.opts.BlockDuration, g.opts.Name)
	if err != nil {
		log.Warn().Err(err).Str("limiter", g.opts.Name).Str("key", key).Msg("throttle store unavailable; allowing command")
		return nil
	}
	if !rec.IsBlocked {
		return nil
	}

	observability.ThrottleDenied.WithLabelValues(g.opts.Name).Inc()
	notify(c, Throttled{Event: command, RetryAfter: rec.TimeToBlockExpire.Milliseconds()})

	return &DeniedError{
		Limit:             g.opts.Limit,
		IsBlocked:         true,
		TotalHits:         rec.TotalHits,
		TimeToExpire:      rec.TimeToExpire.Milliseconds(),
		TimeToBlockExpire: rec.TimeToBlockExpire.Milliseconds(),
	}
}

// notify is best effort: errors and panics from the client are swallowed.
func notify(c Client, t Throttled) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("panic", r).Str("client", c.ID()).Msg("throttled notification panicked")
		}
	}()
	if err := c.Notify(t); err != nil {
		log.Debug().Err(err).Str("client", c.ID()).Msg("throttled notification not delivered")
	}
}
