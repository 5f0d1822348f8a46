// Package cache provides an optional, best-effort Redis-backed hint cache
// recording recently dispatched outbox message ids. It is purely a
// diagnostic/perf aid for the Outbox Dispatcher: correctness always rests on
// the broker's (stream, message-id) dedup window per spec.md §3 invariant 5,
// never on this cache. Adapted from public-api-service's use of go-redis as
// a cache layer.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupHint records and queries recently-dispatched outbox ids so a
// Dispatcher can emit a debug log line when it is about to publish a row it
// recently dispatched, without adding a hard dependency on Redis being up.
type DedupHint struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewDedupHint constructs a DedupHint. A nil client is valid and makes every
// method a no-op, so callers can wire this optionally.
func NewDedupHint(client *redis.Client, ttl time.Duration) *DedupHint {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DedupHint{client: client, ttl: ttl, prefix: "sync-relay:dispatched:"}
}

// MarkDispatched records that id was just republished.
func (d *DedupHint) MarkDispatched(ctx context.Context, id string) {
	if d.client == nil {
		return
	}
	d.client.Set(ctx, d.prefix+id, 1, d.ttl)
}

// Seen reports whether id was recently dispatched, per this cache's
// best-effort knowledge. A cache miss or unreachable Redis returns false,
// never an error — this must never block or fail the dispatch path.
func (d *DedupHint) Seen(ctx context.Context) func(id string) bool {
	return func(id string) bool {
		if d.client == nil {
			return false
		}
		n, err := d.client.Exists(ctx, d.prefix+id).Result()
		if err != nil {
			return false
		}
		return n > 0
	}
}
