package reconcile

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Dedup is a redis-backed fast path that lets the webhook handler skip
// gateway round trips for intents it has already settled. It is advisory
// only: the conditional status update in the repository is what actually
// guards against double restoration, so redis being down or empty is always
// safe.
type Dedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDedup(rdb *redis.Client, ttl time.Duration) *Dedup {
	return &Dedup{rdb: rdb, ttl: ttl}
}

func (d *Dedup) key(intentID string) string {
	return "reconciled-intent:" + intentID
}

// Seen reports whether the intent was already settled by this process group.
func (d *Dedup) Seen(ctx context.Context, intentID string) bool {
	if d == nil || d.rdb == nil {
		return false
	}
	// redis.Nil and transport errors both mean "not seen"; the conditional
	// update downstream stays correct either way.
	val, err := d.rdb.Get(ctx, d.key(intentID)).Result()
	if err != nil {
		return false
	}
	return val != ""
}

// Mark records the intent as settled. Called only after a terminal
// transition committed.
func (d *Dedup) Mark(ctx context.Context, intentID, status string) {
	if d == nil || d.rdb == nil {
		return
	}
	_ = d.rdb.SetNX(ctx, d.key(intentID), status, d.ttl).Err()
}
