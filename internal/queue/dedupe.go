package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe guards side effects that must happen at most once per logical key,
// such as delivering a message, under an at-least-once queue.
type Dedupe struct {
	rdb      *redis.Client
	prefix   string
	claimTTL time.Duration
	doneTTL  time.Duration
}

func NewDedupe(rdb *redis.Client, prefix string) *Dedupe {
	return &Dedupe{rdb: rdb, prefix: prefix + ":once:", claimTTL: 10 * time.Minute, doneTTL: 7 * 24 * time.Hour}
}

// Claim reserves key. False means another worker holds it or it already
// completed.
func (d *Dedupe) Claim(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+key, "pending", d.claimTTL).Result()
}

// Done marks key complete for the retention window.
func (d *Dedupe) Done(ctx context.Context, key string) error {
	return d.rdb.Set(ctx, d.prefix+key, "done", d.doneTTL).Err()
}

// Release drops a claim after a failed attempt so a retry can take it.
func (d *Dedupe) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, d.prefix+key).Err()
}

// IsDone reports whether key completed within the retention window.
func (d *Dedupe) IsDone(ctx context.Context, key string) (bool, error) {
	v, err := d.rdb.Get(ctx, d.prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "done", nil
}
