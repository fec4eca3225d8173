// Package queue is a Redis-backed job queue with at-least-once delivery.
//
// Jobs move ready → processing on Dequeue and leave processing on Ack or
// Nack. A failed job is parked in a delayed set with exponential backoff
// and promoted back to ready when due; after MaxAttempts it goes to the
// dead-letter list. Jobs stuck in processing longer than the stale age
// (a crashed worker) are put back by Recover, so handlers must tolerate
// seeing the same job twice.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxAttempts = 5
	DefaultStaleAge    = 5 * time.Minute
	baseBackoff        = 30 * time.Second
	maxBackoff         = time.Hour
	promoteBatch       = 100
)

// ErrEmpty is returned by Dequeue when no job arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// Job is one unit of work. Payload is decoded by the handler for Type.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`

	raw string
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Queue is safe for concurrent use by many workers and processes.
type Queue struct {
	rdb         *redis.Client
	ready       string
	processing  string
	inflight    string
	delayed     string
	dead        string
	maxAttempts int
	staleAge    time.Duration
	now         func() time.Time
}

// Option customizes a Queue.
type Option func(*Queue)

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithStaleAge(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.staleAge = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New returns a queue whose keys all start with name.
func New(rdb *redis.Client, name string, opts ...Option) *Queue {
	q := &Queue{
		rdb:         rdb,
		ready:       name + ":ready",
		processing:  name + ":processing",
		inflight:    name + ":inflight",
		delayed:     name + ":delayed",
		dead:        name + ":dead",
		maxAttempts: DefaultMaxAttempts,
		staleAge:    DefaultStaleAge,
		now:         time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue adds a job of type typ with payload marshalled as JSON.
func (q *Queue) Enqueue(ctx context.Context, typ string, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	job := &Job{
		ID:          uuid.NewString(),
		Type:        typ,
		Payload:     body,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  q.now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := q.rdb.LPush(ctx, q.ready, raw).Err(); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	job.raw = string(raw)
	return job, nil
}

// Dequeue blocks up to timeout for the next job. A zero timeout blocks
// until ctx ends.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	raw, err := q.rdb.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if err := q.rdb.ZAdd(ctx, q.inflight, redis.Z{Score: float64(q.now().Unix()), Member: raw}).Err(); err != nil {
		// Recover stamps the orphan and requeues it after the stale age
		return nil, fmt.Errorf("mark inflight: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// unreadable payloads would loop forever; bury them
		_ = q.bury(ctx, raw, raw)
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.raw = raw
	return &job, nil
}

// Ack removes a finished job.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, job.raw)
		p.ZRem(ctx, q.inflight, job.raw)
		return nil
	})
	return err
}

// Nack records a failure. The job is retried after a backoff, or moved to
// the dead-letter list once it has used all its attempts. It reports
// whether the job was dead-lettered.
func (q *Queue) Nack(ctx context.Context, job *Job, cause error) (bool, error) {
	next := *job
	next.Attempts++
	if cause != nil {
		next.LastError = cause.Error()
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	limit := job.MaxAttempts
	if limit <= 0 {
		limit = q.maxAttempts
	}
	if next.Attempts >= limit {
		return true, q.bury(ctx, job.raw, string(raw))
	}

	due := q.now().Add(Backoff(next.Attempts))
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, job.raw)
		p.ZRem(ctx, q.inflight, job.raw)
		p.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due.Unix()), Member: string(raw)})
		return nil
	})
	return false, err
}

// DeadLetter moves a job straight to the dead-letter list, for failures
// a retry cannot fix.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	next := *job
	next.Attempts++
	if cause != nil {
		next.LastError = cause.Error()
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return q.bury(ctx, job.raw, string(raw))
}

func (q *Queue) bury(ctx context.Context, old, updated string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, old)
		p.ZRem(ctx, q.inflight, old)
		p.LPush(ctx, q.dead, updated)
		return nil
	})
	return err
}

// Backoff is 30s doubled per attempt, capped at an hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

var promoteScript = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, v in ipairs(items) do
	redis.call("ZREM", KEYS[1], v)
	redis.call("LPUSH", KEYS[2], v)
end
return #items`)

// PromoteDue moves delayed jobs whose backoff has elapsed back to ready.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.delayed, q.ready},
		strconv.FormatInt(q.now().Unix(), 10), promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due: %w", err)
	}
	return n, nil
}

// recoverScript first stamps processing entries that never made it into
// inflight (the worker died between BLMOVE and ZADD) with the current time,
// so they age out like any other claim.
var recoverScript = redis.NewScript(`
for _, v in ipairs(redis.call("LRANGE", KEYS[2], 0, -1)) do
	if not redis.call("ZSCORE", KEYS[1], v) then
		redis.call("ZADD", KEYS[1], ARGV[2], v)
	end
end
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local moved = 0
for _, v in ipairs(items) do
	redis.call("ZREM", KEYS[1], v)
	if redis.call("LREM", KEYS[2], 1, v) > 0 then
		redis.call("LPUSH", KEYS[3], v)
		moved = moved + 1
	end
end
return moved`)

// Recover requeues jobs that have sat in processing longer than the stale
// age. It does not count as an attempt.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	now := q.now()
	cutoff := now.Add(-q.staleAge).Unix()
	n, err := recoverScript.Run(ctx, q.rdb, []string{q.inflight, q.processing, q.ready},
		strconv.FormatInt(cutoff, 10), strconv.FormatInt(now.Unix(), 10)).Int()
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}
	return n, nil
}

// Stats is a point-in-time view of queue depth.
type Stats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var (
		s                          Stats
		ready, proc, delayed, dead *redis.IntCmd
	)
	_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		ready = p.LLen(ctx, q.ready)
		proc = p.LLen(ctx, q.processing)
		delayed = p.ZCard(ctx, q.delayed)
		dead = p.LLen(ctx, q.dead)
		return nil
	})
	if err != nil {
		return s, err
	}
	s.Ready, s.Processing, s.Delayed, s.Dead = ready.Val(), proc.Val(), delayed.Val(), dead.Val()
	return s, nil
}
