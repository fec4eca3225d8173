// Package worker runs the background side of mailcraft: a pool draining
// the Redis job queue and the scheduler that walks sequence enrollments.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
)

// ErrPermanent marks a job failure that retrying cannot fix. The pool
// dead-letters such jobs on the first attempt.
var ErrPermanent = errors.New("permanent job failure")

func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler processes one job. A nil return acks it.
type Handler func(ctx context.Context, job *queue.Job) error

// JobQueue is the consumer side of queue.Queue.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Nack(ctx context.Context, job *queue.Job, cause error) (bool, error)
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// Pool runs a fixed number of goroutines that dequeue jobs and dispatch
// them by type.
type Pool struct {
	q           JobQueue
	handlers    map[string]Handler
	concurrency int
	pollTimeout time.Duration
	jobTimeout  time.Duration

	processed int64
	retried   int64
	dead      int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewPool(q JobQueue, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pool{
		q:           q,
		handlers:    map[string]Handler{},
		concurrency: concurrency,
		pollTimeout: 2 * time.Second,
		jobTimeout:  time.Minute,
	}
}

// Handle registers h for jobs of type typ. Call before Start.
func (p *Pool) Handle(typ string, h Handler) {
	p.handlers[typ] = h
}

// Start begins the worker goroutines
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	logger.Info("worker pool: starting", "concurrency", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
}

// Stop waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	st := p.Stats()
	logger.Info("worker pool: stopped", "processed", st["processed"], "retried", st["retried"], "dead", st["dead"])
}

func (p *Pool) Stats() map[string]int64 {
	return map[string]int64{
		"processed": atomic.LoadInt64(&p.processed),
		"retried":   atomic.LoadInt64(&p.retried),
		"dead":      atomic.LoadInt64(&p.dead),
	}
}

func (p *Pool) loop(n int) {
	defer p.wg.Done()
	for p.ctx.Err() == nil {
		job, err := p.q.Dequeue(p.ctx, p.pollTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			logger.Error("worker pool: dequeue", "worker", n, "error", err)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.process(job)
	}
}

// process runs outside the pool context so Stop lets the current job
// finish and settle.
func (p *Pool) process(job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	h, ok := p.handlers[job.Type]
	var err error
	if !ok {
		err = permanent(fmt.Errorf("no handler for job type %q", job.Type))
	} else {
		err = h(ctx, job)
	}

	switch {
	case err == nil:
		atomic.AddInt64(&p.processed, 1)
		if aerr := p.q.Ack(ctx, job); aerr != nil {
			logger.Error("worker pool: ack", "job_id", job.ID, "error", aerr)
		}
	case errors.Is(err, ErrPermanent):
		atomic.AddInt64(&p.dead, 1)
		logger.Error("worker pool: job failed permanently", "job_id", job.ID, "type", job.Type, "error", err)
		if derr := p.q.DeadLetter(ctx, job, err); derr != nil {
			logger.Error("worker pool: dead-letter", "job_id", job.ID, "error", derr)
		}
	default:
		dead, nerr := p.q.Nack(ctx, job, err)
		if nerr != nil {
			logger.Error("worker pool: nack", "job_id", job.ID, "error", nerr)
			return
		}
		if dead {
			atomic.AddInt64(&p.dead, 1)
			logger.Error("worker pool: job exhausted retries", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts+1, "error", err)
			return
		}
		atomic.AddInt64(&p.retried, 1)
		logger.Warn("worker pool: job will retry", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1, "error", err)
	}
}
