package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/mailcraft/internal/pkg/logger"
)

// QueueMaintainer is the housekeeping side of queue.Queue.
type QueueMaintainer interface {
	PromoteDue(ctx context.Context) (int, error)
	Recover(ctx context.Context) (int, error)
}

// Maintenance requeues stale in-flight jobs at start and every
// recoverEvery ticks, and moves delayed retries back to ready on every tick.
type Maintenance struct {
	q            QueueMaintainer
	interval     time.Duration
	recoverEvery int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMaintenance(q QueueMaintainer, interval time.Duration) *Maintenance {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Maintenance{q: q, interval: interval, recoverEvery: 12}
}

func (m *Maintenance) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.recover(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for tick := 1; ; tick++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.recoverEvery > 0 && tick%m.recoverEvery == 0 {
					m.recover(ctx)
				}
				n, err := m.q.PromoteDue(ctx)
				if err != nil && ctx.Err() == nil {
					logger.Error("queue maintenance: promote", "error", err)
					continue
				}
				if n > 0 {
					logger.Debug("queue maintenance: promoted retries", "count", n)
				}
			}
		}
	}()
}

func (m *Maintenance) recover(ctx context.Context) {
	n, err := m.q.Recover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("queue maintenance: recover", "error", err)
		}
		return
	}
	if n > 0 {
		logger.Warn("queue maintenance: requeued stale jobs", "count", n)
	}
}

func (m *Maintenance) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
