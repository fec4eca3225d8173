package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/tracking"
)

// Sequences is the part of the sequence service the scheduler drives.
type Sequences interface {
	Due(ctx context.Context, now time.Time, limit int) ([]domain.Enrollment, error)
	Sequence(ctx context.Context, id string) (*domain.Sequence, error)
	Advance(ctx context.Context, enrollmentID string, from int) (*domain.Enrollment, error)
	Complete(ctx context.Context, e *domain.Enrollment) error
	Cancel(ctx context.Context, brandID, enrollmentID string) (*domain.Enrollment, error)
	Defer(ctx context.Context, enrollmentID string, step int, at time.Time) error
}

type Contacts interface {
	Get(ctx context.Context, brandID, id string) (*domain.Contact, error)
}

type Brands interface {
	Sender(ctx context.Context, brandID string) (*domain.Brand, error)
}

// Locker keeps one scheduler tick running across processes.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// retryDelay is how far a failing enrollment is pushed back so it does not
// hold the head of the due batch.
const retryDelay = 10 * time.Minute

// SequenceScheduler sends due sequence steps. Each tick it takes the
// distributed lock, renders the current step of every due enrollment,
// enqueues it and then advances the enrollment with a compare-and-set on
// the step index. A crash between enqueue and advance re-enqueues the same
// step next tick; the send dedupe key drops the copy.
type SequenceScheduler struct {
	sequences Sequences
	contacts  Contacts
	brands    Brands
	composer  *compose.Composer
	queue     compose.Enqueuer
	lock      Locker

	interval  time.Duration
	batchSize int
	now       func() time.Time

	sent    int64
	skipped int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewSequenceScheduler(seqs Sequences, contacts Contacts, brands Brands, composer *compose.Composer, q compose.Enqueuer, lock Locker, interval time.Duration, batchSize int) *SequenceScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &SequenceScheduler{
		sequences: seqs,
		contacts:  contacts,
		brands:    brands,
		composer:  composer,
		queue:     q,
		lock:      lock,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (s *SequenceScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	logger.Info("sequence scheduler: starting", "interval", s.interval.String(), "batch", s.batchSize)
	s.wg.Add(1)
	go s.loop()
}

func (s *SequenceScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("sequence scheduler: stopped", "sent", atomic.LoadInt64(&s.sent), "skipped", atomic.LoadInt64(&s.skipped))
}

func (s *SequenceScheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(s.ctx); err != nil && s.ctx.Err() == nil {
			logger.Error("sequence scheduler: tick", "error", err)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick processes one batch of due enrollments and returns how many steps
// were enqueued. It does nothing when another process holds the lock.
func (s *SequenceScheduler) Tick(ctx context.Context) (int, error) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			logger.Debug("sequence scheduler: lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("sequence scheduler: release lock", "error", err)
			}
		}()
	}

	due, err := s.sequences.Due(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load due enrollments: %w", err)
	}

	seqs := map[string]*domain.Sequence{}
	sent := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		e := &due[i]
		ok, err := s.process(ctx, e, seqs)
		if err != nil {
			logger.Error("sequence scheduler: enrollment", "enrollment_id", e.ID, "sequence_id", e.SequenceID, "error", err)
			if err := s.sequences.Defer(ctx, e.ID, e.CurrentStep, s.now().Add(retryDelay)); err != nil {
				logger.Warn("sequence scheduler: defer enrollment", "enrollment_id", e.ID, "error", err)
			}
			continue
		}
		if ok {
			sent++
		}
	}
	atomic.AddInt64(&s.sent, int64(sent))
	return sent, nil
}

// process sends the current step of e. It reports whether a step was
// enqueued.
func (s *SequenceScheduler) process(ctx context.Context, e *domain.Enrollment, cache map[string]*domain.Sequence) (bool, error) {
	seq, ok := cache[e.SequenceID]
	if !ok {
		var err error
		if seq, err = s.sequences.Sequence(ctx, e.SequenceID); err != nil {
			return false, err
		}
		cache[e.SequenceID] = seq
	}
	if seq.Status != domain.SequenceActive {
		atomic.AddInt64(&s.skipped, 1)
		return false, nil
	}
	if e.CurrentStep >= len(seq.Steps) {
		// steps were removed after the enrollment was scheduled
		return false, s.sequences.Complete(ctx, e)
	}

	c, err := s.contacts.Get(ctx, e.BrandID, e.ContactID)
	if errors.Is(err, apperr.ErrNotFound) {
		_, err = s.sequences.Cancel(ctx, e.BrandID, e.ID)
		return false, err
	}
	if err != nil {
		return false, err
	}
	if !c.Mailable() {
		atomic.AddInt64(&s.skipped, 1)
		_, err = s.sequences.Cancel(ctx, e.BrandID, e.ID)
		return false, err
	}

	brand, err := s.brands.Sender(ctx, e.BrandID)
	if err != nil {
		return false, err
	}
	step := seq.Steps[e.CurrentStep]
	ref := tracking.Ref{Scope: domain.ScopeSequence, ScopeID: seq.ID, RecipientID: e.ID, Step: e.CurrentStep}
	job, err := s.composer.Tracked(brand, c, e.Email, compose.Source{
		Subject: step.Subject,
		Body:    step.HTML,
		Format:  domain.FormatHTML,
	}, ref)
	if err != nil {
		return false, fmt.Errorf("render step %d: %w", e.CurrentStep, err)
	}
	if _, err := s.queue.Enqueue(ctx, compose.JobSendEmail, job); err != nil {
		return false, fmt.Errorf("enqueue step %d: %w", e.CurrentStep, err)
	}

	if _, err := s.sequences.Advance(ctx, e.ID, e.CurrentStep); err != nil {
		if errors.Is(err, domain.ErrStepMismatch) || errors.Is(err, domain.ErrEnrollmentClosed) {
			logger.Debug("sequence scheduler: step already advanced", "enrollment_id", e.ID, "step", e.CurrentStep)
			return false, nil
		}
		return false, fmt.Errorf("advance step %d: %w", e.CurrentStep, err)
	}
	return true, nil
}
