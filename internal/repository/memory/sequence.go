package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/sequence"
)

type SequenceRepo struct{ s *Store }

func (r *SequenceRepo) Create(_ context.Context, seq *domain.Sequence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sequences[seq.ID] = cloneSequence(*seq)
	return nil
}

func (r *SequenceRepo) Get(ctx context.Context, brandID, id string) (*domain.Sequence, error) {
	seq, err := r.GetByID(ctx, id)
	if err != nil || seq.BrandID != brandID {
		return nil, sequence.ErrNotFound
	}
	return seq, nil
}

func (r *SequenceRepo) GetByID(_ context.Context, id string) (*domain.Sequence, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seq, ok := r.s.sequences[id]
	if !ok {
		return nil, sequence.ErrNotFound
	}
	seq = cloneSequence(seq)
	return &seq, nil
}

func (r *SequenceRepo) filter(match func(domain.Sequence) bool) []domain.Sequence {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Sequence
	for _, seq := range r.s.sequences {
		if match(seq) {
			out = append(out, cloneSequence(seq))
		}
	}
	slices.SortFunc(out, func(a, b domain.Sequence) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (r *SequenceRepo) List(_ context.Context, brandID string) ([]domain.Sequence, error) {
	return r.filter(func(s domain.Sequence) bool { return s.BrandID == brandID }), nil
}

func (r *SequenceRepo) ListByTriggerList(_ context.Context, listID string) ([]domain.Sequence, error) {
	return r.filter(func(s domain.Sequence) bool { return listID != "" && s.TriggerListID == listID }), nil
}

func (r *SequenceRepo) Update(_ context.Context, seq *domain.Sequence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.sequences[seq.ID]
	if !ok || old.BrandID != seq.BrandID {
		return sequence.ErrNotFound
	}
	r.s.sequences[seq.ID] = cloneSequence(*seq)
	return nil
}

func (r *SequenceRepo) CreateEnrollment(_ context.Context, e *domain.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.enrollments {
		if existing.SequenceID == e.SequenceID && existing.ContactID == e.ContactID {
			return sequence.ErrAlreadyEnrolled
		}
	}
	r.s.enrollments[e.ID] = cloneEnrollment(*e)
	return nil
}

func (r *SequenceRepo) GetEnrollment(_ context.Context, id string) (*domain.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, sequence.ErrEnrollmentNotFound
	}
	e = cloneEnrollment(e)
	return &e, nil
}

func (r *SequenceRepo) enrollments(match func(domain.Enrollment) bool) []domain.Enrollment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Enrollment
	for _, e := range r.s.enrollments {
		if match(e) {
			out = append(out, cloneEnrollment(e))
		}
	}
	slices.SortFunc(out, func(a, b domain.Enrollment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (r *SequenceRepo) FindEnrollment(_ context.Context, sequenceID, contactID string) (*domain.Enrollment, error) {
	es := r.enrollments(func(e domain.Enrollment) bool {
		return e.SequenceID == sequenceID && e.ContactID == contactID
	})
	if len(es) == 0 {
		return nil, sequence.ErrEnrollmentNotFound
	}
	return &es[0], nil
}

func (r *SequenceRepo) ListEnrollments(_ context.Context, sequenceID string, limit, offset int) ([]domain.Enrollment, int, error) {
	es := r.enrollments(func(e domain.Enrollment) bool { return e.SequenceID == sequenceID })
	return page(es, limit, offset), len(es), nil
}

func (r *SequenceRepo) ActiveEnrollmentsForContact(_ context.Context, contactID string) ([]domain.Enrollment, error) {
	return r.enrollments(func(e domain.Enrollment) bool {
		return e.ContactID == contactID && e.Status == domain.EnrollmentActive
	}), nil
}

func (r *SequenceRepo) DueEnrollments(_ context.Context, now time.Time, limit int) ([]domain.Enrollment, error) {
	r.s.mu.RLock()
	active := map[string]bool{}
	for id, seq := range r.s.sequences {
		active[id] = seq.Status == domain.SequenceActive
	}
	r.s.mu.RUnlock()
	es := r.enrollments(func(e domain.Enrollment) bool {
		return e.Status == domain.EnrollmentActive && e.NextSendAt != nil && !e.NextSendAt.After(now) &&
			active[e.SequenceID]
	})
	slices.SortStableFunc(es, func(a, b domain.Enrollment) int { return a.NextSendAt.Compare(*b.NextSendAt) })
	return page(es, limit, 0), nil
}

func (r *SequenceRepo) CountEnrollments(_ context.Context, sequenceID string) (map[domain.EnrollmentStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := map[domain.EnrollmentStatus]int{}
	for _, e := range r.s.enrollments {
		if e.SequenceID == sequenceID {
			out[e.Status]++
		}
	}
	return out, nil
}

func (s *Store) addStepCountsLocked(sequenceID string, step int, d sequence.StepCounts) {
	if d == (sequence.StepCounts{}) {
		return
	}
	m := s.stepCounts[sequenceID]
	if m == nil {
		m = map[int]sequence.StepCounts{}
		s.stepCounts[sequenceID] = m
	}
	c := m[step]
	c.Add(d)
	m[step] = c
}

func (r *SequenceRepo) SaveEnrollment(_ context.Context, e *domain.Enrollment, expectStep int, delta sequence.StepCounts) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.enrollments[e.ID]
	if !ok {
		return sequence.ErrEnrollmentNotFound
	}
	if old.CurrentStep != expectStep {
		return domain.ErrStepMismatch
	}
	r.s.enrollments[e.ID] = cloneEnrollment(*e)
	r.s.addStepCountsLocked(e.SequenceID, expectStep, delta)
	return nil
}

func (r *SequenceRepo) RecordEngagement(_ context.Context, evt *domain.TrackingEvent, apply sequence.EngagementFunc) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, seen := r.s.events[evt.ID]; seen {
		return false, nil
	}
	stored, ok := r.s.enrollments[evt.RecipientID]
	if !ok {
		return false, sequence.ErrEnrollmentNotFound
	}
	e := cloneEnrollment(stored)
	d, err := apply(&e)
	if err != nil {
		return false, err
	}
	r.s.enrollments[e.ID] = e
	r.s.addStepCountsLocked(e.SequenceID, evt.Step, d)
	r.s.events[evt.ID] = *evt
	return true, nil
}

func (r *SequenceRepo) StepCounts(_ context.Context, sequenceID string) (map[int]sequence.StepCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int]sequence.StepCounts, len(r.s.stepCounts[sequenceID]))
	for k, v := range r.s.stepCounts[sequenceID] {
		out[k] = v
	}
	return out, nil
}
