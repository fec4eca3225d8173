package domain

import (
	"errors"
	"time"
)

var (
	// ErrStepMismatch means the caller's view of the enrollment is stale:
	// another worker already advanced past the step it wanted to send.
	ErrStepMismatch = errors.New("enrollment is not at the expected step")
	// ErrEnrollmentClosed is returned when advancing a completed or
	// cancelled enrollment.
	ErrEnrollmentClosed = errors.New("enrollment is not active")
	// ErrStepNotSent rejects engagement for a step that was never sent.
	ErrStepNotSent = errors.New("step has not been sent")
)

type SequenceStatus string

const (
	SequenceActive SequenceStatus = "active"
	SequencePaused SequenceStatus = "paused"
)

// Sequence is an ordered series of emails sent to each enrolled contact.
type Sequence struct {
	ID            string         `json:"id"`
	BrandID       string         `json:"brand_id"`
	Name          string         `json:"name"`
	Status        SequenceStatus `json:"status"`
	TriggerListID string         `json:"trigger_list_id,omitempty"`
	Steps         []Step         `json:"steps"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Step is one email in a sequence. DelayHours counts from the previous step's
// send, or from enrollment for the first step.
type Step struct {
	Index      int    `json:"index"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	DelayHours int    `json:"delay_hours"`
}

// Delay returns the step delay as a duration.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayHours) * time.Hour
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment is one contact's progress through a sequence. CurrentStep is
// the index of the next step to send and never decreases.
type Enrollment struct {
	ID          string           `json:"id"`
	SequenceID  string           `json:"sequence_id"`
	BrandID     string           `json:"brand_id"`
	ContactID   string           `json:"contact_id"`
	Email       string           `json:"email"`
	CurrentStep int              `json:"current_step"`
	Status      EnrollmentStatus `json:"status"`
	NextSendAt  *time.Time       `json:"next_send_at,omitempty"`
	Progress    []StepProgress   `json:"progress"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// StepProgress records delivery and engagement for one step.
type StepProgress struct {
	Step      int        `json:"step"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	Opens     int        `json:"opens"`
	Clicks    int        `json:"clicks"`
}

// NewEnrollment starts a contact at step zero, due after the first step's delay.
func NewEnrollment(id string, seq *Sequence, c *Contact, now time.Time) *Enrollment {
	e := &Enrollment{
		ID:         id,
		SequenceID: seq.ID,
		BrandID:    seq.BrandID,
		ContactID:  c.ID,
		Email:      c.Email,
		Status:     EnrollmentActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(seq.Steps) > 0 {
		next := now.Add(seq.Steps[0].Delay())
		e.NextSendAt = &next
	}
	return e
}

// progress returns the record for step, growing the slice as needed.
func (e *Enrollment) progress(step int) *StepProgress {
	for len(e.Progress) <= step {
		e.Progress = append(e.Progress, StepProgress{Step: len(e.Progress)})
	}
	return &e.Progress[step]
}

// StepProgress returns a copy of the record for step (zero if untouched).
func (e *Enrollment) StepProgress(step int) StepProgress {
	if step < 0 || step >= len(e.Progress) {
		return StepProgress{Step: step}
	}
	return e.Progress[step]
}

// Advance marks step from as sent and moves to the next one. It succeeds
// only when CurrentStep equals from, so replays of the same send are
// rejected with ErrStepMismatch and the index can never move backwards.
func (e *Enrollment) Advance(from int, steps []Step, now time.Time) error {
	if e.Status != EnrollmentActive {
		return ErrEnrollmentClosed
	}
	if e.CurrentStep != from || from >= len(steps) {
		return ErrStepMismatch
	}

	p := e.progress(from)
	sent := now
	p.SentAt = &sent

	e.CurrentStep = from + 1
	e.UpdatedAt = now
	if e.CurrentStep >= len(steps) {
		e.Status = EnrollmentCompleted
		e.NextSendAt = nil
		done := now
		e.CompletedAt = &done
		return nil
	}
	next := now.Add(steps[e.CurrentStep].Delay())
	e.NextSendAt = &next
	return nil
}

// Cancel stops further sends. Engagement on already-sent steps is still
// recorded afterwards.
func (e *Enrollment) Cancel(now time.Time) {
	if e.Status != EnrollmentActive {
		return
	}
	e.Status = EnrollmentCancelled
	e.NextSendAt = nil
	e.UpdatedAt = now
}

// MarkOpened records an open of step and reports whether it was the first.
func (e *Enrollment) MarkOpened(step int, at time.Time) (bool, error) {
	if step < 0 || step >= e.CurrentStep {
		return false, ErrStepNotSent
	}
	p := e.progress(step)
	p.Opens++
	first := p.OpenedAt == nil
	if first {
		t := at
		p.OpenedAt = &t
	}
	e.UpdatedAt = at
	return first, nil
}

// MarkClicked records a click of step. A click proves the message was
// opened, so a missing open timestamp is filled in too.
func (e *Enrollment) MarkClicked(step int, at time.Time) (firstClick, firstOpen bool, err error) {
	if step < 0 || step >= e.CurrentStep {
		return false, false, ErrStepNotSent
	}
	p := e.progress(step)
	p.Clicks++
	if p.ClickedAt == nil {
		t := at
		p.ClickedAt = &t
		firstClick = true
	}
	if p.OpenedAt == nil {
		t := at
		p.OpenedAt = &t
		firstOpen = true
	}
	e.UpdatedAt = at
	return firstClick, firstOpen, nil
}

// StepStats aggregates one step across all enrollments of a sequence.
type StepStats struct {
	Step      int     `json:"step"`
	Subject   string  `json:"subject"`
	Sent      int     `json:"sent"`
	Opened    int     `json:"opened"`
	Clicked   int     `json:"clicked"`
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

// SequenceStats is the aggregate view served by the stats endpoint.
type SequenceStats struct {
	SequenceID string      `json:"sequence_id"`
	Enrolled   int         `json:"enrolled"`
	Active     int         `json:"active"`
	Completed  int         `json:"completed"`
	Cancelled  int         `json:"cancelled"`
	Steps      []StepStats `json:"steps"`
}

// Rates fills OpenRate and ClickRate from the counters.
func (s *StepStats) Rates() {
	if s.Sent == 0 {
		s.OpenRate, s.ClickRate = 0, 0
		return
	}
	s.OpenRate = float64(s.Opened) / float64(s.Sent)
	s.ClickRate = float64(s.Clicked) / float64(s.Sent)
}
