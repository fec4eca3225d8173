package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

const (
	maxSteps      = 50
	maxDelayHours = 24 * 365
	maxPageSize   = 500
)

// TemplateChecker validates Liquid sources before they are stored.
type TemplateChecker interface {
	Validate(subject, body string) error
}

type Service struct {
	repo     Repository
	contacts Contacts
	checker  TemplateChecker
	now      func() time.Time
}

func NewService(repo Repository, contacts Contacts, checker TemplateChecker) *Service {
	return &Service{repo: repo, contacts: contacts, checker: checker, now: time.Now}
}

type StepInput struct {
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	DelayHours int    `json:"delay_hours"`
}

type Input struct {
	Name          string                `json:"name"`
	Status        domain.SequenceStatus `json:"status"`
	TriggerListID string                `json:"trigger_list_id"`
	Steps         []StepInput           `json:"steps"`
}

func (s *Service) validate(in *Input) ([]domain.Step, error) {
	ve := apperr.NewValidation()
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("name", "is required")
	}
	if in.Status == "" {
		in.Status = domain.SequenceActive
	}
	if in.Status != domain.SequenceActive && in.Status != domain.SequencePaused {
		ve.Add("status", fmt.Sprintf("unknown status %q", in.Status))
	}
	if len(in.Steps) == 0 || len(in.Steps) > maxSteps {
		ve.Add("steps", fmt.Sprintf("between 1 and %d steps required", maxSteps))
	}
	steps := make([]domain.Step, len(in.Steps))
	for i, st := range in.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if st.DelayHours < 0 || st.DelayHours > maxDelayHours {
			ve.Add(field+".delay_hours", fmt.Sprintf("must be between 0 and %d", maxDelayHours))
		}
		if err := s.checker.Validate(st.Subject, st.HTML); err != nil {
			var fe *apperr.ValidationError
			if errors.As(err, &fe) {
				for k, v := range fe.Fields {
					if k == "body" {
						k = "html"
					}
					ve.Add(field+"."+k, v)
				}
			} else {
				ve.Add(field, err.Error())
			}
		}
		steps[i] = domain.Step{Index: i, Subject: st.Subject, HTML: st.HTML, DelayHours: st.DelayHours}
	}
	return steps, ve.Err()
}

func (s *Service) Create(ctx context.Context, brandID string, in Input) (*domain.Sequence, error) {
	steps, err := s.validate(&in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	seq := &domain.Sequence{
		ID:            uuid.NewString(),
		BrandID:       brandID,
		Name:          strings.TrimSpace(in.Name),
		Status:        in.Status,
		TriggerListID: in.TriggerListID,
		Steps:         steps,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, seq); err != nil {
		return nil, err
	}
	return seq, nil
}

func (s *Service) Get(ctx context.Context, brandID, id string) (*domain.Sequence, error) {
	return s.repo.Get(ctx, brandID, id)
}

func (s *Service) List(ctx context.Context, brandID string) ([]domain.Sequence, error) {
	return s.repo.List(ctx, brandID)
}

// Update replaces name, status, trigger and steps. Enrollments keep
// their position; ones past a shortened step list complete on their next
// scheduler pass.
func (s *Service) Update(ctx context.Context, brandID, id string, in Input) (*domain.Sequence, error) {
	seq, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.validate(&in)
	if err != nil {
		return nil, err
	}
	seq.Name = strings.TrimSpace(in.Name)
	seq.Status = in.Status
	seq.TriggerListID = in.TriggerListID
	seq.Steps = steps
	seq.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, seq); err != nil {
		return nil, err
	}
	return seq, nil
}

// Enroll adds a contact at step zero. Enrolling twice returns the
// existing enrollment and created=false.
func (s *Service) Enroll(ctx context.Context, brandID, sequenceID, contactID string) (*domain.Enrollment, bool, error) {
	seq, err := s.repo.Get(ctx, brandID, sequenceID)
	if err != nil {
		return nil, false, err
	}
	c, err := s.contacts.Get(ctx, brandID, contactID)
	if err != nil {
		return nil, false, err
	}
	return s.enroll(ctx, seq, c)
}

func (s *Service) enroll(ctx context.Context, seq *domain.Sequence, c *domain.Contact) (*domain.Enrollment, bool, error) {
	if existing, err := s.repo.FindEnrollment(ctx, seq.ID, c.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}
	if seq.Status != domain.SequenceActive {
		return nil, false, ErrPaused
	}
	if !c.Mailable() {
		return nil, false, ErrNotMailable
	}

	e := domain.NewEnrollment(uuid.NewString(), seq, c, s.now().UTC())
	if err := s.repo.CreateEnrollment(ctx, e); err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			existing, ferr := s.repo.FindEnrollment(ctx, seq.ID, c.ID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	logger.Debug("sequence: enrolled", "sequence_id", seq.ID, "enrollment_id", e.ID)
	return e, true, nil
}

// EnrollFromList enrolls a contact in every active sequence triggered by
// its list. It returns how many new enrollments were made.
func (s *Service) EnrollFromList(ctx context.Context, c *domain.Contact) (int, error) {
	seqs, err := s.repo.ListByTriggerList(ctx, c.ListID)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for i := range seqs {
		seq := &seqs[i]
		if seq.BrandID != c.BrandID || seq.Status != domain.SequenceActive {
			continue
		}
		_, created, err := s.enroll(ctx, seq, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("sequence %s: %w", seq.ID, err))
			continue
		}
		if created {
			n++
		}
	}
	return n, errors.Join(errs...)
}

func (s *Service) GetEnrollment(ctx context.Context, brandID, id string) (*domain.Enrollment, error) {
	e, err := s.repo.GetEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.BrandID != brandID {
		return nil, ErrEnrollmentNotFound
	}
	return e, nil
}

// Enrollment loads by ID without a brand check, for internal callers
// that already authenticated the ID (tracking, workers).
func (s *Service) Enrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	return s.repo.GetEnrollment(ctx, id)
}

// Sequence loads by ID without a brand check.
func (s *Service) Sequence(ctx context.Context, id string) (*domain.Sequence, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListEnrollments(ctx context.Context, brandID, sequenceID string, limit, offset int) ([]domain.Enrollment, int, error) {
	if _, err := s.repo.Get(ctx, brandID, sequenceID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.ListEnrollments(ctx, sequenceID, limit, offset)
}

// Due lists enrollments whose next step should go out now.
func (s *Service) Due(ctx context.Context, now time.Time, limit int) ([]domain.Enrollment, error) {
	return s.repo.DueEnrollments(ctx, now, limit)
}

// Advance marks step from as sent and moves the enrollment on. A replay
// for a step already advanced returns domain.ErrStepMismatch and changes
// nothing.
func (s *Service) Advance(ctx context.Context, enrollmentID string, from int) (*domain.Enrollment, error) {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	seq, err := s.repo.GetByID(ctx, e.SequenceID)
	if err != nil {
		return nil, err
	}
	if err := e.Advance(from, seq.Steps, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveEnrollment(ctx, e, from, StepCounts{Sent: 1}); err != nil {
		return nil, err
	}
	return e, nil
}

// Complete closes an enrollment whose sequence has no step at its
// current position any more.
func (s *Service) Complete(ctx context.Context, e *domain.Enrollment) error {
	at := e.CurrentStep
	now := s.now().UTC()
	e.Status = domain.EnrollmentCompleted
	e.NextSendAt = nil
	e.CompletedAt = &now
	e.UpdatedAt = now
	return s.repo.SaveEnrollment(ctx, e, at, StepCounts{})
}

// Defer pushes the next send of an enrollment still at step to at. It is
// a no-op once the enrollment has moved on or closed.
func (s *Service) Defer(ctx context.Context, enrollmentID string, step int, at time.Time) error {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if e.Status != domain.EnrollmentActive || e.CurrentStep != step {
		return nil
	}
	at = at.UTC()
	e.NextSendAt = &at
	e.UpdatedAt = s.now().UTC()
	err = s.repo.SaveEnrollment(ctx, e, step, StepCounts{})
	if errors.Is(err, domain.ErrStepMismatch) {
		return nil
	}
	return err
}

func (s *Service) Cancel(ctx context.Context, brandID, enrollmentID string) (*domain.Enrollment, error) {
	e, err := s.GetEnrollment(ctx, brandID, enrollmentID)
	if err != nil {
		return nil, err
	}
	return e, s.cancel(ctx, e)
}

func (s *Service) cancel(ctx context.Context, e *domain.Enrollment) error {
	if e.Status != domain.EnrollmentActive {
		return nil
	}
	at := e.CurrentStep
	e.Cancel(s.now().UTC())
	return s.repo.SaveEnrollment(ctx, e, at, StepCounts{})
}

// CancelForContact stops every active enrollment of a contact. It has the
// shape of a contact status listener.
func (s *Service) CancelForContact(ctx context.Context, c *domain.Contact) error {
	es, err := s.repo.ActiveEnrollmentsForContact(ctx, c.ID)
	if err != nil {
		return err
	}
	var errs []error
	for i := range es {
		if err := s.cancel(ctx, &es[i]); err != nil && !errors.Is(err, domain.ErrStepMismatch) {
			errs = append(errs, err)
		}
	}
	if len(es) > 0 {
		logger.Info("sequence: cancelled enrollments", "contact_id", c.ID, "count", len(es))
	}
	return errors.Join(errs...)
}

// RecordEvent applies an open or click to an enrollment. Events for steps
// that were never sent, unknown enrollments and redelivered event IDs are
// dropped without error so the queue does not retry them.
func (s *Service) RecordEvent(ctx context.Context, evt *domain.TrackingEvent) error {
	if evt.Scope != domain.ScopeSequence {
		return apperr.Invalid("not a sequence event")
	}
	if evt.Kind != domain.EventOpen && evt.Kind != domain.EventClick {
		_, err := s.repo.RecordEngagement(ctx, evt, func(*domain.Enrollment) (StepCounts, error) {
			return StepCounts{}, nil
		})
		return ignoreStale(err)
	}

	fresh, err := s.repo.RecordEngagement(ctx, evt, func(e *domain.Enrollment) (StepCounts, error) {
		if e.SequenceID != evt.ScopeID {
			return StepCounts{}, domain.ErrStepNotSent
		}
		var d StepCounts
		switch evt.Kind {
		case domain.EventOpen:
			first, err := e.MarkOpened(evt.Step, evt.OccurredAt)
			if err != nil {
				return d, err
			}
			if first {
				d.Opened = 1
			}
		case domain.EventClick:
			firstClick, firstOpen, err := e.MarkClicked(evt.Step, evt.OccurredAt)
			if err != nil {
				return d, err
			}
			if firstClick {
				d.Clicked = 1
			}
			if firstOpen {
				d.Opened = 1
			}
		}
		return d, nil
	})
	if err != nil {
		return ignoreStale(err)
	}
	if !fresh {
		logger.Debug("sequence: duplicate event ignored", "event_id", evt.ID)
	}
	return nil
}

func ignoreStale(err error) error {
	if errors.Is(err, domain.ErrStepNotSent) || errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("sequence: event dropped", "error", err)
		return nil
	}
	return err
}

// Stats aggregates enrollment states and per-step engagement.
func (s *Service) Stats(ctx context.Context, brandID, sequenceID string) (*domain.SequenceStats, error) {
	seq, err := s.repo.Get(ctx, brandID, sequenceID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountEnrollments(ctx, seq.ID)
	if err != nil {
		return nil, err
	}
	steps, err := s.repo.StepCounts(ctx, seq.ID)
	if err != nil {
		return nil, err
	}

	out := &domain.SequenceStats{
		SequenceID: seq.ID,
		Active:     counts[domain.EnrollmentActive],
		Completed:  counts[domain.EnrollmentCompleted],
		Cancelled:  counts[domain.EnrollmentCancelled],
		Steps:      make([]domain.StepStats, len(seq.Steps)),
	}
	out.Enrolled = out.Active + out.Completed + out.Cancelled
	for i, st := range seq.Steps {
		c := steps[i]
		ss := domain.StepStats{Step: i, Subject: st.Subject, Sent: c.Sent, Opened: c.Opened, Clicked: c.Clicked}
		ss.Rates()
		out.Steps[i] = ss
	}
	return out, nil
}
