package sequence

import (
	"context"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
)

// StepCounts are unique per-enrollment counters for one step.
type StepCounts struct {
	Sent    int
	Opened  int
	Clicked int
}

// Add accumulates d into c.
func (c *StepCounts) Add(d StepCounts) {
	c.Sent += d.Sent
	c.Opened += d.Opened
	c.Clicked += d.Clicked
}

// EngagementFunc mutates a locked enrollment for one event and returns
// the counter changes to apply with it.
type EngagementFunc func(e *domain.Enrollment) (StepCounts, error)

// Repository stores sequences, enrollments, step counters and the
// tracking events applied to them.
type Repository interface {
	Create(ctx context.Context, s *domain.Sequence) error
	// Get returns ErrNotFound for unknown IDs and IDs of another brand.
	Get(ctx context.Context, brandID, id string) (*domain.Sequence, error)
	GetByID(ctx context.Context, id string) (*domain.Sequence, error)
	List(ctx context.Context, brandID string) ([]domain.Sequence, error)
	Update(ctx context.Context, s *domain.Sequence) error
	ListByTriggerList(ctx context.Context, listID string) ([]domain.Sequence, error)

	// CreateEnrollment returns ErrAlreadyEnrolled when the contact is
	// already in the sequence.
	CreateEnrollment(ctx context.Context, e *domain.Enrollment) error
	GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error)
	FindEnrollment(ctx context.Context, sequenceID, contactID string) (*domain.Enrollment, error)
	ListEnrollments(ctx context.Context, sequenceID string, limit, offset int) ([]domain.Enrollment, int, error)
	ActiveEnrollmentsForContact(ctx context.Context, contactID string) ([]domain.Enrollment, error)
	// DueEnrollments returns active enrollments of active sequences with
	// NextSendAt <= now, oldest first.
	DueEnrollments(ctx context.Context, now time.Time, limit int) ([]domain.Enrollment, error)
	CountEnrollments(ctx context.Context, sequenceID string) (map[domain.EnrollmentStatus]int, error)

	// SaveEnrollment writes e only if the stored CurrentStep equals
	// expectStep, and adds delta to the counters of step expectStep in the
	// same transaction. A stale expectStep yields domain.ErrStepMismatch.
	SaveEnrollment(ctx context.Context, e *domain.Enrollment, expectStep int, delta StepCounts) error

	// RecordEngagement stores evt and, when its ID is new, locks the
	// enrollment, runs apply and persists the result with the returned
	// counter changes. It reports false for an already stored event.
	RecordEngagement(ctx context.Context, evt *domain.TrackingEvent, apply EngagementFunc) (bool, error)
	StepCounts(ctx context.Context, sequenceID string) (map[int]StepCounts, error)
}

// Contacts is the part of the contact service sequences need.
type Contacts interface {
	Get(ctx context.Context, brandID, id string) (*domain.Contact, error)
}
