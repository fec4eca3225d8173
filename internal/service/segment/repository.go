package segment

import (
	"context"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
)

// Repository stores segments and static memberships. Get returns
// ErrNotFound for unknown IDs or IDs of another brand.
type Repository interface {
	Create(ctx context.Context, s *segmentation.Segment) error
	Get(ctx context.Context, brandID, id string) (*segmentation.Segment, error)
	List(ctx context.Context, brandID string) ([]segmentation.Segment, error)
	Update(ctx context.Context, s *segmentation.Segment) error
	Delete(ctx context.Context, brandID, id string) error
	// SetCount stores a recomputed count together with the rules hash it
	// was computed for.
	SetCount(ctx context.Context, id string, count int, hash string, at time.Time) error

	AddMembers(ctx context.Context, segmentID string, contactIDs []string) (int, error)
	RemoveMembers(ctx context.Context, segmentID string, contactIDs []string) (int, error)
	// Members pages through a static segment's contacts in creation order.
	Members(ctx context.Context, segmentID string, mailableOnly bool, limit, offset int) ([]domain.Contact, int, error)
}

// Contacts is the part of the contact service segments need.
type Contacts interface {
	Get(ctx context.Context, brandID, id string) (*domain.Contact, error)
	Match(ctx context.Context, q segmentation.MatchQuery) ([]domain.Contact, int, error)
}
