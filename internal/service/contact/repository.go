package contact

import (
	"context"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
)

// Repository stores contacts. Emails are unique per list; Create returns
// ErrDuplicate on collision. Get methods return ErrNotFound.
type Repository interface {
	Create(ctx context.Context, c *domain.Contact) error
	Get(ctx context.Context, brandID, id string) (*domain.Contact, error)
	GetByEmail(ctx context.Context, listID, email string) (*domain.Contact, error)
	List(ctx context.Context, brandID string, f ListFilter) ([]domain.Contact, int, error)
	Update(ctx context.Context, c *domain.Contact) error
	Delete(ctx context.Context, brandID, id string) error
	// Match returns one page of contacts satisfying q plus the total count.
	Match(ctx context.Context, q segmentation.MatchQuery) ([]domain.Contact, int, error)
}

// ListFilter narrows List. Zero values mean no filter.
type ListFilter struct {
	ListID string
	Status domain.ContactStatus
	Tag    string
	Search string
	Limit  int
	Offset int
}

// Lists resolves the list a contact is written to.
type Lists interface {
	GetList(ctx context.Context, brandID, listID string) (*domain.List, error)
}
