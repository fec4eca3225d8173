package template

import (
	"context"

	"github.com/ignite/mailcraft/internal/domain"
)

// Repository stores transactional templates. Get and Delete return
// ErrNotFound for IDs that belong to another brand.
type Repository interface {
	Create(ctx context.Context, t *domain.Template) error
	Get(ctx context.Context, brandID, id string) (*domain.Template, error)
	List(ctx context.Context, brandID string) ([]domain.Template, error)
	Update(ctx context.Context, t *domain.Template) error
	Delete(ctx context.Context, brandID, id string) error
}

// Brands supplies the From identity.
type Brands interface {
	Sender(ctx context.Context, brandID string) (*domain.Brand, error)
}
