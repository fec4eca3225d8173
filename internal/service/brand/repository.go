package brand

import (
	"context"

	"github.com/ignite/mailcraft/internal/domain"
)

// Repository stores brands and lists. Get methods return ErrNotFound or
// ErrListNotFound when nothing matches.
type Repository interface {
	CreateBrand(ctx context.Context, b *domain.Brand) error
	GetBrand(ctx context.Context, id string) (*domain.Brand, error)
	ListBrands(ctx context.Context, ownerID string) ([]domain.Brand, error)
	DeleteBrand(ctx context.Context, id string) error

	CreateList(ctx context.Context, l *domain.List) error
	// GetList looks a list up by ID alone; callers check BrandID.
	GetList(ctx context.Context, id string) (*domain.List, error)
	ListLists(ctx context.Context, brandID string) ([]domain.List, error)
	DeleteList(ctx context.Context, id string) error
}
