package brand

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authorize returns the brand if userID owns it. Unknown brands are
// ErrNotFound; brands owned by someone else are ErrForbidden.
func (s *Service) Authorize(ctx context.Context, userID, brandID string) (*domain.Brand, error) {
	b, err := s.repo.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != userID {
		return nil, fmt.Errorf("%w: brand belongs to another account", apperr.ErrForbidden)
	}
	return b, nil
}

type BrandInput struct {
	Name      string `json:"name"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	ReplyTo   string `json:"reply_to"`
}

func (in BrandInput) validate() error {
	ve := apperr.NewValidation()
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("name", "is required")
	}
	if !domain.ValidEmail(domain.NormalizeEmail(in.FromEmail)) {
		ve.Add("from_email", "must be a valid email address")
	}
	if in.ReplyTo != "" && !domain.ValidEmail(domain.NormalizeEmail(in.ReplyTo)) {
		ve.Add("reply_to", "must be a valid email address")
	}
	return ve.Err()
}

func (s *Service) CreateBrand(ctx context.Context, ownerID string, in BrandInput) (*domain.Brand, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b := &domain.Brand{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(in.Name),
		FromName:  strings.TrimSpace(in.FromName),
		FromEmail: domain.NormalizeEmail(in.FromEmail),
		ReplyTo:   domain.NormalizeEmail(in.ReplyTo),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateBrand(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBrands(ctx context.Context, ownerID string) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx, ownerID)
}

// GetBrand is Authorize under the name handlers expect.
func (s *Service) GetBrand(ctx context.Context, userID, brandID string) (*domain.Brand, error) {
	return s.Authorize(ctx, userID, brandID)
}

func (s *Service) DeleteBrand(ctx context.Context, userID, brandID string) error {
	if _, err := s.Authorize(ctx, userID, brandID); err != nil {
		return err
	}
	return s.repo.DeleteBrand(ctx, brandID)
}

func newSubmitKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateList adds a list with a fresh public submit key.
func (s *Service) CreateList(ctx context.Context, brandID, name string) (*domain.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		ve := apperr.NewValidation()
		ve.Add("name", "is required")
		return nil, ve
	}
	key, err := newSubmitKey()
	if err != nil {
		return nil, fmt.Errorf("generate submit key: %w", err)
	}
	l := &domain.List{ID: uuid.NewString(), BrandID: brandID, Name: name, SubmitKey: key, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateList(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// GetList returns a list only if it belongs to brandID.
func (s *Service) GetList(ctx context.Context, brandID, listID string) (*domain.List, error) {
	l, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if l.BrandID != brandID {
		return nil, ErrListNotFound
	}
	return l, nil
}

func (s *Service) ListLists(ctx context.Context, brandID string) ([]domain.List, error) {
	return s.repo.ListLists(ctx, brandID)
}

func (s *Service) DeleteList(ctx context.Context, brandID, listID string) error {
	if _, err := s.GetList(ctx, brandID, listID); err != nil {
		return err
	}
	return s.repo.DeleteList(ctx, listID)
}

// PublicList resolves a list for an unauthenticated submission. The key
// comparison is constant-time.
func (s *Service) PublicList(ctx context.Context, listID, key string) (*domain.List, error) {
	l, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if key == "" || subtle.ConstantTimeCompare([]byte(l.SubmitKey), []byte(key)) != 1 {
		return nil, fmt.Errorf("%w: bad submit key", ErrBadSubmitKey)
	}
	return l, nil
}

// Sender returns the From identity for mail sent on behalf of brandID.
func (s *Service) Sender(ctx context.Context, brandID string) (*domain.Brand, error) {
	return s.repo.GetBrand(ctx, brandID)
}
