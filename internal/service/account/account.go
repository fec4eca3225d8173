// Package account registers users and exchanges credentials for API
// tokens.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/auth"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

var (
	ErrNotFound       = apperr.NotFound("user")
	ErrEmailTaken     = apperr.Conflict("email is already registered")
	errBadCredentials = fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthorized)
)

// Repository stores users. CreateUser returns ErrEmailTaken on a
// duplicate email; lookups return ErrNotFound.
type Repository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*domain.User, error)
	UpdateUser(ctx context.Context, u *domain.User) error
}

type Service struct {
	repo   Repository
	tokens *auth.Tokens
	now    func() time.Time
}

func NewService(repo Repository, tokens *auth.Tokens) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

// Session is returned on register and login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := domain.NormalizeEmail(in.Email)
	ve := apperr.NewValidation()
	if !domain.ValidEmail(email) {
		ve.Add("email", "must be a valid email address")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		ve.Add("password", strings.TrimPrefix(err.Error(), apperr.ErrInvalid.Error()+": "))
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("account: registered", "user_id", u.ID, "email", u.Email)
	return s.session(u)
}

// Login checks a password. Unknown emails and wrong passwords fail the
// same way.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			auth.CheckPassword(auth.DummyHash(), password)
			return nil, errBadCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, errBadCredentials
	}
	return s.session(u)
}

// LoginGoogle signs in a verified Google profile, linking it to an
// existing account with the same email or creating one.
func (s *Service) LoginGoogle(ctx context.Context, g auth.GoogleUser) (string, error) {
	u, err := s.repo.GetUserByGoogleID(ctx, g.ID)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		u, err = s.linkGoogle(ctx, g)
		if err != nil {
			return "", err
		}
	default:
		return "", err
	}
	sess, err := s.session(u)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (s *Service) linkGoogle(ctx context.Context, g auth.GoogleUser) (*domain.User, error) {
	email := domain.NormalizeEmail(g.Email)
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		u.GoogleID = g.ID
		if err := s.repo.UpdateUser(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	u = &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      g.Name,
		GoogleID:  g.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("account: registered via google", "user_id", u.ID, "email", u.Email)
	return u, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.GetUser(ctx, userID)
}

func (s *Service) session(u *domain.User) (*Session, error) {
	tok, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp, User: u}, nil
}
