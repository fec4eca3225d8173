package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/brand"
)

// UserRepo implements account.Repository.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, name, password_hash, COALESCE(google_id, ''), created_at`

func scanUser(row scanner) (*domain.User, error) {
	u := &domain.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.GoogleID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, google_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.Name, u.PasswordHash, nullString(u.GoogleID), u.CreatedAt)
	if isUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepo) GetUserByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	if googleID == "" {
		return nil, account.ErrNotFound
	}
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
}

func (r *UserRepo) UpdateUser(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email = $2, name = $3, password_hash = $4, google_id = $5
		WHERE id = $1
	`, u.ID, u.Email, u.Name, u.PasswordHash, nullString(u.GoogleID))
	if isUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return affected(res, account.ErrNotFound)
}

// BrandRepo implements brand.Repository. Deletes cascade in the schema.
type BrandRepo struct{ db *sql.DB }

func NewBrandRepo(db *sql.DB) *BrandRepo { return &BrandRepo{db: db} }

func (r *BrandRepo) CreateBrand(ctx context.Context, b *domain.Brand) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO brands (id, owner_id, name, from_name, from_email, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.OwnerID, b.Name, b.FromName, b.FromEmail, b.ReplyTo, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create brand: %w", err)
	}
	return nil
}

func (r *BrandRepo) GetBrand(ctx context.Context, id string) (*domain.Brand, error) {
	b := &domain.Brand{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, from_name, from_email, reply_to, created_at
		FROM brands WHERE id = $1
	`, id).Scan(&b.ID, &b.OwnerID, &b.Name, &b.FromName, &b.FromEmail, &b.ReplyTo, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, brand.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get brand: %w", err)
	}
	return b, nil
}

func (r *BrandRepo) ListBrands(ctx context.Context, ownerID string) ([]domain.Brand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, from_name, from_email, reply_to, created_at
		FROM brands WHERE owner_id = $1 ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	var out []domain.Brand
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Name, &b.FromName, &b.FromEmail, &b.ReplyTo, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BrandRepo) DeleteBrand(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete brand: %w", err)
	}
	return affected(res, brand.ErrNotFound)
}

func (r *BrandRepo) CreateList(ctx context.Context, l *domain.List) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lists (id, brand_id, name, submit_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID, l.BrandID, l.Name, l.SubmitKey, l.CreatedAt)
	if isForeignKeyViolation(err) {
		return brand.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("create list: %w", err)
	}
	return nil
}

func (r *BrandRepo) GetList(ctx context.Context, id string) (*domain.List, error) {
	l := &domain.List{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, brand_id, name, submit_key, created_at FROM lists WHERE id = $1
	`, id).Scan(&l.ID, &l.BrandID, &l.Name, &l.SubmitKey, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, brand.ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (r *BrandRepo) ListLists(ctx context.Context, brandID string) ([]domain.List, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, brand_id, name, submit_key, created_at
		FROM lists WHERE brand_id = $1 ORDER BY created_at, id
	`, brandID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var out []domain.List
	for rows.Next() {
		var l domain.List
		if err := rows.Scan(&l.ID, &l.BrandID, &l.Name, &l.SubmitKey, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *BrandRepo) DeleteList(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return affected(res, brand.ErrListNotFound)
}
