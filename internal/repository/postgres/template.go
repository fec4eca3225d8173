package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/template"
)

type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, brand_id, name, subject, body, format, created_at, updated_at`

func scanTemplate(row scanner) (*domain.Template, error) {
	t := &domain.Template{}
	err := row.Scan(&t.ID, &t.BrandID, &t.Name, &t.Subject, &t.Body, &t.Format, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, brand_id, name, subject, body, format, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.BrandID, t.Name, t.Subject, t.Body, string(t.Format), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Get(ctx context.Context, brandID, id string) (*domain.Template, error) {
	return scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1 AND brand_id = $2`, id, brandID))
}

func (r *TemplateRepo) List(ctx context.Context, brandID string) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE brand_id = $1 ORDER BY name`, brandID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE templates SET name = $3, subject = $4, body = $5, format = $6, updated_at = $7
		WHERE id = $1 AND brand_id = $2
	`, t.ID, t.BrandID, t.Name, t.Subject, t.Body, string(t.Format), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return affected(res, template.ErrNotFound)
}

func (r *TemplateRepo) Delete(ctx context.Context, brandID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1 AND brand_id = $2`, id, brandID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return affected(res, template.ErrNotFound)
}
