package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/contact"
)

// ContactRepo implements contact.Repository. Rule matching is compiled
// to SQL by segmentation.QueryBuilder, which addresses the table as s.
type ContactRepo struct{ db *sql.DB }

func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `s.id, s.brand_id, s.list_id, s.email, s.first_name, s.last_name,
	s.status, s.is_unsubscribed, s.custom_fields, s.tags, s.source,
	s.created_at, s.updated_at, s.unsubscribed_at`

// scanContact reads one row and reconciles rows written by older clients
// whose status and legacy flag disagree.
func scanContact(row scanner) (*domain.Contact, error) {
	var (
		c      domain.Contact
		fields []byte
		unsub  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.BrandID, &c.ListID, &c.Email, &c.FirstName, &c.LastName,
		&c.Status, &c.IsUnsubscribed, &fields, pq.Array(&c.Tags), &c.Source,
		&c.CreatedAt, &c.UpdatedAt, &unsub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	if err := fromJSONB(fields, &c.CustomFields); err != nil {
		return nil, fmt.Errorf("decode custom fields of %s: %w", c.ID, err)
	}
	c.UnsubscribedAt = timePtr(unsub)
	c.Reconcile()
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]domain.Contact, error) {
	defer rows.Close()
	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func contactArgs(c *domain.Contact) ([]any, error) {
	fields, err := jsonb(c.CustomFields, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode custom fields: %w", err)
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{c.ID, c.BrandID, c.ListID, c.Email, c.FirstName, c.LastName,
		string(c.Status), c.IsUnsubscribed, fields, pq.Array(tags), c.Source,
		c.CreatedAt, c.UpdatedAt, nullTime(c.UnsubscribedAt)}, nil
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	args, err := contactArgs(c)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, brand_id, list_id, email, first_name, last_name,
			status, is_unsubscribed, custom_fields, tags, source,
			created_at, updated_at, unsubscribed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, args...)
	if isUniqueViolation(err) {
		return contact.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

func (r *ContactRepo) Get(ctx context.Context, brandID, id string) (*domain.Contact, error) {
	return scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts s WHERE s.id = $1 AND s.brand_id = $2`, id, brandID))
}

func (r *ContactRepo) GetByEmail(ctx context.Context, listID, email string) (*domain.Contact, error) {
	return scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts s WHERE s.list_id = $1 AND s.email = $2`, listID, email))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// listWhere builds the filter shared by the page and count queries.
func listWhere(brandID string, f contact.ListFilter) (string, []any) {
	where := []string{"s.brand_id = $1"}
	args := []any{brandID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ListID != "" {
		add("s.list_id = $%d", f.ListID)
	}
	if f.Status != "" {
		add("s.status = $%d", string(f.Status))
	}
	if f.Tag != "" {
		add("$%d = ANY(s.tags)", domain.NormalizeTag(f.Tag))
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		add("(s.email LIKE $%[1]d OR LOWER(s.first_name || ' ' || s.last_name) LIKE $%[1]d)",
			"%"+likeEscaper.Replace(q)+"%")
	}
	return strings.Join(where, " AND "), args
}

func (r *ContactRepo) List(ctx context.Context, brandID string, f contact.ListFilter) ([]domain.Contact, int, error) {
	where, args := listWhere(brandID, f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts s WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	n := len(args)
	q := `SELECT ` + contactColumns + ` FROM contacts s WHERE ` + where +
		fmt.Sprintf(` ORDER BY s.created_at, s.id LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limitOrDefault(f.Limit, 50), f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	out, err := scanContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ContactRepo) Update(ctx context.Context, c *domain.Contact) error {
	args, err := contactArgs(c)
	if err != nil {
		return err
	}
	// created_at (arg 12) is immutable
	args = append(args[:11], args[12:]...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET list_id = $3, email = $4, first_name = $5, last_name = $6,
			status = $7, is_unsubscribed = $8, custom_fields = $9, tags = $10, source = $11,
			updated_at = $12, unsubscribed_at = $13
		WHERE id = $1 AND brand_id = $2
	`, args...)
	if isUniqueViolation(err) {
		return contact.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return affected(res, contact.ErrNotFound)
}

func (r *ContactRepo) Delete(ctx context.Context, brandID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1 AND brand_id = $2`, id, brandID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return affected(res, contact.ErrNotFound)
}

// Match runs the compiled rule tree as a count and a page query.
func (r *ContactRepo) Match(ctx context.Context, q segmentation.MatchQuery) ([]domain.Contact, int, error) {
	qb := q.Builder()
	countSQL, countArgs, err := qb.BuildCountQuery(q.Rules)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}
	if total == 0 || (q.Limit > 0 && q.Offset >= total) {
		return nil, total, nil
	}

	selectSQL, selectArgs, err := qb.BuildSelect(contactColumns, q.Rules, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("match contacts: %w", err)
	}
	out, err := scanContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
