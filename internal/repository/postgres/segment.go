package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/segment"
)

// SegmentRepo implements segment.Repository. Rules are stored as JSONB
// and never evaluated in SQL here; ContactRepo.Match does that.
type SegmentRepo struct{ db *sql.DB }

func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

const segmentColumns = `id, brand_id, COALESCE(list_id::text, ''), name, description, kind,
	rules, rules_hash, cached_count, counted_at, created_at, updated_at`

func scanSegment(row scanner) (*segmentation.Segment, error) {
	var (
		s       segmentation.Segment
		rules   []byte
		counted sql.NullTime
	)
	err := row.Scan(&s.ID, &s.BrandID, &s.ListID, &s.Name, &s.Description, &s.Kind,
		&rules, &s.RulesHash, &s.CachedCount, &counted, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment: %w", err)
	}
	if len(rules) > 0 && string(rules) != "null" {
		var g segmentation.Group
		if err := fromJSONB(rules, &g); err != nil {
			return nil, fmt.Errorf("decode rules of %s: %w", s.ID, err)
		}
		s.Rules = &g
	}
	s.CountedAt = timePtr(counted)
	return &s, nil
}

func rulesArg(g *segmentation.Group) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return jsonb(g, "null")
}

func (r *SegmentRepo) Create(ctx context.Context, s *segmentation.Segment) error {
	rules, err := rulesArg(s.Rules)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO segments (id, brand_id, list_id, name, description, kind,
			rules, rules_hash, cached_count, counted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.BrandID, nullString(s.ListID), s.Name, s.Description, string(s.Kind),
		rules, s.RulesHash, s.CachedCount, nullTime(s.CountedAt), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Get(ctx context.Context, brandID, id string) (*segmentation.Segment, error) {
	return scanSegment(r.db.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE id = $1 AND brand_id = $2`, id, brandID))
}

func (r *SegmentRepo) List(ctx context.Context, brandID string) ([]segmentation.Segment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE brand_id = $1 ORDER BY name`, brandID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	var out []segmentation.Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SegmentRepo) Update(ctx context.Context, s *segmentation.Segment) error {
	rules, err := rulesArg(s.Rules)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE segments SET list_id = $3, name = $4, description = $5, rules = $6,
			rules_hash = $7, cached_count = $8, counted_at = $9, updated_at = $10
		WHERE id = $1 AND brand_id = $2
	`, s.ID, s.BrandID, nullString(s.ListID), s.Name, s.Description, rules,
		s.RulesHash, s.CachedCount, nullTime(s.CountedAt), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	return affected(res, segment.ErrNotFound)
}

func (r *SegmentRepo) Delete(ctx context.Context, brandID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM segments WHERE id = $1 AND brand_id = $2`, id, brandID)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	return affected(res, segment.ErrNotFound)
}

func (r *SegmentRepo) SetCount(ctx context.Context, id string, count int, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE segments SET cached_count = $2, rules_hash = $3, counted_at = $4 WHERE id = $1
	`, id, count, hash, at)
	if err != nil {
		return fmt.Errorf("set segment count: %w", err)
	}
	return affected(res, segment.ErrNotFound)
}

// AddMembers inserts only contacts of the segment's brand; unknown IDs and
// existing members are skipped.
func (r *SegmentRepo) AddMembers(ctx context.Context, segmentID string, contactIDs []string) (int, error) {
	var n int
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var brandID string
		err := tx.QueryRowContext(ctx, `SELECT brand_id FROM segments WHERE id = $1 FOR UPDATE`, segmentID).Scan(&brandID)
		if errors.Is(err, sql.ErrNoRows) {
			return segment.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock segment: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO segment_members (segment_id, contact_id)
			SELECT $1, c.id FROM contacts c
			WHERE c.id::text = ANY($2) AND c.brand_id = $3
			ON CONFLICT DO NOTHING
		`, segmentID, pq.Array(contactIDs), brandID)
		if err != nil {
			return fmt.Errorf("add members: %w", err)
		}
		added, err := res.RowsAffected()
		n = int(added)
		return err
	})
	return n, err
}

func (r *SegmentRepo) RemoveMembers(ctx context.Context, segmentID string, contactIDs []string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM segment_members WHERE segment_id = $1 AND contact_id::text = ANY($2)
	`, segmentID, pq.Array(contactIDs))
	if err != nil {
		return 0, fmt.Errorf("remove members: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SegmentRepo) Members(ctx context.Context, segmentID string, mailableOnly bool, limit, offset int) ([]domain.Contact, int, error) {
	var listID string
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(list_id::text, '') FROM segments WHERE id = $1`, segmentID).Scan(&listID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, segment.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get segment: %w", err)
	}

	from := `FROM segment_members m JOIN contacts s ON s.id = m.contact_id
		JOIN segments g ON g.id = m.segment_id AND g.brand_id = s.brand_id
		WHERE m.segment_id = $1 AND ($2 = '' OR s.list_id::text = $2)`
	if mailableOnly {
		from += ` AND s.status = 'active' AND s.is_unsubscribed = FALSE`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from, segmentID, listID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+contactColumns+` `+from+
		` ORDER BY s.created_at, s.id LIMIT $3 OFFSET $4`,
		segmentID, listID, limitOrDefault(limit, 1<<30), offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	out, err := scanContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
