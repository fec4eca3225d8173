package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, brand_id, name, subject, html, list_ids, segment_ids, status,
	recipients, sent, opens, clicks, created_at, sent_at`

func scanCampaign(row scanner) (*domain.Campaign, error) {
	var (
		c      domain.Campaign
		sentAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.BrandID, &c.Name, &c.Subject, &c.HTML,
		pq.Array(&c.ListIDs), pq.Array(&c.SegmentIDs), &c.Status,
		&c.Recipients, &c.Sent, &c.Opens, &c.Clicks, &c.CreatedAt, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	c.SentAt = timePtr(sentAt)
	return &c, nil
}

func ids(s []string) any {
	if s == nil {
		s = []string{}
	}
	return pq.Array(s)
}

func (r *CampaignRepo) Get(ctx context.Context, brandID, id string) (*domain.Campaign, error) {
	return scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND brand_id = $2`, id, brandID))
}

func (r *CampaignRepo) List(ctx context.Context, brandID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := ` WHERE brand_id = $1`
	args := []any{brandID}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limitOrDefault(f.Limit, 50), f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, brand_id, name, subject, html, list_ids, segment_ids, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.BrandID, c.Name, c.Subject, c.HTML, ids(c.ListIDs), ids(c.SegmentIDs), string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET name = $3, subject = $4, html = $5, list_ids = $6, segment_ids = $7
		WHERE id = $1 AND brand_id = $2
	`, c.ID, c.BrandID, c.Name, c.Subject, c.HTML, ids(c.ListIDs), ids(c.SegmentIDs))
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return affected(res, campaign.ErrNotFound)
}

func (r *CampaignRepo) Delete(ctx context.Context, brandID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1 AND brand_id = $2`, id, brandID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return affected(res, campaign.ErrNotFound)
}

// TransitionStatus is a compare-and-set on status so two concurrent sends
// cannot both leave draft.
func (r *CampaignRepo) TransitionStatus(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $3, sent_at = CASE WHEN $3 = 'sent' THEN $4 ELSE sent_at END
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	if err := affected(res, campaign.ErrInvalidTransition); err != nil {
		var exists bool
		if qerr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); qerr == nil && !exists {
			return campaign.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *CampaignRepo) AddRecipients(ctx context.Context, campaignID string, rs []campaign.Recipient) (int, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	contactIDs := make([]string, len(rs))
	brandIDs := make([]string, len(rs))
	emails := make([]string, len(rs))
	for i, rec := range rs {
		contactIDs[i], brandIDs[i], emails[i] = rec.ContactID, rec.BrandID, rec.Email
	}

	var n int
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_recipients (campaign_id, contact_id, brand_id, email)
			SELECT $1, u.contact_id::uuid, u.brand_id::uuid, u.email
			FROM unnest($2::text[], $3::text[], $4::text[]) AS u(contact_id, brand_id, email)
			ON CONFLICT (campaign_id, contact_id) DO NOTHING
		`, campaignID, pq.Array(contactIDs), pq.Array(brandIDs), pq.Array(emails))
		if isForeignKeyViolation(err) {
			return campaign.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("add recipients: %w", err)
		}
		added, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(added)
		_, err = tx.ExecContext(ctx, `UPDATE campaigns SET recipients = recipients + $2 WHERE id = $1`, campaignID, n)
		return err
	})
	return n, err
}

const recipientColumns = `campaign_id, contact_id, brand_id, email, sent_at, opened_at, clicked_at`

func scanRecipient(row scanner) (*campaign.Recipient, error) {
	var (
		rec                   campaign.Recipient
		sent, opened, clicked sql.NullTime
	)
	err := row.Scan(&rec.CampaignID, &rec.ContactID, &rec.BrandID, &rec.Email, &sent, &opened, &clicked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan recipient: %w", err)
	}
	rec.SentAt, rec.OpenedAt, rec.ClickedAt = timePtr(sent), timePtr(opened), timePtr(clicked)
	return &rec, nil
}

func (r *CampaignRepo) Recipient(ctx context.Context, campaignID, contactID string) (*campaign.Recipient, error) {
	return scanRecipient(r.db.QueryRowContext(ctx, `SELECT `+recipientColumns+`
		FROM campaign_recipients WHERE campaign_id = $1 AND contact_id = $2`, campaignID, contactID))
}

// MarkSent counts a recipient once; later calls for the same row change
// nothing.
func (r *CampaignRepo) MarkSent(ctx context.Context, campaignID, contactID string, at time.Time) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaign_recipients SET sent_at = $3
			WHERE campaign_id = $1 AND contact_id = $2 AND sent_at IS NULL
		`, campaignID, contactID, at)
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			_, err := scanRecipient(tx.QueryRowContext(ctx, `SELECT `+recipientColumns+`
				FROM campaign_recipients WHERE campaign_id = $1 AND contact_id = $2`, campaignID, contactID))
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE campaigns SET sent = sent + 1 WHERE id = $1`, campaignID)
		return err
	})
}

func (r *CampaignRepo) RecordEngagement(ctx context.Context, evt *domain.TrackingEvent, apply campaign.EngagementFunc) (bool, error) {
	var fresh bool
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if fresh, err = insertEvent(ctx, tx, evt); err != nil || !fresh {
			return err
		}
		rec, err := scanRecipient(tx.QueryRowContext(ctx, `SELECT `+recipientColumns+`
			FROM campaign_recipients WHERE campaign_id = $1 AND contact_id = $2 FOR UPDATE`,
			evt.ScopeID, evt.RecipientID))
		if err != nil {
			return err
		}
		d, err := apply(rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE campaign_recipients SET sent_at = $3, opened_at = $4, clicked_at = $5
			WHERE campaign_id = $1 AND contact_id = $2
		`, rec.CampaignID, rec.ContactID, nullTime(rec.SentAt), nullTime(rec.OpenedAt), nullTime(rec.ClickedAt)); err != nil {
			return fmt.Errorf("update recipient: %w", err)
		}
		if d == (campaign.Counts{}) {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE campaigns SET sent = sent + $2, opens = opens + $3, clicks = clicks + $4 WHERE id = $1
		`, rec.CampaignID, d.Sent, d.Opens, d.Clicks)
		return err
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}
