package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/sequence"
)

// SequenceRepo implements sequence.Repository.
type SequenceRepo struct{ db *sql.DB }

func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

const sequenceColumns = `id, brand_id, name, status, COALESCE(trigger_list_id::text, ''), steps, created_at, updated_at`

func scanSequence(row scanner) (*domain.Sequence, error) {
	var (
		s     domain.Sequence
		steps []byte
	)
	err := row.Scan(&s.ID, &s.BrandID, &s.Name, &s.Status, &s.TriggerListID, &steps, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sequence: %w", err)
	}
	if err := fromJSONB(steps, &s.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of %s: %w", s.ID, err)
	}
	return &s, nil
}

func (r *SequenceRepo) querySequences(ctx context.Context, where string, args ...any) ([]domain.Sequence, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sequenceColumns+` FROM sequences WHERE `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()
	var out []domain.Sequence
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) Create(ctx context.Context, s *domain.Sequence) error {
	steps, err := jsonb(s.Steps, "[]")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sequences (id, brand_id, name, status, trigger_list_id, steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.BrandID, s.Name, string(s.Status), nullString(s.TriggerListID), steps, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create sequence: %w", err)
	}
	return nil
}

func (r *SequenceRepo) Get(ctx context.Context, brandID, id string) (*domain.Sequence, error) {
	return scanSequence(r.db.QueryRowContext(ctx,
		`SELECT `+sequenceColumns+` FROM sequences WHERE id = $1 AND brand_id = $2`, id, brandID))
}

func (r *SequenceRepo) GetByID(ctx context.Context, id string) (*domain.Sequence, error) {
	return scanSequence(r.db.QueryRowContext(ctx, `SELECT `+sequenceColumns+` FROM sequences WHERE id = $1`, id))
}

func (r *SequenceRepo) List(ctx context.Context, brandID string) ([]domain.Sequence, error) {
	return r.querySequences(ctx, `brand_id = $1`, brandID)
}

func (r *SequenceRepo) ListByTriggerList(ctx context.Context, listID string) ([]domain.Sequence, error) {
	if listID == "" {
		return nil, nil
	}
	return r.querySequences(ctx, `trigger_list_id = $1`, listID)
}

func (r *SequenceRepo) Update(ctx context.Context, s *domain.Sequence) error {
	steps, err := jsonb(s.Steps, "[]")
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequences SET name = $3, status = $4, trigger_list_id = $5, steps = $6, updated_at = $7
		WHERE id = $1 AND brand_id = $2
	`, s.ID, s.BrandID, s.Name, string(s.Status), nullString(s.TriggerListID), steps, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	return affected(res, sequence.ErrNotFound)
}

const enrollmentColumns = `id, sequence_id, brand_id, contact_id, email, current_step, status,
	next_send_at, progress, created_at, updated_at, completed_at`

func scanEnrollment(row scanner) (*domain.Enrollment, error) {
	var (
		e               domain.Enrollment
		progress        []byte
		next, completed sql.NullTime
	)
	err := row.Scan(&e.ID, &e.SequenceID, &e.BrandID, &e.ContactID, &e.Email, &e.CurrentStep, &e.Status,
		&next, &progress, &e.CreatedAt, &e.UpdatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sequence.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	if err := fromJSONB(progress, &e.Progress); err != nil {
		return nil, fmt.Errorf("decode progress of %s: %w", e.ID, err)
	}
	e.NextSendAt = timePtr(next)
	e.CompletedAt = timePtr(completed)
	return &e, nil
}

func (r *SequenceRepo) queryEnrollments(ctx context.Context, q string, args ...any) ([]domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()
	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	progress, err := jsonb(e.Progress, "[]")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, sequence_id, brand_id, contact_id, email, current_step, status,
			next_send_at, progress, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.SequenceID, e.BrandID, e.ContactID, e.Email, e.CurrentStep, string(e.Status),
		nullTime(e.NextSendAt), progress, e.CreatedAt, e.UpdatedAt, nullTime(e.CompletedAt))
	if isUniqueViolation(err) {
		return sequence.ErrAlreadyEnrolled
	}
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (r *SequenceRepo) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	return scanEnrollment(r.db.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id))
}

func (r *SequenceRepo) FindEnrollment(ctx context.Context, sequenceID, contactID string) (*domain.Enrollment, error) {
	return scanEnrollment(r.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE sequence_id = $1 AND contact_id = $2`, sequenceID, contactID))
}

func (r *SequenceRepo) ListEnrollments(ctx context.Context, sequenceID string, limit, offset int) ([]domain.Enrollment, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE sequence_id = $1`, sequenceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	out, err := r.queryEnrollments(ctx, `SELECT `+enrollmentColumns+` FROM enrollments
		WHERE sequence_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		sequenceID, limitOrDefault(limit, 50), offset)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *SequenceRepo) ActiveEnrollmentsForContact(ctx context.Context, contactID string) ([]domain.Enrollment, error) {
	return r.queryEnrollments(ctx, `SELECT `+enrollmentColumns+` FROM enrollments
		WHERE contact_id = $1 AND status = 'active' ORDER BY created_at, id`, contactID)
}

func (r *SequenceRepo) DueEnrollments(ctx context.Context, now time.Time, limit int) ([]domain.Enrollment, error) {
	return r.queryEnrollments(ctx, `SELECT `+enrollmentColumns+` FROM enrollments
		WHERE status = 'active' AND next_send_at <= $1
			AND sequence_id IN (SELECT id FROM sequences WHERE status = 'active')
		ORDER BY next_send_at, id LIMIT $2`, now, limitOrDefault(limit, 100))
}

func (r *SequenceRepo) CountEnrollments(ctx context.Context, sequenceID string) (map[domain.EnrollmentStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM enrollments WHERE sequence_id = $1 GROUP BY status
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	defer rows.Close()
	out := map[domain.EnrollmentStatus]int{}
	for rows.Next() {
		var (
			status domain.EnrollmentStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// writeEnrollment updates the mutable columns of e. With expectStep >= 0
// the write only happens if the stored step still equals it.
func writeEnrollment(ctx context.Context, tx *sql.Tx, e *domain.Enrollment, expectStep int) (bool, error) {
	progress, err := jsonb(e.Progress, "[]")
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE enrollments SET current_step = $2, status = $3, next_send_at = $4, progress = $5,
			updated_at = $6, completed_at = $7
		WHERE id = $1 AND ($8 < 0 OR current_step = $8)
	`, e.ID, e.CurrentStep, string(e.Status), nullTime(e.NextSendAt), progress,
		e.UpdatedAt, nullTime(e.CompletedAt), expectStep)
	if err != nil {
		return false, fmt.Errorf("update enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func addStepCounts(ctx context.Context, tx *sql.Tx, sequenceID string, step int, d sequence.StepCounts) error {
	if d == (sequence.StepCounts{}) {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_step_stats (sequence_id, step, sent, opened, clicked)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence_id, step) DO UPDATE SET
			sent = sequence_step_stats.sent + EXCLUDED.sent,
			opened = sequence_step_stats.opened + EXCLUDED.opened,
			clicked = sequence_step_stats.clicked + EXCLUDED.clicked
	`, sequenceID, step, d.Sent, d.Opened, d.Clicked)
	if err != nil {
		return fmt.Errorf("add step counts: %w", err)
	}
	return nil
}

func (r *SequenceRepo) SaveEnrollment(ctx context.Context, e *domain.Enrollment, expectStep int, delta sequence.StepCounts) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		ok, err := writeEnrollment(ctx, tx, e, expectStep)
		if err != nil {
			return err
		}
		if !ok {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return sequence.ErrEnrollmentNotFound
			}
			return domain.ErrStepMismatch
		}
		return addStepCounts(ctx, tx, e.SequenceID, expectStep, delta)
	})
}

// insertEvent stores evt unless its ID is already present.
func insertEvent(ctx context.Context, tx *sql.Tx, evt *domain.TrackingEvent) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO tracking_events (id, kind, scope, scope_id, recipient_id, step, email,
			url, ip, user_agent, country, city, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, string(evt.Kind), string(evt.Scope), evt.ScopeID, evt.RecipientID, evt.Step, evt.Email,
		evt.URL, evt.IP, evt.UserAgent, evt.Country, evt.City, evt.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("insert tracking event: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SequenceRepo) RecordEngagement(ctx context.Context, evt *domain.TrackingEvent, apply sequence.EngagementFunc) (bool, error) {
	var fresh bool
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if fresh, err = insertEvent(ctx, tx, evt); err != nil || !fresh {
			return err
		}
		e, err := scanEnrollment(tx.QueryRowContext(ctx,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, evt.RecipientID))
		if err != nil {
			return err
		}
		d, err := apply(e)
		if err != nil {
			return err
		}
		if _, err := writeEnrollment(ctx, tx, e, -1); err != nil {
			return err
		}
		return addStepCounts(ctx, tx, e.SequenceID, evt.Step, d)
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

func (r *SequenceRepo) StepCounts(ctx context.Context, sequenceID string) (map[int]sequence.StepCounts, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT step, sent, opened, clicked FROM sequence_step_stats WHERE sequence_id = $1
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("step counts: %w", err)
	}
	defer rows.Close()
	out := map[int]sequence.StepCounts{}
	for rows.Next() {
		var (
			step int
			c    sequence.StepCounts
		)
		if err := rows.Scan(&step, &c.Sent, &c.Opened, &c.Clicked); err != nil {
			return nil, err
		}
		out[step] = c
	}
	return out, rows.Err()
}
