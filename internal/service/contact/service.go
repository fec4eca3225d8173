package contact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/export"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/segmentation"
)

const (
	maxPageSize   = 500
	exportPage    = 1000
	maxFieldCount = 100
)

// StatusListener is told about a contact that stopped being mailable.
type StatusListener func(ctx context.Context, c *domain.Contact) error

type Service struct {
	repo  Repository
	lists Lists
	now   func() time.Time

	mu        sync.RWMutex
	listeners []StatusListener
}

func NewService(repo Repository, lists Lists) *Service {
	return &Service{repo: repo, lists: lists, now: time.Now}
}

// OnStatusChange registers fn to run when a contact leaves active.
func (s *Service) OnStatusChange(fn StatusListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(ctx context.Context, c *domain.Contact) error {
	s.mu.RLock()
	ls := append([]StatusListener(nil), s.listeners...)
	s.mu.RUnlock()
	var errs []error
	for _, fn := range ls {
		if err := fn(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type CreateInput struct {
	ListID       string               `json:"list_id"`
	Email        string               `json:"email"`
	FirstName    string               `json:"first_name"`
	LastName     string               `json:"last_name"`
	Status       domain.ContactStatus `json:"status"`
	Tags         []string             `json:"tags"`
	CustomFields map[string]any       `json:"custom_fields"`
	Source       string               `json:"source"`
}

// UpdateInput holds patchable fields. Nil pointers are left alone; a nil
// value inside CustomFields removes that key.
type UpdateInput struct {
	Email          *string        `json:"email"`
	FirstName      *string        `json:"first_name"`
	LastName       *string        `json:"last_name"`
	CustomFields   map[string]any `json:"custom_fields"`
	IsUnsubscribed *bool          `json:"is_unsubscribed"`
}

// validateFields accepts scalar values only, keyed by names the segment
// compiler can address.
func validateFields(ve *apperr.ValidationError, fields map[string]any) {
	if len(fields) > maxFieldCount {
		ve.Add("custom_fields", fmt.Sprintf("at most %d fields", maxFieldCount))
		return
	}
	for k, v := range fields {
		if !segmentation.ValidFieldKey(k) {
			ve.Add("custom_fields."+k, "invalid field name")
			continue
		}
		switch v.(type) {
		case nil, string, bool, float64, int, int64:
		default:
			ve.Add("custom_fields."+k, "must be a string, number, boolean or null")
		}
	}
}

func (s *Service) Create(ctx context.Context, brandID string, in CreateInput) (*domain.Contact, error) {
	ve := apperr.NewValidation()
	email := domain.NormalizeEmail(in.Email)
	if !domain.ValidEmail(email) {
		ve.Add("email", "must be a valid email address")
	}
	if in.ListID == "" {
		ve.Add("list_id", "is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		ve.Add("status", fmt.Sprintf("unknown status %q", in.Status))
	}
	validateFields(ve, in.CustomFields)
	if err := ve.Err(); err != nil {
		return nil, err
	}
	if _, err := s.lists.GetList(ctx, brandID, in.ListID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &domain.Contact{
		ID:        uuid.NewString(),
		BrandID:   brandID,
		ListID:    in.ListID,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Tags:      domain.NormalizeTags(in.Tags),
		Source:    in.Source,
		CreatedAt: now,
	}
	c.MergeFields(in.CustomFields)
	status := in.Status
	if status == "" {
		status = domain.ContactActive
	}
	c.SetStatus(status, now)

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, brandID, id string) (*domain.Contact, error) {
	c, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	c.Reconcile()
	return c, nil
}

func (s *Service) List(ctx context.Context, brandID string, f ListFilter) ([]domain.Contact, int, error) {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	f.Tag = domain.NormalizeTag(f.Tag)
	out, total, err := s.repo.List(ctx, brandID, f)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Reconcile()
	}
	return out, total, nil
}

func (s *Service) Update(ctx context.Context, brandID, id string, in UpdateInput) (*domain.Contact, error) {
	ve := apperr.NewValidation()
	if in.Email != nil && !domain.ValidEmail(domain.NormalizeEmail(*in.Email)) {
		ve.Add("email", "must be a valid email address")
	}
	validateFields(ve, in.CustomFields)
	if err := ve.Err(); err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	wasMailable := c.Mailable()
	now := s.now().UTC()
	if in.Email != nil {
		c.Email = domain.NormalizeEmail(*in.Email)
	}
	if in.FirstName != nil {
		c.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		c.LastName = strings.TrimSpace(*in.LastName)
	}
	c.MergeFields(in.CustomFields)
	if in.IsUnsubscribed != nil {
		c.SetUnsubscribed(*in.IsUnsubscribed, now)
	}
	c.UpdatedAt = now
	return c, s.save(ctx, c, wasMailable)
}

func (s *Service) save(ctx context.Context, c *domain.Contact, wasMailable bool) error {
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	if wasMailable && !c.Mailable() {
		if err := s.notify(ctx, c); err != nil {
			logger.Error("contact: status listeners", "contact_id", c.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, brandID, id string) error {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, brandID, id); err != nil {
		return err
	}
	if c.Mailable() {
		if err := s.notify(ctx, c); err != nil {
			logger.Error("contact: status listeners", "contact_id", c.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) AddTags(ctx context.Context, brandID, id string, tags []string) (*domain.Contact, error) {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	c.AddTags(tags...)
	c.UpdatedAt = s.now().UTC()
	return c, s.repo.Update(ctx, c)
}

func (s *Service) RemoveTags(ctx context.Context, brandID, id string, tags []string) (*domain.Contact, error) {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	c.RemoveTags(tags...)
	c.UpdatedAt = s.now().UTC()
	return c, s.repo.Update(ctx, c)
}

// SetStatus moves a contact to status, keeping the legacy flag in step.
func (s *Service) SetStatus(ctx context.Context, brandID, id string, status domain.ContactStatus) (*domain.Contact, error) {
	if !status.Valid() {
		return nil, apperr.Invalid(fmt.Sprintf("unknown status %q", status))
	}
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	wasMailable := c.Mailable()
	if c.Status == status {
		return c, nil
	}
	c.SetStatus(status, s.now().UTC())
	return c, s.save(ctx, c, wasMailable)
}

// Unsubscribe is SetStatus(unsubscribed) that tolerates repeats. Bounced
// and complained contacts keep their status.
func (s *Service) Unsubscribe(ctx context.Context, brandID, id string) (*domain.Contact, error) {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ContactActive {
		return c, nil
	}
	c.SetStatus(domain.ContactUnsubscribed, s.now().UTC())
	return c, s.save(ctx, c, true)
}

// SubscribeInput is a public signup.
type SubscribeInput struct {
	Email        string         `json:"email"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
}

// Subscribe upserts a contact into list from a public form. An existing
// unsubscribed contact is reactivated by the explicit opt-in; bounced and
// complained contacts are left alone. Reports whether the contact is new.
func (s *Service) Subscribe(ctx context.Context, list *domain.List, in SubscribeInput) (*domain.Contact, bool, error) {
	ve := apperr.NewValidation()
	email := domain.NormalizeEmail(in.Email)
	if !domain.ValidEmail(email) {
		ve.Add("email", "must be a valid email address")
	}
	validateFields(ve, in.CustomFields)
	if err := ve.Err(); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByEmail(ctx, list.ID, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c, err := s.Create(ctx, list.BrandID, CreateInput{
			ListID: list.ID, Email: email, FirstName: in.FirstName, LastName: in.LastName,
			Tags: in.Tags, CustomFields: in.CustomFields, Source: "form",
		})
		if errors.Is(err, apperr.ErrConflict) {
			// lost a race with a concurrent submission
			existing, err = s.repo.GetByEmail(ctx, list.ID, email)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return c, err == nil, err
	case err != nil:
		return nil, false, err
	}

	existing.Reconcile()
	now := s.now().UTC()
	if in.FirstName != "" {
		existing.FirstName = strings.TrimSpace(in.FirstName)
	}
	if in.LastName != "" {
		existing.LastName = strings.TrimSpace(in.LastName)
	}
	existing.AddTags(in.Tags...)
	existing.MergeFields(in.CustomFields)
	if existing.Status == domain.ContactUnsubscribed {
		existing.SetStatus(domain.ContactActive, now)
	}
	existing.UpdatedAt = now
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Match exposes segment matching to other services.
func (s *Service) Match(ctx context.Context, q segmentation.MatchQuery) ([]domain.Contact, int, error) {
	out, total, err := s.repo.Match(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Reconcile()
	}
	return out, total, nil
}

// Export writes every contact of a list as CSV and returns the row count.
func (s *Service) Export(ctx context.Context, brandID, listID string, w io.Writer) (int, error) {
	if _, err := s.lists.GetList(ctx, brandID, listID); err != nil {
		return 0, err
	}
	var all []domain.Contact
	for offset := 0; ; offset += exportPage {
		page, _, err := s.repo.List(ctx, brandID, ListFilter{ListID: listID, Limit: exportPage, Offset: offset})
		if err != nil {
			return 0, err
		}
		for i := range page {
			page[i].Reconcile()
		}
		all = append(all, page...)
		if len(page) < exportPage {
			break
		}
	}
	return export.Contacts(w, all)
}
