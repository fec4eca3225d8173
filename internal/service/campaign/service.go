package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/tracking"
)

const recipientBatch = 500

// TemplateChecker validates Liquid sources before they are stored.
type TemplateChecker interface {
	Validate(subject, body string) error
}

// Service implements campaign business logic. All public methods are
// safe for concurrent use if the underlying repository is.
type Service struct {
	repo      Repository
	audiences Audiences
	brands    Brands
	checker   TemplateChecker
	composer  *compose.Composer
	queue     compose.Enqueuer
	now       func() time.Time
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, audiences Audiences, brands Brands, checker TemplateChecker, composer *compose.Composer, q compose.Enqueuer) *Service {
	return &Service{
		repo:      repo,
		audiences: audiences,
		brands:    brands,
		checker:   checker,
		composer:  composer,
		queue:     q,
		now:       time.Now,
	}
}

// Input holds the editable fields of a campaign.
type Input struct {
	Name       string   `json:"name"`
	Subject    string   `json:"subject"`
	HTML       string   `json:"html"`
	ListIDs    []string `json:"list_ids"`
	SegmentIDs []string `json:"segment_ids"`
}

func (s *Service) validate(in Input) error {
	ve := apperr.NewValidation()
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("name", "is required")
	}
	if err := s.checker.Validate(in.Subject, in.HTML); err != nil {
		var fe *apperr.ValidationError
		if errors.As(err, &fe) {
			for k, v := range fe.Fields {
				if k == "body" {
					k = "html"
				}
				ve.Add(k, v)
			}
		} else {
			ve.Add("html", err.Error())
		}
	}
	return ve.Err()
}

func (s *Service) Get(ctx context.Context, brandID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, brandID, id)
}

func (s *Service) List(ctx context.Context, brandID string, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 200
	}
	return s.repo.List(ctx, brandID, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, brandID string, in Input) (*domain.Campaign, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	c := &domain.Campaign{
		ID:         uuid.NewString(),
		BrandID:    brandID,
		Name:       strings.TrimSpace(in.Name),
		Subject:    in.Subject,
		HTML:       in.HTML,
		ListIDs:    dedupeIDs(in.ListIDs),
		SegmentIDs: dedupeIDs(in.SegmentIDs),
		Status:     domain.CampaignDraft,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update edits a draft.
func (s *Service) Update(ctx context.Context, brandID, id string, in Input) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, ErrNotDraft
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Subject = in.Subject
	c.HTML = in.HTML
	c.ListIDs = dedupeIDs(in.ListIDs)
	c.SegmentIDs = dedupeIDs(in.SegmentIDs)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a draft campaign.
func (s *Service) Delete(ctx context.Context, brandID, id string) error {
	c, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return ErrNotDraft
	}
	return s.repo.Delete(ctx, brandID, id)
}

// Send transitions a draft to sending and enqueues one job per recipient
// of the deduplicated audience. When dispatch fails the campaign ends up
// failed; jobs already enqueued still deliver. Returns the number of
// recipients enqueued.
func (s *Service) Send(ctx context.Context, brandID, campaignID string) (int, error) {
	c, err := s.repo.Get(ctx, brandID, campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status != domain.CampaignDraft {
		return 0, ErrAlreadySending
	}
	if !c.HasAudience() {
		return 0, ErrMissingAudience
	}
	brand, err := s.brands.Sender(ctx, brandID)
	if err != nil {
		return 0, err
	}

	if err := s.repo.TransitionStatus(ctx, c.ID, domain.CampaignDraft, domain.CampaignSending, s.now().UTC()); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return 0, ErrAlreadySending
		}
		return 0, fmt.Errorf("transition to sending: %w", err)
	}

	n, err := s.dispatch(ctx, c, brand)
	if err != nil {
		if rbErr := s.repo.TransitionStatus(context.WithoutCancel(ctx), c.ID, domain.CampaignSending, domain.CampaignFailed, s.now().UTC()); rbErr != nil {
			logger.Error("campaign: rollback failed", "campaign_id", c.ID, "error", rbErr)
		}
		return n, fmt.Errorf("dispatch: %w", err)
	}
	if err := s.repo.TransitionStatus(ctx, c.ID, domain.CampaignSending, domain.CampaignSent, s.now().UTC()); err != nil {
		return n, fmt.Errorf("transition to sent: %w", err)
	}

	logger.Info("campaign: enqueued", "campaign_id", c.ID, "recipients", n)
	return n, nil
}

func (s *Service) dispatch(ctx context.Context, c *domain.Campaign, brand *domain.Brand) (int, error) {
	aud, err := s.audiences.Resolve(ctx, c.BrandID, c.ListIDs, c.SegmentIDs)
	if err != nil {
		return 0, fmt.Errorf("resolve audience: %w", err)
	}
	dups, excluded := aud.Stats()
	logger.Info("campaign: audience resolved", "campaign_id", c.ID,
		"recipients", aud.Len(), "duplicates", dups, "excluded", excluded)

	src := compose.Source{Subject: c.Subject, Body: c.HTML, Format: domain.FormatHTML}
	contacts := aud.Contacts()
	sent := 0
	for start := 0; start < len(contacts); start += recipientBatch {
		end := min(start+recipientBatch, len(contacts))
		batch := contacts[start:end]

		rs := make([]Recipient, len(batch))
		for i := range batch {
			rs[i] = Recipient{CampaignID: c.ID, ContactID: batch[i].ID, BrandID: c.BrandID, Email: batch[i].Email}
		}
		if _, err := s.repo.AddRecipients(ctx, c.ID, rs); err != nil {
			return sent, err
		}

		for i := range batch {
			ct := &batch[i]
			ref := tracking.Ref{Scope: domain.ScopeCampaign, ScopeID: c.ID, RecipientID: ct.ID}
			job, err := s.composer.Tracked(brand, ct, ct.Email, src, ref)
			if err != nil {
				logger.Warn("campaign: render failed, skipping recipient", "campaign_id", c.ID, "contact_id", ct.ID, "error", err)
				continue
			}
			if _, err := s.queue.Enqueue(ctx, compose.JobSendEmail, job); err != nil {
				return sent, err
			}
			sent++
		}
	}
	return sent, nil
}

// Recipient returns the stored recipient row, used to resolve the email a
// tracking token was signed for.
func (s *Service) Recipient(ctx context.Context, campaignID, contactID string) (*Recipient, error) {
	return s.repo.Recipient(ctx, campaignID, contactID)
}

// MarkSent records a delivered message.
func (s *Service) MarkSent(ctx context.Context, campaignID, contactID string) error {
	return s.repo.MarkSent(ctx, campaignID, contactID, s.now().UTC())
}

// RecordEvent applies an open or click to the campaign counters. Each
// recipient counts once per kind; a click counts as an open too.
// Redelivered events and unknown recipients are dropped without error.
func (s *Service) RecordEvent(ctx context.Context, evt *domain.TrackingEvent) error {
	if evt.Scope != domain.ScopeCampaign {
		return apperr.Invalid("not a campaign event")
	}
	_, err := s.repo.RecordEngagement(ctx, evt, func(r *Recipient) (Counts, error) {
		var d Counts
		at := evt.OccurredAt
		switch evt.Kind {
		case domain.EventOpen:
			if r.OpenedAt == nil {
				r.OpenedAt = &at
				d.Opens = 1
			}
		case domain.EventClick:
			if r.ClickedAt == nil {
				r.ClickedAt = &at
				d.Clicks = 1
			}
			if r.OpenedAt == nil {
				r.OpenedAt = &at
				d.Opens = 1
			}
		}
		return d, nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("campaign: event dropped", "event_id", evt.ID, "error", err)
		return nil
	}
	return err
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
