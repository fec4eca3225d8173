package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/campaign"
)

type CampaignRepo struct{ s *Store }

func (r *CampaignRepo) Get(_ context.Context, brandID, id string) (*domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.BrandID != brandID {
		return nil, campaign.ErrNotFound
	}
	c = cloneCampaign(c)
	return &c, nil
}

func (r *CampaignRepo) List(_ context.Context, brandID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	search := strings.ToLower(f.Search)
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if c.BrandID != brandID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) {
			continue
		}
		out = append(out, cloneCampaign(c))
	}
	slices.SortFunc(out, func(a, b domain.Campaign) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.campaigns[c.ID] = cloneCampaign(*c)
	return nil
}

func (r *CampaignRepo) Update(_ context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.campaigns[c.ID]
	if !ok || old.BrandID != c.BrandID {
		return campaign.ErrNotFound
	}
	old.Name, old.Subject, old.HTML = c.Name, c.Subject, c.HTML
	old.ListIDs = slices.Clone(c.ListIDs)
	old.SegmentIDs = slices.Clone(c.SegmentIDs)
	r.s.campaigns[c.ID] = old
	return nil
}

func (r *CampaignRepo) Delete(_ context.Context, brandID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.BrandID != brandID {
		return campaign.ErrNotFound
	}
	delete(r.s.campaigns, id)
	delete(r.s.recipients, id)
	return nil
}

func (r *CampaignRepo) TransitionStatus(_ context.Context, id string, from, to domain.CampaignStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != from {
		return campaign.ErrInvalidTransition
	}
	c.Status = to
	if to == domain.CampaignSent {
		c.SentAt = &at
	}
	r.s.campaigns[id] = c
	return nil
}

func (r *CampaignRepo) AddRecipients(_ context.Context, campaignID string, rs []campaign.Recipient) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[campaignID]
	if !ok {
		return 0, campaign.ErrNotFound
	}
	m := r.s.recipients[campaignID]
	if m == nil {
		m = map[string]campaign.Recipient{}
		r.s.recipients[campaignID] = m
	}
	n := 0
	for _, rec := range rs {
		if _, exists := m[rec.ContactID]; exists {
			continue
		}
		m[rec.ContactID] = rec
		n++
	}
	c.Recipients += n
	r.s.campaigns[campaignID] = c
	return n, nil
}

func (r *CampaignRepo) Recipient(_ context.Context, campaignID, contactID string) (*campaign.Recipient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.recipients[campaignID][contactID]
	if !ok {
		return nil, campaign.ErrRecipientNotFound
	}
	return &rec, nil
}

func (r *CampaignRepo) MarkSent(_ context.Context, campaignID, contactID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recipients[campaignID][contactID]
	if !ok {
		return campaign.ErrRecipientNotFound
	}
	if rec.SentAt != nil {
		return nil
	}
	rec.SentAt = &at
	r.s.recipients[campaignID][contactID] = rec
	c := r.s.campaigns[campaignID]
	c.Sent++
	r.s.campaigns[campaignID] = c
	return nil
}

func (r *CampaignRepo) RecordEngagement(_ context.Context, evt *domain.TrackingEvent, apply campaign.EngagementFunc) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, seen := r.s.events[evt.ID]; seen {
		return false, nil
	}
	rec, ok := r.s.recipients[evt.ScopeID][evt.RecipientID]
	if !ok {
		return false, campaign.ErrRecipientNotFound
	}
	d, err := apply(&rec)
	if err != nil {
		return false, err
	}
	r.s.recipients[evt.ScopeID][evt.RecipientID] = rec
	c := r.s.campaigns[evt.ScopeID]
	c.Sent += d.Sent
	c.Opens += d.Opens
	c.Clicks += d.Clicks
	r.s.campaigns[evt.ScopeID] = c
	r.s.events[evt.ID] = *evt
	return true, nil
}
