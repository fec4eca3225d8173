package domain

import "time"

// CampaignStatus tracks a broadcast through its lifecycle.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignFailed  CampaignStatus = "failed"
)

// Campaign is a one-off broadcast to the union of its lists and segments.
type Campaign struct {
	ID         string         `json:"id"`
	BrandID    string         `json:"brand_id"`
	Name       string         `json:"name"`
	Subject    string         `json:"subject"`
	HTML       string         `json:"html"`
	ListIDs    []string       `json:"list_ids"`
	SegmentIDs []string       `json:"segment_ids"`
	Status     CampaignStatus `json:"status"`
	Recipients int            `json:"recipients"`
	Sent       int            `json:"sent"`
	Opens      int            `json:"opens"`
	Clicks     int            `json:"clicks"`
	CreatedAt  time.Time      `json:"created_at"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
}

// IsTerminal reports whether the campaign can no longer change status.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed
}

// HasAudience reports whether at least one list or segment is targeted.
func (c *Campaign) HasAudience() bool {
	return len(c.ListIDs) > 0 || len(c.SegmentIDs) > 0
}
