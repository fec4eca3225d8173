package campaign

import (
	"context"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
)

// Recipient is one contact a campaign was addressed to. Email is the
// address at send time; tracking tokens are bound to it.
type Recipient struct {
	CampaignID string     `json:"campaign_id"`
	ContactID  string     `json:"contact_id"`
	BrandID    string     `json:"brand_id"`
	Email      string     `json:"email"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	ClickedAt  *time.Time `json:"clicked_at,omitempty"`
}

// Counts are increments to a campaign's aggregate counters.
type Counts struct {
	Sent   int
	Opens  int
	Clicks int
}

// EngagementFunc mutates a locked recipient row for one event.
type EngagementFunc func(r *Recipient) (Counts, error)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, brandID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, brandID string, filter ListFilter) ([]domain.Campaign, int, error)

	Create(ctx context.Context, c *domain.Campaign) error

	// Update writes name, subject, html and audience of a draft.
	Update(ctx context.Context, c *domain.Campaign) error

	Delete(ctx context.Context, brandID, id string) error

	// TransitionStatus moves a campaign from one status to another. It
	// returns ErrInvalidTransition if the stored status is not from.
	TransitionStatus(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error

	// AddRecipients stores recipient rows, skipping contacts already
	// present, and adds the number inserted to the campaign's total.
	AddRecipients(ctx context.Context, campaignID string, rs []Recipient) (int, error)

	Recipient(ctx context.Context, campaignID, contactID string) (*Recipient, error)

	// MarkSent sets the first send time of a recipient and counts it once.
	MarkSent(ctx context.Context, campaignID, contactID string, at time.Time) error

	// RecordEngagement stores evt and, when its ID is new, applies it to
	// the recipient row and campaign counters atomically. It reports
	// false for an already stored event.
	RecordEngagement(ctx context.Context, evt *domain.TrackingEvent, apply EngagementFunc) (bool, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// Audiences resolves lists and segments to a deduplicated recipient set.
type Audiences interface {
	Resolve(ctx context.Context, brandID string, listIDs, segmentIDs []string) (*segmentation.Audience, error)
}

// Brands supplies the From identity.
type Brands interface {
	Sender(ctx context.Context, brandID string) (*domain.Brand, error)
}
