// Package engagement connects the tracking edge to the services that own
// recipients: it resolves which address a tracking link was signed for,
// applies unsubscribes, and routes recorded events to sequence or
// campaign statistics.
package engagement

import (
	"context"
	"fmt"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/service/campaign"
	"github.com/ignite/mailcraft/internal/tracking"
)

type Sequences interface {
	Enrollment(ctx context.Context, id string) (*domain.Enrollment, error)
	RecordEvent(ctx context.Context, evt *domain.TrackingEvent) error
}

type Campaigns interface {
	Recipient(ctx context.Context, campaignID, contactID string) (*campaign.Recipient, error)
	RecordEvent(ctx context.Context, evt *domain.TrackingEvent) error
}

type Contacts interface {
	Unsubscribe(ctx context.Context, brandID, id string) (*domain.Contact, error)
}

// Service implements tracking.Recipients and tracking.Recorder.
type Service struct {
	sequences Sequences
	campaigns Campaigns
	contacts  Contacts
}

func NewService(sequences Sequences, campaigns Campaigns, contacts Contacts) *Service {
	return &Service{sequences: sequences, campaigns: campaigns, contacts: contacts}
}

var (
	_ tracking.Recipients = (*Service)(nil)
	_ tracking.Recorder   = (*Service)(nil)
)

// recipient holds what a Ref resolves to.
type recipient struct {
	brandID   string
	contactID string
	email     string
}

func (s *Service) resolve(ctx context.Context, ref tracking.Ref) (*recipient, error) {
	switch ref.Scope {
	case domain.ScopeSequence:
		e, err := s.sequences.Enrollment(ctx, ref.RecipientID)
		if err != nil {
			return nil, err
		}
		if e.SequenceID != ref.ScopeID {
			return nil, apperr.NotFound("enrollment")
		}
		return &recipient{brandID: e.BrandID, contactID: e.ContactID, email: e.Email}, nil
	case domain.ScopeCampaign:
		r, err := s.campaigns.Recipient(ctx, ref.ScopeID, ref.RecipientID)
		if err != nil {
			return nil, err
		}
		return &recipient{brandID: r.BrandID, contactID: r.ContactID, email: r.Email}, nil
	}
	return nil, apperr.Invalid(fmt.Sprintf("unknown scope %q", ref.Scope))
}

// Email returns the address the ref's token was signed for.
func (s *Service) Email(ctx context.Context, ref tracking.Ref) (string, error) {
	r, err := s.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	return r.email, nil
}

// Unsubscribe opts the contact out. The contact service's status
// listeners cancel any running enrollments.
func (s *Service) Unsubscribe(ctx context.Context, ref tracking.Ref) error {
	r, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	_, err = s.contacts.Unsubscribe(ctx, r.brandID, r.contactID)
	return err
}

// Record applies one tracking event. It is called from the queue worker
// and the SQS consumer, both of which may deliver an event more than once.
func (s *Service) Record(ctx context.Context, evt domain.TrackingEvent) error {
	switch evt.Scope {
	case domain.ScopeSequence:
		return s.sequences.RecordEvent(ctx, &evt)
	case domain.ScopeCampaign:
		return s.campaigns.RecordEvent(ctx, &evt)
	}
	return apperr.Invalid(fmt.Sprintf("unknown scope %q", evt.Scope))
}
