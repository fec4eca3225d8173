// Package memory implements every service repository with mutex-guarded
// maps. It backs the dev server's --memory mode and the service and API
// tests. Values are copied on the way in and out so callers never share
// state with the store.
package memory

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/campaign"
	"github.com/ignite/mailcraft/internal/service/sequence"
)

// Store holds all tables. The typed repositories share it so cascades and
// cross-table reads (segment members, list deletes) stay consistent.
type Store struct {
	mu sync.RWMutex

	users       map[string]domain.User
	brands      map[string]domain.Brand
	lists       map[string]domain.List
	contacts    map[string]domain.Contact
	segments    map[string]segmentation.Segment
	members     map[string]map[string]bool
	sequences   map[string]domain.Sequence
	enrollments map[string]domain.Enrollment
	stepCounts  map[string]map[int]sequence.StepCounts
	templates   map[string]domain.Template
	campaigns   map[string]domain.Campaign
	recipients  map[string]map[string]campaign.Recipient
	events      map[string]domain.TrackingEvent
}

func NewStore() *Store {
	return &Store{
		users:       map[string]domain.User{},
		brands:      map[string]domain.Brand{},
		lists:       map[string]domain.List{},
		contacts:    map[string]domain.Contact{},
		segments:    map[string]segmentation.Segment{},
		members:     map[string]map[string]bool{},
		sequences:   map[string]domain.Sequence{},
		enrollments: map[string]domain.Enrollment{},
		stepCounts:  map[string]map[int]sequence.StepCounts{},
		templates:   map[string]domain.Template{},
		campaigns:   map[string]domain.Campaign{},
		recipients:  map[string]map[string]campaign.Recipient{},
		events:      map[string]domain.TrackingEvent{},
	}
}

// Repos bundles one repository per service.
type Repos struct {
	Users     *UserRepo
	Brands    *BrandRepo
	Contacts  *ContactRepo
	Segments  *SegmentRepo
	Sequences *SequenceRepo
	Templates *TemplateRepo
	Campaigns *CampaignRepo
}

// New returns repositories over a fresh store.
func New() *Repos {
	s := NewStore()
	return &Repos{
		Users:     &UserRepo{s: s},
		Brands:    &BrandRepo{s: s},
		Contacts:  &ContactRepo{s: s},
		Segments:  &SegmentRepo{s: s},
		Sequences: &SequenceRepo{s: s},
		Templates: &TemplateRepo{s: s},
		Campaigns: &CampaignRepo{s: s},
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneContact(c domain.Contact) domain.Contact {
	c.CustomFields = maps.Clone(c.CustomFields)
	c.Tags = slices.Clone(c.Tags)
	c.UnsubscribedAt = cloneTime(c.UnsubscribedAt)
	return c
}

func cloneSegment(s segmentation.Segment) segmentation.Segment {
	if s.Rules != nil {
		g := s.Rules.Clone()
		s.Rules = &g
	}
	s.CountedAt = cloneTime(s.CountedAt)
	return s
}

func cloneSequence(s domain.Sequence) domain.Sequence {
	s.Steps = slices.Clone(s.Steps)
	return s
}

func cloneEnrollment(e domain.Enrollment) domain.Enrollment {
	e.NextSendAt = cloneTime(e.NextSendAt)
	e.CompletedAt = cloneTime(e.CompletedAt)
	e.Progress = slices.Clone(e.Progress)
	for i := range e.Progress {
		p := &e.Progress[i]
		p.SentAt = cloneTime(p.SentAt)
		p.OpenedAt = cloneTime(p.OpenedAt)
		p.ClickedAt = cloneTime(p.ClickedAt)
	}
	return e
}

func cloneCampaign(c domain.Campaign) domain.Campaign {
	c.ListIDs = slices.Clone(c.ListIDs)
	c.SegmentIDs = slices.Clone(c.SegmentIDs)
	c.SentAt = cloneTime(c.SentAt)
	return c
}

// page slices items for limit/offset. A non-positive limit returns all.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// sortContacts orders by creation time, then ID.
func sortContacts(cs []domain.Contact) {
	slices.SortFunc(cs, func(a, b domain.Contact) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
