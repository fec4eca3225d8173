package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/segment"
)

type SegmentRepo struct{ s *Store }

func (r *SegmentRepo) Create(_ context.Context, seg *segmentation.Segment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.segments[seg.ID] = cloneSegment(*seg)
	return nil
}

func (r *SegmentRepo) Get(_ context.Context, brandID, id string) (*segmentation.Segment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seg, ok := r.s.segments[id]
	if !ok || seg.BrandID != brandID {
		return nil, segment.ErrNotFound
	}
	seg = cloneSegment(seg)
	return &seg, nil
}

func (r *SegmentRepo) List(_ context.Context, brandID string) ([]segmentation.Segment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []segmentation.Segment
	for _, seg := range r.s.segments {
		if seg.BrandID == brandID {
			out = append(out, cloneSegment(seg))
		}
	}
	slices.SortFunc(out, func(a, b segmentation.Segment) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *SegmentRepo) Update(_ context.Context, seg *segmentation.Segment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.segments[seg.ID]
	if !ok || old.BrandID != seg.BrandID {
		return segment.ErrNotFound
	}
	r.s.segments[seg.ID] = cloneSegment(*seg)
	return nil
}

func (r *SegmentRepo) Delete(_ context.Context, brandID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seg, ok := r.s.segments[id]
	if !ok || seg.BrandID != brandID {
		return segment.ErrNotFound
	}
	delete(r.s.segments, id)
	delete(r.s.members, id)
	return nil
}

func (r *SegmentRepo) SetCount(_ context.Context, id string, count int, hash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seg, ok := r.s.segments[id]
	if !ok {
		return segment.ErrNotFound
	}
	seg.CachedCount = count
	seg.RulesHash = hash
	seg.CountedAt = &at
	r.s.segments[id] = seg
	return nil
}

func (r *SegmentRepo) AddMembers(_ context.Context, segmentID string, contactIDs []string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.segments[segmentID]; !ok {
		return 0, segment.ErrNotFound
	}
	m := r.s.members[segmentID]
	if m == nil {
		m = map[string]bool{}
		r.s.members[segmentID] = m
	}
	n := 0
	for _, id := range contactIDs {
		if _, exists := r.s.contacts[id]; !exists || m[id] {
			continue
		}
		m[id] = true
		n++
	}
	return n, nil
}

func (r *SegmentRepo) RemoveMembers(_ context.Context, segmentID string, contactIDs []string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.members[segmentID]
	n := 0
	for _, id := range contactIDs {
		if m[id] {
			delete(m, id)
			n++
		}
	}
	return n, nil
}

func (r *SegmentRepo) Members(_ context.Context, segmentID string, mailableOnly bool, limit, offset int) ([]domain.Contact, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seg, ok := r.s.segments[segmentID]
	if !ok {
		return nil, 0, segment.ErrNotFound
	}
	var out []domain.Contact
	for id := range r.s.members[segmentID] {
		c, ok := r.s.contacts[id]
		if !ok || c.BrandID != seg.BrandID {
			continue
		}
		if seg.ListID != "" && c.ListID != seg.ListID {
			continue
		}
		c = cloneContact(c)
		c.Reconcile()
		if mailableOnly && !c.Mailable() {
			continue
		}
		out = append(out, c)
	}
	sortContacts(out)
	return page(out, limit, offset), len(out), nil
}
