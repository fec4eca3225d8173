package segment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/export"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/segmentation"
)

const (
	defaultSample  = 10
	maxSample      = 100
	resolvePage    = 1000
	resolveWorkers = 4
	maxMembersEdit = 1000
)

type Service struct {
	repo     Repository
	contacts Contacts
	now      func() time.Time
}

func NewService(repo Repository, contacts Contacts) *Service {
	return &Service{repo: repo, contacts: contacts, now: time.Now}
}

// Input creates or replaces a segment definition.
type Input struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Kind        segmentation.Kind   `json:"kind"`
	ListID      string              `json:"list_id"`
	Rules       *segmentation.Group `json:"rules"`
}

// rulesValidation turns compiler problems into per-path field errors.
func rulesValidation(ve *apperr.ValidationError, g segmentation.Group) {
	for _, p := range segmentation.ValidateConditions(g) {
		path, msg, ok := strings.Cut(p, ": ")
		if !ok {
			path, msg = "rules", p
		}
		ve.Add(path, msg)
	}
}

func (in *Input) validate() error {
	ve := apperr.NewValidation()
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("name", "is required")
	}
	if in.Kind == "" {
		in.Kind = segmentation.KindDynamic
	}
	switch in.Kind {
	case segmentation.KindDynamic:
		if in.Rules == nil {
			ve.Add("rules", "dynamic segments need rules")
		} else {
			rulesValidation(ve, *in.Rules)
		}
	case segmentation.KindStatic:
		if in.Rules != nil {
			ve.Add("rules", "static segments do not take rules")
		}
	default:
		ve.Add("kind", fmt.Sprintf("unknown kind %q", in.Kind))
	}
	return ve.Err()
}

func (s *Service) Create(ctx context.Context, brandID string, in Input) (*segmentation.Segment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	seg := &segmentation.Segment{
		ID:          uuid.NewString(),
		BrandID:     brandID,
		ListID:      in.ListID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Kind:        in.Kind,
		Rules:       in.Rules,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if seg.Rules != nil {
		seg.RulesHash = segmentation.HashRules(*seg.Rules)
	}
	if err := s.repo.Create(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *Service) Get(ctx context.Context, brandID, id string) (*segmentation.Segment, error) {
	return s.repo.Get(ctx, brandID, id)
}

func (s *Service) List(ctx context.Context, brandID string) ([]segmentation.Segment, error) {
	return s.repo.List(ctx, brandID)
}

// Update replaces the definition. The kind cannot change; a rules change
// drops the cached count.
func (s *Service) Update(ctx context.Context, brandID, id string, in Input) (*segmentation.Segment, error) {
	seg, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = seg.Kind
	}
	if in.Kind != seg.Kind {
		return nil, apperr.Invalid("segment kind cannot change")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	seg.Name = strings.TrimSpace(in.Name)
	seg.Description = in.Description
	seg.ListID = in.ListID
	if in.Rules != nil {
		hash := segmentation.HashRules(*in.Rules)
		if hash != seg.RulesHash {
			seg.CachedCount = 0
			seg.CountedAt = nil
		}
		seg.Rules = in.Rules
		seg.RulesHash = hash
	}
	seg.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *Service) Delete(ctx context.Context, brandID, id string) error {
	return s.repo.Delete(ctx, brandID, id)
}

// Preview evaluates rules without saving them.
func (s *Service) Preview(ctx context.Context, brandID, listID string, rules segmentation.Group, sample int) (*segmentation.Preview, error) {
	ve := apperr.NewValidation()
	rulesValidation(ve, rules)
	if err := ve.Err(); err != nil {
		return nil, err
	}
	if sample <= 0 {
		sample = defaultSample
	}
	if sample > maxSample {
		sample = maxSample
	}
	page, total, err := s.contacts.Match(ctx, segmentation.MatchQuery{
		BrandID: brandID, ListID: listID, Rules: rules, Now: s.now(), Limit: sample,
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = []domain.Contact{}
	}
	return &segmentation.Preview{Count: total, Sample: page, Hash: segmentation.HashRules(rules)}, nil
}

func (s *Service) page(ctx context.Context, seg *segmentation.Segment, mailableOnly bool, limit, offset int) ([]domain.Contact, int, error) {
	if seg.Kind == segmentation.KindStatic {
		return s.repo.Members(ctx, seg.ID, mailableOnly, limit, offset)
	}
	var rules segmentation.Group
	if seg.Rules != nil {
		rules = *seg.Rules
	}
	return s.contacts.Match(ctx, segmentation.MatchQuery{
		BrandID: seg.BrandID, ListID: seg.ListID, Rules: rules, MailableOnly: mailableOnly,
		Now: s.now(), Limit: limit, Offset: offset,
	})
}

// Contacts pages through a segment's current members.
func (s *Service) Contacts(ctx context.Context, brandID, id string, limit, offset int) ([]domain.Contact, int, error) {
	seg, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > resolvePage {
		limit = resolvePage
	}
	return s.page(ctx, seg, false, limit, offset)
}

// RefreshCount recomputes and stores the member count.
func (s *Service) RefreshCount(ctx context.Context, brandID, id string) (*segmentation.Segment, error) {
	seg, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	_, total, err := s.page(ctx, seg, false, 1, 0)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.repo.SetCount(ctx, seg.ID, total, seg.RulesHash, now); err != nil {
		return nil, err
	}
	seg.CachedCount = total
	seg.CountedAt = &now
	return seg, nil
}

// RefreshAll recounts every segment of a brand, static ones included since
// member changes do not touch the cached count. Failures are logged and
// skipped.
func (s *Service) RefreshAll(ctx context.Context, brandID string) (int, error) {
	segs, err := s.repo.List(ctx, brandID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, seg := range segs {
		if _, err := s.RefreshCount(ctx, brandID, seg.ID); err != nil {
			logger.Warn("segment: refresh count", "segment_id", seg.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) staticSegment(ctx context.Context, brandID, id string, contactIDs []string) (*segmentation.Segment, error) {
	seg, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	if seg.Kind != segmentation.KindStatic {
		return nil, ErrNotStatic
	}
	if len(contactIDs) == 0 || len(contactIDs) > maxMembersEdit {
		return nil, apperr.Invalid(fmt.Sprintf("between 1 and %d contact ids required", maxMembersEdit))
	}
	return seg, nil
}

// AddMembers adds contacts of the same brand to a static segment.
func (s *Service) AddMembers(ctx context.Context, brandID, id string, contactIDs []string) (int, error) {
	seg, err := s.staticSegment(ctx, brandID, id, contactIDs)
	if err != nil {
		return 0, err
	}
	for _, cid := range contactIDs {
		c, err := s.contacts.Get(ctx, brandID, cid)
		if err != nil {
			return 0, err
		}
		if seg.ListID != "" && c.ListID != seg.ListID {
			return 0, apperr.Invalid(fmt.Sprintf("contact %s is not in the segment's list", cid))
		}
	}
	return s.repo.AddMembers(ctx, seg.ID, contactIDs)
}

func (s *Service) RemoveMembers(ctx context.Context, brandID, id string, contactIDs []string) (int, error) {
	seg, err := s.staticSegment(ctx, brandID, id, contactIDs)
	if err != nil {
		return 0, err
	}
	return s.repo.RemoveMembers(ctx, seg.ID, contactIDs)
}

// all drains every mailable member of a source.
func (s *Service) all(ctx context.Context, fetch func(limit, offset int) ([]domain.Contact, int, error)) ([]domain.Contact, error) {
	var out []domain.Contact
	for offset := 0; ; offset += resolvePage {
		page, _, err := fetch(resolvePage, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < resolvePage {
			return out, nil
		}
	}
}

// Resolve builds the deduplicated, mailable audience for a send. Sources
// are fetched concurrently and merged in argument order, lists before
// segments, so the first source to name an address wins.
func (s *Service) Resolve(ctx context.Context, brandID string, listIDs, segmentIDs []string) (*segmentation.Audience, error) {
	if len(listIDs) == 0 && len(segmentIDs) == 0 {
		return nil, apperr.Invalid("no lists or segments given")
	}
	results := make([][]domain.Contact, len(listIDs)+len(segmentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveWorkers)
	for i, listID := range listIDs {
		g.Go(func() error {
			got, err := s.all(gctx, func(limit, offset int) ([]domain.Contact, int, error) {
				return s.contacts.Match(gctx, segmentation.MatchQuery{
					BrandID: brandID, ListID: listID, MailableOnly: true, Now: s.now(), Limit: limit, Offset: offset,
				})
			})
			if err != nil {
				return fmt.Errorf("list %s: %w", listID, err)
			}
			results[i] = got
			return nil
		})
	}
	for j, segID := range segmentIDs {
		g.Go(func() error {
			seg, err := s.repo.Get(gctx, brandID, segID)
			if err != nil {
				return err
			}
			got, err := s.all(gctx, func(limit, offset int) ([]domain.Contact, int, error) {
				return s.page(gctx, seg, true, limit, offset)
			})
			if err != nil {
				return fmt.Errorf("segment %s: %w", segID, err)
			}
			results[len(listIDs)+j] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	aud := segmentation.NewAudience()
	for _, r := range results {
		aud.Add(r...)
	}
	dups, excluded := aud.Stats()
	logger.Debug("segment: audience resolved", "brand_id", brandID, "recipients", aud.Len(), "duplicates", dups, "excluded", excluded)
	return aud, nil
}

// Export writes a segment's members as CSV.
func (s *Service) Export(ctx context.Context, brandID, id string, w io.Writer) (int, error) {
	seg, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return 0, err
	}
	all, err := s.all(ctx, func(limit, offset int) ([]domain.Contact, int, error) {
		return s.page(ctx, seg, false, limit, offset)
	})
	if err != nil {
		return 0, err
	}
	return export.Contacts(w, all)
}

