package memory

import (
	"context"
	"strings"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/contact"
)

type ContactRepo struct{ s *Store }

// emailTakenLocked reports whether another contact in listID uses email.
func (s *Store) emailTakenLocked(listID, email, exceptID string) bool {
	for _, c := range s.contacts {
		if c.ListID == listID && c.Email == email && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *ContactRepo) Create(_ context.Context, c *domain.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.emailTakenLocked(c.ListID, c.Email, "") {
		return contact.ErrDuplicate
	}
	r.s.contacts[c.ID] = cloneContact(*c)
	return nil
}

func (r *ContactRepo) Get(_ context.Context, brandID, id string) (*domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contacts[id]
	if !ok || c.BrandID != brandID {
		return nil, contact.ErrNotFound
	}
	c = cloneContact(c)
	return &c, nil
}

func (r *ContactRepo) GetByEmail(_ context.Context, listID, email string) (*domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.contacts {
		if c.ListID == listID && c.Email == email {
			c = cloneContact(c)
			return &c, nil
		}
	}
	return nil, contact.ErrNotFound
}

func (r *ContactRepo) snapshot(brandID string) []domain.Contact {
	var out []domain.Contact
	for _, c := range r.s.contacts {
		if c.BrandID == brandID {
			out = append(out, cloneContact(c))
		}
	}
	sortContacts(out)
	return out
}

func (r *ContactRepo) List(_ context.Context, brandID string, f contact.ListFilter) ([]domain.Contact, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []domain.Contact
	for _, c := range r.snapshot(brandID) {
		if f.ListID != "" && c.ListID != f.ListID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Tag != "" && !c.HasTag(f.Tag) {
			continue
		}
		if search != "" && !strings.Contains(c.Email, search) &&
			!strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName), search) {
			continue
		}
		matched = append(matched, c)
	}
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (r *ContactRepo) Update(_ context.Context, c *domain.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.contacts[c.ID]
	if !ok || old.BrandID != c.BrandID {
		return contact.ErrNotFound
	}
	if r.s.emailTakenLocked(c.ListID, c.Email, c.ID) {
		return contact.ErrDuplicate
	}
	r.s.contacts[c.ID] = cloneContact(*c)
	return nil
}

func (r *ContactRepo) Delete(_ context.Context, brandID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contacts[id]
	if !ok || c.BrandID != brandID {
		return contact.ErrNotFound
	}
	r.s.deleteContactLocked(id)
	return nil
}

// Match evaluates the compiled predicate over the brand's contacts.
func (r *ContactRepo) Match(_ context.Context, q segmentation.MatchQuery) ([]domain.Contact, int, error) {
	r.s.mu.RLock()
	all := r.snapshot(q.BrandID)
	r.s.mu.RUnlock()
	for i := range all {
		all[i].Reconcile()
	}
	return q.Filter(all)
}
