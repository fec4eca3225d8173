package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/brand"
)

type UserRepo struct{ s *Store }

func (r *UserRepo) CreateUser(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return account.ErrEmailTaken
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r *UserRepo) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, account.ErrNotFound
}

func (r *UserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *UserRepo) GetUserByGoogleID(_ context.Context, googleID string) (*domain.User, error) {
	if googleID == "" {
		return nil, account.ErrNotFound
	}
	return r.find(func(u domain.User) bool { return u.GoogleID == googleID })
}

func (r *UserRepo) UpdateUser(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return account.ErrNotFound
	}
	r.s.users[u.ID] = *u
	return nil
}

type BrandRepo struct{ s *Store }

func (r *BrandRepo) CreateBrand(_ context.Context, b *domain.Brand) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.brands[b.ID] = *b
	return nil
}

func (r *BrandRepo) GetBrand(_ context.Context, id string) (*domain.Brand, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.brands[id]
	if !ok {
		return nil, brand.ErrNotFound
	}
	return &b, nil
}

func (r *BrandRepo) ListBrands(_ context.Context, ownerID string) ([]domain.Brand, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Brand
	for _, b := range r.s.brands {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.Brand) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// DeleteBrand removes the brand and everything it owns.
func (r *BrandRepo) DeleteBrand(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.brands[id]; !ok {
		return brand.ErrNotFound
	}
	delete(r.s.brands, id)
	for lid, l := range r.s.lists {
		if l.BrandID == id {
			r.s.deleteListLocked(lid)
		}
	}
	for sid, seg := range r.s.segments {
		if seg.BrandID == id {
			delete(r.s.segments, sid)
			delete(r.s.members, sid)
		}
	}
	for sid, seq := range r.s.sequences {
		if seq.BrandID == id {
			delete(r.s.sequences, sid)
			delete(r.s.stepCounts, sid)
		}
	}
	for eid, e := range r.s.enrollments {
		if e.BrandID == id {
			delete(r.s.enrollments, eid)
		}
	}
	for tid, t := range r.s.templates {
		if t.BrandID == id {
			delete(r.s.templates, tid)
		}
	}
	for cid, c := range r.s.campaigns {
		if c.BrandID == id {
			delete(r.s.campaigns, cid)
			delete(r.s.recipients, cid)
		}
	}
	return nil
}

func (r *BrandRepo) CreateList(_ context.Context, l *domain.List) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lists[l.ID] = *l
	return nil
}

func (r *BrandRepo) GetList(_ context.Context, id string) (*domain.List, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.lists[id]
	if !ok {
		return nil, brand.ErrListNotFound
	}
	return &l, nil
}

func (r *BrandRepo) ListLists(_ context.Context, brandID string) ([]domain.List, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.List
	for _, l := range r.s.lists {
		if l.BrandID == brandID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b domain.List) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *BrandRepo) DeleteList(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lists[id]; !ok {
		return brand.ErrListNotFound
	}
	r.s.deleteListLocked(id)
	return nil
}

// deleteListLocked drops a list and its contacts. Caller holds mu.
func (s *Store) deleteListLocked(id string) {
	delete(s.lists, id)
	for cid, c := range s.contacts {
		if c.ListID == id {
			s.deleteContactLocked(cid)
		}
	}
}

func (s *Store) deleteContactLocked(id string) {
	delete(s.contacts, id)
	for _, m := range s.members {
		delete(m, id)
	}
}
