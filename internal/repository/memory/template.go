package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/service/template"
)

type TemplateRepo struct{ s *Store }

func (r *TemplateRepo) Create(_ context.Context, t *domain.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.templates[t.ID] = *t
	return nil
}

func (r *TemplateRepo) Get(_ context.Context, brandID, id string) (*domain.Template, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.templates[id]
	if !ok || t.BrandID != brandID {
		return nil, template.ErrNotFound
	}
	return &t, nil
}

func (r *TemplateRepo) List(_ context.Context, brandID string) ([]domain.Template, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Template
	for _, t := range r.s.templates {
		if t.BrandID == brandID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Template) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *TemplateRepo) Update(_ context.Context, t *domain.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.templates[t.ID]
	if !ok || old.BrandID != t.BrandID {
		return template.ErrNotFound
	}
	r.s.templates[t.ID] = *t
	return nil
}

func (r *TemplateRepo) Delete(_ context.Context, brandID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok || t.BrandID != brandID {
		return template.ErrNotFound
	}
	delete(r.s.templates, id)
	return nil
}
