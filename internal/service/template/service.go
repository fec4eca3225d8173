// Package template manages transactional templates: stored Liquid
// subject and body pairs rendered with caller-supplied data.
package template

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/render"
)

type Service struct {
	repo     Repository
	brands   Brands
	engine   *render.Engine
	composer *compose.Composer
	queue    compose.Enqueuer
	now      func() time.Time
}

func NewService(repo Repository, brands Brands, engine *render.Engine, composer *compose.Composer, q compose.Enqueuer) *Service {
	return &Service{repo: repo, brands: brands, engine: engine, composer: composer, queue: q, now: time.Now}
}

type Input struct {
	Name    string                `json:"name"`
	Subject string                `json:"subject"`
	Body    string                `json:"body"`
	Format  domain.TemplateFormat `json:"format"`
}

func (s *Service) validate(in *Input) error {
	if in.Format == "" {
		in.Format = domain.FormatHTML
	}
	ve := apperr.NewValidation()
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("name", "is required")
	}
	if in.Format != domain.FormatHTML && in.Format != domain.FormatMarkdown {
		ve.Add("format", fmt.Sprintf("must be %q or %q", domain.FormatHTML, domain.FormatMarkdown))
	}
	if err := s.engine.Validate(in.Subject, in.Body); err != nil {
		if fe, ok := err.(*apperr.ValidationError); ok {
			for k, v := range fe.Fields {
				ve.Add(k, v)
			}
		} else {
			ve.Add("body", err.Error())
		}
	}
	return ve.Err()
}

func (s *Service) Create(ctx context.Context, brandID string, in Input) (*domain.Template, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &domain.Template{
		ID:        uuid.NewString(),
		BrandID:   brandID,
		Name:      strings.TrimSpace(in.Name),
		Subject:   in.Subject,
		Body:      in.Body,
		Format:    in.Format,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, brandID, id string) (*domain.Template, error) {
	return s.repo.Get(ctx, brandID, id)
}

func (s *Service) List(ctx context.Context, brandID string) ([]domain.Template, error) {
	return s.repo.List(ctx, brandID)
}

func (s *Service) Update(ctx context.Context, brandID, id string, in Input) (*domain.Template, error) {
	t, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	t.Name = strings.TrimSpace(in.Name)
	t.Subject = in.Subject
	t.Body = in.Body
	t.Format = in.Format
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, brandID, id string) error {
	return s.repo.Delete(ctx, brandID, id)
}

// Rendered is a preview of a template with data applied.
type Rendered struct {
	Subject  string           `json:"subject"`
	HTML     string           `json:"html"`
	Text     string           `json:"text"`
	Warnings []render.Warning `json:"warnings,omitempty"`
}

// Render previews a template. Variables the data does not provide are
// reported as warnings, not errors.
func (s *Service) Render(ctx context.Context, brandID, id string, data map[string]any) (*Rendered, error) {
	t, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	msg, err := s.engine.Message(t.Subject, t.Body, t.Format, data)
	if err != nil {
		return nil, err
	}
	warnings := append(render.MissingVariables(t.Subject, data), render.MissingVariables(t.Body, data)...)
	return &Rendered{Subject: msg.Subject, HTML: msg.HTML, Text: msg.Text, Warnings: warnings}, nil
}

// SendInput addresses one transactional message. Key makes retries of
// the same request idempotent.
type SendInput struct {
	To   string         `json:"to"`
	Data map[string]any `json:"data"`
	Key  string         `json:"idempotency_key"`
}

// Send renders the template for one recipient and enqueues it. It returns
// the queued message ID.
func (s *Service) Send(ctx context.Context, brandID, id string, in SendInput) (string, error) {
	to := domain.NormalizeEmail(in.To)
	if !domain.ValidEmail(to) {
		ve := apperr.NewValidation()
		ve.Add("to", "must be a valid email address")
		return "", ve
	}
	t, err := s.repo.Get(ctx, brandID, id)
	if err != nil {
		return "", err
	}
	brand, err := s.brands.Sender(ctx, brandID)
	if err != nil {
		return "", err
	}
	key := ""
	if in.Key != "" {
		key = "tx:" + brandID + ":" + in.Key
	}
	job, err := s.composer.Transactional(brand, to, compose.Source{Subject: t.Subject, Body: t.Body, Format: t.Format}, in.Data, key)
	if err != nil {
		return "", err
	}
	if _, err := s.queue.Enqueue(ctx, compose.JobSendEmail, job); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	logger.Info("template: send queued", "template_id", t.ID, "email", to, "message_id", job.Message.ID)
	return job.Message.ID, nil
}
