// Package compose turns stored content into ready-to-send queue jobs:
// Liquid rendering, tracking links, unsubscribe headers and the brand's
// From identity.
package compose

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/queue"
	"github.com/ignite/mailcraft/internal/render"
	"github.com/ignite/mailcraft/internal/tracking"
)

// JobSendEmail is the queue job type carrying a domain.SendJob.
const JobSendEmail = "send_email"

// Enqueuer is the producer side of the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any) (*queue.Job, error)
}

// Source is the content being sent.
type Source struct {
	Subject string
	Body    string
	Format  domain.TemplateFormat
}

type Composer struct {
	engine *render.Engine
	links  *tracking.Links
}

func New(engine *render.Engine, links *tracking.Links) *Composer {
	return &Composer{engine: engine, links: links}
}

// SendKey identifies one logical delivery for dedupe.
func SendKey(ref tracking.Ref) string {
	return fmt.Sprintf("%s:%s:%s:%d", ref.Scope, ref.ScopeID, ref.RecipientID, ref.Step)
}

// Tracked renders src for a contact with open, click and unsubscribe
// tracking bound to ref. email is the address the token is signed for.
func (c *Composer) Tracked(brand *domain.Brand, contact *domain.Contact, email string, src Source, ref tracking.Ref) (*domain.SendJob, error) {
	vars := render.ContactVars(contact)
	vars["email"] = email
	vars["brand_name"] = brand.Name
	vars["unsubscribe_url"] = c.links.UnsubscribeURL(ref, email)

	msg, err := c.engine.Message(src.Subject, src.Body, src.Format, vars)
	if err != nil {
		return nil, err
	}
	m := message(brand, email, msg)
	m.HTML = c.links.Inject(msg.HTML, ref, email)
	m.Headers = c.links.Headers(ref, email)
	m.Tags = map[string]string{
		"scope":    string(ref.Scope),
		"scope_id": ref.ScopeID,
	}
	return &domain.SendJob{
		Key:         SendKey(ref),
		Scope:       ref.Scope,
		ScopeID:     ref.ScopeID,
		RecipientID: ref.RecipientID,
		Step:        ref.Step,
		Message:     m,
	}, nil
}

// Transactional renders src with caller data and no tracking. key is the
// caller's idempotency key; an empty key makes every call a new send.
func (c *Composer) Transactional(brand *domain.Brand, to string, src Source, vars map[string]any, key string) (*domain.SendJob, error) {
	vars = render.Merge(vars, map[string]any{"email": to, "brand_name": brand.Name})
	msg, err := c.engine.Message(src.Subject, src.Body, src.Format, vars)
	if err != nil {
		return nil, err
	}
	m := message(brand, to, msg)
	if key == "" {
		key = "tx:" + m.ID
	}
	m.Tags = map[string]string{"scope": "transactional"}
	return &domain.SendJob{Key: key, Message: m}, nil
}

func message(brand *domain.Brand, to string, msg render.Message) domain.EmailMessage {
	return domain.EmailMessage{
		ID:        uuid.NewString(),
		BrandID:   brand.ID,
		To:        to,
		FromName:  brand.FromName,
		FromEmail: brand.FromEmail,
		ReplyTo:   brand.ReplyTo,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
	}
}
