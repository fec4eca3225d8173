// Package app wires repositories, the queue and configuration into the
// service graph shared by the server, worker and CLI binaries.
package app

import (
	"database/sql"

	"github.com/ignite/mailcraft/internal/auth"
	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/render"
	"github.com/ignite/mailcraft/internal/repository/memory"
	"github.com/ignite/mailcraft/internal/repository/postgres"
	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/brand"
	"github.com/ignite/mailcraft/internal/service/campaign"
	"github.com/ignite/mailcraft/internal/service/contact"
	"github.com/ignite/mailcraft/internal/service/engagement"
	"github.com/ignite/mailcraft/internal/service/segment"
	"github.com/ignite/mailcraft/internal/service/sequence"
	"github.com/ignite/mailcraft/internal/service/template"
	"github.com/ignite/mailcraft/internal/tracking"
)

// Repos is one repository per service.
type Repos struct {
	Users     account.Repository
	Brands    brand.Repository
	Contacts  contact.Repository
	Segments  segment.Repository
	Sequences sequence.Repository
	Templates template.Repository
	Campaigns campaign.Repository
}

// MemoryRepos returns repositories over a fresh in-process store.
func MemoryRepos() Repos {
	m := memory.New()
	return Repos{
		Users:     m.Users,
		Brands:    m.Brands,
		Contacts:  m.Contacts,
		Segments:  m.Segments,
		Sequences: m.Sequences,
		Templates: m.Templates,
		Campaigns: m.Campaigns,
	}
}

// PostgresRepos returns repositories sharing one connection pool.
func PostgresRepos(db *sql.DB) Repos {
	p := postgres.New(db)
	return Repos{
		Users:     p.Users,
		Brands:    p.Brands,
		Contacts:  p.Contacts,
		Segments:  p.Segments,
		Sequences: p.Sequences,
		Templates: p.Templates,
		Campaigns: p.Campaigns,
	}
}

type Services struct {
	Accounts   *account.Service
	Brands     *brand.Service
	Contacts   *contact.Service
	Segments   *segment.Service
	Sequences  *sequence.Service
	Templates  *template.Service
	Campaigns  *campaign.Service
	Engagement *engagement.Service

	Tokens   *auth.Tokens
	Signer   *tracking.Signer
	Links    *tracking.Links
	Engine   *render.Engine
	Composer *compose.Composer
}

// NewServices builds the service graph. q receives send jobs from
// campaigns, templates and the sequence scheduler.
func NewServices(cfg *config.Config, r Repos, q compose.Enqueuer) *Services {
	s := &Services{
		Tokens: auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()),
		Signer: tracking.NewSigner(cfg.Tracking.Secret),
		Engine: render.New(),
	}
	s.Links = tracking.NewLinks(cfg.Tracking.BaseURL, s.Signer)
	s.Composer = compose.New(s.Engine, s.Links)

	s.Accounts = account.NewService(r.Users, s.Tokens)
	s.Brands = brand.NewService(r.Brands)
	s.Contacts = contact.NewService(r.Contacts, s.Brands)
	s.Segments = segment.NewService(r.Segments, s.Contacts)
	s.Sequences = sequence.NewService(r.Sequences, s.Contacts, s.Engine)
	s.Templates = template.NewService(r.Templates, s.Brands, s.Engine, s.Composer, q)
	s.Campaigns = campaign.NewService(r.Campaigns, s.Segments, s.Brands, s.Engine, s.Composer, q)
	s.Engagement = engagement.NewService(s.Sequences, s.Campaigns, s.Contacts)

	s.Contacts.OnStatusChange(s.Sequences.CancelForContact)
	return s
}
