package postgres

import (
	"database/sql"

	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/brand"
	"github.com/ignite/mailcraft/internal/service/campaign"
	"github.com/ignite/mailcraft/internal/service/contact"
	"github.com/ignite/mailcraft/internal/service/segment"
	"github.com/ignite/mailcraft/internal/service/sequence"
	"github.com/ignite/mailcraft/internal/service/template"
)

var (
	_ account.Repository  = (*UserRepo)(nil)
	_ brand.Repository    = (*BrandRepo)(nil)
	_ contact.Repository  = (*ContactRepo)(nil)
	_ segment.Repository  = (*SegmentRepo)(nil)
	_ sequence.Repository = (*SequenceRepo)(nil)
	_ template.Repository = (*TemplateRepo)(nil)
	_ campaign.Repository = (*CampaignRepo)(nil)
)

// Repos bundles one repository per service over a shared pool.
type Repos struct {
	Users     *UserRepo
	Brands    *BrandRepo
	Contacts  *ContactRepo
	Segments  *SegmentRepo
	Sequences *SequenceRepo
	Templates *TemplateRepo
	Campaigns *CampaignRepo
}

func New(db *sql.DB) *Repos {
	return &Repos{
		Users:     NewUserRepo(db),
		Brands:    NewBrandRepo(db),
		Contacts:  NewContactRepo(db),
		Segments:  NewSegmentRepo(db),
		Sequences: NewSequenceRepo(db),
		Templates: NewTemplateRepo(db),
		Campaigns: NewCampaignRepo(db),
	}
}
