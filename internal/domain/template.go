package domain

import "time"

type TemplateFormat string

const (
	FormatHTML     TemplateFormat = "html"
	FormatMarkdown TemplateFormat = "markdown"
)

// Template is a transactional email. Subject and Body are Liquid sources;
// a markdown body is converted to HTML after rendering.
type Template struct {
	ID        string         `json:"id"`
	BrandID   string         `json:"brand_id"`
	Name      string         `json:"name"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Format    TemplateFormat `json:"format"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
