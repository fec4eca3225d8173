// Package render turns Liquid sources into message bodies.
package render

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
)

// Warning flags a variable a template uses that the bindings lack.
type Warning struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// Message is a rendered subject and body pair.
type Message struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Engine renders Liquid templates with mail-oriented filters. Parsed
// templates are cached by source text.
type Engine struct {
	liquid *liquid.Engine
	md     goldmark.Markdown
	cache  sync.Map // source -> *liquid.Template
}

func New() *Engine {
	e := &Engine{
		liquid: liquid.NewEngine(),
		// raw HTML inside markdown is escaped because WithUnsafe is not set
		md: goldmark.New(goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps())),
	}
	registerFilters(e.liquid)
	return e
}

func registerFilters(eng *liquid.Engine) {
	// {{ first_name | default: "Friend" }}
	eng.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	eng.RegisterFilter("capitalize", func(s string) string {
		r := []rune(s)
		if len(r) == 0 {
			return s
		}
		return strings.ToUpper(string(r[:1])) + strings.ToLower(string(r[1:]))
	})
	eng.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			r := []rune(w)
			words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
		}
		return strings.Join(words, " ")
	})
	eng.RegisterFilter("truncate", func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		if n <= 3 {
			return string(r[:n])
		}
		return string(r[:n-3]) + "..."
	})
	eng.RegisterFilter("urlencode", url.QueryEscape)
	eng.RegisterFilter("escape", html.EscapeString)
	eng.RegisterFilter("email_domain", func(email string) string {
		if at := strings.LastIndex(email, "@"); at >= 0 {
			return email[at+1:]
		}
		return ""
	})
	eng.RegisterFilter("mask_email", func(email string) string {
		at := strings.LastIndex(email, "@")
		if at < 0 {
			return email
		}
		local := email[:at]
		if len(local) > 2 {
			local = local[:2]
		}
		return local + "***" + email[at:]
	})
}

func (e *Engine) parse(src string) (*liquid.Template, error) {
	if cached, ok := e.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := e.liquid.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("%w: template: %s", apperr.ErrInvalid, err.Error())
	}
	e.cache.Store(src, tpl)
	return tpl, nil
}

// Check reports syntax errors without rendering.
func (e *Engine) Check(src string) error {
	_, err := e.parse(src)
	return err
}

// Render executes src. Missing variables render as empty strings.
func (e *Engine) Render(src string, vars map[string]any) (string, error) {
	tpl, err := e.parse(src)
	if err != nil {
		return "", err
	}
	out, serr := tpl.RenderString(vars)
	if serr != nil {
		return "", fmt.Errorf("%w: render: %s", apperr.ErrInvalid, serr.Error())
	}
	return out, nil
}

// Strict renders like Render and also lists variables missing from vars.
func (e *Engine) Strict(src string, vars map[string]any) (string, []Warning, error) {
	out, err := e.Render(src, vars)
	if err != nil {
		return "", nil, err
	}
	return out, MissingVariables(src, vars), nil
}

// Markdown converts a markdown body to HTML.
func (e *Engine) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	return buf.String(), nil
}

// Message renders subject and body. Markdown bodies are rendered with
// Liquid first, then converted, so variables may produce markdown.
func (e *Engine) Message(subject, body string, format domain.TemplateFormat, vars map[string]any) (Message, error) {
	subj, err := e.Render(subject, vars)
	if err != nil {
		return Message{}, fmt.Errorf("subject: %w", err)
	}
	out, err := e.Render(body, vars)
	if err != nil {
		return Message{}, fmt.Errorf("body: %w", err)
	}
	text := out
	if format == domain.FormatMarkdown {
		if out, err = e.Markdown(out); err != nil {
			return Message{}, err
		}
	} else {
		text = PlainText(out)
	}
	return Message{Subject: strings.TrimSpace(subj), HTML: out, Text: text}, nil
}

var (
	varPattern   = regexp.MustCompile(`\{\{-?\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*(?:\||-?\}\})`)
	tagPattern   = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	blankPattern = regexp.MustCompile(`\n\s*\n+`)
)

// MissingVariables lists {{ var }} references that vars cannot resolve.
// Loop variables and other locally assigned names show up too; callers
// treat the result as advisory.
func MissingVariables(src string, vars map[string]any) []Warning {
	var out []Warning
	seen := map[string]bool{}
	for _, m := range varPattern.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if !lookup(vars, strings.Split(name, ".")) {
			out = append(out, Warning{Variable: name, Message: fmt.Sprintf("variable %q may not be defined for all recipients", name)})
		}
	}
	return out
}

func lookup(vars map[string]any, path []string) bool {
	var cur any = vars
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		if cur, ok = m[p]; !ok {
			return false
		}
	}
	return true
}

// PlainText is a rough text alternative for an HTML body.
func PlainText(s string) string {
	s = tagPattern.ReplaceAllString(s, "\n")
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankPattern.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// ContactVars are the bindings every contact-addressed message gets.
// Custom fields are exposed both nested and at the top level, with the
// built-in names taking precedence.
func ContactVars(c *domain.Contact) map[string]any {
	custom := make(map[string]any, len(c.CustomFields))
	vars := make(map[string]any, len(c.CustomFields)+8)
	for k, v := range c.CustomFields {
		custom[k] = v
		vars[k] = v
	}
	vars["email"] = c.Email
	vars["first_name"] = c.FirstName
	vars["last_name"] = c.LastName
	vars["full_name"] = strings.TrimSpace(c.FirstName + " " + c.LastName)
	vars["tags"] = append([]string(nil), c.Tags...)
	vars["custom"] = custom
	vars["contact_id"] = c.ID
	return vars
}

// Merge returns base overlaid with extra. Neither input is modified.
func Merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Validate checks both parts of a template before it is stored.
func (e *Engine) Validate(subject, body string) error {
	ve := apperr.NewValidation()
	if strings.TrimSpace(subject) == "" {
		ve.Add("subject", "must not be empty")
	} else if err := e.Check(subject); err != nil {
		ve.Add("subject", err.Error())
	}
	if strings.TrimSpace(body) == "" {
		ve.Add("body", "must not be empty")
	} else if err := e.Check(body); err != nil {
		ve.Add("body", err.Error())
	}
	return ve.Err()
}
