package domain

import (
	"sort"
	"strings"
	"time"
)

// ContactStatus is the mailability state of a contact.
type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
)

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactActive, ContactUnsubscribed, ContactBounced, ContactComplained:
		return true
	}
	return false
}

// Contact is a recipient in one list.
//
// Status and IsUnsubscribed describe the same fact; IsUnsubscribed is kept
// for older integrations and must be true exactly when Status is
// unsubscribed. Mutate through SetStatus/SetUnsubscribed, and call Reconcile
// on records read from storage written by older clients.
type Contact struct {
	ID             string         `json:"id"`
	BrandID        string         `json:"brand_id"`
	ListID         string         `json:"list_id"`
	Email          string         `json:"email"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Status         ContactStatus  `json:"status"`
	IsUnsubscribed bool           `json:"is_unsubscribed"`
	CustomFields   map[string]any `json:"custom_fields"`
	Tags           []string       `json:"tags"`
	Source         string         `json:"source,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	UnsubscribedAt *time.Time     `json:"unsubscribed_at,omitempty"`
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail is a cheap shape check: one @, non-empty local part, dotted domain.
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 1 || strings.Count(email, "@") != 1 || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// NormalizeTag is the canonical form used for storage and matching.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags returns the sorted set of non-empty canonical tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SetStatus moves the contact to s and keeps IsUnsubscribed in step.
func (c *Contact) SetStatus(s ContactStatus, at time.Time) {
	c.Status = s
	c.IsUnsubscribed = s == ContactUnsubscribed
	if s == ContactUnsubscribed {
		if c.UnsubscribedAt == nil {
			t := at
			c.UnsubscribedAt = &t
		}
	} else {
		c.UnsubscribedAt = nil
	}
	c.UpdatedAt = at
}

// SetUnsubscribed is the legacy boolean setter. Clearing the flag on a
// bounced or complained contact leaves that status alone.
func (c *Contact) SetUnsubscribed(v bool, at time.Time) {
	switch {
	case v:
		c.SetStatus(ContactUnsubscribed, at)
	case c.Status == ContactUnsubscribed || c.Status == "":
		c.SetStatus(ContactActive, at)
	default:
		c.IsUnsubscribed = false
		c.UpdatedAt = at
	}
}

// Reconcile repairs a record whose two status fields disagree. A set legacy
// flag wins over an active status; otherwise Status is authoritative.
func (c *Contact) Reconcile() {
	if c.Status == "" {
		c.Status = ContactActive
	}
	if c.IsUnsubscribed && c.Status == ContactActive {
		c.Status = ContactUnsubscribed
	}
	c.IsUnsubscribed = c.Status == ContactUnsubscribed
}

// Mailable reports whether the contact may receive marketing mail.
func (c *Contact) Mailable() bool {
	return c.Status == ContactActive && !c.IsUnsubscribed
}

// HasTag reports whether the contact carries tag (case-insensitive).
func (c *Contact) HasTag(tag string) bool {
	tag = NormalizeTag(tag)
	for _, t := range c.Tags {
		if NormalizeTag(t) == tag {
			return true
		}
	}
	return false
}

// AddTags merges tags into the contact's tag set.
func (c *Contact) AddTags(tags ...string) {
	c.Tags = NormalizeTags(append(append([]string{}, c.Tags...), tags...))
}

// RemoveTags drops tags from the contact's tag set.
func (c *Contact) RemoveTags(tags ...string) {
	drop := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		drop[NormalizeTag(t)] = struct{}{}
	}
	kept := c.Tags[:0:0]
	for _, t := range c.Tags {
		if _, ok := drop[NormalizeTag(t)]; !ok {
			kept = append(kept, t)
		}
	}
	c.Tags = NormalizeTags(kept)
}

// MergeFields copies fields into the contact's custom fields. Nil values
// delete the key.
func (c *Contact) MergeFields(fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	if c.CustomFields == nil {
		c.CustomFields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if v == nil {
			delete(c.CustomFields, k)
			continue
		}
		c.CustomFields[k] = v
	}
}
