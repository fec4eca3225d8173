package segmentation

import (
	"github.com/ignite/mailcraft/internal/domain"
)

// Audience accumulates recipients from several lists and segments. The
// first contact seen for an address wins; later duplicates and contacts
// that cannot receive mail are counted and dropped.
type Audience struct {
	seen       map[string]struct{}
	contacts   []domain.Contact
	duplicates int
	excluded   int
}

// NewAudience returns an empty audience.
func NewAudience() *Audience {
	return &Audience{seen: make(map[string]struct{})}
}

// Add merges contacts in order and returns how many were new.
func (a *Audience) Add(contacts ...domain.Contact) int {
	added := 0
	for _, c := range contacts {
		if !c.Mailable() {
			a.excluded++
			continue
		}
		key := domain.NormalizeEmail(c.Email)
		if _, dup := a.seen[key]; dup {
			a.duplicates++
			continue
		}
		a.seen[key] = struct{}{}
		a.contacts = append(a.contacts, c)
		added++
	}
	return added
}

// Contains reports whether email is already part of the audience.
func (a *Audience) Contains(email string) bool {
	_, ok := a.seen[domain.NormalizeEmail(email)]
	return ok
}

func (a *Audience) Contacts() []domain.Contact { return a.contacts }
func (a *Audience) Len() int                   { return len(a.contacts) }

// Stats reports how many contacts were dropped as duplicates or as not
// mailable.
func (a *Audience) Stats() (duplicates, excluded int) {
	return a.duplicates, a.excluded
}
