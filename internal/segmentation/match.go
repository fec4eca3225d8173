package segmentation

import (
	"time"

	"github.com/ignite/mailcraft/internal/domain"
)

// MatchQuery asks a contact store for the contacts of one brand that
// satisfy Rules. Postgres stores compile it with QueryBuilder; in-memory
// stores with Compile. Both must return the same set.
type MatchQuery struct {
	BrandID      string
	ListID       string
	Rules        Group
	MailableOnly bool
	Now          time.Time
	Limit        int
	Offset       int
}

// Builder returns a QueryBuilder configured from q.
func (q MatchQuery) Builder() *QueryBuilder {
	qb := NewQueryBuilder(q.BrandID).SetListID(q.ListID).SetMailableOnly(q.MailableOnly)
	if !q.Now.IsZero() {
		qb.SetNow(q.Now)
	}
	return qb
}

// Filter applies q to contacts in order, honouring Limit and Offset, and
// returns the page plus the total match count.
func (q MatchQuery) Filter(contacts []domain.Contact) ([]domain.Contact, int, error) {
	pred, err := Compile(q.Rules)
	if err != nil {
		return nil, 0, err
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var out []domain.Contact
	total := 0
	for i := range contacts {
		c := &contacts[i]
		if c.BrandID != q.BrandID || (q.ListID != "" && c.ListID != q.ListID) {
			continue
		}
		if q.MailableOnly && !c.Mailable() {
			continue
		}
		if !pred(c, now) {
			continue
		}
		total++
		if total <= q.Offset || (q.Limit > 0 && len(out) >= q.Limit) {
			continue
		}
		out = append(out, *c)
	}
	return out, total, nil
}

// ValidFieldKey reports whether k may be used as a custom field name.
func ValidFieldKey(k string) bool { return fieldKey.MatchString(k) }
