package segmentation

import (
	"sort"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
)

// profileField maps a built-in contact attribute to its type, its column
// and an accessor used by the in-process evaluator.
type profileField struct {
	Type   FieldType
	Column string
	get    func(c *domain.Contact) any
}

var profileFields = map[string]profileField{
	"email":      {FieldString, "s.email", func(c *domain.Contact) any { return c.Email }},
	"first_name": {FieldString, "s.first_name", func(c *domain.Contact) any { return c.FirstName }},
	"last_name":  {FieldString, "s.last_name", func(c *domain.Contact) any { return c.LastName }},
	"status":     {FieldString, "s.status", func(c *domain.Contact) any { return string(c.Status) }},
	"source":     {FieldString, "s.source", func(c *domain.Contact) any { return c.Source }},
	"list_id":    {FieldString, "s.list_id::text", func(c *domain.Contact) any { return c.ListID }},
	"created_at": {FieldDate, "s.created_at", func(c *domain.Contact) any { return timeOrNil(c.CreatedAt) }},
	"updated_at": {FieldDate, "s.updated_at", func(c *domain.Contact) any { return timeOrNil(c.UpdatedAt) }},
	"unsubscribed_at": {FieldDate, "s.unsubscribed_at", func(c *domain.Contact) any {
		if c.UnsubscribedAt == nil {
			return nil
		}
		return *c.UnsubscribedAt
	}},
	"is_unsubscribed": {FieldBoolean, "s.is_unsubscribed", func(c *domain.Contact) any { return c.IsUnsubscribed }},
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ProfileFieldNames lists the built-in fields usable in profile conditions.
func ProfileFieldNames() []string {
	names := make([]string, 0, len(profileFields))
	for n := range profileFields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// fieldType resolves the effective type of a condition's field.
func fieldType(c Condition) (FieldType, bool) {
	switch c.Type {
	case ConditionProfile, "":
		f, ok := profileFields[c.Field]
		return f.Type, ok
	case ConditionCustomField:
		if c.FieldType == "" {
			return FieldString, true
		}
		switch c.FieldType {
		case FieldString, FieldNumber, FieldDate, FieldBoolean:
			return c.FieldType, true
		}
		return "", false
	case ConditionTag:
		return FieldTags, true
	}
	return "", false
}
