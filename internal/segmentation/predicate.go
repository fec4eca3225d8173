package segmentation

import (
	"errors"
	"strings"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
)

// Predicate reports whether a contact matches a compiled rule tree. now
// anchors relative date operators.
type Predicate func(c *domain.Contact, now time.Time) bool

// ErrInvalidRules wraps validation problems returned by Compile.
var ErrInvalidRules = errors.New("invalid segment rules")

// RulesError lists the problems found in a rule tree.
type RulesError struct {
	Problems []string
}

func (e *RulesError) Error() string {
	return ErrInvalidRules.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *RulesError) Unwrap() error { return ErrInvalidRules }

// Compile validates g and turns it into a Predicate. The result holds no
// references to g.
func Compile(g Group) (Predicate, error) {
	if problems := ValidateConditions(g); len(problems) > 0 {
		return nil, &RulesError{Problems: problems}
	}
	return compileGroup(g), nil
}

// MatchAll is the predicate of an empty rule tree.
func MatchAll(*domain.Contact, time.Time) bool { return true }

func compileGroup(g Group) Predicate {
	parts := make([]Predicate, 0, len(g.Conditions)+len(g.Groups))
	for _, c := range g.Conditions {
		parts = append(parts, compileCondition(c))
	}
	for _, sub := range g.Groups {
		parts = append(parts, compileGroup(sub))
	}

	var p Predicate
	switch {
	case len(parts) == 0:
		p = MatchAll
	case g.Logic == LogicOr:
		p = func(c *domain.Contact, now time.Time) bool {
			for _, part := range parts {
				if part(c, now) {
					return true
				}
			}
			return false
		}
	default:
		p = func(c *domain.Contact, now time.Time) bool {
			for _, part := range parts {
				if !part(c, now) {
					return false
				}
			}
			return true
		}
	}
	if g.Negated {
		inner := p
		p = func(c *domain.Contact, now time.Time) bool { return !inner(c, now) }
	}
	return p
}

func compileCondition(cond Condition) Predicate {
	if cond.Type == ConditionTag {
		return compileTags(cond)
	}

	get := accessor(cond)
	ft, _ := fieldType(cond)

	switch cond.Operator {
	case OpIsEmpty:
		return func(c *domain.Contact, _ time.Time) bool { return isEmpty(get(c)) }
	case OpIsNotEmpty:
		return func(c *domain.Contact, _ time.Time) bool { return !isEmpty(get(c)) }
	}

	switch ft {
	case FieldNumber:
		return compileNumber(cond, get)
	case FieldDate:
		return compileDate(cond, get)
	case FieldBoolean:
		want := cond.Operator == OpIsTrue
		return func(c *domain.Contact, _ time.Time) bool {
			s, ok := scalarString(get(c))
			if !ok {
				return false
			}
			s = strings.ToLower(s)
			if want {
				return s == "true"
			}
			return s == "false"
		}
	}
	return compileString(cond, get)
}

func accessor(cond Condition) func(*domain.Contact) any {
	if cond.Type == ConditionCustomField {
		key := cond.Field
		return func(c *domain.Contact) any {
			if c.CustomFields == nil {
				return nil
			}
			return c.CustomFields[key]
		}
	}
	return profileFields[cond.Field].get
}

func isEmpty(v any) bool {
	s, ok := scalarString(v)
	return !ok || s == ""
}

// compileString treats a missing value as the empty string, which matches
// COALESCE(x, '') on the SQL side.
func compileString(cond Condition, get func(*domain.Contact) any) Predicate {
	want := strings.ToLower(cond.Value)
	text := func(c *domain.Contact) string {
		s, _ := scalarString(get(c))
		return strings.ToLower(s)
	}
	switch cond.Operator {
	case OpEquals:
		return func(c *domain.Contact, _ time.Time) bool { return text(c) == want }
	case OpNotEquals:
		return func(c *domain.Contact, _ time.Time) bool { return text(c) != want }
	case OpContains:
		return func(c *domain.Contact, _ time.Time) bool { return strings.Contains(text(c), want) }
	case OpNotContains:
		return func(c *domain.Contact, _ time.Time) bool { return !strings.Contains(text(c), want) }
	case OpStartsWith:
		return func(c *domain.Contact, _ time.Time) bool { return strings.HasPrefix(text(c), want) }
	case OpEndsWith:
		return func(c *domain.Contact, _ time.Time) bool { return strings.HasSuffix(text(c), want) }
	}
	return never
}

// compileNumber never matches a missing or non-numeric value, including for
// not_equals.
func compileNumber(cond Condition, get func(*domain.Contact) any) Predicate {
	want, _ := parseNumber(cond.Value)
	cmp := func(op func(a float64) bool) Predicate {
		return func(c *domain.Contact, _ time.Time) bool {
			n, ok := valueNumber(get(c))
			return ok && op(n)
		}
	}
	switch cond.Operator {
	case OpEquals:
		return cmp(func(a float64) bool { return a == want })
	case OpNotEquals:
		return cmp(func(a float64) bool { return a != want })
	case OpGt:
		return cmp(func(a float64) bool { return a > want })
	case OpGte:
		return cmp(func(a float64) bool { return a >= want })
	case OpLt:
		return cmp(func(a float64) bool { return a < want })
	case OpLte:
		return cmp(func(a float64) bool { return a <= want })
	}
	return never
}

// compileDate never matches a missing or unparseable value.
func compileDate(cond Condition, get func(*domain.Contact) any) Predicate {
	at := func(c *domain.Contact) (time.Time, bool) { return valueTime(get(c)) }
	switch cond.Operator {
	case OpDateBefore:
		bound, _ := parseDate(cond.Value)
		return func(c *domain.Contact, _ time.Time) bool {
			t, ok := at(c)
			return ok && t.Before(bound)
		}
	case OpDateAfter:
		bound, _ := parseDate(cond.Value)
		return func(c *domain.Contact, _ time.Time) bool {
			t, ok := at(c)
			return ok && t.After(bound)
		}
	case OpDateBetween:
		from, _ := parseDate(cond.Value)
		to, exclusive, _ := parseUpperDate(cond.ValueSecondary)
		return func(c *domain.Contact, _ time.Time) bool {
			t, ok := at(c)
			if !ok || t.Before(from) {
				return false
			}
			if exclusive {
				return t.Before(to)
			}
			return !t.After(to)
		}
	case OpInLastDays:
		days, _ := parseDays(cond.Value)
		return func(c *domain.Contact, now time.Time) bool {
			t, ok := at(c)
			return ok && !t.Before(now.AddDate(0, 0, -days))
		}
	case OpMoreThanDaysAgo:
		days, _ := parseDays(cond.Value)
		return func(c *domain.Contact, now time.Time) bool {
			t, ok := at(c)
			return ok && t.Before(now.AddDate(0, 0, -days))
		}
	}
	return never
}

// compileTags applies set semantics. With no values, "any" matches nothing
// while "all" and "none" match everything.
func compileTags(cond Condition) Predicate {
	switch cond.Operator {
	case OpIsEmpty:
		return func(c *domain.Contact, _ time.Time) bool { return len(c.Tags) == 0 }
	case OpIsNotEmpty:
		return func(c *domain.Contact, _ time.Time) bool { return len(c.Tags) > 0 }
	case OpTagHas:
		tag := domain.NormalizeTag(cond.Value)
		return func(c *domain.Contact, _ time.Time) bool { return c.HasTag(tag) }
	case OpTagNotHas:
		tag := domain.NormalizeTag(cond.Value)
		return func(c *domain.Contact, _ time.Time) bool { return !c.HasTag(tag) }
	}

	want := domain.NormalizeTags(cond.Values)
	switch cond.Operator {
	case OpContainsAny:
		return func(c *domain.Contact, _ time.Time) bool {
			for _, t := range want {
				if c.HasTag(t) {
					return true
				}
			}
			return false
		}
	case OpContainsAll:
		return func(c *domain.Contact, _ time.Time) bool {
			for _, t := range want {
				if !c.HasTag(t) {
					return false
				}
			}
			return true
		}
	case OpNotContainsAny:
		return func(c *domain.Contact, _ time.Time) bool {
			for _, t := range want {
				if c.HasTag(t) {
					return false
				}
			}
			return true
		}
	}
	return never
}

func never(*domain.Contact, time.Time) bool { return false }
