package segmentation

import (
	"fmt"
	"strings"
)

const (
	// MaxDepth bounds group nesting.
	MaxDepth = 5
	// MaxConditions bounds the total number of conditions in one tree.
	MaxConditions = 100
)

// ValidateConditions checks a rule tree and returns one message per
// problem. An empty result means the tree compiles.
func ValidateConditions(g Group) []string {
	v := &validator{}
	v.group(g, "rules", 1)
	if v.count > MaxConditions {
		v.add("rules", fmt.Sprintf("too many conditions (%d > %d)", v.count, MaxConditions))
	}
	return v.errs
}

type validator struct {
	errs  []string
	count int
}

func (v *validator) add(path, msg string) {
	v.errs = append(v.errs, path+": "+msg)
}

func (v *validator) group(g Group, path string, depth int) {
	if depth > MaxDepth {
		v.add(path, fmt.Sprintf("nesting deeper than %d", MaxDepth))
		return
	}
	switch g.Logic {
	case LogicAnd, LogicOr, "":
	default:
		v.add(path, fmt.Sprintf("unknown logic %q", g.Logic))
	}
	for i, c := range g.Conditions {
		v.count++
		v.condition(c, fmt.Sprintf("%s.conditions[%d]", path, i))
	}
	for i, sub := range g.Groups {
		v.group(sub, fmt.Sprintf("%s.groups[%d]", path, i), depth+1)
	}
}

func (v *validator) condition(c Condition, path string) {
	md, ok := LookupOperator(c.Operator)
	if !ok {
		v.add(path, fmt.Sprintf("unknown operator %q", c.Operator))
		return
	}

	switch c.Type {
	case ConditionProfile, "":
		if _, ok := profileFields[c.Field]; !ok {
			v.add(path, fmt.Sprintf("unknown field %q", c.Field))
			return
		}
	case ConditionCustomField:
		if !fieldKey.MatchString(c.Field) {
			v.add(path, fmt.Sprintf("invalid custom field name %q", c.Field))
			return
		}
	case ConditionTag:
	default:
		v.add(path, fmt.Sprintf("unknown condition type %q", c.Type))
		return
	}

	ft, ok := fieldType(c)
	if !ok {
		v.add(path, fmt.Sprintf("unknown field type %q", c.FieldType))
		return
	}
	if !md.AppliesTo(ft) {
		v.add(path, fmt.Sprintf("operator %s does not apply to %s fields", c.Operator, ft))
		return
	}

	if md.RequiresValue && strings.TrimSpace(c.Value) == "" {
		v.add(path, "value is required")
		return
	}
	if md.RequiresSecondary && strings.TrimSpace(c.ValueSecondary) == "" {
		v.add(path, "value_secondary is required")
		return
	}

	switch c.Operator {
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := parseNumber(c.Value); !ok {
			v.add(path, fmt.Sprintf("value %q is not a number", c.Value))
		}
	case OpEquals, OpNotEquals:
		if ft == FieldNumber {
			if _, ok := parseNumber(c.Value); !ok {
				v.add(path, fmt.Sprintf("value %q is not a number", c.Value))
			}
		}
	case OpDateBefore, OpDateAfter:
		if _, ok := parseDate(c.Value); !ok {
			v.add(path, fmt.Sprintf("value %q is not a date", c.Value))
		}
	case OpDateBetween:
		from, ok1 := parseDate(c.Value)
		to, ok2 := parseDate(c.ValueSecondary)
		switch {
		case !ok1 || !ok2:
			v.add(path, "date range bounds must be dates")
		case to.Before(from):
			v.add(path, "date range ends before it starts")
		}
	case OpInLastDays, OpMoreThanDaysAgo:
		if _, ok := parseDays(c.Value); !ok {
			v.add(path, fmt.Sprintf("value %q is not a day count", c.Value))
		}
	}
}
