// Package segmentation compiles declarative segment rules into contact
// predicates and Postgres queries.
//
// A rule tree is a Group of Conditions joined by AND or OR, with nested
// groups and optional negation. The same tree compiles to an in-process
// Predicate (Compile) and to a parameterised WHERE clause (QueryBuilder);
// both follow one operator table so a segment counts the same whichever
// store evaluates it.
package segmentation

import (
	"slices"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
)

// ==========================================
// OPERATORS
// ==========================================

// Operator represents a comparison operator
type Operator string

const (
	// String operators
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"

	// Numeric operators
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"

	// Date operators
	OpDateBefore      Operator = "date_before"
	OpDateAfter       Operator = "date_after"
	OpDateBetween     Operator = "date_between"
	OpInLastDays      Operator = "in_last_days"
	OpMoreThanDaysAgo Operator = "more_than_days_ago"

	// Tag set operators
	OpTagHas         Operator = "tag_has"
	OpTagNotHas      Operator = "tag_not_has"
	OpContainsAny    Operator = "contains_any"
	OpContainsAll    Operator = "contains_all"
	OpNotContainsAny Operator = "not_contains_any"

	// Boolean operators
	OpIsTrue  Operator = "is_true"
	OpIsFalse Operator = "is_false"
)

// OperatorMetadata describes an operator for rule editors.
type OperatorMetadata struct {
	Operator          Operator    `json:"operator"`
	Label             string      `json:"label"`
	Description       string      `json:"description"`
	ApplicableTypes   []FieldType `json:"applicable_types"`
	RequiresValue     bool        `json:"requires_value"`
	RequiresSecondary bool        `json:"requires_secondary"`
	RequiresArray     bool        `json:"requires_array"`
}

var (
	stringTypes = []FieldType{FieldString}
	eqTypes     = []FieldType{FieldString, FieldNumber}
	numberTypes = []FieldType{FieldNumber}
	dateTypes   = []FieldType{FieldDate}
	tagTypes    = []FieldType{FieldTags}
	boolTypes   = []FieldType{FieldBoolean}
	anyTypes    = []FieldType{FieldString, FieldNumber, FieldDate, FieldBoolean, FieldTags}
)

var operatorTable = []OperatorMetadata{
	{OpEquals, "Equals", "Matches the value, ignoring case", eqTypes, true, false, false},
	{OpNotEquals, "Does not equal", "Differs from the value, ignoring case", eqTypes, true, false, false},
	{OpContains, "Contains", "Contains the text", stringTypes, true, false, false},
	{OpNotContains, "Does not contain", "Does not contain the text", stringTypes, true, false, false},
	{OpStartsWith, "Starts with", "Begins with the text", stringTypes, true, false, false},
	{OpEndsWith, "Ends with", "Ends with the text", stringTypes, true, false, false},
	{OpIsEmpty, "Is empty", "Missing, null, blank, or no tags", anyTypes, false, false, false},
	{OpIsNotEmpty, "Is not empty", "Has a value", anyTypes, false, false, false},

	{OpGt, "Greater than", "Value is greater than", numberTypes, true, false, false},
	{OpGte, "Greater than or equal", "Value is greater than or equal to", numberTypes, true, false, false},
	{OpLt, "Less than", "Value is less than", numberTypes, true, false, false},
	{OpLte, "Less than or equal", "Value is less than or equal to", numberTypes, true, false, false},

	{OpDateBefore, "Before date", "Strictly before the date", dateTypes, true, false, false},
	{OpDateAfter, "After date", "Strictly after the date", dateTypes, true, false, false},
	{OpDateBetween, "Between dates", "Between two dates, inclusive; a bare end date covers that whole day", dateTypes, true, true, false},
	{OpInLastDays, "In the last X days", "Within the last N days", dateTypes, true, false, false},
	{OpMoreThanDaysAgo, "More than X days ago", "More than N days in the past", dateTypes, true, false, false},

	{OpTagHas, "Has tag", "Carries the tag", tagTypes, true, false, false},
	{OpTagNotHas, "Does not have tag", "Does not carry the tag", tagTypes, true, false, false},
	{OpContainsAny, "Has any of", "Carries at least one of the tags", tagTypes, false, false, true},
	{OpContainsAll, "Has all of", "Carries every one of the tags", tagTypes, false, false, true},
	{OpNotContainsAny, "Has none of", "Carries none of the tags", tagTypes, false, false, true},

	{OpIsTrue, "Is true", "Boolean is true", boolTypes, false, false, false},
	{OpIsFalse, "Is false", "Boolean is false", boolTypes, false, false, false},
}

var operatorIndex = func() map[Operator]OperatorMetadata {
	m := make(map[Operator]OperatorMetadata, len(operatorTable))
	for _, md := range operatorTable {
		m[md.Operator] = md
	}
	return m
}()

// GetOperatorMetadata returns the operator table in display order.
func GetOperatorMetadata() []OperatorMetadata {
	out := make([]OperatorMetadata, len(operatorTable))
	copy(out, operatorTable)
	return out
}

// LookupOperator returns metadata for op.
func LookupOperator(op Operator) (OperatorMetadata, bool) {
	md, ok := operatorIndex[op]
	return md, ok
}

// AppliesTo reports whether the operator accepts fields of type ft.
func (m OperatorMetadata) AppliesTo(ft FieldType) bool {
	for _, t := range m.ApplicableTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// ==========================================
// FIELDS AND CONDITIONS
// ==========================================

// FieldType is the value type a condition compares against.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldTags    FieldType = "tags"
)

// ConditionType says where a condition reads its value from.
type ConditionType string

const (
	ConditionProfile     ConditionType = "profile"
	ConditionCustomField ConditionType = "custom_field"
	ConditionTag         ConditionType = "tag"
)

// LogicOperator joins the members of a group.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// Condition is a single field/operator/value test.
//
// Profile conditions name a built-in contact field. Custom field conditions
// name a key in the contact's custom fields and declare its FieldType.
// Tag conditions ignore Field and test the contact's tag set.
type Condition struct {
	Type           ConditionType `json:"type"`
	Field          string        `json:"field,omitempty"`
	FieldType      FieldType     `json:"field_type,omitempty"`
	Operator       Operator      `json:"operator"`
	Value          string        `json:"value,omitempty"`
	ValueSecondary string        `json:"value_secondary,omitempty"`
	Values         []string      `json:"values,omitempty"`
}

// Group combines conditions and nested groups. An empty group matches
// every contact; Negated inverts the combined result.
type Group struct {
	Logic      LogicOperator `json:"logic"`
	Negated    bool          `json:"negated,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty"`
	Groups     []Group       `json:"groups,omitempty"`
}

// Clone returns a deep copy of g.
func (g Group) Clone() Group {
	out := Group{Logic: g.Logic, Negated: g.Negated}
	if g.Conditions != nil {
		out.Conditions = make([]Condition, len(g.Conditions))
		for i, c := range g.Conditions {
			c.Values = slices.Clone(c.Values)
			out.Conditions[i] = c
		}
	}
	if g.Groups != nil {
		out.Groups = make([]Group, len(g.Groups))
		for i, sub := range g.Groups {
			out.Groups[i] = sub.Clone()
		}
	}
	return out
}

// And builds an AND group.
func And(conds ...Condition) Group { return Group{Logic: LogicAnd, Conditions: conds} }

// Or builds an OR group.
func Or(conds ...Condition) Group { return Group{Logic: LogicOr, Conditions: conds} }

// ==========================================
// SEGMENTS
// ==========================================

// Kind distinguishes rule-driven from hand-picked segments.
type Kind string

const (
	KindDynamic Kind = "dynamic"
	KindStatic  Kind = "static"
)

// Segment is a saved audience. Dynamic segments are defined entirely by
// Rules and re-evaluated on demand; static segments hold explicit members.
// CachedCount is the only derived state and can be recomputed at any time.
type Segment struct {
	ID          string     `json:"id"`
	BrandID     string     `json:"brand_id"`
	ListID      string     `json:"list_id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Kind        Kind       `json:"kind"`
	Rules       *Group     `json:"rules,omitempty"`
	RulesHash   string     `json:"rules_hash,omitempty"`
	CachedCount int        `json:"cached_count"`
	CountedAt   *time.Time `json:"counted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Preview is the response for an ad-hoc rule evaluation.
type Preview struct {
	Count  int              `json:"count"`
	Sample []domain.Contact `json:"sample"`
	Hash   string           `json:"hash"`
}
