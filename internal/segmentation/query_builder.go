package segmentation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailcraft/internal/domain"
)

// QueryBuilder compiles a rule tree into SQL over the contacts table
// (aliased s). Every user value travels as a bind parameter, including
// custom field keys.
type QueryBuilder struct {
	brandID      string
	listID       string
	mailableOnly bool
	now          time.Time
	args         []any
}

// NewQueryBuilder scopes queries to one brand.
func NewQueryBuilder(brandID string) *QueryBuilder {
	return &QueryBuilder{brandID: brandID, now: time.Now().UTC()}
}

// SetListID restricts matches to one list.
func (qb *QueryBuilder) SetListID(listID string) *QueryBuilder {
	qb.listID = listID
	return qb
}

// SetMailableOnly drops contacts that cannot receive mail.
func (qb *QueryBuilder) SetMailableOnly(v bool) *QueryBuilder {
	qb.mailableOnly = v
	return qb
}

// SetNow fixes the reference time for relative date operators.
func (qb *QueryBuilder) SetNow(t time.Time) *QueryBuilder {
	qb.now = t.UTC()
	return qb
}

func (qb *QueryBuilder) nextArg(v any) string {
	qb.args = append(qb.args, v)
	return fmt.Sprintf("$%d", len(qb.args))
}

// BuildWhere returns the WHERE body (without the keyword) and its args.
func (qb *QueryBuilder) BuildWhere(g Group) (string, []any, error) {
	if problems := ValidateConditions(g); len(problems) > 0 {
		return "", nil, &RulesError{Problems: problems}
	}
	qb.args = nil

	where := []string{"s.brand_id = " + qb.nextArg(qb.brandID)}
	if qb.listID != "" {
		where = append(where, "s.list_id = "+qb.nextArg(qb.listID))
	}
	if qb.mailableOnly {
		where = append(where, "s.status = 'active'", "s.is_unsubscribed = FALSE")
	}
	where = append(where, "("+qb.buildGroupCondition(g)+")")
	return strings.Join(where, "\n  AND "), qb.args, nil
}

// BuildSelect returns a page of matching rows ordered by creation time.
// columns is the select list, qualified with s.
func (qb *QueryBuilder) BuildSelect(columns string, g Group, limit, offset int) (string, []any, error) {
	where, args, err := qb.BuildWhere(g)
	if err != nil {
		return "", nil, err
	}
	q := "SELECT " + columns + "\nFROM contacts s\nWHERE " + where + "\nORDER BY s.created_at, s.id"
	if limit > 0 {
		q += " LIMIT " + qb.nextArg(limit)
		args = qb.args
	}
	if offset > 0 {
		q += " OFFSET " + qb.nextArg(offset)
		args = qb.args
	}
	return q, args, nil
}

// BuildCountQuery counts matching rows.
func (qb *QueryBuilder) BuildCountQuery(g Group) (string, []any, error) {
	where, args, err := qb.BuildWhere(g)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*)\nFROM contacts s\nWHERE " + where, args, nil
}

// BuildExistsQuery tests a single contact.
func (qb *QueryBuilder) BuildExistsQuery(g Group, contactID string) (string, []any, error) {
	where, _, err := qb.BuildWhere(g)
	if err != nil {
		return "", nil, err
	}
	where += "\n  AND s.id = " + qb.nextArg(contactID)
	return "SELECT EXISTS (SELECT 1 FROM contacts s WHERE " + where + ")", qb.args, nil
}

func (qb *QueryBuilder) buildGroupCondition(g Group) string {
	parts := make([]string, 0, len(g.Conditions)+len(g.Groups))
	for _, c := range g.Conditions {
		parts = append(parts, qb.buildCondition(c))
	}
	for _, sub := range g.Groups {
		parts = append(parts, "("+qb.buildGroupCondition(sub)+")")
	}

	result := "TRUE"
	if len(parts) > 0 {
		op := " AND "
		if g.Logic == LogicOr {
			op = " OR "
		}
		result = strings.Join(parts, op)
	}
	if g.Negated {
		result = "NOT (" + result + ")"
	}
	return result
}

func (qb *QueryBuilder) buildCondition(c Condition) string {
	if c.Type == ConditionTag {
		return qb.buildTagCondition(c)
	}

	ft, _ := fieldType(c)
	text, typed := qb.fieldExpr(c, ft)

	switch c.Operator {
	case OpIsEmpty:
		if text == "" {
			return typed + " IS NULL"
		}
		return "COALESCE(" + text + ", '') = ''"
	case OpIsNotEmpty:
		if text == "" {
			return typed + " IS NOT NULL"
		}
		return "COALESCE(" + text + ", '') <> ''"
	}

	switch ft {
	case FieldNumber:
		return qb.buildNumberCondition(c, typed)
	case FieldDate:
		return qb.buildDateCondition(c, typed)
	case FieldBoolean:
		want := "true"
		if c.Operator == OpIsFalse {
			want = "false"
		}
		return "LOWER(" + text + ") = '" + want + "'"
	}
	return qb.buildStringCondition(c, "LOWER(COALESCE("+text+", ''))")
}

// fieldExpr returns the field as text (empty for non-text columns) and as
// its typed form. Custom numbers and dates are guarded so malformed values
// become NULL instead of failing the cast.
func (qb *QueryBuilder) fieldExpr(c Condition, ft FieldType) (text, typed string) {
	if c.Type == ConditionCustomField {
		raw := "(s.custom_fields->>" + qb.nextArg(c.Field) + ")"
		switch ft {
		case FieldNumber:
			return raw, "(CASE WHEN " + raw + " ~ '" + numericSQL + "' THEN " + raw + "::numeric END)"
		case FieldDate:
			return raw, "(CASE WHEN " + raw + " ~ '" + dateSQL + "' THEN try_timestamptz(" + raw + ") END)"
		}
		return raw, raw
	}

	col := profileFields[c.Field].Column
	switch ft {
	case FieldDate:
		return "", col
	case FieldBoolean:
		return col + "::text", col
	}
	return col, col
}

func (qb *QueryBuilder) buildStringCondition(c Condition, field string) string {
	v := strings.ToLower(c.Value)
	switch c.Operator {
	case OpEquals:
		return field + " = " + qb.nextArg(v)
	case OpNotEquals:
		return field + " <> " + qb.nextArg(v)
	case OpContains:
		return field + " LIKE " + qb.nextArg("%"+escapeLike(v)+"%")
	case OpNotContains:
		return field + " NOT LIKE " + qb.nextArg("%"+escapeLike(v)+"%")
	case OpStartsWith:
		return field + " LIKE " + qb.nextArg(escapeLike(v)+"%")
	case OpEndsWith:
		return field + " LIKE " + qb.nextArg("%"+escapeLike(v))
	}
	return "FALSE"
}

func (qb *QueryBuilder) buildNumberCondition(c Condition, field string) string {
	n, _ := parseNumber(c.Value)
	op := map[Operator]string{
		OpEquals: "=", OpNotEquals: "<>", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<=",
	}[c.Operator]
	if op == "" {
		return "FALSE"
	}
	// a NULL field makes the comparison NULL, so missing values never match
	return field + " " + op + " " + qb.nextArg(n)
}

func (qb *QueryBuilder) buildDateCondition(c Condition, field string) string {
	switch c.Operator {
	case OpDateBefore:
		t, _ := parseDate(c.Value)
		return field + " < " + qb.nextArg(t)
	case OpDateAfter:
		t, _ := parseDate(c.Value)
		return field + " > " + qb.nextArg(t)
	case OpDateBetween:
		from, _ := parseDate(c.Value)
		to, exclusive, _ := parseUpperDate(c.ValueSecondary)
		if exclusive {
			return "(" + field + " >= " + qb.nextArg(from) + " AND " + field + " < " + qb.nextArg(to) + ")"
		}
		return field + " BETWEEN " + qb.nextArg(from) + " AND " + qb.nextArg(to)
	case OpInLastDays:
		days, _ := parseDays(c.Value)
		return field + " >= " + qb.nextArg(qb.now.AddDate(0, 0, -days))
	case OpMoreThanDaysAgo:
		days, _ := parseDays(c.Value)
		return field + " < " + qb.nextArg(qb.now.AddDate(0, 0, -days))
	}
	return "FALSE"
}

// buildTagCondition mirrors compileTags: tags are stored normalized in a
// text[] column that is never NULL.
func (qb *QueryBuilder) buildTagCondition(c Condition) string {
	switch c.Operator {
	case OpIsEmpty:
		return "cardinality(s.tags) = 0"
	case OpIsNotEmpty:
		return "cardinality(s.tags) > 0"
	case OpTagHas:
		return "s.tags @> ARRAY[" + qb.nextArg(domain.NormalizeTag(c.Value)) + "]::text[]"
	case OpTagNotHas:
		return "NOT (s.tags @> ARRAY[" + qb.nextArg(domain.NormalizeTag(c.Value)) + "]::text[])"
	}

	tags := domain.NormalizeTags(c.Values)
	switch c.Operator {
	case OpContainsAny:
		if len(tags) == 0 {
			return "FALSE"
		}
		return "s.tags && " + qb.nextArg(pq.Array(tags)) + "::text[]"
	case OpContainsAll:
		if len(tags) == 0 {
			return "TRUE"
		}
		return "s.tags @> " + qb.nextArg(pq.Array(tags)) + "::text[]"
	case OpNotContainsAny:
		if len(tags) == 0 {
			return "TRUE"
		}
		return "NOT (s.tags && " + qb.nextArg(pq.Array(tags)) + "::text[])"
	}
	return "FALSE"
}

// HashRules returns a stable digest of a rule tree, used to detect rule
// changes that invalidate a cached count.
func HashRules(g Group) string {
	data, _ := json.Marshal(g)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
