package segmentation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// These patterns are mirrored in the SQL guards so a value the evaluator
// rejects is also NULL to Postgres. Dates that pass the pattern but do not
// exist (2024-02-30) are caught by try_timestamptz on the SQL side and by
// time.Parse here.
var (
	numericPattern = regexp.MustCompile(numericSQL)
	datePattern    = regexp.MustCompile(dateSQL)
	fieldKey       = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

const numericSQL = `^-?[0-9]+(\.[0-9]+)?$`
const dateSQL = `^[0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])([T ]([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9](\.[0-9]+)?(Z|[+-](0[0-9]|1[0-4]):[0-5][0-9])?)?$`

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts RFC3339, a zone-less timestamp, or a bare date. Values
// without a zone are taken as UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseUpperDate reads the inclusive end of a date range. A bare date
// covers its whole day, so it yields the next midnight as an exclusive
// bound.
func parseUpperDate(s string) (bound time.Time, exclusive, ok bool) {
	t, ok := parseDate(s)
	if !ok {
		return time.Time{}, false, false
	}
	if len(strings.TrimSpace(s)) == len("2006-01-02") {
		return t.AddDate(0, 0, 1), true, true
	}
	return t, false, true
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numericPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func parseDays(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// scalarString renders a stored value the way Postgres ->> renders JSONB,
// so string operators see the same text in both evaluators.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case time.Time:
		return x.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return x.String(), true
	}
	return fmt.Sprint(v), true
}

func valueTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	}
	s, ok := scalarString(v)
	if !ok {
		return time.Time{}, false
	}
	return parseDate(s)
}

func valueNumber(v any) (float64, bool) {
	s, ok := scalarString(v)
	if !ok {
		return 0, false
	}
	return parseNumber(s)
}

// escapeLike escapes LIKE metacharacters using backslash, Postgres' default
// escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
