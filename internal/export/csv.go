// Package export writes contacts as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/mailcraft/internal/domain"
)

var baseColumns = []string{"id", "email", "first_name", "last_name", "status", "tags", "created_at"}

// Columns returns the header for contacts: the fixed columns followed by
// every custom field key present, sorted.
func Columns(contacts []domain.Contact) []string {
	keys := map[string]struct{}{}
	for i := range contacts {
		for k := range contacts[i].CustomFields {
			keys[k] = struct{}{}
		}
	}
	custom := make([]string, 0, len(keys))
	for k := range keys {
		custom = append(custom, k)
	}
	sort.Strings(custom)
	return append(append([]string(nil), baseColumns...), custom...)
}

// Writer streams contacts with a fixed header.
type Writer struct {
	w      *csv.Writer
	custom []string
	rows   int
}

// NewWriter writes the header immediately. customKeys fixes the trailing
// columns; values for other keys are dropped.
func NewWriter(out io.Writer, customKeys []string) (*Writer, error) {
	w := &Writer{w: csv.NewWriter(out), custom: customKeys}
	header := append(append([]string(nil), baseColumns...), customKeys...)
	if err := w.w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

func (w *Writer) Write(c *domain.Contact) error {
	row := []string{
		c.ID,
		c.Email,
		sanitize(c.FirstName),
		sanitize(c.LastName),
		string(c.Status),
		strings.Join(c.Tags, ";"),
		c.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, k := range w.custom {
		row = append(row, sanitize(cell(c.CustomFields[k])))
	}
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Flush must be called once all rows are written.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) Rows() int { return w.rows }

// Contacts writes a complete export in one go.
func Contacts(out io.Writer, contacts []domain.Contact) (int, error) {
	cols := Columns(contacts)
	w, err := NewWriter(out, cols[len(baseColumns):])
	if err != nil {
		return 0, err
	}
	for i := range contacts {
		if err := w.Write(&contacts[i]); err != nil {
			return w.Rows(), err
		}
	}
	return w.Rows(), w.Flush()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// sanitize defuses spreadsheet formula injection in user-supplied cells.
func sanitize(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
