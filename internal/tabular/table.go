// Package tabular reads and writes the spreadsheet tables exchanged by the pipeline.
package tabular

import (
	"strings"
)

// Table is a header row plus data rows, all as cell strings.
type Table struct {
	Headers []string
	Rows    [][]string
	index   map[string]int
}

// New creates an empty table with the given headers.
func New(headers ...string) *Table {
	t := &Table{Headers: append([]string(nil), headers...)}
	t.reindex()
	return t
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		key := normalizeHeader(h)
		if _, exists := t.index[key]; !exists {
			t.index[key] = i
		}
	}
}

// ColumnIndex returns the position of a header (case and whitespace insensitive), or -1.
func (t *Table) ColumnIndex(name string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[normalizeHeader(name)]; ok {
		return i
	}
	return -1
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// FindColumn returns the first candidate header present in the table.
func (t *Table) FindColumn(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if i := t.ColumnIndex(c); i >= 0 {
			return t.Headers[i], true
		}
	}
	return "", false
}

// Missing returns the required headers absent from the table.
func (t *Table) Missing(required ...string) []string {
	var missing []string
	for _, r := range required {
		if !t.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// Get returns the trimmed cell value of row for column name, or "" if absent.
func (t *Table) Get(row []string, name string) string {
	i := t.ColumnIndex(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// EnsureColumn appends a header if it is not present and returns its index.
// Existing rows are padded with empty cells.
func (t *Table) EnsureColumn(name string) int {
	if i := t.ColumnIndex(name); i >= 0 {
		return i
	}
	t.Headers = append(t.Headers, name)
	t.reindex()
	for r := range t.Rows {
		t.Rows[r] = padRow(t.Rows[r], len(t.Headers))
	}
	return len(t.Headers) - 1
}

// Set writes value into row for column name, adding the column when needed.
func (t *Table) Set(row int, name, value string) {
	i := t.EnsureColumn(name)
	t.Rows[row] = padRow(t.Rows[row], len(t.Headers))
	t.Rows[row][i] = value
}

// Append adds a row, padded or truncated to the header width.
func (t *Table) Append(row []string) {
	r := padRow(append([]string(nil), row...), len(t.Headers))
	t.Rows = append(t.Rows, r[:len(t.Headers)])
}

// AppendMap adds a row from a header->value map. Unknown headers are ignored.
func (t *Table) AppendMap(values map[string]string) {
	row := make([]string, len(t.Headers))
	for name, v := range values {
		if i := t.ColumnIndex(name); i >= 0 {
			row[i] = v
		}
	}
	t.Rows = append(t.Rows, row)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := New(t.Headers...)
	c.Rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		c.Rows[i] = append([]string(nil), r...)
	}
	return c
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
