package dataset

import (
	"fmt"
	"slices"
)

// Table is an in-memory row set with named columns. Missing cells are the
// empty string; rows are padded to the column count on insert.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

func New(columns ...string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

func (t *Table) Len() int { return len(t.Rows) }

func (t *Table) ColumnIndex(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnIndex(name)
	return ok
}

// EnsureColumn appends a column if it does not exist and returns its index.
func (t *Table) EnsureColumn(name string) int {
	if i, ok := t.ColumnIndex(name); ok {
		return i
	}
	t.Columns = append(t.Columns, name)
	t.index[name] = len(t.Columns) - 1
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], "")
	}
	return len(t.Columns) - 1
}

func (t *Table) Append(row []string) {
	cells := make([]string, len(t.Columns))
	copy(cells, row)
	t.Rows = append(t.Rows, cells)
}

// AppendMap adds a row from a column->value map, creating missing columns.
func (t *Table) AppendMap(values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		t.EnsureColumn(k)
	}
	row := make([]string, len(t.Columns))
	for k, v := range values {
		i, _ := t.ColumnIndex(k)
		row[i] = v
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) Get(row int, column string) string {
	i, ok := t.ColumnIndex(column)
	if !ok || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

func (t *Table) Set(row int, column string, value string) {
	i := t.EnsureColumn(column)
	t.Rows[row][i] = value
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out, nil
}

// SetColumn overwrites or creates a column. values must have one entry per row.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q: %d values for %d rows", name, len(values), len(t.Rows))
	}
	i := t.EnsureColumn(name)
	for r := range t.Rows {
		t.Rows[r][i] = values[r]
	}
	return nil
}

// Record returns row r as a column->value map.
func (t *Table) Record(r int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(t.Rows[r]) {
			out[c] = t.Rows[r][i]
		} else {
			out[c] = ""
		}
	}
	return out
}

// Clone copies the table deeply; rows of the clone can be edited freely.
func (t *Table) Clone() *Table {
	out := New(t.Columns...)
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// WithRows returns a table sharing the columns of t with the given rows.
func (t *Table) WithRows(rows [][]string) *Table {
	out := New(t.Columns...)
	out.Rows = rows
	return out
}
