package dedupe

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"congreso/internal/dataset"
	"congreso/internal/util"
)

type SortField struct {
	Field string
	Desc  bool
}

func (s SortField) String() string {
	if s.Desc {
		return s.Field + ":desc"
	}
	return s.Field + ":asc"
}

// ParseSortFields parses "match_score:desc,fecha_ingreso:desc". The
// direction defaults to ascending.
func ParseSortFields(spec string) ([]SortField, error) {
	var out []SortField
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("sort field %q: missing column", part)
		}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
			out = append(out, SortField{Field: field})
		case "desc":
			out = append(out, SortField{Field: field, Desc: true})
		default:
			return nil, fmt.Errorf("sort field %q: direction must be asc or desc", part)
		}
	}
	return out, nil
}

// Deduplicate keeps one row per distinct key: rows are stable-sorted by
// sortFields and the first row of each key survives verbatim. Output rows
// follow the sorted order.
func Deduplicate(t *dataset.Table, key string, sortFields []SortField) (*dataset.Table, error) {
	keyIdx, ok := t.ColumnIndex(key)
	if !ok {
		return nil, fmt.Errorf("dedupe: unknown key column %q", key)
	}
	idx := make([]int, len(sortFields))
	for i, sf := range sortFields {
		c, ok := t.ColumnIndex(sf.Field)
		if !ok {
			return nil, fmt.Errorf("dedupe: unknown sort column %q", sf.Field)
		}
		idx[i] = c
	}

	rows := slices.Clone(t.Rows)
	slices.SortStableFunc(rows, func(a, b []string) int {
		for i, sf := range sortFields {
			if c := compareCells(cell(a, idx[i]), cell(b, idx[i]), sf.Desc); c != 0 {
				return c
			}
		}
		return 0
	})

	seen := make(map[string]struct{}, len(rows))
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		k := cell(row, keyIdx)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, row)
	}
	return t.WithRows(kept), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// Cell classes, in sort order regardless of direction.
const (
	classNumber = iota
	classText
	classEmpty
)

func classify(v string) (int, float64) {
	if v == "" {
		return classEmpty, 0
	}
	if n, ok := util.ParseNumber(v); ok {
		return classNumber, n
	}
	return classText, 0
}

// compareCells is a total order: numbers first, compared numerically, then
// text compared as strings, then empty values. Direction flips the order
// within a class only.
func compareCells(a, b string, desc bool) int {
	ca, na := classify(a)
	cb, nb := classify(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}

	var c int
	switch ca {
	case classEmpty:
		return 0
	case classNumber:
		c = cmp.Compare(na, nb)
	default:
		c = strings.Compare(a, b)
	}
	if desc {
		return -c
	}
	return c
}
