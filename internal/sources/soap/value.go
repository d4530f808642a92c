package soap

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"congreso/internal/dataset"
)

// Kind enumerates the closed set of shapes a service response can take.
type Kind uint8

const (
	Null Kind = iota
	Scalar
	Sequence
	Mapping
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	case Object:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

type Field struct {
	Name  string
	Value Value
}

// Value is a serialized response node. Text is set for scalars, Items for
// sequences and Fields for mappings and objects.
type Value struct {
	Kind   Kind
	Text   string
	Items  []Value
	Fields []Field
}

// FieldEnumerator is implemented by opaque response objects that can list
// their own fields in a stable order.
type FieldEnumerator interface {
	EnumerateFields(yield func(name string, value any))
}

// Serialize converts v into a Value. Values outside the known shapes become
// scalars through fmt.
func Serialize(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: Null}
	case Value:
		return t
	case *Value:
		if t == nil {
			return Value{Kind: Null}
		}
		return *t
	case string:
		return Value{Kind: Scalar, Text: t}
	case bool:
		return Value{Kind: Scalar, Text: strconv.FormatBool(t)}
	case int:
		return Value{Kind: Scalar, Text: strconv.Itoa(t)}
	case int64:
		return Value{Kind: Scalar, Text: strconv.FormatInt(t, 10)}
	case float64:
		return Value{Kind: Scalar, Text: strconv.FormatFloat(t, 'f', -1, 64)}
	case time.Time:
		return Value{Kind: Scalar, Text: t.Format(time.RFC3339)}
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Serialize(item)
		}
		return Value{Kind: Sequence, Items: items}
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Value{Kind: Scalar, Text: item}
		}
		return Value{Kind: Sequence, Items: items}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = Field{Name: k, Value: Serialize(t[k])}
		}
		return Value{Kind: Mapping, Fields: fields}
	case FieldEnumerator:
		var fields []Field
		t.EnumerateFields(func(name string, value any) {
			fields = append(fields, Field{Name: name, Value: Serialize(value)})
		})
		return Value{Kind: Object, Fields: fields}
	case fmt.Stringer:
		return Value{Kind: Scalar, Text: t.String()}
	default:
		return Value{Kind: Scalar, Text: fmt.Sprint(t)}
	}
}

func (v Value) IsNull() bool { return v.Kind == Null }

// Get returns the named field of a mapping or object.
func (v Value) Get(name string) (Value, bool) {
	if v.Kind != Mapping && v.Kind != Object {
		return Value{}, false
	}
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Lookup follows a dot-separated path through mappings and objects.
func (v Value) Lookup(path string) (Value, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Get(part)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// AsSequence returns the items of a sequence, a single-item list for any
// other non-null value and nil for null.
func (v Value) AsSequence() []Value {
	switch v.Kind {
	case Null:
		return nil
	case Sequence:
		return v.Items
	default:
		return []Value{v}
	}
}

// Interface converts back to plain Go values for JSON encoding.
func (v Value) Interface() any {
	switch v.Kind {
	case Scalar:
		return v.Text
	case Sequence:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = item.Interface()
		}
		return out
	case Mapping, Object:
		out := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name] = f.Value.Interface()
		}
		return out
	}
	return nil
}

// Record is one flattened row with ordered columns.
type Record struct {
	Columns []string
	Values  map[string]string
}

func newRecord() Record {
	return Record{Values: map[string]string{}}
}

func (r *Record) Set(column, value string) {
	if _, ok := r.Values[column]; !ok {
		r.Columns = append(r.Columns, column)
	}
	r.Values[column] = value
}

func (r Record) Get(column string) string { return r.Values[column] }

// Flatten joins nested mapping keys with "." into one record. Sequences
// that are not exploded are stored as JSON.
func Flatten(v Value) Record {
	rec := newRecord()
	flattenInto(&rec, "", v, "")
	return rec
}

func flattenInto(rec *Record, prefix string, v Value, skip string) {
	switch v.Kind {
	case Mapping, Object:
		for _, f := range v.Fields {
			key := f.Name
			if prefix != "" {
				key = prefix + "." + f.Name
			}
			if skip != "" && key == skip {
				continue
			}
			flattenInto(rec, key, f.Value, skip)
		}
	case Sequence:
		blob, _ := json.Marshal(v.Interface())
		rec.Set(prefix, string(blob))
	case Scalar:
		rec.Set(prefix, v.Text)
	case Null:
		if prefix != "" {
			rec.Set(prefix, "")
		}
	}
}

// Explode produces one record per element of the sequence at path within
// each top-level record of v. The element's own fields are flattened without
// prefix; a name already used by the parent is written as path.name.
// A record whose list is missing or empty yields a single row.
func Explode(v Value, path string) []Record {
	var out []Record
	for _, item := range v.AsSequence() {
		base := newRecord()
		flattenInto(&base, "", item, path)

		list, _ := item.Lookup(path)
		elems := list.AsSequence()
		if len(elems) == 0 {
			out = append(out, base)
			continue
		}
		for _, elem := range elems {
			row := base.clone()
			child := Flatten(elem)
			for _, col := range child.Columns {
				name := col
				if _, taken := base.Values[col]; taken {
					name = path + "." + col
				}
				row.Set(name, child.Values[col])
			}
			out = append(out, row)
		}
	}
	return out
}

func (r Record) clone() Record {
	out := Record{Columns: append([]string(nil), r.Columns...), Values: make(map[string]string, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// FlattenAll flattens every top-level record of v.
func FlattenAll(v Value) []Record {
	items := v.AsSequence()
	out := make([]Record, 0, len(items))
	for _, item := range items {
		out = append(out, Flatten(item))
	}
	return out
}

// ToTable lays records out with columns in first-seen order.
func ToTable(records []Record) *dataset.Table {
	t := dataset.New()
	for _, rec := range records {
		for _, col := range rec.Columns {
			t.EnsureColumn(col)
		}
	}
	for _, rec := range records {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = rec.Values[col]
		}
		t.Append(row)
	}
	return t
}
