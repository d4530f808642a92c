package xmlmap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	AttrPrefix = "@"
	TextKey    = "#text"
)

// Map is an insertion-ordered string-keyed map.
type Map struct {
	keys   []string
	values map[string]any
}

func NewMap() *Map {
	return &Map{values: map[string]any{}}
}

func (m *Map) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// EnumerateFields yields entries in insertion order.
func (m *Map) EnumerateFields(yield func(name string, value any)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		yield(k, m.values[k])
	}
}

type Options struct {
	// ForceList names elements that always decode to a list, even when
	// they appear once.
	ForceList []string
	// KeepNamespaces keeps "prefix:" on element names.
	KeepNamespaces bool
}

// Decode converts an XML document into nested values: *Map for elements
// with attributes or children, string for text-only elements, nil for empty
// ones and []any for repeated or forced elements. The result maps the root
// element name to its value.
func Decode(r io.Reader, opts Options) (*Map, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q", label)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	force := map[string]bool{}
	for _, name := range opts.ForceList {
		force[name] = true
	}
	d := &decoder{dec: dec, force: force, keepNS: opts.KeepNamespaces}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, errors.New("xml: no root element")
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			value, err := d.element(start)
			if err != nil {
				return nil, err
			}
			root := NewMap()
			root.Set(d.name(start.Name), value)
			return root, nil
		}
	}
}

func DecodeString(s string, opts Options) (*Map, error) {
	return Decode(strings.NewReader(s), opts)
}

type decoder struct {
	dec    *xml.Decoder
	force  map[string]bool
	keepNS bool
}

func (d *decoder) name(n xml.Name) string {
	if d.keepNS && n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

func (d *decoder) element(start xml.StartElement) (any, error) {
	node := NewMap()
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		node.Set(AttrPrefix+d.name(a.Name), a.Value)
	}

	var text strings.Builder
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := d.element(t)
			if err != nil {
				return nil, err
			}
			d.add(node, d.name(t.Name), child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			s := strings.TrimSpace(text.String())
			if node.Len() == 0 {
				if s == "" {
					return nil, nil
				}
				return s, nil
			}
			if s != "" {
				node.Set(TextKey, s)
			}
			return node, nil
		}
	}
}

func (d *decoder) add(node *Map, key string, value any) {
	existing, ok := node.Get(key)
	switch {
	case !ok && d.force[key]:
		node.Set(key, []any{value})
	case !ok:
		node.Set(key, value)
	default:
		if list, isList := existing.([]any); isList {
			node.Set(key, append(list, value))
		} else {
			node.Set(key, []any{existing, value})
		}
	}
}

// Path walks nested maps by key. Lists are not traversed.
func Path(v any, keys ...string) (any, bool) {
	cur := v
	for _, k := range keys {
		m, ok := cur.(*Map)
		if !ok {
			return nil, false
		}
		cur, ok = m.Get(k)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// List returns v as a list: nil stays empty, a single value becomes a list
// of one.
func List(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// Text returns the text content of a decoded value.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *Map:
		if s, ok := t.values[TextKey].(string); ok {
			return s
		}
	}
	return ""
}
