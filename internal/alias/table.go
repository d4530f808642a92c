package alias

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"congreso/internal"
	"congreso/internal/util"
)

//go:embed aliases.yaml
var defaultAliases []byte

var ErrAmbiguousAlias = errors.New("ambiguous alias")

type Entry struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// Conflict records a normalized variant claimed by more than one canonical
// label. Winner is the label kept in the table (the later entry).
type Conflict struct {
	Variant string
	Loser   string
	Winner  string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%q: %q overridden by %q", c.Variant, c.Loser, c.Winner)
}

// Table is the inverted variant -> canonical map for one entity type.
// It is read-only after Build.
type Table struct {
	byVariant  map[string]string
	canonicals []string
	conflicts  []Conflict
}

// Build inverts entries in order. The normalized canonical label counts as a
// variant of itself. When two labels claim one variant the later entry wins
// and the collision is returned.
func Build(entries []Entry) (*Table, []Conflict) {
	t := &Table{byVariant: map[string]string{}}
	seen := map[string]struct{}{}

	claim := func(variant, canonical string) {
		key := util.Normalize(variant)
		if key == "" {
			return
		}
		if prev, ok := t.byVariant[key]; ok && prev != canonical {
			t.conflicts = append(t.conflicts, Conflict{Variant: key, Loser: prev, Winner: canonical})
		}
		t.byVariant[key] = canonical
	}

	for _, e := range entries {
		canonical := strings.TrimSpace(e.Canonical)
		if canonical == "" {
			continue
		}
		if _, ok := seen[canonical]; !ok {
			seen[canonical] = struct{}{}
			t.canonicals = append(t.canonicals, canonical)
		}
		claim(canonical, canonical)
		for _, v := range e.Variants {
			claim(v, canonical)
		}
	}
	return t, t.conflicts
}

// Resolve looks up an already normalized query.
func (t *Table) Resolve(normalized string) (string, bool) {
	if t == nil || normalized == "" {
		return "", false
	}
	canonical, ok := t.byVariant[normalized]
	return canonical, ok
}

// Canonicals lists the distinct canonical labels in file order.
func (t *Table) Canonicals() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.canonicals...)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byVariant)
}

func (t *Table) Conflicts() []Conflict {
	if t == nil {
		return nil
	}
	return append([]Conflict(nil), t.conflicts...)
}

func (t *Table) Validate() error {
	if t == nil || len(t.conflicts) == 0 {
		return nil
	}
	parts := make([]string, 0, len(t.conflicts))
	for _, c := range t.conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Errorf("%w: %s", ErrAmbiguousAlias, strings.Join(parts, "; "))
}

type file struct {
	Version  int                `yaml:"version"`
	Entities map[string][]Entry `yaml:"entities"`
}

// Catalog holds one alias table per entity type.
type Catalog struct {
	Version int
	tables  map[internal.EntityType]*Table
}

func (c *Catalog) Table(entity internal.EntityType) *Table {
	if c == nil {
		return nil
	}
	return c.tables[entity]
}

func (c *Catalog) Entities() []internal.EntityType {
	out := make([]internal.EntityType, 0, len(c.tables))
	for e := range c.tables {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate reports every ambiguous variant across all entity tables.
func (c *Catalog) Validate() error {
	var errs []error
	for _, e := range c.Entities() {
		if err := c.tables[e].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e, err))
		}
	}
	return errors.Join(errs...)
}

func Parse(blob []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("parse alias tables: %w", err)
	}
	c := &Catalog{Version: f.Version, tables: map[internal.EntityType]*Table{}}
	for name, entries := range f.Entities {
		t, _ := Build(entries)
		c.tables[internal.EntityType(name)] = t
	}
	return c, nil
}

// Load reads alias tables from path, or the built-in tables when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(blob)
}

// LoadStrict is Load that refuses tables with ambiguous variants, so a run
// never resolves them last-write-wins.
func LoadStrict(path string) (*Catalog, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Default() (*Catalog, error) {
	return Parse(defaultAliases)
}
