package categories

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"congreso/internal/util"
)

//go:embed categories.yaml
var defaultBlob []byte

type CivilStatusRule struct {
	Contains string `yaml:"contains"`
	Pattern  string `yaml:"pattern"`
	Label    string `yaml:"label"`
	Drop     bool   `yaml:"drop"`
}

type Rules struct {
	Version     int `yaml:"version"`
	CivilStatus struct {
		Default string            `yaml:"default"`
		Rules   []CivilStatusRule `yaml:"rules"`
	} `yaml:"civil_status"`
	Education struct {
		UniversityFallback string            `yaml:"university_fallback"`
		Levels             map[string]string `yaml:"levels"`
	} `yaml:"education"`
	Birthplace struct {
		DefaultCountry string            `yaml:"default_country"`
		Unknown        string            `yaml:"unknown"`
		JunkPrefixes   []string          `yaml:"junk_prefixes"`
		Countries      []string          `yaml:"countries"`
		CityContains   map[string]string `yaml:"city_contains"`
	} `yaml:"birthplace"`
	Votes struct {
		Unknown  string            `yaml:"unknown"`
		Outcomes map[string]string `yaml:"outcomes"`
	} `yaml:"votes"`
}

type civilRule struct {
	contains string
	pattern  *regexp.Regexp
	label    string
	drop     bool
}

// Tables is the compiled, read-only form of Rules.
type Tables struct {
	Version int

	civilDefault string
	civil        []civilRule

	levels             map[string]string
	universityFallback string

	junk           *regexp.Regexp
	countries      *regexp.Regexp
	countryNames   map[string]string
	defaultCountry string
	placeUnknown   string
	cityContains   [][2]string

	votes       map[string]string
	voteUnknown string
}

// Place is a birthplace split into city and country.
type Place struct {
	City    string
	Country string
}

func Default() (*Tables, error) {
	return Parse(defaultBlob)
}

// Load reads rule tables from path, or the built-in ones when path is empty.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(blob)
}

// Parse decodes and compiles rule tables. Keys that collide after
// normalization are rejected; yaml already rejects literal duplicates.
func Parse(blob []byte) (*Tables, error) {
	var rules Rules
	if err := yaml.Unmarshal(blob, &rules); err != nil {
		return nil, fmt.Errorf("parse category tables: %w", err)
	}
	return Compile(rules)
}

func Compile(rules Rules) (*Tables, error) {
	t := &Tables{
		Version:            rules.Version,
		civilDefault:       rules.CivilStatus.Default,
		universityFallback: rules.Education.UniversityFallback,
		defaultCountry:     rules.Birthplace.DefaultCountry,
		placeUnknown:       rules.Birthplace.Unknown,
		voteUnknown:        rules.Votes.Unknown,
	}
	var errs []error

	for i, r := range rules.CivilStatus.Rules {
		cr := civilRule{contains: util.Normalize(r.Contains), label: r.Label, drop: r.Drop}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("civil_status rule %d: %w", i, err))
				continue
			}
			cr.pattern = re
		}
		if cr.contains == "" && cr.pattern == nil {
			errs = append(errs, fmt.Errorf("civil_status rule %d: needs contains or pattern", i))
			continue
		}
		if !cr.drop && cr.label == "" {
			errs = append(errs, fmt.Errorf("civil_status rule %d: missing label", i))
			continue
		}
		t.civil = append(t.civil, cr)
	}

	var err error
	if t.levels, err = normalizedMap("education.levels", rules.Education.Levels); err != nil {
		errs = append(errs, err)
	}
	if t.votes, err = normalizedMap("votes.outcomes", rules.Votes.Outcomes); err != nil {
		errs = append(errs, err)
	}
	cities, err := normalizedMap("birthplace.city_contains", rules.Birthplace.CityContains)
	if err != nil {
		errs = append(errs, err)
	}
	for _, k := range sortedKeys(cities) {
		t.cityContains = append(t.cityContains, [2]string{k, cities[k]})
	}

	t.junk = alternation(rules.Birthplace.JunkPrefixes, `\s*`)
	t.countries = alternation(rules.Birthplace.Countries, "")
	t.countryNames = make(map[string]string, len(rules.Birthplace.Countries))
	for _, c := range rules.Birthplace.Countries {
		t.countryNames[util.Normalize(c)] = c
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// CivilStatus applies the first matching rule. Dropped and unmatched values
// get the default label and ok=false.
func (t *Tables) CivilStatus(raw string) (string, bool) {
	norm := util.Normalize(raw)
	if norm == "" {
		return t.civilDefault, false
	}
	for _, r := range t.civil {
		hit := (r.contains != "" && strings.Contains(norm, r.contains)) ||
			(r.pattern != nil && r.pattern.MatchString(norm))
		if !hit {
			continue
		}
		if r.drop {
			return t.civilDefault, false
		}
		return r.label, true
	}
	return t.civilDefault, false
}

// EducationLevel maps a declared level; a missing or unmapped level with a
// known university falls back to the university label.
func (t *Tables) EducationLevel(raw, university string) (string, bool) {
	if label, ok := t.levels[util.Normalize(raw)]; ok {
		return label, true
	}
	if util.Normalize(university) != "" && t.universityFallback != "" {
		return t.universityFallback, true
	}
	return "", false
}

func (t *Tables) Vote(raw string) (string, bool) {
	if label, ok := t.votes[util.Normalize(raw)]; ok {
		return label, true
	}
	return t.voteUnknown, false
}

func (t *Tables) VoteUnknown() string { return t.voteUnknown }

func (t *Tables) CivilStatusDefault() string { return t.civilDefault }

func (t *Tables) PlaceUnknown() string { return t.placeUnknown }

// Birthplace extracts a city and a country from free text such as
// "Comuna de Melipilla, Santiago" or "Madrid, España".
func (t *Tables) Birthplace(raw string) Place {
	norm := util.Normalize(raw)
	if norm == "" {
		return Place{City: t.placeUnknown, Country: t.placeUnknown}
	}

	country := t.defaultCountry
	if t.countries != nil {
		if m := t.countries.FindString(norm); m != "" {
			country = t.countryNames[m]
		}
	}

	clean := norm
	if t.junk != nil {
		clean = t.junk.ReplaceAllString(clean, "")
	}
	if t.countries != nil {
		clean = t.countries.ReplaceAllString(clean, "")
	}
	city, _, _ := strings.Cut(clean, ",")
	city = strings.TrimSpace(city)
	for _, cc := range t.cityContains {
		if strings.Contains(city, cc[0]) {
			city = cc[1]
			break
		}
	}
	if city == "" {
		city = t.placeUnknown
	}
	return Place{City: util.Capitalize(city), Country: util.Capitalize(country)}
}

func normalizedMap(section string, in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	origin := make(map[string]string, len(in))
	var errs []error
	for _, k := range sortedKeys(in) {
		nk := util.Normalize(k)
		if prev, dup := origin[nk]; dup && out[nk] != in[k] {
			errs = append(errs, fmt.Errorf("%s: %q and %q collide as %q", section, prev, k, nk))
			continue
		}
		origin[nk] = k
		out[nk] = in[k]
	}
	return out, errors.Join(errs...)
}

func alternation(terms []string, suffix string) *regexp.Regexp {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		if n := util.Normalize(term); n != "" {
			parts = append(parts, regexp.QuoteMeta(n))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile("(" + strings.Join(parts, "|") + ")" + suffix)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
