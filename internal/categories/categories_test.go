package categories

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) *Tables {
	t.Helper()
	tables, err := Default()
	require.NoError(t, err)
	return tables
}

func TestCivilStatus(t *testing.T) {
	tables := defaults(t)
	cases := []struct {
		raw   string
		label string
		ok    bool
	}{
		{"Casado", "Casado/a", true},
		{"CASADA con Juan", "Casado/a", true},
		{"Conviviente civil, casado anteriormente", "Conviviente Civil", true},
		{"Viuda", "Viudo/a", true},
		{"soltero", "Soltero/a", true},
		{"Divorciado", "Divorciado/a", true},
		{"padre de tres hijos", "Desconocido", false},
		{"null", "Desconocido", false},
		{"", "Desconocido", false},
		{"otro", "Desconocido", false},
	}
	for _, tc := range cases {
		label, ok := tables.CivilStatus(tc.raw)
		assert.Equal(t, tc.label, label, tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
	}
}

func TestEducationLevel(t *testing.T) {
	tables := defaults(t)

	label, ok := tables.EducationLevel("Enseñanza Media", "")
	assert.True(t, ok)
	assert.Equal(t, "Media", label)

	label, _ = tables.EducationLevel("magister", "")
	assert.Equal(t, "Magíster", label)

	label, ok = tables.EducationLevel("", "Universidad de Chile")
	assert.True(t, ok)
	assert.Equal(t, "Universitaria", label)

	_, ok = tables.EducationLevel("", "")
	assert.False(t, ok)
}

func TestBirthplace(t *testing.T) {
	tables := defaults(t)
	cases := []struct {
		raw  string
		want Place
	}{
		{"Comuna de Melipilla, Santiago", Place{City: "Melipilla", Country: "Chile"}},
		{"Santiago Centro", Place{City: "Santiago", Country: "Chile"}},
		{"Madrid, España", Place{City: "Madrid", Country: "España"}},
		{"Ex Oficina Salitrera María Elena", Place{City: "Maria elena", Country: "Chile"}},
		{"", Place{City: "Desconocido", Country: "Desconocido"}},
		{"Argentina", Place{City: "Desconocido", Country: "Argentina"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tables.Birthplace(tc.raw), tc.raw)
	}
}

func TestVote(t *testing.T) {
	tables := defaults(t)
	for raw, want := range map[string]string{
		"Afirmativo": "Afirmativo",
		"SI":         "Afirmativo",
		"En Contra":  "En Contra",
		"Abstencion": "Abstención",
		"Pareo":      "Pareo",
		"Dispensado": "Dispensado",
	} {
		label, ok := tables.Vote(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, label, raw)
	}
	label, ok := tables.Vote("ausente")
	assert.False(t, ok)
	assert.Equal(t, "Desconocido", label)
}

func TestParseRejectsNormalizedCollisions(t *testing.T) {
	_, err := Parse([]byte(`
votes:
  outcomes:
    abstención: Abstención
    abstencion: Abstenerse
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide")
}

func TestParseRejectsLiteralDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
votes:
  outcomes:
    si: Afirmativo
    si: En Contra
`))
	assert.Error(t, err)
}

func TestParseRejectsBadRules(t *testing.T) {
	_, err := Parse([]byte(`
civil_status:
  rules:
    - pattern: "("
      label: X
    - label: Y
`))
	assert.Error(t, err)
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 9\nvotes:\n  unknown: Otro\n  outcomes:\n    si: Afirmativo\n"), 0o644))
	tables, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, tables.Version)
	label, _ := tables.Vote("nope")
	assert.Equal(t, "Otro", label)

	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, def.Version)
}
