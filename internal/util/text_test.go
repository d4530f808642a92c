package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "accents and case", input: "  Pontificia Universidad Católica ", want: "pontificia universidad catolica"},
		{name: "enie", input: "Ñuñoa", want: "nunoa"},
		{name: "punctuation kept", input: "Pérez, Juan A.", want: "perez, juan a."},
		{name: "empty", input: "", want: ""},
		{name: "only marks", input: " ́ ", want: ""},
		{name: "dotted capital i", input: "İstanbul", want: "istanbul"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Universidad de Concepción",
		"  ÁRBOL  genealógico ",
		"Ex Oficina Salitrera María Elena",
		"İİ ẞ Ǆ",
		"\tPérez,\nJuan",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeValueNonString(t *testing.T) {
	var nilPtr *string
	assert.Equal(t, "", NormalizeValue(nil))
	assert.Equal(t, "", NormalizeValue(42))
	assert.Equal(t, "", NormalizeValue(3.5))
	assert.Equal(t, "", NormalizeValue(nilPtr))
	assert.Equal(t, "valparaiso", NormalizeValue(StringPtr("Valparaíso")))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"perez,", "juan", "a."}, Tokenize("perez,  juan a."))
	assert.Empty(t, Tokenize("   "))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Melipilla", Capitalize("MELIPILLA"))
	assert.Equal(t, "Estados unidos", Capitalize("estados unidos"))
	assert.Equal(t, "", Capitalize(""))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "2018-2022_LVI", SanitizeFilename("2018-2022 (LVI)"))
	assert.Equal(t, "sin_periodo", SanitizeFilename("  "))
}
