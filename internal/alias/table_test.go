package alias

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal"
	"congreso/internal/util"
)

func TestBuildInvertsVariants(t *testing.T) {
	table, conflicts := Build([]Entry{
		{Canonical: "Pontificia Universidad Católica de Chile", Variants: []string{"PUC", "Universidad Católica"}},
		{Canonical: "Universidad de Chile", Variants: []string{"u de chile"}},
	})
	require.Empty(t, conflicts)
	require.NoError(t, table.Validate())

	got, ok := table.Resolve(util.Normalize("PUC"))
	require.True(t, ok)
	assert.Equal(t, "Pontificia Universidad Católica de Chile", got)

	got, ok = table.Resolve("universidad catolica")
	require.True(t, ok)
	assert.Equal(t, "Pontificia Universidad Católica de Chile", got)

	got, ok = table.Resolve(util.Normalize("Universidad de Chile"))
	require.True(t, ok, "canonical label resolves to itself")
	assert.Equal(t, "Universidad de Chile", got)

	_, ok = table.Resolve("universidad de talca")
	assert.False(t, ok)
	_, ok = table.Resolve("")
	assert.False(t, ok)

	assert.Equal(t, []string{"Pontificia Universidad Católica de Chile", "Universidad de Chile"}, table.Canonicals())
}

func TestBuildReportsAmbiguousVariants(t *testing.T) {
	table, conflicts := Build([]Entry{
		{Canonical: "Universidad de Santiago de Chile", Variants: []string{"US"}},
		{Canonical: "Universidad San Sebastián", Variants: []string{"us", "uss"}},
		{Canonical: "Universidad San Sebastián", Variants: []string{"USS"}},
	})
	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{Variant: "us", Loser: "Universidad de Santiago de Chile", Winner: "Universidad San Sebastián"}, conflicts[0])

	got, ok := table.Resolve("us")
	require.True(t, ok)
	assert.Equal(t, "Universidad San Sebastián", got, "last write wins")

	err := table.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousAlias))
	assert.Contains(t, err.Error(), `"us"`)
}

func TestDefaultCatalogIsConsistent(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)
	require.NoError(t, catalog.Validate())

	uni := catalog.Table(internal.EntityUniversity)
	require.NotNil(t, uni)
	got, ok := uni.Resolve("puc")
	require.True(t, ok)
	assert.Equal(t, "Pontificia Universidad Católica de Chile", got)

	career := catalog.Table(internal.EntityCareer)
	require.NotNil(t, career)
	got, ok = career.Resolve(util.Normalize("Abogada"))
	require.True(t, ok)
	assert.Equal(t, "Abogado/a", got)

	assert.Nil(t, catalog.Table(internal.EntitySchool))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	blob := []byte(`version: 1
entities:
  university:
    - canonical: Universidad de Talca
      variants: [utalca]
    - canonical: Universidad de Tarapacá
      variants: [utalca]
`)
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Version)

	err = catalog.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousAlias)
	assert.Contains(t, err.Error(), "university")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("entities: [unterminated"))
	assert.Error(t, err)
}

func TestLoadStrictRefusesAmbiguousTables(t *testing.T) {
	dir := t.TempDir()
	ambiguous := filepath.Join(dir, "ambiguous.yaml")
	require.NoError(t, os.WriteFile(ambiguous, []byte(`version: 2
entities:
  career:
    - canonical: Ingeniero/a Civil
      variants: [ingeniero]
    - canonical: Ingeniero/a Comercial
      variants: [ingeniero]
`), 0o644))

	_, err := LoadStrict(ambiguous)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousAlias)
	assert.Contains(t, err.Error(), "career")

	clean := filepath.Join(dir, "clean.yaml")
	require.NoError(t, os.WriteFile(clean, []byte(`version: 2
entities:
  career:
    - canonical: Ingeniero/a Civil
      variants: [ingeniero civil]
`), 0o644))
	catalog, err := LoadStrict(clean)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Version)

	catalog, err = LoadStrict("")
	require.NoError(t, err, "built-in tables carry no conflicts")
	assert.NotNil(t, catalog.Table(internal.EntityUniversity))
}
