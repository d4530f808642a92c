package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("LEXICAL_THRESHOLD", "85")
	t.Setenv("MATCH_TOP_K", "not-a-number")
	t.Setenv("EXPORT_XLSX", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 85.0, cfg.LexicalThreshold)
	assert.Equal(t, 5, cfg.MatchTopK)
	assert.Equal(t, 0.65, cfg.SemanticThreshold)
	assert.True(t, cfg.ExportXLSX)
}

func TestPolicies(t *testing.T) {
	t.Setenv("NAME_MATCH_THRESHOLD", "")
	cfg, err := Load()
	require.NoError(t, err)

	uni := cfg.Policy(internal.EntityUniversity)
	assert.Equal(t, internal.Stages{Alias: true, Lexical: true, Semantic: true}, uni.Stages)
	assert.Equal(t, "Otra / Desconocida", uni.UnknownLabel)
	assert.Equal(t, internal.ScorerTokenSort, uni.Scorer)

	school := cfg.Policy(internal.EntitySchool)
	assert.False(t, school.Stages.Alias)
	assert.True(t, school.Stages.Semantic)

	career := cfg.Policy(internal.EntityCareer)
	assert.True(t, career.StemTokens)
	assert.False(t, career.Stages.Semantic)

	leg := cfg.Policy(internal.EntityLegislator)
	assert.Equal(t, internal.Stages{Lexical: true}, leg.Stages)
	assert.Equal(t, 70.0, leg.LexicalThreshold)
	assert.Equal(t, internal.ScorerTwoPassTokenSet, leg.Scorer)

	for _, e := range []internal.EntityType{internal.EntitySchool, internal.EntityCareer, "otro"} {
		assert.Equal(t, internal.ScorerTokenSort, cfg.Policy(e).Scorer, e)
	}

	assert.False(t, WithoutSemantic(uni).Stages.Semantic)
	assert.Error(t, cfg.Require("DB_PATH", " "))
}
