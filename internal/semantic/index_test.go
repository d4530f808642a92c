package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal"
)

// vectorEmbedder returns fixed vectors per text and counts calls.
type vectorEmbedder struct {
	vectors map[string][]float32
	calls   int
	fail    error
}

func (v *vectorEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	v.calls++
	if v.fail != nil {
		return nil, v.fail
	}
	if vec, ok := v.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (v *vectorEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *vectorEmbedder) ModelID() string { return "fake" }
func (v *vectorEmbedder) Close() error    { return nil }

func schoolCandidates() []internal.Candidate {
	return []internal.Candidate{
		{Label: "Instituto Nacional", Side: "1"},
		{Label: "Liceo de Aplicación", Side: "2"},
	}
}

func newFake() *vectorEmbedder {
	return &vectorEmbedder{vectors: map[string][]float32{
		"Instituto Nacional":  {1, 0, 0},
		"Liceo de Aplicación": {0, 1, 0},
		"el nacional":         {0.9, 0.1, 0},
		"ambiguo":             {1, 1, 0},
	}}
}

func TestIndexEncodesCandidatesOnce(t *testing.T) {
	fake := newFake()
	idx, err := NewIndex(context.Background(), fake, schoolCandidates())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 2, fake.calls)

	_, _, _, _, err = idx.Match(context.Background(), "el nacional", 0.65)
	require.NoError(t, err)
	_, _, _, _, err = idx.Match(context.Background(), "el nacional", 0.65)
	require.NoError(t, err)
	assert.Equal(t, 4, fake.calls, "only queries are encoded after construction")
}

func TestIndexMatchReturnsSidePayload(t *testing.T) {
	idx, err := NewIndex(context.Background(), newFake(), schoolCandidates())
	require.NoError(t, err)

	label, score, side, ok, err := idx.Match(context.Background(), "el nacional", 0.65)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Instituto Nacional", label)
	assert.Equal(t, "1", side)
	assert.InDelta(t, 99.39, score, 0.01)
}

func TestIndexMatchBelowThreshold(t *testing.T) {
	idx, err := NewIndex(context.Background(), newFake(), schoolCandidates())
	require.NoError(t, err)

	label, score, side, ok, err := idx.Match(context.Background(), "otra cosa", 0.65)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, label)
	assert.Empty(t, side)
	assert.Equal(t, 0.0, score)
}

func TestIndexMatchTieKeepsFirst(t *testing.T) {
	idx, err := NewIndex(context.Background(), newFake(), schoolCandidates())
	require.NoError(t, err)

	label, score, _, ok, err := idx.Match(context.Background(), "ambiguo", 0.5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Instituto Nacional", label)
	assert.InDelta(t, 70.71, score, 0.01)
}

func TestIndexUpstreamFailure(t *testing.T) {
	fake := newFake()
	idx, err := NewIndex(context.Background(), fake, schoolCandidates())
	require.NoError(t, err)

	fake.fail = errors.New("connection refused")
	_, _, _, _, err = idx.Match(context.Background(), "el nacional", 0.65)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, err = NewIndex(context.Background(), fake, schoolCandidates())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestIndexEmptyQuery(t *testing.T) {
	fake := newFake()
	idx, err := NewIndex(context.Background(), fake, schoolCandidates())
	require.NoError(t, err)

	label, score, _, ok, err := idx.Match(context.Background(), "  ", 0.65)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, label)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 2, fake.calls)
}
