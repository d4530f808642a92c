package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"congreso/internal"
	"congreso/internal/embed"
)

// ErrUpstreamUnavailable marks failures of the embedding backend. Unlike a
// missing match it aborts the standardization pass that hit it.
var ErrUpstreamUnavailable = errors.New("embedding backend unavailable")

type item struct {
	label  string
	side   string
	vector []float32
}

// Index holds candidate vectors encoded once with a single embedder. It is
// read-only after NewIndex and safe for concurrent Match calls.
type Index struct {
	embedder embed.Embedder
	items    []item
}

func NewIndex(ctx context.Context, embedder embed.Embedder, candidates []internal.Candidate) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("semantic index: nil embedder")
	}
	idx := &Index{embedder: embedder}
	if len(candidates) == 0 {
		return idx, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Label
	}
	vecs, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("encode %d candidates: %w: %w", len(texts), ErrUpstreamUnavailable, err)
	}
	if len(vecs) != len(candidates) {
		return nil, fmt.Errorf("encode candidates: got %d vectors for %d labels: %w", len(vecs), len(candidates), ErrUpstreamUnavailable)
	}

	idx.items = make([]item, len(candidates))
	for i, c := range candidates {
		idx.items[i] = item{label: c.Label, side: c.Side, vector: vecs[i]}
	}
	return idx, nil
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.items)
}

func (idx *Index) ModelID() string { return idx.embedder.ModelID() }

// Match encodes query and returns the most similar candidate, its similarity
// scaled to 0..100 and its side payload. Below threshold (0..1) the label and
// side are empty but the best score is still reported.
func (idx *Index) Match(ctx context.Context, query string, threshold float64) (string, float64, string, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" || idx.Len() == 0 {
		return "", 0, "", false, nil
	}

	vec, err := idx.embedder.EmbedText(ctx, query)
	if err != nil {
		return "", 0, "", false, fmt.Errorf("encode query %q: %w: %w", query, ErrUpstreamUnavailable, err)
	}

	best := -1
	bestSim := 0.0
	for i, it := range idx.items {
		sim := cosine(vec, it.vector)
		if best < 0 || sim > bestSim {
			best = i
			bestSim = sim
		}
	}

	score := bestSim * 100
	if bestSim >= threshold {
		return idx.items[best].label, score, idx.items[best].side, true, nil
	}
	return "", score, "", false, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
