package standardize

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"congreso/internal"
	"congreso/internal/dataset"
	"congreso/internal/resolve"
)

// TranslationMap holds one result per distinct raw value of a column.
type TranslationMap map[string]internal.MatchResult

type Options struct {
	// Workers > 1 resolves distinct values concurrently.
	Workers int
	// WriteSide adds a <column>_side column with the matched side payload.
	WriteSide bool
	// Output overrides the <column>_clean name.
	Output string
	// Observe is called once per distinct value after it is resolved, in
	// first-seen order.
	Observe func(raw string, res internal.MatchResult)
}

// Distinct returns the distinct values in first-seen order.
func Distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Column resolves every distinct value exactly once. The first resolver
// error aborts the whole column.
func Column(ctx context.Context, values []string, r resolve.Resolver, opts Options) (TranslationMap, error) {
	distinct := Distinct(values)
	results := make([]internal.MatchResult, len(distinct))

	if opts.Workers <= 1 {
		for i, v := range distinct {
			res, err := r.Resolve(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("resolve %s value %q: %w", r.Entity(), v, err)
			}
			results[i] = res
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, v := range distinct {
			i, v := i, v
			g.Go(func() error {
				res, err := r.Resolve(gctx, v)
				if err != nil {
					return fmt.Errorf("resolve %s value %q: %w", r.Entity(), v, err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make(TranslationMap, len(distinct))
	for i, v := range distinct {
		out[v] = results[i]
		if opts.Observe != nil {
			opts.Observe(v, results[i])
		}
	}
	return out, nil
}

// Broadcast maps every row back through the translation map.
func Broadcast(values []string, m TranslationMap) []internal.MatchResult {
	out := make([]internal.MatchResult, len(values))
	for i, v := range values {
		out[i] = m[v]
	}
	return out
}

type Summary struct {
	Rows     int
	Distinct int
	ByStage  map[internal.MatchStage]int
}

// Apply standardizes one column of t in place, writing <column>_clean and
// <column>_score, plus <column>_side when requested.
func Apply(ctx context.Context, t *dataset.Table, column string, r resolve.Resolver, opts Options) (Summary, error) {
	values, err := t.Column(column)
	if err != nil {
		return Summary{}, err
	}
	m, err := Column(ctx, values, r, opts)
	if err != nil {
		return Summary{}, err
	}
	results := Broadcast(values, m)

	clean := make([]string, len(results))
	scores := make([]string, len(results))
	sides := make([]string, len(results))
	for i, res := range results {
		clean[i] = res.Label
		scores[i] = FormatScore(res.Score)
		sides[i] = res.Side
	}

	out := opts.Output
	if out == "" {
		out = column + "_clean"
	}
	if err := t.SetColumn(out, clean); err != nil {
		return Summary{}, err
	}
	if err := t.SetColumn(column+"_score", scores); err != nil {
		return Summary{}, err
	}
	if opts.WriteSide {
		if err := t.SetColumn(column+"_side", sides); err != nil {
			return Summary{}, err
		}
	}

	sum := Summary{Rows: len(values), Distinct: len(m), ByStage: map[internal.MatchStage]int{}}
	for _, res := range m {
		sum.ByStage[res.Stage]++
	}
	return sum, nil
}

func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}
