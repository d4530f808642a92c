package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"congreso/internal"
	"congreso/internal/alias"
	"congreso/internal/fuzzy"
	"congreso/internal/semantic"
	"congreso/internal/util"
)

// Resolver maps one raw value to a canonical label. Implementations return
// sentinel results for empty or unmatched input and reserve errors for
// backend failures.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (internal.MatchResult, error)
	Entity() internal.EntityType
}

// Cascade runs alias lookup, lexical matching and the semantic fallback in
// that order, as enabled by its policy. It holds no mutable state and can be
// shared across goroutines.
type Cascade struct {
	policy  internal.Policy
	aliases *alias.Table
	matcher *fuzzy.Matcher
	choices *fuzzy.ChoiceSet
	sides   []string
	first   map[string]int
	index   *semantic.Index
}

type Option func(*Cascade)

func WithAliases(t *alias.Table) Option {
	return func(c *Cascade) { c.aliases = t }
}

// WithIndex attaches the semantic index for policies that enable the
// semantic stage. The caller owns it and decides its lifetime.
func WithIndex(idx *semantic.Index) Option {
	return func(c *Cascade) { c.index = idx }
}

// New builds a cascade over the reference vocabulary. Candidate side
// payloads are returned with lexical and semantic matches.
func New(policy internal.Policy, candidates []internal.Candidate, opts ...Option) (*Cascade, error) {
	c := &Cascade{policy: policy, first: map[string]int{}}
	for _, opt := range opts {
		opt(c)
	}

	if policy.Stages.Alias && c.aliases == nil {
		return nil, fmt.Errorf("%s: alias stage enabled without an alias table", policy.Entity)
	}
	if policy.Stages.Semantic && c.index == nil {
		return nil, fmt.Errorf("%s: semantic stage enabled without an index", policy.Entity)
	}
	if !policy.Stages.Alias && !policy.Stages.Lexical && !policy.Stages.Semantic {
		return nil, errors.New(string(policy.Entity) + ": no stage enabled")
	}

	var processor fuzzy.Processor
	if policy.StemTokens {
		processor = fuzzy.StemProcessor
	}
	c.matcher = fuzzy.NewScorerMatcher(policy.Scorer, policy.TopK, processor)

	labels := make([]string, len(candidates))
	c.sides = make([]string, len(candidates))
	for i, cand := range candidates {
		labels[i] = cand.Label
		c.sides[i] = cand.Side
		if _, seen := c.first[cand.Label]; !seen {
			c.first[cand.Label] = i
		}
	}
	c.choices = c.matcher.Prepare(labels)
	return c, nil
}

func (c *Cascade) Entity() internal.EntityType { return c.policy.Entity }

func (c *Cascade) Policy() internal.Policy { return c.policy }

func (c *Cascade) Resolve(ctx context.Context, raw string) (internal.MatchResult, error) {
	normalized := util.Normalize(raw)
	if normalized == "" {
		return internal.MatchResult{
			Label:  c.policy.EmptyLabel,
			Stage:  internal.StageNone,
			Status: internal.StatusEmpty,
		}, nil
	}

	if c.policy.Stages.Alias && c.aliases != nil {
		if canonical, ok := c.aliases.Resolve(normalized); ok {
			return c.matched(canonical, 100, internal.StageAlias, c.aliasSide(canonical)), nil
		}
	}

	best := 0.0
	if c.policy.Stages.Lexical {
		i, score := c.matcher.MatchIndex(raw, c.choices, c.policy.LexicalThreshold)
		if i >= 0 {
			return c.matched(c.choices.Label(i), score, internal.StageLexical, c.sides[i]), nil
		}
		best = score
	}

	if c.policy.Stages.Semantic && c.index != nil {
		label, score, side, ok, err := c.index.Match(ctx, strings.TrimSpace(raw), c.policy.SemanticThreshold)
		if err != nil {
			return internal.MatchResult{}, fmt.Errorf("%s semantic stage: %w", c.policy.Entity, err)
		}
		if ok {
			return c.matched(label, score, internal.StageSemantic, side), nil
		}
		best = max(best, score)
	}

	return internal.MatchResult{
		Label:  c.policy.UnknownLabel,
		Score:  best,
		Stage:  internal.StageNone,
		Status: internal.StatusUnknown,
	}, nil
}

// aliasSide is the side of the first candidate carrying canonical, if any.
func (c *Cascade) aliasSide(canonical string) string {
	if i, ok := c.first[canonical]; ok {
		return c.sides[i]
	}
	return ""
}

func (c *Cascade) matched(label string, score float64, stage internal.MatchStage, side string) internal.MatchResult {
	return internal.MatchResult{
		Label:  label,
		Score:  score,
		Stage:  stage,
		Status: internal.StatusMatched,
		Side:   side,
	}
}

// Func adapts a plain classification function, such as a category rule
// table, to the Resolver interface. Empty input short-circuits to the
// empty label.
type Func struct {
	entity     internal.EntityType
	emptyLabel string
	fn         func(string) (string, bool)
}

func NewFunc(entity internal.EntityType, emptyLabel string, fn func(string) (string, bool)) *Func {
	return &Func{entity: entity, emptyLabel: emptyLabel, fn: fn}
}

func (f *Func) Entity() internal.EntityType { return f.entity }

func (f *Func) Resolve(_ context.Context, raw string) (internal.MatchResult, error) {
	if util.Normalize(raw) == "" {
		return internal.MatchResult{Label: f.emptyLabel, Stage: internal.StageNone, Status: internal.StatusEmpty}, nil
	}
	label, ok := f.fn(raw)
	if !ok {
		return internal.MatchResult{Label: label, Stage: internal.StageNone, Status: internal.StatusUnknown}, nil
	}
	return internal.MatchResult{Label: label, Score: 100, Stage: internal.StageAlias, Status: internal.StatusMatched}, nil
}
