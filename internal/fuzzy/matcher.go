package fuzzy

import (
	"sort"
	"strings"

	"github.com/kljensen/snowball"

	"congreso/internal"
	"congreso/internal/util"
)

const DefaultTopK = 5

// Processor maps raw text to the form that gets scored.
type Processor func(string) string

// StemProcessor normalizes and then reduces every token to its Spanish
// Snowball stem. Tokens the stemmer rejects are kept as they are.
func StemProcessor(input string) string {
	tokens := util.Tokenize(util.Normalize(input))
	for i, tok := range tokens {
		if stemmed, err := snowball.Stem(tok, "spanish", true); err == nil && stemmed != "" {
			tokens[i] = stemmed
		}
	}
	return strings.Join(tokens, " ")
}

type Matcher struct {
	topK      int
	processor Processor
	scorer    internal.LexicalScorer
}

// NewMatcher returns the two-pass name matcher: top K by TokenSetRatio,
// rescored with PartialTokenSetRatio.
func NewMatcher(topK int, processor Processor) *Matcher {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if processor == nil {
		processor = util.Normalize
	}
	return &Matcher{topK: topK, processor: processor, scorer: internal.ScorerTwoPassTokenSet}
}

// NewTokenSortMatcher scores every choice with TokenSortRatio and keeps the
// first best one.
func NewTokenSortMatcher(processor Processor) *Matcher {
	m := NewMatcher(DefaultTopK, processor)
	m.scorer = internal.ScorerTokenSort
	return m
}

// NewScorerMatcher returns the matcher for a policy scorer; an empty scorer
// means token sort.
func NewScorerMatcher(scorer internal.LexicalScorer, topK int, processor Processor) *Matcher {
	if scorer == internal.ScorerTwoPassTokenSet {
		return NewMatcher(topK, processor)
	}
	return NewTokenSortMatcher(processor)
}

// ChoiceSet holds candidate labels with their processed forms, so a
// vocabulary is processed once and reused across queries.
type ChoiceSet struct {
	labels []string
	tokens [][]string
	sorted [][]rune
}

func (c *ChoiceSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.labels)
}

func (c *ChoiceSet) Label(i int) string { return c.labels[i] }

func (m *Matcher) Prepare(choices []string) *ChoiceSet {
	set := &ChoiceSet{
		labels: make([]string, len(choices)),
		tokens: make([][]string, len(choices)),
		sorted: make([][]rune, len(choices)),
	}
	for i, choice := range choices {
		processed := m.processor(choice)
		set.labels[i] = choice
		set.tokens[i] = tokenSet(processed)
		set.sorted[i] = []rune(sortedJoin(strings.Fields(processed)))
	}
	return set
}

// Match runs the matcher against an unprepared choice list.
func (m *Matcher) Match(query string, choices []string, threshold float64) (string, float64, bool) {
	if query == "" || len(choices) == 0 {
		return "", 0, false
	}
	return m.MatchSet(query, m.Prepare(choices), threshold)
}

// MatchSet accepts the best choice when its score reaches threshold. On
// rejection the best score is still returned.
func (m *Matcher) MatchSet(query string, set *ChoiceSet, threshold float64) (string, float64, bool) {
	idx, score := m.MatchIndex(query, set, threshold)
	if idx < 0 {
		return "", score, false
	}
	return set.labels[idx], score, true
}

// MatchIndex is MatchSet returning the position of the accepted choice, or
// -1 with the best score seen.
func (m *Matcher) MatchIndex(query string, set *ChoiceSet, threshold float64) (int, float64) {
	if set.Len() == 0 {
		return -1, 0
	}
	processed := m.processor(query)

	var best int
	var score float64
	if m.scorer == internal.ScorerTwoPassTokenSet {
		best, score = m.bestTwoPass(tokenSet(processed), set)
	} else {
		best, score = bestTokenSort([]rune(sortedJoin(strings.Fields(processed))), set)
	}
	if best >= 0 && score >= threshold {
		return best, score
	}
	return -1, score
}

func (m *Matcher) bestTwoPass(q []string, set *ChoiceSet) (int, float64) {
	if len(q) == 0 {
		return -1, 0
	}
	bestIdx := -1
	bestScore := 0.0
	for _, hit := range m.top(q, set) {
		score := max(hit.score, partialTokenSetRatio(q, set.tokens[hit.index]))
		if bestIdx < 0 || score > bestScore {
			bestIdx = hit.index
			bestScore = score
		}
	}
	return bestIdx, bestScore
}

func bestTokenSort(q []rune, set *ChoiceSet) (int, float64) {
	if len(q) == 0 {
		return -1, 0
	}
	bestIdx := -1
	bestScore := 0.0
	for i, choice := range set.sorted {
		score := ratioRunes(q, choice)
		if bestIdx < 0 || score > bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	return bestIdx, bestScore
}

// Top returns the K best choices by TokenSetRatio, ties in choice order.
func (m *Matcher) Top(query string, set *ChoiceSet) []internal.MatchCandidate {
	q := tokenSet(m.processor(query))
	hits := m.top(q, set)
	out := make([]internal.MatchCandidate, 0, len(hits))
	for _, hit := range hits {
		out = append(out, internal.MatchCandidate{Label: set.labels[hit.index], Score: hit.score})
	}
	return out
}

type scoredIndex struct {
	index int
	score float64
}

func (m *Matcher) top(query []string, set *ChoiceSet) []scoredIndex {
	if len(query) == 0 || set.Len() == 0 {
		return nil
	}
	scored := make([]scoredIndex, len(set.labels))
	for i, tokens := range set.tokens {
		scored[i] = scoredIndex{index: i, score: tokenSetRatio(query, tokens)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > m.topK {
		scored = scored[:m.topK]
	}
	return scored
}
