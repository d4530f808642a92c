package internal

type EntityType string

const (
	EntityUniversity EntityType = "university"
	EntitySchool     EntityType = "school"
	EntityCareer     EntityType = "career"
	EntityLegislator EntityType = "legislator"

	EntityCivilStatus EntityType = "civil_status"
	EntityEducation   EntityType = "education"
	EntityBirthplace  EntityType = "birthplace"
	EntityVote        EntityType = "vote"
)

type MatchStatus string

type MatchStage string

const (
	StatusMatched MatchStatus = "MATCHED"
	StatusUnknown MatchStatus = "UNKNOWN"
	StatusEmpty   MatchStatus = "EMPTY"

	StageAlias    MatchStage = "ALIAS"
	StageLexical  MatchStage = "LEXICAL"
	StageSemantic MatchStage = "SEMANTIC"
	StageNone     MatchStage = "NONE"
)

// MatchCandidate is an intermediate scored choice. Scores are 0..100.
type MatchCandidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// MatchResult is the outcome of resolving one raw value. Label always holds
// something writable to a *_clean column: the canonical label on a match, the
// policy sentinel otherwise.
type MatchResult struct {
	Label  string      `json:"label"`
	Score  float64     `json:"score"`
	Stage  MatchStage  `json:"stage"`
	Status MatchStatus `json:"status"`
	Side   string      `json:"side,omitempty"`
}

func (r MatchResult) Matched() bool {
	return r.Status == StatusMatched
}

// LexicalScorer selects how the lexical stage scores a query against the
// vocabulary.
type LexicalScorer string

const (
	// ScorerTokenSort takes the best TokenSortRatio over every choice.
	ScorerTokenSort LexicalScorer = "token_sort"
	// ScorerTwoPassTokenSet ranks the top K by TokenSetRatio and rescores
	// them with PartialTokenSetRatio. Built for person names, where one side
	// often carries extra initials or surnames.
	ScorerTwoPassTokenSet LexicalScorer = "two_pass_token_set"
)

type Stages struct {
	Alias    bool `yaml:"alias"`
	Lexical  bool `yaml:"lexical"`
	Semantic bool `yaml:"semantic"`
}

// Policy binds an entity type to the cascade stages and thresholds used to
// resolve it. LexicalThreshold is on the 0..100 scale, SemanticThreshold on 0..1.
// An empty Scorer means ScorerTokenSort.
type Policy struct {
	Entity            EntityType
	Stages            Stages
	Scorer            LexicalScorer
	TopK              int
	LexicalThreshold  float64
	SemanticThreshold float64
	StemTokens        bool
	EmptyLabel        string
	UnknownLabel      string
}

// Candidate is a reference-vocabulary entry. Side carries an optional
// attribute of the row, e.g. a school's dependency code.
type Candidate struct {
	Label string
	Side  string
}

type RunCounts map[string]int

type RunTimings map[string]float64
