package pipeline

import (
	"context"

	"congreso/internal"
	"congreso/internal/dataset"
	"congreso/internal/resolve"
	"congreso/internal/standardize"
)

// DefaultVoteColumn is the option column of an exploded vote detail table.
const DefaultVoteColumn = "OpcionVoto.#text"

// StandardizeVotes maps the free-text vote options of column onto the vote
// vocabulary, writing <column>_clean and <column>_score.
func (s *Service) StandardizeVotes(ctx context.Context, t *dataset.Table, column string) (Result, error) {
	if column == "" {
		column = DefaultVoteColumn
	}
	rn := s.begin("standardize votes")
	rn.counts["rows_in"] = t.Len()
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(t.Len()))

	if _, err := t.Column(column); err != nil {
		return Result{}, err
	}
	out := t.Clone()
	votes := resolve.NewFunc(internal.EntityVote, s.cats.VoteUnknown(), s.cats.Vote)
	if err := s.standardizeColumn(ctx, rn, out, column, votes, standardize.Options{}); err != nil {
		return Result{}, err
	}
	return s.finish(rn, out, "votes_clean")
}
