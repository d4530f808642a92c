package pipeline

import (
	"context"

	"congreso/internal/dataset"
	"congreso/internal/dedupe"
)

// Dedupe collapses t to one master row per key and stores the survivors
// under name. Sort fields missing from t are dropped with a warning; a
// missing key column is an error.
func (s *Service) Dedupe(_ context.Context, name string, t *dataset.Table, key string, sortFields []dedupe.SortField) (Result, error) {
	rn := s.begin("dedupe " + name)
	rn.counts["rows_in"] = t.Len()
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(t.Len()))

	usable := make([]dedupe.SortField, 0, len(sortFields))
	for _, f := range sortFields {
		if !t.HasColumn(f.Field) {
			rn.log.Warn().Str("field", f.Field).Msg("sort field missing, ignored")
			continue
		}
		usable = append(usable, f)
	}

	var master *dataset.Table
	err := rn.step("dedupe", func() error {
		var err error
		master, err = dedupe.Deduplicate(t, key, usable)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	rn.counts["duplicates_dropped"] = t.Len() - master.Len()

	if s.db != nil {
		if err := s.db.SaveMasterRecords(name, key, rn.traceID, master); err != nil {
			return Result{}, err
		}
	}
	return s.finish(rn, master, name+"_master")
}
