package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"congreso/internal"
	"congreso/internal/dataset"
	"congreso/internal/standardize"
)

const (
	ColSchools       = "colegios"
	ColFirstSchool   = "colegio_principal"
	ColDirectoryName = "colegio_merge_key"
	ColDirectorySide = "COD_DEPE"
)

// StandardizeSchools matches each legislator's first school against the
// MINEDUC school directory and writes colegio_principal_clean, _score and
// _side, the side being the school's dependency code.
func (s *Service) StandardizeSchools(ctx context.Context, bios, directory *dataset.Table) (Result, error) {
	rn := s.begin("standardize schools")
	rn.counts["rows_in"] = bios.Len()
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(bios.Len()))

	candidates, err := DirectoryCandidates(directory, ColDirectoryName, ColDirectorySide)
	if err != nil {
		return Result{}, err
	}
	rn.counts["directory_entries"] = len(candidates)

	out := bios.Clone()
	schools, err := out.Column(ColSchools)
	if err != nil {
		return Result{}, err
	}
	first := make([]string, len(schools))
	for i, raw := range schools {
		first[i] = FirstSchool(raw)
	}
	_ = out.SetColumn(ColFirstSchool, first)

	school, err := s.resolver(ctx, internal.EntitySchool, candidates)
	if err != nil {
		return Result{}, err
	}
	if err := s.standardizeColumn(ctx, rn, out, ColFirstSchool, school, standardize.Options{WriteSide: true}); err != nil {
		return Result{}, err
	}
	return s.finish(rn, out, "schools_clean")
}

// DirectoryCandidates turns a school directory into match candidates.
// Blank names are skipped.
func DirectoryCandidates(directory *dataset.Table, nameColumn, sideColumn string) ([]internal.Candidate, error) {
	names, err := directory.Column(nameColumn)
	if err != nil {
		return nil, fmt.Errorf("school directory: %w", err)
	}
	sides, err := directory.Column(sideColumn)
	if err != nil {
		return nil, fmt.Errorf("school directory: %w", err)
	}
	out := make([]internal.Candidate, 0, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		out = append(out, internal.Candidate{Label: n, Side: sides[i]})
	}
	return out, nil
}

// FirstSchool reads the first entry of a colegios cell. Cells hold a JSON
// list as written by the bio extraction; anything else is taken as a single
// school name.
func FirstSchool(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			for _, s := range list {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
			return ""
		}
	}
	return raw
}
