package pipeline

import (
	"context"
	"strconv"
	"strings"

	"congreso/internal"
	"congreso/internal/dataset"
	"congreso/internal/dedupe"
	"congreso/internal/sources/bcn"
	"congreso/internal/standardize"
	"congreso/internal/util"
)

const (
	ColFullName     = "nombre_completo"
	ColListingName  = "nombre_en_lista"
	ColListingPage  = "pagina"
	ColBCNName      = "nombre_bcn"
	ColMatchScore   = "match_score"
	ColLegislatorID = "Diputado.Id"
	ColFiledAt      = "fecha_ingreso"
)

// DefaultNameColumns build a legislator's full name from the chamber roster.
var DefaultNameColumns = []string{"Diputado.Nombre", "Diputado.ApellidoPaterno", "Diputado.ApellidoMaterno"}

// ListingTable lays BCN index entries out as rows.
func ListingTable(entries []bcn.ListEntry) *dataset.Table {
	t := dataset.New(ColListingName, ColBioURL, ColListingPage)
	for _, e := range entries {
		t.Append([]string{e.Name, e.URL, strconv.Itoa(e.Page)})
	}
	return t
}

// MatchLegislators links roster rows to BCN biography pages by name. The
// full name is built from nameColumns, matched once per distinct name with
// the legislator policy, and the hit's listing name, URL and score are
// written to nombre_bcn, url_bcn and match_score. Unmatched rows keep the
// best score with empty name and URL.
func (s *Service) MatchLegislators(ctx context.Context, roster, listing *dataset.Table, nameColumns []string) (Result, error) {
	if len(nameColumns) == 0 {
		nameColumns = DefaultNameColumns
	}
	rn := s.begin("match legislators")
	rn.counts["rows_in"] = roster.Len()
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(roster.Len()))

	names, err := listing.Column(ColListingName)
	if err != nil {
		return Result{}, err
	}
	urls, err := listing.Column(ColBioURL)
	if err != nil {
		return Result{}, err
	}
	candidates := make([]internal.Candidate, 0, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) != "" {
			candidates = append(candidates, internal.Candidate{Label: n, Side: urls[i]})
		}
	}
	rn.counts["listing_entries"] = len(candidates)

	out := roster.Clone()
	full, err := FullNames(out, nameColumns)
	if err != nil {
		return Result{}, err
	}
	_ = out.SetColumn(ColFullName, full)

	r, err := s.resolver(ctx, internal.EntityLegislator, candidates)
	if err != nil {
		return Result{}, err
	}
	tm := standardize.TranslationMap{}
	err = rn.step("match", func() error {
		var err error
		tm, err = standardize.Column(ctx, full, r, standardize.Options{
			Workers: s.cfg.StandardizeWorkers,
			Observe: func(_ string, res internal.MatchResult) {
				rn.metrics.ObserveResolution(internal.EntityLegislator, res)
			},
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	results := standardize.Broadcast(full, tm)
	bcnNames := make([]string, len(results))
	bcnURLs := make([]string, len(results))
	scores := make([]string, len(results))
	matched := 0
	for i, res := range results {
		scores[i] = standardize.FormatScore(res.Score)
		if res.Matched() {
			bcnNames[i] = res.Label
			bcnURLs[i] = res.Side
			matched++
		}
	}
	_ = out.SetColumn(ColBCNName, bcnNames)
	_ = out.SetColumn(ColBioURL, bcnURLs)
	_ = out.SetColumn(ColMatchScore, scores)

	rn.metrics.SetDistinct(internal.EntityLegislator, len(tm))
	rn.counts["matched"] = matched
	rn.counts["unmatched"] = len(results) - matched
	if s.db != nil {
		if err := s.db.SaveTranslations(rn.traceID, internal.EntityLegislator, tm); err != nil {
			return Result{}, err
		}
	}
	return s.finish(rn, out, "legislators_matched")
}

// FullNames joins the non-empty name parts of every row with single spaces.
func FullNames(t *dataset.Table, nameColumns []string) ([]string, error) {
	parts := make([][]string, 0, len(nameColumns))
	for _, c := range nameColumns {
		col, err := t.Column(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, col)
	}
	out := make([]string, t.Len())
	for i := range out {
		var b []string
		for _, col := range parts {
			if v := util.CollapseSpaces(col[i]); v != "" {
				b = append(b, v)
			}
		}
		out[i] = strings.Join(b, " ")
	}
	return out, nil
}

// DedupeLegislators keeps one master row per legislator: best name match
// first, then the latest filing date.
func (s *Service) DedupeLegislators(ctx context.Context, t *dataset.Table) (Result, error) {
	return s.Dedupe(ctx, "legislators", t, ColLegislatorID, []dedupe.SortField{
		{Field: ColMatchScore, Desc: true},
		{Field: ColFiledAt, Desc: true},
	})
}
