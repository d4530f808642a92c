package pipeline

import (
	"context"
	"errors"
	"strconv"

	"congreso/internal"
	"congreso/internal/dataset"
	"congreso/internal/resolve"
	"congreso/internal/sources/bcn"
	"congreso/internal/sources/llm"
	"congreso/internal/standardize"
)

// Bio table columns read and written by the biography steps.
const (
	ColUniversity     = "universidad"
	ColCareer         = "carrera"
	ColEducation      = "maximo_nivel_educativo"
	ColEducationClean = "educacion_nivel_clean"
	ColCivilStatus    = "estado_civil"
	ColBirthplace     = "lugar_nacimiento"
	ColBirthCity      = "ciudad_nac"
	ColBirthCountry   = "pais_nac"
	ColBioURL         = "url_bcn"
	ColDistrict       = "distrito"
	ColBioText        = "texto_biografia"
	ColBioStatus      = "estado_extraccion"
)

// StandardizeBios cleans a biography table: universities through the full
// cascade, careers through alias and stemmed lexical matching, and education
// level, civil status and birthplace through the category tables. One
// semantic index is built for the pass and dropped with it.
func (s *Service) StandardizeBios(ctx context.Context, t *dataset.Table) (Result, error) {
	rn := s.begin("standardize bios")
	rn.counts["rows_in"] = t.Len()
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(t.Len()))
	out := t.Clone()

	uni, err := s.resolver(ctx, internal.EntityUniversity, s.aliasCandidates(internal.EntityUniversity))
	if err != nil {
		return Result{}, err
	}
	if err := s.standardizeColumn(ctx, rn, out, ColUniversity, uni, standardize.Options{}); err != nil {
		return Result{}, err
	}

	career, err := s.resolver(ctx, internal.EntityCareer, s.aliasCandidates(internal.EntityCareer))
	if err != nil {
		return Result{}, err
	}
	if err := s.standardizeColumn(ctx, rn, out, ColCareer, career, standardize.Options{}); err != nil {
		return Result{}, err
	}

	s.educationLevels(rn, out)

	civil := resolve.NewFunc(internal.EntityCivilStatus, s.cats.CivilStatusDefault(), s.cats.CivilStatus)
	if err := s.standardizeColumn(ctx, rn, out, ColCivilStatus, civil, standardize.Options{}); err != nil {
		return Result{}, err
	}

	s.birthplaces(rn, out)

	return s.finish(rn, out, "bios_clean")
}

// educationLevels derives educacion_nivel_clean row by row since it reads
// both the declared level and the university.
func (s *Service) educationLevels(rn *run, t *dataset.Table) {
	if !t.HasColumn(ColEducation) && !t.HasColumn(ColUniversity) {
		rn.log.Warn().Msg("no education columns, skipped")
		return
	}
	col := t.EnsureColumn(ColEducationClean)
	mapped := 0
	for i := range t.Rows {
		level, ok := s.cats.EducationLevel(t.Get(i, ColEducation), t.Get(i, ColUniversity))
		t.Rows[i][col] = level
		if ok {
			mapped++
		}
	}
	rn.counts[ColEducationClean+"_mapped"] = mapped
}

// birthplaces splits lugar_nacimiento into city and country, once per
// distinct value.
func (s *Service) birthplaces(rn *run, t *dataset.Table) {
	values, err := t.Column(ColBirthplace)
	if err != nil {
		rn.log.Warn().Str("column", ColBirthplace).Msg("column missing, skipped")
		return
	}
	distinct := standardize.Distinct(values)
	cities := make(map[string]string, len(distinct))
	countries := make(map[string]string, len(distinct))
	for _, v := range distinct {
		p := s.cats.Birthplace(v)
		cities[v] = p.City
		countries[v] = p.Country
	}

	cityCol := make([]string, len(values))
	countryCol := make([]string, len(values))
	for i, v := range values {
		cityCol[i] = cities[v]
		countryCol[i] = countries[v]
	}
	_ = t.SetColumn(ColBirthCity, cityCol)
	_ = t.SetColumn(ColBirthCountry, countryCol)
	rn.counts[ColBirthplace+"_distinct"] = len(distinct)
}

type BioFetcher interface {
	Bio(ctx context.Context, pageURL string, validPeriods []string) (bcn.Bio, error)
}

type BioExtractor interface {
	ExtractBio(ctx context.Context, text string) (llm.BioFields, error)
}

// Extraction outcomes written to estado_extraccion.
const (
	BioOK       = "ok"
	BioFetchErr = "error_descarga"
	BioTooShort = "texto_insuficiente"
	BioModelErr = "error_modelo"
	BioNoURL    = "sin_url"
)

// ExtractBios fetches the BCN page of every row of a matched legislator
// table and extracts biography fields from it. Per-row failures are recorded
// in estado_extraccion and never abort the run.
func (s *Service) ExtractBios(ctx context.Context, t *dataset.Table, validPeriods []string, fetcher BioFetcher, extractor BioExtractor) (Result, error) {
	rn := s.begin("bio parse")
	rn.counts["rows_in"] = t.Len()
	if !t.HasColumn(ColBioURL) {
		return Result{}, errors.New("table has no " + ColBioURL + " column")
	}

	out := dataset.New(t.Columns...)
	for _, c := range append([]string{ColDistrict, ColBioText, ColBioStatus}, llm.BioColumns...) {
		out.EnsureColumn(c)
	}

	err := rn.step("extract", func() error {
		for i := range t.Rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := t.Record(i)
			status := s.extractBio(ctx, rn, rec, validPeriods, fetcher, extractor)
			rec[ColBioStatus] = status
			rn.counts["bio_"+status]++
			out.AppendMap(rec)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(t.Len()))
	return s.finish(rn, out, "bios")
}

func (s *Service) extractBio(ctx context.Context, rn *run, rec map[string]string, periods []string, fetcher BioFetcher, extractor BioExtractor) string {
	url := rec[ColBioURL]
	if url == "" {
		return BioNoURL
	}
	log := rn.log.With().Str("url", url).Logger()

	bio, err := fetcher.Bio(ctx, url, periods)
	if err != nil {
		log.Error().Err(err).Int("status", bio.Status).Msg("bio page fetch failed")
		return BioFetchErr
	}
	if bio.District != 0 {
		rec[ColDistrict] = strconv.Itoa(bio.District)
	}
	rec[ColBioText] = bio.FullText

	fields, err := extractor.ExtractBio(ctx, bio.FullText)
	switch {
	case errors.Is(err, llm.ErrTextTooShort):
		log.Info().Int("chars", len([]rune(bio.FullText))).Msg("bio text too short, not extracted")
		return BioTooShort
	case err != nil:
		log.Error().Err(err).Msg("bio extraction failed")
		return BioModelErr
	}
	for k, v := range fields.Row() {
		rec[k] = v
	}
	return BioOK
}
