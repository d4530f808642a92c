package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"congreso/internal/dataset"
	"congreso/internal/dedupe"
	"congreso/internal/sources/llm"
	"congreso/internal/sources/senado"
)

const (
	ColVoteType        = "Tipo.#text"
	ColVoteDescription = "Descripcion"
	BillType           = "Proyecto de Ley"
	ColBulletinID      = "boletin_id"
	ColSubjectsJSON    = "materias_json"
	ColAreas           = "ambitos_detectados"
)

type BulletinFetcher interface {
	Bulletin(ctx context.Context, id string) (senado.Bulletin, error)
}

// FetchBulletins collects the bulletin ids mentioned by bill divisions in a
// vote table and downloads each one. Unknown and failing bulletins are
// logged and skipped.
func (s *Service) FetchBulletins(ctx context.Context, votes *dataset.Table, fetcher BulletinFetcher) (Result, error) {
	rn := s.begin("bulletins parse")
	rn.counts["rows_in"] = votes.Len()

	ids, err := senado.ExtractBulletinIDs(votes, ColVoteType, BillType, ColVoteDescription)
	if err != nil {
		return Result{}, err
	}
	rn.counts["bulletin_ids"] = len(ids)
	rn.log.Info().Int("ids", len(ids)).Msg("bulletin ids extracted")

	var bulletins []senado.Bulletin
	err = rn.step("fetch", func() error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := fetcher.Bulletin(ctx, id)
			switch {
			case errors.Is(err, senado.ErrNoProject):
				rn.counts["bulletins_missing"]++
				rn.log.Debug().Str("boletin", id).Msg("no project for bulletin")
				continue
			case err != nil:
				rn.counts["bulletins_failed"]++
				rn.log.Error().Err(err).Str("boletin", id).Msg("bulletin fetch failed")
				continue
			}
			bulletins = append(bulletins, b)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	rn.counts["bulletins_fetched"] = len(bulletins)
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(votes.Len()))
	return s.finish(rn, senado.BulletinTable(bulletins), "bulletins")
}

// DedupeBulletins keeps the most recently filed row per bulletin.
func (s *Service) DedupeBulletins(ctx context.Context, t *dataset.Table) (Result, error) {
	return s.Dedupe(ctx, "bulletins", t, ColBulletinID, []dedupe.SortField{
		{Field: ColFiledAt, Desc: true},
	})
}

type SubjectClassifier interface {
	ClassifySubjects(ctx context.Context, subjects []string) (llm.SubjectAreasResult, error)
}

// ClassifyBulletins assigns thematic areas to every bulletin from its
// subject list, writing them as a JSON list to ambitos_detectados. Rows
// without subjects or with a failed call get an empty cell.
func (s *Service) ClassifyBulletins(ctx context.Context, t *dataset.Table, classifier SubjectClassifier) (Result, error) {
	rn := s.begin("bulletins classify")
	rn.counts["rows_in"] = t.Len()

	raw, err := t.Column(ColSubjectsJSON)
	if err != nil {
		return Result{}, err
	}
	out := t.Clone()
	areas := make([]string, len(raw))
	err = rn.step("classify", func() error {
		for i, cell := range raw {
			if err := ctx.Err(); err != nil {
				return err
			}
			var subjects []string
			if cell != "" {
				if err := json.Unmarshal([]byte(cell), &subjects); err != nil {
					rn.log.Warn().Err(err).Int("row", i).Msg("bad subject list")
					rn.counts["classify_skipped"]++
					continue
				}
			}
			if len(subjects) == 0 {
				rn.counts["classify_skipped"]++
				continue
			}
			res, err := classifier.ClassifySubjects(ctx, subjects)
			if err != nil {
				rn.log.Error().Err(err).Str("boletin", out.Get(i, ColBulletinID)).Msg("classification failed")
				rn.counts["classify_failed"]++
				continue
			}
			blob, _ := json.Marshal(res.Areas)
			areas[i] = string(blob)
			rn.counts["classified"]++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	_ = out.SetColumn(ColAreas, areas)
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(t.Len()))
	return s.finish(rn, out, "bulletins_classified")
}

const (
	ColMotionURL  = "link_mensaje_mocion"
	ColMotionText = "texto_mocion"
)

type MotionFetcher interface {
	Motion(ctx context.Context, b senado.Bulletin) (string, error)
}

// FetchMotions fills texto_mocion with the text of each bulletin's motion
// PDF. Rows without a link are left empty; download failures are counted.
func (s *Service) FetchMotions(ctx context.Context, t *dataset.Table, fetcher MotionFetcher) (Result, error) {
	rn := s.begin("bulletins motions")
	rn.counts["rows_in"] = t.Len()
	if !t.HasColumn(ColMotionURL) {
		return Result{}, fmt.Errorf("input has no %s column", ColMotionURL)
	}

	out := t.Clone()
	out.EnsureColumn(ColMotionText)
	err := rn.step("motions", func() error {
		for i := range out.Rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			link := strings.TrimSpace(out.Get(i, ColMotionURL))
			if link == "" {
				rn.counts["motions_skipped"]++
				continue
			}
			text, err := fetcher.Motion(ctx, senado.Bulletin{
				ID:        out.Get(i, ColBulletinID),
				MotionURL: link,
			})
			if err != nil {
				rn.counts["motions_failed"]++
				rn.log.Error().Err(err).Str("boletin", out.Get(i, ColBulletinID)).Msg("motion download failed")
				continue
			}
			out.Set(i, ColMotionText, text)
			rn.counts["motions_fetched"]++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	rn.metrics.RowsProcessed.WithLabelValues(rn.command).Add(float64(t.Len()))
	return s.finish(rn, out, "bulletins_motions")
}
