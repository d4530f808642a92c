package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"congreso/internal"
	"congreso/internal/alias"
	"congreso/internal/categories"
	"congreso/internal/config"
	"congreso/internal/dataset"
	"congreso/internal/embed"
	"congreso/internal/observability"
	"congreso/internal/resolve"
	"congreso/internal/semantic"
	"congreso/internal/standardize"
	"congreso/internal/storage"
)

// Service runs the pipeline commands. db and embedder may be nil: without a
// database nothing is persisted, without an embedder semantic stages are
// skipped.
type Service struct {
	db       *storage.DB
	cfg      config.Config
	log      zerolog.Logger
	aliases  *alias.Catalog
	cats     *categories.Tables
	embedder embed.Embedder
}

func NewService(db *storage.DB, cfg config.Config, log zerolog.Logger, aliases *alias.Catalog, cats *categories.Tables, embedder embed.Embedder) *Service {
	return &Service{db: db, cfg: cfg, log: log, aliases: aliases, cats: cats, embedder: embedder}
}

// Result is what a command produced.
type Result struct {
	TraceID string
	Table   *dataset.Table
	Counts  internal.RunCounts
	Timings internal.RunTimings
	Outputs []string
}

type run struct {
	traceID string
	command string
	start   time.Time
	counts  internal.RunCounts
	timings internal.RunTimings
	metrics *observability.Metrics
	log     zerolog.Logger
}

func (s *Service) begin(command string) *run {
	id := uuid.NewString()
	return &run{
		traceID: id,
		command: command,
		start:   time.Now(),
		counts:  internal.RunCounts{},
		timings: internal.RunTimings{},
		metrics: observability.NewMetrics(),
		log:     observability.WithRun(s.log, id, command),
	}
}

// step times fn under name.
func (r *run) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	r.timings[name+"Ms"] = float64(elapsed.Milliseconds())
	r.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	return err
}

// finish exports the output table under name, records the run and writes
// the metrics textfile.
func (s *Service) finish(r *run, t *dataset.Table, name string) (Result, error) {
	res := Result{TraceID: r.traceID, Table: t, Counts: r.counts, Timings: r.timings}
	if t != nil {
		r.counts["rows_out"] = t.Len()
		outputs, err := s.export(t, name)
		if err != nil {
			return res, err
		}
		res.Outputs = outputs
	}
	r.timings["totalMs"] = float64(time.Since(r.start).Milliseconds())

	if s.db != nil {
		if err := s.db.InsertRun(r.traceID, r.command, r.timings, r.counts); err != nil {
			return res, err
		}
	}
	if err := r.metrics.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
		r.log.Warn().Err(err).Str("path", s.cfg.MetricsTextfile).Msg("metrics textfile not written")
	}

	r.log.Info().
		Interface("counts", r.counts).
		Float64("total_ms", r.timings["totalMs"]).
		Strs("outputs", res.Outputs).
		Msg("run finished")
	return res, nil
}

// resolver builds the cascade for entity over candidates. The alias stage
// is dropped when no alias table exists for entity, the semantic stage when
// no embedder is configured. A semantic index lives as long as the returned
// resolver.
func (s *Service) resolver(ctx context.Context, entity internal.EntityType, candidates []internal.Candidate) (*resolve.Cascade, error) {
	p := s.cfg.Policy(entity)
	var opts []resolve.Option
	if p.Stages.Alias {
		if tbl := s.aliases.Table(entity); tbl != nil {
			opts = append(opts, resolve.WithAliases(tbl))
		} else {
			p.Stages.Alias = false
		}
	}
	if p.Stages.Semantic {
		if s.embedder == nil {
			p = config.WithoutSemantic(p)
		} else {
			idx, err := semantic.NewIndex(ctx, s.embedder, candidates)
			if err != nil {
				return nil, err
			}
			opts = append(opts, resolve.WithIndex(idx))
		}
	}
	return resolve.New(p, candidates, opts...)
}

// Resolver returns the cascade for entity. A nil candidate list falls back to
// the canonical labels of the entity's alias table.
func (s *Service) Resolver(ctx context.Context, entity internal.EntityType, candidates []internal.Candidate) (*resolve.Cascade, error) {
	if candidates == nil {
		candidates = s.aliasCandidates(entity)
	}
	return s.resolver(ctx, entity, candidates)
}

func (s *Service) aliasCandidates(entity internal.EntityType) []internal.Candidate {
	tbl := s.aliases.Table(entity)
	if tbl == nil {
		return nil
	}
	labels := tbl.Canonicals()
	out := make([]internal.Candidate, len(labels))
	for i, l := range labels {
		out[i] = internal.Candidate{Label: l}
	}
	return out
}

// standardizeColumn applies r to column, records per-stage counts and
// metrics, and persists the translation map. Missing columns are skipped.
func (s *Service) standardizeColumn(ctx context.Context, rn *run, t *dataset.Table, column string, r resolve.Resolver, opts standardize.Options) error {
	entity := r.Entity()
	log := observability.WithEntity(rn.log, string(entity), column)
	if !t.HasColumn(column) {
		log.Warn().Msg("column missing, skipped")
		return nil
	}

	tm := standardize.TranslationMap{}
	opts.Workers = s.cfg.StandardizeWorkers
	opts.Observe = func(raw string, res internal.MatchResult) {
		tm[raw] = res
		rn.metrics.ObserveResolution(entity, res)
		if res.Status == internal.StatusUnknown {
			log.Debug().Str("raw", raw).Float64("best_score", res.Score).Msg("no confident match")
		}
	}

	var sum standardize.Summary
	err := rn.step(column, func() error {
		var err error
		sum, err = standardize.Apply(ctx, t, column, r, opts)
		return err
	})
	if err != nil {
		return err
	}

	rn.metrics.SetDistinct(entity, sum.Distinct)
	rn.counts[column+"_distinct"] = sum.Distinct
	for stage, n := range sum.ByStage {
		rn.counts[column+"_"+strings.ToLower(string(stage))] = n
	}
	log.Info().
		Int("rows", sum.Rows).
		Int("distinct", sum.Distinct).
		Interface("by_stage", sum.ByStage).
		Msg("column standardized")

	if s.db != nil {
		return s.db.SaveTranslations(rn.traceID, entity, tm)
	}
	return nil
}
