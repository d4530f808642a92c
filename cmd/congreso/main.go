package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"congreso/internal/alias"
	"congreso/internal/categories"
	"congreso/internal/config"
	"congreso/internal/embed"
	"congreso/internal/observability"
	"congreso/internal/pipeline"
	"congreso/internal/sources/fetch"
	"congreso/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "congreso",
		Short: "Entity resolution for Chilean legislative data",
		Long: `congreso cleans and links data about Chilean legislators and bills.

It standardizes free-text universities, schools, careers and vote options
against curated vocabularies, links chamber rosters to BCN biographies and
collapses repeated records into one master row per key.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(standardizeCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(dedupeCmd())
	rootCmd.AddCommand(bulletinsCmd())
	rootCmd.AddCommand(bioCmd())
	rootCmd.AddCommand(camaraCmd())
	rootCmd.AddCommand(aliasesCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(runsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs. Commands that do not touch the
// semantic stage never load an embedder.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *storage.DB
	embedder embed.Embedder
	aliases  *alias.Catalog
	cats     *categories.Tables
	svc      *pipeline.Service
}

type appOptions struct {
	withDB       bool
	withEmbedder bool
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	})

	a := &app{cfg: cfg, log: log}
	if a.aliases, err = alias.LoadStrict(cfg.AliasesPath); err != nil {
		return nil, fmt.Errorf("alias tables (see `congreso aliases validate`): %w", err)
	}
	if a.cats, err = categories.Load(cfg.CategoriesPath); err != nil {
		return nil, fmt.Errorf("category tables: %w", err)
	}

	if opts.withEmbedder {
		if a.embedder, err = newEmbedder(cfg); err != nil {
			return nil, err
		}
	}
	if opts.withDB {
		if a.db, err = storage.Open(cfg.DBPath); err != nil {
			a.Close()
			return nil, err
		}
		if a.embedder != nil {
			_ = a.db.SetMetadata("embedder", a.embedder.ModelID())
		}
	}

	a.svc = pipeline.NewService(a.db, cfg, log, a.aliases, a.cats, a.embedder)
	return a, nil
}

func (a *app) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) fetchClient() *fetch.Client {
	return fetch.NewClient(a.cfg, a.log)
}

// newEmbedder returns nil for EMBEDDER=none, which turns semantic stages off.
func newEmbedder(cfg config.Config) (embed.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Embedder)) {
	case "", "none":
		return nil, nil
	case "ollama":
		return embed.NewCached(embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:      cfg.OllamaHost,
			Model:     cfg.OllamaEmbedModel,
			RateLimit: cfg.OllamaRateLimitRPS,
			Timeout:   time.Duration(cfg.FetchTimeoutMs) * time.Millisecond,
		})), nil
	case "onnx":
		if err := cfg.Require("ONNX_LIBRARY_PATH", cfg.OnnxLibraryPath); err != nil {
			return nil, err
		}
		e, err := embed.NewOnnxEmbedder(embed.OnnxConfig{
			LibraryPath:   cfg.OnnxLibraryPath,
			ModelPath:     cfg.OnnxModelPath,
			TokenizerPath: cfg.OnnxTokenizerPath,
			MaxSeqLen:     cfg.OnnxMaxSeqLen,
			Dim:           cfg.OnnxEmbedDim,
		})
		if err != nil {
			return nil, err
		}
		return embed.NewCached(e), nil
	default:
		return nil, fmt.Errorf("unsupported embedder: %s", cfg.Embedder)
	}
}

func printResult(cmd *cobra.Command, res pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "trace=%s rows=%d\n", res.TraceID, res.Counts["rows_out"])
	for _, p := range res.Outputs {
		fmt.Fprintf(out, "  wrote %s\n", p)
	}
}
