package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"congreso/internal"
	"congreso/internal/alias"
	"congreso/internal/dataset"
	"congreso/internal/dedupe"
	"congreso/internal/pipeline"
	"congreso/internal/sources/bcn"
	"congreso/internal/sources/llm"
	"congreso/internal/sources/senado"
	"congreso/internal/sources/soap"
	"congreso/internal/util"
)

func standardizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standardize",
		Short: "Write *_clean and *_score columns for free-text fields",
	}

	var input string
	bios := &cobra.Command{
		Use:   "bios",
		Short: "Standardize universities, careers, education, civil status and birthplace",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true, withEmbedder: true})
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			res, err := a.svc.StandardizeBios(cmd.Context(), t)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	bios.Flags().StringVarP(&input, "input", "i", "", "biography table (.csv or .xlsx)")
	_ = bios.MarkFlagRequired("input")

	var schoolsInput, directory string
	schools := &cobra.Command{
		Use:   "schools",
		Short: "Match each legislator's first school against the MINEDUC directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true, withEmbedder: true})
			if err != nil {
				return err
			}
			defer a.Close()
			bios, err := dataset.ReadFile(schoolsInput)
			if err != nil {
				return err
			}
			dir, err := dataset.ReadFile(directory)
			if err != nil {
				return err
			}
			res, err := a.svc.StandardizeSchools(cmd.Context(), bios, dir)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	schools.Flags().StringVarP(&schoolsInput, "input", "i", "", "biography table with a colegios column")
	schools.Flags().StringVar(&directory, "directory", "", "school directory with colegio_merge_key and COD_DEPE")
	_ = schools.MarkFlagRequired("input")
	_ = schools.MarkFlagRequired("directory")

	var votesInput, column string
	votes := &cobra.Command{
		Use:   "votes",
		Short: "Map vote options onto the vote vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := dataset.ReadFile(votesInput)
			if err != nil {
				return err
			}
			res, err := a.svc.StandardizeVotes(cmd.Context(), t, column)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	votes.Flags().StringVarP(&votesInput, "input", "i", "", "vote detail table")
	votes.Flags().StringVar(&column, "column", pipeline.DefaultVoteColumn, "vote option column")
	_ = votes.MarkFlagRequired("input")

	cmd.AddCommand(bios, schools, votes)
	return cmd
}

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Link records across sources",
	}

	var input, listing string
	var nameColumns []string
	var scrape bool
	var firstPage, lastPage int
	var params map[string]string
	legislators := &cobra.Command{
		Use:   "legislators",
		Short: "Link roster rows to BCN biography pages by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listing == "" && !scrape {
				return errors.New("one of --listing or --scrape is required")
			}
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()

			roster, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			var list *dataset.Table
			if listing != "" {
				list, err = dataset.ReadFile(listing)
				if err != nil {
					return err
				}
			} else {
				scraper := bcn.NewScraper(a.fetchClient(), a.log)
				entries := scraper.Listing(cmd.Context(), a.cfg.BCNBaseURL, params, firstPage, lastPage)
				list = pipeline.ListingTable(entries)
			}

			res, err := a.svc.MatchLegislators(cmd.Context(), roster, list, nameColumns)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	legislators.Flags().StringVarP(&input, "input", "i", "", "chamber roster table")
	legislators.Flags().StringVar(&listing, "listing", "", "BCN listing table with nombre_en_lista and url_bcn")
	legislators.Flags().BoolVar(&scrape, "scrape", false, "scrape the BCN listing instead of reading --listing")
	legislators.Flags().IntVar(&firstPage, "first-page", 1, "first BCN listing page")
	legislators.Flags().IntVar(&lastPage, "last-page", 20, "last BCN listing page")
	legislators.Flags().StringToStringVar(&params, "param", nil, "extra BCN listing query parameters, key=value")
	legislators.Flags().StringSliceVar(&nameColumns, "name-columns", pipeline.DefaultNameColumns, "roster columns joined into the full name")
	_ = legislators.MarkFlagRequired("input")

	cmd.AddCommand(legislators)
	return cmd
}

func dedupeCmd() *cobra.Command {
	var input, kind, key, sortSpec, name string
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse repeated records into one master row per key",
		Long: `Collapse repeated records into one master row per key.

Use --kind for the built-in rules (legislators, bulletins) or --key and
--sort for any table, e.g. --key Diputado.Id --sort match_score:desc,fecha_ingreso:desc.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}

			var res pipeline.Result
			switch {
			case key != "":
				fields, err := dedupe.ParseSortFields(sortSpec)
				if err != nil {
					return err
				}
				if name == "" {
					name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				}
				res, err = a.svc.Dedupe(cmd.Context(), name, t, key, fields)
				if err != nil {
					return err
				}
			case kind == "legislators":
				if res, err = a.svc.DedupeLegislators(cmd.Context(), t); err != nil {
					return err
				}
			case kind == "bulletins":
				if res, err = a.svc.DedupeBulletins(cmd.Context(), t); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown --kind %q and no --key given", kind)
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "table to deduplicate")
	cmd.Flags().StringVar(&kind, "kind", "legislators", "legislators|bulletins")
	cmd.Flags().StringVar(&key, "key", "", "key column (overrides --kind)")
	cmd.Flags().StringVar(&sortSpec, "sort", "", "sort fields, field[:asc|desc] separated by commas")
	cmd.Flags().StringVar(&name, "name", "", "dataset name for stored master records")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func bulletinsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulletins",
		Short: "Bulletins of bills voted in the chamber",
	}

	var input string
	parse := &cobra.Command{
		Use:   "parse",
		Short: "Fetch the Senate record of every bill bulletin in a vote table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			votes, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			client := senado.NewClient(a.fetchClient(), a.cfg.SenadoBaseURL)
			fetched, err := a.svc.FetchBulletins(cmd.Context(), votes, client)
			if err != nil {
				return err
			}
			printResult(cmd, fetched)
			master, err := a.svc.DedupeBulletins(cmd.Context(), fetched.Table)
			if err != nil {
				return err
			}
			printResult(cmd, master)
			return nil
		},
	}
	parse.Flags().StringVarP(&input, "input", "i", "", "vote table with Tipo.#text and Descripcion")
	_ = parse.MarkFlagRequired("input")

	var classifyInput string
	classify := &cobra.Command{
		Use:   "classify",
		Short: "Assign thematic areas to bulletins from their subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := dataset.ReadFile(classifyInput)
			if err != nil {
				return err
			}
			client := llm.NewClient(a.fetchClient(), a.cfg.OllamaHost, a.cfg.OllamaChatModel, a.log)
			res, err := a.svc.ClassifyBulletins(cmd.Context(), t, client)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	classify.Flags().StringVarP(&classifyInput, "input", "i", "", "bulletin table with materias_json")
	_ = classify.MarkFlagRequired("input")

	var motionsInput string
	motions := &cobra.Command{
		Use:   "motions",
		Short: "Download the motion PDF of every bulletin and extract its text",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := dataset.ReadFile(motionsInput)
			if err != nil {
				return err
			}
			client := senado.NewClient(a.fetchClient(), a.cfg.SenadoBaseURL)
			res, err := a.svc.FetchMotions(cmd.Context(), t, client)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	motions.Flags().StringVarP(&motionsInput, "input", "i", "", "bulletin table with link_mensaje_mocion")
	_ = motions.MarkFlagRequired("input")

	cmd.AddCommand(parse, classify, motions)
	return cmd
}

func bioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bio",
		Short: "BCN parliamentary biographies",
	}

	var input string
	var periods []string
	parse := &cobra.Command{
		Use:   "parse",
		Short: "Scrape the BCN page of every matched legislator and extract biography fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			client := a.fetchClient()
			scraper := bcn.NewScraper(client, a.log)
			extractor := llm.NewClient(client, a.cfg.OllamaHost, a.cfg.OllamaChatModel, a.log)
			res, err := a.svc.ExtractBios(cmd.Context(), t, periods, scraper, extractor)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	parse.Flags().StringVarP(&input, "input", "i", "", "matched legislator table with url_bcn")
	parse.Flags().StringSliceVar(&periods, "periods", nil, "legislative periods used to pick the district, e.g. 2018-2022")
	_ = parse.MarkFlagRequired("input")

	cmd.AddCommand(parse)
	return cmd
}

func camaraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camara",
		Short: "Download tables from the Chamber of Deputies open data service",
	}

	var output string
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output file (.csv or .xlsx), default under OUTPUT_DIR")

	write := func(cmd *cobra.Command, a *app, name string, t *dataset.Table) error {
		path := output
		if path == "" {
			path = filepath.Join(a.cfg.OutputDir, util.SanitizeFilename(name)+".csv")
		}
		if err := dataset.WriteFile(path, t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rows=%d wrote %s\n", t.Len(), path)
		return nil
	}

	run := func(name string, fn func(cmd *cobra.Command, c *soap.Camara, args []string) (*dataset.Table, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			c := soap.NewCamara(a.fetchClient(), a.cfg.CamaraBaseURL)
			t, err := fn(cmd, c, args)
			if err != nil {
				return err
			}
			return write(cmd, a, name+strings.Join(append([]string{""}, args...), "_"), t)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "legislaturas",
		Short: "Legislative periods",
		Args:  cobra.NoArgs,
		RunE: run("legislaturas", func(cmd *cobra.Command, c *soap.Camara, _ []string) (*dataset.Table, error) {
			return c.Legislaturas(cmd.Context())
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "diputados <periodo-id>",
		Short: "Deputies of a legislative period, one row per party affiliation",
		Args:  cobra.ExactArgs(1),
		RunE: run("diputados", func(cmd *cobra.Command, c *soap.Camara, args []string) (*dataset.Table, error) {
			return c.Diputados(cmd.Context(), args[0])
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "votaciones <year>",
		Short: "Floor votes of a year",
		Args:  cobra.ExactArgs(1),
		RunE: run("votaciones", func(cmd *cobra.Command, c *soap.Camara, args []string) (*dataset.Table, error) {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("year: %w", err)
			}
			return c.Votaciones(cmd.Context(), year)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "votacion <votacion-id>",
		Short: "Individual votes of one division",
		Args:  cobra.ExactArgs(1),
		RunE: run("votacion", func(cmd *cobra.Command, c *soap.Camara, args []string) (*dataset.Table, error) {
			return c.VotacionDetalle(cmd.Context(), args[0])
		}),
	})
	return cmd
}

func aliasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "Curated alias tables",
	}
	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Report variants claimed by more than one canonical label",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := alias.Load(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range catalog.Entities() {
				tbl := catalog.Table(e)
				fmt.Fprintf(out, "%-12s canonicals=%d variants=%d conflicts=%d\n", e, len(tbl.Canonicals()), tbl.Len(), len(tbl.Conflicts()))
			}
			return catalog.Validate()
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "alias YAML file, default the built-in tables")
	cmd.AddCommand(validate)
	return cmd
}

func resolveCmd() *cobra.Command {
	var entity, candidatesFile, labelColumn, sideColumn string
	cmd := &cobra.Command{
		Use:   "resolve <value>...",
		Short: "Resolve raw values through an entity's cascade and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withEmbedder: true})
			if err != nil {
				return err
			}
			defer a.Close()

			et := internal.EntityType(entity)
			var candidates []internal.Candidate
			if candidatesFile != "" {
				t, err := dataset.ReadFile(candidatesFile)
				if err != nil {
					return err
				}
				if candidates, err = pipeline.DirectoryCandidates(t, labelColumn, sideColumn); err != nil {
					return err
				}
			}

			r, err := a.svc.Resolver(cmd.Context(), et, candidates)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, v := range args {
				res, err := r.Resolve(cmd.Context(), v)
				if err != nil {
					return err
				}
				if err := enc.Encode(struct {
					Raw string `json:"raw"`
					internal.MatchResult
				}{v, res}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", string(internal.EntityUniversity), "university|school|career|legislator")
	cmd.Flags().StringVar(&candidatesFile, "candidates", "", "table of candidate labels, default the alias canonicals")
	cmd.Flags().StringVar(&labelColumn, "label-column", "colegio_merge_key", "candidate label column")
	cmd.Flags().StringVar(&sideColumn, "side-column", "COD_DEPE", "candidate side payload column")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{withDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			runs, err := a.db.ListRuns(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-22s %s total=%.0fms rows_out=%d\n", r.CreatedAt, r.Command, r.TraceID, r.Timings["totalMs"], r.Counts["rows_out"])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}
