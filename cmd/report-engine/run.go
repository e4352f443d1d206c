// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/cache"
	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/internal/pipeline"
	"github.com/pdiddy/report-engine/internal/search"
	"github.com/pdiddy/report-engine/internal/validate"
	"github.com/pdiddy/report-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Generate a research report for a topic",
	Long: `Run executes the full report pipeline for the given topic: planning
queries, outline, per-section research and drafting, optional
validation, and compilation. The compiled report is printed to stdout;
--output saves the full run state as JSON or YAML instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if noValidation, _ := cmd.Flags().GetBool("no-validation"); noValidation {
			cfg.Options.EnableValidation = false
		}
		if strict, _ := cmd.Flags().GetBool("strict-validation"); strict {
			cfg.Options.StrictValidation = true
		}

		store, err := cache.NewSQLiteStore(cfg.Cache.Dir)
		if err != nil {
			return err
		}
		callCache := cache.New(cfg.Cache, store)
		defer callCache.Close()

		collector := metrics.New()

		genProvider, err := newGenerationProvider(cfg.Generation)
		if err != nil {
			return err
		}
		generator := llm.NewClient(genProvider, callCache, cfg.Generation, collector)
		searcher := search.NewClient(search.NewTavily(cfg.Search), callCache, cfg.Search, collector)

		p, err := pipeline.New(pipeline.Deps{
			Generator: generator,
			Searcher:  searcher,
			Validator: validate.New(generator),
			Log:       os.Stderr,
		}, cfg.Options)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		state := p.Run(ctx, topic)

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "json":
				err = state.Save(output)
			case "yaml":
				err = state.SaveYAML(output)
			default:
				err = fmt.Errorf("unknown output format %q (want json or yaml)", format)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "State saved to %s\n", output)
		} else if state.Status == types.StatusDone {
			fmt.Println(state.CompiledReport)
		}

		fmt.Fprintf(os.Stderr, "\nRun %s: %s in %s\n", state.RunID, state.Status,
			state.Duration.Round(time.Millisecond))
		collector.WriteSummary(os.Stderr)
		for _, e := range state.Errors {
			fmt.Fprintf(os.Stderr, "  error: %s\n", e.Error())
		}

		if state.Status != types.StatusDone {
			return fmt.Errorf("run failed")
		}
		return nil
	},
}

// newGenerationProvider builds the configured language-model backend.
func newGenerationProvider(cfg types.GenerationConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case types.ProviderAnthropic:
		return llm.NewAnthropicProvider(cfg.APIKey, cfg.MaxTokens), nil
	case types.ProviderGemini:
		return llm.NewGeminiProvider(cfg.APIKey, cfg.HTTPConfig), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "save full run state to this path instead of printing the report")
	runCmd.Flags().String("format", "json", "output state format: json or yaml")
	runCmd.Flags().Bool("no-validation", false, "disable per-section validation")
	runCmd.Flags().Bool("strict-validation", false, "exclude sections that fail validation from the report")
	runCmd.Flags().Duration("timeout", 0, "overall deadline for the run (0 disables)")

	rootCmd.AddCommand(runCmd)
}
