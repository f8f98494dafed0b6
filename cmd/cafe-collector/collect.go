// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/checkpoint"
	"github.com/pdiddy/cafe-collector/internal/export"
	"github.com/pdiddy/cafe-collector/internal/geocode"
	"github.com/pdiddy/cafe-collector/internal/input"
	"github.com/pdiddy/cafe-collector/internal/llm"
	"github.com/pdiddy/cafe-collector/internal/metrics"
	"github.com/pdiddy/cafe-collector/internal/pipeline"
	"github.com/pdiddy/cafe-collector/internal/retry"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

var collectCmd = &cobra.Command{
	Use:   "collect <cities.csv> <city_mapping.json>",
	Short: "Collect cafe reviews for every city in the input table",
	Long: `Collect reads a CSV table of cities (columns "City" and "Cafes Needed") and
a JSON object mapping each city to its Contentful entry ID. Cities are processed
in order of cafes needed, highest first; cities without a mapping are skipped.

Every cafe is enriched, geocoded, slugged and validated. Completed and rejected
cafes are checkpointed, so an interrupted run resumes where it stopped. At the
end the collected reviews are written as a Contentful import file.`,
	Args: cobra.ExactArgs(2),
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().Bool("no-contentful", false, "skip writing the Contentful export")
	collectCmd.Flags().String("contentful-output", "", "Contentful export path (default output/contentful_export_<timestamp>.json)")
	collectCmd.Flags().String("excel-output", "", "also write reviews to this .xlsx file for audit")
	collectCmd.Flags().String("city", "", "process only this city")
	collectCmd.Flags().Bool("fresh", false, "discard the checkpoint and start over")
	collectCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	noContentful, _ := cmd.Flags().GetBool("no-contentful")
	contentfulOut, _ := cmd.Flags().GetString("contentful-output")
	excelOut, _ := cmd.Flags().GetString("excel-output")
	city, _ := cmd.Flags().GetString("city")
	fresh, _ := cmd.Flags().GetBool("fresh")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := loadQueue(args[0], args[1], city)
	if err != nil {
		return err
	}
	snapshot := filepath.Join(cfg.Export.OutputDir, "pipeline", "city_queue.yaml")
	if err := input.WriteQueueSnapshot(snapshot, queue); err != nil {
		slog.Warn("writing queue snapshot", "path", snapshot, "error", err)
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	cp, err := openCheckpoint(cfg.Cache.Dir, fresh)
	if err != nil {
		return err
	}
	slog.Info("starting run", "run_id", cp.RunID(), "cities", len(queue), "checkpoint", cp.Path())

	m := metrics.New()
	if metricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, metricsAddr); err != nil {
				slog.Error("metrics server", "error", err)
			}
		}()
	}

	policy := retry.FromConfig(cfg.Retry)
	backend, err := llm.NewBackend(cfg.LLM)
	if err != nil {
		return err
	}
	llmClient := llm.NewClient(backend, store, llm.Options{
		Model:             cfg.LLM.Model,
		TTL:               cfg.Cache.APIResponseTTL,
		Policy:            policy,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Metrics:           m,
	})
	geo := geocode.NewClient(cfg.Geocode, store, cfg.Cache.GeocodingTTL, policy, m)

	out := cmd.OutOrStdout()
	p := pipeline.New(pipeline.Deps{
		LLM:          llmClient,
		Geocoder:     geo,
		Cache:        store,
		ProcessedTTL: cfg.Cache.ProcessedTTL,
		Checkpoint:   cp,
		Metrics:      m,
		Out:          out,
		Author:       cfg.Export.AuthorName,
	})

	sum, runErr := p.Run(ctx, queue)
	sum.Report(out)
	if errors.Is(runErr, types.ErrFatalConfig) {
		return runErr
	}

	// Reviews collected before an interruption are still exported.
	now := time.Now()
	if !noContentful {
		if contentfulOut == "" {
			contentfulOut = export.DefaultJSONPath(cfg.Export.OutputDir, now)
		}
		if err := writeContentful(out, cfg.Export, contentfulOut, sum.Reviews); err != nil {
			return err
		}
	}
	if excelOut != "" {
		if err := export.WriteWorkbook(excelOut, sum.Reviews); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d reviews to %s\n", len(sum.Reviews), excelOut)
	}

	if runErr != nil {
		if ctx.Err() != nil || errors.Is(runErr, context.Canceled) {
			return errors.New("run interrupted; rerun collect to resume from the checkpoint")
		}
		return runErr
	}
	return nil
}

// loadQueue reads the city table and mapping and returns the processing
// queue, restricted to city when it is set.
func loadQueue(citiesPath, mappingPath, city string) ([]types.QueueItem, error) {
	rows, err := input.LoadCities(citiesPath)
	if err != nil {
		return nil, err
	}
	mapping, err := input.LoadMapping(mappingPath)
	if err != nil {
		return nil, err
	}
	queue, skipped := input.BuildQueue(rows, mapping)
	if len(skipped) > 0 {
		slog.Warn("cities skipped without a mapping", "count", len(skipped))
	}
	if city != "" {
		queue = input.FilterCity(queue, city)
		if len(queue) == 0 {
			return nil, fmt.Errorf("%w: city %q is not in the mapped input", types.ErrFatalConfig, city)
		}
	}
	return queue, nil
}

// openCheckpoint loads the checkpoint in dir, deleting it first when fresh.
func openCheckpoint(dir string, fresh bool) (*checkpoint.Manager, error) {
	path := filepath.Join(dir, checkpoint.DefaultFile)
	if fresh {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("discarding checkpoint: %w", err)
		}
	}
	cp, err := checkpoint.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w (rerun with --fresh to start over)", err)
	}
	return cp, nil
}

func writeContentful(w io.Writer, cfg types.ExportConfig, path string, reviews []types.CafeReview) error {
	doc := export.Contentful{SpaceID: cfg.SpaceID, Locale: cfg.Locale}.Document(reviews)
	if err := export.WriteJSON(path, doc); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %d entries to %s\n", len(doc.Entries), path)
	return nil
}
