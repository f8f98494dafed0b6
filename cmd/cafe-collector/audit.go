// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/checkpoint"
	"github.com/pdiddy/cafe-collector/internal/export"
	"github.com/pdiddy/cafe-collector/internal/pipeline"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Round-trip reviews through a spreadsheet for manual audit",
	Long: `Audit writes collected reviews to an .xlsx workbook for manual review and
imports an edited workbook back, validating every row before converting it to
a Contentful import file.`,
}

// --- export subcommand ---

var auditExportCmd = &cobra.Command{
	Use:   "export [file.xlsx]",
	Short: "Write every collected review to a workbook",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditExport,
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := export.DefaultWorkbookPath(cfg.Export.OutputDir, time.Now())
	if len(args) == 1 {
		path = args[0]
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()
	cp, err := checkpoint.Load(filepath.Join(cfg.Cache.Dir, checkpoint.DefaultFile))
	if err != nil {
		return err
	}

	reviews, missing := pipeline.LoadReviews(context.Background(), store, cp)
	if len(missing) > 0 {
		slog.Warn("reviews missing from cache; rerun collect to restore them", "count", len(missing))
	}
	if err := export.WriteWorkbook(path, reviews); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d reviews to %s\n", len(reviews), path)
	return nil
}

// --- import subcommand ---

var auditImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Validate an audited workbook and convert it to a Contentful export",
	Long: `Import reads an audited workbook, validates every row with the same rules
used during collection and writes the valid rows as a Contentful import file.
Invalid rows are reported with their line number and left out.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuditImport,
}

func runAuditImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("contentful-output")
	if path == "" {
		path = export.DefaultJSONPath(cfg.Export.OutputDir, time.Now())
	}

	rows, err := export.ReadWorkbook(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var reviews []types.CafeReview
	failed := 0
	for _, row := range rows {
		err := row.Err
		if err == nil {
			err = pipeline.Validate(row.Review)
		}
		if err != nil {
			fmt.Fprintf(out, "failed  line %d (%s): %v\n", row.Line, row.Review.CafeName, err)
			failed++
			continue
		}
		reviews = append(reviews, row.Review)
	}

	if err := writeContentful(out, cfg.Export, path, reviews); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d row(s) failed validation", failed)
	}
	return nil
}

func init() {
	auditImportCmd.Flags().String("contentful-output", "", "Contentful export path (default output/contentful_export_<timestamp>.json)")

	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditImportCmd)
	rootCmd.AddCommand(auditCmd)
}
