// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/filter"
	"github.com/pdiddy/review-engine/internal/intent"
	"github.com/pdiddy/review-engine/internal/outline"
	"github.com/pdiddy/review-engine/internal/pipeline"
	"github.com/pdiddy/review-engine/internal/quality"
	"github.com/pdiddy/review-engine/internal/review"
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Execute the full pipeline into a run directory",
	Long: `Run executes every stage for the topic: intent analysis, retrieval,
filtering, outline, and review. Each stage's output is persisted under the
run directory, so rerunning with --run-id resumes from the last completed
stage. Requires an Anthropic API key.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("run-id", "", "resume an existing run directory")
	runCmd.Flags().Bool("force", false, "recompute every stage, ignoring existing artifacts")
	runCmd.Flags().String("lang", "", "preferred result language hint")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return fmt.Errorf("provide a research topic")
	}
	runID, _ := cmd.Flags().GetString("run-id")
	force, _ := cmd.Flags().GetBool("force")
	lang, _ := cmd.Flags().GetString("lang")

	cfg := buildConfig()
	gen := newGenerator(cfg.Synthesis.AIConfig)
	if gen == nil {
		return fmt.Errorf("run requires an anthropic-api-key secret for outline and review generation")
	}

	var analyzer pipeline.Analyzer = intent.NewMapper(gen, cfg.Intent)

	eng, closeCache, err := openRetriever(cfg.Retrieval)
	if err != nil {
		return err
	}
	defer closeCache()

	table, err := quality.Load(cfg.Filter.QualityTablePath)
	if err != nil {
		return err
	}

	orch := &pipeline.Orchestrator{
		Analyzer:  analyzer,
		Retriever: eng,
		Filter:    filter.NewEngine(cfg.Filter, table, newScorer(cfg.Intent.AIConfig)),
		Outliner:  outline.NewSynthesizer(gen, cfg.Synthesis),
		Reviewer:  review.NewSynthesizer(gen, cfg.Synthesis),
		Cfg:       cfg,
		Out:       os.Stderr,
	}

	report, err := orch.Run(cmd.Context(), topic, pipeline.Options{
		RunID:    runID,
		LangHint: lang,
		Force:    force,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %s\n", report.RunID, report.State)
	if report.FailedSections > 0 {
		fmt.Printf("  %d section(s) ended as placeholders\n", report.FailedSections)
	}
	for _, q := range report.Queries {
		fmt.Printf("  %s query %s: %d records", q.Strategy, q.Fingerprint, q.Records)
		if len(q.FailedPages) > 0 {
			fmt.Printf(" (%d pages failed)", len(q.FailedPages))
		}
		fmt.Println()
	}
	return nil
}
