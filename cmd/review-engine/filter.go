// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/filter"
	"github.com/pdiddy/review-engine/internal/quality"
	"github.com/pdiddy/review-engine/pkg/types"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Deduplicate, filter, and rank retrieved items",
	Long: `Filter reads the literature items produced by search, merges duplicates,
applies the intent's hard filters, scores topic relevance, and ranks by the
weighted combination of relevance, recency, and journal quality. With an
Anthropic API key relevance is graded by the model; without one a
deterministic lexical scorer is used.`,
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().String("items", "", "literature items YAML from the search stage (required)")
	filterCmd.Flags().String("intent", "", "search intent YAML; its filters become the hard filters")
	filterCmd.Flags().String("topic", "", "topic for relevance scoring when no intent file is given")
	filterCmd.Flags().Int("max-items", 0, "cap on ranked output (default from config)")
	filterCmd.Flags().String("out", "", "write the scored YAML to a file instead of stdout")
	_ = filterCmd.MarkFlagRequired("items")

	rootCmd.AddCommand(filterCmd)
}

// newScorer picks the relevance scorer: model-graded when a key is
// configured, lexical otherwise.
func newScorer(ai types.AIConfig) filter.Scorer {
	if gen := newGenerator(ai); gen != nil {
		return &filter.AIScorer{Gen: gen, Cfg: ai}
	}
	return filter.LexicalScorer{}
}

func runFilter(cmd *cobra.Command, args []string) error {
	itemsPath, _ := cmd.Flags().GetString("items")
	intentPath, _ := cmd.Flags().GetString("intent")
	topic, _ := cmd.Flags().GetString("topic")
	maxItems, _ := cmd.Flags().GetInt("max-items")
	out, _ := cmd.Flags().GetString("out")

	cfg := buildConfig()
	if maxItems > 0 {
		cfg.Filter.MaxItems = maxItems
	}

	var items []types.LiteratureItem
	if err := readYAML(itemsPath, &items); err != nil {
		return err
	}

	var si types.SearchIntent
	if intentPath != "" {
		if err := readYAML(intentPath, &si); err != nil {
			return err
		}
	}
	if topic != "" {
		si.Topic = topic
	}
	if si.Topic == "" {
		return fmt.Errorf("provide --intent or --topic for relevance scoring")
	}

	table, err := quality.Load(cfg.Filter.QualityTablePath)
	if err != nil {
		return err
	}

	eng := filter.NewEngine(cfg.Filter, table, newScorer(cfg.Intent.AIConfig))
	scored, _, err := eng.Run(cmd.Context(), si, items, os.Stderr)
	if err != nil {
		return err
	}
	return writeYAML(out, scored)
}
