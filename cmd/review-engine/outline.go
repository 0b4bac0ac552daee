// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/outline"
	"github.com/pdiddy/review-engine/pkg/types"
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Plan the review's section structure",
	Long: `Outline feeds the topic and the top-ranked items to the generative model
and parses the returned Markdown plan into a validated section tree with
word-count hints and per-section source references. Requires an Anthropic
API key.`,
	RunE: runOutline,
}

func init() {
	outlineCmd.Flags().String("items", "", "scored items YAML from the filter stage (required)")
	outlineCmd.Flags().String("topic", "", "review topic (required)")
	outlineCmd.Flags().String("out", "", "write the outline YAML to a file instead of stdout")
	_ = outlineCmd.MarkFlagRequired("items")
	_ = outlineCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(outlineCmd)
}

func runOutline(cmd *cobra.Command, args []string) error {
	itemsPath, _ := cmd.Flags().GetString("items")
	topic, _ := cmd.Flags().GetString("topic")
	out, _ := cmd.Flags().GetString("out")

	cfg := buildConfig()
	gen := newGenerator(cfg.Synthesis.AIConfig)
	if gen == nil {
		return fmt.Errorf("outline generation requires an anthropic-api-key secret")
	}

	var scored []types.ScoredItem
	if err := readYAML(itemsPath, &scored); err != nil {
		return err
	}

	plan, err := outline.NewSynthesizer(gen, cfg.Synthesis).Generate(cmd.Context(), topic, scored)
	if err != nil {
		return err
	}
	return writeYAML(out, plan)
}
