// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/review"
	"github.com/pdiddy/review-engine/pkg/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Write the review from an outline and scored items",
	Long: `Review generates each outline section through the generative model,
assembles them in outline order with a consolidated reference list, and
renders the document as Markdown. Requires an Anthropic API key.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("outline", "", "outline YAML from the outline stage (required)")
	reviewCmd.Flags().String("items", "", "scored items YAML from the filter stage (required)")
	reviewCmd.Flags().String("topic", "", "review topic (required)")
	reviewCmd.Flags().String("out", "", "write the Markdown to a file instead of stdout")
	reviewCmd.Flags().String("yaml-out", "", "also write the structured document YAML to a file")
	_ = reviewCmd.MarkFlagRequired("outline")
	_ = reviewCmd.MarkFlagRequired("items")
	_ = reviewCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	outlinePath, _ := cmd.Flags().GetString("outline")
	itemsPath, _ := cmd.Flags().GetString("items")
	topic, _ := cmd.Flags().GetString("topic")
	out, _ := cmd.Flags().GetString("out")
	yamlOut, _ := cmd.Flags().GetString("yaml-out")

	cfg := buildConfig()
	gen := newGenerator(cfg.Synthesis.AIConfig)
	if gen == nil {
		return fmt.Errorf("review generation requires an anthropic-api-key secret")
	}

	var plan types.Outline
	if err := readYAML(outlinePath, &plan); err != nil {
		return err
	}
	var scored []types.ScoredItem
	if err := readYAML(itemsPath, &scored); err != nil {
		return err
	}

	doc, err := review.NewSynthesizer(gen, cfg.Synthesis).Generate(cmd.Context(), topic, &plan, scored)
	if err != nil {
		return err
	}
	if doc.FailedSections > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d section(s) ended as placeholders\n", doc.FailedSections)
	}

	if yamlOut != "" {
		if err := writeYAML(yamlOut, doc); err != nil {
			return err
		}
	}

	md := review.Markdown(doc)
	if out == "" {
		fmt.Print(md)
		return nil
	}
	if err := os.WriteFile(out, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}
