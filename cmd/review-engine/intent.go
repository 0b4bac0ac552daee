// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/intent"
	"github.com/pdiddy/review-engine/pkg/types"
)

var intentCmd = &cobra.Command{
	Use:   "intent <topic>",
	Short: "Map a topic to PubMed search terms and filters",
	Long: `Intent analyzes a free-text research topic and produces the search intent:
MeSH terms with confidence scores, fallback keywords, and any filters the
topic expresses (publication years, study types, language, journal-quality
constraints). Without an Anthropic API key the literal keyword fallback is
produced instead.`,
	RunE: runIntent,
}

func init() {
	intentCmd.Flags().String("lang", "", "preferred result language hint")
	intentCmd.Flags().String("out", "", "write the intent YAML to a file instead of stdout")

	rootCmd.AddCommand(intentCmd)
}

func runIntent(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return fmt.Errorf("provide a research topic")
	}
	lang, _ := cmd.Flags().GetString("lang")
	out, _ := cmd.Flags().GetString("out")

	si, fellBack, err := analyzeTopic(cmd.Context(), buildConfig(), topic, lang)
	if err != nil {
		return err
	}
	if fellBack {
		fmt.Fprintln(os.Stderr, "term mapping unavailable, using literal keyword intent")
	}
	return writeYAML(out, si)
}

// analyzeTopic resolves the topic through the mapper when a generator is
// configured, degrading to the literal keyword intent when mapping is
// unavailable or unresolved.
func analyzeTopic(ctx context.Context, cfg types.PipelineConfig, topic, lang string) (types.SearchIntent, bool, error) {
	gen := newGenerator(cfg.Intent.AIConfig)
	if gen == nil {
		return intent.Fallback(topic), true, nil
	}

	mapper := intent.NewMapper(gen, cfg.Intent)
	si, err := mapper.Analyze(ctx, topic, lang)
	if errors.Is(err, intent.ErrMappingUnresolved) {
		return intent.Fallback(topic), true, nil
	}
	if err != nil {
		return types.SearchIntent{}, false, err
	}
	return si, false, nil
}
