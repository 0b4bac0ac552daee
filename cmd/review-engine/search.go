// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/cache"
	"github.com/pdiddy/review-engine/internal/normalize"
	"github.com/pdiddy/review-engine/internal/pubmed"
	"github.com/pdiddy/review-engine/internal/query"
	"github.com/pdiddy/review-engine/internal/retrieval"
	"github.com/pdiddy/review-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <topic>",
	Short: "Retrieve matching PubMed citations for a topic",
	Long: `Search maps the topic to a search intent (or loads one with --intent),
builds the query variants, retrieves matching citations page by page through
the rate-limited cache, and normalizes them into literature items. The items
are written as YAML for the filter stage.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("lang", "", "preferred result language hint")
	searchCmd.Flags().String("intent", "", "load the search intent from a YAML file instead of analyzing the topic")
	searchCmd.Flags().Int("max-results", 0, "cap on retrieved records per query (default from config)")
	searchCmd.Flags().String("out", "", "write the items YAML to a file instead of stdout")

	rootCmd.AddCommand(searchCmd)
}

// openRetriever wires the PubMed client, page cache, and retrieval engine.
// The returned closer releases the cache handle.
func openRetriever(cfg types.RetrievalConfig) (*retrieval.Engine, func(), error) {
	var store *cache.Store
	closer := func() {}
	if cfg.CachePath != "" {
		s, err := cache.Open(cfg.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening page cache: %w", err)
		}
		store = s
		closer = func() { _ = s.Close() }
	}
	return retrieval.NewEngine(pubmed.New(cfg), store, cfg), closer, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	intentPath, _ := cmd.Flags().GetString("intent")
	if topic == "" && intentPath == "" {
		return fmt.Errorf("provide a research topic or --intent file")
	}
	lang, _ := cmd.Flags().GetString("lang")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	out, _ := cmd.Flags().GetString("out")

	cfg := buildConfig()
	if maxResults > 0 {
		cfg.Retrieval.MaxResults = maxResults
	}

	var si types.SearchIntent
	if intentPath != "" {
		if err := readYAML(intentPath, &si); err != nil {
			return err
		}
	} else {
		var err error
		si, _, err = analyzeTopic(cmd.Context(), cfg, topic, lang)
		if err != nil {
			return err
		}
	}

	eng, closeCache, err := openRetriever(cfg.Retrieval)
	if err != nil {
		return err
	}
	defer closeCache()

	var items []types.LiteratureItem
	queries := query.Build(si, cfg.Retrieval.PageSize, cfg.Retrieval.MaxResults)
	for _, q := range queries {
		res, err := eng.Fetch(cmd.Context(), q, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s query failed: %v\n", q.Strategy, err)
			continue
		}
		batch, dropped := normalize.Batch(res.Records, q.Strategy, os.Stderr)
		if dropped > 0 {
			fmt.Fprintf(os.Stderr, "%s query: dropped %d malformed records\n", q.Strategy, dropped)
		}
		items = append(items, batch...)
	}
	if len(items) == 0 {
		return fmt.Errorf("no records retrieved for %d queries", len(queries))
	}

	return writeYAML(out, items)
}
