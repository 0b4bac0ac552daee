// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or purge the retrieval page cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show page cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig()
		store, err := cache.Open(cfg.Retrieval.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stat(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d cached pages across %d queries\n",
			cfg.Retrieval.CachePath, stats.Entries, stats.Fingerprints)
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <fingerprint>",
	Short: "Drop all cached pages for one query fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig()
		store, err := cache.Open(cfg.Retrieval.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Purge(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("purged %d pages for query %s\n", n, args[0])
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
