// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter turns the merged retrieval output into a ranked, truncated
// item set: dedupe by identifier and DOI, apply the intent's hard filters,
// score topic relevance, and combine relevance, recency, and journal quality
// into a composite rank. Everything here except the relevance call is a pure
// transformation over already-fetched data.
package filter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/review-engine/internal/quality"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Stats summarizes what the filter stage did to its input.
type Stats struct {
	// Input is the item count before deduplication.
	Input int `json:"input" yaml:"input"`

	// Duplicates is how many items were merged away.
	Duplicates int `json:"duplicates" yaml:"duplicates"`

	// Excluded is how many unique items the hard filters dropped.
	Excluded int `json:"excluded" yaml:"excluded"`

	// Kept is the final ranked-output size.
	Kept int `json:"kept" yaml:"kept"`
}

// Engine dedupes, filters, scores, and ranks literature items.
type Engine struct {
	cfg    types.FilterConfig
	table  *quality.Table
	scorer Scorer

	// nowYear is stubbed in tests.
	nowYear func() int
}

// NewEngine returns an Engine with config defaults applied.
func NewEngine(cfg types.FilterConfig, table *quality.Table, scorer Scorer) *Engine {
	if cfg.RelevanceWeight == 0 && cfg.RecencyWeight == 0 && cfg.QualityWeight == 0 {
		cfg.RelevanceWeight = 0.5
		cfg.RecencyWeight = 0.3
		cfg.QualityWeight = 0.2
	}
	if cfg.RecencyHorizonYears <= 0 {
		cfg.RecencyHorizonYears = 10
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 50
	}
	if table == nil {
		table = quality.New(nil)
	}
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	return &Engine{
		cfg:     cfg,
		table:   table,
		scorer:  scorer,
		nowYear: func() int { return time.Now().Year() },
	}
}

// Run executes the full stage: dedupe, hard-filter, score, rank, sort,
// truncate. Progress lines go to w. The output contains each identifier at
// most once, sorted by rank descending with ties broken by year then
// identifier.
func (e *Engine) Run(ctx context.Context, intent types.SearchIntent, items []types.LiteratureItem, w io.Writer) ([]types.ScoredItem, Stats, error) {
	stats := Stats{Input: len(items)}

	unique := Dedupe(items)
	stats.Duplicates = len(items) - len(unique)

	kept := unique[:0:0]
	for _, item := range unique {
		if e.passes(intent, item) {
			kept = append(kept, item)
		}
	}
	stats.Excluded = len(unique) - len(kept)
	fmt.Fprintf(w, "filter: %d items in, %d duplicates merged, %d excluded\n",
		stats.Input, stats.Duplicates, stats.Excluded)

	scores, err := e.scorer.Score(ctx, intent.Topic, kept)
	if err != nil {
		return nil, stats, fmt.Errorf("scoring relevance: %w", err)
	}

	scored := make([]types.ScoredItem, len(kept))
	for i, item := range kept {
		scored[i] = e.score(item, clamp01(scores[i]))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Rank != scored[j].Rank {
			return scored[i].Rank > scored[j].Rank
		}
		if scored[i].Year != scored[j].Year {
			return scored[i].Year > scored[j].Year
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) > e.cfg.MaxItems {
		scored = scored[:e.cfg.MaxItems]
	}
	stats.Kept = len(scored)
	fmt.Fprintf(w, "filter: kept %d ranked items\n", stats.Kept)
	return scored, stats, nil
}

// score computes the composite rank for one item. Pure: the same item,
// relevance, weights, and horizon always produce the same value.
func (e *Engine) score(item types.LiteratureItem, relevance float64) types.ScoredItem {
	recency := e.recency(item.Year)
	qual := e.table.Factor(item.Journal, item.ISSN)
	return types.ScoredItem{
		LiteratureItem: item,
		Relevance:      relevance,
		Recency:        recency,
		Quality:        qual,
		Rank: e.cfg.RelevanceWeight*relevance +
			e.cfg.RecencyWeight*recency +
			e.cfg.QualityWeight*qual,
	}
}

// recency decays linearly from 1.0 for the current year to 0.0 at the
// horizon. An unknown year scores 0.
func (e *Engine) recency(year int) float64 {
	if year <= 0 {
		return 0
	}
	age := e.nowYear() - year
	if age < 0 {
		age = 0
	}
	return clamp01(1 - float64(age)/float64(e.cfg.RecencyHorizonYears))
}

// passes applies the hard filters: year range and study types from the
// intent, the quality-table constraints (impact factor, CAS zone, JCR
// quartile) from the intent, and the configured minimum quality factor.
// Items absent from the quality table fail table-backed constraints when one
// is specified; an unknown year fails an explicit year range.
func (e *Engine) passes(intent types.SearchIntent, item types.LiteratureItem) bool {
	if intent.YearStart > 0 || intent.YearEnd > 0 {
		if item.Year == 0 {
			return false
		}
		if intent.YearStart > 0 && item.Year < intent.YearStart {
			return false
		}
		if intent.YearEnd > 0 && item.Year > intent.YearEnd {
			return false
		}
	}

	if len(intent.StudyTypes) > 0 && !containsFold(intent.StudyTypes, item.StudyType) {
		return false
	}

	if e.cfg.MinQuality > 0 && e.table.Factor(item.Journal, item.ISSN) < e.cfg.MinQuality {
		return false
	}

	needsEntry := intent.MinImpactFactor > 0 || intent.MaxImpactFactor > 0 ||
		len(intent.CASZones) > 0 || len(intent.JCRQuartiles) > 0
	if !needsEntry {
		return true
	}
	entry, ok := e.table.Lookup(item.Journal, item.ISSN)
	if !ok {
		return false
	}
	if intent.MinImpactFactor > 0 && entry.ImpactFactor < intent.MinImpactFactor {
		return false
	}
	if intent.MaxImpactFactor > 0 && entry.ImpactFactor > intent.MaxImpactFactor {
		return false
	}
	if len(intent.CASZones) > 0 && !containsInt(intent.CASZones, entry.CASZone) {
		return false
	}
	if len(intent.JCRQuartiles) > 0 && !containsFold(intent.JCRQuartiles, entry.JCRQuartile) {
		return false
	}
	return true
}

// Dedupe collapses duplicates by identifier, then by DOI. When copies
// conflict, the one from the earlier-ordered query strategy wins its fields;
// any field the winner lacks is filled from the loser (lossless merge).
func Dedupe(items []types.LiteratureItem) []types.LiteratureItem {
	byID := make(map[string]int)
	var unique []types.LiteratureItem
	for _, item := range items {
		if i, ok := byID[item.ID]; ok {
			unique[i] = merge(unique[i], item)
			continue
		}
		byID[item.ID] = len(unique)
		unique = append(unique, item)
	}

	byDOI := make(map[string]int)
	merged := unique[:0:0]
	for _, item := range unique {
		doi := strings.ToLower(strings.TrimSpace(item.DOI))
		if doi == "" {
			merged = append(merged, item)
			continue
		}
		if i, ok := byDOI[doi]; ok {
			merged[i] = merge(merged[i], item)
			continue
		}
		byDOI[doi] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// merge resolves two copies of one citation. The earlier-strategy copy wins
// conflicting fields; with equal strategies the first-seen copy wins. Fields
// the winner lacks are taken from the loser.
func merge(a, b types.LiteratureItem) types.LiteratureItem {
	winner, loser := a, b
	if strategyOrder(b.Strategy) < strategyOrder(a.Strategy) {
		winner, loser = b, a
	}
	if winner.Title == "" {
		winner.Title = loser.Title
	}
	if len(winner.Authors) == 0 {
		winner.Authors = loser.Authors
	}
	if winner.Journal == "" {
		winner.Journal = loser.Journal
	}
	if winner.ISSN == "" {
		winner.ISSN = loser.ISSN
	}
	if winner.Year == 0 {
		winner.Year = loser.Year
	}
	if winner.Abstract == "" {
		winner.Abstract = loser.Abstract
	}
	if winner.DOI == "" {
		winner.DOI = loser.DOI
	}
	if winner.StudyType == "" {
		winner.StudyType = loser.StudyType
	}
	return winner
}

// strategyOrder mirrors the query builder's variant order: the
// controlled-vocabulary strategy is issued first.
func strategyOrder(s types.QueryStrategy) int {
	switch s {
	case types.StrategyMesh:
		return 0
	case types.StrategyKeyword:
		return 1
	default:
		return 2
	}
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
