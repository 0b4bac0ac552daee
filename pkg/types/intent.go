// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the review-engine pipeline.
package types

// MappedTerm is one controlled-vocabulary term resolved from the user's topic.
// Terms are kept in resolution order; earlier terms are considered more
// relevant when the query builder composes boolean expressions.
type MappedTerm struct {
	// Term is the controlled-vocabulary (MeSH) heading.
	Term string `json:"term" yaml:"term"`

	// Confidence is the mapper's confidence in the translation, in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// SearchIntent captures everything the pipeline knows about what the user
// wants to find. It is produced by the term mapper and treated as immutable
// by every downstream stage.
type SearchIntent struct {
	// Topic is the original free-text topic as entered by the user.
	Topic string `json:"topic" yaml:"topic"`

	// Terms lists resolved controlled-vocabulary terms in relevance order.
	// Empty when mapping was unresolved and the literal fallback applies.
	Terms []MappedTerm `json:"terms,omitempty" yaml:"terms,omitempty"`

	// Keywords lists literal keywords for the Title/Abstract fallback strategy.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// YearStart and YearEnd bound the publication date range. Zero means
	// unbounded on that side.
	YearStart int `json:"year_start,omitempty" yaml:"year_start,omitempty"`
	YearEnd   int `json:"year_end,omitempty" yaml:"year_end,omitempty"`

	// Language restricts results to one language (e.g. "english").
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// StudyTypes restricts results to PubMed publication types
	// (e.g. "Randomized Controlled Trial", "Meta-Analysis").
	StudyTypes []string `json:"study_types,omitempty" yaml:"study_types,omitempty"`

	// MinImpactFactor and MaxImpactFactor bound journal impact factor.
	// Zero means unbounded.
	MinImpactFactor float64 `json:"min_impact_factor,omitempty" yaml:"min_impact_factor,omitempty"`
	MaxImpactFactor float64 `json:"max_impact_factor,omitempty" yaml:"max_impact_factor,omitempty"`

	// CASZones restricts journals to Chinese Academy of Sciences zones (1-4).
	CASZones []int `json:"cas_zones,omitempty" yaml:"cas_zones,omitempty"`

	// JCRQuartiles restricts journals to JCR quartiles ("Q1".."Q4").
	JCRQuartiles []string `json:"jcr_quartiles,omitempty" yaml:"jcr_quartiles,omitempty"`
}

// QueryStrategy identifies which query-building strategy produced a SearchQuery.
// Strategy order is the tie-break when the same citation is returned by more
// than one strategy: the earlier strategy's copy wins on attribute fields.
type QueryStrategy string

const (
	// StrategyMesh composes the query from controlled-vocabulary terms.
	StrategyMesh QueryStrategy = "mesh"

	// StrategyKeyword composes the query from literal Title/Abstract keywords.
	StrategyKeyword QueryStrategy = "keyword"
)

// SearchQuery is one executable boolean expression plus pagination parameters.
// It is derived deterministically from a SearchIntent; the same intent always
// yields the same queries in the same order.
type SearchQuery struct {
	// Strategy identifies the builder strategy that produced this query.
	Strategy QueryStrategy `json:"strategy" yaml:"strategy"`

	// Expression is the full boolean search expression in source syntax.
	Expression string `json:"expression" yaml:"expression"`

	// PageSize is the number of records requested per page.
	PageSize int `json:"page_size" yaml:"page_size"`

	// MaxResults caps the total number of records retrieved for this query.
	MaxResults int `json:"max_results" yaml:"max_results"`
}
