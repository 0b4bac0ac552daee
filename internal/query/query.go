// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query composes PubMed boolean expressions from a SearchIntent.
// Building is deterministic: the same intent always yields the same query
// variants in the same order, which is the tie-break used when strategies
// return overlapping results.
package query

import (
	"fmt"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Build derives the ordered query variants for an intent: the
// controlled-vocabulary query first when mapped terms exist, then the
// literal-keyword fallback. pageSize and maxResults apply to every variant.
func Build(intent types.SearchIntent, pageSize, maxResults int) []types.SearchQuery {
	constraints := buildConstraints(intent)

	var queries []types.SearchQuery
	if expr := meshExpression(intent); expr != "" {
		queries = append(queries, types.SearchQuery{
			Strategy:   types.StrategyMesh,
			Expression: joinClauses(append([]string{expr}, constraints...)),
			PageSize:   pageSize,
			MaxResults: maxResults,
		})
	}
	if expr := keywordExpression(intent); expr != "" {
		queries = append(queries, types.SearchQuery{
			Strategy:   types.StrategyKeyword,
			Expression: joinClauses(append([]string{expr}, constraints...)),
			PageSize:   pageSize,
			MaxResults: maxResults,
		})
	}
	return queries
}

// meshExpression ANDs one clause per mapped term, each clause matching the
// term as a MeSH heading or as Title/Abstract text.
func meshExpression(intent types.SearchIntent) string {
	var clauses []string
	for _, t := range intent.Terms {
		term := strings.TrimSpace(t.Term)
		if term == "" {
			continue
		}
		clauses = append(clauses,
			fmt.Sprintf("(%s[MeSH Terms] OR %s[Title/Abstract])", term, term))
	}
	return strings.Join(clauses, " AND ")
}

// keywordExpression ANDs literal Title/Abstract clauses. When the intent
// carries no keywords the raw topic is used, so the fallback strategy always
// produces a query.
func keywordExpression(intent types.SearchIntent) string {
	keywords := intent.Keywords
	if len(keywords) == 0 {
		topic := strings.TrimSpace(intent.Topic)
		if topic == "" {
			return ""
		}
		keywords = []string{topic}
	}

	var clauses []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s[Title/Abstract]", kw))
	}
	return strings.Join(clauses, " AND ")
}

// buildConstraints renders date-range, language, and study-type filters as
// additional AND clauses.
func buildConstraints(intent types.SearchIntent) []string {
	var clauses []string

	switch {
	case intent.YearStart > 0 && intent.YearEnd > 0:
		clauses = append(clauses, fmt.Sprintf(
			"(%q[Date - Publication] : %q[Date - Publication])",
			fmt.Sprint(intent.YearStart), fmt.Sprint(intent.YearEnd)))
	case intent.YearStart > 0:
		clauses = append(clauses, fmt.Sprintf(
			"(%q[Date - Publication] : 3000[Date - Publication])",
			fmt.Sprint(intent.YearStart)))
	case intent.YearEnd > 0:
		clauses = append(clauses, fmt.Sprintf(
			"(1800[Date - Publication] : %q[Date - Publication])",
			fmt.Sprint(intent.YearEnd)))
	}

	if lang := strings.TrimSpace(intent.Language); lang != "" {
		clauses = append(clauses, fmt.Sprintf("%s[Language]", strings.ToLower(lang)))
	}

	if len(intent.StudyTypes) > 0 {
		var parts []string
		for _, st := range intent.StudyTypes {
			st = strings.TrimSpace(st)
			if st == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s[Publication Type]", st))
		}
		if len(parts) > 0 {
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
		}
	}

	return clauses
}

// joinClauses ANDs the non-empty clauses, parenthesizing each.
func joinClauses(clauses []string) string {
	var parts []string
	for _, c := range clauses {
		if strings.TrimSpace(c) == "" {
			continue
		}
		parts = append(parts, "("+c+")")
	}
	return strings.Join(parts, " AND ")
}
