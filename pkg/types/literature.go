// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RawRecord is one citation exactly as the literature source returned it.
// The payload is opaque to everything except the record normalizer; the
// retrieval cache stores records content-addressed by identifier and query
// fingerprint and never mutates them.
type RawRecord struct {
	// ID is the source-assigned identifier (PMID for PubMed).
	ID string `json:"id" yaml:"id"`

	// Payload is the raw record body (one PubmedArticle XML fragment).
	Payload []byte `json:"payload" yaml:"payload"`
}

// LiteratureItem is the canonical normalized shape of one citation. Within a
// pipeline run the identifier is globally unique: two items with the same
// identifier are always merged, never duplicated.
type LiteratureItem struct {
	// ID is the source identifier (PMID).
	ID string `json:"id" yaml:"id"`

	// Title is the article title.
	Title string `json:"title" yaml:"title"`

	// Authors lists authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Journal is the publishing journal's name.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// ISSN is the journal's ISSN when the source provides one.
	ISSN string `json:"issn,omitempty" yaml:"issn,omitempty"`

	// Year is the publication year. Zero when the source omits it.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Abstract is the abstract text.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// DOI is the document object identifier. Empty when absent at the
	// source; never defaulted.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// StudyType is the source's publication-type tag (e.g. "Meta-Analysis").
	// Empty when absent.
	StudyType string `json:"study_type,omitempty" yaml:"study_type,omitempty"`

	// Strategy records which query strategy first returned this item. Used
	// as the merge tie-break.
	Strategy QueryStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// ScoredItem is a LiteratureItem plus its relevance and composite rank
// scores. Rank is a pure function of the item, the weights, and the scoring
// horizon: recomputing it from the same inputs yields the same value.
type ScoredItem struct {
	LiteratureItem `yaml:",inline"`

	// Relevance is the topic-similarity score in [0, 1].
	Relevance float64 `json:"relevance" yaml:"relevance"`

	// Recency is the linear recency factor in [0, 1].
	Recency float64 `json:"recency" yaml:"recency"`

	// Quality is the normalized journal-quality factor in [0, 1];
	// 0 when the journal is not in the quality table.
	Quality float64 `json:"quality" yaml:"quality"`

	// Rank is the weighted linear combination of the three factors.
	Rank float64 `json:"rank" yaml:"rank"`
}
