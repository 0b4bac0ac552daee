// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quality loads the static journal-quality table: impact factor,
// Chinese Academy of Sciences zone, and JCR quartile keyed by journal name
// or ISSN. The table is loaded once per run and read-only afterwards.
package quality

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Entry is one journal's quality row.
type Entry struct {
	// Journal is the journal's display name.
	Journal string `json:"journal" yaml:"journal"`

	// ISSN is the journal's ISSN, when known.
	ISSN string `json:"issn,omitempty" yaml:"issn,omitempty"`

	// ImpactFactor is the journal's latest impact factor.
	ImpactFactor float64 `json:"impact_factor" yaml:"impact_factor"`

	// CASZone is the Chinese Academy of Sciences zone, 1 (best) to 4.
	// Zero means unknown.
	CASZone int `json:"cas_zone,omitempty" yaml:"cas_zone,omitempty"`

	// JCRQuartile is "Q1".."Q4". Empty means unknown.
	JCRQuartile string `json:"jcr_quartile,omitempty" yaml:"jcr_quartile,omitempty"`
}

// Table is the in-memory quality lookup.
type Table struct {
	byName map[string]Entry
	byISSN map[string]Entry
	maxIF  float64
}

// tableFile is the YAML layout of the quality table file.
type tableFile struct {
	Journals []Entry `yaml:"journals"`
}

// Load reads the table from a YAML file. An empty path yields an empty
// table: every lookup misses and every quality factor is zero.
func Load(path string) (*Table, error) {
	if path == "" {
		return New(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading quality table: %w", err)
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing quality table: %w", err)
	}
	return New(tf.Journals), nil
}

// New builds a table from entries.
func New(entries []Entry) *Table {
	t := &Table{
		byName: make(map[string]Entry, len(entries)),
		byISSN: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		if name := normalizeName(e.Journal); name != "" {
			t.byName[name] = e
		}
		if issn := strings.TrimSpace(e.ISSN); issn != "" {
			t.byISSN[issn] = e
		}
		if e.ImpactFactor > t.maxIF {
			t.maxIF = e.ImpactFactor
		}
	}
	return t
}

// Lookup finds a journal's entry by ISSN first, then by normalized name.
func (t *Table) Lookup(journal, issn string) (Entry, bool) {
	if issn = strings.TrimSpace(issn); issn != "" {
		if e, ok := t.byISSN[issn]; ok {
			return e, true
		}
	}
	if name := normalizeName(journal); name != "" {
		if e, ok := t.byName[name]; ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Factor returns the journal's normalized quality score in [0, 1]: the
// impact factor divided by the table's maximum. Unknown journals score 0.
func (t *Table) Factor(journal, issn string) float64 {
	e, ok := t.Lookup(journal, issn)
	if !ok || t.maxIF <= 0 {
		return 0
	}
	f := e.ImpactFactor / t.maxIF
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Len reports how many journals the table indexes by name.
func (t *Table) Len() int { return len(t.byName) }

// normalizeName lowercases and collapses whitespace so cosmetic differences
// in journal naming still match.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
