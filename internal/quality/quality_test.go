// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableYAML = `journals:
  - journal: The New England Journal of Medicine
    issn: 1533-4406
    impact_factor: 96.2
    cas_zone: 1
    jcr_quartile: Q1
  - journal: The Lancet
    issn: 0140-6736
    impact_factor: 98.4
    cas_zone: 1
    jcr_quartile: Q1
  - journal: PLOS ONE
    impact_factor: 2.9
    cas_zone: 3
    jcr_quartile: Q2
`

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quality.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tbl, err := Load(writeTable(t, tableYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())

	e, ok := tbl.Lookup("The Lancet", "")
	require.True(t, ok)
	assert.Equal(t, 98.4, e.ImpactFactor)
	assert.Equal(t, 1, e.CASZone)
	assert.Equal(t, "Q1", e.JCRQuartile)
}

func TestLoadEmptyPath(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Zero(t, tbl.Factor("Anything", "1234-5678"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeTable(t, "journals: [unclosed"))
	assert.Error(t, err)
}

func TestLookupPrefersISSN(t *testing.T) {
	tbl, err := Load(writeTable(t, tableYAML))
	require.NoError(t, err)

	// ISSN wins even when the name matches a different journal.
	e, ok := tbl.Lookup("PLOS ONE", "1533-4406")
	require.True(t, ok)
	assert.Equal(t, "The New England Journal of Medicine", e.Journal)
}

func TestLookupNameNormalization(t *testing.T) {
	tbl, err := Load(writeTable(t, tableYAML))
	require.NoError(t, err)

	_, ok := tbl.Lookup("  the  new england   JOURNAL of Medicine ", "")
	assert.True(t, ok)
}

func TestLookupMiss(t *testing.T) {
	tbl, err := Load(writeTable(t, tableYAML))
	require.NoError(t, err)

	_, ok := tbl.Lookup("Unknown Journal", "0000-0000")
	assert.False(t, ok)
}

func TestFactorNormalizedToTableMax(t *testing.T) {
	tbl, err := Load(writeTable(t, tableYAML))
	require.NoError(t, err)

	// The Lancet carries the table's highest impact factor.
	assert.InDelta(t, 1.0, tbl.Factor("The Lancet", ""), 1e-9)
	assert.InDelta(t, 96.2/98.4, tbl.Factor("", "1533-4406"), 1e-9)
	assert.InDelta(t, 2.9/98.4, tbl.Factor("PLOS ONE", ""), 1e-9)
	assert.Zero(t, tbl.Factor("Unknown Journal", ""))
}
