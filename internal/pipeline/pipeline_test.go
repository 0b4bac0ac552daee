// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/filter"
	"github.com/pdiddy/review-engine/internal/intent"
	"github.com/pdiddy/review-engine/internal/quality"
	"github.com/pdiddy/review-engine/internal/retrieval"
	"github.com/pdiddy/review-engine/pkg/types"
)

// makeRecord builds a minimal PubMed payload the normalizer accepts.
func makeRecord(pmid, title string, year int) types.RawRecord {
	payload := fmt.Sprintf(`<PubmedArticle><MedlineCitation><PMID>%s</PMID><Article>
		<Journal><JournalIssue><PubDate><Year>%d</Year></PubDate></JournalIssue></Journal>
		<ArticleTitle>%s</ArticleTitle>
	</Article></MedlineCitation></PubmedArticle>`, pmid, year, title)
	return types.RawRecord{ID: pmid, Payload: []byte(payload)}
}

type fakeAnalyzer struct {
	si    types.SearchIntent
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string) (types.SearchIntent, error) {
	f.calls++
	return f.si, f.err
}

// retrieverStub routes canned results and errors by query strategy.
type retrieverStub struct {
	results map[types.QueryStrategy]retrieval.Result
	errs    map[types.QueryStrategy]error
	calls   int
}

func (f *retrieverStub) Fetch(_ context.Context, q types.SearchQuery, _ io.Writer) (retrieval.Result, error) {
	f.calls++
	if err, ok := f.errs[q.Strategy]; ok {
		return retrieval.Result{Fingerprint: "fp-" + string(q.Strategy), Strategy: q.Strategy}, err
	}
	return f.results[q.Strategy], nil
}

type fakeOutliner struct {
	outline *types.Outline
	err     error
	calls   int
}

func (f *fakeOutliner) Generate(context.Context, string, []types.ScoredItem) (*types.Outline, error) {
	f.calls++
	return f.outline, f.err
}

type fakeReviewer struct {
	doc   *types.ReviewDocument
	err   error
	calls int
}

func (f *fakeReviewer) Generate(context.Context, string, *types.Outline, []types.ScoredItem) (*types.ReviewDocument, error) {
	f.calls++
	return f.doc, f.err
}

func testIntent() types.SearchIntent {
	return types.SearchIntent{
		Topic:     "aspirin and cardiovascular risk",
		Terms:     []types.MappedTerm{{Term: "Aspirin", Confidence: 0.9}},
		Keywords:  []string{"aspirin", "cardiovascular risk"},
		YearStart: 2015,
		YearEnd:   2024,
	}
}

func testOrchestrator(t *testing.T) (*Orchestrator, *fakeAnalyzer, *retrieverStub, *fakeOutliner, *fakeReviewer) {
	t.Helper()

	analyzer := &fakeAnalyzer{si: testIntent()}
	retriever := &retrieverStub{results: map[types.QueryStrategy]retrieval.Result{
		types.StrategyMesh: {
			Fingerprint: "fp-mesh",
			Strategy:    types.StrategyMesh,
			Total:       3,
			Records: []types.RawRecord{
				makeRecord("1", "Aspirin and cardiovascular risk outcomes", 2024),
				makeRecord("2", "Aspirin for primary prevention of cardiovascular events", 2020),
				makeRecord("3", "Historical aspirin synthesis", 2001),
			},
			FetchedPages: 1,
		},
		types.StrategyKeyword: {
			Fingerprint: "fp-kw",
			Strategy:    types.StrategyKeyword,
			Total:       2,
			Records: []types.RawRecord{
				makeRecord("2", "Aspirin for primary prevention of cardiovascular events", 2020),
				makeRecord("4", "Cardiovascular risk scoring with aspirin use", 2018),
			},
			CacheHits: 1,
		},
	}}
	outliner := &fakeOutliner{outline: &types.Outline{
		Title:    "Aspirin Review",
		Sections: []*types.OutlineNode{{Title: "Introduction", Level: 1}},
	}}
	reviewer := &fakeReviewer{doc: &types.ReviewDocument{
		Title: "Aspirin Review",
		Topic: "aspirin and cardiovascular risk",
		Sections: []types.ReviewSection{
			{Title: "Introduction", Level: 1, Prose: "Prose [1].", State: types.SectionGenerated},
		},
		References: []types.Reference{{Number: 1, Item: types.LiteratureItem{ID: "1"}}},
	}}

	o := &Orchestrator{
		Analyzer:  analyzer,
		Retriever: retriever,
		Filter:    filter.NewEngine(types.FilterConfig{}, quality.New(nil), filter.LexicalScorer{}),
		Outliner:  outliner,
		Reviewer:  reviewer,
		Cfg:       types.PipelineConfig{RunsDir: t.TempDir()},
	}
	return o, analyzer, retriever, outliner, reviewer
}

func TestRunEndToEnd(t *testing.T) {
	o, _, retriever, _, _ := testOrchestrator(t)
	var buf bytes.Buffer
	o.Out = &buf

	report, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.NoError(t, err)

	assert.Equal(t, RunComplete, report.State)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, retriever.calls)
	require.Len(t, report.Queries, 2)
	assert.Equal(t, types.StrategyMesh, report.Queries[0].Strategy)
	assert.Equal(t, "fp-mesh", report.Queries[0].Fingerprint)

	// Duplicate PMID 2 across strategies merged; PMID 3 (2001) dropped by
	// the year range.
	assert.Equal(t, 5, report.Filter.Input)
	assert.Equal(t, 1, report.Filter.Duplicates)
	assert.Equal(t, 1, report.Filter.Excluded)
	assert.Equal(t, 3, report.Filter.Kept)

	dir := filepath.Join(o.Cfg.RunsDir, report.RunID)
	for _, name := range []string{intentFile, literatureFile, scoredFile, outlineFile, reviewFile, reportFile, markdownFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	md, err := os.ReadFile(filepath.Join(dir, markdownFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Aspirin Review")

	// Scenario A properties: sorted by rank, unique identifiers, years in
	// range.
	var art scoredArtifact
	ok, err := loadArtifact(dir, scoredFile, &art)
	require.NoError(t, err)
	require.True(t, ok)
	seen := map[string]bool{}
	for i, it := range art.Items {
		assert.False(t, seen[it.ID], "duplicate identifier %s", it.ID)
		seen[it.ID] = true
		assert.GreaterOrEqual(t, it.Year, 2015)
		assert.LessOrEqual(t, it.Year, 2024)
		if i > 0 {
			assert.LessOrEqual(t, it.Rank, art.Items[i-1].Rank)
		}
	}
}

func TestRunResumesFromArtifacts(t *testing.T) {
	o, analyzer, retriever, outliner, reviewer := testOrchestrator(t)

	first, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.NoError(t, err)

	second, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{RunID: first.RunID})
	require.NoError(t, err)
	assert.Equal(t, RunComplete, second.State)

	// Every stage reused its artifact.
	assert.Equal(t, 1, analyzer.calls)
	assert.Equal(t, 2, retriever.calls)
	assert.Equal(t, 1, outliner.calls)
	assert.Equal(t, 1, reviewer.calls)
}

func TestRunForceRecomputes(t *testing.T) {
	o, analyzer, retriever, _, _ := testOrchestrator(t)

	first, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "aspirin and cardiovascular risk", Options{RunID: first.RunID, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, analyzer.calls)
	assert.Equal(t, 4, retriever.calls)
}

func TestRunMappingFallback(t *testing.T) {
	o, analyzer, retriever, _, _ := testOrchestrator(t)
	analyzer.err = intent.ErrMappingUnresolved
	retriever.results[types.StrategyKeyword] = retrieval.Result{
		Fingerprint: "fp-kw",
		Strategy:    types.StrategyKeyword,
		Total:       1,
		Records:     []types.RawRecord{makeRecord("9", "Aspirin topic fallback", 2020)},
	}

	report, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.NoError(t, err)

	assert.True(t, report.MappingFallback)
	// The fallback intent has no controlled-vocabulary terms, so only the
	// keyword strategy runs.
	require.Len(t, report.Queries, 1)
	assert.Equal(t, types.StrategyKeyword, report.Queries[0].Strategy)
}

func TestRunOneStrategyFailureDegrades(t *testing.T) {
	o, _, retriever, _, _ := testOrchestrator(t)
	retriever.errs = map[types.QueryStrategy]error{
		types.StrategyMesh: fmt.Errorf("page 0: connection refused"),
	}

	report, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.NoError(t, err)

	assert.Equal(t, RunComplete, report.State)
	require.Len(t, report.Queries, 2)
	assert.NotEmpty(t, report.Queries[0].Error)
	assert.Empty(t, report.Queries[1].Error)
}

func TestRunAllStrategiesFailing(t *testing.T) {
	o, _, retriever, _, _ := testOrchestrator(t)
	retriever.errs = map[types.QueryStrategy]error{
		types.StrategyMesh:    fmt.Errorf("connection refused"),
		types.StrategyKeyword: fmt.Errorf("connection refused"),
	}

	report, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.Error(t, err)
	assert.Equal(t, RunFailed, report.State)
	assert.Equal(t, "retrieval", report.Stage)
	assert.Contains(t, report.Error, "strategies failed")

	// The failed report is persisted for the retry.
	var persisted Report
	ok, loadErr := loadArtifact(filepath.Join(o.Cfg.RunsDir, report.RunID), reportFile, &persisted)
	require.NoError(t, loadErr)
	require.True(t, ok)
	assert.Equal(t, RunFailed, persisted.State)
}

func TestRunCancelled(t *testing.T) {
	o, _, _, _, _ := testOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.Run(ctx, "aspirin and cardiovascular risk", Options{})
	require.Error(t, err)
	assert.Equal(t, RunCancelled, report.State)
}

func TestRunOutlineFailureIsFatal(t *testing.T) {
	o, _, _, outliner, _ := testOrchestrator(t)
	outliner.outline = nil
	outliner.err = fmt.Errorf("unparseable outline: no sections found")

	report, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.Error(t, err)
	assert.Equal(t, RunFailed, report.State)
	assert.Equal(t, "outline", report.Stage)
}

func TestRunReportsFailedSections(t *testing.T) {
	o, _, _, _, reviewer := testOrchestrator(t)
	reviewer.doc.Sections = append(reviewer.doc.Sections, types.ReviewSection{
		Title: "Broken", Level: 1, Prose: "[placeholder]", State: types.SectionPlaceholder,
	})
	reviewer.doc.FailedSections = 1

	report, err := o.Run(context.Background(), "aspirin and cardiovascular risk", Options{})
	require.NoError(t, err)
	assert.Equal(t, RunComplete, report.State)
	assert.Equal(t, 1, report.FailedSections)
}
