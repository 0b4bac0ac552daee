// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/cache"
	"github.com/pdiddy/review-engine/pkg/types"
)

func init() {
	// Use a tiny base delay so tests finish quickly.
	retryBaseDelay = time.Millisecond
}

// fakeSource serves sequentially numbered records and can inject throttling,
// hard failures, and per-page delays keyed by page offset.
type fakeSource struct {
	total     int
	delays    map[int]time.Duration
	throttles map[int]int // offset -> remaining throttle responses
	failAll   map[int]bool

	mu    sync.Mutex
	calls []int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchPage(ctx context.Context, _ string, offset, limit int) ([]types.RawRecord, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, offset)
	remaining := f.throttles[offset]
	if remaining > 0 {
		f.throttles[offset]--
	}
	f.mu.Unlock()

	if d := f.delays[offset]; d > 0 {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(d):
		}
	}
	if remaining > 0 {
		return nil, 0, fmt.Errorf("HTTP 429: %w", ErrThrottled)
	}
	if f.failAll[offset] {
		return nil, 0, errors.New("connection reset")
	}

	var records []types.RawRecord
	for i := offset; i < offset+limit && i < f.total; i++ {
		records = append(records, types.RawRecord{
			ID:      fmt.Sprint(i),
			Payload: []byte(fmt.Sprintf("<PubmedArticle>%d</PubmedArticle>", i)),
		})
	}
	return records, f.total, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testEngine(t *testing.T, src Source, withCache bool) (*Engine, *cache.Store) {
	t.Helper()
	var store *cache.Store
	if withCache {
		var err error
		store, err = cache.Open(filepath.Join(t.TempDir(), "retrieval.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}
	cfg := types.RetrievalConfig{
		PageSize:          10,
		MaxResults:        100,
		FanOut:            4,
		RequestsPerSecond: 1000, // effectively unthrottled in tests
		CacheTTL:          time.Hour,
	}
	return NewEngine(src, store, cfg), store
}

func testQuery(pageSize, maxResults int) types.SearchQuery {
	return types.SearchQuery{
		Strategy:   types.StrategyMesh,
		Expression: "(aspirin[MeSH Terms])",
		PageSize:   pageSize,
		MaxResults: maxResults,
	}
}

func recordIDs(records []types.RawRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestFetchEmitsInPageIndexOrder(t *testing.T) {
	// Page 1 (offset 10) completes last, page 3 (offset 30) first.
	src := &fakeSource{
		total: 40,
		delays: map[int]time.Duration{
			10: 50 * time.Millisecond,
			20: 20 * time.Millisecond,
			30: 0,
		},
	}
	eng, _ := testEngine(t, src, false)

	res, err := eng.Fetch(context.Background(), testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, res.Records, 40)
	for i, id := range recordIDs(res.Records) {
		assert.Equal(t, fmt.Sprint(i), id, "record %d out of order", i)
	}
	assert.Equal(t, 40, res.Total)
	assert.Equal(t, 4, res.FetchedPages)
}

func TestFetchTruncatesAtCap(t *testing.T) {
	src := &fakeSource{total: 95}
	eng, _ := testEngine(t, src, false)

	res, err := eng.Fetch(context.Background(), testQuery(10, 25), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Len(t, res.Records, 25)
	assert.Equal(t, 95, res.Total)
	// 25 records at page size 10 means exactly 3 pages.
	assert.Equal(t, 3, src.callCount())
}

func TestFetchThrottledPageRetriesAlone(t *testing.T) {
	// Scenario: page 2 of 3 answers 429 twice before succeeding.
	src := &fakeSource{
		total:     30,
		throttles: map[int]int{20: 2},
	}
	eng, _ := testEngine(t, src, false)
	var buf bytes.Buffer

	res, err := eng.Fetch(context.Background(), testQuery(10, 100), &buf)
	require.NoError(t, err)

	require.Len(t, res.Records, 30)
	for i, id := range recordIDs(res.Records) {
		assert.Equal(t, fmt.Sprint(i), id, "no page may be duplicated or reordered")
	}
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, res.ThrottleEvents)
	assert.Less(t, float64(eng.limiter.Limit()), 1000.0, "rate should have been halved")

	// Pages 0 and 1 fetched exactly once, page 2 three times.
	counts := map[int]int{}
	for _, off := range src.calls {
		counts[off]++
	}
	assert.Equal(t, 1, counts[0])
	assert.Equal(t, 1, counts[10])
	assert.Equal(t, 3, counts[20])
}

func TestFetchExhaustedPageBecomesPartialFailure(t *testing.T) {
	src := &fakeSource{
		total:   30,
		failAll: map[int]bool{10: true},
	}
	eng, _ := testEngine(t, src, false)

	res, err := eng.Fetch(context.Background(), testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err, "page-level failure must not abort the query")

	// Pages 0 and 2 present, in order.
	assert.Len(t, res.Records, 20)
	assert.Equal(t, "0", res.Records[0].ID)
	assert.Equal(t, "20", res.Records[10].ID)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Page)
	assert.Equal(t, 10, res.Failed[0].Offset)
	assert.Equal(t, 10, res.Failed[0].Limit)
	assert.Contains(t, res.Failed[0].Reason, "connection reset")
}

func TestFetchFirstPageFailureFailsQuery(t *testing.T) {
	src := &fakeSource{
		total:   30,
		failAll: map[int]bool{0: true},
	}
	eng, _ := testEngine(t, src, false)

	_, err := eng.Fetch(context.Background(), testQuery(10, 100), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestFetchUsesFreshCache(t *testing.T) {
	src := &fakeSource{total: 20}
	eng, _ := testEngine(t, src, true)
	ctx := context.Background()

	first, err := eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.FetchedPages)
	assert.Equal(t, 0, first.CacheHits)
	callsAfterFirst := src.callCount()

	second, err := eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.FetchedPages)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, callsAfterFirst, src.callCount(), "fresh cache must avoid network fetches")
	assert.Equal(t, recordIDs(first.Records), recordIDs(second.Records))
}

func TestFetchStaleCacheRefetches(t *testing.T) {
	src := &fakeSource{total: 10}
	eng, store := testEngine(t, src, true)
	ctx := context.Background()

	_, err := eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)

	// Move the clock past the freshness window.
	eng.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FetchedPages, "stale entry must be treated as a miss")

	// The refreshed entry carries the new timestamp.
	fp := res.Fingerprint
	entry, err := store.Get(ctx, fp, 0)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), entry.FetchedAt, time.Minute)
}

func TestFetchFailedRefetchKeepsStaleEntry(t *testing.T) {
	src := &fakeSource{total: 10}
	eng, store := testEngine(t, src, true)
	ctx := context.Background()

	first, err := eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)

	// Expire the cache and make the source fail hard.
	eng.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	src.failAll = map[int]bool{0: true}

	_, err = eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	assert.Error(t, err)

	// The stale entry is still there: write-after means no delete on failure.
	entry, err := store.Get(ctx, first.Fingerprint, 0)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, entry.Records, 10)
}

func TestFetchCancellation(t *testing.T) {
	src := &fakeSource{
		total:  40,
		delays: map[int]time.Duration{10: time.Hour, 20: time.Hour, 30: time.Hour},
	}
	eng, _ := testEngine(t, src, false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := eng.Fetch(ctx, testQuery(10, 100), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchEmptyResult(t *testing.T) {
	src := &fakeSource{total: 0}
	eng, _ := testEngine(t, src, false)

	res, err := eng.Fetch(context.Background(), testQuery(10, 100), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.Total)
}
