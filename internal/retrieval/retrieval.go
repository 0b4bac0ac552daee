// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval executes a SearchQuery against the literature source
// across pages, concurrently, without exceeding the source's permitted
// request rate. Pages are fetched through a read-through cache and emitted
// in page-index order regardless of completion order; a page whose retries
// are exhausted degrades the result instead of aborting the query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pdiddy/review-engine/internal/cache"
	"github.com/pdiddy/review-engine/internal/query"
	"github.com/pdiddy/review-engine/internal/retry"
	"github.com/pdiddy/review-engine/pkg/types"
)

// ErrThrottled signals that the source asked us to slow down. Sources wrap
// it so the engine can halve its request rate before retrying the affected
// page.
var ErrThrottled = errors.New("source throttled the request")

// minRate is the floor the limiter can be halved down to.
const minRate = rate.Limit(0.25)

// retryBaseDelay controls the per-page backoff. Tests override this to
// avoid real sleeps.
var retryBaseDelay = time.Second

// Source fetches one page of raw citation records. FetchPage returns the
// records in source relevance order together with the source-reported total
// result count for the expression.
type Source interface {
	Name() string
	FetchPage(ctx context.Context, expression string, offset, limit int) ([]types.RawRecord, int, error)
}

// FailedPage marks a region of the result sequence that could not be
// fetched after all retries.
type FailedPage struct {
	// Page is the zero-based page index.
	Page int `json:"page" yaml:"page"`

	// Offset and Limit identify the unfetched record range.
	Offset int `json:"offset" yaml:"offset"`
	Limit  int `json:"limit" yaml:"limit"`

	// Reason is the final error's message.
	Reason string `json:"reason" yaml:"reason"`
}

// Result is the outcome of retrieving one query. Records are in page-index
// order; downstream stages must be able to proceed when Failed is non-empty.
type Result struct {
	// Fingerprint identifies the query in the cache and in failure reports.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Strategy is copied from the query for the merge tie-break downstream.
	Strategy types.QueryStrategy `json:"strategy" yaml:"strategy"`

	// Records holds the retrieved citations, truncated at the query cap.
	Records []types.RawRecord `json:"records" yaml:"records"`

	// Total is the source-reported total match count (pre-cap).
	Total int `json:"total" yaml:"total"`

	// CacheHits counts pages served from the cache.
	CacheHits int `json:"cache_hits" yaml:"cache_hits"`

	// FetchedPages counts pages fetched over the network.
	FetchedPages int `json:"fetched_pages" yaml:"fetched_pages"`

	// ThrottleEvents counts throttling signals observed.
	ThrottleEvents int `json:"throttle_events" yaml:"throttle_events"`

	// Failed lists pages whose retries were exhausted.
	Failed []FailedPage `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Engine coordinates rate-limited, cached, concurrent page fetches. One
// engine may serve many queries; the limiter and cache are the only state
// shared between them.
type Engine struct {
	source  Source
	store   *cache.Store
	limiter *rate.Limiter
	cfg     types.RetrievalConfig

	// rateMu serializes limiter halving so two concurrent throttle signals
	// do not quarter the rate.
	rateMu sync.Mutex

	// now is stubbed in tests.
	now func() time.Time
}

// NewEngine returns an Engine fetching from source through store. store may
// be nil, in which case every page is a network fetch.
func NewEngine(source Source, store *cache.Store, cfg types.RetrievalConfig) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 200
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 4
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3 // NCBI keyless ceiling
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Engine{
		source:  source,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		cfg:     cfg,
		now:     time.Now,
	}
}

// pageOutcome is one page's slot in the reassembly buffer.
type pageOutcome struct {
	records  []types.RawRecord
	total    int
	cacheHit bool
	err      error
}

// Fetch retrieves q's records up to its cap, emitting progress lines to w.
// The first page is fetched synchronously to learn the total; remaining
// pages fan out concurrently and land in index-addressed slots, so emission
// order never depends on completion order.
func (e *Engine) Fetch(ctx context.Context, q types.SearchQuery, w io.Writer) (Result, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = e.cfg.PageSize
	}
	capacity := q.MaxResults
	if capacity <= 0 {
		capacity = e.cfg.MaxResults
	}

	// Concurrent page fetchers share the progress writer and the throttle
	// counter.
	sw := &syncWriter{w: w}
	var throttles atomic.Int64

	res := Result{
		Fingerprint: query.Fingerprint(q.Expression),
		Strategy:    q.Strategy,
	}

	first := e.fetchPage(ctx, q.Expression, res.Fingerprint, 0, pageSize, sw, &throttles)
	if first.err != nil {
		// Without the first page the result extent is unknown; this is the
		// one failure that fails the whole query.
		res.ThrottleEvents = int(throttles.Load())
		return res, fmt.Errorf("query %s page 0: %w", res.Fingerprint, first.err)
	}

	res.Total = first.total
	want := res.Total
	if want > capacity {
		want = capacity
	}
	numPages := 0
	if want > 0 {
		numPages = (want + pageSize - 1) / pageSize
	}

	slots := make([]pageOutcome, numPages)
	if numPages > 0 {
		slots[0] = first
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FanOut)
	for page := 1; page < numPages; page++ {
		page := page
		g.Go(func() error {
			slots[page] = e.fetchPage(gctx, q.Expression, res.Fingerprint, page, pageSize, sw, &throttles)
			return nil
		})
	}
	// Workers never return errors; failures live in their slots.
	_ = g.Wait()
	res.ThrottleEvents = int(throttles.Load())
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// Drain slots in page-index order.
	for page, out := range slots {
		if out.err != nil {
			res.Failed = append(res.Failed, FailedPage{
				Page:   page,
				Offset: page * pageSize,
				Limit:  pageSize,
				Reason: out.err.Error(),
			})
			continue
		}
		if out.cacheHit {
			res.CacheHits++
		} else {
			res.FetchedPages++
		}
		res.Records = append(res.Records, out.records...)
	}
	if len(res.Records) > capacity {
		res.Records = res.Records[:capacity]
	}

	fmt.Fprintf(w, "query %s: %d records (%d total at source, %d cache hits, %d fetched",
		res.Fingerprint, len(res.Records), res.Total, res.CacheHits, res.FetchedPages)
	if len(res.Failed) > 0 {
		fmt.Fprintf(w, ", %d pages failed", len(res.Failed))
	}
	fmt.Fprintln(w, ")")

	return res, nil
}

// fetchPage resolves one page: fresh cache entry, else rate-limited network
// fetch with throttle-aware retries, written back to the cache on success.
func (e *Engine) fetchPage(ctx context.Context, expression, fingerprint string, page, pageSize int, w io.Writer, throttles *atomic.Int64) pageOutcome {
	if e.store != nil {
		entry, err := e.store.Get(ctx, fingerprint, page)
		if err != nil {
			fmt.Fprintf(w, "warning: cache read for page %d: %v\n", page, err)
		} else if entry != nil && e.now().Sub(entry.FetchedAt) <= e.cfg.CacheTTL {
			return pageOutcome{records: entry.Records, total: entry.Total, cacheHit: true}
		}
		// Stale entries fall through to a refetch; they are only replaced
		// on success so a failed refetch does not lose the old copy.
	}

	policy := retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   retryBaseDelay,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		OnRetry: func(err error, attempt int, delay time.Duration) {
			fmt.Fprintf(w, "page %d: retrying in %v (attempt %d/5): %v\n", page, delay.Round(time.Millisecond), attempt, err)
		},
	}

	var (
		records []types.RawRecord
		total   int
	)
	err := policy.Do(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		var fetchErr error
		records, total, fetchErr = e.source.FetchPage(ctx, expression, page*pageSize, pageSize)
		if errors.Is(fetchErr, ErrThrottled) {
			throttles.Add(1)
			e.halveRate(w)
		}
		return fetchErr
	})
	if err != nil {
		return pageOutcome{err: err}
	}

	if e.store != nil {
		if putErr := e.store.Put(ctx, cache.Entry{
			Fingerprint: fingerprint,
			Page:        page,
			Records:     records,
			Total:       total,
			FetchedAt:   e.now(),
		}); putErr != nil {
			fmt.Fprintf(w, "warning: cache write for page %d: %v\n", page, putErr)
		}
	}
	return pageOutcome{records: records, total: total}
}

// syncWriter serializes progress lines from concurrent page fetchers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// halveRate cuts the limiter's rate in half, down to minRate.
func (e *Engine) halveRate(w io.Writer) {
	e.rateMu.Lock()
	defer e.rateMu.Unlock()
	current := e.limiter.Limit()
	next := current / 2
	if next < minRate {
		next = minRate
	}
	if next != current {
		e.limiter.SetLimit(next)
		fmt.Fprintf(w, "throttled: request rate halved to %.2g rps\n", float64(next))
	}
}
