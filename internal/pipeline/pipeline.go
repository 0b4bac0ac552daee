// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the stages end to end: intent analysis, query
// building, retrieval, normalization, filtering, outline, and review. Every
// stage's output is persisted as a YAML artifact under the run directory, so
// a rerun of the same run ID resumes from the last completed stage instead
// of repeating work. Page- and record-level failures degrade the run and are
// reported as counters; only stage-level failures end it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/review-engine/internal/filter"
	"github.com/pdiddy/review-engine/internal/intent"
	"github.com/pdiddy/review-engine/internal/normalize"
	"github.com/pdiddy/review-engine/internal/query"
	"github.com/pdiddy/review-engine/internal/retrieval"
	"github.com/pdiddy/review-engine/internal/review"
	"github.com/pdiddy/review-engine/pkg/types"
)

// RunState is a run's terminal state.
type RunState string

const (
	RunComplete  RunState = "complete"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Analyzer maps a topic to a SearchIntent.
type Analyzer interface {
	Analyze(ctx context.Context, topic, langHint string) (types.SearchIntent, error)
}

// Retriever executes one query across pages.
type Retriever interface {
	Fetch(ctx context.Context, q types.SearchQuery, w io.Writer) (retrieval.Result, error)
}

// Outliner plans the review's section tree.
type Outliner interface {
	Generate(ctx context.Context, topic string, items []types.ScoredItem) (*types.Outline, error)
}

// Reviewer writes the review from the outline and the ranked items.
type Reviewer interface {
	Generate(ctx context.Context, topic string, o *types.Outline, items []types.ScoredItem) (*types.ReviewDocument, error)
}

// QueryReport is one query's retrieval counters in the run report.
type QueryReport struct {
	Strategy    types.QueryStrategy `json:"strategy" yaml:"strategy"`
	Fingerprint string              `json:"fingerprint" yaml:"fingerprint"`

	Total          int                    `json:"total" yaml:"total"`
	Records        int                    `json:"records" yaml:"records"`
	CacheHits      int                    `json:"cache_hits" yaml:"cache_hits"`
	FetchedPages   int                    `json:"fetched_pages" yaml:"fetched_pages"`
	ThrottleEvents int                    `json:"throttle_events" yaml:"throttle_events"`
	FailedPages    []retrieval.FailedPage `json:"failed_pages,omitempty" yaml:"failed_pages,omitempty"`

	// Error is set when the whole query failed (its first page could not be
	// fetched); the run continues on the remaining strategies.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the run's degradation ledger and terminal state.
type Report struct {
	RunID string   `json:"run_id" yaml:"run_id"`
	Topic string   `json:"topic" yaml:"topic"`
	State RunState `json:"state" yaml:"state"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// MappingFallback records that term mapping was unresolved and the
	// literal keyword intent was used instead.
	MappingFallback bool `json:"mapping_fallback,omitempty" yaml:"mapping_fallback,omitempty"`

	Queries        []QueryReport `json:"queries,omitempty" yaml:"queries,omitempty"`
	DroppedRecords int           `json:"dropped_records,omitempty" yaml:"dropped_records,omitempty"`
	Filter         filter.Stats  `json:"filter" yaml:"filter"`
	FailedSections int           `json:"failed_sections,omitempty" yaml:"failed_sections,omitempty"`

	// Stage and Error identify the failure point of a failed run, so just
	// that stage can be retried against the surviving artifacts.
	Stage string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Options control one run.
type Options struct {
	// RunID resumes an existing run directory; empty starts a new run.
	RunID string

	// LangHint is passed to intent analysis.
	LangHint string

	// Force ignores existing artifacts and recomputes every stage.
	Force bool
}

// Orchestrator owns the lifecycle of one run's intermediate entities.
type Orchestrator struct {
	Analyzer  Analyzer
	Retriever Retriever
	Filter    *filter.Engine
	Outliner  Outliner
	Reviewer  Reviewer

	Cfg types.PipelineConfig

	// Out receives progress lines; nil discards them.
	Out io.Writer

	// now is stubbed in tests.
	now func() time.Time
}

// scoredArtifact bundles the filter stage's two outputs into one file.
type scoredArtifact struct {
	Items []types.ScoredItem `yaml:"items"`
	Stats filter.Stats       `yaml:"stats"`
}

// Run executes the pipeline for topic. The returned report is also persisted
// to the run directory, whatever the terminal state.
func (o *Orchestrator) Run(ctx context.Context, topic string, opts Options) (*Report, error) {
	out := o.Out
	if out == nil {
		out = io.Discard
	}
	if o.now == nil {
		o.now = time.Now
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	dir := filepath.Join(o.Cfg.RunsDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	report := &Report{RunID: runID, Topic: topic, StartedAt: o.now()}
	fmt.Fprintf(out, "run %s: %s\n", runID, topic)

	if err := ctx.Err(); err != nil {
		return o.finish(dir, report, "intent", err)
	}
	searchIntent, err := o.stageIntent(ctx, dir, topic, opts, report, out)
	if err != nil {
		return o.finish(dir, report, "intent", err)
	}

	items, err := o.stageRetrieve(ctx, dir, searchIntent, opts, report, out)
	if err != nil {
		return o.finish(dir, report, "retrieval", err)
	}
	if err := ctx.Err(); err != nil {
		return o.finish(dir, report, "filter", err)
	}

	scored, err := o.stageFilter(ctx, dir, searchIntent, items, opts, report, out)
	if err != nil {
		return o.finish(dir, report, "filter", err)
	}

	plan, err := o.stageOutline(ctx, dir, topic, scored, opts, out)
	if err != nil {
		return o.finish(dir, report, "outline", err)
	}

	doc, err := o.stageReview(ctx, dir, topic, plan, scored, opts, out)
	if err != nil {
		return o.finish(dir, report, "review", err)
	}
	report.FailedSections = doc.FailedSections

	report.State = RunComplete
	report.FinishedAt = o.now()
	if err := saveArtifact(dir, reportFile, report); err != nil {
		return report, err
	}
	fmt.Fprintf(out, "run %s: complete (%d sections, %d references)\n",
		runID, len(doc.Sections), len(doc.References))
	return report, nil
}

// finish records a failed or cancelled terminal state and persists the
// report so the failure point is addressable for a manual retry.
func (o *Orchestrator) finish(dir string, report *Report, stage string, err error) (*Report, error) {
	report.State = RunFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		report.State = RunCancelled
	}
	report.Stage = stage
	report.Error = err.Error()
	report.FinishedAt = o.now()
	if saveErr := saveArtifact(dir, reportFile, report); saveErr != nil {
		return report, errors.Join(err, saveErr)
	}
	return report, fmt.Errorf("%s stage: %w", stage, err)
}

func (o *Orchestrator) stageIntent(ctx context.Context, dir, topic string, opts Options, report *Report, out io.Writer) (types.SearchIntent, error) {
	var si types.SearchIntent
	if !opts.Force {
		if ok, err := loadArtifact(dir, intentFile, &si); err != nil {
			return si, err
		} else if ok {
			fmt.Fprintln(out, "intent: reusing existing artifact")
			return si, nil
		}
	}

	si, err := o.Analyzer.Analyze(ctx, topic, opts.LangHint)
	if errors.Is(err, intent.ErrMappingUnresolved) {
		fmt.Fprintln(out, "intent: mapping unresolved, falling back to literal keywords")
		report.MappingFallback = true
		si, err = intent.Fallback(topic), nil
	}
	if err != nil {
		return si, err
	}
	fmt.Fprintf(out, "intent: %d terms, %d keywords\n", len(si.Terms), len(si.Keywords))
	return si, saveArtifact(dir, intentFile, si)
}

func (o *Orchestrator) stageRetrieve(ctx context.Context, dir string, si types.SearchIntent, opts Options, report *Report, out io.Writer) ([]types.LiteratureItem, error) {
	var items []types.LiteratureItem
	if !opts.Force {
		if ok, err := loadArtifact(dir, literatureFile, &items); err != nil {
			return nil, err
		} else if ok {
			fmt.Fprintf(out, "retrieval: reusing %d existing items\n", len(items))
			return items, nil
		}
	}

	queries := query.Build(si, o.Cfg.Retrieval.PageSize, o.Cfg.Retrieval.MaxResults)
	failures := 0
	for _, q := range queries {
		res, err := o.Retriever.Fetch(ctx, q, out)
		qr := QueryReport{
			Strategy:       q.Strategy,
			Fingerprint:    res.Fingerprint,
			Total:          res.Total,
			Records:        len(res.Records),
			CacheHits:      res.CacheHits,
			FetchedPages:   res.FetchedPages,
			ThrottleEvents: res.ThrottleEvents,
			FailedPages:    res.Failed,
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// One failed strategy degrades coverage, it does not end the run.
			qr.Error = err.Error()
			failures++
			fmt.Fprintf(out, "warning: %s query failed: %v\n", q.Strategy, err)
			report.Queries = append(report.Queries, qr)
			continue
		}
		report.Queries = append(report.Queries, qr)

		batch, dropped := normalize.Batch(res.Records, q.Strategy, out)
		report.DroppedRecords += dropped
		items = append(items, batch...)
	}
	if len(queries) > 0 && failures == len(queries) {
		return nil, fmt.Errorf("all %d query strategies failed", failures)
	}

	fmt.Fprintf(out, "retrieval: %d items across %d queries\n", len(items), len(queries))
	return items, saveArtifact(dir, literatureFile, items)
}

func (o *Orchestrator) stageFilter(ctx context.Context, dir string, si types.SearchIntent, items []types.LiteratureItem, opts Options, report *Report, out io.Writer) ([]types.ScoredItem, error) {
	var art scoredArtifact
	if !opts.Force {
		if ok, err := loadArtifact(dir, scoredFile, &art); err != nil {
			return nil, err
		} else if ok {
			fmt.Fprintf(out, "filter: reusing %d existing scored items\n", len(art.Items))
			report.Filter = art.Stats
			return art.Items, nil
		}
	}

	scored, stats, err := o.Filter.Run(ctx, si, items, out)
	if err != nil {
		return nil, err
	}
	report.Filter = stats
	art = scoredArtifact{Items: scored, Stats: stats}
	return scored, saveArtifact(dir, scoredFile, art)
}

func (o *Orchestrator) stageOutline(ctx context.Context, dir, topic string, scored []types.ScoredItem, opts Options, out io.Writer) (*types.Outline, error) {
	var plan types.Outline
	if !opts.Force {
		if ok, err := loadArtifact(dir, outlineFile, &plan); err != nil {
			return nil, err
		} else if ok {
			fmt.Fprintf(out, "outline: reusing existing artifact (%d sections)\n", len(plan.Sections))
			return &plan, nil
		}
	}

	p, err := o.Outliner.Generate(ctx, topic, scored)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "outline: %d top-level sections\n", len(p.Sections))
	return p, saveArtifact(dir, outlineFile, p)
}

func (o *Orchestrator) stageReview(ctx context.Context, dir, topic string, plan *types.Outline, scored []types.ScoredItem, opts Options, out io.Writer) (*types.ReviewDocument, error) {
	var doc types.ReviewDocument
	if !opts.Force {
		if ok, err := loadArtifact(dir, reviewFile, &doc); err != nil {
			return nil, err
		} else if ok {
			fmt.Fprintln(out, "review: reusing existing artifact")
			return &doc, nil
		}
	}

	d, err := o.Reviewer.Generate(ctx, topic, plan, scored)
	if err != nil {
		return nil, err
	}
	if err := saveArtifact(dir, reviewFile, d); err != nil {
		return nil, err
	}
	md := review.Markdown(d)
	if err := os.WriteFile(filepath.Join(dir, markdownFile), []byte(md), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", markdownFile, err)
	}
	fmt.Fprintf(out, "review: %d sections written\n", len(d.Sections))
	return d, nil
}
