// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review expands an outline into the final document: one generation
// call per section, bounded fan-out, assembly strictly in outline order
// regardless of completion order. Citations come back from the model as
// bracketed numbers into each section's candidate list and are renumbered
// into one document-wide reference list ordered by first citation.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/review-engine/internal/genai"
	"github.com/pdiddy/review-engine/internal/retry"
	"github.com/pdiddy/review-engine/pkg/types"
)

// retryBaseDelay controls the generation-call backoff. Tests override this
// to avoid real sleeps.
var retryBaseDelay = time.Second

// placeholderProse marks a section whose generation failed permanently.
const placeholderProse = "[This section could not be generated. See the run report for details.]"

// SectionError reports a section whose prose could not be generated.
type SectionError struct {
	// Section is the failed section's title.
	Section string

	// Err is the underlying failure.
	Err error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("generating section %q: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// Synthesizer writes review sections through the generative service.
type Synthesizer struct {
	gen genai.Generator
	cfg types.SynthesisConfig
}

// NewSynthesizer returns a Synthesizer with config defaults applied.
func NewSynthesizer(gen genai.Generator, cfg types.SynthesisConfig) *Synthesizer {
	if cfg.SectionFanOut <= 0 {
		cfg.SectionFanOut = 3
	}
	return &Synthesizer{gen: gen, cfg: cfg}
}

// sectionDraft is one section's raw generation output before assembly.
type sectionDraft struct {
	prose string
	items []types.ScoredItem
	err   error
}

// Generate writes every outline section and assembles the document. Sections
// run concurrently up to the configured fan-out; each one's draft lands in
// its reserved slot and assembly drains the slots in outline order. A
// section that still fails after one full retry becomes a placeholder when
// the config allows it, otherwise the run fails with *SectionError.
func (s *Synthesizer) Generate(ctx context.Context, topic string, o *types.Outline, items []types.ScoredItem) (*types.ReviewDocument, error) {
	byID := make(map[string]types.ScoredItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	nodes := o.Flatten()
	drafts := make([]sectionDraft, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SectionFanOut)
	for i, node := range nodes {
		i, node := i, node
		g.Go(func() error {
			candidates := resolveItems(node, items, byID)
			prose, err := s.generateSection(gctx, topic, o.Title, node, candidates)
			drafts[i] = sectionDraft{prose: prose, items: candidates, err: err}
			if err != nil && !s.cfg.PlaceholderOnFailure {
				return &SectionError{Section: node.Title, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc := &types.ReviewDocument{Title: o.Title, Topic: topic}
	refNumbers := make(map[string]int)
	for i, node := range nodes {
		d := drafts[i]
		section := types.ReviewSection{Title: node.Title, Level: node.Level}
		if d.err != nil {
			section.State = types.SectionPlaceholder
			section.Prose = placeholderProse
			doc.FailedSections++
		} else {
			section.State = types.SectionGenerated
			section.Prose, section.CitedIDs = renumber(d.prose, d.items, refNumbers, doc)
		}
		doc.Sections = append(doc.Sections, section)
	}
	return doc, nil
}

// generateSection produces one section's prose: the transient-aware retry
// policy wraps each call, and a failed call gets one full second attempt
// before the failure stands.
func (s *Synthesizer) generateSection(ctx context.Context, topic, docTitle string, node *types.OutlineNode, candidates []types.ScoredItem) (string, error) {
	prompt, err := buildSectionPrompt(topic, docTitle, node, candidates)
	if err != nil {
		return "", err
	}

	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxRetries + 1,
		BaseDelay:   retryBaseDelay,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		Retryable:   genai.IsTransient,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var prose string
		err := policy.Do(ctx, func(ctx context.Context) error {
			var genErr error
			prose, genErr = s.gen.Generate(ctx, genai.Request{
				Prompt:      prompt,
				Model:       s.cfg.Model,
				MaxTokens:   s.cfg.MaxTokens,
				Temperature: s.cfg.Temperature,
			})
			return genErr
		})
		if err == nil {
			if prose = strings.TrimSpace(prose); prose != "" {
				return prose, nil
			}
			err = fmt.Errorf("empty section response")
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// resolveItems returns the section's citation material: the outline's item
// references when it has any, otherwise the top-ranked items so every
// section has something to cite.
func resolveItems(node *types.OutlineNode, ranked []types.ScoredItem, byID map[string]types.ScoredItem) []types.ScoredItem {
	if len(node.ItemIDs) == 0 {
		if len(ranked) > 10 {
			ranked = ranked[:10]
		}
		return ranked
	}
	var out []types.ScoredItem
	for _, id := range node.ItemIDs {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// renumber rewrites a section's local bracket citations into document-wide
// reference numbers, assigning a new number on an item's first citation
// anywhere in the document. The same item cited from two sections keeps one
// number. Citations of numbers outside the candidate list are left as
// written.
func renumber(prose string, candidates []types.ScoredItem, refNumbers map[string]int, doc *types.ReviewDocument) (string, []string) {
	var cited []string
	seen := make(map[string]bool)

	out := citationPattern.ReplaceAllStringFunc(prose, func(match string) string {
		inner := match[1 : len(match)-1]
		parts := strings.Split(inner, ",")
		nums := make([]string, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 1 || n > len(candidates) {
				nums = append(nums, strings.TrimSpace(p))
				continue
			}
			item := candidates[n-1]
			num, ok := refNumbers[item.ID]
			if !ok {
				num = len(doc.References) + 1
				refNumbers[item.ID] = num
				doc.References = append(doc.References, types.Reference{Number: num, Item: item.LiteratureItem})
			}
			if !seen[item.ID] {
				seen[item.ID] = true
				cited = append(cited, item.ID)
			}
			nums = append(nums, strconv.Itoa(num))
		}
		return "[" + strings.Join(nums, ",") + "]"
	})
	return out, cited
}
