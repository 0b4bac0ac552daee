// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package outline turns the topic and the top-ranked literature items into a
// structural plan for the review: a heading tree with per-section word-count
// hints, guidance text, and references into the item set. The plan comes
// back from the generative service as Markdown and is parsed and validated
// before anything downstream sees it.
package outline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/review-engine/internal/genai"
	"github.com/pdiddy/review-engine/internal/retry"
	"github.com/pdiddy/review-engine/pkg/types"
)

// retryBaseDelay controls the generation-call backoff. Tests override this
// to avoid real sleeps.
var retryBaseDelay = time.Second

// ParseError reports generated text that could not be parsed into a valid
// outline tree. The synthesizer retries once with a stricter prompt before
// surfacing it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable outline: %s", e.Reason)
}

// Synthesizer generates and parses review outlines.
type Synthesizer struct {
	gen genai.Generator
	cfg types.SynthesisConfig
}

// NewSynthesizer returns a Synthesizer with config defaults applied.
func NewSynthesizer(gen genai.Generator, cfg types.SynthesisConfig) *Synthesizer {
	if cfg.TopItems <= 0 {
		cfg.TopItems = 30
	}
	return &Synthesizer{gen: gen, cfg: cfg}
}

// Generate produces the outline for topic from the top-ranked items. When
// the first response does not parse, one retry with a stricter prompt is
// attempted; a second parse failure surfaces as *ParseError.
func (s *Synthesizer) Generate(ctx context.Context, topic string, items []types.ScoredItem) (*types.Outline, error) {
	if len(items) > s.cfg.TopItems {
		items = items[:s.cfg.TopItems]
	}

	outline, err := s.attempt(ctx, topic, items, false)
	if err == nil {
		return outline, nil
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		return nil, err
	}

	outline, err = s.attempt(ctx, topic, items, true)
	if err != nil {
		return nil, fmt.Errorf("outline retry: %w", err)
	}
	return outline, nil
}

// attempt issues one generation call (with transient-error retries) and
// parses the response.
func (s *Synthesizer) attempt(ctx context.Context, topic string, items []types.ScoredItem, strict bool) (*types.Outline, error) {
	prompt, err := buildOutlinePrompt(topic, items, strict)
	if err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxRetries + 1,
		BaseDelay:   retryBaseDelay,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		Retryable:   genai.IsTransient,
	}

	var raw string
	err = policy.Do(ctx, func(ctx context.Context) error {
		var genErr error
		raw, genErr = s.gen.Generate(ctx, genai.Request{
			Prompt:      prompt,
			Model:       s.cfg.Model,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
		})
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("outline generation call: %w", err)
	}

	return Parse(raw, topic, items)
}

// wordHintPattern matches a word-count suggestion like "(~800 words)" in a
// heading.
var wordHintPattern = regexp.MustCompile(`\(\s*~?\s*(\d+)\s*words?\s*\)`)

// sourcesPattern matches a section's item-reference line, e.g.
// "Sources: [1], [4]".
var sourcesPattern = regexp.MustCompile(`(?i)^(?:sources|references|items)\s*:\s*(.+)$`)

var numberPattern = regexp.MustCompile(`\d+`)

// Parse reads a Markdown outline into a validated tree. Bracketed item
// numbers in "Sources:" lines resolve against the 1-based order of items;
// out-of-range numbers are ignored. The heading structure must nest strictly
// one level at a time.
func Parse(raw, topic string, items []types.ScoredItem) (*types.Outline, error) {
	outline := &types.Outline{}
	var stack []*types.OutlineNode
	var guidance []string

	flushGuidance := func() {
		if len(stack) == 0 || len(guidance) == 0 {
			guidance = nil
			return
		}
		stack[len(stack)-1].Guidance = strings.Join(guidance, " ")
		guidance = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		if !strings.HasPrefix(line, "#") {
			if len(stack) == 0 {
				// Prose before the first heading is preamble, not guidance.
				continue
			}
			if m := sourcesPattern.FindStringSubmatch(line); m != nil {
				node := stack[len(stack)-1]
				for _, num := range numberPattern.FindAllString(m[1], -1) {
					n, _ := strconv.Atoi(num)
					if n >= 1 && n <= len(items) {
						node.ItemIDs = append(node.ItemIDs, items[n-1].ID)
					}
				}
				continue
			}
			guidance = append(guidance, strings.TrimLeft(line, "-* "))
			continue
		}

		hashes := len(line) - len(strings.TrimLeft(line, "#"))
		text := strings.TrimSpace(line[hashes:])

		hint := 0
		if m := wordHintPattern.FindStringSubmatch(text); m != nil {
			hint, _ = strconv.Atoi(m[1])
			text = strings.TrimSpace(wordHintPattern.ReplaceAllString(text, ""))
		}
		if text == "" {
			return nil, &ParseError{Reason: "empty heading"}
		}

		if hashes == 1 {
			if outline.Title != "" || len(outline.Sections) > 0 {
				return nil, &ParseError{Reason: fmt.Sprintf("unexpected document title %q after sections", text)}
			}
			outline.Title = text
			continue
		}

		flushGuidance()
		level := hashes - 1
		node := &types.OutlineNode{Title: text, Level: level, WordCountHint: hint}

		// Pop back to this node's parent.
		for len(stack) > 0 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}
		switch {
		case level == 1:
			outline.Sections = append(outline.Sections, node)
		case len(stack) == 0 || stack[len(stack)-1].Level != level-1:
			return nil, &ParseError{Reason: fmt.Sprintf("heading %q skips from level %d to %d", text, topLevel(stack), level)}
		default:
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}
	flushGuidance()

	if len(outline.Sections) == 0 {
		return nil, &ParseError{Reason: "no sections found"}
	}
	if outline.Title == "" {
		outline.Title = topic
	}
	return outline, nil
}

func topLevel(stack []*types.OutlineNode) int {
	if len(stack) == 0 {
		return 0
	}
	return stack[len(stack)-1].Level
}
