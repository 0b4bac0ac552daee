// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pdiddy/review-engine/internal/genai"
	"github.com/pdiddy/review-engine/internal/retry"
	"github.com/pdiddy/review-engine/pkg/types"
)

// retryBaseDelay controls the scoring-call backoff. Tests override this to
// avoid real sleeps.
var retryBaseDelay = time.Second

// Scorer assigns each item a topic-relevance score in [0, 1]. Scores are
// returned positionally, one per input item.
type Scorer interface {
	Score(ctx context.Context, topic string, items []types.LiteratureItem) ([]float64, error)
}

// AIScorer scores relevance by asking the generative service to grade each
// item's title and abstract against the topic, one batched call per input
// slice.
type AIScorer struct {
	Gen genai.Generator
	Cfg types.AIConfig
}

// scoringPromptTmpl asks for one JSON object mapping item identifiers to
// scores so the response stays order-independent.
var scoringPromptTmpl = template.Must(template.New("scoring").Parse(
	`You grade biomedical citations for relevance to a review topic.

Topic: {{.Topic}}

Citations:
{{range .Items}}- id {{.ID}}: {{.Title}}{{if .Abstract}} | {{.Abstract}}{{end}}
{{end}}
Respond with a single JSON object mapping each id to a relevance score
between 0 and 1, for example {"33301246": 0.9, "42": 0.2}. Score every id
listed above. No other text.`))

type scoringPromptData struct {
	Topic string
	Items []types.LiteratureItem
}

// Score issues one generation call for the batch, retrying transient
// failures. Items the model omits score zero.
func (s *AIScorer) Score(ctx context.Context, topic string, items []types.LiteratureItem) ([]float64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var buf strings.Builder
	if err := scoringPromptTmpl.Execute(&buf, scoringPromptData{Topic: topic, Items: items}); err != nil {
		return nil, fmt.Errorf("building scoring prompt: %w", err)
	}

	policy := retry.Policy{
		MaxAttempts: s.Cfg.MaxRetries + 1,
		BaseDelay:   retryBaseDelay,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		Retryable:   genai.IsTransient,
	}

	var raw string
	err := policy.Do(ctx, func(ctx context.Context) error {
		var genErr error
		raw, genErr = s.Gen.Generate(ctx, genai.Request{
			Prompt:      buf.String(),
			Model:       s.Cfg.Model,
			MaxTokens:   s.Cfg.MaxTokens,
			Temperature: s.Cfg.Temperature,
		})
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("relevance scoring call: %w", err)
	}

	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON object in scoring response")
	}
	byID := make(map[string]float64)
	if err := json.Unmarshal([]byte(jsonText), &byID); err != nil {
		return nil, fmt.Errorf("parsing scoring response: %w", err)
	}

	scores := make([]float64, len(items))
	for i, item := range items {
		scores[i] = clamp01(byID[item.ID])
	}
	return scores, nil
}

// LexicalScorer is the deterministic fallback used when no generative
// service is configured: the fraction of topic words found in the item's
// title or abstract. Crude, but pure and reproducible.
type LexicalScorer struct{}

// Score never fails and never blocks; the context is accepted to satisfy the
// interface.
func (LexicalScorer) Score(_ context.Context, topic string, items []types.LiteratureItem) ([]float64, error) {
	topicWords := tokenize(topic)
	scores := make([]float64, len(items))
	if len(topicWords) == 0 {
		return scores, nil
	}

	for i, item := range items {
		itemWords := make(map[string]bool)
		for _, w := range tokenize(item.Title + " " + item.Abstract) {
			itemWords[w] = true
		}
		hits := 0
		for _, w := range topicWords {
			if itemWords[w] {
				hits++
			}
		}
		scores[i] = float64(hits) / float64(len(topicWords))
	}
	return scores, nil
}

// tokenize lowercases and keeps deduplicated alphanumeric words of three or
// more characters, dropping short connective noise like "of" or "to".
func tokenize(s string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	return words
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// extractJSONObject returns the first balanced {...} block in s, tolerating
// surrounding prose and Markdown code fences.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
