// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package intent translates a free-text topic into a SearchIntent: resolved
// controlled-vocabulary terms plus the filters the user expressed in prose
// (year range, study types, journal-quality constraints). Resolution is
// delegated to the generative language service; when it yields no usable
// terms the caller falls back to a literal keyword intent instead of
// aborting the pipeline.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/review-engine/internal/genai"
	"github.com/pdiddy/review-engine/internal/retry"
	"github.com/pdiddy/review-engine/pkg/types"
)

// ErrMappingUnresolved reports that no controlled-vocabulary terms could be
// derived from the topic. Callers should fall back to Fallback(topic) rather
// than fail the run.
var ErrMappingUnresolved = errors.New("no controlled-vocabulary terms resolved")

// retryBaseDelay controls the mapping-call backoff. Tests override this to
// avoid real sleeps.
var retryBaseDelay = time.Second

// Mapper resolves topics through the generative language service, with a
// small TTL cache so repeated analyses of the same topic within a session do
// not re-issue the call.
type Mapper struct {
	gen genai.Generator
	cfg types.IntentConfig

	mu    sync.Mutex
	cache map[string]cacheEntry

	// now is stubbed in tests.
	now func() time.Time
}

type cacheEntry struct {
	intent  types.SearchIntent
	expires time.Time
}

// NewMapper returns a Mapper using gen for term resolution.
func NewMapper(gen genai.Generator, cfg types.IntentConfig) *Mapper {
	return &Mapper{
		gen:   gen,
		cfg:   cfg,
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

// Analyze maps topic (plus an optional language hint) to a SearchIntent.
// The returned intent is immutable by convention: downstream stages never
// modify it. Returns ErrMappingUnresolved when the service produces neither
// terms nor keywords.
func (m *Mapper) Analyze(ctx context.Context, topic, langHint string) (types.SearchIntent, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return types.SearchIntent{}, fmt.Errorf("topic is empty")
	}

	key := topic + "\x00" + langHint + "\x00" + m.cfg.Model
	if cached, ok := m.lookup(key); ok {
		return cached, nil
	}

	policy := retry.Policy{
		MaxAttempts: m.cfg.MaxRetries + 1,
		BaseDelay:   retryBaseDelay,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		Retryable:   genai.IsTransient,
	}

	var raw string
	err := policy.Do(ctx, func(ctx context.Context) error {
		var genErr error
		raw, genErr = m.gen.Generate(ctx, genai.Request{
			Prompt:      buildMappingPrompt(topic, langHint),
			Model:       m.cfg.Model,
			MaxTokens:   m.cfg.MaxTokens,
			Temperature: m.cfg.Temperature,
		})
		return genErr
	})
	if err != nil {
		return types.SearchIntent{}, fmt.Errorf("term mapping call: %w", err)
	}

	intent, err := parseMappingResponse(raw, topic)
	if err != nil {
		return types.SearchIntent{}, err
	}
	if langHint != "" && intent.Language == "" {
		intent.Language = langHint
	}

	m.store(key, intent)
	return intent, nil
}

// Fallback builds the literal keyword intent used when mapping is
// unresolved: the raw topic becomes the only keyword and no filters apply.
func Fallback(topic string) types.SearchIntent {
	return types.SearchIntent{
		Topic:    strings.TrimSpace(topic),
		Keywords: []string{strings.TrimSpace(topic)},
	}
}

func (m *Mapper) lookup(key string) (types.SearchIntent, bool) {
	if m.cfg.CacheTTL <= 0 {
		return types.SearchIntent{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[key]
	if !ok || m.now().After(e.expires) {
		delete(m.cache, key)
		return types.SearchIntent{}, false
	}
	return e.intent, true
}

func (m *Mapper) store(key string, intent types.SearchIntent) {
	if m.cfg.CacheTTL <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = cacheEntry{intent: intent, expires: m.now().Add(m.cfg.CacheTTL)}
}

// mappingResponse is the JSON shape the mapping prompt asks for.
type mappingResponse struct {
	Terms []struct {
		Term       string  `json:"term"`
		Confidence float64 `json:"confidence"`
	} `json:"terms"`
	Keywords        []string `json:"keywords"`
	YearStart       int      `json:"year_start"`
	YearEnd         int      `json:"year_end"`
	Language        string   `json:"language"`
	StudyTypes      []string `json:"study_types"`
	MinImpactFactor float64  `json:"min_impact_factor"`
	MaxImpactFactor float64  `json:"max_impact_factor"`
	CASZones        []int    `json:"cas_zones"`
	JCRQuartiles    []string `json:"jcr_quartiles"`
}

// parseMappingResponse extracts the JSON object from the model output and
// validates it into a SearchIntent.
func parseMappingResponse(raw, topic string) (types.SearchIntent, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return types.SearchIntent{}, fmt.Errorf("%w: no JSON object in response", ErrMappingUnresolved)
	}

	var resp mappingResponse
	if err := json.Unmarshal([]byte(jsonText), &resp); err != nil {
		return types.SearchIntent{}, fmt.Errorf("%w: %v", ErrMappingUnresolved, err)
	}

	intent := types.SearchIntent{
		Topic:           topic,
		YearStart:       resp.YearStart,
		YearEnd:         resp.YearEnd,
		Language:        strings.TrimSpace(resp.Language),
		MinImpactFactor: resp.MinImpactFactor,
		MaxImpactFactor: resp.MaxImpactFactor,
		JCRQuartiles:    normalizeQuartiles(resp.JCRQuartiles),
	}

	for _, t := range resp.Terms {
		term := strings.TrimSpace(t.Term)
		if term == "" {
			continue
		}
		conf := t.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		intent.Terms = append(intent.Terms, types.MappedTerm{Term: term, Confidence: conf})
	}
	for _, kw := range resp.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			intent.Keywords = append(intent.Keywords, kw)
		}
	}
	for _, st := range resp.StudyTypes {
		if st = strings.TrimSpace(st); st != "" {
			intent.StudyTypes = append(intent.StudyTypes, st)
		}
	}
	for _, z := range resp.CASZones {
		if z >= 1 && z <= 4 {
			intent.CASZones = append(intent.CASZones, z)
		}
	}

	// A reversed year range is a model slip, not a fatal error.
	if intent.YearStart > 0 && intent.YearEnd > 0 && intent.YearStart > intent.YearEnd {
		intent.YearStart, intent.YearEnd = intent.YearEnd, intent.YearStart
	}

	if len(intent.Terms) == 0 && len(intent.Keywords) == 0 {
		return types.SearchIntent{}, ErrMappingUnresolved
	}
	return intent, nil
}

// normalizeQuartiles uppercases and keeps only Q1..Q4.
func normalizeQuartiles(qs []string) []string {
	var out []string
	for _, q := range qs {
		q = strings.ToUpper(strings.TrimSpace(q))
		switch q {
		case "Q1", "Q2", "Q3", "Q4":
			out = append(out, q)
		}
	}
	return out
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
