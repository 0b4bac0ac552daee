// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/genai"
	"github.com/pdiddy/review-engine/pkg/types"
)

func init() {
	retryBaseDelay = time.Millisecond
}

// genFunc adapts a function to genai.Generator.
type genFunc func(ctx context.Context, req genai.Request) (string, error)

func (f genFunc) Generate(ctx context.Context, req genai.Request) (string, error) {
	return f(ctx, req)
}

func TestLexicalScorer(t *testing.T) {
	items := []types.LiteratureItem{
		{ID: "full", Title: "Aspirin and cardiovascular risk", Abstract: ""},
		{ID: "half", Title: "Aspirin dosing in children"},
		{ID: "none", Title: "Soil bacteria of the Gobi desert"},
	}

	scores, err := LexicalScorer{}.Score(context.Background(), "aspirin cardiovascular risk", items)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 1.0/3.0, scores[1], 1e-9)
	assert.Zero(t, scores[2])
}

func TestLexicalScorerMatchesAbstract(t *testing.T) {
	items := []types.LiteratureItem{
		{ID: "1", Title: "Untitled", Abstract: "We measured cardiovascular outcomes."},
	}
	scores, err := LexicalScorer{}.Score(context.Background(), "cardiovascular", items)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
}

func TestLexicalScorerEmptyTopic(t *testing.T) {
	scores, err := LexicalScorer{}.Score(context.Background(), " ", []types.LiteratureItem{{ID: "1", Title: "T"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, scores)
}

func TestAIScorer(t *testing.T) {
	var prompt string
	s := &AIScorer{
		Gen: genFunc(func(_ context.Context, req genai.Request) (string, error) {
			prompt = req.Prompt
			return `Here are the grades:
{"a": 0.9, "b": 1.7, "c": -0.2}`, nil
		}),
		Cfg: types.AIConfig{Model: "test-model"},
	}

	items := []types.LiteratureItem{
		{ID: "a", Title: "First", Abstract: "About aspirin."},
		{ID: "b", Title: "Second"},
		{ID: "c", Title: "Third"},
		{ID: "d", Title: "Omitted by the model"},
	}

	scores, err := s.Score(context.Background(), "aspirin", items)
	require.NoError(t, err)
	require.Len(t, scores, 4)

	assert.Equal(t, 0.9, scores[0])
	// Out-of-range grades are clamped; omitted identifiers score zero.
	assert.Equal(t, 1.0, scores[1])
	assert.Equal(t, 0.0, scores[2])
	assert.Equal(t, 0.0, scores[3])

	assert.Contains(t, prompt, "Topic: aspirin")
	assert.Contains(t, prompt, "id a: First | About aspirin.")
	assert.Contains(t, prompt, "id d: Omitted by the model")
}

func TestAIScorerRetriesTransient(t *testing.T) {
	calls := 0
	s := &AIScorer{
		Gen: genFunc(func(context.Context, genai.Request) (string, error) {
			calls++
			if calls < 3 {
				return "", genai.Transientf("overloaded")
			}
			return `{"a": 0.5}`, nil
		}),
		Cfg: types.AIConfig{MaxRetries: 3},
	}

	scores, err := s.Score(context.Background(), "t", []types.LiteratureItem{{ID: "a", Title: "T"}})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []float64{0.5}, scores)
}

func TestAIScorerPermanentErrorNotRetried(t *testing.T) {
	calls := 0
	s := &AIScorer{
		Gen: genFunc(func(context.Context, genai.Request) (string, error) {
			calls++
			return "", fmt.Errorf("invalid api key")
		}),
		Cfg: types.AIConfig{MaxRetries: 3},
	}

	_, err := s.Score(context.Background(), "t", []types.LiteratureItem{{ID: "a", Title: "T"}})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAIScorerBadResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no JSON", "I cannot grade these."},
		{"invalid JSON", `{"a": not-a-number}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &AIScorer{Gen: genFunc(func(context.Context, genai.Request) (string, error) {
				return tt.response, nil
			})}
			_, err := s.Score(context.Background(), "t", []types.LiteratureItem{{ID: "a", Title: "T"}})
			assert.Error(t, err)
		})
	}
}

func TestAIScorerEmptyBatch(t *testing.T) {
	s := &AIScorer{Gen: genFunc(func(context.Context, genai.Request) (string, error) {
		t.Fatal("no call expected for an empty batch")
		return "", nil
	})}
	scores, err := s.Score(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Nil(t, scores)
}
