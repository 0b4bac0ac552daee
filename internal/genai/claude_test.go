// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClaudeServer(t *testing.T, handler http.HandlerFunc) *ClaudeBackend {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	orig := claudeAPIURL
	claudeAPIURL = ts.URL
	t.Cleanup(func() { claudeAPIURL = orig })

	return &ClaudeBackend{APIKey: "test-key", Model: "test-model", Client: ts.Client()}
}

func TestClaudeGenerate(t *testing.T) {
	var gotReq claudeRequest
	backend := newClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(claudeResponse{Content: []claudeContent{
			{Type: "text", Text: "generated "},
			{Type: "text", Text: "prose"},
		}})
	})

	text, err := backend.Generate(context.Background(), Request{
		Prompt:      "write something",
		Temperature: 0.3,
		MaxTokens:   128,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated prose", text)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, 128, gotReq.MaxTokens)
	assert.InDelta(t, 0.3, gotReq.Temperature, 1e-9)
}

func TestClaudeGenerateRateLimitIsTransient(t *testing.T) {
	backend := newClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := backend.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClaudeGenerateServerErrorIsTransient(t *testing.T) {
	backend := newClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := backend.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClaudeGenerateClientErrorIsPermanent(t *testing.T) {
	backend := newClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := backend.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestClaudeGenerateEmptyContent(t *testing.T) {
	backend := newClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(claudeResponse{})
	})

	_, err := backend.Generate(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestIsTransientUnwraps(t *testing.T) {
	base := errors.New("boom")
	wrapped := Transient(base)
	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsTransient(base))
	assert.NoError(t, Transient(nil))
}
