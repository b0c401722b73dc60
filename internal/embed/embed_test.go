package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"internal/auth/token.go", []string{"internal", "auth", "token", "go"}},
		{"Hello World", []string{"hello", "world"}},
		{"a b c", nil},
		{"", nil},
		{"session_window refresh-flow", []string{"session_window", "refresh-flow"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenize(tt.input), tt.input)
	}
}

func TestNormalize(t *testing.T) {
	vec := []float64{3, 4}
	normalize(vec)
	assert.InDelta(t, 1.0, math.Hypot(vec[0], vec[1]), 1e-12)

	zero := []float64{0, 0, 0}
	normalize(zero)
	assert.Equal(t, []float64{0, 0, 0}, zero)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0, 0}, []float64{2, 0, 0}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-12)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}), "dimension mismatch")
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
}

func TestTFIDF(t *testing.T) {
	emb := NewTFIDF([]string{
		"internal/auth/token.go refresh token",
		"internal/auth/session.go session cookie",
		"cmd/server/main.go",
	}, 512)
	assert.Equal(t, "tfidf", emb.Model())
	assert.Positive(t, emb.Dimensions())

	ctx := context.Background()
	a, err := emb.Embed(ctx, "auth token refresh")
	require.NoError(t, err)
	b, err := emb.Embed(ctx, "refresh the auth token")
	require.NoError(t, err)
	c, err := emb.Embed(ctx, "server main")
	require.NoError(t, err)

	assert.Len(t, a, emb.Dimensions())
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))

	empty, err := emb.Embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, emb.Dimensions())
}

func TestTFIDFEmptyCorpus(t *testing.T) {
	emb := NewTFIDF(nil, 0)
	assert.Equal(t, 1, emb.Dimensions())
	vec, err := emb.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, vec)
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	emb := NewOllama(srv.URL, "nomic-embed-text", 0)
	assert.Equal(t, "ollama:nomic-embed-text", emb.Model())

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
	assert.True(t, emb.Probe(context.Background()))
}

func TestOllamaErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	emb := NewOllama(srv.URL, "missing", 100)
	_, err := emb.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.False(t, emb.Probe(context.Background()))
}

func TestNewProvider(t *testing.T) {
	emb, err := New("none", "", "", 0, nil)
	require.NoError(t, err)
	assert.Nil(t, emb)

	emb, err = New("tfidf", "", "", 0, []string{"a doc"})
	require.NoError(t, err)
	assert.Equal(t, "tfidf", emb.Model())

	emb, err = New("ollama", "http://localhost:1", "m", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama:m", emb.Model())

	_, err = New("openai", "", "", 0, nil)
	assert.Error(t, err)
}
