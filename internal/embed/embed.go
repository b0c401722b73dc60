// Package embed produces embedding vectors for neurons and queries. The
// memory engine only consumes vectors; these collaborators generate them.
package embed

import (
	"context"
	"fmt"
	"math"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// New returns the embedder named by provider: "ollama", or "tfidf" built
// over corpus. "none" and "" return nil.
func New(provider, url, model string, rps float64, corpus []string) (Embedder, error) {
	switch provider {
	case "", "none":
		return nil, nil
	case "ollama":
		return NewOllama(url, model, rps), nil
	case "tfidf":
		return NewTFIDF(corpus, 512), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", provider)
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Vectors of different length are unrelated and score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
