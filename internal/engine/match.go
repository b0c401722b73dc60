package engine

import (
	"math"
	"strings"

	"github.com/lazypower/hebbian/internal/store"
)

// queryTerms returns the distinct lowercase terms of a query in order.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range tokenize(query) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// tokenize splits text into lowercase word tokens. Path separators, dots
// and punctuation all split; single characters are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}

// neuronText is the searchable text of a neuron: identifier plus contexts.
func neuronText(n store.Neuron) string {
	if len(n.Contexts) == 0 {
		return n.Path
	}
	return n.Path + " " + strings.Join(n.Contexts, " ")
}

// seedStrength scores how well a neuron matches a query in [0,1]. A query
// found verbatim in the identifier is a perfect match.
func seedStrength(query string, terms []string, n store.Neuron) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" && strings.Contains(strings.ToLower(n.Path), q) {
		return 1
	}
	return keywordSimilarity(terms, neuronText(n))
}

// keywordSimilarity blends Jaccard overlap with keyword coverage. Exact
// token hits count fully, substring hits partially.
func keywordSimilarity(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	target := strings.ToLower(text)
	targetSet := make(map[string]bool)
	for _, w := range tokenize(target) {
		targetSet[w] = true
	}

	var matched int
	var weighted float64
	for _, kw := range keywords {
		if targetSet[kw] {
			matched++
			weighted += 1.0
		} else if strings.Contains(target, kw) {
			matched++
			weighted += 0.7
		}
	}
	if matched == 0 {
		return 0
	}

	union := float64(len(keywords) + len(targetSet) - matched)
	jaccard := float64(matched) / math.Max(union, 1)
	coverage := weighted / float64(len(keywords))

	return math.Min(1, 0.4*jaccard+0.6*coverage)
}
