package engine

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/embed"
	"github.com/lazypower/hebbian/internal/store"
)

// RecallParams controls a recall query.
type RecallParams struct {
	Query       string           `json:"query"`
	Type        store.NeuronType `json:"type,omitempty"`         // empty = any type
	Limit       int              `json:"limit,omitempty"`        // 0 = default limit
	TokenBudget int              `json:"token_budget,omitempty"` // 0 = default budget (unbounded unless configured)
	Embedding   []float64        `json:"embedding,omitempty"`    // optional query vector
}

// RecallResult is one ranked answer.
type RecallResult struct {
	Neuron               store.Neuron `json:"neuron"`
	Activation           float64      `json:"activation"`
	Confidence           float64      `json:"confidence"`
	EstimatedTokensSaved int          `json:"estimated_tokens_saved"`
}

// Recall resolves a query by spreading activation from matching neurons
// through the synapse graph, then ranks, filters and budgets the result.
func (e *Engine) Recall(ctx context.Context, p RecallParams) ([]RecallResult, error) {
	p, err := e.normalizeRecall(p)
	if err != nil {
		return nil, err
	}
	if len([]rune(p.Query)) < e.params.MinQueryLen {
		return []RecallResult{}, nil
	}

	start := time.Now()
	now := e.now()
	var results []RecallResult
	err = e.db.Update(ctx, "recall", func(tx *store.Tx) error {
		seeds, err := e.seeds(tx, p)
		if err != nil {
			return err
		}
		if len(seeds) == 0 {
			results = []RecallResult{}
			return nil
		}
		activation, err := e.spread(tx, seeds)
		if err != nil {
			return err
		}
		results, err = e.rank(tx, activation, p.Type, nil, p.Limit, p.TokenBudget)
		if err != nil {
			return err
		}
		return e.appendLedger(tx, p.Query, results, now)
	})
	if err != nil {
		return nil, fmt.Errorf("recall %q: %w", p.Query, err)
	}

	saved := 0
	for _, r := range results {
		saved += r.EstimatedTokensSaved
	}
	e.logger.Debug("recalled",
		zap.String("query", p.Query),
		zap.Int("results", len(results)),
		zap.Int("tokens_saved", saved),
		zap.Duration("took", time.Since(start)))
	if e.metrics != nil {
		e.metrics.RecordRecall(len(results), saved, time.Since(start).Seconds())
	}
	return results, nil
}

func (e *Engine) normalizeRecall(p RecallParams) (RecallParams, error) {
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" {
		return p, invalid("recall", "query", "", "must not be empty")
	}
	if p.Type != "" && !p.Type.Valid() {
		return p, invalid("recall", "type", string(p.Type), "must be one of file, tool, error, semantic")
	}
	if p.Limit < 0 {
		return p, invalid("recall", "limit", fmt.Sprint(p.Limit), "must be positive")
	}
	if p.Limit == 0 {
		p.Limit = e.params.DefaultLimit
	}
	if p.TokenBudget < 0 {
		return p, invalid("recall", "token_budget", fmt.Sprint(p.TokenBudget), "must be positive")
	}
	if p.TokenBudget == 0 {
		p.TokenBudget = e.params.DefaultTokenBudget
	}
	if len(p.Embedding) > 0 {
		if err := validateVector("recall", p.Embedding); err != nil {
			return p, err
		}
	}
	return p, nil
}

// seeds finds the neurons a query directly matches and their initial
// activation: strength scaled by how myelinated the neuron is.
func (e *Engine) seeds(tx *store.Tx, p RecallParams) (map[int64]float64, error) {
	terms := queryTerms(p.Query)
	phrase := strings.ToLower(p.Query)
	lookup := terms
	if !slices.Contains(lookup, phrase) {
		lookup = append(slices.Clone(terms), phrase)
	}

	candidates, err := tx.FindCandidates(phrase, lookup, "", e.params.MaxSeeds*4)
	if err != nil {
		return nil, err
	}

	strength := make(map[int64]float64)
	myelin := make(map[int64]float64)
	for _, n := range candidates {
		if s := seedStrength(p.Query, terms, n); s > 0 {
			strength[n.ID] = s
			myelin[n.ID] = n.Myelination
		}
	}

	if len(p.Embedding) > 0 {
		embedded, err := tx.EmbeddedNeurons("", e.params.MaxVectorScan)
		if err != nil {
			return nil, err
		}
		for _, n := range embedded {
			cos := embed.CosineSimilarity(p.Embedding, n.Embedding)
			if cos >= e.params.SimilarityThreshold && cos > strength[n.ID] {
				strength[n.ID] = cos
				myelin[n.ID] = n.Myelination
			}
		}
	}

	type seed struct {
		id int64
		a  float64
	}
	all := make([]seed, 0, len(strength))
	bias := e.params.MyelinationBias
	for id, s := range strength {
		all = append(all, seed{id, s * (bias + (1-bias)*myelin[id])})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].a != all[j].a {
			return all[i].a > all[j].a
		}
		return all[i].id < all[j].id
	})
	if len(all) > e.params.MaxSeeds {
		all = all[:e.params.MaxSeeds]
	}

	out := make(map[int64]float64, len(all))
	for _, s := range all {
		out[s.id] = s.a
	}
	return out, nil
}

// spread propagates activation for MaxHops hops. Each hop sends
// activation*weight*hop_decay to every neighbor; contributions from
// different paths add up and every activation is clamped to 1. Nodes are
// visited in id order so the result does not depend on map iteration.
func (e *Engine) spread(tx *store.Tx, seeds map[int64]float64) (map[int64]float64, error) {
	activation := make(map[int64]float64, len(seeds))
	for id, a := range seeds {
		activation[id] = math.Min(1, a)
	}

	neighbors := make(map[int64][]store.Neighbor)
	frontier := activation
	for hop := 0; hop < e.params.MaxHops && len(frontier) > 0; hop++ {
		next := make(map[int64]float64)
		for _, id := range sortedIDs(frontier) {
			nbs, ok := neighbors[id]
			if !ok {
				var err error
				nbs, err = tx.Neighbors(id, e.params.Directed, e.params.MaxNeighbors)
				if err != nil {
					return nil, err
				}
				neighbors[id] = nbs
			}
			a := frontier[id]
			for _, nb := range nbs {
				next[nb.ID] += a * nb.Weight * e.params.HopDecay
			}
		}
		for id, c := range next {
			next[id] = math.Min(1, c)
			activation[id] = math.Min(1, activation[id]+c)
		}
		frontier = next
	}
	return activation, nil
}

// rank turns an activation map into budgeted results. Neurons in exclude
// never appear.
func (e *Engine) rank(tx *store.Tx, activation map[int64]float64, typ store.NeuronType, exclude map[int64]bool, limit, budget int) ([]RecallResult, error) {
	ids := sortedIDs(activation)
	neurons, err := tx.NeuronsByIDs(ids)
	if err != nil {
		return nil, err
	}

	blend := e.params.MyelinationBlend
	ranked := make([]RecallResult, 0, len(ids))
	for _, id := range ids {
		n, ok := neurons[id]
		if !ok || exclude[id] {
			continue
		}
		if typ != "" && n.Type != typ {
			continue
		}
		a := activation[id]
		conf := (1-blend)*a + blend*n.Myelination
		if conf < e.params.ConfidenceFloor {
			continue
		}
		ranked = append(ranked, RecallResult{Neuron: n, Activation: a, Confidence: conf})
	}
	sortResults(ranked)

	out := make([]RecallResult, 0, min(limit, len(ranked)))
	spent := 0
	for _, r := range ranked {
		if len(out) >= limit {
			break
		}
		cost := e.tokenCost(r.Neuron)
		if budget > 0 && spent+cost > budget {
			break
		}
		spent += cost
		r.EstimatedTokensSaved = cost
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) appendLedger(tx *store.Tx, query string, results []RecallResult, now int64) error {
	if len(results) == 0 {
		return nil
	}
	var baseline int64
	for _, r := range results {
		baseline += int64(r.EstimatedTokensSaved)
	}
	return tx.AppendLedger(store.LedgerEntry{
		SessionID:      e.session,
		Query:          query,
		ResultCount:    len(results),
		BaselineTokens: baseline,
		RecallTokens:   int64(e.params.ResultOverhead * len(results)),
		CreatedAt:      now,
	})
}

// sortResults orders by confidence, then myelination, then recency, then id.
func sortResults(rs []RecallResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Neuron.Myelination != b.Neuron.Myelination {
			return a.Neuron.Myelination > b.Neuron.Myelination
		}
		if a.Neuron.LastAccessedAt != b.Neuron.LastAccessedAt {
			return a.Neuron.LastAccessedAt > b.Neuron.LastAccessedAt
		}
		return a.Neuron.ID < b.Neuron.ID
	})
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
