package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/embed"
	"github.com/lazypower/hebbian/internal/store"
)

// Stats summarizes the graph.
type Stats struct {
	NeuronCount    int                      `json:"neuron_count"`
	SynapseCount   int                      `json:"synapse_count"`
	Superhighways  int                      `json:"superhighways"`
	AvgMyelination float64                  `json:"avg_myelination"`
	AvgWeight      float64                  `json:"avg_weight"`
	ByType         map[store.NeuronType]int `json:"by_type"`
}

// TokenReport totals the recall ledger.
type TokenReport struct {
	Recalls        int64   `json:"recalls"`
	BaselineTokens int64   `json:"baseline_tokens"`
	RecallTokens   int64   `json:"recall_tokens"`
	TokensSaved    int64   `json:"tokens_saved"`
	SavingsPct     float64 `json:"savings_pct"`
}

// EmbeddingCoverage reports how many neurons carry an embedding.
type EmbeddingCoverage struct {
	Embedded int     `json:"embedded"`
	Total    int     `json:"total"`
	Pct      float64 `json:"pct"`
}

// Stats returns graph-wide counters. An empty store yields zeros.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st := Stats{ByType: make(map[store.NeuronType]int)}
	err := e.db.View(ctx, "stats", func(tx *store.Tx) error {
		counts, err := tx.NeuronCounts()
		if err != nil {
			return err
		}
		st.NeuronCount = 0
		for _, t := range store.NeuronTypes {
			st.ByType[t] = counts[t]
			st.NeuronCount += counts[t]
		}
		if st.AvgMyelination, st.Superhighways, err = tx.MyelinationSummary(e.params.SuperhighwayThreshold); err != nil {
			return err
		}
		st.SynapseCount, st.AvgWeight, err = tx.SynapseSummary()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// TokenReport returns cumulative token savings from the recall ledger.
func (e *Engine) TokenReport(ctx context.Context) (*TokenReport, error) {
	var tt store.TokenTotals
	err := e.db.View(ctx, "tokenReport", func(tx *store.Tx) error {
		var err error
		tt, err = tx.LedgerTotals()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("tokenReport: %w", err)
	}

	r := TokenReport{
		Recalls:        tt.Recalls,
		BaselineTokens: tt.BaselineTokens,
		RecallTokens:   tt.RecallTokens,
		TokensSaved:    tt.TokensSaved,
	}
	if tt.BaselineTokens > 0 {
		r.SavingsPct = float64(tt.TokensSaved) / float64(tt.BaselineTokens) * 100
	}
	return &r, nil
}

// Superhighways returns neurons with myelination >= minMyelination,
// strongest first.
func (e *Engine) Superhighways(ctx context.Context, minMyelination float64) ([]store.Neuron, error) {
	return e.TopNeurons(ctx, minMyelination, -1)
}

// TopNeurons is Superhighways with a result cap. limit < 0 means no cap.
func (e *Engine) TopNeurons(ctx context.Context, minMyelination float64, limit int) ([]store.Neuron, error) {
	if minMyelination < 0 || minMyelination > 1 {
		return nil, invalid("superhighways", "min_myelination", fmt.Sprint(minMyelination), "must be in [0,1]")
	}
	var out []store.Neuron
	err := e.db.View(ctx, "superhighways", func(tx *store.Tx) error {
		var err error
		out, err = tx.TopNeurons(minMyelination, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("superhighways: %w", err)
	}
	if out == nil {
		out = []store.Neuron{}
	}
	return out, nil
}

// EmbeddingCoverage reports the share of neurons with an embedding.
func (e *Engine) EmbeddingCoverage(ctx context.Context) (*EmbeddingCoverage, error) {
	var c EmbeddingCoverage
	err := e.db.View(ctx, "embeddingCoverage", func(tx *store.Tx) error {
		var err error
		c.Embedded, c.Total, err = tx.EmbeddingCounts()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embeddingCoverage: %w", err)
	}
	if c.Total > 0 {
		c.Pct = float64(c.Embedded) / float64(c.Total) * 100
	}
	return &c, nil
}

// SetEmbedding attaches a precomputed vector to an existing neuron.
func (e *Engine) SetEmbedding(ctx context.Context, typ store.NeuronType, path string, vec []float64, model string) error {
	path, err := validateIdentity("setEmbedding", typ, path)
	if err != nil {
		return err
	}
	if err := validateVector("setEmbedding", vec); err != nil {
		return err
	}

	var found bool
	err = e.db.Update(ctx, "setEmbedding", func(tx *store.Tx) error {
		var err error
		found, err = tx.SetEmbedding(typ, path, vec, strings.TrimSpace(model))
		return err
	})
	if err != nil {
		return fmt.Errorf("setEmbedding %s %q: %w", typ, path, err)
	}
	if !found {
		return fmt.Errorf("setEmbedding %s %q: %w", typ, path, ErrNeuronNotFound)
	}
	return nil
}

// Corpus returns the searchable text of every neuron, for building a
// TF-IDF vocabulary.
func (e *Engine) Corpus(ctx context.Context) ([]string, error) {
	var docs []string
	err := e.db.View(ctx, "corpus", func(tx *store.Tx) error {
		neurons, err := tx.ListNeurons("")
		if err != nil {
			return err
		}
		docs = make([]string, 0, len(neurons))
		for _, n := range neurons {
			docs = append(docs, neuronText(n))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	return docs, nil
}

// EmbedMissing embeds up to limit neurons that have no vector yet. Network
// calls happen outside any transaction; one failing neuron is logged and
// skipped.
func (e *Engine) EmbedMissing(ctx context.Context, emb embed.Embedder, limit int) (int, error) {
	if emb == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 1000
	}

	var pending []store.Neuron
	err := e.db.View(ctx, "embedMissing", func(tx *store.Tx) error {
		var err error
		pending, err = tx.NeuronsWithoutEmbedding(limit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("embedMissing: %w", err)
	}

	embedded := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		vec, err := emb.Embed(ctx, neuronText(n))
		if err != nil {
			e.logger.Warn("embed failed", zap.String("path", n.Path), zap.Error(err))
			continue
		}
		if err := e.SetEmbedding(ctx, n.Type, n.Path, vec, emb.Model()); err != nil {
			if IsValidation(err) {
				e.logger.Warn("embed produced unusable vector", zap.String("path", n.Path), zap.Error(err))
				continue
			}
			return embedded, err
		}
		embedded++
	}
	return embedded, nil
}

// EmbedQuery embeds a recall query, returning nil when no embedder is set.
func EmbedQuery(ctx context.Context, emb embed.Embedder, query string) ([]float64, error) {
	if emb == nil {
		return nil, nil
	}
	vec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}
