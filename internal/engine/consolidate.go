package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/embed"
	"github.com/lazypower/hebbian/internal/store"
)

// ConsolidationSummary reports what one consolidation pass changed.
type ConsolidationSummary struct {
	ShortcutsCreated    int `json:"shortcuts_created"`
	ShortcutsReinforced int `json:"shortcuts_reinforced"`
	Merged              int `json:"merged"`
	Demoted             int `json:"demoted"`
	Superhighways       int `json:"superhighways"`
}

// Consolidate replays the graph offline: well-traveled two-hop paths get a
// direct shortcut, near-duplicate semantic neurons are merged, and semantic
// noise that never caught on is dropped.
func (e *Engine) Consolidate(ctx context.Context) (*ConsolidationSummary, error) {
	now := e.now()
	var sum ConsolidationSummary
	err := e.db.Update(ctx, "consolidate", func(tx *store.Tx) error {
		sum = ConsolidationSummary{}
		if err := e.shortcuts(tx, now, &sum); err != nil {
			return err
		}
		if err := e.mergeSemantic(tx, &sum); err != nil {
			return err
		}
		if err := e.demoteSemantic(tx, now, &sum); err != nil {
			return err
		}
		_, above, err := tx.MyelinationSummary(e.params.SuperhighwayThreshold)
		sum.Superhighways = above
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}

	e.logger.Info("consolidation complete",
		zap.Int("shortcuts_created", sum.ShortcutsCreated),
		zap.Int("shortcuts_reinforced", sum.ShortcutsReinforced),
		zap.Int("merged", sum.Merged),
		zap.Int("demoted", sum.Demoted),
		zap.Int("superhighways", sum.Superhighways))
	if e.metrics != nil {
		e.metrics.RecordConsolidation(sum.ShortcutsCreated, sum.ShortcutsReinforced)
	}
	return &sum, nil
}

type pairKey struct{ src, tgt int64 }

// shortcuts reinforces A–C for every strong path A–B–C. When several
// intermediaries connect the same pair, the strongest path wins. All
// shortcuts are computed from the graph as it was before the pass.
func (e *Engine) shortcuts(tx *store.Tx, now int64, sum *ConsolidationSummary) error {
	strong, err := tx.ListSynapses(e.params.MinPathWeight)
	if err != nil {
		return err
	}

	in := make(map[int64][]store.Neighbor)  // B -> A for A→B
	out := make(map[int64][]store.Neighbor) // B -> C for B→C
	for _, s := range strong {
		out[s.SourceID] = append(out[s.SourceID], store.Neighbor{ID: s.TargetID, Weight: s.Weight})
		in[s.TargetID] = append(in[s.TargetID], store.Neighbor{ID: s.SourceID, Weight: s.Weight})
		if !e.params.Directed {
			out[s.TargetID] = append(out[s.TargetID], store.Neighbor{ID: s.SourceID, Weight: s.Weight})
			in[s.SourceID] = append(in[s.SourceID], store.Neighbor{ID: s.TargetID, Weight: s.Weight})
		}
	}

	best := make(map[pairKey]float64)
	for _, b := range sortedIDs(out) {
		froms := e.fanout(in[b])
		tos := e.fanout(out[b])
		for _, a := range froms {
			for _, c := range tos {
				if a.ID == c.ID {
					continue
				}
				src, tgt := e.synapseKey(a.ID, c.ID)
				k := pairKey{src, tgt}
				if r := e.params.ShortcutRate * a.Weight * c.Weight; r > best[k] {
					best[k] = r
				}
			}
		}
	}

	keys := make([]pairKey, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].src != keys[j].src {
			return keys[i].src < keys[j].src
		}
		return keys[i].tgt < keys[j].tgt
	})

	for _, k := range keys {
		_, created, err := tx.ReinforceSynapse(k.src, k.tgt, best[k], now)
		if err != nil {
			return err
		}
		if created {
			sum.ShortcutsCreated++
		} else {
			sum.ShortcutsReinforced++
		}
	}
	return nil
}

// fanout keeps the MaxFanout heaviest neighbors.
func (e *Engine) fanout(nbs []store.Neighbor) []store.Neighbor {
	nbs = slices.Clone(nbs)
	sort.Slice(nbs, func(i, j int) bool {
		if nbs[i].Weight != nbs[j].Weight {
			return nbs[i].Weight > nbs[j].Weight
		}
		return nbs[i].ID < nbs[j].ID
	})
	if e.params.MaxFanout > 0 && len(nbs) > e.params.MaxFanout {
		nbs = nbs[:e.params.MaxFanout]
	}
	return nbs
}

// mergeSemantic folds semantic neurons with near-identical embeddings into
// the most myelinated one of each group.
func (e *Engine) mergeSemantic(tx *store.Tx, sum *ConsolidationSummary) error {
	neurons, err := tx.EmbeddedNeurons(store.SemanticNeuron, -1)
	if err != nil {
		return err
	}
	sort.Slice(neurons, func(i, j int) bool {
		if neurons[i].Myelination != neurons[j].Myelination {
			return neurons[i].Myelination > neurons[j].Myelination
		}
		return neurons[i].ID < neurons[j].ID
	})

	merged := make(map[int64]bool)
	for i := range neurons {
		keeper := &neurons[i]
		if merged[keeper.ID] {
			continue
		}
		changed := false
		for j := i + 1; j < len(neurons); j++ {
			dup := neurons[j]
			if merged[dup.ID] {
				continue
			}
			if embed.CosineSimilarity(keeper.Embedding, dup.Embedding) < e.params.MergeSimilarity {
				continue
			}
			if err := e.absorb(tx, keeper, dup); err != nil {
				return err
			}
			merged[dup.ID] = true
			changed = true
			sum.Merged++
			e.logger.Debug("merged semantic neuron",
				zap.String("keeper", keeper.Path), zap.String("duplicate", dup.Path))
		}
		if changed {
			if err := tx.UpdateNeuron(keeper); err != nil {
				return err
			}
		}
	}
	return nil
}

// absorb moves dup's synapses, accesses and contexts onto keeper, then
// deletes dup. keeper is updated in memory only.
func (e *Engine) absorb(tx *store.Tx, keeper *store.Neuron, dup store.Neuron) error {
	synapses, err := tx.SynapsesOf(dup.ID)
	if err != nil {
		return err
	}
	for _, s := range synapses {
		src, tgt := s.SourceID, s.TargetID
		if src == dup.ID {
			src = keeper.ID
		}
		if tgt == dup.ID {
			tgt = keeper.ID
		}
		if src == tgt {
			continue
		}
		if !e.params.Directed && src > tgt {
			src, tgt = tgt, src
		}
		s.SourceID, s.TargetID = src, tgt
		if err := tx.MergeSynapse(s); err != nil {
			return err
		}
	}

	keeper.AccessCount += dup.AccessCount
	keeper.LastAccessedAt = max(keeper.LastAccessedAt, dup.LastAccessedAt)
	for _, c := range dup.Contexts {
		if !slices.Contains(keeper.Contexts, c) {
			keeper.Contexts = e.appendContext(keeper.Contexts, c)
		}
	}
	return tx.DeleteNeuron(dup.ID)
}

// demoteSemantic deletes semantic neurons that were seen once, never
// strengthened, and have been idle past the grace period.
func (e *Engine) demoteSemantic(tx *store.Tx, now int64, sum *ConsolidationSummary) error {
	neurons, err := tx.ListNeurons(store.SemanticNeuron)
	if err != nil {
		return err
	}
	cutoff := now - e.params.DemoteGrace.Milliseconds()
	for _, n := range neurons {
		if n.Myelination > e.params.DemoteBelow || n.AccessCount > 1 || n.LastAccessedAt >= cutoff {
			continue
		}
		if err := tx.DeleteNeuron(n.ID); err != nil {
			return err
		}
		sum.Demoted++
	}
	return nil
}
