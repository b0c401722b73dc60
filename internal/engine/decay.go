package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/store"
)

// Decay model
//
// Unused associations fade exponentially with half-lives measured from the
// later of the last reinforcement and the last decay run, so running decay
// twice in a row changes nothing material:
//
//	weight      *= 0.5 ^ (Δ / synapse_half_life)
//	myelination *= 0.5 ^ (Δ / myelination_half_life), never below the seed
//
// Synapses lighter than the prune epsilon are deleted. Error and semantic
// neurons left without synapses past the orphan grace period are deleted
// too; file and tool neurons are kept forever.

// DecayResult summarizes one decay run.
type DecayResult struct {
	DecayedSynapses int `json:"decayed_synapses"`
	DecayedNeurons  int `json:"decayed_neurons"`
	PrunedSynapses  int `json:"pruned_synapses"`
	PrunedNeurons   int `json:"pruned_neurons"`
	ExpiredErrors   int `json:"expired_errors"`
}

// Decay weakens everything that has not been used recently and prunes what
// has faded away.
func (e *Engine) Decay(ctx context.Context) (*DecayResult, error) {
	now := e.now()
	var res DecayResult
	err := e.db.Update(ctx, "decay", func(tx *store.Tx) error {
		res = DecayResult{}
		return e.decay(tx, now, &res)
	})
	if err != nil {
		return nil, fmt.Errorf("decay: %w", err)
	}

	e.logger.Info("decay complete",
		zap.Int("decayed_synapses", res.DecayedSynapses),
		zap.Int("decayed_neurons", res.DecayedNeurons),
		zap.Int("pruned_synapses", res.PrunedSynapses),
		zap.Int("pruned_neurons", res.PrunedNeurons))
	if e.metrics != nil {
		e.metrics.RecordDecay(res.PrunedSynapses, res.PrunedNeurons)
	}
	return &res, nil
}

func (e *Engine) decay(tx *store.Tx, now int64, res *DecayResult) error {
	synapses, err := tx.ListSynapses(0)
	if err != nil {
		return err
	}
	for _, s := range synapses {
		w := s.Weight * halfLifeFactor(now-max(s.LastReinforcedAt, s.DecayedAt), e.params.SynapseHalfLife)
		if w >= s.Weight {
			continue
		}
		if err := tx.SetSynapseWeight(s.SourceID, s.TargetID, w, now); err != nil {
			return err
		}
		res.DecayedSynapses++
	}

	neurons, err := tx.ListNeurons("")
	if err != nil {
		return err
	}
	seed := e.params.SeedMyelination
	for _, n := range neurons {
		if n.Myelination <= seed {
			continue
		}
		m := n.Myelination * halfLifeFactor(now-max(n.LastAccessedAt, n.DecayedAt), e.params.MyelinationHalfLife)
		m = math.Max(m, seed)
		if m >= n.Myelination {
			continue
		}
		if err := tx.SetMyelination(n.ID, m, now); err != nil {
			return err
		}
		res.DecayedNeurons++
	}

	if res.PrunedSynapses, err = tx.PruneSynapses(e.params.PruneEpsilon); err != nil {
		return err
	}
	cutoff := now - e.params.OrphanGrace.Milliseconds()
	if res.ExpiredErrors, err = tx.ExpireOpenErrors(cutoff); err != nil {
		return err
	}
	if res.PrunedNeurons, err = tx.PruneOrphans(cutoff); err != nil {
		return err
	}
	return tx.ExpireWindows(now - e.params.WindowAge.Milliseconds())
}

// halfLifeFactor returns 0.5^(elapsed/halfLife) for elapsed milliseconds.
// No elapsed time means no decay.
func halfLifeFactor(elapsedMs int64, halfLife time.Duration) float64 {
	if elapsedMs <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(elapsedMs)/float64(halfLife.Milliseconds()))
}
