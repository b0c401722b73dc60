package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/store"
)

// AccessEvent is one observed use of a file, tool, error or concept.
type AccessEvent struct {
	Type      store.NeuronType `json:"type"`
	Path      string           `json:"path"`
	Context   string           `json:"context,omitempty"`    // query or snippet that led here
	SizeBytes int64            `json:"size_bytes,omitempty"` // file size hint for token estimates
}

// Record is shorthand for RecordEvent without a size hint.
func (e *Engine) Record(ctx context.Context, path string, typ store.NeuronType, query string) (*store.Neuron, error) {
	return e.RecordEvent(ctx, AccessEvent{Type: typ, Path: path, Context: query})
}

// RecordEvent applies Hebbian learning for one access: the neuron is created
// or strengthened, and every neuron in the session window is wired to it.
func (e *Engine) RecordEvent(ctx context.Context, ev AccessEvent) (*store.Neuron, error) {
	path, err := validateIdentity("record", ev.Type, ev.Path)
	if err != nil {
		return nil, err
	}
	if ev.SizeBytes < 0 {
		return nil, invalid("record", "size_bytes", fmt.Sprint(ev.SizeBytes), "must not be negative")
	}
	ev.Path = path
	ev.Context = e.prepareText(ev.Context)

	now := e.now()
	var out *store.Neuron
	var wired int
	err = e.db.Update(ctx, "record", func(tx *store.Tx) error {
		n, w, err := e.record(tx, ev, now)
		if err != nil {
			return err
		}
		out, wired = n, w
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record %s %q: %w", ev.Type, ev.Path, err)
	}

	e.logger.Debug("recorded",
		zap.String("type", string(out.Type)),
		zap.String("path", out.Path),
		zap.Int("access_count", out.AccessCount),
		zap.Float64("myelination", out.Myelination),
		zap.Int("wired", wired))
	if e.metrics != nil {
		e.metrics.RecordAccess(string(out.Type), wired)
	}
	return out, nil
}

// record is the transactional body of RecordEvent. It returns the neuron
// and the number of synapses reinforced.
func (e *Engine) record(tx *store.Tx, ev AccessEvent, now int64) (*store.Neuron, int, error) {
	n, err := e.touch(tx, ev, now)
	if err != nil {
		return nil, 0, err
	}

	since := now - e.params.WindowAge.Milliseconds()
	window, err := tx.RecentWindow(e.session, since, e.params.WindowSize)
	if err != nil {
		return nil, 0, err
	}
	wired := 0
	for _, w := range window {
		if w.NeuronID == n.ID {
			continue
		}
		src, tgt := e.synapseKey(w.NeuronID, n.ID)
		if _, _, err := tx.ReinforceSynapse(src, tgt, e.params.CoactivationRate, now); err != nil {
			return nil, 0, err
		}
		wired++
	}

	if err := tx.PushWindow(e.session, n.ID, now, e.params.WindowSize, since); err != nil {
		return nil, 0, err
	}
	if n.Type == store.FileNeuron {
		if err := tx.TrailOpenErrors(e.session, n.ID); err != nil {
			return nil, 0, err
		}
	}
	return n, wired, nil
}

// touch creates the neuron for ev or applies one reinforcement to it.
func (e *Engine) touch(tx *store.Tx, ev AccessEvent, now int64) (*store.Neuron, error) {
	n, err := tx.GetNeuron(ev.Type, ev.Path)
	if err != nil {
		return nil, err
	}

	if n == nil {
		n = &store.Neuron{
			Type:           ev.Type,
			Path:           ev.Path,
			AccessCount:    1,
			Myelination:    e.params.SeedMyelination,
			Contexts:       e.appendContext(nil, ev.Context),
			SizeBytes:      ev.SizeBytes,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
		if err := tx.InsertNeuron(n); err != nil {
			return nil, err
		}
		return n, nil
	}

	n.AccessCount++
	n.Myelination = reinforce(n.Myelination, e.params.LearningRate)
	n.Contexts = e.appendContext(n.Contexts, ev.Context)
	if ev.SizeBytes > 0 {
		n.SizeBytes = ev.SizeBytes
	}
	n.LastAccessedAt = now
	if err := tx.UpdateNeuron(n); err != nil {
		return nil, err
	}
	return n, nil
}

// ensure returns the neuron with the given identity, creating it at seed
// strength when missing. Existing neurons are left untouched.
func (e *Engine) ensure(tx *store.Tx, typ store.NeuronType, path string, now int64) (*store.Neuron, error) {
	n, err := tx.GetNeuron(typ, path)
	if err != nil || n != nil {
		return n, err
	}
	n = &store.Neuron{
		Type:           typ,
		Path:           path,
		AccessCount:    1,
		Myelination:    e.params.SeedMyelination,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := tx.InsertNeuron(n); err != nil {
		return nil, err
	}
	return n, nil
}

// reinforce is the saturating update x += rate*(1-x), clamped to [0,1].
func reinforce(x, rate float64) float64 {
	x += rate * (1 - x)
	if x > 1 {
		return 1
	}
	if x < 0 {
		return 0
	}
	return x
}

// appendContext adds snippet to the bounded context list, dropping the
// oldest entries. A snippet equal to the newest entry is not repeated.
func (e *Engine) appendContext(contexts []string, snippet string) []string {
	if snippet == "" || e.params.ContextCap == 0 {
		return contexts
	}
	if len(contexts) > 0 && contexts[len(contexts)-1] == snippet {
		return contexts
	}
	contexts = append(contexts, snippet)
	if over := len(contexts) - e.params.ContextCap; over > 0 {
		contexts = append([]string(nil), contexts[over:]...)
	}
	return contexts
}
