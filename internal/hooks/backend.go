package hooks

import (
	"context"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

// Backend is the memory a hook talks to: a running server or the store
// file directly.
type Backend interface {
	Record(ctx context.Context, session string, ev engine.AccessEvent) error
	RecordError(ctx context.Context, session, errorText, query string) (*engine.ErrorRecall, error)
	Recall(ctx context.Context, session string, p engine.RecallParams) ([]engine.RecallResult, error)
	Superhighways(ctx context.Context, limit int) ([]store.Neuron, error)
	Decay(ctx context.Context) (*engine.DecayResult, error)
}

// Local runs the engine in-process against an open store.
type Local struct {
	db   *store.DB
	opts []engine.Option
}

// NewLocal returns a Backend over db. opts apply to every engine it creates.
func NewLocal(db *store.DB, opts ...engine.Option) *Local {
	return &Local{db: db, opts: opts}
}

func (l *Local) engine(session string) *engine.Engine {
	return engine.New(l.db, session, l.opts...)
}

func (l *Local) Record(ctx context.Context, session string, ev engine.AccessEvent) error {
	_, err := l.engine(session).RecordEvent(ctx, ev)
	return err
}

func (l *Local) RecordError(ctx context.Context, session, errorText, query string) (*engine.ErrorRecall, error) {
	return l.engine(session).RecordError(ctx, errorText, query)
}

func (l *Local) Recall(ctx context.Context, session string, p engine.RecallParams) ([]engine.RecallResult, error) {
	return l.engine(session).Recall(ctx, p)
}

// Superhighways returns up to limit neurons at or above the configured
// superhighway threshold. limit <= 0 means no cap.
func (l *Local) Superhighways(ctx context.Context, limit int) ([]store.Neuron, error) {
	if limit <= 0 {
		limit = -1
	}
	eng := l.engine("")
	return eng.TopNeurons(ctx, eng.Params().SuperhighwayThreshold, limit)
}

func (l *Local) Decay(ctx context.Context) (*engine.DecayResult, error) {
	return l.engine("").Decay(ctx)
}
