package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lazypower/hebbian/internal/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// testEngine returns an engine on a fresh in-memory store with a fake clock.
func testEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	e := New(testDB(t), "session-1", append([]Option{WithClock(clock.Now)}, opts...)...)
	return e, clock
}

// sibling returns a second engine on the same store under another session.
func sibling(e *Engine, session string, clock *fakeClock) *Engine {
	return New(e.db, session, WithClock(clock.Now), WithParams(e.params))
}

func mustRecord(t *testing.T, e *Engine, typ store.NeuronType, path string) *store.Neuron {
	t.Helper()
	n, err := e.Record(context.Background(), path, typ, "")
	require.NoError(t, err)
	return n
}

// synapse reads the stored synapse between two neurons in either order.
func synapse(t *testing.T, e *Engine, a, b int64) *store.Synapse {
	t.Helper()
	var s *store.Synapse
	require.NoError(t, e.db.Update(context.Background(), "test", func(tx *store.Tx) error {
		var err error
		if s, err = tx.GetSynapse(a, b); err != nil || s != nil {
			return err
		}
		s, err = tx.GetSynapse(b, a)
		return err
	}))
	return s
}

func neuron(t *testing.T, e *Engine, typ store.NeuronType, path string) *store.Neuron {
	t.Helper()
	var n *store.Neuron
	require.NoError(t, e.db.Update(context.Background(), "test", func(tx *store.Tx) error {
		var err error
		n, err = tx.GetNeuron(typ, path)
		return err
	}))
	return n
}

// upperScrubber stands in for the secrets scrubber.
type upperScrubber struct{}

func (upperScrubber) Scrub(s string) string {
	return strings.ReplaceAll(s, "hunter2", "[REDACTED]")
}
