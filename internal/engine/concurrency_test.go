package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/hebbian/internal/store"
)

// Separate store handles stand in for separate processes sharing one file.
func TestConcurrentHandlesLoseNoUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hebbian.db")
	const (
		handles = 8
		rounds  = 25
	)

	// create the schema once so the handles do not race on migrations
	first, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	ctx := context.Background()
	clock := newFakeClock()
	errs := make(chan error, handles)
	var wg sync.WaitGroup
	for i := 0; i < handles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := store.Open(path)
			if err != nil {
				errs <- err
				return
			}
			defer db.Close()

			e := New(db, fmt.Sprintf("session-%d", i), WithClock(clock.Now))
			for r := 0; r < rounds; r++ {
				for _, p := range []string{"a.go", "b.go"} {
					if _, err := e.Record(ctx, p, store.FileNeuron, ""); err != nil {
						errs <- err
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	db, err := store.Open(path)
	require.NoError(t, err)
	defer db.Close()

	e := New(db, "check", WithClock(clock.Now))
	a := neuron(t, e, store.FileNeuron, "a.go")
	b := neuron(t, e, store.FileNeuron, "b.go")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, handles*rounds, a.AccessCount)
	assert.Equal(t, handles*rounds, b.AccessCount)

	s := synapse(t, e, a.ID, b.ID)
	require.NotNil(t, s)
	// every record after the first in a session co-activates the pair
	assert.Equal(t, handles*(2*rounds-1), s.CoActivationCount)
	assert.LessOrEqual(t, s.Weight, 1.0)
}
