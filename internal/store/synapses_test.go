package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReinforceSynapseSaturates(t *testing.T) {
	db := openTestDB(t)
	a := insertNeuron(t, db, FileNeuron, "a.go", 0.1, 1)
	b := insertNeuron(t, db, FileNeuron, "b.go", 0.1, 1)

	want := 0.0
	for i := 1; i <= 50; i++ {
		want += 0.1 * (1 - want)
		update(t, db, func(tx *Tx) error {
			s, created, err := tx.ReinforceSynapse(a.ID, b.ID, 0.1, int64(i))
			require.NoError(t, err)
			assert.Equal(t, i == 1, created)
			assert.Equal(t, i, s.CoActivationCount)
			assert.InDelta(t, want, s.Weight, 1e-9)
			assert.LessOrEqual(t, s.Weight, 1.0)
			return nil
		})
	}

	update(t, db, func(tx *Tx) error {
		s, err := tx.GetSynapse(a.ID, b.ID)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, int64(1), s.CreatedAt)
		assert.Equal(t, int64(50), s.LastReinforcedAt)

		rev, err := tx.GetSynapse(b.ID, a.ID)
		require.NoError(t, err)
		assert.Nil(t, rev, "stored once under its key")
		return nil
	})
}

func TestNeighborsDirection(t *testing.T) {
	db := openTestDB(t)
	a := insertNeuron(t, db, FileNeuron, "a.go", 0.1, 1)
	b := insertNeuron(t, db, FileNeuron, "b.go", 0.1, 1)
	c := insertNeuron(t, db, FileNeuron, "c.go", 0.1, 1)

	update(t, db, func(tx *Tx) error {
		if _, _, err := tx.ReinforceSynapse(a.ID, b.ID, 0.3, 1); err != nil {
			return err
		}
		_, _, err := tx.ReinforceSynapse(b.ID, c.ID, 0.6, 1)
		return err
	})

	update(t, db, func(tx *Tx) error {
		got, err := tx.Neighbors(b.ID, false, 10)
		require.NoError(t, err)
		assert.Equal(t, []Neighbor{{ID: c.ID, Weight: 0.6}, {ID: a.ID, Weight: 0.3}}, got)

		got, err = tx.Neighbors(b.ID, true, 10)
		require.NoError(t, err)
		assert.Equal(t, []Neighbor{{ID: c.ID, Weight: 0.6}}, got, "directed follows outgoing only")

		got, err = tx.Neighbors(b.ID, false, 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		return nil
	})
}

func TestMergeAndPruneSynapses(t *testing.T) {
	db := openTestDB(t)
	a := insertNeuron(t, db, FileNeuron, "a.go", 0.1, 1)
	b := insertNeuron(t, db, FileNeuron, "b.go", 0.1, 1)
	c := insertNeuron(t, db, FileNeuron, "c.go", 0.1, 1)

	update(t, db, func(tx *Tx) error {
		if _, _, err := tx.ReinforceSynapse(a.ID, b.ID, 0.4, 10); err != nil {
			return err
		}
		if err := tx.MergeSynapse(Synapse{SourceID: a.ID, TargetID: b.ID, Weight: 0.2, CoActivationCount: 3, CreatedAt: 5, LastReinforcedAt: 20}); err != nil {
			return err
		}
		return tx.MergeSynapse(Synapse{SourceID: b.ID, TargetID: c.ID, Weight: 0.005, CoActivationCount: 1, CreatedAt: 5, LastReinforcedAt: 5})
	})

	update(t, db, func(tx *Tx) error {
		s, err := tx.GetSynapse(a.ID, b.ID)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.InDelta(t, 0.4, s.Weight, 1e-12, "max weight wins")
		assert.Equal(t, 4, s.CoActivationCount)
		assert.Equal(t, int64(5), s.CreatedAt)
		assert.Equal(t, int64(20), s.LastReinforcedAt)

		n, err := tx.PruneSynapses(0.01)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, avg, err := tx.SynapseSummary()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.InDelta(t, 0.4, avg, 1e-12)
		return nil
	})
}

func TestDeleteNeuronCascades(t *testing.T) {
	db := openTestDB(t)
	a := insertNeuron(t, db, FileNeuron, "a.go", 0.1, 1)
	b := insertNeuron(t, db, FileNeuron, "b.go", 0.1, 1)

	update(t, db, func(tx *Tx) error {
		if _, _, err := tx.ReinforceSynapse(a.ID, b.ID, 0.1, 1); err != nil {
			return err
		}
		if err := tx.PushWindow("s1", a.ID, 1, 5, 0); err != nil {
			return err
		}
		return tx.DeleteNeuron(a.ID)
	})

	update(t, db, func(tx *Tx) error {
		syns, err := tx.SynapsesOf(b.ID)
		require.NoError(t, err)
		assert.Empty(t, syns)

		win, err := tx.RecentWindow("s1", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, win)
		return nil
	})
}
