package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertNeuron(t *testing.T, db *DB, typ NeuronType, path string, m float64, lastAccess int64) Neuron {
	t.Helper()
	n := Neuron{Type: typ, Path: path, AccessCount: 1, Myelination: m, CreatedAt: lastAccess, LastAccessedAt: lastAccess}
	update(t, db, func(tx *Tx) error { return tx.InsertNeuron(&n) })
	require.NotZero(t, n.ID)
	return n
}

func TestInsertGetUpdateNeuron(t *testing.T) {
	db := openTestDB(t)
	n := insertNeuron(t, db, FileNeuron, "internal/auth/token.go", 0.1, 1000)

	update(t, db, func(tx *Tx) error {
		got, err := tx.GetNeuron(FileNeuron, "internal/auth/token.go")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, n.ID, got.ID)
		assert.Empty(t, got.Contexts)
		assert.Nil(t, got.Embedding)

		got.AccessCount = 3
		got.Myelination = 0.3
		got.Contexts = []string{"refresh flow"}
		got.Embedding = []float64{0.5, -0.25}
		got.EmbeddingModel = "test"
		got.LastAccessedAt = 2000
		return tx.UpdateNeuron(got)
	})

	update(t, db, func(tx *Tx) error {
		got, err := tx.GetNeuronByID(n.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.AccessCount)
		assert.InDelta(t, 0.3, got.Myelination, 1e-12)
		assert.Equal(t, []string{"refresh flow"}, got.Contexts)
		assert.Equal(t, []float64{0.5, -0.25}, got.Embedding)
		assert.Equal(t, int64(2000), got.LastAccessedAt)

		missing, err := tx.GetNeuron(ToolNeuron, "internal/auth/token.go")
		require.NoError(t, err)
		assert.Nil(t, missing, "identity includes type")
		return nil
	})
}

func TestFindCandidates(t *testing.T) {
	db := openTestDB(t)
	insertNeuron(t, db, FileNeuron, "internal/auth/token.go", 0.2, 1)
	strong := insertNeuron(t, db, FileNeuron, "internal/auth/session.go", 0.9, 1)
	insertNeuron(t, db, ToolNeuron, "go test ./auth", 0.5, 1)
	insertNeuron(t, db, FileNeuron, "README.md", 0.9, 1)

	update(t, db, func(tx *Tx) error {
		got, err := tx.FindCandidates("", []string{"auth"}, "", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, strong.ID, got[0].ID, "strongest first")

		got, err = tx.FindCandidates("", []string{"auth"}, FileNeuron, 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = tx.FindCandidates("", []string{"auth"}, "", 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = tx.FindCandidates("", nil, "", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	})
}

func TestFindCandidatesRanksMatchesBeforeMyelination(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 20; i++ {
		insertNeuron(t, db, FileNeuron, fmt.Sprintf("src/pkg%02d/file.go", i), 0.9, 1)
	}
	twoTerms := insertNeuron(t, db, FileNeuron, "src/billing/payment_test.go", 0.3, 1)
	exact := insertNeuron(t, db, FileNeuron, "src/payment.go", 0.1, 1)

	update(t, db, func(tx *Tx) error {
		terms := []string{"src", "payment", "go", "src/payment.go"}
		got, err := tx.FindCandidates("src/payment.go", terms, "", 5)
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, exact.ID, got[0].ID, "identifier containing the phrase first")
		assert.Equal(t, twoTerms.ID, got[1].ID, "more matched terms before stronger neurons")

		got, err = tx.FindCandidates("", terms, "", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, exact.ID, got[0].ID, "exact path matches every term")
		return nil
	})
}

func TestPruneOrphans(t *testing.T) {
	db := openTestDB(t)
	oldErr := insertNeuron(t, db, ErrorNeuron, "panic: nil map", 0.1, 100)
	linkedErr := insertNeuron(t, db, ErrorNeuron, "undefined: foo", 0.1, 100)
	file := insertNeuron(t, db, FileNeuron, "main.go", 0.1, 100)
	insertNeuron(t, db, FileNeuron, "orphan.go", 0.1, 100)
	insertNeuron(t, db, SemanticNeuron, "fresh idea", 0.1, 5000)

	update(t, db, func(tx *Tx) error {
		_, _, err := tx.ReinforceSynapse(linkedErr.ID, file.ID, 0.1, 100)
		return err
	})

	update(t, db, func(tx *Tx) error {
		n, err := tx.PruneOrphans(1000)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "only the unlinked stale error goes")

		gone, err := tx.GetNeuronByID(oldErr.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		counts, err := tx.NeuronCounts()
		require.NoError(t, err)
		assert.Equal(t, 2, counts[FileNeuron], "file neurons are never orphan-pruned")
		assert.Equal(t, 1, counts[ErrorNeuron])
		assert.Equal(t, 1, counts[SemanticNeuron])
		return nil
	})
}

func TestSetEmbeddingAndCounts(t *testing.T) {
	db := openTestDB(t)
	insertNeuron(t, db, FileNeuron, "a.go", 0.1, 1)
	insertNeuron(t, db, FileNeuron, "b.go", 0.1, 1)

	update(t, db, func(tx *Tx) error {
		ok, err := tx.SetEmbedding(FileNeuron, "a.go", []float64{1, 0}, "m")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.SetEmbedding(FileNeuron, "nope.go", []float64{1, 0}, "m")
		require.NoError(t, err)
		assert.False(t, ok)

		embedded, total, err := tx.EmbeddingCounts()
		require.NoError(t, err)
		assert.Equal(t, 1, embedded)
		assert.Equal(t, 2, total)

		missing, err := tx.NeuronsWithoutEmbedding(10)
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, "b.go", missing[0].Path)
		return nil
	})
}

func TestNeuronsByIDsChunks(t *testing.T) {
	db := openTestDB(t)
	var ids []int64
	update(t, db, func(tx *Tx) error {
		for i := 0; i < 1200; i++ {
			n := Neuron{Type: ToolNeuron, Path: fmt.Sprintf("tool-%d", i), AccessCount: 1, Myelination: 0.1}
			if err := tx.InsertNeuron(&n); err != nil {
				return err
			}
			ids = append(ids, n.ID)
		}
		return nil
	})

	update(t, db, func(tx *Tx) error {
		got, err := tx.NeuronsByIDs(append(ids, 999999))
		require.NoError(t, err)
		assert.Len(t, got, 1200)
		return nil
	})
}
