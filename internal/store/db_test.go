package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// update runs fn in a write transaction and fails the test on error.
func update(t *testing.T, db *DB, fn func(*Tx) error) {
	t.Helper()
	require.NoError(t, db.Update(context.Background(), "test", fn))
}

func TestOpenMemory(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, ":memory:", db.Path)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestTablesExist(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"schema_versions", "neurons", "synapses", "session_window", "open_errors", "error_trail", "recall_ledger"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestSchemaConstraints(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO neurons (type, path, myelination, created_at, last_accessed_at) VALUES ('file', 'a.go', 0.1, 1, 1)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO neurons (type, path, myelination, created_at, last_accessed_at) VALUES ('dir', 'b', 0.1, 1, 1)`)
	assert.Error(t, err, "unknown type")

	_, err = db.Exec(`INSERT INTO neurons (type, path, myelination, created_at, last_accessed_at) VALUES ('file', 'a.go', 0.1, 1, 1)`)
	assert.Error(t, err, "duplicate identity")

	_, err = db.Exec(`INSERT INTO neurons (type, path, myelination, created_at, last_accessed_at) VALUES ('tool', 'x', 1.5, 1, 1)`)
	assert.Error(t, err, "myelination out of range")

	_, err = db.Exec(`INSERT INTO synapses (source_id, target_id, weight, created_at, last_reinforced_at) VALUES (1, 1, 0.1, 1, 1)`)
	assert.Error(t, err, "self synapse")

	_, err = db.Exec(`INSERT INTO synapses (source_id, target_id, weight, created_at, last_reinforced_at) VALUES (1, 999, 0.1, 1, 1)`)
	assert.Error(t, err, "dangling synapse")
}

func TestOpenFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hebbian.db")

	db, err := Open(path)
	require.NoError(t, err)
	update(t, db, func(tx *Tx) error {
		return tx.InsertNeuron(&Neuron{Type: FileNeuron, Path: "main.go", AccessCount: 1, Myelination: 0.1, CreatedAt: 1, LastAccessedAt: 1})
	})
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var got *Neuron
	update(t, db, func(tx *Tx) error {
		var err error
		got, err = tx.GetNeuron(FileNeuron, "main.go")
		return err
	})
	require.NotNil(t, got)
	assert.Equal(t, 1, got.AccessCount)
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	junk := make([]byte, 4096)
	for i := range junk {
		junk[i] = 'x'
	}
	require.NoError(t, os.WriteFile(path, junk, 0600))

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreCorrupt)
}

func TestOpenUnavailableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	_, err := Open(filepath.Join(blocker, "hebbian.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.Update(context.Background(), "insert", func(tx *Tx) error {
		if err := tx.InsertNeuron(&Neuron{Type: ToolNeuron, Path: "go test", AccessCount: 1, Myelination: 0.1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM neurons").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestUpdateReturnsBusyWhenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hebbian.db")
	holder, err := Open(path)
	require.NoError(t, err)
	defer holder.Close()

	contender, err := Open(path,
		WithBusyTimeout(20*time.Millisecond),
		WithRetry(RetryPolicy{MaxTries: 2, Initial: time.Millisecond, Max: 5 * time.Millisecond}))
	require.NoError(t, err)
	defer contender.Close()

	ctx := context.Background()
	conn, err := holder.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	calls := 0
	err = contender.Update(ctx, "record", func(tx *Tx) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreBusy)
	assert.Equal(t, 0, calls, "fn never runs without the write lock")

	_, err = conn.ExecContext(ctx, "ROLLBACK")
	require.NoError(t, err)

	require.NoError(t, contender.Update(ctx, "record", func(tx *Tx) error { return nil }))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	plain := errors.New("plain")
	err := classify("op", plain)
	assert.ErrorIs(t, err, plain)
	assert.False(t, errors.Is(err, ErrStoreBusy))

	err = classify("op", errors.New("database is locked"))
	assert.ErrorIs(t, err, ErrStoreBusy)

	// already classified errors keep their sentinel
	err = classify("outer", classify("inner", errors.New("database is locked")))
	assert.ErrorIs(t, err, ErrStoreBusy)
}

func TestViewReadsWhileWriterHoldsLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hebbian.db")
	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := Open(path,
		WithBusyTimeout(20*time.Millisecond),
		WithRetry(RetryPolicy{MaxTries: 1, Initial: time.Millisecond, Max: time.Millisecond}))
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()
	conn, err := writer.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO neurons (type, path, myelination, created_at, last_accessed_at) VALUES ('file', 'pending.go', 0.1, 1, 1)`)
	require.NoError(t, err)

	var counts map[NeuronType]int
	require.NoError(t, reader.View(ctx, "stats", func(tx *Tx) error {
		var err error
		counts, err = tx.NeuronCounts()
		return err
	}))
	assert.Zero(t, counts[FileNeuron], "uncommitted rows are invisible")

	err = reader.Update(ctx, "record", func(tx *Tx) error { return nil })
	assert.ErrorIs(t, err, ErrStoreBusy, "writes still wait for the lock")

	_, err = conn.ExecContext(ctx, "COMMIT")
	require.NoError(t, err)
	require.NoError(t, reader.View(ctx, "stats", func(tx *Tx) error {
		var err error
		counts, err = tx.NeuronCounts()
		return err
	}))
	assert.Equal(t, 1, counts[FileNeuron])
}

func TestViewRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.View(context.Background(), "read", func(tx *Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	// the single pooled connection must be usable for a new transaction
	update(t, db, func(tx *Tx) error {
		return tx.InsertNeuron(&Neuron{Type: FileNeuron, Path: "main.go", AccessCount: 1, Myelination: 0.1})
	})
}
