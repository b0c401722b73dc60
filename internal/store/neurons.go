package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// NeuronType is the kind of thing a neuron stands for.
type NeuronType string

const (
	FileNeuron     NeuronType = "file"
	ToolNeuron     NeuronType = "tool"
	ErrorNeuron    NeuronType = "error"
	SemanticNeuron NeuronType = "semantic"
)

// NeuronTypes lists every valid type in a stable order.
var NeuronTypes = []NeuronType{FileNeuron, ToolNeuron, ErrorNeuron, SemanticNeuron}

// Valid reports whether t is one of the known types.
func (t NeuronType) Valid() bool {
	switch t {
	case FileNeuron, ToolNeuron, ErrorNeuron, SemanticNeuron:
		return true
	}
	return false
}

// Neuron is a unit of memory identified by (Type, Path).
type Neuron struct {
	ID             int64      `json:"id"`
	Type           NeuronType `json:"type"`
	Path           string     `json:"path"`
	AccessCount    int        `json:"access_count"`
	Myelination    float64    `json:"myelination"`
	Contexts       []string   `json:"context_snippets"`
	Embedding      []float64  `json:"embedding,omitempty"`
	EmbeddingModel string     `json:"embedding_model,omitempty"`
	SizeBytes      int64      `json:"size_bytes,omitempty"`
	CreatedAt      int64      `json:"created_at"`
	LastAccessedAt int64      `json:"last_accessed_at"`
	DecayedAt      int64      `json:"-"`
}

const neuronColumns = `id, type, path, access_count, myelination, contexts,
	embedding, embedding_model, size_bytes, created_at, last_accessed_at, decayed_at`

// GetNeuron returns the neuron with the given identity, or nil if none.
func (t *Tx) GetNeuron(typ NeuronType, path string) (*Neuron, error) {
	rows, err := t.query(`SELECT `+neuronColumns+` FROM neurons WHERE type = ? AND path = ?`, typ, path)
	if err != nil {
		return nil, fmt.Errorf("get neuron: %w", err)
	}
	return firstNeuron(rows)
}

// GetNeuronByID returns the neuron with the given id, or nil if none.
func (t *Tx) GetNeuronByID(id int64) (*Neuron, error) {
	rows, err := t.query(`SELECT `+neuronColumns+` FROM neurons WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get neuron by id: %w", err)
	}
	return firstNeuron(rows)
}

// NeuronsByIDs loads the given neurons keyed by id. Missing ids are absent
// from the result.
func (t *Tx) NeuronsByIDs(ids []int64) (map[int64]Neuron, error) {
	out := make(map[int64]Neuron, len(ids))
	// Chunked to stay well under SQLite's bound parameter limit.
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := ids[start:end]
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		rows, err := t.query(`SELECT `+neuronColumns+` FROM neurons WHERE id IN (`+placeholders(len(part))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("neurons by ids: %w", err)
		}
		neurons, err := scanNeurons(rows)
		if err != nil {
			return nil, err
		}
		for _, n := range neurons {
			out[n.ID] = n
		}
	}
	return out, nil
}

// InsertNeuron creates n and sets n.ID.
func (t *Tx) InsertNeuron(n *Neuron) error {
	contexts, err := encodeContexts(n.Contexts)
	if err != nil {
		return err
	}
	res, err := t.exec(`
		INSERT INTO neurons (type, path, access_count, myelination, contexts,
			embedding, embedding_model, size_bytes, created_at, last_accessed_at, decayed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.Type, n.Path, n.AccessCount, n.Myelination, contexts,
		nullableEmbedding(n.Embedding), n.EmbeddingModel, n.SizeBytes,
		n.CreatedAt, n.LastAccessedAt, n.DecayedAt)
	if err != nil {
		return fmt.Errorf("insert neuron: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get neuron id: %w", err)
	}
	n.ID = id
	return nil
}

// UpdateNeuron writes every mutable field of n.
func (t *Tx) UpdateNeuron(n *Neuron) error {
	contexts, err := encodeContexts(n.Contexts)
	if err != nil {
		return err
	}
	_, err = t.exec(`
		UPDATE neurons SET access_count = ?, myelination = ?, contexts = ?,
			embedding = ?, embedding_model = ?, size_bytes = ?,
			last_accessed_at = ?, decayed_at = ?
		WHERE id = ?
	`, n.AccessCount, n.Myelination, contexts,
		nullableEmbedding(n.Embedding), n.EmbeddingModel, n.SizeBytes,
		n.LastAccessedAt, n.DecayedAt, n.ID)
	if err != nil {
		return fmt.Errorf("update neuron %d: %w", n.ID, err)
	}
	return nil
}

// SetMyelination updates only the myelination and decay marker of a neuron.
func (t *Tx) SetMyelination(id int64, m float64, decayedAt int64) error {
	_, err := t.exec(`UPDATE neurons SET myelination = ?, decayed_at = ? WHERE id = ?`, m, decayedAt, id)
	if err != nil {
		return fmt.Errorf("set myelination %d: %w", id, err)
	}
	return nil
}

// DeleteNeuron removes a neuron; its synapses and window entries cascade.
func (t *Tx) DeleteNeuron(id int64) error {
	if _, err := t.exec(`DELETE FROM neurons WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete neuron %d: %w", id, err)
	}
	return nil
}

// FindCandidates returns neurons whose path or context snippets contain any
// of the given lowercase terms, best matches first: identifiers containing
// phrase, then the number of terms matched, then myelination. An empty
// phrase skips the first criterion.
func (t *Tx) FindCandidates(phrase string, terms []string, typ NeuronType, limit int) ([]Neuron, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	var conds []string
	var termArgs []any
	for _, term := range terms {
		conds = append(conds, "(instr(lower(path), ?) > 0 OR instr(lower(contexts), ?) > 0)")
		termArgs = append(termArgs, term, term)
	}
	args := slices.Clone(termArgs)
	query := `SELECT ` + neuronColumns + ` FROM neurons WHERE (` + strings.Join(conds, " OR ") + `)`
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY`
	if phrase != "" {
		query += ` instr(lower(path), ?) > 0 DESC,`
		args = append(args, phrase)
	}
	// matched-term count
	query += ` (` + strings.Join(conds, " + ") + `) DESC, myelination DESC, last_accessed_at DESC, id ASC LIMIT ?`
	args = append(args, termArgs...)
	args = append(args, limit)

	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return scanNeurons(rows)
}

// EmbeddedNeurons returns neurons that carry an embedding. With limit > 0
// only the limit most myelinated are returned; otherwise all, in id order.
func (t *Tx) EmbeddedNeurons(typ NeuronType, limit int) ([]Neuron, error) {
	query := `SELECT ` + neuronColumns + ` FROM neurons WHERE embedding IS NOT NULL`
	var args []any
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	if limit > 0 {
		query += ` ORDER BY myelination DESC, last_accessed_at DESC, id ASC LIMIT ?`
		args = append(args, limit)
	} else {
		query += ` ORDER BY id`
	}
	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("embedded neurons: %w", err)
	}
	return scanNeurons(rows)
}

// ListNeurons returns neurons of the given type (all types if empty),
// ordered by id.
func (t *Tx) ListNeurons(typ NeuronType) ([]Neuron, error) {
	query := `SELECT ` + neuronColumns + ` FROM neurons`
	var args []any
	if typ != "" {
		query += ` WHERE type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY id`
	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list neurons: %w", err)
	}
	return scanNeurons(rows)
}

// TopNeurons returns neurons with myelination >= min, strongest first.
func (t *Tx) TopNeurons(min float64, limit int) ([]Neuron, error) {
	rows, err := t.query(`
		SELECT `+neuronColumns+` FROM neurons
		WHERE myelination >= ?
		ORDER BY myelination DESC, last_accessed_at DESC, id ASC
		LIMIT ?
	`, min, limit)
	if err != nil {
		return nil, fmt.Errorf("top neurons: %w", err)
	}
	return scanNeurons(rows)
}

// NeuronsWithoutEmbedding returns neurons lacking an embedding, oldest first.
func (t *Tx) NeuronsWithoutEmbedding(limit int) ([]Neuron, error) {
	rows, err := t.query(`
		SELECT `+neuronColumns+` FROM neurons
		WHERE embedding IS NULL
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("neurons without embedding: %w", err)
	}
	return scanNeurons(rows)
}

// SetEmbedding attaches a vector to the neuron with the given identity.
// It reports false when no such neuron exists.
func (t *Tx) SetEmbedding(typ NeuronType, path string, vec []float64, model string) (bool, error) {
	res, err := t.exec(`UPDATE neurons SET embedding = ?, embedding_model = ? WHERE type = ? AND path = ?`,
		nullableEmbedding(vec), model, typ, path)
	if err != nil {
		return false, fmt.Errorf("set embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set embedding: %w", err)
	}
	return n > 0, nil
}

// PruneOrphans deletes error and semantic neurons with no synapses that have
// not been accessed since before cutoff. Returns the number deleted.
func (t *Tx) PruneOrphans(cutoff int64) (int, error) {
	res, err := t.exec(`
		DELETE FROM neurons
		WHERE type IN ('error', 'semantic')
		  AND last_accessed_at < ?
		  AND NOT EXISTS (
		      SELECT 1 FROM synapses s
		      WHERE s.source_id = neurons.id OR s.target_id = neurons.id
		  )
		  AND NOT EXISTS (SELECT 1 FROM open_errors o WHERE o.error_id = neurons.id)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune orphans: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// NeuronCounts returns the number of neurons per type.
func (t *Tx) NeuronCounts() (map[NeuronType]int, error) {
	rows, err := t.query(`SELECT type, COUNT(*) FROM neurons GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("neuron counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[NeuronType]int, len(NeuronTypes))
	for rows.Next() {
		var typ NeuronType
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan neuron count: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// MyelinationSummary returns the mean myelination and the count of neurons
// at or above threshold.
func (t *Tx) MyelinationSummary(threshold float64) (avg float64, above int, err error) {
	err = t.queryRow(`
		SELECT COALESCE(AVG(myelination), 0),
		       COALESCE(SUM(CASE WHEN myelination >= ? THEN 1 ELSE 0 END), 0)
		FROM neurons
	`, threshold).Scan(&avg, &above)
	if err != nil {
		return 0, 0, fmt.Errorf("myelination summary: %w", err)
	}
	return avg, above, nil
}

// EmbeddingCounts returns the number of neurons with an embedding and the
// total number of neurons.
func (t *Tx) EmbeddingCounts() (embedded, total int, err error) {
	err = t.queryRow(`
		SELECT COALESCE(SUM(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END), 0), COUNT(*)
		FROM neurons
	`).Scan(&embedded, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("embedding counts: %w", err)
	}
	return embedded, total, nil
}

func firstNeuron(rows *sql.Rows) (*Neuron, error) {
	neurons, err := scanNeurons(rows)
	if err != nil {
		return nil, err
	}
	if len(neurons) == 0 {
		return nil, nil
	}
	return &neurons[0], nil
}

func scanNeurons(rows *sql.Rows) ([]Neuron, error) {
	defer rows.Close()

	var neurons []Neuron
	for rows.Next() {
		var n Neuron
		var contexts string
		var embedding []byte
		err := rows.Scan(&n.ID, &n.Type, &n.Path, &n.AccessCount, &n.Myelination, &contexts,
			&embedding, &n.EmbeddingModel, &n.SizeBytes, &n.CreatedAt, &n.LastAccessedAt, &n.DecayedAt)
		if err != nil {
			return nil, fmt.Errorf("scan neuron: %w", err)
		}
		if err := json.Unmarshal([]byte(contexts), &n.Contexts); err != nil {
			return nil, fmt.Errorf("decode contexts of neuron %d: %w", n.ID, err)
		}
		if n.Embedding, err = decodeVector(embedding); err != nil {
			return nil, fmt.Errorf("neuron %d: %w", n.ID, err)
		}
		neurons = append(neurons, n)
	}
	return neurons, rows.Err()
}

func encodeContexts(contexts []string) (string, error) {
	if contexts == nil {
		contexts = []string{}
	}
	b, err := json.Marshal(contexts)
	if err != nil {
		return "", fmt.Errorf("encode contexts: %w", err)
	}
	return string(b), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
