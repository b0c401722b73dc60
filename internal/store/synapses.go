package store

import (
	"database/sql"
	"fmt"
)

// Synapse is a weighted association between two neurons. Undirected
// synapses are stored once with SourceID < TargetID.
type Synapse struct {
	SourceID          int64   `json:"source_id"`
	TargetID          int64   `json:"target_id"`
	Weight            float64 `json:"weight"`
	CoActivationCount int     `json:"co_activation_count"`
	CreatedAt         int64   `json:"created_at"`
	LastReinforcedAt  int64   `json:"last_reinforced_at"`
	DecayedAt         int64   `json:"-"`
}

// Neighbor is one hop away from a neuron.
type Neighbor struct {
	ID     int64
	Weight float64
}

const synapseColumns = `source_id, target_id, weight, co_activation_count, created_at, last_reinforced_at, decayed_at`

// GetSynapse returns the synapse stored under exactly (src, tgt), or nil.
func (t *Tx) GetSynapse(src, tgt int64) (*Synapse, error) {
	var s Synapse
	err := t.queryRow(`SELECT `+synapseColumns+` FROM synapses WHERE source_id = ? AND target_id = ?`, src, tgt).
		Scan(&s.SourceID, &s.TargetID, &s.Weight, &s.CoActivationCount, &s.CreatedAt, &s.LastReinforcedAt, &s.DecayedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get synapse: %w", err)
	}
	return &s, nil
}

// ReinforceSynapse applies w += rate*(1-w) to (src, tgt), creating it with
// weight = rate when absent. It reports whether the synapse was created.
func (t *Tx) ReinforceSynapse(src, tgt int64, rate float64, now int64) (Synapse, bool, error) {
	s := Synapse{SourceID: src, TargetID: tgt}
	err := t.queryRow(`
		INSERT INTO synapses (source_id, target_id, weight, co_activation_count, created_at, last_reinforced_at, decayed_at)
		VALUES (?, ?, min(1.0, ?), 1, ?, ?, ?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET
			weight = min(1.0, weight + ? * (1.0 - weight)),
			co_activation_count = co_activation_count + 1,
			last_reinforced_at = excluded.last_reinforced_at,
			decayed_at = excluded.decayed_at
		RETURNING weight, co_activation_count, created_at, last_reinforced_at, decayed_at
	`, src, tgt, rate, now, now, now, rate).
		Scan(&s.Weight, &s.CoActivationCount, &s.CreatedAt, &s.LastReinforcedAt, &s.DecayedAt)
	if err != nil {
		return Synapse{}, false, fmt.Errorf("reinforce synapse %d-%d: %w", src, tgt, err)
	}
	return s, s.CoActivationCount == 1, nil
}

// MergeSynapse inserts s, or folds it into an existing synapse keeping the
// larger weight and summing co-activation counts.
func (t *Tx) MergeSynapse(s Synapse) error {
	_, err := t.exec(`
		INSERT INTO synapses (source_id, target_id, weight, co_activation_count, created_at, last_reinforced_at, decayed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET
			weight = max(weight, excluded.weight),
			co_activation_count = co_activation_count + excluded.co_activation_count,
			created_at = min(created_at, excluded.created_at),
			last_reinforced_at = max(last_reinforced_at, excluded.last_reinforced_at),
			decayed_at = max(decayed_at, excluded.decayed_at)
	`, s.SourceID, s.TargetID, s.Weight, s.CoActivationCount, s.CreatedAt, s.LastReinforcedAt, s.DecayedAt)
	if err != nil {
		return fmt.Errorf("merge synapse %d-%d: %w", s.SourceID, s.TargetID, err)
	}
	return nil
}

// SetSynapseWeight overwrites the weight of (src, tgt) and stamps decayedAt.
func (t *Tx) SetSynapseWeight(src, tgt int64, w float64, decayedAt int64) error {
	_, err := t.exec(`UPDATE synapses SET weight = ?, decayed_at = ? WHERE source_id = ? AND target_id = ?`,
		w, decayedAt, src, tgt)
	if err != nil {
		return fmt.Errorf("set synapse weight %d-%d: %w", src, tgt, err)
	}
	return nil
}

// Neighbors returns up to limit neighbors of id, heaviest first. Directed
// graphs only follow outgoing synapses.
func (t *Tx) Neighbors(id int64, directed bool, limit int) ([]Neighbor, error) {
	query := `
		SELECT target_id AS neighbor_id, weight FROM synapses WHERE source_id = ?
		UNION ALL
		SELECT source_id AS neighbor_id, weight FROM synapses WHERE target_id = ?
		ORDER BY weight DESC, neighbor_id ASC
		LIMIT ?`
	args := []any{id, id, limit}
	if directed {
		query = `
		SELECT target_id AS neighbor_id, weight FROM synapses WHERE source_id = ?
		ORDER BY weight DESC, neighbor_id ASC
		LIMIT ?`
		args = []any{id, limit}
	}

	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %d: %w", id, err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ID, &n.Weight); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SynapsesOf returns every synapse touching id.
func (t *Tx) SynapsesOf(id int64) ([]Synapse, error) {
	rows, err := t.query(`
		SELECT `+synapseColumns+` FROM synapses
		WHERE source_id = ? OR target_id = ?
		ORDER BY source_id, target_id
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("synapses of %d: %w", id, err)
	}
	return scanSynapses(rows)
}

// ListSynapses returns every synapse with weight >= minWeight in key order.
func (t *Tx) ListSynapses(minWeight float64) ([]Synapse, error) {
	rows, err := t.query(`
		SELECT `+synapseColumns+` FROM synapses
		WHERE weight >= ?
		ORDER BY source_id, target_id
	`, minWeight)
	if err != nil {
		return nil, fmt.Errorf("list synapses: %w", err)
	}
	return scanSynapses(rows)
}

// PruneSynapses deletes synapses lighter than epsilon.
func (t *Tx) PruneSynapses(epsilon float64) (int, error) {
	res, err := t.exec(`DELETE FROM synapses WHERE weight < ?`, epsilon)
	if err != nil {
		return 0, fmt.Errorf("prune synapses: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SynapseSummary returns the synapse count and mean weight.
func (t *Tx) SynapseSummary() (count int, avg float64, err error) {
	err = t.queryRow(`SELECT COUNT(*), COALESCE(AVG(weight), 0) FROM synapses`).Scan(&count, &avg)
	if err != nil {
		return 0, 0, fmt.Errorf("synapse summary: %w", err)
	}
	return count, avg, nil
}

func scanSynapses(rows *sql.Rows) ([]Synapse, error) {
	defer rows.Close()

	var out []Synapse
	for rows.Next() {
		var s Synapse
		if err := rows.Scan(&s.SourceID, &s.TargetID, &s.Weight, &s.CoActivationCount,
			&s.CreatedAt, &s.LastReinforcedAt, &s.DecayedAt); err != nil {
			return nil, fmt.Errorf("scan synapse: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
