package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// WindowEntry is a neuron recently recorded in a session.
type WindowEntry struct {
	NeuronID   int64
	Seq        int64
	RecordedAt int64
}

// RecentWindow returns the session's window entries recorded at or after
// since, most recent first.
func (t *Tx) RecentWindow(sessionID string, since int64, limit int) ([]WindowEntry, error) {
	rows, err := t.query(`
		SELECT neuron_id, seq, recorded_at FROM session_window
		WHERE session_id = ? AND recorded_at >= ?
		ORDER BY seq DESC
		LIMIT ?
	`, sessionID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	defer rows.Close()

	var out []WindowEntry
	for rows.Next() {
		var e WindowEntry
		if err := rows.Scan(&e.NeuronID, &e.Seq, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan window entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PushWindow moves neuronID to the front of the session window and trims
// the window to size entries. Entries older than expireBefore are dropped
// for every session.
func (t *Tx) PushWindow(sessionID string, neuronID, now int64, size int, expireBefore int64) error {
	_, err := t.exec(`
		INSERT INTO session_window (session_id, neuron_id, seq, recorded_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM session_window WHERE session_id = ?), ?)
		ON CONFLICT(session_id, neuron_id) DO UPDATE SET
			seq = excluded.seq,
			recorded_at = excluded.recorded_at
	`, sessionID, neuronID, sessionID, now)
	if err != nil {
		return fmt.Errorf("push window: %w", err)
	}

	_, err = t.exec(`
		DELETE FROM session_window
		WHERE session_id = ? AND neuron_id NOT IN (
			SELECT neuron_id FROM session_window WHERE session_id = ?
			ORDER BY seq DESC LIMIT ?
		)
	`, sessionID, sessionID, size)
	if err != nil {
		return fmt.Errorf("trim window: %w", err)
	}

	if _, err := t.exec(`DELETE FROM session_window WHERE recorded_at < ?`, expireBefore); err != nil {
		return fmt.Errorf("expire window: %w", err)
	}
	return nil
}

// OpenError marks errorID as unresolved in the session. Reopening keeps the
// original opened_at.
func (t *Tx) OpenError(sessionID string, errorID, now int64) error {
	_, err := t.exec(`
		INSERT INTO open_errors (session_id, error_id, opened_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id, error_id) DO NOTHING
	`, sessionID, errorID, now)
	if err != nil {
		return fmt.Errorf("open error: %w", err)
	}
	return nil
}

// TrailOpenErrors notes that neuronID was touched while the session's
// errors were open.
func (t *Tx) TrailOpenErrors(sessionID string, neuronID int64) error {
	_, err := t.exec(`
		INSERT OR IGNORE INTO error_trail (session_id, error_id, neuron_id)
		SELECT session_id, error_id, ? FROM open_errors
		WHERE session_id = ? AND error_id <> ?
	`, neuronID, sessionID, neuronID)
	if err != nil {
		return fmt.Errorf("trail open errors: %w", err)
	}
	return nil
}

// ErrorTrail returns the neurons touched while errorID was open, in id order.
func (t *Tx) ErrorTrail(sessionID string, errorID int64) ([]int64, error) {
	rows, err := t.query(`
		SELECT neuron_id FROM error_trail
		WHERE session_id = ? AND error_id = ?
		ORDER BY neuron_id
	`, sessionID, errorID)
	if err != nil {
		return nil, fmt.Errorf("error trail: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error trail: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CloseError clears the open marker and trail of errorID in the session.
func (t *Tx) CloseError(sessionID string, errorID int64) error {
	if _, err := t.exec(`DELETE FROM open_errors WHERE session_id = ? AND error_id = ?`, sessionID, errorID); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	if _, err := t.exec(`DELETE FROM error_trail WHERE session_id = ? AND error_id = ?`, sessionID, errorID); err != nil {
		return fmt.Errorf("clear error trail: %w", err)
	}
	return nil
}

// ExpireOpenErrors drops open markers (and their trails) opened before cutoff.
func (t *Tx) ExpireOpenErrors(cutoff int64) (int, error) {
	_, err := t.exec(`
		DELETE FROM error_trail WHERE EXISTS (
			SELECT 1 FROM open_errors o
			WHERE o.session_id = error_trail.session_id
			  AND o.error_id = error_trail.error_id
			  AND o.opened_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire error trails: %w", err)
	}
	res, err := t.exec(`DELETE FROM open_errors WHERE opened_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire open errors: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ExpireWindows drops window entries recorded before cutoff in every session.
func (t *Tx) ExpireWindows(cutoff int64) error {
	if _, err := t.exec(`DELETE FROM session_window WHERE recorded_at < ?`, cutoff); err != nil {
		return fmt.Errorf("expire windows: %w", err)
	}
	return nil
}
