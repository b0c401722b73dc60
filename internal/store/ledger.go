package store

import (
	"fmt"
)

// LedgerEntry records the token accounting of one recall.
type LedgerEntry struct {
	SessionID      string
	Query          string
	ResultCount    int
	BaselineTokens int64
	RecallTokens   int64
	CreatedAt      int64
}

// TokenTotals aggregates the whole ledger.
type TokenTotals struct {
	Recalls        int64
	BaselineTokens int64
	RecallTokens   int64
	TokensSaved    int64
}

// AppendLedger adds a recall to the ledger.
func (t *Tx) AppendLedger(e LedgerEntry) error {
	_, err := t.exec(`
		INSERT INTO recall_ledger (session_id, query, result_count, baseline_tokens, recall_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.SessionID, e.Query, e.ResultCount, e.BaselineTokens, e.RecallTokens, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// LedgerTotals sums the ledger. Savings never go negative per recall.
func (t *Tx) LedgerTotals() (TokenTotals, error) {
	var tt TokenTotals
	err := t.queryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(baseline_tokens), 0),
		       COALESCE(SUM(recall_tokens), 0),
		       COALESCE(SUM(max(baseline_tokens - recall_tokens, 0)), 0)
		FROM recall_ledger
	`).Scan(&tt.Recalls, &tt.BaselineTokens, &tt.RecallTokens, &tt.TokensSaved)
	if err != nil {
		return TokenTotals{}, fmt.Errorf("ledger totals: %w", err)
	}
	return tt, nil
}
