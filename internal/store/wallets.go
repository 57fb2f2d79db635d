package store

import (
	"context"
	"fmt"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// InsertWalletTransaction inserts a wallet movement idempotently.
// Returns true if inserted.
func (r *Repository) InsertWalletTransaction(ctx context.Context, tx *domain.WalletTransaction) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO voyage_wallet_txs (account_id, exchange, tx_id, currency, amount, kind, timestamp, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, exchange, tx_id) DO NOTHING
	`,
		tx.AccountID, string(tx.Exchange), tx.TxID, tx.Currency,
		int64(tx.Amount), tx.Kind, tx.Timestamp, tx.IngestedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert wallet transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListWalletTransactions returns wallet transactions for an account,
// newest first. Annotated with a running balance per currency as a pure
// fold over the chronological order.
func (r *Repository) ListWalletTransactions(ctx context.Context, accountID string) ([]WalletEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_id, exchange, tx_id, currency, amount, kind, timestamp, ingested_at
		FROM voyage_wallet_txs
		WHERE account_id = $1
		ORDER BY timestamp ASC, tx_id ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var entries []WalletEntry
	running := make(map[string]domain.Amount)
	for rows.Next() {
		var t domain.WalletTransaction
		var exchange string
		var amount int64
		err := rows.Scan(
			&t.AccountID, &exchange, &t.TxID, &t.Currency,
			&amount, &t.Kind, &t.Timestamp, &t.IngestedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		t.Exchange = domain.Exchange(exchange)
		t.Amount = domain.Amount(amount)
		running[t.Currency] += t.Amount
		entries = append(entries, WalletEntry{
			WalletTransaction: t,
			RunningBalance:    running[t.Currency],
		})
	}

	// newest first for display
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if entries == nil {
		entries = []WalletEntry{}
	}
	return entries, nil
}

// WalletEntry is a wallet transaction annotated with the running
// balance of its currency after the transaction applied.
type WalletEntry struct {
	domain.WalletTransaction
	RunningBalance domain.Amount `json:"running_balance"`
}
