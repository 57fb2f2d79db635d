package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// GetOrCreateAccount looks up an account by ID. If it doesn't exist,
// creates it with the given exchange tag.
func (r *Repository) GetOrCreateAccount(ctx context.Context, id string, exchange domain.Exchange) (*domain.Account, error) {
	var acct domain.Account
	var exch string
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, exchange, created_at FROM voyage_accounts WHERE id = $1", id,
	).Scan(&acct.ID, &acct.Name, &exch, &acct.CreatedAt)

	if err == pgx.ErrNoRows {
		// Auto-create account
		name := id
		_, err := r.pool.Exec(ctx,
			"INSERT INTO voyage_accounts (id, name, exchange) VALUES ($1, $2, $3)",
			id, name, string(exchange),
		)
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}

		return r.GetOrCreateAccount(ctx, id, exchange)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	acct.Exchange = domain.Exchange(exch)
	return &acct, nil
}

// AccountExists checks if an account with the given ID exists.
func (r *Repository) AccountExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM voyage_accounts WHERE id = $1", id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return count > 0, nil
}

// ListAccounts returns all accounts.
func (r *Repository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, exchange, created_at FROM voyage_accounts ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acct domain.Account
		var exch string
		if err := rows.Scan(&acct.ID, &acct.Name, &exch, &acct.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acct.Exchange = domain.Exchange(exch)
		accounts = append(accounts, acct)
	}

	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}
