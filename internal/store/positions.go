package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
	"github.com/charles-chenzz/TradeVoyage/internal/position"
)

// ReplacePositions atomically swaps an account's reconstructed
// positions for the output of a fresh rebuild run and records the run
// with its data warnings. Positions are a derived projection of the
// execution history, so replacement is always safe.
func (r *Repository) ReplacePositions(ctx context.Context, accountID string, startedAt time.Time, res *position.Result) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM voyage_positions WHERE account_id = $1", accountID,
	); err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}

	for i := range res.Positions {
		p := &res.Positions[i]
		execIDs := make([]string, 0, len(p.Executions))
		for j := range p.Executions {
			execIDs = append(execIDs, p.Executions[j].ExecID)
		}

		var avgExit *int64
		if p.AvgExitPrice != nil {
			v := int64(*p.AvgExitPrice)
			avgExit = &v
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO voyage_positions (id, account_id, exchange, symbol, display_symbol,
				direction, opened_at, closed_at, avg_entry_price, avg_exit_price,
				peak_qty, open_qty, realized_pnl, fees, status, execution_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`,
			p.ID, accountID, string(p.Exchange), p.Symbol, p.DisplaySymbol,
			string(p.Direction), p.OpenedAt, p.ClosedAt,
			int64(p.AvgEntryPrice), avgExit,
			int64(p.PeakQuantity), int64(p.OpenQuantity),
			int64(p.RealizedPnL), int64(p.Fees), string(p.Status), execIDs,
		); err != nil {
			return fmt.Errorf("insert position %s: %w", p.ID, err)
		}
	}

	var runID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO voyage_rebuild_runs (account_id, started_at, status, warning_count)
		VALUES ($1, $2, 'ok', $3)
		RETURNING id
	`, accountID, startedAt, len(res.Warnings)).Scan(&runID); err != nil {
		return fmt.Errorf("record rebuild run: %w", err)
	}

	for _, w := range res.Warnings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO voyage_run_warnings (run_id, exec_id, symbol, reason)
			VALUES ($1, $2, $3, $4)
		`, runID, w.ExecID, w.Symbol, w.Reason); err != nil {
			return fmt.Errorf("record run warning: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecordFailedRun records a rebuild run that ended in a hard failure.
// No positions are touched; the previous projection stays visible.
func (r *Repository) RecordFailedRun(ctx context.Context, accountID string, startedAt time.Time, runErr error) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO voyage_rebuild_runs (account_id, started_at, status)
		VALUES ($1, $2, $3)
	`, accountID, startedAt, "failed: "+runErr.Error())
	if err != nil {
		return fmt.Errorf("record failed run: %w", err)
	}
	return nil
}

// ListPositions returns positions for an account with optional status
// filter, newest first.
func (r *Repository) ListPositions(ctx context.Context, accountID string, status string) ([]domain.Position, error) {
	var query string
	var args []interface{}

	if status == "" || status == "all" {
		query = `
			SELECT id, account_id, exchange, symbol, display_symbol, direction,
				opened_at, closed_at, avg_entry_price, avg_exit_price,
				peak_qty, open_qty, realized_pnl, fees, status
			FROM voyage_positions
			WHERE account_id = $1
			ORDER BY opened_at DESC, id DESC
		`
		args = []interface{}{accountID}
	} else {
		query = `
			SELECT id, account_id, exchange, symbol, display_symbol, direction,
				opened_at, closed_at, avg_entry_price, avg_exit_price,
				peak_qty, open_qty, realized_pnl, fees, status
			FROM voyage_positions
			WHERE account_id = $1 AND status = $2
			ORDER BY opened_at DESC, id DESC
		`
		args = []interface{}{accountID, status}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var exchange, direction, statusStr string
		var avgEntry, peakQty, openQty, realizedPnL, fees int64
		var avgExit *int64
		err := rows.Scan(
			&p.ID, &p.AccountID, &exchange, &p.Symbol, &p.DisplaySymbol,
			&direction, &p.OpenedAt, &p.ClosedAt, &avgEntry, &avgExit,
			&peakQty, &openQty, &realizedPnL, &fees, &statusStr,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Exchange = domain.Exchange(exchange)
		p.Direction = domain.Direction(direction)
		p.Status = domain.PositionStatus(statusStr)
		p.AvgEntryPrice = domain.Amount(avgEntry)
		if avgExit != nil {
			v := domain.Amount(*avgExit)
			p.AvgExitPrice = &v
		}
		p.PeakQuantity = domain.Amount(peakQty)
		p.OpenQuantity = domain.Amount(openQty)
		p.RealizedPnL = domain.Amount(realizedPnL)
		p.Fees = domain.Amount(fees)
		positions = append(positions, p)
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	return positions, nil
}

// RunWarning is one persisted data warning from a rebuild run.
type RunWarning struct {
	ExecID string `json:"exec_id"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunReport describes the most recent rebuild run for an account.
type RunReport struct {
	RunID      int64        `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Status     string       `json:"status"`
	Warnings   []RunWarning `json:"warnings"`
}

// LastRunReport returns the latest rebuild run and its warnings, or nil
// when the account has never been rebuilt.
func (r *Repository) LastRunReport(ctx context.Context, accountID string) (*RunReport, error) {
	var rep RunReport
	err := r.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, status
		FROM voyage_rebuild_runs
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, accountID).Scan(&rep.RunID, &rep.StartedAt, &rep.FinishedAt, &rep.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT exec_id, symbol, reason FROM voyage_run_warnings WHERE run_id = $1
	`, rep.RunID)
	if err != nil {
		return nil, fmt.Errorf("query run warnings: %w", err)
	}
	defer rows.Close()

	rep.Warnings = []RunWarning{}
	for rows.Next() {
		var w RunWarning
		if err := rows.Scan(&w.ExecID, &w.Symbol, &w.Reason); err != nil {
			return nil, fmt.Errorf("scan run warning: %w", err)
		}
		rep.Warnings = append(rep.Warnings, w)
	}
	return &rep, nil
}
