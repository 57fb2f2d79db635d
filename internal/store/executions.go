package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// InsertExecution inserts an execution with ON CONFLICT DO NOTHING.
// Returns true if inserted.
func (r *Repository) InsertExecution(ctx context.Context, exec *domain.Execution) (bool, error) {
	var reportedPnL *int64
	hedgeSide := ""
	annotation := ""
	if exec.Extra != nil {
		if exec.Extra.ReportedPnL != nil {
			v := int64(*exec.Extra.ReportedPnL)
			reportedPnL = &v
		}
		hedgeSide = exec.Extra.HedgeSide
		annotation = exec.Extra.Annotation
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO voyage_executions (
			account_id, exchange, symbol, exec_id, order_id, display_symbol,
			side, quantity, price, exec_type, order_type, order_status,
			cost, commission, timestamp, reported_pnl, hedge_side, annotation, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (account_id, exchange, symbol, exec_id) DO NOTHING
	`,
		exec.AccountID, string(exec.Exchange), exec.Symbol, exec.ExecID,
		exec.OrderID, exec.DisplaySymbol, string(exec.Side),
		int64(exec.Quantity), int64(exec.Price), string(exec.ExecType),
		string(exec.OrderType), string(exec.OrderStatus),
		int64(exec.Cost), int64(exec.Commission), exec.Timestamp,
		reportedPnL, hedgeSide, annotation, exec.IngestedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert execution: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExecutionsForRebuild returns all executions for an account in
// (timestamp, exec_id) order, the order the reconstruction consumes.
func (r *Repository) ExecutionsForRebuild(ctx context.Context, accountID string) ([]domain.Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_id, exchange, symbol, exec_id, order_id, display_symbol,
			side, quantity, price, exec_type, order_type, order_status,
			cost, commission, timestamp, reported_pnl, hedge_side, annotation, ingested_at
		FROM voyage_executions
		WHERE account_id = $1
		ORDER BY timestamp ASC, exec_id ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// ExecutionFilter defines filters for listing executions.
type ExecutionFilter struct {
	Symbol   string
	Side     string
	ExecType string
	Start    *time.Time
	End      *time.Time
	Cursor   string
	Limit    int
}

// ExecutionListResult contains paginated execution results.
type ExecutionListResult struct {
	Executions []domain.Execution `json:"executions"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// ListExecutions returns executions for an account with filters and
// cursor-based pagination, newest first.
func (r *Repository) ListExecutions(ctx context.Context, accountID string, filter ExecutionFilter) (*ExecutionListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	var conditions []string
	var args []interface{}
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, accountID)
	argIdx++

	if filter.Symbol != "" {
		conditions = append(conditions, fmt.Sprintf("symbol = $%d", argIdx))
		args = append(args, filter.Symbol)
		argIdx++
	}
	if filter.Side != "" {
		conditions = append(conditions, fmt.Sprintf("side = $%d", argIdx))
		args = append(args, filter.Side)
		argIdx++
	}
	if filter.ExecType != "" {
		conditions = append(conditions, fmt.Sprintf("exec_type = $%d", argIdx))
		args = append(args, filter.ExecType)
		argIdx++
	}
	if filter.Start != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIdx))
		args = append(args, *filter.Start)
		argIdx++
	}
	if filter.End != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argIdx))
		args = append(args, *filter.End)
		argIdx++
	}

	// Cursor-based pagination: cursor is base64-encoded "timestamp|exec_id"
	if filter.Cursor != "" {
		cursorTS, cursorID, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		conditions = append(conditions, fmt.Sprintf(
			"(timestamp, exec_id) < ($%d, $%d)", argIdx, argIdx+1,
		))
		args = append(args, cursorTS, cursorID)
		argIdx += 2
	}

	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`
		SELECT account_id, exchange, symbol, exec_id, order_id, display_symbol,
			side, quantity, price, exec_type, order_type, order_status,
			cost, commission, timestamp, reported_pnl, hedge_side, annotation, ingested_at
		FROM voyage_executions
		WHERE %s
		ORDER BY timestamp DESC, exec_id DESC
		LIMIT $%d
	`, where, argIdx)
	args = append(args, filter.Limit+1) // fetch one extra to check if there's a next page

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	execs, err := scanExecutions(rows)
	if err != nil {
		return nil, err
	}

	result := &ExecutionListResult{}
	if len(execs) > filter.Limit {
		execs = execs[:filter.Limit]
		last := execs[len(execs)-1]
		result.NextCursor = encodeCursor(last.Timestamp, last.ExecID)
	}
	result.Executions = execs
	if result.Executions == nil {
		result.Executions = []domain.Execution{}
	}

	return result, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
}

func scanExecutions(rows rowScanner) ([]domain.Execution, error) {
	var execs []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var exchange, side, execType, orderType, orderStatus string
		var qty, price, cost, commission int64
		var reportedPnL *int64
		var hedgeSide, annotation string
		err := rows.Scan(
			&e.AccountID, &exchange, &e.Symbol, &e.ExecID, &e.OrderID,
			&e.DisplaySymbol, &side, &qty, &price, &execType,
			&orderType, &orderStatus, &cost, &commission, &e.Timestamp,
			&reportedPnL, &hedgeSide, &annotation, &e.IngestedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Exchange = domain.Exchange(exchange)
		e.Side = domain.Side(side)
		e.ExecType = domain.ExecType(execType)
		e.OrderType = domain.OrderType(orderType)
		e.OrderStatus = domain.OrderStatus(orderStatus)
		e.Quantity = domain.Amount(qty)
		e.Price = domain.Amount(price)
		e.Cost = domain.Amount(cost)
		e.Commission = domain.Amount(commission)
		if reportedPnL != nil || hedgeSide != "" || annotation != "" {
			extra := &domain.ExchangeExtra{HedgeSide: hedgeSide, Annotation: annotation}
			if reportedPnL != nil {
				v := domain.Amount(*reportedPnL)
				extra.ReportedPnL = &v
			}
			e.Extra = extra
		}
		execs = append(execs, e)
	}
	return execs, nil
}

func encodeCursor(ts time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", ts.Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode base64: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse timestamp: %w", err)
	}
	return ts, parts[1], nil
}
