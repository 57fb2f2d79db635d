package ingest

import (
	"fmt"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// ExecutionEvent is the JSON structure for execution events, received
// via NATS or the bulk import endpoint. Monetary fields are decimal
// strings and are converted to fixed-point at this boundary.
type ExecutionEvent struct {
	ExecID      string `json:"exec_id"`
	OrderID     string `json:"order_id,omitempty"`
	AccountID   string `json:"account_id"`
	Exchange    string `json:"exchange"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	ExecType    string `json:"exec_type,omitempty"`
	OrderType   string `json:"order_type,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
	Cost        string `json:"cost,omitempty"`
	Commission  string `json:"commission,omitempty"`
	Timestamp   string `json:"timestamp"`

	// Exchange-specific extras, decoded by the adapter that produced
	// the event (optional).
	ReportedPnL *string `json:"reported_pnl,omitempty"`
	HedgeSide   string  `json:"hedge_side,omitempty"`
	Annotation  string  `json:"annotation,omitempty"`
}

// Validate checks that the execution event has all required fields and
// valid values.
func (e *ExecutionEvent) Validate() error {
	if e.ExecID == "" {
		return fmt.Errorf("missing required field: exec_id")
	}
	if e.AccountID == "" {
		return fmt.Errorf("missing required field: account_id")
	}
	if !domain.ValidExchange(domain.Exchange(e.Exchange)) {
		return fmt.Errorf("invalid exchange: %q (must be bitmex, binance, okx or bybit)", e.Exchange)
	}
	if e.Symbol == "" {
		return fmt.Errorf("missing required field: symbol")
	}
	if e.Side != "buy" && e.Side != "sell" {
		return fmt.Errorf("invalid side: %q (must be buy or sell)", e.Side)
	}
	if e.ExecType != "" && !domain.ValidExecType(domain.ExecType(e.ExecType)) {
		return fmt.Errorf("invalid exec_type: %q", e.ExecType)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("missing required field: timestamp")
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	qty, err := domain.ParseAmount(e.Quantity)
	if err != nil {
		return fmt.Errorf("invalid quantity: %w", err)
	}
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %s", e.Quantity)
	}

	execType := domain.ExecType(e.ExecType)
	if e.ExecType == "" || execType == domain.ExecTypeTrade {
		price, err := domain.ParseAmount(e.Price)
		if err != nil {
			return fmt.Errorf("invalid price: %w", err)
		}
		if price <= 0 {
			return fmt.Errorf("price must be positive, got %s", e.Price)
		}
	}
	return nil
}

// ToDomain converts an ExecutionEvent into a unified domain Execution.
func (e *ExecutionEvent) ToDomain() (*domain.Execution, error) {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}

	qty, err := domain.ParseAmount(e.Quantity)
	if err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}

	execType := domain.ExecType(e.ExecType)
	if e.ExecType == "" {
		execType = domain.ExecTypeTrade
	}

	var price domain.Amount
	if e.Price != "" {
		price, err = domain.ParseAmount(e.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
	}

	var cost domain.Amount
	if e.Cost != "" {
		cost, err = domain.ParseAmount(e.Cost)
		if err != nil {
			return nil, fmt.Errorf("parse cost: %w", err)
		}
	}

	var commission domain.Amount
	if e.Commission != "" {
		commission, err = domain.ParseAmount(e.Commission)
		if err != nil {
			return nil, fmt.Errorf("parse commission: %w", err)
		}
	}

	exchange := domain.Exchange(e.Exchange)
	exec := &domain.Execution{
		ExecID:        e.ExecID,
		OrderID:       e.OrderID,
		AccountID:     e.AccountID,
		Exchange:      exchange,
		Symbol:        e.Symbol,
		DisplaySymbol: domain.DisplaySymbol(exchange, e.Symbol),
		Side:          domain.Side(e.Side),
		Quantity:      qty,
		Price:         price,
		ExecType:      execType,
		OrderType:     domain.OrderType(e.OrderType),
		OrderStatus:   domain.OrderStatus(e.OrderStatus),
		Cost:          cost,
		Commission:    commission,
		Timestamp:     ts,
		IngestedAt:    time.Now().UTC(),
	}

	if e.ReportedPnL != nil || e.HedgeSide != "" || e.Annotation != "" {
		extra := &domain.ExchangeExtra{
			HedgeSide:  e.HedgeSide,
			Annotation: e.Annotation,
		}
		if e.ReportedPnL != nil {
			pnl, err := domain.ParseAmount(*e.ReportedPnL)
			if err != nil {
				return nil, fmt.Errorf("parse reported_pnl: %w", err)
			}
			extra.ReportedPnL = &pnl
		}
		exec.Extra = extra
	}

	return exec, nil
}
