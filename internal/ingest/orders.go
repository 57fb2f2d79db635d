package ingest

import (
	"fmt"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// OrderEvent is the JSON structure for historical order records
// submitted through the bulk import endpoint.
type OrderEvent struct {
	OrderID      string `json:"order_id"`
	AccountID    string `json:"account_id"`
	Exchange     string `json:"exchange"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"order_type"`
	RequestedQty string `json:"requested_qty"`
	FilledQty    string `json:"filled_qty,omitempty"`
	AvgFillPrice string `json:"avg_fill_price,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Validate checks required order fields.
func (e *OrderEvent) Validate() error {
	if e.OrderID == "" {
		return fmt.Errorf("missing required field: order_id")
	}
	if e.AccountID == "" {
		return fmt.Errorf("missing required field: account_id")
	}
	if !domain.ValidExchange(domain.Exchange(e.Exchange)) {
		return fmt.Errorf("invalid exchange: %q", e.Exchange)
	}
	if e.Symbol == "" {
		return fmt.Errorf("missing required field: symbol")
	}
	if e.Side != "buy" && e.Side != "sell" {
		return fmt.Errorf("invalid side: %q (must be buy or sell)", e.Side)
	}
	if e.CreatedAt == "" {
		return fmt.Errorf("missing required field: created_at")
	}
	if _, err := time.Parse(time.RFC3339, e.CreatedAt); err != nil {
		return fmt.Errorf("invalid created_at: %w", err)
	}
	if _, err := domain.ParseAmount(e.RequestedQty); err != nil {
		return fmt.Errorf("invalid requested_qty: %w", err)
	}
	return nil
}

// ToDomain converts an OrderEvent to a domain Order.
func (e *OrderEvent) ToDomain() (*domain.Order, error) {
	createdAt, err := time.Parse(time.RFC3339, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt := createdAt
	if e.UpdatedAt != "" {
		updatedAt, err = time.Parse(time.RFC3339, e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
	}

	requested, err := domain.ParseAmount(e.RequestedQty)
	if err != nil {
		return nil, fmt.Errorf("parse requested_qty: %w", err)
	}

	var filled, avgFill domain.Amount
	if e.FilledQty != "" {
		filled, err = domain.ParseAmount(e.FilledQty)
		if err != nil {
			return nil, fmt.Errorf("parse filled_qty: %w", err)
		}
	}
	if e.AvgFillPrice != "" {
		avgFill, err = domain.ParseAmount(e.AvgFillPrice)
		if err != nil {
			return nil, fmt.Errorf("parse avg_fill_price: %w", err)
		}
	}

	return &domain.Order{
		OrderID:      e.OrderID,
		AccountID:    e.AccountID,
		Exchange:     domain.Exchange(e.Exchange),
		Symbol:       e.Symbol,
		Side:         domain.Side(e.Side),
		OrderType:    domain.OrderType(e.OrderType),
		RequestedQty: requested,
		FilledQty:    filled,
		AvgFillPrice: avgFill,
		Status:       domain.OrderStatus(e.Status),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// WalletEvent is the JSON structure for wallet movements submitted
// through the bulk import endpoint.
type WalletEvent struct {
	TxID      string `json:"tx_id"`
	AccountID string `json:"account_id"`
	Exchange  string `json:"exchange"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"` // signed decimal
	Kind      string `json:"kind,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Validate checks required wallet transaction fields.
func (e *WalletEvent) Validate() error {
	if e.TxID == "" {
		return fmt.Errorf("missing required field: tx_id")
	}
	if e.AccountID == "" {
		return fmt.Errorf("missing required field: account_id")
	}
	if !domain.ValidExchange(domain.Exchange(e.Exchange)) {
		return fmt.Errorf("invalid exchange: %q", e.Exchange)
	}
	if e.Currency == "" {
		return fmt.Errorf("missing required field: currency")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("missing required field: timestamp")
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if _, err := domain.ParseAmount(e.Amount); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	return nil
}

// ToDomain converts a WalletEvent to a domain WalletTransaction.
func (e *WalletEvent) ToDomain() (*domain.WalletTransaction, error) {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	amount, err := domain.ParseAmount(e.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &domain.WalletTransaction{
		TxID:       e.TxID,
		AccountID:  e.AccountID,
		Exchange:   domain.Exchange(e.Exchange),
		Currency:   e.Currency,
		Amount:     amount,
		Kind:       e.Kind,
		Timestamp:  ts,
		IngestedAt: time.Now().UTC(),
	}, nil
}
