package domain

import (
	"time"
)

// Exchange identifies one of the supported centralized exchanges.
type Exchange string

const (
	ExchangeBitmex  Exchange = "bitmex"
	ExchangeBinance Exchange = "binance"
	ExchangeOKX     Exchange = "okx"
	ExchangeBybit   Exchange = "bybit"
)

// ValidExchange reports whether e is one of the supported exchanges.
func ValidExchange(e Exchange) bool {
	switch e {
	case ExchangeBitmex, ExchangeBinance, ExchangeOKX, ExchangeBybit:
		return true
	}
	return false
}

// Side represents the execution direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Direction represents the direction of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ExecType classifies an execution record.
type ExecType string

const (
	ExecTypeTrade      ExecType = "trade"
	ExecTypeFunding    ExecType = "funding"
	ExecTypeSettlement ExecType = "settlement"
	ExecTypeTransfer   ExecType = "transfer"
)

// ValidExecType reports whether t is a known execution type.
func ValidExecType(t ExecType) bool {
	switch t {
	case ExecTypeTrade, ExecTypeFunding, ExecTypeSettlement, ExecTypeTransfer:
		return true
	}
	return false
}

// PositionStatus represents the status of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Account represents one exchange account whose history is tracked.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Exchange  Exchange  `json:"exchange"`
	CreatedAt time.Time `json:"created_at"`
}

// ExchangeExtra carries exchange-specific fields some adapters attach to
// an execution. Decoded once at the adapter boundary; the reconstruction
// engine treats them as diagnostics only.
type ExchangeExtra struct {
	// ReportedPnL is the realized PnL the exchange itself computed for
	// this fill, when the exchange provides one. Never the source of
	// truth; the engine's own computation wins.
	ReportedPnL *Amount `json:"reported_pnl,omitempty"`
	// HedgeSide is the position side for hedge-mode accounts.
	HedgeSide string `json:"hedge_side,omitempty"`
	// Annotation preserves the raw free-text blob for debugging.
	Annotation string `json:"annotation,omitempty"`
}

// Execution is the unified representation of one fill, normalized from
// whichever exchange schema it originated in. Quantity is always
// positive; the direction comes from Side.
type Execution struct {
	ExecID        string         `json:"exec_id"`
	OrderID       string         `json:"order_id"`
	AccountID     string         `json:"account_id"`
	Exchange      Exchange       `json:"exchange"`
	Symbol        string         `json:"symbol"`
	DisplaySymbol string         `json:"display_symbol"`
	Side          Side           `json:"side"`
	Quantity      Amount         `json:"quantity"`
	Price         Amount         `json:"price"`
	ExecType      ExecType       `json:"exec_type"`
	OrderType     OrderType      `json:"order_type,omitempty"`
	OrderStatus   OrderStatus    `json:"order_status,omitempty"`
	Cost          Amount         `json:"cost"`
	Commission    Amount         `json:"commission"`
	Timestamp     time.Time      `json:"timestamp"`
	Extra         *ExchangeExtra `json:"extra,omitempty"`
	IngestedAt    time.Time      `json:"ingested_at,omitempty"`
}

// Position is a reconstructed trading session on one symbol: a
// contiguous, direction-fixed interval from flat to flat. It exclusively
// owns its constituent executions; summary fields are recomputable by
// replaying them.
type Position struct {
	ID            string         `json:"id"`
	AccountID     string         `json:"account_id"`
	Exchange      Exchange       `json:"exchange"`
	Symbol        string         `json:"symbol"`
	DisplaySymbol string         `json:"display_symbol"`
	Direction     Direction      `json:"direction"`
	OpenedAt      time.Time      `json:"opened_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
	AvgEntryPrice Amount         `json:"avg_entry_price"`
	AvgExitPrice  *Amount        `json:"avg_exit_price,omitempty"`
	PeakQuantity  Amount         `json:"peak_quantity"`
	OpenQuantity  Amount         `json:"open_quantity"` // 0 once fully closed
	RealizedPnL   Amount         `json:"realized_pnl"`  // gross of fees
	Fees          Amount         `json:"fees"`
	Status        PositionStatus `json:"status"`
	Executions    []Execution    `json:"executions,omitempty"`
}

// IsOpen reports whether the position still has exposure.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// NetPnL returns realized PnL after fees.
func (p *Position) NetPnL() Amount {
	return p.RealizedPnL - p.Fees
}

// Duration returns the holding time. Zero while the position is open.
func (p *Position) Duration() time.Duration {
	if p.ClosedAt == nil {
		return 0
	}
	return p.ClosedAt.Sub(p.OpenedAt)
}

// ReturnOnPeakNotional returns realized PnL divided by the position's
// peak notional (peak quantity at average entry). Zero when the peak
// notional is zero.
func (p *Position) ReturnOnPeakNotional() float64 {
	notional := p.PeakQuantity.Mul(p.AvgEntryPrice)
	if notional == 0 {
		return 0
	}
	return p.RealizedPnL.Float64() / notional.Float64()
}

// FeeDrag returns total fees over the magnitude of gross realized PnL.
// Zero when there is no realized PnL.
func (p *Position) FeeDrag() float64 {
	gross := p.RealizedPnL.Abs()
	if gross == 0 {
		return 0
	}
	return p.Fees.Float64() / gross.Float64()
}

// Order represents a historical exchange order.
type Order struct {
	OrderID      string      `json:"order_id"`
	AccountID    string      `json:"account_id"`
	Exchange     Exchange    `json:"exchange"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	OrderType    OrderType   `json:"order_type"`
	RequestedQty Amount      `json:"requested_qty"`
	FilledQty    Amount      `json:"filled_qty"`
	AvgFillPrice Amount      `json:"avg_fill_price"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// WalletTransaction represents a deposit, withdrawal or other wallet
// movement on an exchange account. Stored for reporting; never feeds the
// position reconstruction.
type WalletTransaction struct {
	TxID       string    `json:"tx_id"`
	AccountID  string    `json:"account_id"`
	Exchange   Exchange  `json:"exchange"`
	Currency   string    `json:"currency"`
	Amount     Amount    `json:"amount"` // signed: deposits positive, withdrawals negative
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	IngestedAt time.Time `json:"ingested_at,omitempty"`
}
