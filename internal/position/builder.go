// Package position reconstructs discrete trading positions from a
// time-ordered stream of unified executions and computes their realized
// PnL. A position is a contiguous flat-to-flat interval on one symbol
// with a fixed direction.
package position

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// ErrStateInvariant indicates the reconstruction reached a state that
// the algorithm should make impossible (double finalize, negative open
// quantity). It means the result set is corrupt and the whole run must
// be treated as failed.
var ErrStateInvariant = errors.New("position state invariant violated")

// Warning records an execution that was skipped or flagged during
// reconstruction. Warnings never abort a run.
type Warning struct {
	ExecID string `json:"exec_id"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Result is the output of one reconstruction run.
type Result struct {
	Positions []domain.Position `json:"positions"`
	Warnings  []Warning         `json:"warnings,omitempty"`
	// Unattributed holds non-trade executions (funding and the like)
	// that arrived while no position was open on their symbol.
	Unattributed []domain.Execution `json:"unattributed,omitempty"`
}

// builder tracks the reconstruction state for a single symbol.
type builder struct {
	res     Result
	cur     *domain.Position
	ordinal int

	// exit accumulation for the current position
	closedQty    domain.Amount
	exitNotional domain.Amount

	lastTS time.Time
}

// Build reconstructs positions for a single symbol. Input must be
// sorted ascending by timestamp with execution id as the tie-break key;
// out-of-order executions are skipped with a warning. Every accepted
// execution lands in exactly one position's constituent list (a fill
// that flips direction is split into two quantity parts sharing the
// same execution id).
func Build(execs []domain.Execution) (*Result, error) {
	b := &builder{}
	for i := range execs {
		if err := b.apply(execs[i]); err != nil {
			return nil, err
		}
	}
	if b.cur != nil {
		b.res.Positions = append(b.res.Positions, *b.cur)
	}
	return &b.res, nil
}

func (b *builder) warn(ex *domain.Execution, reason string) {
	b.res.Warnings = append(b.res.Warnings, Warning{
		ExecID: ex.ExecID,
		Symbol: ex.Symbol,
		Reason: reason,
	})
}

func (b *builder) apply(ex domain.Execution) error {
	if ex.Timestamp.IsZero() {
		b.warn(&ex, "missing timestamp")
		return nil
	}
	if ex.Timestamp.Before(b.lastTS) {
		b.warn(&ex, fmt.Sprintf("out of order: %s before %s",
			ex.Timestamp.Format(time.RFC3339), b.lastTS.Format(time.RFC3339)))
		return nil
	}
	b.lastTS = ex.Timestamp

	if ex.ExecType != domain.ExecTypeTrade {
		return b.applyNonTrade(ex)
	}

	if ex.Quantity <= 0 {
		b.warn(&ex, "non-positive quantity")
		return nil
	}
	if ex.Price <= 0 {
		b.warn(&ex, "missing price on trade execution")
		return nil
	}

	if b.cur == nil {
		b.open(ex)
		return nil
	}

	if sameDirection(b.cur.Direction, ex.Side) {
		return b.increase(ex)
	}
	return b.reduce(ex)
}

// applyNonTrade attaches funding and other non-trade executions to the
// currently open position; without one they are recorded unattributed.
func (b *builder) applyNonTrade(ex domain.Execution) error {
	if b.cur == nil {
		b.res.Unattributed = append(b.res.Unattributed, ex)
		return nil
	}
	b.cur.Executions = append(b.cur.Executions, ex)
	b.cur.Fees += ex.Commission
	if ex.ExecType == domain.ExecTypeFunding && ex.Cost != 0 {
		// Funding payments adjust PnL directly: Cost is signed,
		// positive when received.
		b.cur.RealizedPnL += ex.Cost
	}
	return nil
}

func (b *builder) open(ex domain.Execution) {
	dir := domain.DirectionLong
	if ex.Side == domain.SideSell {
		dir = domain.DirectionShort
	}
	b.ordinal++
	b.cur = &domain.Position{
		ID:            fmt.Sprintf("%s-%s-%d", ex.AccountID, ex.Symbol, b.ordinal),
		AccountID:     ex.AccountID,
		Exchange:      ex.Exchange,
		Symbol:        ex.Symbol,
		DisplaySymbol: ex.DisplaySymbol,
		Direction:     dir,
		OpenedAt:      ex.Timestamp,
		AvgEntryPrice: ex.Price,
		PeakQuantity:  ex.Quantity,
		OpenQuantity:  ex.Quantity,
		Fees:          ex.Commission,
		Status:        domain.PositionStatusOpen,
		Executions:    []domain.Execution{ex},
	}
	b.closedQty = 0
	b.exitNotional = 0
}

// increase adds same-direction exposure and reweights the entry average.
func (b *builder) increase(ex domain.Execution) error {
	p := b.cur
	p.AvgEntryPrice = domain.WeightedAvg(p.AvgEntryPrice, p.OpenQuantity, ex.Price, ex.Quantity)
	p.OpenQuantity += ex.Quantity
	if p.OpenQuantity > p.PeakQuantity {
		p.PeakQuantity = p.OpenQuantity
	}
	p.Fees += ex.Commission
	p.Executions = append(p.Executions, ex)
	return nil
}

// reduce closes part or all of the open quantity. A fill larger than the
// remaining exposure finalizes the position at zero and opens a new one
// in the opposite direction with the residual quantity, splitting the
// execution losslessly between the two.
func (b *builder) reduce(ex domain.Execution) error {
	p := b.cur
	closeQty := ex.Quantity
	if closeQty > p.OpenQuantity {
		closeQty = p.OpenQuantity
	}
	residualQty := ex.Quantity - closeQty

	closePart := ex
	closePart.Quantity = closeQty
	if residualQty > 0 {
		closePart.Commission = domain.SplitProportion(ex.Commission, closeQty, ex.Quantity)
		closePart.Cost = domain.SplitProportion(ex.Cost, closeQty, ex.Quantity)
	}

	pnl := RealizedOnClose(p.Direction, p.AvgEntryPrice, ex.Price, closeQty)
	if ex.Extra != nil && ex.Extra.ReportedPnL != nil && *ex.Extra.ReportedPnL != pnl {
		b.warn(&ex, fmt.Sprintf("exchange-reported pnl %s differs from computed %s",
			ex.Extra.ReportedPnL, pnl))
	}

	p.RealizedPnL += pnl
	p.Fees += closePart.Commission
	p.OpenQuantity -= closeQty
	b.closedQty += closeQty
	b.exitNotional += ex.Price.Mul(closeQty)
	p.Executions = append(p.Executions, closePart)

	if p.OpenQuantity < 0 {
		return fmt.Errorf("%w: open quantity went negative on %s", ErrStateInvariant, p.Symbol)
	}
	if p.OpenQuantity == 0 {
		if err := b.finalize(ex.Timestamp); err != nil {
			return err
		}
	}

	if residualQty > 0 {
		residual := ex
		residual.Quantity = residualQty
		residual.Commission = ex.Commission - closePart.Commission
		residual.Cost = ex.Cost - closePart.Cost
		b.open(residual)
	}
	return nil
}

// finalize seals the current position the instant its quantity returns
// to zero. Finalizing twice is a reconstruction bug.
func (b *builder) finalize(ts time.Time) error {
	p := b.cur
	if p.Status == domain.PositionStatusClosed {
		return fmt.Errorf("%w: position %s finalized twice", ErrStateInvariant, p.ID)
	}
	closedAt := ts
	p.ClosedAt = &closedAt
	avgExit := b.exitNotional.Div(b.closedQty)
	p.AvgExitPrice = &avgExit
	p.OpenQuantity = 0
	p.Status = domain.PositionStatusClosed
	b.res.Positions = append(b.res.Positions, *p)
	b.cur = nil
	b.closedQty = 0
	b.exitNotional = 0
	return nil
}

func sameDirection(dir domain.Direction, side domain.Side) bool {
	return (dir == domain.DirectionLong && side == domain.SideBuy) ||
		(dir == domain.DirectionShort && side == domain.SideSell)
}

// BuildAll groups a mixed-symbol execution list by symbol, sorts each
// group by (timestamp, exec id) and reconstructs every symbol. The
// merged result is ordered by open time, then symbol, so repeated runs
// over the same input are bit-identical.
func BuildAll(execs []domain.Execution) (*Result, error) {
	bySymbol := make(map[string][]domain.Execution)
	var symbols []string
	for i := range execs {
		sym := execs[i].Symbol
		if _, ok := bySymbol[sym]; !ok {
			symbols = append(symbols, sym)
		}
		bySymbol[sym] = append(bySymbol[sym], execs[i])
	}
	sort.Strings(symbols)

	merged := &Result{}
	for _, sym := range symbols {
		group := bySymbol[sym]
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].Timestamp.Equal(group[j].Timestamp) {
				return group[i].Timestamp.Before(group[j].Timestamp)
			}
			return group[i].ExecID < group[j].ExecID
		})
		res, err := Build(group)
		if err != nil {
			return nil, err
		}
		merged.Positions = append(merged.Positions, res.Positions...)
		merged.Warnings = append(merged.Warnings, res.Warnings...)
		merged.Unattributed = append(merged.Unattributed, res.Unattributed...)
	}

	sort.SliceStable(merged.Positions, func(i, j int) bool {
		if !merged.Positions[i].OpenedAt.Equal(merged.Positions[j].OpenedAt) {
			return merged.Positions[i].OpenedAt.Before(merged.Positions[j].OpenedAt)
		}
		return merged.Positions[i].Symbol < merged.Positions[j].Symbol
	})
	return merged, nil
}

// Replay recomputes a position's summary fields purely from its
// constituent executions. Used to audit that a reconstructed position
// is consistent with the fills it owns.
func Replay(p *domain.Position) (*domain.Position, error) {
	res, err := Build(p.Executions)
	if err != nil {
		return nil, err
	}
	if len(res.Positions) != 1 {
		return nil, fmt.Errorf("replay of %s produced %d positions, want 1", p.ID, len(res.Positions))
	}
	return &res.Positions[0], nil
}
