package position

import (
	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

// RealizedOnClose returns the PnL locked in by closing closeQty at
// exitPrice against the entry average, for the given direction.
// Long: (exit - entry) * qty. Short: (entry - exit) * qty.
func RealizedOnClose(dir domain.Direction, entryAvg, exitPrice, closeQty domain.Amount) domain.Amount {
	if dir == domain.DirectionLong {
		return (exitPrice - entryAvg).Mul(closeQty)
	}
	return (entryAvg - exitPrice).Mul(closeQty)
}

// Unrealized returns the mark-to-market PnL of an open position at the
// given mark price. Zero for closed positions.
func Unrealized(p *domain.Position, mark domain.Amount) domain.Amount {
	if !p.IsOpen() || p.OpenQuantity == 0 {
		return 0
	}
	return RealizedOnClose(p.Direction, p.AvgEntryPrice, mark, p.OpenQuantity)
}
