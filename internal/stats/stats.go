// Package stats reduces a set of reconstructed positions into
// account-level performance statistics: win rate, profit factor,
// monthly PnL buckets and an equity curve. All outputs are derived
// projections, recomputed on demand and never persisted.
package stats

import (
	"sort"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
	"github.com/charles-chenzz/TradeVoyage/internal/position"
)

// ProfitFactorInfinite is the sentinel profit factor reported when an
// account has gross profit but zero gross loss. Kept finite and
// JSON-safe; a real profit factor is never negative.
const ProfitFactorInfinite = -1

// Summary aggregates closed-position performance for one account.
type Summary struct {
	TotalPositions int     `json:"total_positions"`
	OpenPositions  int     `json:"open_positions"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`

	GrossProfit  domain.Amount `json:"gross_profit"`
	GrossLoss    domain.Amount `json:"gross_loss"` // magnitude
	NetPnL       domain.Amount `json:"net_pnl"`
	TotalFees    domain.Amount `json:"total_fees"`
	ProfitFactor float64       `json:"profit_factor"`

	AverageWin  domain.Amount `json:"average_win"`
	AverageLoss domain.Amount `json:"average_loss"` // magnitude
	LargestWin  domain.Amount `json:"largest_win"`
	LargestLoss domain.Amount `json:"largest_loss"` // magnitude
}

// MonthlyBucket groups closed positions by the UTC calendar month of
// their close timestamp.
type MonthlyBucket struct {
	Month       string        `json:"month"` // "2026-01"
	Closed      int           `json:"closed"`
	RealizedPnL domain.Amount `json:"realized_pnl"`
	Wins        int           `json:"wins"`
	Losses      int           `json:"losses"`
}

// EquityPoint is one sample of the cumulative realized PnL curve.
// Unrealized points are provisional mark-to-market samples for open
// exposure and are excluded from the cumulative realized series.
type EquityPoint struct {
	Timestamp  time.Time     `json:"timestamp"`
	Equity     domain.Amount `json:"equity"`
	Unrealized bool          `json:"unrealized,omitempty"`
}

// Summarize reduces positions to a Summary. Open positions only count
// toward the totals; wins, losses and PnL aggregates cover closed
// positions. Division-by-zero edges are defined values, not errors:
// no closed positions means win rate 0 and profit factor 0.
func Summarize(positions []domain.Position) Summary {
	var s Summary
	s.TotalPositions = len(positions)

	for i := range positions {
		p := &positions[i]
		s.TotalFees += p.Fees
		if p.IsOpen() {
			s.OpenPositions++
			continue
		}

		pnl := p.RealizedPnL
		s.NetPnL += pnl - p.Fees
		switch {
		case pnl > 0:
			s.Wins++
			s.GrossProfit += pnl
			if pnl > s.LargestWin {
				s.LargestWin = pnl
			}
		case pnl < 0:
			s.Losses++
			loss := pnl.Abs()
			s.GrossLoss += loss
			if loss > s.LargestLoss {
				s.LargestLoss = loss
			}
		}
	}

	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided)
	}
	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit.Float64() / s.GrossLoss.Float64()
	case s.GrossProfit > 0:
		s.ProfitFactor = ProfitFactorInfinite
	}
	if s.Wins > 0 {
		s.AverageWin = s.GrossProfit / domain.Amount(s.Wins)
	}
	if s.Losses > 0 {
		s.AverageLoss = s.GrossLoss / domain.Amount(s.Losses)
	}
	return s
}

// MonthlyBuckets rolls closed positions up by close month (UTC),
// returning buckets in chronological order. Months without closes are
// omitted.
func MonthlyBuckets(positions []domain.Position) []MonthlyBucket {
	byMonth := make(map[string]*MonthlyBucket)
	for i := range positions {
		p := &positions[i]
		if p.ClosedAt == nil {
			continue
		}
		key := p.ClosedAt.UTC().Format("2006-01")
		b, ok := byMonth[key]
		if !ok {
			b = &MonthlyBucket{Month: key}
			byMonth[key] = b
		}
		b.Closed++
		b.RealizedPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			b.Wins++
		} else if p.RealizedPnL < 0 {
			b.Losses++
		}
	}

	buckets := make([]MonthlyBucket, 0, len(byMonth))
	for _, b := range byMonth {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Month < buckets[j].Month })
	return buckets
}

// EquityCurve samples cumulative realized PnL at every position close,
// in close-timestamp order. When marks contains a current price for an
// open position's symbol, one provisional point at now is appended with
// the mark-to-market value of the open exposure added on top of the
// last realized sample; it is flagged Unrealized and does not extend
// the realized series.
func EquityCurve(positions []domain.Position, marks map[string]domain.Amount, now time.Time) []EquityPoint {
	closed := make([]*domain.Position, 0, len(positions))
	var open []*domain.Position
	for i := range positions {
		if positions[i].ClosedAt != nil {
			closed = append(closed, &positions[i])
		} else {
			open = append(open, &positions[i])
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(*closed[j].ClosedAt)
	})

	points := make([]EquityPoint, 0, len(closed)+1)
	var cum domain.Amount
	for _, p := range closed {
		cum += p.RealizedPnL
		points = append(points, EquityPoint{Timestamp: *p.ClosedAt, Equity: cum})
	}

	var unrealized domain.Amount
	marked := false
	for _, p := range open {
		mark, ok := marks[p.Symbol]
		if !ok {
			continue
		}
		unrealized += position.Unrealized(p, mark)
		marked = true
	}
	if marked {
		points = append(points, EquityPoint{
			Timestamp:  now,
			Equity:     cum + unrealized,
			Unrealized: true,
		})
	}
	return points
}
