package position

import (
	"testing"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

func TestRealizedOnClose(t *testing.T) {
	tests := []struct {
		name     string
		dir      domain.Direction
		entry    int64
		exit     int64
		qty      int64
		expected int64
	}{
		{"long profit", domain.DirectionLong, 100, 110, 2, 20},
		{"long loss", domain.DirectionLong, 100, 95, 2, -10},
		{"short profit", domain.DirectionShort, 100, 90, 3, 30},
		{"short loss", domain.DirectionShort, 100, 104, 1, -4},
		{"flat", domain.DirectionLong, 100, 100, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RealizedOnClose(tt.dir,
				domain.AmountFromInt(tt.entry),
				domain.AmountFromInt(tt.exit),
				domain.AmountFromInt(tt.qty))
			if got != domain.AmountFromInt(tt.expected) {
				t.Errorf("got %s, want %d", got, tt.expected)
			}
		})
	}
}

func TestRealizedOnClose_FractionalQuantity(t *testing.T) {
	half, _ := domain.ParseAmount("0.5")
	got := RealizedOnClose(domain.DirectionLong,
		domain.AmountFromInt(50000), domain.AmountFromInt(51000), half)
	if got != domain.AmountFromInt(500) {
		t.Errorf("got %s, want 500", got)
	}
}

func TestUnrealized(t *testing.T) {
	p := &domain.Position{
		Direction:     domain.DirectionLong,
		AvgEntryPrice: domain.AmountFromInt(100),
		OpenQuantity:  domain.AmountFromInt(2),
		Status:        domain.PositionStatusOpen,
	}
	if got := Unrealized(p, domain.AmountFromInt(107)); got != domain.AmountFromInt(14) {
		t.Errorf("got %s, want 14", got)
	}

	p.Status = domain.PositionStatusClosed
	if got := Unrealized(p, domain.AmountFromInt(107)); got != 0 {
		t.Errorf("closed position must have zero unrealized, got %s", got)
	}
}

func TestPositionMetrics(t *testing.T) {
	closedAt := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	exit := domain.AmountFromInt(110)
	p := domain.Position{
		Direction:     domain.DirectionLong,
		OpenedAt:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		ClosedAt:      &closedAt,
		AvgEntryPrice: domain.AmountFromInt(100),
		AvgExitPrice:  &exit,
		PeakQuantity:  domain.AmountFromInt(2),
		RealizedPnL:   domain.AmountFromInt(20),
		Fees:          domain.AmountFromInt(2),
		Status:        domain.PositionStatusClosed,
	}

	if got := p.Duration(); got != 4*time.Hour {
		t.Errorf("duration: got %s, want 4h", got)
	}
	// 20 / (2 * 100) = 0.1
	if got := p.ReturnOnPeakNotional(); got != 0.1 {
		t.Errorf("return on peak notional: got %f, want 0.1", got)
	}
	// 2 / |20| = 0.1
	if got := p.FeeDrag(); got != 0.1 {
		t.Errorf("fee drag: got %f, want 0.1", got)
	}
	if got := p.NetPnL(); got != domain.AmountFromInt(18) {
		t.Errorf("net pnl: got %s, want 18", got)
	}
}
