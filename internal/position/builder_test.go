package position

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
)

var baseTS = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func fill(id string, side domain.Side, qty, price int64, offset time.Duration) domain.Execution {
	return domain.Execution{
		ExecID:    id,
		AccountID: "acct-1",
		Exchange:  domain.ExchangeBinance,
		Symbol:    "BTCUSDT",
		Side:      side,
		Quantity:  domain.AmountFromInt(qty),
		Price:     domain.AmountFromInt(price),
		ExecType:  domain.ExecTypeTrade,
		Timestamp: baseTS.Add(offset),
	}
}

func TestBuild_SimpleRoundTrip(t *testing.T) {
	// Buy 1 @ 100, Sell 1 @ 110 => one closed long, PnL +10
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		fill("e2", domain.SideSell, 1, 110, time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(res.Positions))
	}

	p := res.Positions[0]
	if p.Direction != domain.DirectionLong {
		t.Errorf("expected long, got %s", p.Direction)
	}
	if p.Status != domain.PositionStatusClosed {
		t.Errorf("expected closed, got %s", p.Status)
	}
	if p.AvgEntryPrice != domain.AmountFromInt(100) {
		t.Errorf("expected entry 100, got %s", p.AvgEntryPrice)
	}
	if p.AvgExitPrice == nil || *p.AvgExitPrice != domain.AmountFromInt(110) {
		t.Errorf("expected exit 110, got %v", p.AvgExitPrice)
	}
	if p.RealizedPnL != domain.AmountFromInt(10) {
		t.Errorf("expected pnl +10, got %s", p.RealizedPnL)
	}
	if p.OpenQuantity != 0 {
		t.Errorf("expected zero open quantity, got %s", p.OpenQuantity)
	}
	if p.ClosedAt == nil || !p.ClosedAt.Equal(baseTS.Add(time.Minute)) {
		t.Errorf("wrong close timestamp: %v", p.ClosedAt)
	}
}

func TestBuild_WeightedAverageEntry(t *testing.T) {
	// Buy 1 @ 100, Buy 1 @ 120 => open long, entry avg 110, quantity 2
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		fill("e2", domain.SideBuy, 1, 120, time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(res.Positions))
	}

	p := res.Positions[0]
	if p.Status != domain.PositionStatusOpen {
		t.Errorf("expected open, got %s", p.Status)
	}
	if p.AvgEntryPrice != domain.AmountFromInt(110) {
		t.Errorf("expected entry avg 110, got %s", p.AvgEntryPrice)
	}
	if p.OpenQuantity != domain.AmountFromInt(2) {
		t.Errorf("expected quantity 2, got %s", p.OpenQuantity)
	}
	if p.PeakQuantity != domain.AmountFromInt(2) {
		t.Errorf("expected peak 2, got %s", p.PeakQuantity)
	}
}

func TestBuild_DirectionFlip(t *testing.T) {
	// Long 2 @ 100, then Sell 3 @ 90: the long closes with PnL -20,
	// a new short opens with quantity 1 at entry 90.
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 2, 100, 0),
		fill("e2", domain.SideSell, 3, 90, time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(res.Positions))
	}

	long := res.Positions[0]
	if long.Direction != domain.DirectionLong || long.Status != domain.PositionStatusClosed {
		t.Fatalf("first position should be a closed long, got %s/%s", long.Direction, long.Status)
	}
	if long.RealizedPnL != domain.AmountFromInt(-20) {
		t.Errorf("expected long pnl -20, got %s", long.RealizedPnL)
	}

	short := res.Positions[1]
	if short.Direction != domain.DirectionShort || short.Status != domain.PositionStatusOpen {
		t.Fatalf("second position should be an open short, got %s/%s", short.Direction, short.Status)
	}
	if short.OpenQuantity != domain.AmountFromInt(1) {
		t.Errorf("expected residual quantity 1, got %s", short.OpenQuantity)
	}
	if short.AvgEntryPrice != domain.AmountFromInt(90) {
		t.Errorf("expected short entry 90, got %s", short.AvgEntryPrice)
	}
	if !short.OpenedAt.Equal(baseTS.Add(time.Minute)) {
		t.Errorf("short should open at the flip timestamp")
	}
}

func TestBuild_FlipSplitIsLossless(t *testing.T) {
	flipFill := fill("e2", domain.SideSell, 3, 90, time.Minute)
	flipFill.Commission = domain.AmountFromInt(3)

	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 2, 100, 0),
		flipFill,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(res.Positions))
	}

	var absorbed, commission domain.Amount
	for _, p := range res.Positions {
		for _, ex := range p.Executions {
			if ex.ExecID == "e2" {
				absorbed += ex.Quantity
				commission += ex.Commission
			}
		}
	}
	if absorbed != domain.AmountFromInt(3) {
		t.Errorf("split lost quantity: absorbed %s of 3", absorbed)
	}
	if commission != domain.AmountFromInt(3) {
		t.Errorf("split lost commission: %s of 3", commission)
	}

	// PnL on the closed side uses only the closing portion (2 of 3).
	if got := res.Positions[0].RealizedPnL; got != domain.AmountFromInt(-20) {
		t.Errorf("closed-side pnl: got %s, want -20", got)
	}
}

func TestBuild_ShortRoundTrip(t *testing.T) {
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideSell, 2, 200, 0),
		fill("e2", domain.SideBuy, 2, 150, time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := res.Positions[0]
	if p.Direction != domain.DirectionShort {
		t.Fatalf("expected short, got %s", p.Direction)
	}
	// (200 - 150) * 2 = +100
	if p.RealizedPnL != domain.AmountFromInt(100) {
		t.Errorf("expected pnl +100, got %s", p.RealizedPnL)
	}
	if p.Duration() != time.Hour {
		t.Errorf("expected 1h holding, got %s", p.Duration())
	}
}

func TestBuild_PartialClosesWeightedExit(t *testing.T) {
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 4, 100, 0),
		fill("e2", domain.SideSell, 2, 110, time.Minute),
		fill("e3", domain.SideSell, 2, 130, 2*time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(res.Positions))
	}
	p := res.Positions[0]
	if p.Status != domain.PositionStatusClosed {
		t.Fatalf("expected closed")
	}
	// exit avg = (110*2 + 130*2) / 4 = 120
	if p.AvgExitPrice == nil || *p.AvgExitPrice != domain.AmountFromInt(120) {
		t.Errorf("expected exit avg 120, got %v", p.AvgExitPrice)
	}
	// pnl = (110-100)*2 + (130-100)*2 = 80
	if p.RealizedPnL != domain.AmountFromInt(80) {
		t.Errorf("expected pnl 80, got %s", p.RealizedPnL)
	}
}

func TestBuild_NewPositionAfterFlat(t *testing.T) {
	// Closing to flat and trading again starts a brand-new position,
	// even seconds later on the same symbol.
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		fill("e2", domain.SideSell, 1, 105, time.Minute),
		fill("e3", domain.SideBuy, 1, 104, time.Minute+5*time.Second),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(res.Positions))
	}
	if res.Positions[0].ID == res.Positions[1].ID {
		t.Errorf("positions must have distinct ids")
	}
}

func TestBuild_FundingAttachesToOpenPosition(t *testing.T) {
	funding := domain.Execution{
		ExecID:     "f1",
		AccountID:  "acct-1",
		Exchange:   domain.ExchangeBinance,
		Symbol:     "BTCUSDT",
		Side:       domain.SideBuy,
		ExecType:   domain.ExecTypeFunding,
		Cost:       domain.AmountFromInt(-2), // funding paid
		Commission: domain.AmountFromInt(1),
		Timestamp:  baseTS.Add(30 * time.Second),
	}

	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		funding,
		fill("e2", domain.SideSell, 1, 110, time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(res.Positions))
	}
	p := res.Positions[0]
	if len(p.Executions) != 3 {
		t.Errorf("funding execution should belong to the position, got %d execs", len(p.Executions))
	}
	// +10 trade pnl -2 funding
	if p.RealizedPnL != domain.AmountFromInt(8) {
		t.Errorf("expected pnl 8, got %s", p.RealizedPnL)
	}
	if p.Fees != domain.AmountFromInt(1) {
		t.Errorf("expected fees 1, got %s", p.Fees)
	}
	if len(res.Unattributed) != 0 {
		t.Errorf("funding should not be unattributed")
	}
}

func TestBuild_FundingWithoutPositionIsUnattributed(t *testing.T) {
	funding := domain.Execution{
		ExecID:    "f1",
		Symbol:    "BTCUSDT",
		ExecType:  domain.ExecTypeFunding,
		Cost:      domain.AmountFromInt(-2),
		Timestamp: baseTS,
	}
	res, err := Build([]domain.Execution{funding})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 0 {
		t.Errorf("funding alone must not open a position")
	}
	if len(res.Unattributed) != 1 {
		t.Errorf("expected 1 unattributed execution, got %d", len(res.Unattributed))
	}
}

func TestBuild_DataWarnings(t *testing.T) {
	bad1 := fill("bad-qty", domain.SideBuy, 0, 100, time.Second)
	bad2 := fill("bad-price", domain.SideBuy, 1, 0, 2*time.Second)
	bad3 := fill("bad-ts", domain.SideBuy, 1, 100, 0)
	bad3.Timestamp = time.Time{}
	stale := fill("stale", domain.SideBuy, 1, 100, -time.Hour)

	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		bad1,
		bad2,
		bad3,
		stale,
		fill("e2", domain.SideSell, 1, 110, time.Minute),
	})
	if err != nil {
		t.Fatalf("data errors must not abort the run: %v", err)
	}
	if len(res.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(res.Warnings), res.Warnings)
	}
	if len(res.Positions) != 1 || res.Positions[0].RealizedPnL != domain.AmountFromInt(10) {
		t.Errorf("valid executions should still reconstruct cleanly")
	}
	// skipped executions never land in a position
	for _, p := range res.Positions {
		for _, ex := range p.Executions {
			switch ex.ExecID {
			case "bad-qty", "bad-price", "bad-ts", "stale":
				t.Errorf("skipped execution %s assigned to a position", ex.ExecID)
			}
		}
	}
}

func TestBuild_ReportedPnLMismatchWarns(t *testing.T) {
	reported := domain.AmountFromInt(99)
	closing := fill("e2", domain.SideSell, 1, 110, time.Minute)
	closing.Extra = &domain.ExchangeExtra{ReportedPnL: &reported}

	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		closing,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected a mismatch warning, got %d", len(res.Warnings))
	}
	// engine computation stays the source of truth
	if res.Positions[0].RealizedPnL != domain.AmountFromInt(10) {
		t.Errorf("reported pnl must not override the computed value")
	}
}

func TestBuild_ConservationAndCoverage(t *testing.T) {
	input := []domain.Execution{
		fill("e1", domain.SideBuy, 2, 100, 0),
		fill("e2", domain.SideBuy, 1, 101, 1*time.Minute),
		fill("e3", domain.SideSell, 3, 103, 2*time.Minute),
		fill("e4", domain.SideSell, 2, 105, 3*time.Minute),
		fill("e5", domain.SideBuy, 5, 104, 4*time.Minute), // flips short -> long
		fill("e6", domain.SideSell, 3, 106, 5*time.Minute),
	}
	res, err := Build(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Coverage: every input exec id appears, none twice in the same
	// role, and total absorbed quantity matches the input.
	seen := make(map[string]domain.Amount)
	for _, p := range res.Positions {
		var net domain.Amount
		for _, ex := range p.Executions {
			seen[ex.ExecID] += ex.Quantity
			if ex.Side == domain.SideBuy {
				net += ex.Quantity
			} else {
				net -= ex.Quantity
			}
		}
		// Conservation: signed quantities replay to the position's
		// net change (0 for closed, ±open quantity otherwise).
		want := domain.Amount(0)
		if p.IsOpen() {
			want = p.OpenQuantity
			if p.Direction == domain.DirectionShort {
				want = -want
			}
		}
		if net != want {
			t.Errorf("position %s: net quantity %s, want %s", p.ID, net, want)
		}
	}
	if len(seen) != len(input) {
		t.Errorf("coverage: %d distinct exec ids in positions, want %d", len(seen), len(input))
	}
	for _, ex := range input {
		if seen[ex.ExecID] != ex.Quantity {
			t.Errorf("exec %s: absorbed %s, want %s", ex.ExecID, seen[ex.ExecID], ex.Quantity)
		}
	}

	// No-overlap: close[i] <= open[i+1]
	for i := 0; i+1 < len(res.Positions); i++ {
		cur, next := res.Positions[i], res.Positions[i+1]
		if cur.ClosedAt == nil {
			t.Fatalf("only the final position may remain open")
		}
		if cur.ClosedAt.After(next.OpenedAt) {
			t.Errorf("positions overlap: %s closes after %s opens", cur.ID, next.ID)
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	input := []domain.Execution{
		fill("e1", domain.SideBuy, 2, 100, 0),
		fill("e2", domain.SideSell, 3, 90, time.Minute),
		fill("e3", domain.SideBuy, 1, 95, 2*time.Minute),
	}

	first, err := Build(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Build(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reconstruction is not deterministic across identical runs")
	}
}

func TestBuild_ReplayRecomputesSummary(t *testing.T) {
	res, err := Build([]domain.Execution{
		fill("e1", domain.SideBuy, 4, 100, 0),
		fill("e2", domain.SideSell, 2, 110, time.Minute),
		fill("e3", domain.SideSell, 2, 130, 2*time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range res.Positions {
		p := &res.Positions[i]
		replayed, err := Replay(p)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if replayed.RealizedPnL != p.RealizedPnL ||
			replayed.AvgEntryPrice != p.AvgEntryPrice ||
			replayed.PeakQuantity != p.PeakQuantity ||
			replayed.Fees != p.Fees {
			t.Errorf("replay of %s diverged from stored summary", p.ID)
		}
	}
}

func TestBuildAll_GroupsBySymbolDeterministically(t *testing.T) {
	eth := fill("x1", domain.SideBuy, 1, 2000, 30*time.Second)
	eth.Symbol = "ETHUSDT"
	ethClose := fill("x2", domain.SideSell, 1, 2100, 90*time.Second)
	ethClose.Symbol = "ETHUSDT"

	input := []domain.Execution{
		fill("e1", domain.SideBuy, 1, 100, 0),
		eth,
		fill("e2", domain.SideSell, 1, 110, time.Minute),
		ethClose,
	}

	first, err := BuildAll(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(first.Positions))
	}
	// ordered by open time
	if !first.Positions[0].OpenedAt.Before(first.Positions[1].OpenedAt) {
		t.Errorf("positions not ordered by open time")
	}

	second, err := BuildAll(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("BuildAll is not deterministic")
	}
}

func TestBuild_ManyFlips(t *testing.T) {
	var input []domain.Execution
	side := domain.SideBuy
	for i := 0; i < 10; i++ {
		qty := int64(4)
		if i == 0 {
			qty = 2
		}
		// every fill after the first closes 2 and flips into a new
		// 2-quantity position the other way
		input = append(input, fill(
			fmt.Sprintf("e%02d", i), side, qty, 100+int64(i), time.Duration(i)*time.Minute))
		if side == domain.SideBuy {
			side = domain.SideSell
		} else {
			side = domain.SideBuy
		}
	}

	res, err := Build(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// e0 opens long 2; every later fill closes 2 and opens 2 the
	// other way: 10 positions, the last still open.
	if len(res.Positions) != 10 {
		t.Fatalf("expected 10 positions, got %d", len(res.Positions))
	}
	for i, p := range res.Positions {
		open := i == len(res.Positions)-1
		if p.IsOpen() != open {
			t.Errorf("position %d: open=%v, want %v", i, p.IsOpen(), open)
		}
	}
}

func TestErrStateInvariantIsHardFailure(t *testing.T) {
	err := fmt.Errorf("wrap: %w", ErrStateInvariant)
	if !errors.Is(err, ErrStateInvariant) {
		t.Fatal("ErrStateInvariant must survive wrapping")
	}
}
