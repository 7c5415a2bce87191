package risk

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSizeBtc: 1.0,
		MaxDrawdownPercent: 10,
		MinGridPrice:       10000,
		MaxGridPrice:       100000,
	}
}

func market(mid string) types.MarketData {
	return types.MarketData{Symbol: "BTC", MidPrice: decimal.RequireFromString(mid)}
}

func account(equity string, netPos string) types.AccountState {
	return types.AccountState{
		TotalEquity: decimal.RequireFromString(equity),
		Positions: []types.Position{
			{Symbol: "BTC", Size: decimal.RequireFromString(netPos)},
		},
	}
}

func TestEvaluateContinueWhenNoAdverseCondition(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	v := m.Evaluate(account("10000", "0.1"), market("50000"))
	if v.Kind != types.VerdictContinue {
		t.Errorf("verdict = %v, want Continue", v.Kind)
	}
}

func TestEvaluateHaltsOnDrawdown(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	// 10% drawdown from peak 10000 -> equity 9000, limit is 10% so >= triggers.
	v := m.Evaluate(account("9000", "0"), market("50000"))
	if v.Kind != types.VerdictHalt {
		t.Errorf("verdict = %v, want Halt", v.Kind)
	}
}

func TestEvaluateResetsOnPositionLimit(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	v := m.Evaluate(account("10000", "1.5"), market("50000"))
	if v.Kind != types.VerdictResetGrid {
		t.Errorf("verdict = %v, want ResetGrid", v.Kind)
	}
}

func TestEvaluateHaltsOnPriceOutOfRange(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	v := m.Evaluate(account("10000", "0"), market("5000"))
	if v.Kind != types.VerdictHalt {
		t.Errorf("verdict = %v, want Halt for below-range price", v.Kind)
	}

	v = m.Evaluate(account("10000", "0"), market("150000"))
	if v.Kind != types.VerdictHalt {
		t.Errorf("verdict = %v, want Halt for above-range price", v.Kind)
	}
}

func TestEvaluatePriceAtExactBoundaryPasses(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	v := m.Evaluate(account("10000", "0"), market("10000"))
	if v.Kind != types.VerdictContinue {
		t.Errorf("verdict at lower boundary = %v, want Continue", v.Kind)
	}
	v = m.Evaluate(account("10000", "0"), market("100000"))
	if v.Kind != types.VerdictContinue {
		t.Errorf("verdict at upper boundary = %v, want Continue", v.Kind)
	}
}

func TestEvaluateDrawdownTrackedFromNewPeak(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	// Equity rises to a new peak.
	v := m.Evaluate(account("12000", "0"), market("50000"))
	if v.Kind != types.VerdictContinue {
		t.Fatalf("verdict on new peak = %v, want Continue", v.Kind)
	}

	// Drop to just under 90% of the new peak (12000*0.9 = 10800) must halt,
	// even though 10700 still exceeds the original equity of 10000.
	v = m.Evaluate(account("10700", "0"), market("50000"))
	if v.Kind != types.VerdictHalt {
		t.Errorf("verdict after drop from new peak = %v, want Halt", v.Kind)
	}
}

func TestEvaluateCheckOrderDrawdownBeforePriceBeforePosition(t *testing.T) {
	m := NewManager(testRiskConfig(), "BTC", testLogger())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	// Both drawdown and price-range are breached; drawdown must win.
	v := m.Evaluate(account("8000", "2.0"), market("5000"))
	if v.Kind != types.VerdictHalt {
		t.Errorf("verdict = %v, want Halt (drawdown wins over price/position)", v.Kind)
	}
	if !strings.HasPrefix(v.Reason, "drawdown") {
		t.Errorf("halt reason = %q, want the drawdown reason", v.Reason)
	}
}

func TestShouldResetGridWithinRangeFalse(t *testing.T) {
	lower := decimal.NewFromInt(45000)
	upper := decimal.NewFromInt(55000)

	if ShouldResetGrid(decimal.NewFromInt(50000), lower, upper) {
		t.Error("at centre, should not reset")
	}
	// 79% of half-range (5000) from centre = 3950 -> 53950, still within 80%.
	if ShouldResetGrid(decimal.NewFromInt(53950), lower, upper) {
		t.Error("within 80% of half-range, should not reset")
	}
}

func TestShouldResetGridBeyondRangeTrue(t *testing.T) {
	lower := decimal.NewFromInt(45000)
	upper := decimal.NewFromInt(55000)

	// 85% of half-range (5000) from centre = 4250 -> 54250, beyond 80%.
	if !ShouldResetGrid(decimal.NewFromInt(54250), lower, upper) {
		t.Error("beyond 80% of half-range, should reset")
	}
}
