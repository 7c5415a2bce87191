package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/risk"
	"gridbot/internal/status"
	"gridbot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGridConfig() config.GridConfig {
	return config.GridConfig{
		Symbol:              "BTC",
		GridLevels:          10,
		GridSpacingPercent:  1.0,
		OrderSizeBtc:        0.01,
		SyncIntervalSeconds: 3600, // long enough that the test drives ticks manually
	}
}

// Scenario S6 — halt cancels. mid=1000 is below minGridPrice=10000 on
// startup; after one tick the orchestrator must have called
// CancelAllOrders at least once and placed no orders that tick.
func TestHaltCancelsAllOrdersAndPlacesNothing(t *testing.T) {
	fake := exchange.NewFake("BTC", decimal.NewFromInt(1000), decimal.NewFromInt(10000))
	strat := strategy.New(testGridConfig(), 0, fake, testLogger())
	riskMgr := risk.NewManager(config.RiskConfig{
		MaxPositionSizeBtc: 1.0,
		MaxDrawdownPercent: 10,
		MinGridPrice:       10000,
		MaxGridPrice:       100000,
	}, "BTC", testLogger())
	cache := status.NewCache()

	// Startup initializes the strategy against mid=1000; the grid it
	// builds is irrelevant once risk halts on the very first tick.
	if err := strat.Initialize(context.Background(), decimal.NewFromInt(10000)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	riskMgr.SetInitialEquity(decimal.NewFromInt(10000))

	placedBeforeTick := len(fake.Orders)

	o := New(testGridConfig(), fake, strat, riskMgr, cache, nil, testLogger())
	o.gridLower, o.gridUpper = strat.Bounds()
	o.tick(context.Background())

	if len(fake.Orders) != 0 {
		t.Errorf("orders still resting after halt = %d, want 0", len(fake.Orders))
	}
	if len(fake.Orders) > placedBeforeTick {
		t.Error("halt tick must not place new orders")
	}

	snap := cache.Snapshot()
	if snap.IsRunning {
		t.Error("snapshot should report not-running while halted")
	}
}

func TestTickContinuesWhenWithinAllLimits(t *testing.T) {
	fake := exchange.NewFake("BTC", decimal.NewFromInt(50000), decimal.NewFromInt(10000))
	cfg := testGridConfig()
	strat := strategy.New(cfg, 0, fake, testLogger())
	riskMgr := risk.NewManager(config.RiskConfig{
		MaxPositionSizeBtc: 1.0,
		MaxDrawdownPercent: 10,
		MinGridPrice:       10000,
		MaxGridPrice:       100000,
	}, "BTC", testLogger())
	cache := status.NewCache()

	if err := strat.Initialize(context.Background(), decimal.NewFromInt(10000)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	riskMgr.SetInitialEquity(decimal.NewFromInt(10000))

	o := New(cfg, fake, strat, riskMgr, cache, nil, testLogger())
	o.gridLower, o.gridUpper = strat.Bounds()
	o.tick(context.Background())

	snap := cache.Snapshot()
	if !snap.IsRunning {
		t.Error("snapshot should report running after a clean continue tick")
	}
	if snap.SyncCount != 1 {
		t.Errorf("syncCount = %d, want 1", snap.SyncCount)
	}
}
