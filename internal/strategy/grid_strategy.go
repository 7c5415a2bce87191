// Package strategy implements the stateful grid lifecycle manager: it
// builds the ladder, places initial orders, detects fills by diffing live
// exchange state against tracked local state, reposts counter orders, and
// attributes realized PnL to the closing leg of each round-trip.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/grid"
	"gridbot/pkg/types"
)

// GridStrategy owns the level collection exclusively. No other component
// mutates it; the orchestrator only reads snapshots for logging/status.
type GridStrategy struct {
	mu sync.Mutex

	cfg        config.GridConfig
	assetIndex int
	client     exchange.Client
	logger     *slog.Logger

	levels        []types.GridLevel
	isInitialised bool
	newFills      []types.FillRecord
}

// New creates a GridStrategy bound to one asset.
func New(cfg config.GridConfig, assetIndex int, client exchange.Client, logger *slog.Logger) *GridStrategy {
	return &GridStrategy{
		cfg:        cfg,
		assetIndex: assetIndex,
		client:     client,
		logger:     logger.With("component", "strategy", "symbol", cfg.Symbol),
	}
}

// SetAssetIndex overrides the asset index with the one resolved from the
// exchange's meta endpoint, which may differ from the configured hint.
func (s *GridStrategy) SetAssetIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assetIndex = idx
}

// Initialize cancels any stale orders, anchors to the current mid price,
// builds a fresh grid, and places every rung except the one straddling
// mid (it would immediately cross the spread).
func (s *GridStrategy) Initialize(ctx context.Context, initialEquity decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled, err := s.client.CancelAllOrders(ctx, s.assetIndex)
	if err != nil {
		return fmt.Errorf("initialize: cancel all orders: %w", err)
	}
	s.logger.Info("cancelled stale orders before init", "count", cancelled)

	market, err := s.client.GetMarketData(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("initialize: get market data: %w", err)
	}

	if rate := grid.EstimatedAnnualReturnRate(market.MidPrice, s.cfg, 0, 0); rate <= 0 {
		return fmt.Errorf("initialize: spacing %.4f%% is tighter than the round-trip fee, grid cannot be profitable", s.cfg.GridSpacingPercent)
	}

	levels, err := grid.BuildGrid(market.MidPrice, s.cfg)
	if err != nil {
		return fmt.Errorf("initialize: build grid: %w", err)
	}
	s.levels = levels

	halfSpacing := s.cfg.GridSpacingPercent / 100 / 2
	minDistance := market.MidPrice.Mul(decimal.NewFromFloat(halfSpacing))

	placed := 0
	for i := range s.levels {
		lvl := &s.levels[i]
		distance := lvl.Price.Sub(market.MidPrice).Abs()
		if distance.LessThan(minDistance) {
			continue // rung straddling mid, would cross immediately
		}
		if s.tryPlace(ctx, lvl) {
			placed++
		}
	}
	s.logger.Info("grid initialised", "mid_price", market.MidPrice, "placed", placed, "total_levels", len(s.levels))

	s.isInitialised = true
	_ = initialEquity // recorded by the risk manager, not the strategy
	return nil
}

// tryPlace attempts to place lvl's order. On success it transitions
// Pending -> Active and records orderId/placedAt. On failure it logs and
// leaves the level Pending for the next sync to retry.
func (s *GridStrategy) tryPlace(ctx context.Context, lvl *types.GridLevel) bool {
	orderID, err := s.client.PlaceLimitOrder(ctx, s.cfg.Symbol, s.assetIndex, lvl.Side, lvl.Price, lvl.Size)
	if err != nil {
		s.logger.Warn("place order failed, leaving level pending", "index", lvl.Index, "side", lvl.Side, "price", lvl.Price, "error", err)
		return false
	}
	lvl.Status = types.Active
	lvl.OrderID = orderID
	lvl.PlacedAt = time.Now()
	return true
}

// Sync runs the fill-detection protocol: snapshot active levels and their
// orderIds before any side effects, diff against the live open-order set,
// then handle fills and retry any still-pending placements.
func (s *GridStrategy) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.client.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("sync: get open orders: %w", err)
	}
	liveIDs := make(map[int64]bool, len(live))
	for _, o := range live {
		liveIDs[o.ID] = true
	}

	// Snapshot indices of currently-active levels before any placement
	// below can introduce new orderIds that must not be mistaken for
	// fills in this same pass.
	activeIndices := make([]int, 0, len(s.levels))
	for i := range s.levels {
		if s.levels[i].Status == types.Active {
			activeIndices = append(activeIndices, i)
		}
	}

	for _, idx := range activeIndices {
		lvl := &s.levels[idx]
		if !liveIDs[lvl.OrderID] {
			s.handleFill(ctx, lvl)
		}
	}

	for i := range s.levels {
		if s.levels[i].Status == types.Pending {
			s.tryPlace(ctx, &s.levels[i])
		}
	}

	return nil
}

// handleFill marks filled, attributes PnL, and reposts the counter level
// one rung away with its side flipped to close the round-trip.
func (s *GridStrategy) handleFill(ctx context.Context, filled *types.GridLevel) {
	filled.Status = types.Filled
	filled.FilledAt = time.Now()

	switch filled.Side {
	case types.Buy:
		counterIdx := filled.Index + 1
		if counterIdx >= len(s.levels) {
			s.appendFill(filled, decimal.Zero)
			return
		}
		counter := &s.levels[counterIdx]
		counter.Side = types.Sell
		if counter.Status != types.Active {
			s.cancelStale(ctx, counter)
			counter.Status = types.Pending
			s.tryPlace(ctx, counter)
		}
		// Realized PnL is zero on the buy leg — profit is only realised
		// when the matching sell closes the round-trip.
		s.appendFill(filled, decimal.Zero)

	case types.Sell:
		counterIdx := filled.Index - 1
		if counterIdx < 0 {
			s.appendFill(filled, decimal.Zero)
			return
		}
		counter := &s.levels[counterIdx]
		counterBuyPrice := counter.Price
		counter.Side = types.Buy
		if counter.Status != types.Active {
			s.cancelStale(ctx, counter)
			counter.Status = types.Pending
			s.tryPlace(ctx, counter)
		}
		pnl := filled.Price.Sub(counterBuyPrice).Mul(filled.Size)
		filled.RealizedPnl = filled.RealizedPnl.Add(pnl)
		s.appendFill(filled, pnl)
	}
}

// cancelStale defensively cancels a counter level's prior order before the
// level is reposted. If an earlier cancel failed silently the old order
// could still be resting; without this a repost would leave duplicates on
// the book. Failure is tolerated — most of the time the order is long gone
// and the exchange reports nothing to cancel.
func (s *GridStrategy) cancelStale(ctx context.Context, lvl *types.GridLevel) {
	if lvl.OrderID == 0 {
		return
	}
	if _, err := s.client.CancelOrder(ctx, s.assetIndex, lvl.OrderID); err != nil {
		s.logger.Warn("defensive cancel of stale counter order failed", "index", lvl.Index, "order_id", lvl.OrderID, "error", err)
	}
	lvl.OrderID = 0
}

// appendFill records a FillRecord in detection order for the drain queue.
func (s *GridStrategy) appendFill(lvl *types.GridLevel, pnl decimal.Decimal) {
	s.newFills = append(s.newFills, types.FillRecord{
		Time:  lvl.FilledAt,
		Side:  lvl.Side,
		Price: lvl.Price,
		Size:  lvl.Size,
		Pnl:   pnl,
	})
}

// Reset discards the current grid and rebuilds it via Initialize, using
// the equity the caller passes; Reset does not read account state itself.
// If Initialize fails, Reset returns the error with isInitialised left
// false and the previous levels still in place.
func (s *GridStrategy) Reset(ctx context.Context, equity decimal.Decimal) error {
	s.mu.Lock()
	s.isInitialised = false
	s.mu.Unlock()

	if err := s.Initialize(ctx, equity); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Levels returns a read-only snapshot of the current grid.
func (s *GridStrategy) Levels() []types.GridLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.GridLevel, len(s.levels))
	copy(out, s.levels)
	return out
}

// RealizedPnl sums realizedPnl across all levels.
func (s *GridStrategy) RealizedPnl() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, lvl := range s.levels {
		total = total.Add(lvl.RealizedPnl)
	}
	return total
}

// IsInitialised reports whether the strategy has completed Initialize.
func (s *GridStrategy) IsInitialised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isInitialised
}

// DrainNewFills returns and clears the pending-fill queue.
func (s *GridStrategy) DrainNewFills() []types.FillRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.newFills
	s.newFills = nil
	return out
}

// Bounds returns the price of the lowest and highest rungs in the current
// grid. Callers must check IsInitialised first; an empty grid returns
// zero values.
func (s *GridStrategy) Bounds() (lower, upper decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.levels) == 0 {
		return decimal.Zero, decimal.Zero
	}
	return s.levels[0].Price, s.levels[len(s.levels)-1].Price
}
