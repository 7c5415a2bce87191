// Package orchestrator is the long-running scheduler: it composes the
// grid calculator, exchange client, strategy, and risk manager on every
// tick, owning cancellation, per-cycle failure isolation, and graceful
// shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/risk"
	"gridbot/internal/status"
	"gridbot/internal/strategy"
	"gridbot/pkg/types"
)

// settlementPause is how long the orchestrator waits after a spot->perp
// transfer before re-reading account state.
const settlementPause = 2 * time.Second

// Orchestrator drives one tick at a time; ticks never overlap. All
// exchange calls within a tick are sequential and suspend on I/O.
type Orchestrator struct {
	cfg      config.GridConfig
	client   exchange.Client
	strategy *strategy.GridStrategy
	riskMgr  *risk.Manager
	cache    *status.Cache
	pushFn   func()
	logger   *slog.Logger

	assetIndex int
	gridLower  decimal.Decimal
	gridUpper  decimal.Decimal
	syncCount  int
	halted     bool
}

// New wires an orchestrator around an already-constructed strategy and
// risk manager. pushFn, if non-nil, is called after every cache update to
// forward the new snapshot to the status websocket hub.
func New(cfg config.GridConfig, client exchange.Client, strat *strategy.GridStrategy, riskMgr *risk.Manager, cache *status.Cache, pushFn func(), logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		strategy: strat,
		riskMgr:  riskMgr,
		cache:    cache,
		pushFn:   pushFn,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Start runs the startup sequence, then the tick loop, blocking until ctx
// is cancelled. Cancellation during the loop is not an error.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.startup(ctx); err != nil {
		return fmt.Errorf("orchestrator startup: %w", err)
	}

	interval := o.cfg.SyncInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping, leaving resting orders on the book")
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) startup(ctx context.Context) error {
	assetIndex, err := o.client.GetAssetIndex(ctx, o.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("resolve asset index: %w", err)
	}
	o.assetIndex = assetIndex
	o.strategy.SetAssetIndex(assetIndex)

	account, err := o.client.GetAccountState(ctx)
	if err != nil {
		return fmt.Errorf("get initial account state: %w", err)
	}

	if account.TotalEquity.IsZero() {
		spotBalance, err := o.client.GetSpotUsdcBalance(ctx)
		if err != nil {
			return fmt.Errorf("get spot balance: %w", err)
		}
		if spotBalance.GreaterThan(decimal.Zero) {
			o.logger.Info("perp equity is zero, transferring spot balance", "amount", spotBalance)
			if err := o.client.TransferSpotToPerps(ctx, spotBalance); err != nil {
				return fmt.Errorf("transfer spot to perps: %w", err)
			}
			select {
			case <-time.After(settlementPause):
			case <-ctx.Done():
				return ctx.Err()
			}
			account, err = o.client.GetAccountState(ctx)
			if err != nil {
				return fmt.Errorf("get account state after transfer: %w", err)
			}
		}
	}

	o.riskMgr.SetInitialEquity(account.TotalEquity)
	if err := o.strategy.Initialize(ctx, account.TotalEquity); err != nil {
		return fmt.Errorf("initialize strategy: %w", err)
	}

	o.gridLower, o.gridUpper = o.strategy.Bounds()
	o.logger.Info("orchestrator started", "asset_index", o.assetIndex, "grid_lower", o.gridLower, "grid_upper", o.gridUpper)
	return nil
}

// tick composes one cycle: fetch -> risk evaluate -> act -> observer
// update. Any error is logged with the sync counter and absorbed; the
// loop continues. Cancellation is the only thing that propagates.
func (o *Orchestrator) tick(ctx context.Context) {
	o.syncCount++

	market, err := o.client.GetMarketData(ctx, o.cfg.Symbol)
	if err != nil {
		o.logger.Warn("tick: get market data failed", "sync_count", o.syncCount, "error", err)
		return
	}
	account, err := o.client.GetAccountState(ctx)
	if err != nil {
		o.logger.Warn("tick: get account state failed", "sync_count", o.syncCount, "error", err)
		return
	}

	verdict := o.riskMgr.Evaluate(account, market)

	switch verdict.Kind {
	case types.VerdictHalt:
		o.halted = true
		if _, err := o.client.CancelAllOrders(ctx, o.assetIndex); err != nil {
			o.logger.Error("tick: halt cancel-all failed", "sync_count", o.syncCount, "error", err, "critical", true)
		}
		o.logger.Error("HALT", "reason", verdict.Reason, "sync_count", o.syncCount, "critical", true)
		o.publish(market, account, nil)
		return

	case types.VerdictResetGrid:
		o.halted = false
		o.logger.Warn("reset grid", "reason", verdict.Reason, "sync_count", o.syncCount)
		if err := o.strategy.Reset(ctx, account.TotalEquity); err != nil {
			o.logger.Warn("tick: reset failed, will retry next tick", "sync_count", o.syncCount, "error", err)
			return
		}
		o.gridLower, o.gridUpper = o.strategy.Bounds()
		o.publish(market, account, nil)
		return

	case types.VerdictContinue:
		o.halted = false
		if risk.ShouldResetGrid(market.MidPrice, o.gridLower, o.gridUpper) {
			o.logger.Info("grid drifted beyond threshold, recentring", "mid_price", market.MidPrice, "sync_count", o.syncCount)
			if err := o.strategy.Reset(ctx, account.TotalEquity); err != nil {
				o.logger.Warn("tick: drift reset failed, will retry next tick", "sync_count", o.syncCount, "error", err)
				return
			}
			o.gridLower, o.gridUpper = o.strategy.Bounds()
			o.publish(market, account, nil)
			return
		}

		if err := o.strategy.Sync(ctx); err != nil {
			o.logger.Warn("tick: sync failed", "sync_count", o.syncCount, "error", err)
			return
		}
		newFills := o.strategy.DrainNewFills()
		o.publish(market, account, newFills)
	}
}

// publish updates the status cache and pushes it to websocket clients.
func (o *Orchestrator) publish(market types.MarketData, account types.AccountState, newFills []types.FillRecord) {
	levels := o.strategy.Levels()
	activeOrders, filledLevels := 0, 0
	for _, lvl := range levels {
		switch lvl.Status {
		case types.Active:
			activeOrders++
		case types.Filled:
			filledLevels++
		}
	}

	o.cache.Update(
		!o.halted,
		o.syncCount,
		market.MidPrice,
		account.TotalEquity,
		account.AvailableBalance,
		o.strategy.RealizedPnl(),
		activeOrders,
		filledLevels,
		levels,
		newFills,
	)
	if o.pushFn != nil {
		o.pushFn()
	}
}
