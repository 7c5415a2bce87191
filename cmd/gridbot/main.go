// gridbot runs an automated grid-trading engine against BTC/USD
// perpetuals: it places a symmetric ladder of resting limit orders around
// a reference price and converts price oscillation into realized profit
// by pairing each fill with an opposite-side counter order one level
// away.
//
// Architecture:
//
//	main.go                        — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	internal/grid/calculator.go    — pure geometry: level prices, bounds, counter-level lookup
//	internal/exchange/client.go   — signed REST client against the exchange's /info and /exchange endpoints
//	internal/exchange/signer.go   — EIP-712 phantom-agent and user-signed transfer signatures
//	internal/strategy/grid_strategy.go — stateful lifecycle manager: builds grid, detects fills, reposts counters
//	internal/risk/manager.go      — drawdown, price-range, and position-size guard
//	internal/orchestrator/orchestrator.go — tick loop: fetch -> risk evaluate -> act -> publish
//	internal/status                — read-only HTTP/WS observability surface
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/orchestrator"
	"gridbot/internal/risk"
	"gridbot/internal/status"
	"gridbot/internal/strategy"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GRID_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	signer, err := exchange.NewSigner(cfg.Wallet.PrivateKey, cfg.Wallet.IsMainnet)
	if err != nil {
		logger.Error("failed to create signer", "error", err)
		os.Exit(1)
	}

	walletAddress := cfg.Wallet.WalletAddress
	if walletAddress == "" {
		walletAddress = signer.Address().Hex()
	}

	client := exchange.NewRESTClient(cfg.API.BaseURL, signer, walletAddress, cfg.DryRun, logger)

	strat := strategy.New(cfg.Grid, cfg.Grid.AssetIndex, client, logger)
	riskMgr := risk.NewManager(cfg.Risk, cfg.Grid.Symbol, logger)
	cache := status.NewCache()

	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(cfg.Status, cache, logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status server started", "url", fmt.Sprintf("http://localhost:%d/api/status", cfg.Status.Port))
	}

	var pushFn func()
	if statusServer != nil {
		pushFn = statusServer.Push
	}

	orch := orchestrator.New(cfg.Grid, client, strat, riskMgr, cache, pushFn, logger)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}
	logger.Info("gridbot starting",
		"symbol", cfg.Grid.Symbol,
		"grid_levels", cfg.Grid.GridLevels,
		"spacing_pct", cfg.Grid.GridSpacingPercent,
		"order_size_btc", cfg.Grid.OrderSizeBtc,
		"dry_run", cfg.DryRun,
	)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("orchestrator stopped with error", "error", err)
		}
	}

	if statusServer != nil {
		if err := statusServer.Stop(); err != nil {
			logger.Error("failed to stop status server", "error", err)
		}
	}

	logger.Info("gridbot shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
