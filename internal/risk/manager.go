// Package risk enforces the grid's account-level safety limits. The
// guard is a single-call function of account and market state: it holds
// exactly one piece of mutable state (peakEquity) and never runs its own
// goroutine; the orchestrator calls Evaluate once per tick.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/pkg/types"
)

// Manager enforces drawdown, price-range, and position-size limits. The
// check order is stable — drawdown, then price-range, then position —
// and the first trigger wins; later checks are not evaluated.
type Manager struct {
	cfg    config.RiskConfig
	symbol string
	logger *slog.Logger

	mu         sync.Mutex
	peakEquity decimal.Decimal
}

// NewManager creates a risk manager for one trading symbol.
func NewManager(cfg config.RiskConfig, symbol string, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		symbol: symbol,
		logger: logger.With("component", "risk"),
	}
}

// SetInitialEquity seeds the high-water mark. Must be called once before
// the first Evaluate.
func (m *Manager) SetInitialEquity(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peakEquity = equity
}

// Evaluate produces a verdict from the current account and market state.
// peakEquity is a monotonic high-water mark: it only ever rises here.
func (m *Manager) Evaluate(account types.AccountState, market types.MarketData) types.RiskVerdict {
	m.mu.Lock()
	if account.TotalEquity.GreaterThan(m.peakEquity) {
		m.peakEquity = account.TotalEquity
	}
	peak := m.peakEquity
	m.mu.Unlock()

	if peak.GreaterThan(decimal.Zero) {
		drawdown := peak.Sub(account.TotalEquity).Div(peak)
		maxDrawdown := decimal.NewFromFloat(m.cfg.MaxDrawdownPercent / 100)
		if drawdown.GreaterThanOrEqual(maxDrawdown) {
			reason := fmt.Sprintf("drawdown %.2f%% >= limit %.2f%%", drawdown.InexactFloat64()*100, m.cfg.MaxDrawdownPercent)
			m.logger.Error("risk halt: drawdown breached", "drawdown_pct", drawdown.InexactFloat64()*100, "critical", true)
			return types.HaltVerdict(reason)
		}
	}

	minPrice := decimal.NewFromFloat(m.cfg.MinGridPrice)
	maxPrice := decimal.NewFromFloat(m.cfg.MaxGridPrice)
	if market.MidPrice.LessThan(minPrice) || market.MidPrice.GreaterThan(maxPrice) {
		reason := fmt.Sprintf("mid price %s outside [%s, %s]", market.MidPrice, minPrice, maxPrice)
		m.logger.Error("risk halt: price out of range", "mid_price", market.MidPrice, "critical", true)
		return types.HaltVerdict(reason)
	}

	net := account.NetPosition(m.symbol)
	maxPosition := decimal.NewFromFloat(m.cfg.MaxPositionSizeBtc)
	if net.Abs().GreaterThan(maxPosition) {
		reason := fmt.Sprintf("net position %s exceeds limit %s", net, maxPosition)
		m.logger.Warn("risk reset: position limit breached", "net_position", net)
		return types.ResetVerdict(reason)
	}

	return types.ContinueVerdict()
}

// ShouldResetGrid is the re-centring predicate: true when currentPrice has
// drifted beyond 80% of the grid's half-range from its centre. The 0.8
// factor prevents thrashing at the edge while still re-centring before
// the ladder becomes useless.
func ShouldResetGrid(currentPrice, lower, upper decimal.Decimal) bool {
	center := lower.Add(upper).Div(decimal.NewFromInt(2))
	halfRange := upper.Sub(lower).Div(decimal.NewFromInt(2))
	threshold := halfRange.Mul(decimal.NewFromFloat(0.8))
	return currentPrice.Sub(center).Abs().GreaterThan(threshold)
}
