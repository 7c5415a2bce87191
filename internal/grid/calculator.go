// Package grid implements the pure geometry of the grid: level prices,
// bounds, counter-level lookup, an a-priori return estimate, and tick-size
// rounding. Nothing in this package touches the network or the clock
// except for the timestamps the caller stamps onto new levels.
package grid

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/pkg/types"
)

// InvalidArgumentError marks a config/input error that should fail fast.
type InvalidArgumentError struct {
	msg string
}

func (e *InvalidArgumentError) Error() string { return e.msg }

func invalidArg(format string, args ...interface{}) error {
	return &InvalidArgumentError{msg: fmt.Sprintf(format, args...)}
}

// defaultTick is the tick size used when rounding prices. The exchange
// quotes BTC perpetuals at $0.1 increments.
const defaultTick = "0.1"

// BuildGrid constructs a geometrically-spaced ladder of levels around
// midPrice. Geometric (multiplicative) spacing is mandatory: additive
// spacing would drift in log-space and bias side allocation after a reset.
func BuildGrid(midPrice decimal.Decimal, cfg config.GridConfig) ([]types.GridLevel, error) {
	if midPrice.LessThanOrEqual(decimal.Zero) {
		return nil, invalidArg("midPrice must be > 0, got %s", midPrice)
	}
	if cfg.GridLevels < 2 {
		return nil, invalidArg("gridLevels must be >= 2, got %d", cfg.GridLevels)
	}

	n := cfg.GridLevels
	m := n / 2
	size := decimal.NewFromFloat(cfg.OrderSizeBtc)

	levels := make([]types.GridLevel, n)
	for i := 0; i < n; i++ {
		price := levelPrice(midPrice, cfg.GridSpacingPercent, i, m)
		side := types.Buy
		if i >= m {
			side = types.Sell
		}
		levels[i] = types.GridLevel{
			Index:  i,
			Price:  price,
			Side:   side,
			Size:   size,
			Status: types.Pending,
		}
	}
	return levels, nil
}

// levelPrice computes round_tick(midPrice * (1+s)^(i-m)).
// The geometric power is the one place binary floats are allowed; the
// result is immediately rounded back to tick-exact decimal.
func levelPrice(midPrice decimal.Decimal, spacingPercent float64, i, m int) decimal.Decimal {
	s := spacingPercent / 100
	exp := i - m
	factor := math.Pow(1+s, float64(exp))
	raw := midPrice.InexactFloat64() * factor
	return RoundToTickSize(decimal.NewFromFloat(raw), decimal.RequireFromString(defaultTick))
}

// GetGridBounds returns the lower and upper price of the ladder without
// building the whole level slice, using the same formula at i=0 and
// i=N-1.
func GetGridBounds(midPrice decimal.Decimal, cfg config.GridConfig) (lower, upper decimal.Decimal, err error) {
	if midPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, invalidArg("midPrice must be > 0, got %s", midPrice)
	}
	if cfg.GridLevels < 2 {
		return decimal.Zero, decimal.Zero, invalidArg("gridLevels must be >= 2, got %d", cfg.GridLevels)
	}
	m := cfg.GridLevels / 2
	lower = levelPrice(midPrice, cfg.GridSpacingPercent, 0, m)
	upper = levelPrice(midPrice, cfg.GridSpacingPercent, cfg.GridLevels-1, m)
	return lower, upper, nil
}

// CounterSellPrice returns the price one rung above filledBuyIndex, or
// false if that rung is out of bounds (the buy fill happened at the top
// of the ladder).
func CounterSellPrice(filledBuyIndex int, levels []types.GridLevel) (decimal.Decimal, bool) {
	i := filledBuyIndex + 1
	if i >= len(levels) {
		return decimal.Zero, false
	}
	return levels[i].Price, true
}

// CounterBuyPrice returns the price one rung below filledSellIndex, or
// false if filledSellIndex is already the bottom rung.
func CounterBuyPrice(filledSellIndex int, levels []types.GridLevel) (decimal.Decimal, bool) {
	if filledSellIndex == 0 {
		return decimal.Zero, false
	}
	return levels[filledSellIndex-1].Price, true
}

// EstimatedAnnualReturnRate gives a coarse a-priori return estimate used
// only to reject configs whose spacing is tighter than the round-trip
// taker fee. It returns 0 for degenerate inputs and any non-positive
// result is treated by callers as "unprofitable".
func EstimatedAnnualReturnRate(midPrice decimal.Decimal, cfg config.GridConfig, annualOscillations int, takerFee float64) float64 {
	if annualOscillations <= 0 {
		annualOscillations = 300
	}
	if takerFee == 0 {
		takerFee = 0.00045
	}
	if midPrice.IsZero() || cfg.GridLevels == 0 || cfg.OrderSizeBtc == 0 {
		return 0
	}

	spacingFraction := cfg.GridSpacingPercent / 100
	p := spacingFraction - 2*takerFee
	if p <= 0 {
		return 0
	}
	return float64(annualOscillations) * p / float64(cfg.GridLevels)
}

// RoundToTickSize rounds price to the nearest multiple of tick, ties
// rounding away from zero ("banker's away-from-zero"). Monetary
// arithmetic everywhere else in this package stays in fixed-point
// decimal; this is the only rounding boundary.
func RoundToTickSize(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	quotient := price.Div(tick)
	rounded := roundHalfAwayFromZero(quotient)
	return rounded.Mul(tick)
}

// roundHalfAwayFromZero rounds d to the nearest integer, with .5 ties
// rounding away from zero rather than shopspring's default
// round-half-to-even.
func roundHalfAwayFromZero(d decimal.Decimal) decimal.Decimal {
	floor := d.Floor()
	diff := d.Sub(floor)
	half := decimal.NewFromFloat(0.5)

	switch {
	case diff.LessThan(half):
		return floor
	case diff.GreaterThan(half):
		return floor.Add(decimal.NewFromInt(1))
	default:
		// exact tie: away from zero
		if d.IsNegative() {
			return floor
		}
		return floor.Add(decimal.NewFromInt(1))
	}
}
