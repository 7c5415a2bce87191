// Package types defines shared data structures used across all packages.
//
// This is the common vocabulary for the engine — grid levels, orders,
// market/account snapshots, and the risk verdict sum type. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order or grid level.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// LevelStatus is the lifecycle state of one grid rung.
type LevelStatus string

const (
	Pending   LevelStatus = "PENDING"
	Active    LevelStatus = "ACTIVE"
	Filled    LevelStatus = "FILLED"
	Cancelled LevelStatus = "CANCELLED"
)

// ————————————————————————————————————————————————————————————————————————
// Grid
// ————————————————————————————————————————————————————————————————————————

// GridLevel is one rung of the ladder. The Strategy is the sole owner and
// mutator; cross-rung lookup always goes through Index±1, never a pointer
// from one level to another.
type GridLevel struct {
	Index       int             `json:"index"`
	Price       decimal.Decimal `json:"price"`
	Side        Side            `json:"side"`
	Size        decimal.Decimal `json:"size"`
	Status      LevelStatus     `json:"status"`
	OrderID     int64           `json:"orderId"` // valid iff Status has ever reached Active
	PlacedAt    time.Time       `json:"placedAt"`
	FilledAt    time.Time       `json:"filledAt"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"`
}

// ————————————————————————————————————————————————————————————————————————
// Exchange-normalised order / market / account state
// ————————————————————————————————————————————————————————————————————————

// Order is a normalised exchange order as reported by GetOpenOrders.
type Order struct {
	ID         int64
	Symbol     string
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	FilledSize decimal.Decimal
	Status     string
	CreatedAt  time.Time
}

// IsFullyFilled reports whether the order has filled its full size.
func (o Order) IsFullyFilled() bool {
	return o.FilledSize.GreaterThanOrEqual(o.Size)
}

// MarketData is a point-in-time market reference.
type MarketData struct {
	Symbol    string
	MidPrice  decimal.Decimal
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}

// Position is one asset's signed exposure within the account.
type Position struct {
	Symbol        string
	Size          decimal.Decimal // signed: + long, - short
	EntryPrice    decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// AccountState is the account snapshot used by the risk manager and the
// orchestrator's startup sequence.
type AccountState struct {
	TotalEquity      decimal.Decimal
	AvailableBalance decimal.Decimal
	MarginUsed       decimal.Decimal
	Positions        []Position
}

// NetPosition returns the signed sum of position sizes for symbol.
func (a AccountState) NetPosition(symbol string) decimal.Decimal {
	net := decimal.Zero
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			net = net.Add(p.Size)
		}
	}
	return net
}

// ————————————————————————————————————————————————————————————————————————
// Risk verdict — tagged sum type
// ————————————————————————————————————————————————————————————————————————

// VerdictKind discriminates the RiskVerdict tagged union.
type VerdictKind int

const (
	VerdictContinue VerdictKind = iota
	VerdictResetGrid
	VerdictHalt
)

// RiskVerdict is the result of one risk evaluation. Reason is empty for
// Continue; consumers must exhaustively branch on Kind.
type RiskVerdict struct {
	Kind   VerdictKind
	Reason string
}

func ContinueVerdict() RiskVerdict { return RiskVerdict{Kind: VerdictContinue} }

func ResetVerdict(reason string) RiskVerdict {
	return RiskVerdict{Kind: VerdictResetGrid, Reason: reason}
}

func HaltVerdict(reason string) RiskVerdict {
	return RiskVerdict{Kind: VerdictHalt, Reason: reason}
}

// ————————————————————————————————————————————————————————————————————————
// Fills
// ————————————————————————————————————————————————————————————————————————

// FillRecord is an append-only log entry describing one detected fill.
type FillRecord struct {
	Time  time.Time       `json:"time"`
	Side  Side            `json:"side"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Pnl   decimal.Decimal `json:"pnl"`
}
