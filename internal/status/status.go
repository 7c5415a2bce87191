// Package status implements the read-only observability surface: an HTTP
// GET /api/status snapshot and a /ws push channel. It is fed solely by
// the orchestrator's per-tick publish and never reaches into strategy or
// exchange state on its own.
package status

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/pkg/types"
)

const (
	maxHistoryPoints = 120
	maxRecentFills   = 50
)

// PricePoint is one bounded-FIFO entry in the price/PnL history.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

// Snapshot is the full JSON shape served at GET /api/status.
type Snapshot struct {
	IsRunning        bool               `json:"isRunning"`
	SyncCount        int                `json:"syncCount"`
	MidPrice         decimal.Decimal    `json:"midPrice"`
	TotalEquity      decimal.Decimal    `json:"totalEquity"`
	AvailableBalance decimal.Decimal    `json:"availableBalance"`
	RealizedPnl      decimal.Decimal    `json:"realizedPnl"`
	ActiveOrders     int                `json:"activeOrders"`
	FilledLevels     int                `json:"filledLevels"`
	TotalFills       int                `json:"totalFills"`
	Levels           []types.GridLevel  `json:"levels"`
	RecentFills      []types.FillRecord `json:"recentFills"`
	PriceHistory     []PricePoint       `json:"priceHistory"`
	PnlHistory       []PricePoint       `json:"pnlHistory"`
}

// Cache is the single mutex-protected snapshot reference external readers
// see. Writers replace the whole reference under a short-held lock;
// readers copy out. Bounded FIFOs (history, recent fills) cap memory by
// dropping the oldest entry.
type Cache struct {
	mu sync.Mutex

	current Snapshot

	priceHistory []PricePoint
	pnlHistory   []PricePoint
	recentFills  []types.FillRecord
	totalFills   int
}

// NewCache creates an empty status cache.
func NewCache() *Cache {
	return &Cache{current: Snapshot{IsRunning: true}}
}

// Update replaces the snapshot. newFills are appended to the bounded
// recent-fills FIFO and totalFills counter; midPrice/realizedPnl are
// appended to their bounded history FIFOs.
func (c *Cache) Update(isRunning bool, syncCount int, mid, totalEquity, availableBalance, realizedPnl decimal.Decimal, activeOrders, filledLevels int, levels []types.GridLevel, newFills []types.FillRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.priceHistory = appendBounded(c.priceHistory, PricePoint{Time: now, Value: mid}, maxHistoryPoints)
	c.pnlHistory = appendBounded(c.pnlHistory, PricePoint{Time: now, Value: realizedPnl}, maxHistoryPoints)

	for _, f := range newFills {
		c.recentFills = appendBoundedFill(c.recentFills, f, maxRecentFills)
		c.totalFills++
	}

	levelsCopy := make([]types.GridLevel, len(levels))
	copy(levelsCopy, levels)

	c.current = Snapshot{
		IsRunning:        isRunning,
		SyncCount:        syncCount,
		MidPrice:         mid,
		TotalEquity:      totalEquity,
		AvailableBalance: availableBalance,
		RealizedPnl:      realizedPnl,
		ActiveOrders:     activeOrders,
		FilledLevels:     filledLevels,
		TotalFills:       c.totalFills,
		Levels:           levelsCopy,
		RecentFills:      append([]types.FillRecord(nil), c.recentFills...),
		PriceHistory:     append([]PricePoint(nil), c.priceHistory...),
		PnlHistory:       append([]PricePoint(nil), c.pnlHistory...),
	}
}

// Snapshot returns a copy of the current snapshot for a reader. The
// slices are copied too — a reader must never share backing arrays with
// the next writer.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.current
	snap.Levels = append([]types.GridLevel(nil), c.current.Levels...)
	snap.RecentFills = append([]types.FillRecord(nil), c.current.RecentFills...)
	snap.PriceHistory = append([]PricePoint(nil), c.current.PriceHistory...)
	snap.PnlHistory = append([]PricePoint(nil), c.current.PnlHistory...)
	return snap
}

func appendBounded(fifo []PricePoint, point PricePoint, max int) []PricePoint {
	fifo = append(fifo, point)
	if len(fifo) > max {
		fifo = fifo[len(fifo)-max:]
	}
	return fifo
}

func appendBoundedFill(fifo []types.FillRecord, fill types.FillRecord, max int) []types.FillRecord {
	fifo = append(fifo, fill)
	if len(fifo) > max {
		fifo = fifo[len(fifo)-max:]
	}
	return fifo
}
