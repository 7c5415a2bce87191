package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/pkg/types"
)

// Fake is an in-memory Client for strategy and orchestrator unit tests. It
// tracks resting orders and lets a test fill one directly via Fill,
// bypassing any real matching logic — tests control exactly which rung
// fills and when.
type Fake struct {
	mu sync.Mutex

	Market  types.MarketData
	Account types.AccountState
	Orders  map[int64]types.Order

	nextID     int64
	AssetIndex int
	SpotUsdc   decimal.Decimal

	// Injectable failures, checked before the corresponding happy path.
	MarketErr   error
	AccountErr  error
	PlaceErr    error
	CancelErr   error
	TransferErr error
}

// NewFake builds a Fake seeded with a starting mid price and equity.
func NewFake(symbol string, mid decimal.Decimal, equity decimal.Decimal) *Fake {
	return &Fake{
		Market: types.MarketData{
			Symbol:   symbol,
			MidPrice: mid,
			BidPrice: mid,
			AskPrice: mid,
		},
		Account: types.AccountState{
			TotalEquity:      equity,
			AvailableBalance: equity,
		},
		Orders:   make(map[int64]types.Order),
		nextID:   1,
		SpotUsdc: decimal.Zero,
	}
}

func (f *Fake) GetMarketData(_ context.Context, _ string) (types.MarketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarketErr != nil {
		return types.MarketData{}, f.MarketErr
	}
	m := f.Market
	m.Timestamp = time.Now()
	return m, nil
}

func (f *Fake) GetAccountState(_ context.Context) (types.AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AccountErr != nil {
		return types.AccountState{}, f.AccountErr
	}
	return f.Account, nil
}

func (f *Fake) GetOpenOrders(_ context.Context) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Order, 0, len(f.Orders))
	for _, o := range f.Orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *Fake) PlaceLimitOrder(_ context.Context, symbol string, _ int, side types.Side, price, size decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlaceErr != nil {
		return 0, f.PlaceErr
	}
	id := f.nextID
	f.nextID++
	f.Orders[id] = types.Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    "open",
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (f *Fake) CancelOrder(_ context.Context, _ int, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return false, f.CancelErr
	}
	if _, ok := f.Orders[orderID]; !ok {
		return false, nil
	}
	delete(f.Orders, orderID)
	return true, nil
}

func (f *Fake) CancelAllOrders(_ context.Context, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return 0, f.CancelErr
	}
	n := len(f.Orders)
	f.Orders = make(map[int64]types.Order)
	return n, nil
}

func (f *Fake) GetAssetIndex(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AssetIndex, nil
}

func (f *Fake) GetSpotUsdcBalance(_ context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SpotUsdc, nil
}

func (f *Fake) TransferSpotToPerps(_ context.Context, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return f.TransferErr
	}
	if f.SpotUsdc.LessThan(amount) {
		return fmt.Errorf("transfer spot to perps: insufficient spot balance")
	}
	f.SpotUsdc = f.SpotUsdc.Sub(amount)
	f.Account.TotalEquity = f.Account.TotalEquity.Add(amount)
	f.Account.AvailableBalance = f.Account.AvailableBalance.Add(amount)
	return nil
}

// Fill marks orderID as fully filled and removes it from the resting set,
// simulating what a subsequent GetOpenOrders diff would observe. It
// returns the filled order for the test to act on.
func (f *Fake) Fill(orderID int64) (types.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.Orders[orderID]
	if !ok {
		return types.Order{}, false
	}
	o.FilledSize = o.Size
	o.Status = "filled"
	delete(f.Orders, orderID)
	return o, true
}

// SetMidPrice updates the simulated market mid/bid/ask to a single price.
func (f *Fake) SetMidPrice(price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Market.MidPrice = price
	f.Market.BidPrice = price
	f.Market.AskPrice = price
}
