// Package exchange implements the exchange REST boundary: the
// ExchangeClient capability contract, a signed REST client backend, and
// the EIP-712 Signer that produces its request signatures.
//
// The REST client (RESTClient) talks to two endpoints:
//   - POST /info     — market data, account state, open orders, asset index,
//     spot balance (unsigned reads).
//   - POST /exchange  — order placement, cancellation, and spot↔perp
//     transfer (signed actions).
//
// Every request is rate-limited via per-category TokenBuckets and uses a
// single 10s timeout per call; failures are not retried inside a call —
// the next orchestrator tick is the retry.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"gridbot/pkg/types"
)

// Client is the capability contract the strategy and orchestrator depend
// on. It is deliberately thin so an in-memory Fake can back unit tests;
// the production backend is RESTClient.
type Client interface {
	GetMarketData(ctx context.Context, symbol string) (types.MarketData, error)
	GetAccountState(ctx context.Context) (types.AccountState, error)
	GetOpenOrders(ctx context.Context) ([]types.Order, error)
	PlaceLimitOrder(ctx context.Context, symbol string, asset int, side types.Side, price, size decimal.Decimal) (int64, error)
	CancelOrder(ctx context.Context, asset int, orderID int64) (bool, error)
	CancelAllOrders(ctx context.Context, asset int) (int, error)
	GetAssetIndex(ctx context.Context, symbol string) (int, error)
	GetSpotUsdcBalance(ctx context.Context) (decimal.Decimal, error)
	TransferSpotToPerps(ctx context.Context, amount decimal.Decimal) error
}

// RESTClient is the signed REST implementation of Client: a shared HTTP
// client with base URL, 10s timeout, one attempt per call, and
// per-category rate limiting.
type RESTClient struct {
	http    *resty.Client
	signer  *Signer
	address string
	rl      *RateLimiter
	dryRun  bool
	logger  *slog.Logger
}

// NewRESTClient creates a signed REST client.
func NewRESTClient(baseURL string, signer *Signer, address string, dryRun bool, logger *slog.Logger) *RESTClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")

	return &RESTClient{
		http:    httpClient,
		signer:  signer,
		address: address,
		rl:      NewRateLimiter(),
		dryRun:  dryRun,
		logger:  logger.With("component", "exchange"),
	}
}

type allMidsResponse map[string]string

// GetMarketData fetches {type: "l2Book"} and derives a MarketData whose
// mid is the average of the best bid and best ask. A book whose mid is
// not strictly positive is returned as an error.
func (c *RESTClient) GetMarketData(ctx context.Context, symbol string) (types.MarketData, error) {
	if err := c.rl.Info.Wait(ctx); err != nil {
		return types.MarketData{}, err
	}

	var book l2BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "l2Book", "coin": symbol}).
		SetResult(&book).
		Post("/info")
	if err != nil {
		return types.MarketData{}, fmt.Errorf("get market data: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.MarketData{}, fmt.Errorf("get market data: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(book.Levels) != 2 || len(book.Levels[0]) == 0 || len(book.Levels[1]) == 0 {
		return types.MarketData{}, fmt.Errorf("get market data: empty book for %s", symbol)
	}

	bid, err := decimal.NewFromString(book.Levels[0][0].Px)
	if err != nil {
		return types.MarketData{}, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := decimal.NewFromString(book.Levels[1][0].Px)
	if err != nil {
		return types.MarketData{}, fmt.Errorf("parse ask: %w", err)
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return types.MarketData{}, fmt.Errorf("get market data: non-positive mid %s for %s", mid, symbol)
	}

	return types.MarketData{
		Symbol:    symbol,
		MidPrice:  mid,
		BidPrice:  bid,
		AskPrice:  ask,
		Timestamp: time.Now(),
	}, nil
}

type l2BookLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type l2BookResponse struct {
	Levels [][]l2BookLevel `json:"levels"`
}

type clearinghouseStateResponse struct {
	MarginSummary struct {
		AccountValue    string `json:"accountValue"`
		TotalMarginUsed string `json:"totalMarginUsed"`
		TotalRawUsd     string `json:"totalRawUsd"`
	} `json:"marginSummary"`
	AssetPositions []struct {
		Position struct {
			Coin          string `json:"coin"`
			Szi           string `json:"szi"`
			EntryPx       string `json:"entryPx"`
			UnrealizedPnl string `json:"unrealizedPnl"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// GetAccountState fetches {type: "clearinghouseState"}.
func (c *RESTClient) GetAccountState(ctx context.Context) (types.AccountState, error) {
	if err := c.rl.Info.Wait(ctx); err != nil {
		return types.AccountState{}, err
	}

	var raw clearinghouseStateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "clearinghouseState", "user": c.address}).
		SetResult(&raw).
		Post("/info")
	if err != nil {
		return types.AccountState{}, fmt.Errorf("get account state: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.AccountState{}, fmt.Errorf("get account state: status %d: %s", resp.StatusCode(), resp.String())
	}

	equity, err := decimal.NewFromString(raw.MarginSummary.AccountValue)
	if err != nil {
		return types.AccountState{}, fmt.Errorf("parse account value: %w", err)
	}
	marginUsed, err := decimal.NewFromString(raw.MarginSummary.TotalMarginUsed)
	if err != nil {
		return types.AccountState{}, fmt.Errorf("parse margin used: %w", err)
	}

	positions := make([]types.Position, 0, len(raw.AssetPositions))
	for _, ap := range raw.AssetPositions {
		size, err := decimal.NewFromString(ap.Position.Szi)
		if err != nil {
			continue
		}
		entry, _ := decimal.NewFromString(ap.Position.EntryPx)
		unrealized, _ := decimal.NewFromString(ap.Position.UnrealizedPnl)
		positions = append(positions, types.Position{
			Symbol:        ap.Position.Coin,
			Size:          size,
			EntryPrice:    entry,
			UnrealizedPnl: unrealized,
		})
	}

	return types.AccountState{
		TotalEquity:      equity,
		AvailableBalance: equity.Sub(marginUsed),
		MarginUsed:       marginUsed,
		Positions:        positions,
	}, nil
}

type openOrderResponse struct {
	Oid       int64  `json:"oid"`
	Coin      string `json:"coin"`
	Side      string `json:"side"` // "B" buy, "A" ask/sell
	LimitPx   string `json:"limitPx"`
	Sz        string `json:"sz"`
	OrigSz    string `json:"origSz"`
	Timestamp int64  `json:"timestamp"`
}

// GetOpenOrders fetches {type: "openOrders"} and returns a normalised
// snapshot of currently resting orders.
func (c *RESTClient) GetOpenOrders(ctx context.Context) ([]types.Order, error) {
	if err := c.rl.Info.Wait(ctx); err != nil {
		return nil, err
	}

	var raw []openOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "openOrders", "user": c.address}).
		SetResult(&raw).
		Post("/info")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get open orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	orders := make([]types.Order, 0, len(raw))
	for _, o := range raw {
		price, err := decimal.NewFromString(o.LimitPx)
		if err != nil {
			continue
		}
		remaining, _ := decimal.NewFromString(o.Sz)
		orig, _ := decimal.NewFromString(o.OrigSz)
		side := types.Buy
		if o.Side == "A" {
			side = types.Sell
		}
		orders = append(orders, types.Order{
			ID:         o.Oid,
			Symbol:     o.Coin,
			Side:       side,
			Price:      price,
			Size:       orig,
			FilledSize: orig.Sub(remaining),
			Status:     "open",
			CreatedAt:  time.UnixMilli(o.Timestamp),
		})
	}
	return orders, nil
}

type orderActionOrder struct {
	A int       `msgpack:"a"`
	B bool      `msgpack:"b"`
	P string    `msgpack:"p"`
	S string    `msgpack:"s"`
	R bool      `msgpack:"r"`
	T orderType `msgpack:"t"`
}

type orderType struct {
	Limit limitOrderType `msgpack:"limit"`
}

type limitOrderType struct {
	Tif string `msgpack:"tif"`
}

type orderAction struct {
	Type     string             `msgpack:"type"`
	Orders   []orderActionOrder `msgpack:"orders"`
	Grouping string             `msgpack:"grouping"`
}

type orderStatusResting struct {
	Oid int64 `json:"oid"`
}

type orderStatus struct {
	Resting *orderStatusResting `json:"resting"`
	Filled  *orderStatusResting `json:"filled"`
	Error   string              `json:"error"`
}

type orderResponseEnvelope struct {
	Response struct {
		Data struct {
			Statuses []orderStatus `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// PlaceLimitOrder signs and places one GTC limit order.
func (c *RESTClient) PlaceLimitOrder(ctx context.Context, symbol string, asset int, side types.Side, price, size decimal.Decimal) (int64, error) {
	if price.LessThanOrEqual(decimal.Zero) || size.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("place limit order: price and size must be positive")
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "symbol", symbol, "side", side, "price", price, "size", size)
		return 0, nil
	}
	if err := c.rl.Exchange.Wait(ctx); err != nil {
		return 0, err
	}

	action := orderAction{
		Type: "order",
		Orders: []orderActionOrder{{
			A: asset,
			B: side == types.Buy,
			P: FormatDecimal(price),
			S: FormatDecimal(size),
			R: false,
			T: orderType{Limit: limitOrderType{Tif: "Gtc"}},
		}},
		Grouping: "na",
	}

	sig, nonce, err := c.signer.SignL1Action(action)
	if err != nil {
		return 0, fmt.Errorf("sign order action: %w", err)
	}

	body := map[string]interface{}{
		"action":       action,
		"nonce":        nonce,
		"signature":    sig,
		"vaultAddress": nil,
		"expiresAfter": nil,
	}

	var env orderResponseEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		Post("/exchange")
	if err != nil {
		return 0, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(env.Response.Data.Statuses) == 0 {
		return 0, fmt.Errorf("place order: no status returned")
	}
	st := env.Response.Data.Statuses[0]
	if st.Error != "" {
		return 0, fmt.Errorf("place order rejected: %s", st.Error)
	}
	if st.Resting != nil {
		return st.Resting.Oid, nil
	}
	if st.Filled != nil {
		return st.Filled.Oid, nil
	}
	return 0, fmt.Errorf("place order: unrecognised status")
}

type cancelActionOrder struct {
	A int   `msgpack:"a"`
	O int64 `msgpack:"o"`
}

type cancelAction struct {
	Type    string              `msgpack:"type"`
	Cancels []cancelActionOrder `msgpack:"cancels"`
}

type cancelResponseEnvelope struct {
	Response struct {
		Data struct {
			Statuses []string `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// CancelOrder cancels a single order by id. Returns true iff the exchange
// confirmed removal.
func (c *RESTClient) CancelOrder(ctx context.Context, asset int, orderID int64) (bool, error) {
	if c.dryRun {
		return true, nil
	}
	if err := c.rl.Exchange.Wait(ctx); err != nil {
		return false, err
	}

	action := cancelAction{
		Type:    "cancel",
		Cancels: []cancelActionOrder{{A: asset, O: orderID}},
	}
	sig, nonce, err := c.signer.SignL1Action(action)
	if err != nil {
		return false, fmt.Errorf("sign cancel action: %w", err)
	}

	body := map[string]interface{}{
		"action":       action,
		"nonce":        nonce,
		"signature":    sig,
		"vaultAddress": nil,
		"expiresAfter": nil,
	}

	var env cancelResponseEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		Post("/exchange")
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return len(env.Response.Data.Statuses) > 0 && env.Response.Data.Statuses[0] == "success", nil
}

// CancelAllOrders cancels every resting order for asset, iterating
// GetOpenOrders + CancelOrder. Partial progress is acceptable: a
// cancellation that fails mid-way leaves the remainder for the next tick.
func (c *RESTClient) CancelAllOrders(ctx context.Context, asset int) (int, error) {
	orders, err := c.GetOpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("cancel all orders: %w", err)
	}

	count := 0
	for _, o := range orders {
		ok, err := c.CancelOrder(ctx, asset, o.ID)
		if err != nil {
			c.logger.Warn("cancel order failed during cancel-all", "order_id", o.ID, "error", err)
			continue
		}
		if ok {
			count++
		}
	}
	return count, nil
}

type metaResponse struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

// GetAssetIndex resolves symbol's 0-based index from {type: "meta"}.
func (c *RESTClient) GetAssetIndex(ctx context.Context, symbol string) (int, error) {
	if err := c.rl.Info.Wait(ctx); err != nil {
		return 0, err
	}

	var meta metaResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "meta"}).
		SetResult(&meta).
		Post("/info")
	if err != nil {
		return 0, fmt.Errorf("get asset index: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get asset index: status %d: %s", resp.StatusCode(), resp.String())
	}

	for i, u := range meta.Universe {
		if u.Name == symbol {
			return i, nil
		}
	}
	return 0, fmt.Errorf("get asset index: symbol %q not found", symbol)
}

type spotClearinghouseStateResponse struct {
	Balances []struct {
		Coin  string `json:"coin"`
		Total string `json:"total"`
	} `json:"balances"`
}

// GetSpotUsdcBalance fetches {type: "spotClearinghouseState"} and returns
// the USDC balance (0 if no USDC entry exists).
func (c *RESTClient) GetSpotUsdcBalance(ctx context.Context) (decimal.Decimal, error) {
	if err := c.rl.Info.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	var raw spotClearinghouseStateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "spotClearinghouseState", "user": c.address}).
		SetResult(&raw).
		Post("/info")
	if err != nil {
		return decimal.Zero, fmt.Errorf("get spot balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("get spot balance: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, b := range raw.Balances {
		if b.Coin == "USDC" {
			total, err := decimal.NewFromString(b.Total)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse spot balance: %w", err)
			}
			return total, nil
		}
	}
	return decimal.Zero, nil
}

// TransferSpotToPerps signs and submits a usdClassTransfer (Scheme-B,
// user-signed action). The balance moves asynchronously at the exchange;
// callers that need the updated perp equity must re-read it after a
// settlement pause.
func (c *RESTClient) TransferSpotToPerps(ctx context.Context, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("transfer spot to perps: amount must be positive")
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would transfer spot to perps", "amount", amount)
		return nil
	}
	if err := c.rl.Exchange.Wait(ctx); err != nil {
		return err
	}

	sig, nonce, chain, err := c.signer.SignUsdClassTransfer(amount)
	if err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}

	chainName := "Testnet"
	if c.signer.isMainnet {
		chainName = "Mainnet"
	}

	body := map[string]interface{}{
		"action": map[string]interface{}{
			"type":             "usdClassTransfer",
			"amount":           FormatDecimal(amount),
			"toPerp":           true,
			"nonce":            nonce,
			"signatureChainId": chain,
			"hyperliquidChain": chainName,
		},
		"nonce":        nonce,
		"signature":    sig,
		"vaultAddress": nil,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/exchange")
	if err != nil {
		return fmt.Errorf("transfer spot to perps: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("transfer spot to perps: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
