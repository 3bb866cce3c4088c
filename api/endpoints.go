package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ekidenfi/ekiden-go/auth"
	"github.com/ekidenfi/ekiden-go/model"
)

// ListMarkets fetches a page of markets.
func (c *Client) ListMarkets(ctx context.Context, params ListMarketsParams) ([]model.Market, error) {
	query := url.Values{}
	setIfNonEmpty(query, "market_addr", params.MarketAddr)
	setIfNonEmpty(query, "symbol", params.Symbol)
	params.Page.apply(query)

	var markets []model.Market
	if err := c.do(ctx, http.MethodGet, "market_info", query, nil, "", &markets); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return markets, nil
}

// ListAllMarkets pages through every market matching the filters.
func (c *Client) ListAllMarkets(ctx context.Context, params ListMarketsParams) ([]model.Market, error) {
	return collectPages(params.Page, func(p Page) ([]model.Market, error) {
		params.Page = p
		return c.ListMarkets(ctx, params)
	})
}

// GetMarket fetches one market by address.
func (c *Client) GetMarket(ctx context.Context, marketAddr string) (*model.Market, error) {
	markets, err := c.ListMarkets(ctx, ListMarketsParams{MarketAddr: marketAddr, Page: Page{Limit: 1}})
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "market not found"}
	}
	return &markets[0], nil
}

// ListOrders fetches a page of resting orders for a market.
func (c *Client) ListOrders(ctx context.Context, params ListOrdersParams) ([]model.Order, error) {
	query := url.Values{}
	query.Set("market_addr", params.MarketAddr)
	setIfNonEmpty(query, "side", params.Side)
	params.Page.apply(query)

	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "orders", query, nil, "", &orders); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListFills fetches a page of executed fills for a market.
func (c *Client) ListFills(ctx context.Context, params ListFillsParams) ([]model.Fill, error) {
	query := url.Values{}
	query.Set("market_addr", params.MarketAddr)
	params.Page.apply(query)

	var fills []model.Fill
	if err := c.do(ctx, http.MethodGet, "fills", query, nil, "", &fills); err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	return fills, nil
}

// ListCandles fetches a page of OHLCV bars.
func (c *Client) ListCandles(ctx context.Context, params ListCandlesParams) ([]model.Candle, error) {
	query := url.Values{}
	query.Set("market_addr", params.MarketAddr)
	query.Set("interval", params.Interval)
	setIfNonZero(query, "start_time", params.StartTime)
	setIfNonZero(query, "end_time", params.EndTime)
	params.Page.apply(query)

	var candles []model.Candle
	if err := c.do(ctx, http.MethodGet, "candles", query, nil, "", &candles); err != nil {
		return nil, fmt.Errorf("list candles: %w", err)
	}
	return candles, nil
}

// ListFundingRates fetches a page of funding rate history.
func (c *Client) ListFundingRates(ctx context.Context, params ListFundingParams) ([]model.FundingRate, error) {
	query := url.Values{}
	query.Set("market_addr", params.MarketAddr)
	setIfNonZero(query, "start_time", params.StartTime)
	setIfNonZero(query, "end_time", params.EndTime)
	params.Page.apply(query)

	var rates []model.FundingRate
	if err := c.do(ctx, http.MethodGet, "funding_rate", query, nil, "", &rates); err != nil {
		return nil, fmt.Errorf("list funding rates: %w", err)
	}
	return rates, nil
}

// ListDeposits fetches a page of settled deposits.
func (c *Client) ListDeposits(ctx context.Context, params ListTransfersParams) ([]model.Deposit, error) {
	var deposits []model.Deposit
	if err := c.do(ctx, http.MethodGet, "deposits", transferQuery(params), nil, "", &deposits); err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return deposits, nil
}

// ListWithdrawals fetches a page of settled withdrawals.
func (c *Client) ListWithdrawals(ctx context.Context, params ListTransfersParams) ([]model.Withdrawal, error) {
	var withdrawals []model.Withdrawal
	if err := c.do(ctx, http.MethodGet, "withdraws", transferQuery(params), nil, "", &withdrawals); err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return withdrawals, nil
}

func transferQuery(params ListTransfersParams) url.Values {
	query := url.Values{}
	setIfNonEmpty(query, "user_addr", params.UserAddr)
	setIfNonEmpty(query, "vault_addr", params.VaultAddr)
	setIfNonEmpty(query, "asset_addr", params.AssetAddr)
	setIfNonZero(query, "start_version", params.StartVersion)
	setIfNonZero(query, "end_version", params.EndVersion)
	params.Page.apply(query)
	return query
}

// UserVaults fetches the authenticated user's collateral vaults.
func (c *Client) UserVaults(ctx context.Context, page Page) ([]model.Vault, error) {
	query := url.Values{}
	page.apply(query)

	var vaults []model.Vault
	if err := c.authed(ctx, http.MethodGet, "user/vaults", query, nil, &vaults); err != nil {
		return nil, fmt.Errorf("user vaults: %w", err)
	}
	return vaults, nil
}

// UserPositions fetches the authenticated user's open positions.
func (c *Client) UserPositions(ctx context.Context, params ListPositionsParams) ([]model.Position, error) {
	query := url.Values{}
	setIfNonEmpty(query, "market_addr", params.MarketAddr)
	params.Page.apply(query)

	var positions []model.Position
	if err := c.authed(ctx, http.MethodGet, "user/positions", query, nil, &positions); err != nil {
		return nil, fmt.Errorf("user positions: %w", err)
	}
	return positions, nil
}

// UserLeverage fetches the configured leverage for one market.
func (c *Client) UserLeverage(ctx context.Context, marketAddr string) (*model.Leverage, error) {
	query := url.Values{}
	query.Set("market_addr", marketAddr)

	var lev model.Leverage
	if err := c.authed(ctx, http.MethodGet, "user/leverage", query, nil, &lev); err != nil {
		return nil, fmt.Errorf("user leverage: %w", err)
	}
	return &lev, nil
}

type setLeverageParams struct {
	MarketAddr string `json:"market_addr"`
	Leverage   uint64 `json:"leverage"`
}

// SetUserLeverage updates the leverage for one market.
func (c *Client) SetUserLeverage(ctx context.Context, marketAddr string, leverage uint64) (*model.Leverage, error) {
	body := setLeverageParams{MarketAddr: marketAddr, Leverage: leverage}

	var lev model.Leverage
	if err := c.authed(ctx, http.MethodPost, "user/leverage", nil, body, &lev); err != nil {
		return nil, fmt.Errorf("set user leverage: %w", err)
	}
	return &lev, nil
}

// UserPortfolio fetches the authenticated user's aggregated portfolio.
func (c *Client) UserPortfolio(ctx context.Context) (*model.Portfolio, error) {
	var portfolio model.Portfolio
	if err := c.authed(ctx, http.MethodGet, "user/portfolio", nil, nil, &portfolio); err != nil {
		return nil, fmt.Errorf("user portfolio: %w", err)
	}
	return &portfolio, nil
}

// Intent is a signed batch of actions ready for submission. The signature
// covers the JSON encoding of Actions exactly as serialized here.
type Intent struct {
	Actions   []model.IntentAction `json:"actions"`
	Signature string               `json:"signature"`
}

// SignIntent serializes actions and signs them with the given signer.
func SignIntent(signer auth.Signer, actions []model.IntentAction) (Intent, error) {
	payload, err := json.Marshal(actions)
	if err != nil {
		return Intent{}, fmt.Errorf("encode intent actions: %w", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return Intent{}, fmt.Errorf("sign intent: %w", err)
	}
	return Intent{
		Actions:   actions,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// SendIntent submits a signed intent for execution.
func (c *Client) SendIntent(ctx context.Context, intent Intent) (*model.IntentReceipt, error) {
	var receipt model.IntentReceipt
	if err := c.authed(ctx, http.MethodPost, "user/intent", nil, intent, &receipt); err != nil {
		return nil, fmt.Errorf("send intent: %w", err)
	}
	return &receipt, nil
}

// collectPages loops a page fetcher until it returns a short page,
// starting from the offset in first.
func collectPages[T any](first Page, fetch func(Page) ([]T, error)) ([]T, error) {
	page := Page{Limit: first.limit(), Offset: first.Offset}
	var all []T
	for {
		items, err := fetch(page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < page.Limit {
			return all, nil
		}
		page.Offset += page.Limit
	}
}
