package model

import "encoding/json"

// -----------------------------------------------------------------------------
// Market Types
// -----------------------------------------------------------------------------

// Market describes a perpetual market listed on the gateway.
type Market struct {
	Symbol        string `json:"symbol"`
	BaseAddr      string `json:"base_addr"`
	BaseDecimals  uint8  `json:"base_decimals"`
	QuoteAddr     string `json:"quote_addr"`
	QuoteDecimals uint8  `json:"quote_decimals"`

	MinOrderSize uint64 `json:"min_order_size"`
	MaxLeverage  uint32 `json:"max_leverage"`

	InitialMarginRatio     float64 `json:"initial_margin_ratio"`
	MaintenanceMarginRatio float64 `json:"maintenance_margin_ratio"`

	MarkPrice    uint64 `json:"mark_price"`
	OraclePrice  uint64 `json:"oracle_price"`
	OpenInterest uint64 `json:"open_interest"`

	FundingIndex uint64 `json:"funding_index"`
	FundingEpoch uint64 `json:"funding_epoch"`

	Root  string `json:"root"`
	Epoch uint64 `json:"epoch"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// OrderbookLevel is one price level of an orderbook side.
type OrderbookLevel struct {
	Price uint64 `json:"price"`
	Size  uint64 `json:"size"`
}

// OrderbookSnapshot is the full book state for a market at a point in time.
type OrderbookSnapshot struct {
	MarketAddr string           `json:"market_addr"`
	Bids       []OrderbookLevel `json:"bids"`
	Asks       []OrderbookLevel `json:"asks"`
	Timestamp  uint64           `json:"timestamp"`
}

// OrderbookDelta is an incremental book change. Levels with size 0 remove
// the price level; all other levels replace the previous size.
type OrderbookDelta struct {
	MarketAddr string           `json:"market_addr"`
	Bids       []OrderbookLevel `json:"bids"`
	Asks       []OrderbookLevel `json:"asks"`
	Timestamp  uint64           `json:"timestamp"`
}

// Trade is an executed trade on a market.
type Trade struct {
	MarketAddr string `json:"market_addr"`
	Price      uint64 `json:"price"`
	Size       uint64 `json:"size"`
	Side       string `json:"side"` // "buy" or "sell", taker side
	Timestamp  uint64 `json:"timestamp"`
}

// Candle is one OHLCV bar for a market at a given interval.
type Candle struct {
	MarketAddr string `json:"market_addr"`
	Timestamp  uint64 `json:"timestamp"`
	Open       uint64 `json:"open"`
	High       uint64 `json:"high"`
	Low        uint64 `json:"low"`
	Close      uint64 `json:"close"`
	Volume     uint64 `json:"volume"`
	Interval   string `json:"interval"`
}

// FundingRate is a funding rate observation for a market.
type FundingRate struct {
	MarketAddr      string  `json:"market_addr"`
	FundingRate     float64 `json:"funding_rate"`
	FundingIndex    uint64  `json:"funding_index"`
	FundingEpoch    uint64  `json:"funding_epoch"`
	NextFundingTime uint64  `json:"next_funding_time"`
	Timestamp       uint64  `json:"timestamp"`
}

// CandleIntervals lists the bar intervals the gateway serves.
var CandleIntervals = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// -----------------------------------------------------------------------------
// Order and Fill Types
// -----------------------------------------------------------------------------

// Order sides and types as they appear on the wire.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Order is a resting or historical order.
type Order struct {
	SID        string `json:"sid"` // gateway-assigned order identifier
	Side       string `json:"side"`
	Size       uint64 `json:"size"`
	Price      uint64 `json:"price"`
	Leverage   uint64 `json:"leverage"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	UserAddr   string `json:"user_addr"`
	MarketAddr string `json:"market_addr"`
	Seq        uint64 `json:"seq"`
	Timestamp  uint64 `json:"timestamp"`
}

// Fill is a single execution against an order.
type Fill struct {
	SID        string `json:"sid"`
	Price      uint64 `json:"price"`
	Size       uint64 `json:"size"`
	Side       string `json:"side"`
	TakerAddr  string `json:"taker_addr"`
	MakerAddr  string `json:"maker_addr"`
	MarketAddr string `json:"market_addr"`
	Seq        uint64 `json:"seq"`
	Timestamp  uint64 `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// Vault is a per-asset collateral account.
type Vault struct {
	VaultAddr        string `json:"vault_addr"`
	UserAddr         string `json:"user_addr"`
	AssetAddr        string `json:"asset_addr"`
	Balance          uint64 `json:"balance"`
	LockedBalance    uint64 `json:"locked_balance"`
	AvailableBalance uint64 `json:"available_balance"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// Position is an open position in one market.
type Position struct {
	MarketAddr       string `json:"market_addr"`
	UserAddr         string `json:"user_addr"`
	Side             string `json:"side"`
	Size             uint64 `json:"size"`
	EntryPrice       uint64 `json:"entry_price"`
	MarkPrice        uint64 `json:"mark_price"`
	UnrealizedPnl    int64  `json:"unrealized_pnl"`
	Margin           uint64 `json:"margin"`
	Leverage         uint64 `json:"leverage"`
	LiquidationPrice uint64 `json:"liquidation_price"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// Leverage is the configured leverage for one user and market.
type Leverage struct {
	MarketAddr string `json:"market_addr"`
	UserAddr   string `json:"user_addr"`
	Leverage   uint64 `json:"leverage"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// Portfolio aggregates a user's positions and vaults with a value summary.
type Portfolio struct {
	Summary   PortfolioSummary    `json:"summary"`
	Positions []PortfolioPosition `json:"positions"`
	Vaults    []PortfolioVault    `json:"vaults"`
}

// PortfolioSummary is the account-level rollup.
type PortfolioSummary struct {
	TotalValue       uint64 `json:"total_value"`
	AvailableBalance uint64 `json:"available_balance"`
	LockedBalance    uint64 `json:"locked_balance"`
	UnrealizedPnl    int64  `json:"unrealized_pnl"`
	MarginUsed       uint64 `json:"margin_used"`
	MarginAvailable  uint64 `json:"margin_available"`
}

// PortfolioPosition is a position row within a portfolio response.
type PortfolioPosition struct {
	MarketAddr    string `json:"market_addr"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          uint64 `json:"size"`
	EntryPrice    uint64 `json:"entry_price"`
	MarkPrice     uint64 `json:"mark_price"`
	UnrealizedPnl int64  `json:"unrealized_pnl"`
	Margin        uint64 `json:"margin"`
	Leverage      uint64 `json:"leverage"`
}

// PortfolioVault is a vault row within a portfolio response.
type PortfolioVault struct {
	VaultAddr        string `json:"vault_addr"`
	AssetAddr        string `json:"asset_addr"`
	Symbol           string `json:"symbol"`
	Balance          uint64 `json:"balance"`
	LockedBalance    uint64 `json:"locked_balance"`
	AvailableBalance uint64 `json:"available_balance"`
	USDValue         uint64 `json:"usd_value"`
}

// -----------------------------------------------------------------------------
// Transfer Types
// -----------------------------------------------------------------------------

// Deposit is a settled collateral deposit.
type Deposit struct {
	UserAddr  string `json:"user_addr"`
	VaultAddr string `json:"vault_addr"`
	AssetAddr string `json:"asset_addr"`
	Amount    uint64 `json:"amount"`
	TxHash    string `json:"tx_hash"`
	Version   uint64 `json:"version"`
	Timestamp uint64 `json:"timestamp"`
	Status    string `json:"status"`
}

// Withdrawal is a settled collateral withdrawal.
type Withdrawal struct {
	UserAddr  string `json:"user_addr"`
	VaultAddr string `json:"vault_addr"`
	AssetAddr string `json:"asset_addr"`
	Amount    uint64 `json:"amount"`
	TxHash    string `json:"tx_hash"`
	Version   uint64 `json:"version"`
	Timestamp uint64 `json:"timestamp"`
	Status    string `json:"status"`
}

// -----------------------------------------------------------------------------
// Intent Types
// -----------------------------------------------------------------------------

// IntentAction is one action inside a signed intent. The gateway interprets
// Data according to Type; the client treats it as opaque JSON.
type IntentAction struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// IntentResult is the gateway's per-action outcome for an accepted intent.
type IntentResult struct {
	ActionType string          `json:"action_type"`
	Result     json.RawMessage `json:"result"`
}

// IntentReceipt is the gateway's response to a submitted intent.
type IntentReceipt struct {
	Seq     uint64         `json:"seq"`
	Status  string         `json:"status"`
	Outputs []IntentResult `json:"outputs"`
}
