package api

import (
	"net/url"
	"strconv"
)

// Pagination defaults.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page selects one slice of a paginated listing. The zero value asks for
// the first DefaultPageLimit entries.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) limit() int {
	if p.Limit <= 0 {
		return DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		return MaxPageLimit
	}
	return p.Limit
}

func (p Page) apply(query url.Values) {
	query.Set("limit", strconv.Itoa(p.limit()))
	if p.Offset > 0 {
		query.Set("offset", strconv.Itoa(p.Offset))
	}
}

// ListMarketsParams filters the market listing. Both filters are optional.
type ListMarketsParams struct {
	MarketAddr string
	Symbol     string
	Page       Page
}

// ListOrdersParams filters the order listing for one market.
type ListOrdersParams struct {
	MarketAddr string
	Side       string // "buy", "sell", or empty for both
	Page       Page
}

// ListFillsParams filters the fill listing for one market.
type ListFillsParams struct {
	MarketAddr string
	Page       Page
}

// ListPositionsParams filters the authenticated user's positions.
type ListPositionsParams struct {
	MarketAddr string // optional
	Page       Page
}

// ListTransfersParams filters deposit and withdrawal listings.
type ListTransfersParams struct {
	UserAddr     string
	VaultAddr    string
	AssetAddr    string
	StartVersion uint64
	EndVersion   uint64
	Page         Page
}

// ListCandlesParams selects candles for one market and interval.
type ListCandlesParams struct {
	MarketAddr string
	Interval   string
	StartTime  uint64 // ms since epoch, 0 = unbounded
	EndTime    uint64
	Page       Page
}

// ListFundingParams selects funding rate history for one market.
type ListFundingParams struct {
	MarketAddr string
	StartTime  uint64
	EndTime    uint64
	Page       Page
}

func setIfNonZero(query url.Values, key string, v uint64) {
	if v > 0 {
		query.Set(key, strconv.FormatUint(v, 10))
	}
}

func setIfNonEmpty(query url.Values, key, v string) {
	if v != "" {
		query.Set(key, v)
	}
}
