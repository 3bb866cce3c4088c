package model

import (
	"fmt"
	"slices"
	"strings"
)

// ChannelKind identifies a family of streaming topics.
type ChannelKind string

const (
	KindOrderbook  ChannelKind = "orderbook"
	KindTrades     ChannelKind = "trades"
	KindUserEvents ChannelKind = "user"
	KindCandles    ChannelKind = "candles"
)

// Channel is a logical stream topic: a kind plus the market or user it
// refers to. Channels compare structurally and are used as map keys.
type Channel struct {
	Kind ChannelKind
	Key  string // market address, user address, or "marketAddr/interval" for candles
}

// OrderbookChannel is the book feed for one market.
func OrderbookChannel(marketAddr string) Channel {
	return Channel{Kind: KindOrderbook, Key: strings.ToLower(marketAddr)}
}

// TradesChannel is the public trade feed for one market.
func TradesChannel(marketAddr string) Channel {
	return Channel{Kind: KindTrades, Key: strings.ToLower(marketAddr)}
}

// UserChannel carries order, position, and balance updates for one account.
// Subscribing requires an authenticated session.
func UserChannel(userAddr string) Channel {
	return Channel{Kind: KindUserEvents, Key: strings.ToLower(userAddr)}
}

// CandlesChannel is the OHLCV feed for one market at the given interval.
func CandlesChannel(marketAddr, interval string) Channel {
	return Channel{Kind: KindCandles, Key: strings.ToLower(marketAddr) + "/" + interval}
}

// ParseChannel parses the wire form "kind/key" back into a Channel.
func ParseChannel(s string) (Channel, error) {
	kind, key, ok := strings.Cut(s, "/")
	if !ok || key == "" {
		return Channel{}, fmt.Errorf("malformed channel %q", s)
	}
	ch := Channel{Kind: ChannelKind(kind), Key: key}
	if err := ch.Validate(); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

// String returns the wire form of the channel, e.g. "orderbook/0xabc...".
func (c Channel) String() string {
	return string(c.Kind) + "/" + c.Key
}

// RequiresAuth reports whether subscribing to the channel needs an
// authenticated session.
func (c Channel) RequiresAuth() bool {
	return c.Kind == KindUserEvents
}

// Validate checks the kind and the key shape for the kind.
func (c Channel) Validate() error {
	switch c.Kind {
	case KindOrderbook, KindTrades, KindUserEvents:
		if !IsValidAddress(c.Key) {
			return fmt.Errorf("channel %s: invalid address %q", c.Kind, c.Key)
		}
	case KindCandles:
		addr, interval, ok := strings.Cut(c.Key, "/")
		if !ok {
			return fmt.Errorf("channel candles: key %q must be marketAddr/interval", c.Key)
		}
		if !IsValidAddress(addr) {
			return fmt.Errorf("channel candles: invalid address %q", addr)
		}
		if !slices.Contains(CandleIntervals, interval) {
			return fmt.Errorf("channel candles: unsupported interval %q", interval)
		}
	default:
		return fmt.Errorf("unknown channel kind %q", c.Kind)
	}
	return nil
}
