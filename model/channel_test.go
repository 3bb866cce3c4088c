package model

import "testing"

const (
	testMarketAddr = "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b"
	testUserAddr   = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
)

func TestChannelConstructors(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		want    string
		auth    bool
	}{
		{"orderbook", OrderbookChannel(testMarketAddr), "orderbook/" + testMarketAddr, false},
		{"trades", TradesChannel(testMarketAddr), "trades/" + testMarketAddr, false},
		{"user", UserChannel(testUserAddr), "user/" + testUserAddr, true},
		{"candles", CandlesChannel(testMarketAddr, "1m"), "candles/" + testMarketAddr + "/1m", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.channel.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.channel.RequiresAuth(); got != tt.auth {
				t.Errorf("RequiresAuth() = %v, want %v", got, tt.auth)
			}
			if err := tt.channel.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestChannelConstructorsLowercase(t *testing.T) {
	upper := "0x1A2B3C4D5E6F7A8B9C0D1E2F3A4B5C6D7E8F9A0B"
	if got := OrderbookChannel(upper); got != OrderbookChannel(testMarketAddr) {
		t.Errorf("OrderbookChannel did not normalize case: %v", got)
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{"orderbook/" + testMarketAddr, Channel{KindOrderbook, testMarketAddr}, false},
		{"trades/" + testMarketAddr, Channel{KindTrades, testMarketAddr}, false},
		{"user/" + testUserAddr, Channel{KindUserEvents, testUserAddr}, false},
		{"candles/" + testMarketAddr + "/5m", Channel{KindCandles, testMarketAddr + "/5m"}, false},
		{"orderbook", Channel{}, true},
		{"orderbook/", Channel{}, true},
		{"orderbook/nothex", Channel{}, true},
		{"candles/" + testMarketAddr, Channel{}, true},
		{"candles/" + testMarketAddr + "/7m", Channel{}, true},
		{"weather/" + testMarketAddr, Channel{}, true},
		{"", Channel{}, true},
	}

	for _, tt := range tests {
		got, err := ParseChannel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseChannel(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseChannel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseChannel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChannelAsMapKey(t *testing.T) {
	seen := map[Channel]int{}
	seen[OrderbookChannel(testMarketAddr)]++
	seen[OrderbookChannel(testMarketAddr)]++
	seen[TradesChannel(testMarketAddr)]++

	if len(seen) != 2 {
		t.Errorf("map has %d entries, want 2", len(seen))
	}
	if seen[OrderbookChannel(testMarketAddr)] != 2 {
		t.Errorf("structural equality broken: count = %d, want 2", seen[OrderbookChannel(testMarketAddr)])
	}
}
