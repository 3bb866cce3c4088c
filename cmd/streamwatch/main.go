// streamwatch connects to the Ekiden gateway and streams live events to
// the console.
// Usage: go run ./cmd/streamwatch --base-url http://localhost:3010/api/v1 --orderbook 0x... --trades 0x...
//
// Optional environment variables:
//
//	EKIDEN_PRIVATE_KEY - ed25519 seed as 64 hex characters, enables the
//	                     user event channel and authenticated subscriptions
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ekiden "github.com/ekidenfi/ekiden-go"
	"github.com/ekidenfi/ekiden-go/connection"
	"github.com/ekidenfi/ekiden-go/internal/version"
	"github.com/ekidenfi/ekiden-go/model"
)

type marketList []string

func (m *marketList) String() string { return fmt.Sprint(*m) }

func (m *marketList) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	baseURL := flag.String("base-url", "", "gateway REST base URL, overrides config")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	showVersion := flag.Bool("version", false, "print version and exit")
	userEvents := flag.Bool("user", false, "subscribe to the account's user events")
	var orderbooks, trades, candles marketList
	flag.Var(&orderbooks, "orderbook", "market address to stream the book for (repeatable)")
	flag.Var(&trades, "trades", "market address to stream trades for (repeatable)")
	flag.Var(&candles, "candles", "marketAddr/interval to stream candles for (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println("streamwatch", version.String())
		return
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg := ekiden.ProductionConfig()
	if *configPath != "" {
		var err error
		cfg, err = ekiden.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if key := os.Getenv("EKIDEN_PRIVATE_KEY"); key != "" && cfg.PrivateKey == "" {
		cfg.PrivateKey = key
	}

	client, err := ekiden.NewClient(cfg, ekiden.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	var wg sync.WaitGroup
	subscribe := func(ch model.Channel) {
		sub, err := client.Subscribe(ch)
		if err != nil {
			logger.Error("subscribe failed", "channel", ch.String(), "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			printEvents(sub, *verbose)
		}()
	}

	for _, addr := range orderbooks {
		subscribe(model.OrderbookChannel(addr))
	}
	for _, addr := range trades {
		subscribe(model.TradesChannel(addr))
	}
	for _, key := range candles {
		ch, err := model.ParseChannel("candles/" + key)
		if err != nil {
			logger.Error("bad candles flag", "value", key, "error", err)
			os.Exit(1)
		}
		subscribe(ch)
	}
	if *userEvents {
		sub, err := client.SubscribeUserEvents()
		if err != nil {
			logger.Error("user events need EKIDEN_PRIVATE_KEY", "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			printEvents(sub, *verbose)
		}()
	}

	if len(client.ActiveSubscriptions()) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to watch: pass --orderbook, --trades, --candles, or --user")
		flag.Usage()
		os.Exit(2)
	}

	logger.Info("connecting", "channels", len(client.ActiveSubscriptions()))
	if err := client.ConnectStream(ctx); err != nil {
		logger.Error("stream connect failed", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				connStats := client.Stream().Stats()
				regStats := client.Stream().Registry().Stats()
				logger.Info("stats",
					"state", connStats.State.String(),
					"reconnects", connStats.Reconnects,
					"decode_failures", connStats.DecodeFailures,
					"channels", regStats.Channels,
					"listeners", regStats.Listeners,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := client.Close(shutdownCtx); err != nil {
		logger.Warn("close failed", "error", err)
	}
	wg.Wait()
	logger.Info("shutdown complete")
}

func printEvents(sub *connection.Handle, verbose bool) {
	for ev := range sub.Events() {
		if verbose {
			data, _ := json.MarshalIndent(ev, "", "  ")
			fmt.Printf("[%s] %s\n", ev.Kind, data)
			continue
		}
		switch ev.Kind {
		case model.EventOrderbookSnapshot:
			fmt.Printf("[BOOK SNAPSHOT] market=%s bids=%d asks=%d seq=%d\n",
				ev.Snapshot.MarketAddr, len(ev.Snapshot.Bids), len(ev.Snapshot.Asks), ev.Seq)
		case model.EventOrderbookDelta:
			fmt.Printf("[BOOK DELTA] market=%s bids=%d asks=%d seq=%d\n",
				ev.Delta.MarketAddr, len(ev.Delta.Bids), len(ev.Delta.Asks), ev.Seq)
		case model.EventTrade:
			fmt.Printf("[TRADE] market=%s side=%s price=%d size=%d seq=%d\n",
				ev.Trade.MarketAddr, ev.Trade.Side, ev.Trade.Price, ev.Trade.Size, ev.Seq)
		case model.EventOrderUpdate:
			fmt.Printf("[ORDER] sid=%s status=%s side=%s price=%d size=%d\n",
				ev.Order.SID, ev.Order.Status, ev.Order.Side, ev.Order.Price, ev.Order.Size)
		case model.EventPositionUpdate:
			fmt.Printf("[POSITION] market=%s side=%s size=%d entry=%d pnl=%d\n",
				ev.Position.MarketAddr, ev.Position.Side, ev.Position.Size,
				ev.Position.EntryPrice, ev.Position.UnrealizedPnl)
		case model.EventBalanceUpdate:
			fmt.Printf("[BALANCE] vault=%s balance=%d available=%d\n",
				ev.Vault.VaultAddr, ev.Vault.Balance, ev.Vault.AvailableBalance)
		case model.EventCandle:
			fmt.Printf("[CANDLE] market=%s interval=%s o=%d h=%d l=%d c=%d v=%d\n",
				ev.Candle.MarketAddr, ev.Candle.Interval, ev.Candle.Open,
				ev.Candle.High, ev.Candle.Low, ev.Candle.Close, ev.Candle.Volume)
		case model.EventSequenceGap:
			fmt.Printf("[GAP] channel=%s missing=[%d,%d]\n",
				ev.Channel.String(), ev.Gap.From, ev.Gap.To)
		case model.EventError:
			fmt.Printf("[ERROR] channel=%s message=%s\n", ev.Channel.String(), ev.Err.Message)
		case model.EventAck:
			fmt.Printf("[ACK] channel=%s op=%s\n", ev.Channel.String(), ev.Ack.Op)
		}
	}
	if err := sub.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "subscription %s ended: %v\n", sub.Channel(), err)
	}
}
