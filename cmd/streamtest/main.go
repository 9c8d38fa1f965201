// streamtest connects to the Upbit websocket and prints normalized tickers
// and flash events to the console.
// Usage: go run ./cmd/streamtest --symbols KRW-BTC,KRW-ETH
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rickgao/tickerfeed/internal/api"
	"github.com/rickgao/tickerfeed/internal/catalog"
	"github.com/rickgao/tickerfeed/internal/config"
	"github.com/rickgao/tickerfeed/internal/flash"
	"github.com/rickgao/tickerfeed/internal/model"
	"github.com/rickgao/tickerfeed/internal/store"
	"github.com/rickgao/tickerfeed/internal/stream"
	"github.com/rickgao/tickerfeed/internal/upbit"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	symbols := flag.String("symbols", "", "comma-separated codes (default: every KRW- market)")
	verbose := flag.Bool("verbose", false, "print full record JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	codes := cfg.Stream.SymbolList()
	if *symbols != "" {
		codes = strings.Split(*symbols, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiClient := api.NewClient(cfg.API.RestURL, api.WithLogger(logger))
	cat := catalog.New(apiClient, logger)
	st := store.New()

	notifier := flash.New(cfg.Flash.Duration, logger)
	defer notifier.Close()

	st.Observe(store.ObserverFunc(func(exchange, symbol string, rec model.PriceRecord) {
		printTicker(rec, *verbose)
	}))

	events, unsubscribe := notifier.Subscribe(256)
	defer unsubscribe()
	go printFlashes(events)

	client := stream.NewClient(stream.Config{
		Exchange:       cfg.Exchange.Name,
		URL:            cfg.API.WSURL,
		QuotePrefix:    cfg.Stream.QuotePrefix,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
	}, upbit.NewCodec(), cat, st, notifier, logger)

	if err := client.Connect(ctx, codes); err != nil {
		logger.Warn("initial connect failed, retrying", "error", err)
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
				table, _ := st.ExchangeTable(cfg.Exchange.Name)
				logger.Info("stats",
					"state", client.State(),
					"connected", st.IsConnected(),
					"subscribed", len(client.Subscription()),
					"symbols_seen", len(table),
					"pending_flashes", notifier.Pending(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()
	logger.Info("shutdown complete")
}

var printer = message.NewPrinter(language.Korean)

func printTicker(rec model.PriceRecord, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Printf("[TICKER] %s\n", data)
		return
	}
	fmt.Println(printer.Sprintf("[TICKER] %-12s %-10s %12.2f %+12.2f (%+.2f%%) vol=%s",
		rec.Symbol, rec.DisplayName, rec.Price, rec.AbsoluteChange, rec.PercentChange, rec.FormattedVolume))
}

func printFlashes(events <-chan flash.Event) {
	for ev := range events {
		if !ev.Active {
			continue
		}
		arrow := "▲"
		if ev.Direction == flash.Down {
			arrow = "▼"
		}
		fmt.Printf("[FLASH] %s %s\n", arrow, ev.Code)
	}
}
