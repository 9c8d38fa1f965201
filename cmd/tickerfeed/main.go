// tickerfeed streams live Upbit tickers into an in-memory price table and
// optionally mirrors it to Redis/Postgres and serves it over HTTP.
// Usage: go run ./cmd/tickerfeed --config configs/tickerfeed.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tickerfeed/internal/api"
	"github.com/rickgao/tickerfeed/internal/catalog"
	"github.com/rickgao/tickerfeed/internal/config"
	"github.com/rickgao/tickerfeed/internal/database"
	"github.com/rickgao/tickerfeed/internal/flash"
	"github.com/rickgao/tickerfeed/internal/server"
	"github.com/rickgao/tickerfeed/internal/sink"
	"github.com/rickgao/tickerfeed/internal/store"
	"github.com/rickgao/tickerfeed/internal/stream"
	"github.com/rickgao/tickerfeed/internal/upbit"
	"github.com/rickgao/tickerfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting tickerfeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tickerfeed exited", "error", err)
		os.Exit(1)
	}

	logger.Info("tickerfeed stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	apiClient := api.NewClient(
		cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	cat := catalog.New(apiClient, logger.With("component", "catalog"))
	st := store.New()

	notifier := flash.New(cfg.Flash.Duration, logger.With("component", "flash"))
	defer notifier.Close()

	writers, cleanup, err := startWriters(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	client := stream.NewClient(stream.Config{
		Exchange:       cfg.Exchange.Name,
		URL:            cfg.API.WSURL,
		QuotePrefix:    cfg.Stream.QuotePrefix,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		PingInterval:   cfg.Stream.PingInterval,
		PingTimeout:    cfg.Stream.PingTimeout,
		WriteTimeout:   cfg.Stream.WriteTimeout,
		BufferSize:     cfg.Stream.BufferSize,
	}, upbit.NewCodec(), cat, st, notifier, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := client.Connect(gctx, cfg.Stream.SymbolList()); err != nil {
			logger.Warn("initial connect failed, retrying in background", "error", err)
		}
		<-gctx.Done()
		client.Disconnect()
		return nil
	})

	if cfg.Server.Enabled {
		srv := server.New(st, cat, notifier, logger.With("component", "server"))
		g.Go(func() error {
			return srv.Run(gctx, fmt.Sprintf(":%d", cfg.Server.Port))
		})
	}

	logger.Info("tickerfeed running",
		"exchange", cfg.Exchange.Name,
		"ws_url", cfg.API.WSURL,
		"server", cfg.Server.Enabled,
		"sinks", len(writers),
	)

	return g.Wait()
}

// startWriters builds the enabled latest-price mirrors and registers them
// as store observers. cleanup flushes and releases them.
func startWriters(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) ([]*sink.Writer, func(), error) {
	writerCfg := sink.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
		BufferSize:    cfg.Writers.BufferSize,
	}

	var (
		writers  []*sink.Writer
		closers  []func()
		flushers []sink.Flusher
	)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, w := range writers {
			w.Stop(shutdownCtx)
		}
		for _, c := range closers {
			c()
		}
	}

	if cfg.Database.Enabled {
		db := cfg.Database.Postgres
		logger.Info("connecting to database", "host", db.Host, "port", db.Port, "database", db.Name)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := database.EnsureSchema(ctx, pool); err != nil {
			cleanup()
			return nil, nil, err
		}
		flushers = append(flushers, sink.NewPostgresFlusher(pool))
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		flushers = append(flushers, sink.NewRedisFlusher(rdb, cfg.Redis.KeyPrefix, cfg.Exchange.Name, cfg.Redis.TTL))
	}

	for _, f := range flushers {
		w := sink.NewWriter(writerCfg, f, logger)
		if err := w.Start(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("start %s writer: %w", f.Name(), err)
		}
		writers = append(writers, w)
		st.Observe(w)
	}

	return writers, cleanup, nil
}
