package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/upbo/upbotrading/internal/ai"
	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/events"
	"github.com/upbo/upbotrading/internal/executor"
	"github.com/upbo/upbotrading/internal/feed"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/portfolio"
	"github.com/upbo/upbotrading/internal/storage"
	"github.com/upbo/upbotrading/internal/telegram"
	"github.com/upbo/upbotrading/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file with secrets")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("starting upbotrading", "storage", cfg.Storage.Driver, "model", cfg.AI.Model)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	engine := portfolio.NewEngine(backend.KV, cfg.Portfolio.InitialCash, log)
	if err := engine.Load(ctx); err != nil {
		log.Error("load account failed", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	provider := ai.NewOpenAIProvider(cfg, log)
	gateway := ai.NewGateway(provider, backend.KV, bus, ai.OptionsFromConfig(cfg), log)

	notifier := telegram.NewNotifier(cfg, log)
	bus.Subscribe(notifier.HandleEvent)

	var (
		snapshots executor.SnapshotStore
		history   web.SnapshotHistory
	)
	if backend.Repo != nil {
		snapshots = backend.Repo
		history = backend.Repo
	}

	prices := portfolio.NewPriceBook()
	exec := executor.NewExecutor(engine, prices, snapshots, notifier, log)

	marketFeed := feed.New(gateway, feed.DefaultUniverse(), feed.Options{Interval: cfg.FeedInterval()}, log)
	marketFeed.Subscribe(func(quotes map[string]float64) {
		prices.Update(quotes)
		exec.Revalue()
	})

	webServer := web.NewServer(cfg, web.Deps{
		Executor:    exec,
		Feed:        marketFeed,
		Gateway:     gateway,
		Credentials: provider,
		Bus:         bus,
		History:     history,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	marketFeed.Start(gctx)

	g.Go(webServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		marketFeed.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return webServer.Shutdown(shutdownCtx)
	})

	notifier.NotifyStatus(fmt.Sprintf("🤖 UPBO paper trading started (cash %.0f)", engine.Account().CashBalance))

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", "error", err)
	}

	notifier.NotifyStatus("🛑 UPBO paper trading stopped")
	log.Info("upbotrading stopped")
}
