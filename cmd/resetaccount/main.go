package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/portfolio"
	"github.com/upbo/upbotrading/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "show the account without resetting it")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	ctx := context.Background()
	backend, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage init error: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	engine := portfolio.NewEngine(backend.KV, cfg.Portfolio.InitialCash, log)
	if err := engine.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load account error: %v\n", err)
		os.Exit(1)
	}

	account := engine.Account()
	fmt.Printf("Cash: %.0f\n", account.CashBalance)
	fmt.Printf("Transactions: %d\n", len(account.Transactions))
	if backend.Repo != nil {
		if snap, err := backend.Repo.LatestSnapshot(); err == nil && snap != nil {
			fmt.Printf("Last snapshot: equity %.0f, unrealized P&L %.0f (%s)\n",
				snap.TotalEquity, snap.UnrealizedPL, snap.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}
	if len(account.Positions) == 0 {
		fmt.Println("No open positions.")
	} else {
		fmt.Printf("Found %d position(s):\n\n", len(account.Positions))
		for _, p := range account.Positions {
			fmt.Printf("  %s: %d shares, entry %.2f, cost %.0f\n", p.Symbol, p.Qty, p.Entry, p.Entry*float64(p.Qty))
		}
	}
	fmt.Println()

	if *dryRun {
		fmt.Println("Dry run, account left unchanged.")
		return
	}

	if err := engine.Reset(ctx); err != nil {
		log.Errorf("reset account: %v", err)
		os.Exit(1)
	}
	log.Infof("account reset to %.0f, %d position(s) cleared", cfg.Portfolio.InitialCash, len(account.Positions))
}
