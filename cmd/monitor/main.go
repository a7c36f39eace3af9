package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"card-trader-go/internal/app"
	"card-trader-go/internal/config"
	"card-trader-go/internal/logger"
	"card-trader-go/internal/trader"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger, "monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	l, closeDB, err := app.OpenLedger(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open ledger", zap.Error(err))
	}
	defer closeDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mkt, err := app.NewMarket(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to set up market data", zap.Error(err))
	}
	defer mkt.Close()

	log.Info("Price monitor configured",
		zap.Float64("min_discount", cfg.Trading.MinDiscount),
		zap.Float64("max_price", cfg.Monitor.MaxPrice))

	scanner := trader.NewScanner(log, cfg.Monitor, trader.NewDecisionEngine(cfg.Trading), mkt.Data, l)
	scanner.Run(ctx)

	log.Info("Price monitor stopped.")
}
