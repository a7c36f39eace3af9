package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-trader-go/internal/api"
	"card-trader-go/internal/app"
	"card-trader-go/internal/config"
	"card-trader-go/internal/logger"
	"card-trader-go/internal/trader"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger, "trader")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded",
		zap.Bool("dry_run", cfg.Trading.DryRun),
		zap.Float64("min_discount", cfg.Trading.MinDiscount),
		zap.Float64("profit_target", cfg.Trading.ProfitTarget),
		zap.Float64("stop_loss", cfg.Trading.StopLoss),
		zap.Float64("max_position_size", cfg.Trading.MaxPositionSize),
		zap.Float64("max_portfolio_size", cfg.Trading.MaxPortfolioSize))

	// Initialize database. Without a consistent ledger no cycle may run.
	l, closeDB, err := app.OpenLedger(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open ledger", zap.Error(err))
	}
	defer closeDB()
	log.Info("Database connection successful and schema migrated.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	mkt, err := app.NewMarket(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to set up market data", zap.Error(err))
	}
	defer mkt.Close()

	executor := trader.NewExecutor(cfg.Trading, l, nil, log)
	if executor.Mode() == trader.ModeLive {
		log.Warn("Live trading requested but no settlement backend is available; every trade will be refused")
	}

	var opts []trader.EngineOption
	if mkt.Address != "" {
		opts = append(opts, trader.WithBalances(mkt.Balances, mkt.Address))
	}
	tradeEngine := trader.NewEngine(log, cfg.Trading, l, mkt.Data, executor, opts...)

	var server *api.Server
	if cfg.Server.EnginePort > 0 {
		server = api.NewServer(cfg.Server.EnginePort, cfg.Server.StreamInterval, api.NewHandler(log, l, tradeEngine), log)
		server.Start(ctx)
	}

	// Run blocks until ctx is cancelled; a commit in progress is finished first.
	tradeEngine.Run(ctx)

	if server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("API server shutdown failed", zap.Error(err))
		}
	}
	log.Info("Bot has been shut down.")
}
