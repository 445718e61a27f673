package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
	"github.com/vitos/options_alert_bot/internal/infrastructure/calendar"
	"github.com/vitos/options_alert_bot/internal/infrastructure/config"
	"github.com/vitos/options_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/options_alert_bot/internal/infrastructure/marketdata"
	"github.com/vitos/options_alert_bot/internal/infrastructure/storage"
	"github.com/vitos/options_alert_bot/internal/infrastructure/telegram"
	"github.com/vitos/options_alert_bot/internal/scheduler"
	"github.com/vitos/options_alert_bot/internal/usecase"
	"github.com/vitos/options_alert_bot/internal/web"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot: scheduler, trade monitor and HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	// 1. Load Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Exchange calendar and clock
	cal, err := calendar.NewNYSE()
	if err != nil {
		log.Fatal("Failed to init market calendar", zap.Error(err))
	}
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		log.Fatal("Failed to load timezone", zap.String("tz", cfg.Market.Timezone), zap.Error(err))
	}

	// 4. Storage
	tradeLog := storage.NewJSONTradeLog(cfg.Storage.TradeLogPath, log)

	var recorder domain.EventRecorder
	if cfg.Storage.EventsDBPath != "" {
		rec, err := storage.NewSQLiteRecorder(cfg.Storage.EventsDBPath)
		if err != nil {
			log.Fatal("Failed to init events db", zap.Error(err))
		}
		defer rec.Close()
		recorder = rec
	}

	// 5. Market data (Schwab)
	schwab := marketdata.NewSchwabClient(marketdata.SchwabOptions{
		BaseURL:        cfg.Schwab.BaseURL,
		AppKey:         cfg.Schwab.AppKey,
		AppSecret:      cfg.Schwab.AppSecret,
		RedirectURI:    cfg.Schwab.RedirectURI,
		TokenFile:      cfg.Schwab.TokenFile,
		Timeout:        cfg.Schwab.Timeout(),
		EntryCostRatio: cfg.Trading.EntryCostRatio,
	}, loc, log)

	var stream *marketdata.Streamer
	if cfg.Schwab.UseStream {
		stream = marketdata.NewStreamer(cfg.Schwab.StreamURL, log)
		schwab.AttachStream(stream)
		if err := stream.Connect(cfg.Market.Symbols); err != nil {
			log.Warn("Quote stream unavailable, using polled quotes", zap.Error(err))
		}
	}

	var market domain.MarketData = schwab
	if ttl := cfg.Market.SnapshotTTL(); ttl > 0 {
		market = marketdata.NewSnapshotCache(schwab, ttl, log)
	}

	// 6. Notifier
	notifier := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "",
		cfg.Telegram.Enabled, cfg.Telegram.Timeout(), log)

	// 7. Trade ledger and services
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := usecase.NewLedger(rootCtx, tradeLog, usecase.LedgerParams{
		EntryCostRatio: cfg.Trading.EntryCostRatio,
		StopLossRatio:  cfg.Trading.StopLossRatio,
		Styles:         cfg.Trading.Styles,
	}, loc, log)
	if err != nil {
		log.Fatal("Failed to load trade ledger", zap.Error(err))
	}

	evaluator := usecase.NewSetupEvaluator(cfg.Trading.Styles)
	sweeper := usecase.NewSymbolSweeper(evaluator, ledger, market, notifier, recorder, cal,
		usecase.SweeperOptions{
			Symbols:        cfg.Market.Symbols,
			BatchSize:      cfg.Market.SweepBatchSize,
			BatchPause:     cfg.Market.BatchPause(),
			MaxConcurrency: cfg.Market.SweepMaxConcurrency,
		}, log)
	monitor := usecase.NewTradeMonitor(ledger, market, notifier, recorder,
		cfg.Market.MonitorInterval(), loc, log)
	reporter := usecase.NewReporter(ledger, cal, notifier, len(cfg.Market.Symbols), log)

	// 8. Scheduler
	sched := scheduler.NewScheduler(rootCtx, loc, sweeper, reporter, log)
	if err := sched.RegisterAll(cfg.Schedule.SweepSpec, cfg.Schedule.OpenAlertSpec, cfg.Schedule.ReportSpec); err != nil {
		log.Fatal("Failed to register scheduled jobs", zap.Error(err))
	}
	sched.Start()

	if err := monitor.Start(rootCtx); err != nil {
		log.Fatal("Failed to start trade monitor", zap.Error(err))
	}

	// 9. Web Server
	server := web.NewServer(cfg.Server.Port, sweeper, ledger, monitor, notifier, cal,
		recorder, schwab, stream, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	sched.Stop()
	monitor.Stop()
	cancel()
	if stream != nil {
		stream.Close()
	}

	log.Info("Shutdown complete")
}
