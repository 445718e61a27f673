package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
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
	"github.com/vitos/options_alert_bot/internal/usecase"
)

var sweepForce bool

var sweepCMD = &cobra.Command{
	Use:   "sweep",
	Short: "Run one detection pass over the symbol universe and exit",
	Long: `Fetches a snapshot for every configured symbol, evaluates the setup
rules and sends alerts for anything triggered. With --force the pass
runs even when the market is closed.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSweep()
	},
}

func init() {
	sweepCMD.Flags().BoolVar(&sweepForce, "force", false, "sweep even when the market is closed")
}

func runSweep() {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cal, err := calendar.NewNYSE()
	if err != nil {
		log.Fatal("Failed to init market calendar", zap.Error(err))
	}
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		log.Fatal("Failed to load timezone", zap.String("tz", cfg.Market.Timezone), zap.Error(err))
	}

	ctx := context.Background()
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

	schwab := marketdata.NewSchwabClient(marketdata.SchwabOptions{
		BaseURL:        cfg.Schwab.BaseURL,
		AppKey:         cfg.Schwab.AppKey,
		AppSecret:      cfg.Schwab.AppSecret,
		RedirectURI:    cfg.Schwab.RedirectURI,
		TokenFile:      cfg.Schwab.TokenFile,
		Timeout:        cfg.Schwab.Timeout(),
		EntryCostRatio: cfg.Trading.EntryCostRatio,
	}, loc, log)

	notifier := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "",
		cfg.Telegram.Enabled, cfg.Telegram.Timeout(), log)

	ledger, err := usecase.NewLedger(ctx, tradeLog, usecase.LedgerParams{
		EntryCostRatio: cfg.Trading.EntryCostRatio,
		StopLossRatio:  cfg.Trading.StopLossRatio,
		Styles:         cfg.Trading.Styles,
	}, loc, log)
	if err != nil {
		log.Fatal("Failed to load trade ledger", zap.Error(err))
	}

	sweeper := usecase.NewSymbolSweeper(usecase.NewSetupEvaluator(cfg.Trading.Styles),
		ledger, schwab, notifier, recorder, cal,
		usecase.SweeperOptions{
			Symbols:        cfg.Market.Symbols,
			BatchSize:      cfg.Market.SweepBatchSize,
			BatchPause:     cfg.Market.BatchPause(),
			MaxConcurrency: cfg.Market.SweepMaxConcurrency,
		}, log)

	result, err := sweeper.Sweep(ctx, sweepForce)
	if err != nil {
		log.Fatal("Sweep failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Println(string(out))
}
