package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/infrastructure/config"
	"github.com/vitos/options_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/options_alert_bot/internal/infrastructure/storage"
	"github.com/vitos/options_alert_bot/internal/usecase"
)

var summaryDays int

var summaryCMD = &cobra.Command{
	Use:   "summary",
	Short: "Print the performance summary for the trailing window",
	Run: func(cmd *cobra.Command, args []string) {
		runSummary()
	},
}

func init() {
	summaryCMD.Flags().IntVar(&summaryDays, "days", 30, "trailing window in days")
}

func runSummary() {
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

	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		log.Fatal("Failed to load timezone", zap.String("tz", cfg.Market.Timezone), zap.Error(err))
	}

	tradeLog := storage.NewJSONTradeLog(cfg.Storage.TradeLogPath, log)
	ledger, err := usecase.NewLedger(context.Background(), tradeLog, usecase.LedgerParams{
		EntryCostRatio: cfg.Trading.EntryCostRatio,
		StopLossRatio:  cfg.Trading.StopLossRatio,
		Styles:         cfg.Trading.Styles,
	}, loc, log)
	if err != nil {
		log.Fatal("Failed to load trade ledger", zap.Error(err))
	}

	out, err := json.MarshalIndent(ledger.Summary(summaryDays), "", "  ")
	if err != nil {
		log.Fatal("Failed to encode summary", zap.Error(err))
	}
	fmt.Println(string(out))
}
