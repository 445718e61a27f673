package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vitos/options_alert_bot/internal/infrastructure/config"
	"github.com/vitos/options_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/options_alert_bot/internal/infrastructure/marketdata"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger("warn", "console")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		fmt.Printf("Failed to load timezone: %v\n", err)
		os.Exit(1)
	}

	symbol := "SPY"
	if len(os.Args) > 1 {
		symbol = os.Args[1]
	}

	fmt.Printf("Testing Schwab Interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Schwab.BaseURL)
	keyPreview := cfg.Schwab.AppKey
	if len(keyPreview) > 4 {
		keyPreview = keyPreview[:4]
	}
	fmt.Printf("App Key: %s...\n", keyPreview)

	client := marketdata.NewSchwabClient(marketdata.SchwabOptions{
		BaseURL:        cfg.Schwab.BaseURL,
		AppKey:         cfg.Schwab.AppKey,
		AppSecret:      cfg.Schwab.AppSecret,
		RedirectURI:    cfg.Schwab.RedirectURI,
		TokenFile:      cfg.Schwab.TokenFile,
		Timeout:        cfg.Schwab.Timeout(),
		EntryCostRatio: cfg.Trading.EntryCostRatio,
	}, loc, log)
	ctx := context.Background()

	// 2. Check Token State
	auth := client.AuthStatus()
	switch {
	case auth.Authenticated:
		fmt.Printf("✅ Authenticated (token expires %s)\n", auth.ExpiresAt.Format(time.RFC3339))
	case auth.HasRefreshToken:
		fmt.Printf("✅ Access token expired, refresh token present (will refresh on first call)\n")
	default:
		fmt.Printf("❌ Not authenticated. Visit the auth URL and POST the code to /schwab/token:\n%s\n", client.AuthURL())
		os.Exit(1)
	}

	// 3. Check Quote + History Composition
	snap, err := client.GetSnapshot(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Snapshot (%s): Price=%.2f, RVOL=%.2f, EMA21=%.2f, R1=%.2f, S1=%.2f\n",
		snap.Symbol, snap.Price, snap.RelativeVolume, snap.MA(21), snap.Pivots.R1, snap.Pivots.S1)
	fmt.Printf("   Trends: 9/21=%s 34/50=%s, Timeframes: 15M=%s 1H=%s 4H=%s D=%s\n",
		snap.TrendFor("9_21"), snap.TrendFor("34_50"),
		snap.TimeframeTrend("15M"), snap.TimeframeTrend("1H"),
		snap.TimeframeTrend("4H"), snap.TimeframeTrend("D"))

	// 4. Check Option Price Estimate
	price, err := client.GetOptionPrice(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get option price: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Estimated ATM premium (%s): $%.2f\n", symbol, price)
}
