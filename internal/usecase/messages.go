package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
)

// Message builders. The strings here are a user-visible contract: alert
// subscribers parse them by eye every day, so the wording and layout stay
// stable even when the internals move.

func BuildSetupAlert(t *domain.Trade, threshold float64) string {
	snap := t.EntrySnapshot
	if snap == nil {
		snap = &domain.IndicatorSnapshot{}
	}

	priceVs21 := "Below"
	if snap.Price > snap.MA(21) {
		priceVs21 = "Above"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 **%s SETUP DETECTED**\n\n", strings.ToUpper(string(t.Style)))
	fmt.Fprintf(&b, "*%s* - $%.2f\n", t.Symbol, snap.Price)
	fmt.Fprintf(&b, "*Reason:* %s\n\n", t.Reason)
	b.WriteString("*Technical Confluence:*\n")
	fmt.Fprintf(&b, "• 9/21 EMA: %s\n", trendOrNA(snap.TrendFor(domain.TrendPairFast)))
	fmt.Fprintf(&b, "• 34/50 EMA: %s\n", trendOrNA(snap.TrendFor(domain.TrendPairSlow)))
	fmt.Fprintf(&b, "• RVOL: %.1fx (Threshold: %.1fx)\n", snap.RelativeVolume, threshold)
	fmt.Fprintf(&b, "• Price vs 21MA: %s\n\n", priceVs21)
	b.WriteString("*Key Levels:*\n")
	fmt.Fprintf(&b, "• R1 Pivot: $%.2f\n", snap.Pivots.R1)
	fmt.Fprintf(&b, "• S1 Pivot: $%.2f\n", snap.Pivots.S1)
	fmt.Fprintf(&b, "• 50 EMA: $%.2f\n\n", snap.MA(50))
	fmt.Fprintf(&b, "*Estimated Entry:* ~$%.2f\n", t.EstimatedEntry)
	fmt.Fprintf(&b, "*Trade Style:* %s\n\n", titleStyle(t.Style))
	fmt.Fprintf(&b, "*Setup ID:* %s\n\n", t.ID)
	fmt.Fprintf(&b, "#%s #SETUP #%s", t.Symbol, strings.ToUpper(string(t.Style)))
	return b.String()
}

func BuildEntryAlert(t *domain.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **TRADE ENTERED** - %s\n\n", t.Symbol)
	fmt.Fprintf(&b, "*Style:* %s\n", titleStyle(t.Style))
	fmt.Fprintf(&b, "*Fill Price:* $%.2f\n", t.ActualEntry)
	fmt.Fprintf(&b, "*Estimated:* $%.2f (slippage %+.2f)\n\n", t.EstimatedEntry, t.Slippage)
	fmt.Fprintf(&b, "*Stop Loss:* $%.2f\n", t.StopLoss)
	fmt.Fprintf(&b, "*Target:* $%.2f\n\n", t.Target)
	fmt.Fprintf(&b, "*Trade ID:* %s\n\n", t.ID)
	fmt.Fprintf(&b, "#%s #ENTRY #%s", t.Symbol, strings.ToUpper(string(t.Style)))
	return b.String()
}

func BuildStatusUpdate(t *domain.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **TRADE UPDATE** - %s\n\n", t.Symbol)
	fmt.Fprintf(&b, "*Style:* %s\n", titleStyle(t.Style))
	fmt.Fprintf(&b, "*P&L:* $%+.2f (%+.1f%%)\n", t.PnL, t.PnLPct)
	fmt.Fprintf(&b, "*Max Profit:* $%.2f\n", t.MaxProfit)
	fmt.Fprintf(&b, "*Max Drawdown:* $%.2f\n\n", t.MaxDrawdown)
	fmt.Fprintf(&b, "*Trade ID:* %s", t.ID)
	return b.String()
}

func BuildExitAlert(t *domain.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 **TRADE EXITED** - %s\n\n", t.Symbol)
	fmt.Fprintf(&b, "*Style:* %s\n", titleStyle(t.Style))
	fmt.Fprintf(&b, "*Reason:* %s\n\n", t.ExitReason)
	fmt.Fprintf(&b, "*Entry:* $%.2f\n", t.EntryPrice())
	fmt.Fprintf(&b, "*Exit:* $%.2f\n", t.ExitPrice)
	fmt.Fprintf(&b, "*P&L:* $%+.2f (%+.1f%%)\n\n", t.PnL, t.PnLPct)
	fmt.Fprintf(&b, "*Max Profit:* $%.2f\n", t.MaxProfit)
	fmt.Fprintf(&b, "*Max Drawdown:* $%.2f\n", t.MaxDrawdown)
	fmt.Fprintf(&b, "*Duration:* %s\n\n", FormatDuration(time.Duration(t.DurationMin)*time.Minute))
	fmt.Fprintf(&b, "*Trade ID:* %s\n\n", t.ID)
	fmt.Fprintf(&b, "#%s #EXIT #%s", t.Symbol, strings.ToUpper(string(t.Style)))
	return b.String()
}

// BuildPerformanceReport renders the trailing 7 and 30 day summaries with
// the per-style breakdown and the best trade of the month.
func BuildPerformanceReport(weekly, monthly *domain.Summary) string {
	var b strings.Builder
	b.WriteString("📊 **TRADING PERFORMANCE REPORT**\n\n")

	b.WriteString("🗓️ **7-DAY SUMMARY:**\n")
	writeSummaryBlock(&b, weekly)

	b.WriteString("\n📅 **30-DAY SUMMARY:**\n")
	writeSummaryBlock(&b, monthly)
	fmt.Fprintf(&b, "• Total P&L %%: %.1f%%\n", monthly.TotalPnLPct)

	b.WriteString("\n🎯 **TRADE STYLE BREAKDOWN (30d):**")
	for _, style := range domain.Styles() {
		ss, ok := monthly.ByStyle[style]
		if !ok || ss.Count == 0 {
			continue
		}
		winRate := float64(ss.Wins) / float64(ss.Count) * 100
		fmt.Fprintf(&b, "\n• %s: %d trades, %.1f%% win rate, $%.2f P&L",
			titleStyle(style), ss.Count, winRate, ss.PnL)
	}

	if monthly.Best != nil {
		fmt.Fprintf(&b, "\n\n🏆 **BEST TRADE (30d):**\n• %s %s: +$%.2f (%+.1f%%)",
			monthly.Best.Symbol, monthly.Best.Style, monthly.Best.PnL, monthly.Best.PnLPct)
	}
	return b.String()
}

func writeSummaryBlock(b *strings.Builder, s *domain.Summary) {
	fmt.Fprintf(b, "• Total Trades: %d\n", s.TotalTrades)
	fmt.Fprintf(b, "• Win Rate: %.1f%%\n", s.WinRate)
	fmt.Fprintf(b, "• Total P&L: $%.2f\n", s.TotalPnL)
	fmt.Fprintf(b, "• Avg P&L per Trade: $%.2f\n", s.AvgPnL)
	fmt.Fprintf(b, "• Avg Confluence Score: %.1f/100\n", s.AvgConfluence)
}

// BuildDailyReport is the end-of-day operational summary posted after the
// close. Performance numbers come from the trailing 1 and 7 day windows.
func BuildDailyReport(status domain.MarketStatus, symbols int, today, weekly *domain.Summary, now time.Time) string {
	marketState := "Closed"
	if status.IsOpen {
		marketState = "Open"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **DAILY TRADING BOT REPORT** - %s\n\n", now.Format("2006-01-02"))
	b.WriteString("🤖 **Bot Status:** Active and Running\n")
	b.WriteString("🏦 **Schwab API:** Connected ✅\n")
	b.WriteString("📱 **Telegram:** Operational ✅\n")
	fmt.Fprintf(&b, "⏰ **Market Status:** %s\n", marketState)
	fmt.Fprintf(&b, "🕐 **Current Time:** %s\n\n", status.CurrentTime.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("🎯 **Today's Activity:**\n")
	fmt.Fprintf(&b, "• Trades Completed: %d\n", today.TotalTrades)
	if today.HasData {
		fmt.Fprintf(&b, "• Today's P&L: $%+.2f\n", today.TotalPnL)
		fmt.Fprintf(&b, "• Win Rate: %.1f%%\n", today.WinRate)
	}
	fmt.Fprintf(&b, "• 7-Day P&L: $%+.2f (%d trades)\n", weekly.TotalPnL, weekly.TotalTrades)
	fmt.Fprintf(&b, "• Symbols Monitored: %d\n\n", symbols)

	b.WriteString("✅ All systems operational and ready for trading!\n\n")
	if !status.NextOpen.IsZero() {
		fmt.Fprintf(&b, "Next market open: %s\n\n", status.NextOpen.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "#TradingBot #DailyReport #%s", now.Format("20060102"))
	return b.String()
}

func BuildMarketOpenAlert(status domain.MarketStatus, symbols int, now time.Time) string {
	var b strings.Builder
	b.WriteString("🔔 **MARKET OPEN NOTIFICATION**\n\n")
	b.WriteString("📈 **Market Status:** OPEN\n")
	fmt.Fprintf(&b, "🕘 **Time:** %s\n", status.CurrentTime.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("🤖 **Trading Bot:** Active & Ready\n\n")
	b.WriteString("🏦 **Schwab API:** Connected\n")
	b.WriteString("📊 **Alert Engine:** Running\n")
	fmt.Fprintf(&b, "🎯 **Monitoring:** %d symbols\n\n", symbols)
	b.WriteString("Ready to detect trading setups! 📈🚀\n\n")
	fmt.Fprintf(&b, "#%s #MarketOpen #TradingBot", now.Format("20060102"))
	return b.String()
}

// FormatDuration renders a trade duration the way the alerts show it,
// coarsening with length: "45m", "3h 25m", "2d 4h".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(d.Minutes())
	switch {
	case mins < 60:
		return fmt.Sprintf("%dm", mins)
	case mins < 24*60:
		return fmt.Sprintf("%dh %dm", mins/60, mins%60)
	default:
		return fmt.Sprintf("%dd %dh", mins/(24*60), (mins%(24*60))/60)
	}
}

func titleStyle(s domain.TradeStyle) string {
	str := string(s)
	if str == "" {
		return str
	}
	return strings.ToUpper(str[:1]) + str[1:]
}

func trendOrNA(t domain.Trend) string {
	if t == "" {
		return "N/A"
	}
	return string(t)
}
