package usecase

import (
	"context"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
	"go.uber.org/zap"
)

// Reporter assembles and posts the scheduled summary messages: the
// after-close daily report, the bell notification, and the rolling
// performance report.
type Reporter struct {
	ledger   *Ledger
	calendar domain.Calendar
	notifier domain.Notifier
	logger   *zap.Logger
	symbols  int
	now      func() time.Time
}

func NewReporter(ledger *Ledger, calendar domain.Calendar, notifier domain.Notifier, symbols int, logger *zap.Logger) *Reporter {
	return &Reporter{
		ledger:   ledger,
		calendar: calendar,
		notifier: notifier,
		logger:   logger,
		symbols:  symbols,
		now:      time.Now,
	}
}

// SendDailyReport posts the end-of-day operational and performance
// summary. The report always goes out, market open or closed.
func (r *Reporter) SendDailyReport(ctx context.Context) bool {
	now := r.now()
	status := r.calendar.Status(now)
	today := r.ledger.Summary(1)
	weekly := r.ledger.Summary(7)

	sent := r.notifier.Send(ctx, BuildDailyReport(status, r.symbols, today, weekly, now))
	if sent {
		r.logger.Info("Daily report sent",
			zap.Int("today_trades", today.TotalTrades),
			zap.Float64("weekly_pnl", weekly.TotalPnL))
	} else {
		r.logger.Warn("Daily report delivery failed")
	}
	return sent
}

// SendMarketOpenAlert posts the bell notification. Outside market hours
// it does nothing and reports open=false.
func (r *Reporter) SendMarketOpenAlert(ctx context.Context) (sent, open bool) {
	now := r.now()
	status := r.calendar.Status(now)
	if !status.IsOpen {
		r.logger.Info("Market open alert skipped, market closed",
			zap.String("reason", status.Reason))
		return false, false
	}

	sent = r.notifier.Send(ctx, BuildMarketOpenAlert(status, r.symbols, now))
	if !sent {
		r.logger.Warn("Market open alert delivery failed")
	}
	return sent, true
}

// SendPerformanceReport posts the trailing 7/30 day breakdown.
func (r *Reporter) SendPerformanceReport(ctx context.Context) bool {
	weekly := r.ledger.Summary(7)
	monthly := r.ledger.Summary(30)

	sent := r.notifier.Send(ctx, BuildPerformanceReport(weekly, monthly))
	if !sent {
		r.logger.Warn("Performance report delivery failed")
	}
	return sent
}
