package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultCheckInterval = 30 * time.Second

	// Breakdown tolerances. A support level must be undercut by half a
	// percent and the 50-period average by a fifth of a percent before
	// the breakdown counts, so ordinary noise does not flush a trade.
	supportBreakPct = 0.005
	ma50BreakPct    = 0.002

	// Scalps are force-closed at 15:55 exchange time, five minutes
	// before the bell.
	scalpCloseHour   = 15
	scalpCloseMinute = 55
)

// ExitReason evaluates the exit conditions for a monitored trade against
// a fresh snapshot and option price, in strict priority order: technical
// breakdown, then profit target, then time limit, then stop loss. The
// first match wins and its reason is returned; an empty string means the
// trade stays open this tick. The location is the exchange clock used
// for the scalp close.
func ExitReason(t *domain.Trade, snap *domain.IndicatorSnapshot, optionPrice float64, now time.Time, loc *time.Location) string {
	if t.Status != domain.StatusMonitoring {
		return ""
	}
	if reason := breakdownReason(t, snap); reason != "" {
		return reason
	}
	if t.Target > 0 && optionPrice >= t.Target {
		return fmt.Sprintf("Profit target hit ($%.2f)", t.Target)
	}
	if reason := timeLimitReason(t, now, loc); reason != "" {
		return reason
	}
	if t.StopLoss > 0 && optionPrice <= t.StopLoss {
		return fmt.Sprintf("Stop loss hit ($%.2f)", t.StopLoss)
	}
	return ""
}

// breakdownReason detects loss of the technical thesis the trade was
// entered on. Checks run in fixed order and the first specific reason is
// returned: entry EMA pair no longer bullish, recorded support broken,
// price under the 50-period average, multi-timeframe reversal.
func breakdownReason(t *domain.Trade, snap *domain.IndicatorSnapshot) string {
	if snap == nil {
		return ""
	}
	if entry := t.EntrySnapshot; entry != nil {
		for _, pair := range []string{domain.TrendPairFast, domain.TrendPairSlow} {
			if entry.TrendFor(pair) == domain.TrendBullish && snap.TrendFor(pair) != domain.TrendBullish {
				return fmt.Sprintf("EMA trend breakdown (%s no longer bullish)", pair)
			}
		}
		for _, lvl := range entry.SupportLevels {
			if lvl.Level > 0 && snap.Price < lvl.Level*(1-supportBreakPct) {
				return fmt.Sprintf("Support broken at $%.2f (%s)", lvl.Level, lvl.Name)
			}
		}
	}
	if ma50 := snap.MA(50); ma50 > 0 && snap.Price < ma50*(1-ma50BreakPct) {
		return fmt.Sprintf("Price below 50 EMA ($%.2f)", ma50)
	}
	if n := snap.BearishTimeframes(); n >= 2 {
		return fmt.Sprintf("Multi-timeframe reversal (%d timeframes bearish)", n)
	}
	return ""
}

func timeLimitReason(t *domain.Trade, now time.Time, loc *time.Location) string {
	if t.EntryTime.IsZero() {
		return ""
	}
	switch t.Style {
	case domain.StyleScalp:
		local := now.In(loc)
		entry := t.EntryTime.In(loc)
		sameDay := local.Year() == entry.Year() && local.YearDay() == entry.YearDay()
		pastClose := local.Hour() > scalpCloseHour ||
			(local.Hour() == scalpCloseHour && local.Minute() >= scalpCloseMinute)
		if !sameDay || pastClose {
			return "Scalp time limit (15:55 close)"
		}
	case domain.StyleDay:
		if !now.Before(t.EntryTime.AddDate(0, 0, 2)) {
			return "Day trade time limit (2 days)"
		}
	case domain.StyleSwing:
		if !now.Before(t.EntryTime.AddDate(0, 0, 42)) {
			return "Swing time limit (6 weeks)"
		}
	}
	return ""
}

// tradeWatch is the per-trade monitoring state. Its mutex enforces at
// most one in-flight check per trade without serializing unrelated
// trades against each other.
type tradeWatch struct {
	mu         sync.Mutex
	lastStatus time.Time
}

// TradeMonitor drives the monitoring loop: every interval it re-checks
// each MONITORING trade against a fresh snapshot and the current option
// price, exits on the first matching condition or updates running P&L.
// A failed data fetch skips the tick for that trade and nothing else; a
// trade is never dropped because the feed hiccuped.
type TradeMonitor struct {
	ledger   *Ledger
	market   domain.MarketData
	notifier domain.Notifier
	recorder domain.EventRecorder
	logger   *zap.Logger
	interval time.Duration
	loc      *time.Location
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	watchMu sync.Mutex
	watch   map[string]*tradeWatch
}

func NewTradeMonitor(ledger *Ledger, market domain.MarketData, notifier domain.Notifier, recorder domain.EventRecorder, interval time.Duration, loc *time.Location, logger *zap.Logger) *TradeMonitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	if loc == nil {
		loc = time.Local
	}
	return &TradeMonitor{
		ledger:   ledger,
		market:   market,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		interval: interval,
		loc:      loc,
		now:      time.Now,
		watch:    make(map[string]*tradeWatch),
	}
}

func (m *TradeMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("trade monitor already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("Trade monitor started",
		zap.Duration("interval", m.interval),
		zap.Int("monitoring", len(m.ledger.MonitoringTrades())))

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

func (m *TradeMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stop halts the loop and waits for in-flight checks to finish. New
// checks are not started after Stop returns.
func (m *TradeMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Trade monitor stopped")
}

func (m *TradeMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow runs one full monitoring pass synchronously. Trades are
// checked concurrently; a trade with a check still in flight from a
// previous pass is skipped, not queued.
func (m *TradeMonitor) CheckNow(ctx context.Context) {
	trades := m.ledger.MonitoringTrades()
	if len(trades) == 0 {
		m.pruneWatches(nil)
		return
	}

	var wg sync.WaitGroup
	for _, t := range trades {
		wg.Add(1)
		go func(t *domain.Trade) {
			defer wg.Done()
			m.checkTrade(ctx, t)
		}(t)
	}
	wg.Wait()

	m.pruneWatches(trades)
}

func (m *TradeMonitor) checkTrade(ctx context.Context, t *domain.Trade) {
	w := m.watchFor(t.ID)
	if !w.mu.TryLock() {
		m.logger.Debug("Check still in flight, skipping tick", zap.String("trade_id", t.ID))
		return
	}
	defer w.mu.Unlock()

	snap, err := m.market.GetSnapshot(ctx, t.Symbol)
	if err != nil {
		m.logger.Warn("Snapshot unavailable, skipping tick",
			zap.String("trade_id", t.ID),
			zap.String("symbol", t.Symbol),
			zap.Error(err))
		return
	}
	optionPrice, err := m.market.GetOptionPrice(ctx, t.Symbol)
	if err != nil {
		m.logger.Warn("Option price unavailable, skipping tick",
			zap.String("trade_id", t.ID),
			zap.String("symbol", t.Symbol),
			zap.Error(err))
		return
	}

	now := m.now()
	if reason := ExitReason(t, snap, optionPrice, now, m.loc); reason != "" {
		m.exitTrade(ctx, t, optionPrice, reason)
		return
	}

	updated, err := m.ledger.UpdateProgress(ctx, t.ID, optionPrice)
	if err != nil {
		m.logger.Warn("Progress update failed",
			zap.String("trade_id", t.ID),
			zap.Error(err))
		return
	}

	m.maybeSendStatus(ctx, w, updated, now)
}

func (m *TradeMonitor) exitTrade(ctx context.Context, t *domain.Trade, price float64, reason string) {
	exited, err := m.ledger.Exit(ctx, t.ID, price, reason)
	if err != nil {
		m.logger.Error("Exit transition failed",
			zap.String("trade_id", t.ID),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}

	m.logger.Info("Trade exited",
		zap.String("trade_id", exited.ID),
		zap.String("reason", reason),
		zap.Float64("exit_price", price),
		zap.Float64("pnl", exited.PnL))

	m.recordEvent(ctx, exited.ID, domain.EventExit, price, reason)
	if !m.notifier.Send(ctx, BuildExitAlert(exited)) {
		m.logger.Warn("Exit alert delivery failed", zap.String("trade_id", exited.ID))
	}
}

// maybeSendStatus posts a running P&L update at most once per 5-minute
// wall-clock boundary per trade.
func (m *TradeMonitor) maybeSendStatus(ctx context.Context, w *tradeWatch, t *domain.Trade, now time.Time) {
	if now.Minute()%5 != 0 {
		return
	}
	boundary := now.Truncate(5 * time.Minute)
	if boundary.Equal(w.lastStatus) {
		return
	}
	w.lastStatus = boundary

	m.recordEvent(ctx, t.ID, domain.EventStatus, t.EntryPrice()+t.PnL, fmt.Sprintf("pnl %.2f", t.PnL))
	if !m.notifier.Send(ctx, BuildStatusUpdate(t)) {
		m.logger.Warn("Status update delivery failed", zap.String("trade_id", t.ID))
	}
}

// Enter confirms a real fill for a SETUP_READY trade and hands it to the
// monitoring loop. The entry is durably recorded before any notification
// goes out, so the first check can only ever observe a persisted entry.
func (m *TradeMonitor) Enter(ctx context.Context, id string, fill float64) (*domain.Trade, bool, error) {
	t, entered, err := m.ledger.Enter(ctx, id, fill)
	if err != nil || !entered {
		return t, entered, err
	}

	m.logger.Info("Trade entered",
		zap.String("trade_id", t.ID),
		zap.Float64("fill", fill),
		zap.Float64("stop_loss", t.StopLoss),
		zap.Float64("target", t.Target))

	m.recordEvent(ctx, t.ID, domain.EventEntry, fill, "")
	if !m.notifier.Send(ctx, BuildEntryAlert(t)) {
		m.logger.Warn("Entry alert delivery failed", zap.String("trade_id", t.ID))
	}
	return t, true, nil
}

func (m *TradeMonitor) watchFor(id string) *tradeWatch {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	w, ok := m.watch[id]
	if !ok {
		w = &tradeWatch{}
		m.watch[id] = w
	}
	return w
}

// pruneWatches drops per-trade state for trades no longer monitored.
func (m *TradeMonitor) pruneWatches(current []*domain.Trade) {
	live := make(map[string]bool, len(current))
	for _, t := range current {
		live[t.ID] = true
	}

	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for id, w := range m.watch {
		if live[id] {
			continue
		}
		// An overlapping pass may still hold the check lock; keep the
		// entry until it is free so the one-check-per-trade guarantee
		// survives pruning.
		if w.mu.TryLock() {
			w.mu.Unlock()
			delete(m.watch, id)
		}
	}
}

func (m *TradeMonitor) recordEvent(ctx context.Context, tradeID, event string, price float64, detail string) {
	if m.recorder == nil {
		return
	}
	ev := &domain.TradeEvent{
		Time:    m.now(),
		TradeID: tradeID,
		Event:   event,
		Price:   price,
		Detail:  detail,
	}
	if err := m.recorder.RecordTradeEvent(ctx, ev); err != nil {
		m.logger.Warn("Trade event record failed",
			zap.String("trade_id", tradeID),
			zap.String("event", event),
			zap.Error(err))
	}
}
