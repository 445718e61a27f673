package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
	"go.uber.org/zap"
)

// LedgerParams carries the pricing heuristics of the ledger. The entry
// cost ratio approximates an at-the-money premium as a fraction of the
// underlying price; the stop ratio fixes the stop as a fraction of the
// fill. Both are parameters so a real pricing model can replace them
// without touching the state machine.
type LedgerParams struct {
	EntryCostRatio float64
	StopLossRatio  float64
	Styles         map[domain.TradeStyle]StyleParams
}

func DefaultLedgerParams() LedgerParams {
	return LedgerParams{
		EntryCostRatio: 0.03,
		StopLossRatio:  0.50,
		Styles:         DefaultStyleParams(),
	}
}

// Ledger owns every tracked trade and its lifecycle transitions. All
// mutation goes through the transition methods under one lock, and every
// mutation is flushed write-through to the trade log before the call
// returns. Returned trades are copies; the frozen entry snapshot is
// shared because it is never mutated after creation.
type Ledger struct {
	log    domain.TradeLog
	logger *zap.Logger
	params LedgerParams
	loc    *time.Location
	now    func() time.Time

	mu     sync.Mutex
	trades map[string]*domain.Trade
	order  []string
	daily  map[string]*domain.DailyStats
}

func NewLedger(ctx context.Context, log domain.TradeLog, params LedgerParams, loc *time.Location, logger *zap.Logger) (*Ledger, error) {
	if loc == nil {
		loc = time.Local
	}
	if params.Styles == nil {
		params.Styles = DefaultStyleParams()
	}

	l := &Ledger{
		log:    log,
		logger: logger,
		params: params,
		loc:    loc,
		now:    time.Now,
		trades: make(map[string]*domain.Trade),
		daily:  make(map[string]*domain.DailyStats),
	}

	state, err := log.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trade log: %w", err)
	}
	for _, t := range state.Trades {
		if t == nil || t.ID == "" {
			continue
		}
		// ENTERED only exists inside the enter operation; a file written
		// mid-transition resumes as MONITORING.
		if t.Status == domain.StatusEntered {
			t.Status = domain.StatusMonitoring
		}
		l.trades[t.ID] = t
		l.order = append(l.order, t.ID)
	}
	for date, d := range state.DailyStats {
		if d.TradeStyles == nil {
			d.TradeStyles = make(map[domain.TradeStyle]int)
		}
		l.daily[date] = d
	}

	logger.Info("Trade ledger loaded",
		zap.Int("trades", len(l.trades)),
		zap.Int("daily_buckets", len(l.daily)))
	return l, nil
}

func (l *Ledger) styleParams(style domain.TradeStyle) StyleParams {
	if p, ok := l.params.Styles[style]; ok {
		return p
	}
	return StyleParams{RVOLThreshold: 1.30, RewardMultiplier: 2.0}
}

// RecordSetup creates a trade record for a triggered decision, in status
// SETUP_READY, and persists it. The caller dispatches the alert only
// after this returns: setup tracking never depends on delivery.
func (l *Ledger) RecordSetup(ctx context.Context, symbol string, style domain.TradeStyle, decision domain.Decision, snap *domain.IndicatorSnapshot) (*domain.Trade, error) {
	if !decision.Triggered {
		return nil, fmt.Errorf("decision for %s %s not triggered", symbol, style)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	now := l.now().In(l.loc)
	id := domain.SetupID(symbol, style, now)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.trades[id]; exists {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrDuplicateSetup)
	}

	t := &domain.Trade{
		ID:              id,
		Symbol:          symbol,
		Style:           style,
		Status:          domain.StatusSetupReady,
		SetupTime:       now,
		Reason:          decision.Reason,
		ConfluenceScore: decision.ConfluenceScore,
		EntrySnapshot:   snap,
		EstimatedEntry:  snap.Price * l.params.EntryCostRatio,
	}
	l.trades[id] = t
	l.order = append(l.order, id)

	if err := l.saveLocked(ctx); err != nil {
		return nil, err
	}
	return cloneTrade(t), nil
}

// Enter applies the fill price to a SETUP_READY trade and advances it
// through ENTERED into MONITORING in one operation; ENTERED exists only
// to mark the fill timestamp. The second return reports whether state
// changed: a duplicate request with the same fill is a no-op, a
// different fill or a wrong state is a hard ErrInvalidTransition.
func (l *Ledger) Enter(ctx context.Context, id string, fill float64) (*domain.Trade, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.trades[id]
	if !ok {
		return nil, false, fmt.Errorf("%s: %w", id, domain.ErrTradeNotFound)
	}

	switch t.Status {
	case domain.StatusSetupReady:
	case domain.StatusEntered, domain.StatusMonitoring:
		if floatEq(t.ActualEntry, fill) {
			return cloneTrade(t), false, nil
		}
		return nil, false, fmt.Errorf("trade %s already entered at %.2f: %w", id, t.ActualEntry, domain.ErrInvalidTransition)
	default:
		return nil, false, fmt.Errorf("trade %s is %s, cannot enter: %w", id, t.Status, domain.ErrInvalidTransition)
	}

	if fill <= 0 {
		return nil, false, fmt.Errorf("entry price %.4f for %s: %w", fill, id, domain.ErrInvalidTransition)
	}

	stop := fill * l.params.StopLossRatio
	target := fill + (fill-stop)*l.styleParams(t.Style).RewardMultiplier

	t.Status = domain.StatusMonitoring
	t.ActualEntry = fill
	t.Slippage = fill - t.EstimatedEntry
	t.EntryTime = l.now().In(l.loc)
	t.StopLoss = stop
	t.Target = target

	if err := l.saveLocked(ctx); err != nil {
		return nil, false, err
	}
	return cloneTrade(t), true, nil
}

// Exit closes a MONITORING trade, computes the final P&L and folds the
// trade into the daily statistics. Exiting an already-exited trade with
// the same price and reason is a no-op.
func (l *Ledger) Exit(ctx context.Context, id string, price float64, reason string) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.trades[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrTradeNotFound)
	}

	if t.Status != domain.StatusMonitoring {
		if t.Status == domain.StatusExited && t.ExitReason == reason && floatEq(t.ExitPrice, price) {
			return cloneTrade(t), nil
		}
		return nil, fmt.Errorf("trade %s is %s, cannot exit: %w", id, t.Status, domain.ErrInvalidTransition)
	}

	now := l.now().In(l.loc)
	entry := t.EntryPrice()

	t.Status = domain.StatusExited
	t.ExitPrice = price
	t.ExitReason = reason
	t.ExitTime = now
	if entry > 0 {
		t.PnL = price - entry
		t.PnLPct = t.PnL / entry * 100
	}
	if t.PnL > t.MaxProfit {
		t.MaxProfit = t.PnL
	}
	if dd := t.MaxProfit - t.PnL; dd > t.MaxDrawdown {
		t.MaxDrawdown = dd
	}
	t.DurationMin = t.Duration(now).Minutes()

	l.updateDailyStatsLocked(t)

	if err := l.saveLocked(ctx); err != nil {
		return nil, err
	}
	return cloneTrade(t), nil
}

// UpdateProgress refreshes the running P&L of a MONITORING trade from the
// current option price. Max profit and max drawdown only ever ratchet up.
func (l *Ledger) UpdateProgress(ctx context.Context, id string, optionPrice float64) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.trades[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrTradeNotFound)
	}
	if t.Status != domain.StatusMonitoring {
		return nil, fmt.Errorf("trade %s is %s, cannot update progress: %w", id, t.Status, domain.ErrInvalidTransition)
	}

	entry := t.EntryPrice()
	if entry <= 0 {
		return cloneTrade(t), nil
	}

	t.PnL = optionPrice - entry
	t.PnLPct = t.PnL / entry * 100
	if t.PnL > t.MaxProfit {
		t.MaxProfit = t.PnL
	}
	if dd := t.MaxProfit - t.PnL; dd > t.MaxDrawdown {
		t.MaxDrawdown = dd
	}

	if err := l.saveLocked(ctx); err != nil {
		return nil, err
	}
	return cloneTrade(t), nil
}

func (l *Ledger) Get(id string) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.trades[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrTradeNotFound)
	}
	return cloneTrade(t), nil
}

// ActiveTrades returns every trade that has not exited, oldest first.
func (l *Ledger) ActiveTrades() []*domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Trade
	for _, id := range l.order {
		if t := l.trades[id]; t.IsOpen() {
			out = append(out, cloneTrade(t))
		}
	}
	return out
}

// MonitoringTrades returns the trades the monitoring loop should tick.
func (l *Ledger) MonitoringTrades() []*domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Trade
	for _, id := range l.order {
		if t := l.trades[id]; t.Status == domain.StatusMonitoring {
			out = append(out, cloneTrade(t))
		}
	}
	return out
}

func (l *Ledger) AllTrades() []*domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*domain.Trade, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, cloneTrade(l.trades[id]))
	}
	return out
}

// DailyBucket returns the statistics bucket for a "2006-01-02" date key.
func (l *Ledger) DailyBucket(date string) *domain.DailyStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.daily[date]
	if !ok {
		return nil
	}
	out := *d
	out.TradeStyles = make(map[domain.TradeStyle]int, len(d.TradeStyles))
	for k, v := range d.TradeStyles {
		out.TradeStyles[k] = v
	}
	return &out
}

// Summary aggregates exited trades whose entry (or setup) date falls in
// the trailing window. An empty window yields HasData=false with all
// counters zero; no division happens on an empty set.
func (l *Ledger) Summary(days int) *domain.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(l.loc)
	cutoff := dateOnly(now.AddDate(0, 0, -days))

	sum := &domain.Summary{
		PeriodDays: days,
		ByStyle:    make(map[domain.TradeStyle]*domain.StyleStats),
	}

	for _, id := range l.order {
		t := l.trades[id]
		if t.Status != domain.StatusExited {
			continue
		}
		if dateOnly(l.tradeDate(t)).Before(cutoff) {
			continue
		}

		sum.TotalTrades++
		if t.PnL > 0 {
			sum.Wins++
		} else if t.PnL < 0 {
			sum.Losses++
		}
		sum.TotalPnL += t.PnL
		sum.TotalPnLPct += t.PnLPct
		sum.AvgConfluence += float64(t.ConfluenceScore)

		ss, ok := sum.ByStyle[t.Style]
		if !ok {
			ss = &domain.StyleStats{}
			sum.ByStyle[t.Style] = ss
		}
		ss.Count++
		ss.PnL += t.PnL
		if t.PnL > 0 {
			ss.Wins++
		}

		if sum.Best == nil || t.PnL > sum.Best.PnL {
			sum.Best = cloneTrade(t)
		}
		if sum.Worst == nil || t.PnL < sum.Worst.PnL {
			sum.Worst = cloneTrade(t)
		}
	}

	if sum.TotalTrades == 0 {
		return sum
	}

	n := float64(sum.TotalTrades)
	sum.HasData = true
	sum.WinRate = float64(sum.Wins) / n * 100
	sum.AvgPnL = sum.TotalPnL / n
	sum.AvgPnLPct = sum.TotalPnLPct / n
	sum.AvgConfluence = sum.AvgConfluence / n
	return sum
}

func (l *Ledger) tradeDate(t *domain.Trade) time.Time {
	if !t.EntryTime.IsZero() {
		return t.EntryTime.In(l.loc)
	}
	return t.SetupTime.In(l.loc)
}

func (l *Ledger) updateDailyStatsLocked(t *domain.Trade) {
	date := l.tradeDate(t).Format("2006-01-02")
	d, ok := l.daily[date]
	if !ok {
		d = &domain.DailyStats{TradeStyles: make(map[domain.TradeStyle]int)}
		l.daily[date] = d
	}

	d.Trades++
	if t.PnL > 0 {
		d.Wins++
	} else if t.PnL < 0 {
		d.Losses++
	}
	d.TotalPnL += t.PnL
	d.TotalPnLPct += t.PnLPct
	d.AvgConfluence = (d.AvgConfluence*float64(d.Trades-1) + float64(t.ConfluenceScore)) / float64(d.Trades)
	d.TradeStyles[t.Style]++
}

// saveLocked flushes the full ledger state write-through. A failure here
// is a correctness violation, not a degradation: it is logged loudly and
// returned so the mutating operation fails, while the in-memory state
// stands until the next successful flush.
func (l *Ledger) saveLocked(ctx context.Context) error {
	state := &domain.LedgerState{
		Trades:      make([]*domain.Trade, 0, len(l.order)),
		DailyStats:  l.daily,
		LastUpdated: l.now(),
	}
	for _, id := range l.order {
		state.Trades = append(state.Trades, l.trades[id])
	}

	if err := l.log.Save(ctx, state); err != nil {
		l.logger.Error("CRITICAL: trade log flush failed, in-memory state ahead of disk",
			zap.Error(err),
			zap.Int("trades", len(state.Trades)))
		return fmt.Errorf("persist trade log: %w", err)
	}
	return nil
}

func cloneTrade(t *domain.Trade) *domain.Trade {
	out := *t
	return &out
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
