package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
	"go.uber.org/zap"
)

type mockMarket struct {
	mu       sync.Mutex
	snap     *domain.IndicatorSnapshot
	snapErr  error
	price    float64
	priceErr error
	calls    int
	gate     chan struct{} // when set, GetSnapshot blocks until closed
}

func (m *mockMarket) GetSnapshot(ctx context.Context, symbol string) (*domain.IndicatorSnapshot, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	snap, err := m.snap, m.snapErr
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (m *mockMarket) GetOptionPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	return m.price, nil
}

func (m *mockMarket) snapCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockNotifier struct {
	mu       sync.Mutex
	msgs     []string
	fail     bool
	attempts int
}

func (n *mockNotifier) Send(ctx context.Context, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.fail {
		return false
	}
	n.msgs = append(n.msgs, text)
	return true
}

func (n *mockNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	copy(out, n.msgs)
	return out
}

type mockRecorder struct {
	mu     sync.Mutex
	alerts []*domain.AlertEvent
	events []*domain.TradeEvent
}

func (r *mockRecorder) RecordAlert(ctx context.Context, a *domain.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *mockRecorder) RecordTradeEvent(ctx context.Context, e *domain.TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *mockRecorder) ListAlerts(ctx context.Context, limit int) ([]*domain.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alerts, nil
}

func (r *mockRecorder) ListTradeEvents(ctx context.Context, tradeID string, limit int) ([]*domain.TradeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events, nil
}

func (r *mockRecorder) Close() error { return nil }

func (r *mockRecorder) eventKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

// monitoredTrade builds a MONITORING day trade entered at 2.00 with stop
// 1.00 and target 4.00, frozen on the given entry snapshot.
func monitoredTrade(style domain.TradeStyle, entryTime time.Time, entrySnap *domain.IndicatorSnapshot) *domain.Trade {
	return &domain.Trade{
		ID:            domain.SetupID("SPY", style, entryTime),
		Symbol:        "SPY",
		Style:         style,
		Status:        domain.StatusMonitoring,
		SetupTime:     entryTime,
		EntrySnapshot: entrySnap,
		ActualEntry:   2.00,
		EntryTime:     entryTime,
		StopLoss:      1.00,
		Target:        4.00,
	}
}

func TestExitReasonBreakdownBeatsProfitTarget(t *testing.T) {
	entry := time.Date(2025, 3, 14, 9, 45, 0, 0, time.UTC)
	trade := monitoredTrade(domain.StyleDay, entry, testSnapshot("SPY", 450))

	fresh := testSnapshot("SPY", 450)
	fresh.TrendState[domain.TrendPairFast] = domain.TrendBearish

	// option price far beyond target, yet the invalidated thesis wins
	got := ExitReason(trade, fresh, 5.00, entry.Add(time.Hour), time.UTC)
	want := "EMA trend breakdown (9_21 no longer bullish)"
	if got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}
}

func TestExitReasonBreakdownOrder(t *testing.T) {
	entry := time.Date(2025, 3, 14, 9, 45, 0, 0, time.UTC)
	now := entry.Add(time.Hour)

	entrySnap := testSnapshot("SPY", 450)
	entrySnap.SupportLevels = []domain.SupportLevel{{Name: "S1", Level: 445.50}}

	// support broken and MA50 broken at once: support is reported first
	trade := monitoredTrade(domain.StyleDay, entry, entrySnap)
	fresh := testSnapshot("SPY", 442)
	fresh.MovingAverages[50] = 444
	got := ExitReason(trade, fresh, 2.50, now, time.UTC)
	if want := "Support broken at $445.50 (S1)"; got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}

	// without recorded supports the MA50 breach is the specific reason
	bare := testSnapshot("SPY", 450)
	bare.SupportLevels = nil
	trade = monitoredTrade(domain.StyleDay, entry, bare)
	fresh = testSnapshot("SPY", 442)
	fresh.MovingAverages[50] = 444
	got = ExitReason(trade, fresh, 2.50, now, time.UTC)
	if want := "Price below 50 EMA ($444.00)"; got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}

	// two bearish buckets flip the multi-timeframe check
	trade = monitoredTrade(domain.StyleDay, entry, bare)
	fresh = testSnapshot("SPY", 450)
	fresh.SupportLevels = nil
	fresh.MultiTimeframe = map[string]domain.Trend{
		domain.Timeframe1H: domain.TrendBearish,
		domain.Timeframe4H: domain.TrendBearish,
	}
	got = ExitReason(trade, fresh, 2.50, now, time.UTC)
	if want := "Multi-timeframe reversal (2 timeframes bearish)"; got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}
}

func TestExitReasonProfitTargetAndStopLoss(t *testing.T) {
	entry := time.Date(2025, 3, 14, 9, 45, 0, 0, time.UTC)
	now := entry.Add(time.Hour)
	trade := monitoredTrade(domain.StyleDay, entry, testSnapshot("SPY", 450))
	healthy := testSnapshot("SPY", 450)

	if got := ExitReason(trade, healthy, 4.00, now, time.UTC); got != "Profit target hit ($4.00)" {
		t.Errorf("target reason = %q", got)
	}
	if got := ExitReason(trade, healthy, 1.00, now, time.UTC); got != "Stop loss hit ($1.00)" {
		t.Errorf("stop reason = %q", got)
	}
	if got := ExitReason(trade, healthy, 2.50, now, time.UTC); got != "" {
		t.Errorf("expected no exit, got %q", got)
	}
}

func TestExitReasonScalpTimeBoundary(t *testing.T) {
	entry := time.Date(2025, 3, 14, 9, 35, 0, 0, time.UTC)
	trade := monitoredTrade(domain.StyleScalp, entry, testSnapshot("SPY", 450))
	healthy := testSnapshot("SPY", 450)

	before := time.Date(2025, 3, 14, 15, 54, 59, 0, time.UTC)
	if got := ExitReason(trade, healthy, 2.50, before, time.UTC); got != "" {
		t.Errorf("15:54:59 triggered early: %q", got)
	}

	at := time.Date(2025, 3, 14, 15, 55, 0, 0, time.UTC)
	if got := ExitReason(trade, healthy, 2.50, at, time.UTC); got != "Scalp time limit (15:55 close)" {
		t.Errorf("15:55:00 reason = %q", got)
	}

	// a scalp that somehow survives overnight is closed on sight
	nextDay := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	if got := ExitReason(trade, healthy, 2.50, nextDay, time.UTC); got != "Scalp time limit (15:55 close)" {
		t.Errorf("next day reason = %q", got)
	}
}

func TestExitReasonDayAndSwingTimeLimits(t *testing.T) {
	entry := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	healthy := testSnapshot("SPY", 450)

	day := monitoredTrade(domain.StyleDay, entry, testSnapshot("SPY", 450))
	if got := ExitReason(day, healthy, 2.50, entry.AddDate(0, 0, 2).Add(-time.Minute), time.UTC); got != "" {
		t.Errorf("day trade closed early: %q", got)
	}
	if got := ExitReason(day, healthy, 2.50, entry.AddDate(0, 0, 2), time.UTC); got != "Day trade time limit (2 days)" {
		t.Errorf("day limit reason = %q", got)
	}

	swing := monitoredTrade(domain.StyleSwing, entry, testSnapshot("SPY", 450))
	if got := ExitReason(swing, healthy, 2.50, entry.AddDate(0, 0, 41), time.UTC); got != "" {
		t.Errorf("swing closed early: %q", got)
	}
	if got := ExitReason(swing, healthy, 2.50, entry.AddDate(0, 0, 42), time.UTC); got != "Swing time limit (6 weeks)" {
		t.Errorf("swing limit reason = %q", got)
	}
}

func TestExitReasonIgnoresNonMonitoring(t *testing.T) {
	entry := time.Date(2025, 3, 14, 9, 45, 0, 0, time.UTC)
	trade := monitoredTrade(domain.StyleDay, entry, testSnapshot("SPY", 450))
	trade.Status = domain.StatusSetupReady

	fresh := testSnapshot("SPY", 450)
	fresh.TrendState[domain.TrendPairFast] = domain.TrendBearish
	if got := ExitReason(trade, fresh, 0.50, entry.Add(time.Hour), time.UTC); got != "" {
		t.Errorf("non-monitoring trade produced exit %q", got)
	}
}

type monitorFixture struct {
	monitor  *TradeMonitor
	ledger   *Ledger
	market   *mockMarket
	notifier *mockNotifier
	recorder *mockRecorder
	tradeID  string
}

func newMonitorFixture(t *testing.T, now time.Time) *monitorFixture {
	t.Helper()

	ledger, _ := newTestLedger(t, now)
	setup, err := ledger.RecordSetup(context.Background(), "SPY", domain.StyleDay, testDecision(), testSnapshot("SPY", 450))
	if err != nil {
		t.Fatalf("RecordSetup failed: %v", err)
	}
	if _, _, err := ledger.Enter(context.Background(), setup.ID, 2.00); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}

	market := &mockMarket{snap: testSnapshot("SPY", 450), price: 2.50}
	notifier := &mockNotifier{}
	recorder := &mockRecorder{}

	monitor := NewTradeMonitor(ledger, market, notifier, recorder, time.Minute, time.UTC, zap.NewNop())
	monitor.now = func() time.Time { return now }
	return &monitorFixture{
		monitor:  monitor,
		ledger:   ledger,
		market:   market,
		notifier: notifier,
		recorder: recorder,
		tradeID:  setup.ID,
	}
}

func TestCheckNowExitsOnBreakdown(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 47, 0, 0, time.UTC)
	f := newMonitorFixture(t, now)

	broken := testSnapshot("SPY", 450)
	broken.TrendState[domain.TrendPairFast] = domain.TrendBearish
	f.market.snap = broken
	f.market.price = 2.20

	f.monitor.CheckNow(context.Background())

	trade, err := f.ledger.Get(f.tradeID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if trade.Status != domain.StatusExited {
		t.Fatalf("status = %s, want EXITED", trade.Status)
	}
	if trade.ExitReason != "EMA trend breakdown (9_21 no longer bullish)" {
		t.Errorf("exit reason = %q", trade.ExitReason)
	}
	if !floatEquals(trade.ExitPrice, 2.20) {
		t.Errorf("exit price = %f, want 2.20", trade.ExitPrice)
	}

	msgs := f.notifier.sent()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "TRADE EXITED") {
		t.Errorf("exit alert missing: %v", msgs)
	}
	kinds := f.recorder.eventKinds()
	if len(kinds) != 1 || kinds[0] != domain.EventExit {
		t.Errorf("recorded events = %v, want [EXIT]", kinds)
	}
}

func TestCheckNowUpdatesProgress(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 47, 0, 0, time.UTC) // not a 5m boundary
	f := newMonitorFixture(t, now)
	f.market.price = 2.60

	f.monitor.CheckNow(context.Background())

	trade, _ := f.ledger.Get(f.tradeID)
	if trade.Status != domain.StatusMonitoring {
		t.Fatalf("status = %s, want MONITORING", trade.Status)
	}
	if !floatEquals(trade.PnL, 0.60) || !floatEquals(trade.MaxProfit, 0.60) {
		t.Errorf("pnl=%f maxProfit=%f, want 0.60/0.60", trade.PnL, trade.MaxProfit)
	}
	if msgs := f.notifier.sent(); len(msgs) != 0 {
		t.Errorf("unexpected notifications off the 5m boundary: %v", msgs)
	}
}

func TestCheckNowSkipsTickOnDataFailure(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 47, 0, 0, time.UTC)
	f := newMonitorFixture(t, now)
	f.market.snapErr = domain.ErrDataUnavailable

	f.monitor.CheckNow(context.Background())

	trade, _ := f.ledger.Get(f.tradeID)
	if trade.Status != domain.StatusMonitoring {
		t.Errorf("trade dropped on data failure: %s", trade.Status)
	}
	if got := len(f.ledger.MonitoringTrades()); got != 1 {
		t.Errorf("monitoring set size = %d, want 1", got)
	}
	if msgs := f.notifier.sent(); len(msgs) != 0 {
		t.Errorf("unexpected notifications: %v", msgs)
	}

	// feed recovers, next tick proceeds normally
	f.market.mu.Lock()
	f.market.snapErr = nil
	f.market.mu.Unlock()
	f.monitor.CheckNow(context.Background())
	trade, _ = f.ledger.Get(f.tradeID)
	if !floatEquals(trade.PnL, 0.50) {
		t.Errorf("pnl after recovery = %f, want 0.50", trade.PnL)
	}
}

func TestStatusUpdateThrottledToBoundary(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 45, 10, 0, time.UTC)
	f := newMonitorFixture(t, now)

	f.monitor.CheckNow(context.Background())
	if msgs := f.notifier.sent(); len(msgs) != 1 || !strings.Contains(msgs[0], "TRADE UPDATE") {
		t.Fatalf("expected one status update, got %v", msgs)
	}

	// same boundary, 30 seconds later: throttled
	f.monitor.now = func() time.Time { return now.Add(30 * time.Second) }
	f.monitor.CheckNow(context.Background())
	if msgs := f.notifier.sent(); len(msgs) != 1 {
		t.Errorf("status update not throttled: %d messages", len(msgs))
	}

	// next boundary: sent again
	f.monitor.now = func() time.Time { return time.Date(2025, 3, 14, 9, 50, 5, 0, time.UTC) }
	f.monitor.CheckNow(context.Background())
	if msgs := f.notifier.sent(); len(msgs) != 2 {
		t.Errorf("expected second status update, got %d messages", len(msgs))
	}
}

func TestAtMostOneCheckPerTrade(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 47, 0, 0, time.UTC)
	f := newMonitorFixture(t, now)

	gate := make(chan struct{})
	f.market.mu.Lock()
	f.market.gate = gate
	f.market.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.monitor.CheckNow(context.Background())
		close(done)
	}()

	// wait for the first check to be inside the data fetch
	for i := 0; i < 200 && f.market.snapCalls() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if f.market.snapCalls() != 1 {
		t.Fatalf("first check never reached the market, calls=%d", f.market.snapCalls())
	}

	// a second pass while the first is in flight must skip the trade
	f.monitor.CheckNow(context.Background())
	if got := f.market.snapCalls(); got != 1 {
		t.Errorf("overlapping check hit the market, calls=%d", got)
	}

	close(gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first check never finished")
	}
}

func TestMonitorEnterNotifiesAndRecords(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 45, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, now)
	setup, _ := ledger.RecordSetup(context.Background(), "SPY", domain.StyleScalp, testDecision(), testSnapshot("SPY", 450))

	notifier := &mockNotifier{}
	recorder := &mockRecorder{}
	monitor := NewTradeMonitor(ledger, &mockMarket{}, notifier, recorder, time.Minute, time.UTC, zap.NewNop())
	monitor.now = func() time.Time { return now }

	trade, entered, err := monitor.Enter(context.Background(), setup.ID, 2.00)
	if err != nil || !entered {
		t.Fatalf("Enter: entered=%v err=%v", entered, err)
	}
	if !floatEquals(trade.Target, 3.20) {
		t.Errorf("scalp target = %f, want 3.20", trade.Target)
	}

	msgs := notifier.sent()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "TRADE ENTERED") {
		t.Errorf("entry alert missing: %v", msgs)
	}
	if kinds := recorder.eventKinds(); len(kinds) != 1 || kinds[0] != domain.EventEntry {
		t.Errorf("recorded events = %v, want [ENTRY]", kinds)
	}

	// duplicate confirmation does not re-alert
	if _, entered, err := monitor.Enter(context.Background(), setup.ID, 2.00); err != nil || entered {
		t.Errorf("duplicate enter: entered=%v err=%v", entered, err)
	}
	if got := len(notifier.sent()); got != 1 {
		t.Errorf("duplicate enter re-sent alert: %d messages", got)
	}
}

func TestMonitorStartStop(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 47, 0, 0, time.UTC)
	f := newMonitorFixture(t, now)

	ctx := context.Background()
	if err := f.monitor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.monitor.Start(ctx); err == nil {
		t.Error("second Start did not fail")
	}
	f.monitor.Stop()

	// restart after a clean stop is allowed
	if err := f.monitor.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	f.monitor.Stop()
}
