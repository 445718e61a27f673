package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
	"github.com/vitos/options_alert_bot/internal/usecase"
)

type stubTradeLog struct{}

func (s *stubTradeLog) Load(ctx context.Context) (*domain.LedgerState, error) {
	return &domain.LedgerState{}, nil
}

func (s *stubTradeLog) Save(ctx context.Context, state *domain.LedgerState) error {
	return nil
}

type stubMarket struct {
	snap *domain.IndicatorSnapshot
}

func (m *stubMarket) GetSnapshot(ctx context.Context, symbol string) (*domain.IndicatorSnapshot, error) {
	out := *m.snap
	out.Symbol = symbol
	return &out, nil
}

func (m *stubMarket) GetOptionPrice(ctx context.Context, symbol string) (float64, error) {
	return m.snap.Price * 0.03, nil
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *stubNotifier) Send(ctx context.Context, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return true
}

func (n *stubNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

type stubCalendar struct {
	open bool
}

func (c *stubCalendar) IsOpen(now time.Time) bool { return c.open }

func (c *stubCalendar) NextOpen(now time.Time) time.Time { return now.Add(time.Hour) }

func (c *stubCalendar) Status(now time.Time) domain.MarketStatus {
	status := domain.MarketStatus{IsOpen: c.open, CurrentTime: now}
	if !c.open {
		status.Reason = "Market closed"
		status.NextOpen = now.Add(time.Hour)
	}
	return status
}

func hotSnapshot() *domain.IndicatorSnapshot {
	return &domain.IndicatorSnapshot{
		Symbol: "SPY",
		Price:  450,
		MovingAverages: map[int]float64{
			9: 449.5, 21: 447.0, 34: 445.5, 50: 443.0,
		},
		TrendState: map[string]domain.Trend{
			domain.TrendPairFast: domain.TrendBullish,
			domain.TrendPairSlow: domain.TrendBullish,
		},
		MultiTimeframe: map[string]domain.Trend{
			domain.Timeframe1H: domain.TrendBullish,
			domain.Timeframe4H: domain.TrendBullish,
		},
		RelativeVolume: 2.0,
		Pivots:         domain.PivotLevels{R1: 459, S1: 441, PDL: 444},
		SupportLevels: []domain.SupportLevel{
			{Name: "S1 Pivot", Level: 441},
		},
		Timestamp: time.Now(),
	}
}

type webFixture struct {
	server   *Server
	notifier *stubNotifier
	ledger   *usecase.Ledger
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	logger := zap.NewNop()

	ledger, err := usecase.NewLedger(context.Background(), &stubTradeLog{}, usecase.DefaultLedgerParams(), time.UTC, logger)
	require.NoError(t, err)

	notifier := &stubNotifier{}
	market := &stubMarket{snap: hotSnapshot()}
	cal := &stubCalendar{open: true}

	sweeper := usecase.NewSymbolSweeper(
		usecase.NewSetupEvaluator(nil), ledger, market, notifier, nil, cal,
		usecase.SweeperOptions{
			Symbols:        []string{"SPY"},
			BatchSize:      2,
			BatchPause:     time.Millisecond,
			MaxConcurrency: 2,
		}, logger)

	monitor := usecase.NewTradeMonitor(ledger, market, notifier, nil, time.Second, time.UTC, logger)

	return &webFixture{
		server:   NewServer(0, sweeper, ledger, monitor, notifier, cal, nil, nil, nil, logger),
		notifier: notifier,
		ledger:   ledger,
	}
}

func (f *webFixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestIndexAndHealth(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot is live and running.", decodeBody(t, rec)["status"])

	rec = f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["market_open"])
	assert.Equal(t, false, body["monitor_running"])
}

func TestSweepEndpointCreatesTrades(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(http.MethodPost, "/api/sweep?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result usecase.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Symbols)
	assert.Equal(t, 1, result.Triggered)
	require.Len(t, result.TradeIDs, 1)

	require.Len(t, f.ledger.ActiveTrades(), 1)
	msgs := f.notifier.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "SETUP DETECTED")
}

func seedTrade(t *testing.T, f *webFixture) *domain.Trade {
	t.Helper()
	trade, err := f.ledger.RecordSetup(context.Background(), "SPY", domain.StyleDay,
		domain.Decision{Triggered: true, Reason: "Strong bullish confluence - RVOL: 2.0x, All EMAs bullish", ConfluenceScore: 80},
		hotSnapshot())
	require.NoError(t, err)
	return trade
}

func TestRecordEntryFlow(t *testing.T) {
	f := newWebFixture(t)
	trade := seedTrade(t, f)

	rec := f.do(http.MethodPost, "/api/trades/"+trade.ID+"/entry", []byte(`{"price": 2.0}`))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["entered"])

	got, err := f.ledger.Get(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMonitoring, got.Status)
	assert.InDelta(t, 1.0, got.StopLoss, 1e-9)
	assert.InDelta(t, 4.0, got.Target, 1e-9)

	// Same fill again is idempotent, not an error.
	rec = f.do(http.MethodPost, "/api/trades/"+trade.ID+"/entry", []byte(`{"price": 2.0}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["entered"])

	// A conflicting fill is rejected.
	rec = f.do(http.MethodPost, "/api/trades/"+trade.ID+"/entry", []byte(`{"price": 3.0}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/trades/nope/entry", []byte(`{"price": 2.0}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/trades/"+trade.ID+"/entry", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/trades/"+trade.ID+"/entry", []byte(`{"price": -1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradesAndSummaryEndpoints(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(http.MethodGet, "/api/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])

	seedTrade(t, f)
	rec = f.do(http.MethodGet, "/api/trades", nil)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = f.do(http.MethodGet, "/api/summary?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 7, summary.PeriodDays)
	assert.False(t, summary.HasData)

	rec = f.do(http.MethodGet, "/api/summary?days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["monitor_running"])
	assert.Equal(t, false, body["stream_connected"])
	assert.Equal(t, float64(1), body["symbols"])
	assert.NotContains(t, body, "schwab")

	market, ok := body["market"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, market["is_open"])
}

func TestTestAlertGoesThroughNotifier(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(http.MethodPost, "/api/test-alert", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["sent"])

	msgs := f.notifier.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "AAPL")
	assert.Contains(t, msgs[0], "Test alert - connectivity check")
}

func TestDailyReportRenders(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(http.MethodGet, "/daily-report", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	report, ok := decodeBody(t, rec)["report"].(string)
	require.True(t, ok)
	assert.True(t, strings.Contains(report, "DAILY TRADING BOT REPORT"))
	assert.Contains(t, report, "Symbols Monitored: 1")
}

func TestDisabledComponentsReport503(t *testing.T) {
	f := newWebFixture(t)

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/alerts", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/schwab/auth-url", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/schwab/token", []byte(`{"code":"x"}`)).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/schwab/status", nil).Code)
}
