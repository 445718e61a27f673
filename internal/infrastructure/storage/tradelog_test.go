package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
)

func sampleState(t *testing.T) *domain.LedgerState {
	t.Helper()

	setup := time.Date(2025, time.March, 14, 9, 45, 0, 0, time.UTC)
	return &domain.LedgerState{
		Trades: []*domain.Trade{
			{
				ID:              "SPY_day_20250314_0945",
				Symbol:          "SPY",
				Style:           domain.StyleDay,
				Status:          domain.StatusMonitoring,
				SetupTime:       setup,
				Reason:          "Strong bullish confluence - RVOL: 1.6x, All EMAs bullish",
				ConfluenceScore: 80,
				EntrySnapshot: &domain.IndicatorSnapshot{
					Symbol:         "SPY",
					Price:          450,
					MovingAverages: map[int]float64{21: 447.75, 50: 443.25},
					TrendState: map[string]domain.Trend{
						domain.TrendPairFast: domain.TrendBullish,
						domain.TrendPairSlow: domain.TrendBullish,
					},
					RelativeVolume: 1.6,
					Timestamp:      setup,
				},
				EstimatedEntry: 13.5,
				ActualEntry:    13.2,
				EntryTime:      setup.Add(3 * time.Minute),
				StopLoss:       6.6,
				Target:         26.4,
			},
		},
		DailyStats: map[string]*domain.DailyStats{
			"2025-03-14": {
				Trades:        1,
				TradeStyles:   map[domain.TradeStyle]int{domain.StyleDay: 1},
				AvgConfluence: 80,
			},
		},
		LastUpdated: setup.Add(5 * time.Minute),
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	log := NewJSONTradeLog(filepath.Join(t.TempDir(), "perf.json"), zap.NewNop())

	state, err := log.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Trades)
	assert.Empty(t, state.DailyStats)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "perf.json")
	log := NewJSONTradeLog(path, zap.NewNop())

	want := sampleState(t)
	require.NoError(t, log.Save(context.Background(), want))

	got, err := log.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, got.Trades, 1)
	tr := got.Trades[0]
	assert.Equal(t, "SPY_day_20250314_0945", tr.ID)
	assert.Equal(t, domain.StatusMonitoring, tr.Status)
	assert.Equal(t, 13.2, tr.ActualEntry)
	assert.True(t, tr.EntryTime.Equal(want.Trades[0].EntryTime))

	require.NotNil(t, tr.EntrySnapshot)
	assert.Equal(t, 447.75, tr.EntrySnapshot.MA(21))
	assert.Equal(t, domain.TrendBullish, tr.EntrySnapshot.TrendFor(domain.TrendPairFast))

	require.Contains(t, got.DailyStats, "2025-03-14")
	assert.Equal(t, 1, got.DailyStats["2025-03-14"].TradeStyles[domain.StyleDay])
}

func TestSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perf.json")
	log := NewJSONTradeLog(path, zap.NewNop())

	first := sampleState(t)
	require.NoError(t, log.Save(context.Background(), first))

	second := sampleState(t)
	second.Trades[0].Status = domain.StatusExited
	second.Trades[0].ExitReason = "Profit target hit ($26.40)"
	require.NoError(t, log.Save(context.Background(), second))

	// No temp file left behind, and the newest state wins.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "perf.json", entries[0].Name())

	got, err := log.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExited, got.Trades[0].Status)
	assert.Equal(t, "Profit target hit ($26.40)", got.Trades[0].ExitReason)
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	log := NewJSONTradeLog(path, zap.NewNop())
	_, err := log.Load(context.Background())
	assert.Error(t, err)
}
