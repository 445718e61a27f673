package domain

import "time"

// DailyStats is one calendar bucket of closed-trade aggregates, keyed by
// the trade's entry date (setup date when never entered). AvgConfluence
// is maintained with the incremental mean so the bucket never re-scans
// trade history.
type DailyStats struct {
	Trades        int                `json:"trades_count"`
	Wins          int                `json:"wins"`
	Losses        int                `json:"losses"`
	TotalPnL      float64            `json:"total_pnl"`
	TotalPnLPct   float64            `json:"total_pnl_percent"`
	AvgConfluence float64            `json:"avg_confluence_score"`
	TradeStyles   map[TradeStyle]int `json:"trade_styles"`
}

// StyleStats is the per-style slice of a summary window.
type StyleStats struct {
	Count int     `json:"count"`
	PnL   float64 `json:"pnl"`
	Wins  int     `json:"wins"`
}

// Summary aggregates closed trades over a trailing window. A window with
// no closed trades yields a zero-valued Summary with HasData false; it is
// a well-defined result, not an error.
type Summary struct {
	PeriodDays    int                        `json:"period_days"`
	HasData       bool                       `json:"has_data"`
	TotalTrades   int                        `json:"total_trades"`
	Wins          int                        `json:"wins"`
	Losses        int                        `json:"losses"`
	WinRate       float64                    `json:"win_rate"`
	TotalPnL      float64                    `json:"total_pnl"`
	AvgPnL        float64                    `json:"avg_pnl_per_trade"`
	TotalPnLPct   float64                    `json:"total_pnl_percent"`
	AvgPnLPct     float64                    `json:"avg_pnl_percent"`
	AvgConfluence float64                    `json:"avg_confluence_score"`
	ByStyle       map[TradeStyle]*StyleStats `json:"style_breakdown"`
	Best          *Trade                     `json:"best_trade,omitempty"`
	Worst         *Trade                     `json:"worst_trade,omitempty"`
}

// LedgerState is the persisted shape of the trade log file. Unknown
// fields in the file are ignored and missing fields default, so older
// files stay readable after upgrades.
type LedgerState struct {
	Trades      []*Trade               `json:"trades"`
	DailyStats  map[string]*DailyStats `json:"daily_stats"`
	LastUpdated time.Time              `json:"last_updated"`
}
