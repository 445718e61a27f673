package domain

import (
	"fmt"
	"time"
)

type TradeStyle string

const (
	StyleScalp TradeStyle = "scalp"
	StyleDay   TradeStyle = "day"
	StyleSwing TradeStyle = "swing"
)

// Styles lists all trade styles in sweep evaluation order, strictest
// volume threshold first.
func Styles() []TradeStyle {
	return []TradeStyle{StyleScalp, StyleDay, StyleSwing}
}

func (s TradeStyle) Valid() bool {
	switch s {
	case StyleScalp, StyleDay, StyleSwing:
		return true
	}
	return false
}

type TradeStatus string

const (
	StatusSetupReady TradeStatus = "SETUP_READY"
	StatusEntered    TradeStatus = "ENTERED"
	StatusMonitoring TradeStatus = "MONITORING"
	StatusExited     TradeStatus = "EXITED"
)

// Trade is one tracked setup, from detection through exit. Records are
// created in SETUP_READY, advance ENTERED -> MONITORING when a real fill
// price arrives, terminate in EXITED and are never deleted afterwards.
// All mutation goes through the ledger transition methods.
type Trade struct {
	ID              string      `json:"setup_id"`
	Symbol          string      `json:"symbol"`
	Style           TradeStyle  `json:"trade_style"`
	Status          TradeStatus `json:"status"`
	SetupTime       time.Time   `json:"setup_time"`
	Reason          string      `json:"alert_reason"`
	ConfluenceScore int         `json:"confluence_score"`

	// EntrySnapshot is the indicator picture frozen at setup time; the
	// monitoring loop diffs fresh snapshots against it to detect breakdown.
	EntrySnapshot *IndicatorSnapshot `json:"entry_snapshot,omitempty"`

	EstimatedEntry float64   `json:"estimated_entry"`
	ActualEntry    float64   `json:"actual_entry,omitempty"`
	Slippage       float64   `json:"slippage,omitempty"`
	EntryTime      time.Time `json:"entry_time,omitzero"`
	StopLoss       float64   `json:"stop_loss,omitempty"`
	Target         float64   `json:"target,omitempty"`

	ExitPrice   float64   `json:"exit_price,omitempty"`
	ExitReason  string    `json:"exit_reason,omitempty"`
	ExitTime    time.Time `json:"exit_time,omitzero"`
	DurationMin float64   `json:"trade_duration,omitempty"`

	PnL         float64 `json:"pnl"`
	PnLPct      float64 `json:"pnl_percent"`
	MaxProfit   float64 `json:"max_profit"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// SetupID builds the trade identity: unique per symbol, style and
// creation minute.
func SetupID(symbol string, style TradeStyle, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", symbol, style, at.Format("20060102_1504"))
}

func (t *Trade) IsOpen() bool {
	return t.Status != StatusExited
}

// EntryPrice returns the price P&L is measured from: the real fill when
// entered, the premium estimate before that.
func (t *Trade) EntryPrice() float64 {
	if t.ActualEntry > 0 {
		return t.ActualEntry
	}
	return t.EstimatedEntry
}

func (t *Trade) Duration(now time.Time) time.Duration {
	start := t.EntryTime
	if start.IsZero() {
		start = t.SetupTime
	}
	end := t.ExitTime
	if end.IsZero() {
		end = now
	}
	return end.Sub(start)
}
