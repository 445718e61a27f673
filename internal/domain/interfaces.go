package domain

import (
	"context"
	"time"
)

// MarketData supplies indicator snapshots and option premium estimates
// for a symbol. Both calls are blocking, fallible I/O; callers treat a
// failure as a skipped tick, never as a reason to drop a trade.
type MarketData interface {
	GetSnapshot(ctx context.Context, symbol string) (*IndicatorSnapshot, error)
	GetOptionPrice(ctx context.Context, symbol string) (float64, error)
}

// Notifier delivers a formatted alert message. Delivery is best effort:
// implementations report failure instead of returning an error, and a
// failed send never blocks or rolls back a trade transition.
type Notifier interface {
	Send(ctx context.Context, text string) bool
}

// Calendar reports whether the exchange currently permits trading.
type Calendar interface {
	IsOpen(now time.Time) bool
	NextOpen(now time.Time) time.Time
	Status(now time.Time) MarketStatus
}

// TradeLog persists the complete ledger state. Save is write-through:
// it must flush durably before returning, so a crash after a mutating
// call cannot lose the mutation.
type TradeLog interface {
	Load(ctx context.Context) (*LedgerState, error)
	Save(ctx context.Context, state *LedgerState) error
}

// EventRecorder keeps an append-only audit trail of alerts and trade
// lifecycle events. Recording is best effort alongside the JSON ledger.
type EventRecorder interface {
	RecordAlert(ctx context.Context, a *AlertEvent) error
	RecordTradeEvent(ctx context.Context, e *TradeEvent) error
	ListAlerts(ctx context.Context, limit int) ([]*AlertEvent, error)
	ListTradeEvents(ctx context.Context, tradeID string, limit int) ([]*TradeEvent, error)
	Close() error
}
