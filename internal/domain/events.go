package domain

import "time"

// Trade event kinds kept in the audit recorder.
const (
	EventSetup  = "SETUP"
	EventEntry  = "ENTRY"
	EventStatus = "STATUS"
	EventExit   = "EXIT"
)

// AlertEvent is one dispatched (or attempted) setup alert.
type AlertEvent struct {
	ID     int64      `json:"id"`
	Time   time.Time  `json:"time"`
	Symbol string     `json:"symbol"`
	Style  TradeStyle `json:"style"`
	Reason string     `json:"reason"`
	Score  int        `json:"score"`
	Price  float64    `json:"price"`
	Sent   bool       `json:"sent"`
}

// TradeEvent is one lifecycle event of a tracked trade.
type TradeEvent struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	TradeID string    `json:"trade_id"`
	Event   string    `json:"event"`
	Price   float64   `json:"price"`
	Detail  string    `json:"detail,omitempty"`
}
