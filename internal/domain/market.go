package domain

import "time"

// MarketStatus describes the exchange session at one instant.
type MarketStatus struct {
	IsOpen       bool      `json:"is_open"`
	CurrentTime  time.Time `json:"current_time"`
	NextOpen     time.Time `json:"next_open"`
	IsWeekend    bool      `json:"is_weekend"`
	IsHoliday    bool      `json:"is_holiday"`
	IsEarlyClose bool      `json:"is_early_close"`
	Reason       string    `json:"reason,omitempty"`
}
