package domain

import (
	"fmt"
	"time"
)

type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
	TrendNeutral Trend = "Neutral"
)

// Moving-average pair labels used in TrendState.
const (
	TrendPairFast = "9_21"
	TrendPairSlow = "34_50"
)

// Multi-timeframe bucket labels used in MultiTimeframe.
const (
	Timeframe15M   = "15M"
	Timeframe1H    = "1H"
	Timeframe4H    = "4H"
	TimeframeDaily = "D"
)

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// PivotLevels holds classic floor-trader pivots plus previous day/month extremes.
type PivotLevels struct {
	S1  float64 `json:"s1"`
	R1  float64 `json:"r1"`
	PDL float64 `json:"pdl"`
	PDH float64 `json:"pdh"`
	PML float64 `json:"pml"`
	PMH float64 `json:"pmh"`
}

type SupportLevel struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// IndicatorSnapshot is the technical picture of one symbol at one instant.
// It is recomputed on every evaluation and has no identity beyond
// symbol+timestamp; trade records freeze a copy at setup time.
type IndicatorSnapshot struct {
	Symbol            string           `json:"symbol"`
	Price             float64          `json:"price"`
	MovingAverages    map[int]float64  `json:"moving_averages"`
	TrendState        map[string]Trend `json:"trend_state"`
	MultiTimeframe    map[string]Trend `json:"multi_timeframe"`
	RelativeVolume    float64          `json:"relative_volume"`
	Pivots            PivotLevels      `json:"pivots"`
	SupportLevels     []SupportLevel   `json:"support_levels"`
	ImpliedVolatility float64          `json:"implied_volatility"`
	Delta             float64          `json:"delta"`
	Timestamp         time.Time        `json:"timestamp"`
}

// Validate rejects snapshots that cannot be evaluated at all.
func (s *IndicatorSnapshot) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("snapshot missing symbol: %w", ErrDataUnavailable)
	}
	if s.Price <= 0 {
		return fmt.Errorf("snapshot for %s has non-positive price %.4f: %w", s.Symbol, s.Price, ErrDataUnavailable)
	}
	return nil
}

// MA returns the moving average for period, or 0 when it was not computed.
func (s *IndicatorSnapshot) MA(period int) float64 {
	return s.MovingAverages[period]
}

func (s *IndicatorSnapshot) TrendFor(pair string) Trend {
	if t, ok := s.TrendState[pair]; ok {
		return t
	}
	return TrendNeutral
}

func (s *IndicatorSnapshot) TimeframeTrend(bucket string) Trend {
	if t, ok := s.MultiTimeframe[bucket]; ok {
		return t
	}
	return TrendNeutral
}

func (s *IndicatorSnapshot) BullishTimeframes() int {
	n := 0
	for _, t := range s.MultiTimeframe {
		if t == TrendBullish {
			n++
		}
	}
	return n
}

func (s *IndicatorSnapshot) BearishTimeframes() int {
	n := 0
	for _, t := range s.MultiTimeframe {
		if t == TrendBearish {
			n++
		}
	}
	return n
}
