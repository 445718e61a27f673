package usecase

import (
	"fmt"

	"github.com/vitos/options_alert_bot/internal/domain"
)

// StyleParams holds the per-style tuning of the setup rules.
type StyleParams struct {
	RVOLThreshold    float64 `yaml:"rvol_threshold" json:"rvol_threshold"`
	RewardMultiplier float64 `yaml:"reward_multiplier" json:"reward_multiplier"`
}

// DefaultStyleParams returns the stock thresholds: the volume bar is
// strictest for scalps and loosest for swings, the reward multiplier is
// the low end of each style's target reward:risk band.
func DefaultStyleParams() map[domain.TradeStyle]StyleParams {
	return map[domain.TradeStyle]StyleParams{
		domain.StyleScalp: {RVOLThreshold: 1.50, RewardMultiplier: 1.2},
		domain.StyleDay:   {RVOLThreshold: 1.30, RewardMultiplier: 2.0},
		domain.StyleSwing: {RVOLThreshold: 1.20, RewardMultiplier: 3.0},
	}
}

// SetupEvaluator maps an indicator snapshot and a strategy style to a
// setup decision. It is pure: no I/O, no state beyond its parameters.
type SetupEvaluator struct {
	styles map[domain.TradeStyle]StyleParams
}

func NewSetupEvaluator(styles map[domain.TradeStyle]StyleParams) *SetupEvaluator {
	if len(styles) == 0 {
		styles = DefaultStyleParams()
	}
	return &SetupEvaluator{styles: styles}
}

// Params returns the tuning for style, falling back to the day-trade
// defaults for an unknown style.
func (e *SetupEvaluator) Params(style domain.TradeStyle) StyleParams {
	if p, ok := e.styles[style]; ok {
		return p
	}
	return StyleParams{RVOLThreshold: 1.30, RewardMultiplier: 2.0}
}

// Evaluate runs the setup rules for one style against one snapshot.
// Rules are checked in fixed priority order and the first match wins;
// reasons never stack.
func (e *SetupEvaluator) Evaluate(style domain.TradeStyle, snap *domain.IndicatorSnapshot) domain.Decision {
	decision := domain.Decision{ConfluenceScore: e.ConfluenceScore(snap)}
	if snap == nil {
		return decision
	}

	threshold := e.Params(style).RVOLThreshold
	rvol := snap.RelativeVolume
	price := snap.Price

	// Missing levels default the way the rules expect: an absent MA21
	// never blocks rule 1, an absent R1 never fires rule 2.
	ma21 := snap.MA(21)
	r1 := snap.Pivots.R1
	if r1 == 0 {
		r1 = price
	}

	switch {
	case snap.TrendFor(domain.TrendPairFast) == domain.TrendBullish &&
		snap.TrendFor(domain.TrendPairSlow) == domain.TrendBullish &&
		rvol > threshold &&
		price > ma21:
		decision.Triggered = true
		decision.Reason = fmt.Sprintf("Strong bullish confluence - RVOL: %.1fx, All EMAs bullish", rvol)

	case price > r1 && rvol > threshold*1.2:
		decision.Triggered = true
		decision.Reason = fmt.Sprintf("Breakout above R1 pivot ($%.2f) with high volume", snap.Pivots.R1)

	case snap.TimeframeTrend(domain.Timeframe1H) == domain.TrendBullish &&
		snap.TimeframeTrend(domain.Timeframe4H) == domain.TrendBullish &&
		rvol > threshold:
		decision.Triggered = true
		decision.Reason = "Multi-timeframe bullish alignment with elevated volume"
	}

	return decision
}

// ConfluenceScore grades setup quality additively and caps at 100:
// EMA alignment (+20 fast pair, +15 slow pair), relative volume
// (+25 / +15 / +5 above 1.5x / 1.3x / 1.1x), +10 per bullish timeframe
// bucket, +5 per recorded support level.
func (e *SetupEvaluator) ConfluenceScore(snap *domain.IndicatorSnapshot) int {
	if snap == nil {
		return 0
	}

	score := 0
	if snap.TrendFor(domain.TrendPairFast) == domain.TrendBullish {
		score += 20
	}
	if snap.TrendFor(domain.TrendPairSlow) == domain.TrendBullish {
		score += 15
	}

	switch {
	case snap.RelativeVolume > 1.5:
		score += 25
	case snap.RelativeVolume > 1.3:
		score += 15
	case snap.RelativeVolume > 1.1:
		score += 5
	}

	score += snap.BullishTimeframes() * 10
	score += len(snap.SupportLevels) * 5

	if score > 100 {
		score = 100
	}
	return score
}
