package marketdata

import (
	"math"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
)

// trendBand is the relative gap below which a moving-average pair is
// called Neutral instead of Bullish/Bearish, so a crossing pair does not
// flap between states on every tick.
const trendBand = 0.0005

// sessionMinutes is the regular NYSE session length (09:30-16:00).
const sessionMinutes = 390.0

// minElapsedMinutes floors the session-elapsed fraction used by the
// relative volume proration. Right after the open a few hundred shares
// would otherwise read as a massive volume spike.
const minElapsedMinutes = 30.0

// SMA returns the simple average of the last period closes, or 0 when
// there is not enough history.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average over closes, seeded with
// the SMA of the first period values. 0 when there is not enough history.
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	ema := SMA(closes[:period], period)
	k := 2.0 / (float64(period) + 1.0)
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// MovingAverages computes the EMA for each period. Periods with too
// little history are left out of the map, so lookups read as 0.
func MovingAverages(closes []float64, periods []int) map[int]float64 {
	out := make(map[int]float64, len(periods))
	for _, p := range periods {
		if v := EMA(closes, p); v > 0 {
			out[p] = v
		}
	}
	return out
}

// TrendBetween classifies a fast/slow moving-average pair. Either side
// missing reads Neutral.
func TrendBetween(fast, slow float64) domain.Trend {
	if fast <= 0 || slow <= 0 {
		return domain.TrendNeutral
	}
	diff := (fast - slow) / slow
	switch {
	case diff >= trendBand:
		return domain.TrendBullish
	case diff <= -trendBand:
		return domain.TrendBearish
	default:
		return domain.TrendNeutral
	}
}

// TrendState builds the 9_21 and 34_50 pair states from a moving-average map.
func TrendState(mas map[int]float64) map[string]domain.Trend {
	return map[string]domain.Trend{
		domain.TrendPairFast: TrendBetween(mas[9], mas[21]),
		domain.TrendPairSlow: TrendBetween(mas[34], mas[50]),
	}
}

// AggregateCandles buckets chronological candles into bucket-sized bars
// by flooring their timestamps. OHLC merges the usual way, volume sums.
func AggregateCandles(candles []domain.Candle, bucket time.Duration) []domain.Candle {
	sec := int64(bucket / time.Second)
	if sec <= 0 || len(candles) == 0 {
		return nil
	}

	var out []domain.Candle
	for _, c := range candles {
		start := c.Time - c.Time%sec
		if len(out) == 0 || out[len(out)-1].Time != start {
			merged := c
			merged.Time = start
			out = append(out, merged)
			continue
		}
		last := &out[len(out)-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume += c.Volume
	}
	return out
}

// Closes extracts the close series from candles.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// bucketTrend classifies one timeframe from its close series. It prefers
// the 9/21 pair and degrades to 5/13 on short history, which keeps the
// 4H bucket meaningful with only a couple of weeks of intraday bars.
func bucketTrend(closes []float64) domain.Trend {
	if fast, slow := EMA(closes, 9), EMA(closes, 21); slow > 0 {
		return TrendBetween(fast, slow)
	}
	if fast, slow := EMA(closes, 5), EMA(closes, 13); slow > 0 {
		return TrendBetween(fast, slow)
	}
	return domain.TrendNeutral
}

// MultiTimeframe classifies the 15M, 1H, 4H and daily buckets. intraday
// is a chronological 15-minute series; daily is the daily series.
func MultiTimeframe(intraday, daily []domain.Candle) map[string]domain.Trend {
	hourly := AggregateCandles(intraday, time.Hour)
	fourHour := AggregateCandles(intraday, 4*time.Hour)

	return map[string]domain.Trend{
		domain.Timeframe15M:   bucketTrend(Closes(intraday)),
		domain.Timeframe1H:    bucketTrend(Closes(hourly)),
		domain.Timeframe4H:    bucketTrend(Closes(fourHour)),
		domain.TimeframeDaily: bucketTrend(Closes(daily)),
	}
}

// RelativeVolume compares the newest daily candle's volume against the
// average of the 20 sessions before it. When the newest candle is the
// running session, the baseline is prorated by how much of the session
// has elapsed, so midday volume is measured against midday expectations.
func RelativeVolume(daily []domain.Candle, now time.Time, loc *time.Location) float64 {
	if len(daily) < 2 {
		return 1.0
	}

	last := daily[len(daily)-1]
	prev := daily[:len(daily)-1]
	if len(prev) > 20 {
		prev = prev[len(prev)-20:]
	}

	baseline := 0.0
	for _, c := range prev {
		baseline += c.Volume
	}
	baseline /= float64(len(prev))
	if baseline <= 0 {
		return 1.0
	}

	baseline *= sessionElapsedFraction(last, now, loc)
	return last.Volume / baseline
}

// sessionElapsedFraction returns how much of the regular session has
// elapsed when candle is today's running bar, else 1.
func sessionElapsedFraction(candle domain.Candle, now time.Time, loc *time.Location) float64 {
	et := now.In(loc)
	if time.Unix(candle.Time, 0).In(loc).Format("2006-01-02") != et.Format("2006-01-02") {
		return 1.0
	}

	elapsed := float64(et.Hour()*60+et.Minute()) - 570 // minutes since 09:30
	if elapsed >= sessionMinutes {
		return 1.0
	}
	if elapsed < minElapsedMinutes {
		elapsed = minElapsedMinutes
	}
	return elapsed / sessionMinutes
}

// ComputePivots derives classic floor-trader pivots from the previous
// session plus previous day and previous month extremes. daily must be
// chronological; now fixes which session counts as "previous".
func ComputePivots(daily []domain.Candle, now time.Time, loc *time.Location) domain.PivotLevels {
	today := now.In(loc).Format("2006-01-02")

	prevIdx := -1
	for i := len(daily) - 1; i >= 0; i-- {
		if time.Unix(daily[i].Time, 0).In(loc).Format("2006-01-02") < today {
			prevIdx = i
			break
		}
	}
	if prevIdx < 0 {
		return domain.PivotLevels{}
	}

	prev := daily[prevIdx]
	pivot := (prev.High + prev.Low + prev.Close) / 3

	levels := domain.PivotLevels{
		R1:  2*pivot - prev.Low,
		S1:  2*pivot - prev.High,
		PDH: prev.High,
		PDL: prev.Low,
	}

	levels.PMH, levels.PML = previousMonthRange(daily[:prevIdx+1], now.In(loc))
	return levels
}

// previousMonthRange returns the high/low of the previous calendar
// month, falling back to the trailing 20 sessions when the history does
// not reach that far back.
func previousMonthRange(daily []domain.Candle, et time.Time) (high, low float64) {
	prevMonth := et.AddDate(0, 0, -et.Day()) // last day of previous month
	wantYear, wantMonth := prevMonth.Year(), prevMonth.Month()

	low = math.MaxFloat64
	found := false
	for _, c := range daily {
		ct := time.Unix(c.Time, 0).In(et.Location())
		if ct.Year() != wantYear || ct.Month() != wantMonth {
			continue
		}
		found = true
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if found {
		return high, low
	}

	tail := daily
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
	}
	high, low = 0, math.MaxFloat64
	for _, c := range tail {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if len(tail) == 0 {
		return 0, 0
	}
	return high, low
}

// BuildSupportLevels lists the candidate supports sitting below price,
// in the order the setup alert prints them.
func BuildSupportLevels(price float64, pivots domain.PivotLevels, ma21 float64) []domain.SupportLevel {
	candidates := []domain.SupportLevel{
		{Name: "S1 Pivot", Level: pivots.S1},
		{Name: "21 EMA", Level: ma21},
		{Name: "PDL", Level: pivots.PDL},
	}

	out := make([]domain.SupportLevel, 0, len(candidates))
	for _, c := range candidates {
		if c.Level > 0 && c.Level < price {
			out = append(out, c)
		}
	}
	return out
}

// RealizedVolatility estimates annualized volatility in percent from the
// last lookback daily closes. Used as the implied volatility stand-in
// when no option chain is fetched.
func RealizedVolatility(closes []float64, lookback int) float64 {
	if len(closes) > lookback+1 {
		closes = closes[len(closes)-lookback-1:]
	}
	if len(closes) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(252) * 100
}
