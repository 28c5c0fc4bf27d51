package analytics

import (
	"math"
	"time"

	"github.com/analyticsai/insight-service/internal/models"
)

// DefaultTimeRange is the window applied when a request carries no usable
// time-range token.
const DefaultTimeRange = "7d"

// windowDurations maps the accepted time-range tokens to their span.
var windowDurations = map[string]time.Duration{
	"1h":   time.Hour,
	"1d":   24 * time.Hour,
	"7d":   7 * 24 * time.Hour,
	"30d":  30 * 24 * time.Hour,
	"90d":  90 * 24 * time.Hour,
	"365d": 365 * 24 * time.Hour,
}

// ResolveWindow converts a time-range token into the inclusive lower bound of
// the query window, anchored at now. Unknown or empty tokens resolve to the
// 7-day default rather than erroring.
func ResolveWindow(token string, now time.Time) time.Time {
	d, ok := windowDurations[token]
	if !ok {
		d = windowDurations[DefaultTimeRange]
	}
	return now.Add(-d)
}

// NormalizeTimeRange returns the token actually applied by ResolveWindow,
// so responses echo the effective window instead of a bad input.
func NormalizeTimeRange(token string) string {
	if _, ok := windowDurations[token]; ok {
		return token
	}
	return DefaultTimeRange
}

// Summarize computes count, average, min, max, and latest over a series.
// Values arrive newest first, so Latest is the first element. An empty
// series yields the zero aggregate.
func Summarize(values []float64) models.Aggregate {
	if len(values) == 0 {
		return models.Aggregate{}
	}
	min, max := values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	return models.Aggregate{
		Count:   len(values),
		Average: sum / float64(len(values)),
		Min:     min,
		Max:     max,
		Latest:  values[0],
	}
}

// CalculateTrend fits an ordinary-least-squares line through a chronological
// series (x = element index) and classifies the slope. Fewer than two points,
// a degenerate denominator, or a slope inside the [-0.1, 0.1] band yields
// (stable, 0). For a non-stable trend, strength is the slope magnitude
// normalized by the series maximum, capped at 1.
func CalculateTrend(values []float64) (models.TrendDirection, float64) {
	n := float64(len(values))
	if n < 2 {
		return models.TrendStable, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return models.TrendStable, 0
	}
	slope := (n*sumXY - sumX*sumY) / denom

	direction := models.TrendStable
	if slope > 0.1 {
		direction = models.TrendIncreasing
	} else if slope < -0.1 {
		direction = models.TrendDecreasing
	}
	if direction == models.TrendStable {
		return models.TrendStable, 0
	}

	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	strength := 0.0
	if max != 0 {
		strength = math.Min(math.Abs(slope)/max, 1.0)
	}
	return direction, strength
}

// LinearForecast projects the fitted trend line forward from the end of a
// chronological series. Confidence starts at base and decays per step,
// floored at 0.1. Used when model-generated forecasts are unavailable.
func LinearForecast(values []float64, horizon int, base, decay float64) []models.ForecastPoint {
	if len(values) == 0 || horizon <= 0 {
		return nil
	}

	n := float64(len(values))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	slope := 0.0
	if denom := n*sumX2 - sumX*sumX; denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}

	last := values[len(values)-1]
	out := make([]models.ForecastPoint, 0, horizon)
	for day := 1; day <= horizon; day++ {
		conf := base - decay*float64(day-1)
		if conf < 0.1 {
			conf = 0.1
		}
		out = append(out, models.ForecastPoint{
			Day:        day,
			Value:      last + slope*float64(day),
			Confidence: conf,
		})
	}
	return out
}
