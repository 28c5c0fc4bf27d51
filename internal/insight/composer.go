package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/analytics"
	"github.com/analyticsai/insight-service/internal/llm"
	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/models"
)

// Package insight turns statistical summaries into natural-language output
// via the text generator, with strict response validation. Malformed or
// failed generations never surface as errors; every method degrades to a
// deterministic fallback and tags the result with its source.

// Composer produces insights, forecasts, recommendations, and summaries.
type Composer struct {
	gen     llm.TextGenerator
	logger  *zap.Logger
	timeout time.Duration
	horizon int
}

// NewComposer creates a composer. timeout bounds each generation call
// (default 20s); horizon is the forecast length in days (default 7).
func NewComposer(gen llm.TextGenerator, logger *zap.Logger, timeout time.Duration, horizon int) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if horizon <= 0 {
		horizon = 7
	}
	return &Composer{gen: gen, logger: logger, timeout: timeout, horizon: horizon}
}

// generate runs one bounded generation call.
func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.gen.Generate(ctx, prompt)
}

func (c *Composer) fallback(component string, reason error) {
	metrics.FallbacksTotal.WithLabelValues(component).Inc()
	c.logger.Debug("using deterministic fallback",
		zap.String("component", component),
		zap.Error(reason))
}

// ─── Insights ────────────────────────────────────────────────────────────────

// Insights generates 3-5 short insight strings from a data summary.
func (c *Composer) Insights(ctx context.Context, summary string) ([]string, models.InsightSource) {
	prompt := fmt.Sprintf(`You are a business analytics assistant. Based on this metrics summary, produce 3 to 5 short, specific insights.

%s

Respond with ONLY a JSON array of strings, for example:
["Revenue grew steadily over the period", "Bounce rate remains above target"]`, summary)

	raw, err := c.generate(ctx, prompt)
	if err == nil {
		if items, perr := parseStringArray(raw, 1, 8); perr == nil {
			return items, models.SourceParsed
		} else {
			err = perr
		}
	}
	c.fallback("insights", err)
	return []string{
		"Your metrics are being tracked and analyzed continuously.",
		"Review the dashboard regularly to spot changes early.",
		"Add more data sources to sharpen trend detection.",
	}, models.SourceFallback
}

// ─── Forecast ────────────────────────────────────────────────────────────────

// Forecast predicts the next horizon days of a metric from its recent
// chronological values. The prompt carries at most the last 10 values to
// keep context bounded.
func (c *Composer) Forecast(ctx context.Context, metric models.MetricType, values []float64) ([]models.ForecastPoint, models.InsightSource) {
	recent := values
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	prompt := fmt.Sprintf(`Given these recent daily values for %s: %v
Predict the next %d days. Respond with ONLY a JSON array of objects:
[{"day": 1, "value": 123.4, "confidence": 0.8}, ...]
Confidence must be between 0 and 1 and decrease with distance.`, metric, recent, c.horizon)

	raw, err := c.generate(ctx, prompt)
	if err == nil {
		if points, perr := parseForecast(raw, c.horizon); perr == nil {
			return points, models.SourceParsed
		} else {
			err = perr
		}
	}
	c.fallback("forecast", err)
	return analytics.LinearForecast(values, c.horizon, 0.8, 0.1), models.SourceFallback
}

// ─── Trend narration ─────────────────────────────────────────────────────────

// TrendInsights generates insight strings for a computed trend.
func (c *Composer) TrendInsights(ctx context.Context, metric models.MetricType, direction models.TrendDirection, strength float64) ([]string, models.InsightSource) {
	prompt := fmt.Sprintf(`The metric %s shows a %s trend with strength %.2f (0 = flat, 1 = strong).
Write 2 or 3 short insights about what this means for the business.
Respond with ONLY a JSON array of strings.`, metric, direction, strength)

	raw, err := c.generate(ctx, prompt)
	if err == nil {
		if items, perr := parseStringArray(raw, 1, 5); perr == nil {
			return items, models.SourceParsed
		} else {
			err = perr
		}
	}
	c.fallback("trend_insights", err)
	switch direction {
	case models.TrendIncreasing:
		return []string{
			fmt.Sprintf("%s is trending upward.", displayName(metric)),
			"Sustained growth here suggests recent changes are working.",
		}, models.SourceFallback
	case models.TrendDecreasing:
		return []string{
			fmt.Sprintf("%s is trending downward.", displayName(metric)),
			"Investigate recent changes that may explain the decline.",
		}, models.SourceFallback
	default:
		return []string{
			fmt.Sprintf("%s is holding steady.", displayName(metric)),
			"Stable values make this a good baseline period for experiments.",
		}, models.SourceFallback
	}
}

// Recommendations generates action recommendations for a computed trend.
func (c *Composer) Recommendations(ctx context.Context, metric models.MetricType, direction models.TrendDirection) ([]string, models.InsightSource) {
	prompt := fmt.Sprintf(`The metric %s shows a %s trend. Suggest 2 or 3 concrete actions.
Respond with ONLY a JSON array of strings.`, metric, direction)

	raw, err := c.generate(ctx, prompt)
	if err == nil {
		if items, perr := parseStringArray(raw, 1, 5); perr == nil {
			return items, models.SourceParsed
		} else {
			err = perr
		}
	}
	c.fallback("recommendations", err)
	switch direction {
	case models.TrendIncreasing:
		return []string{
			"Double down on the channels driving this growth.",
			"Document what changed so the gains can be repeated.",
		}, models.SourceFallback
	case models.TrendDecreasing:
		return []string{
			"Audit recent releases and campaigns for regressions.",
			"Set an alert threshold to catch further decline quickly.",
		}, models.SourceFallback
	default:
		return []string{
			"Run a controlled experiment to move this metric deliberately.",
			"Keep monitoring; no corrective action is needed right now.",
		}, models.SourceFallback
	}
}

// MetricSummary generates a one-line summary for a metric's current state.
func (c *Composer) MetricSummary(ctx context.Context, metric models.MetricType, agg models.Aggregate, trend string) (string, models.InsightSource) {
	prompt := fmt.Sprintf(`Summarize in one sentence for a business user: metric %s, latest value %.2f, average %.2f over %d points, short-term trend %s.`,
		metric, agg.Latest, agg.Average, agg.Count, trend)

	raw, err := c.generate(ctx, prompt)
	if err == nil {
		line := strings.TrimSpace(raw)
		if line != "" && len(line) < 500 {
			return line, models.SourceParsed
		}
		err = fmt.Errorf("%w: unusable summary", models.ErrMalformedOutput)
	}
	c.fallback("summary", err)
	return fmt.Sprintf("%s is currently %.2f (average %.2f over %d data points, trend %s).",
		displayName(metric), agg.Latest, agg.Average, agg.Count, trend), models.SourceFallback
}

// ─── Chat helpers ────────────────────────────────────────────────────────────

// Suggestions returns follow-up prompts matching the classified query type.
func (c *Composer) Suggestions(queryType string) []string {
	switch queryType {
	case "metric_query":
		return []string{
			"Show me the trend for this metric",
			"Compare this with last month",
			"What's driving this number?",
		}
	case "trend_analysis":
		return []string{
			"Forecast the next 7 days",
			"Which metric changed the most?",
			"What should I do about this trend?",
		}
	case "forecast":
		return []string{
			"How confident is this forecast?",
			"Show me the historical trend",
			"What could change this outlook?",
		}
	default:
		return []string{
			"Show me my dashboard",
			"How is revenue trending?",
			"Generate insights from my data",
		}
	}
}

// ExtractInsights pulls short insight-like sentences out of a chat response
// for display alongside the reply.
func (c *Composer) ExtractInsights(response string) []string {
	keywords := []string{"increase", "decrease", "trend", "grow", "decline", "improve", "drop", "spike"}

	var out []string
	for _, sentence := range strings.Split(response, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || len(sentence) > 200 {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, sentence+".")
				break
			}
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

// ─── Parsing ─────────────────────────────────────────────────────────────────

// extractJSONArray locates the outermost JSON array in a model response,
// tolerating markdown fences and surrounding prose.
func extractJSONArray(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON array found", models.ErrMalformedOutput)
	}
	return s[start : end+1], nil
}

func parseStringArray(raw string, min, max int) ([]string, error) {
	body, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}
	var items []string
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedOutput, err)
	}
	var clean []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			clean = append(clean, it)
		}
	}
	if len(clean) < min {
		return nil, fmt.Errorf("%w: too few items", models.ErrMalformedOutput)
	}
	if len(clean) > max {
		clean = clean[:max]
	}
	return clean, nil
}

func parseForecast(raw string, horizon int) ([]models.ForecastPoint, error) {
	body, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}
	var points []models.ForecastPoint
	if err := json.Unmarshal([]byte(body), &points); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedOutput, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: empty forecast", models.ErrMalformedOutput)
	}
	for i, p := range points {
		if p.Day != i+1 {
			return nil, fmt.Errorf("%w: non-sequential forecast days", models.ErrMalformedOutput)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("%w: confidence out of range", models.ErrMalformedOutput)
		}
	}
	if len(points) > horizon {
		points = points[:horizon]
	}
	return points, nil
}

// displayName renders a metric type for user-facing text.
func displayName(mt models.MetricType) string {
	words := strings.Split(string(mt), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
