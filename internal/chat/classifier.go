package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/llm"
	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/models"
)

// validQueryTypes are the classifications the downstream flow understands.
var validQueryTypes = map[string]bool{
	"metric_query":   true,
	"trend_analysis": true,
	"forecast":       true,
	"comparison":     true,
	"general":        true,
}

// QueryClassifier decides whether a free-text query needs metric data and
// extracts retrieval parameters. It never fails: unusable model output
// degrades to a general query.
type QueryClassifier struct {
	gen     llm.TextGenerator
	logger  *zap.Logger
	timeout time.Duration
}

// NewQueryClassifier creates a classifier. timeout bounds each call
// (default 10s).
func NewQueryClassifier(gen llm.TextGenerator, logger *zap.Logger, timeout time.Duration) *QueryClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QueryClassifier{gen: gen, logger: logger, timeout: timeout}
}

// Classify analyzes one user message.
func (c *QueryClassifier) Classify(ctx context.Context, message string) models.QueryAnalysis {
	prompt := fmt.Sprintf(`Classify this analytics question and extract data requirements.

Question: %q

Respond with ONLY a JSON object:
{
  "needs_data": true/false,
  "query_params": {"metrics": ["revenue"], "time_range": "7d", "filters": {}},
  "needs_visualization": true/false,
  "query_type": "metric_query" | "trend_analysis" | "forecast" | "comparison" | "general"
}
Valid metrics: page_views, conversion_rate, revenue, active_users, bounce_rate, session_duration, click_through_rate, customer_acquisition_cost, lifetime_value, churn_rate.
Valid time ranges: 1h, 1d, 7d, 30d, 90d, 365d.`, message)

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.gen.Generate(cctx, prompt)
	if err != nil {
		c.degrade("generate", err)
		return models.GeneralQuery()
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		c.degrade("parse", err)
		return models.GeneralQuery()
	}
	return analysis
}

func (c *QueryClassifier) degrade(stage string, err error) {
	metrics.FallbacksTotal.WithLabelValues("classifier").Inc()
	c.logger.Debug("classifier degraded to general query",
		zap.String("stage", stage), zap.Error(err))
}

// parseAnalysis validates the model's JSON strictly; anything off-shape is
// an error so the caller can degrade.
func parseAnalysis(raw string) (models.QueryAnalysis, error) {
	var zero models.QueryAnalysis

	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return zero, fmt.Errorf("%w: no JSON object found", models.ErrMalformedOutput)
	}

	var analysis models.QueryAnalysis
	if err := json.Unmarshal([]byte(s[start:end+1]), &analysis); err != nil {
		return zero, fmt.Errorf("%w: %v", models.ErrMalformedOutput, err)
	}

	if !validQueryTypes[analysis.QueryType] {
		return zero, fmt.Errorf("%w: unknown query_type %q", models.ErrMalformedOutput, analysis.QueryType)
	}

	// Drop unknown metric names rather than failing the whole analysis.
	var known []string
	for _, m := range analysis.QueryParams.Metrics {
		if models.MetricType(m).IsValid() {
			known = append(known, m)
		}
	}
	analysis.QueryParams.Metrics = known

	if analysis.NeedsData && analysis.QueryParams.TimeRange == "" {
		analysis.QueryParams.TimeRange = "7d"
	}
	return analysis, nil
}
