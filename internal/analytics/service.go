package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/analyticsai/insight-service/internal/models"
	"github.com/analyticsai/insight-service/internal/store"
)

// Narrator turns computed statistics into user-facing text. Implementations
// must degrade internally: they return content and a source tag, never an
// error. *insight.Composer satisfies this.
type Narrator interface {
	Insights(ctx context.Context, summary string) ([]string, models.InsightSource)
	Forecast(ctx context.Context, metric models.MetricType, values []float64) ([]models.ForecastPoint, models.InsightSource)
	TrendInsights(ctx context.Context, metric models.MetricType, direction models.TrendDirection, strength float64) ([]string, models.InsightSource)
	Recommendations(ctx context.Context, metric models.MetricType, direction models.TrendDirection) ([]string, models.InsightSource)
	MetricSummary(ctx context.Context, metric models.MetricType, agg models.Aggregate, trend string) (string, models.InsightSource)
}

// changeThresholdPct is the short-horizon band: a change within ±5% of the
// previous value reads as "stable".
const changeThresholdPct = 5.0

// maxDetailPoints caps the data points echoed back in metric details.
const maxDetailPoints = 30

// Service orchestrates metric retrieval, statistics, and narration.
type Service struct {
	store    store.Store
	composer Narrator
	logger   *zap.Logger
	queryLim int
}

// NewService creates the analytics service. queryLimit caps rows per series
// query (default 100).
func NewService(st store.Store, composer Narrator, logger *zap.Logger, queryLimit int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queryLimit <= 0 {
		queryLimit = 100
	}
	return &Service{store: st, composer: composer, logger: logger, queryLim: queryLimit}
}

// CreateMetric validates and persists one observation.
func (s *Service) CreateMetric(ctx context.Context, obs *models.MetricObservation) error {
	if !obs.MetricType.IsValid() {
		return fmt.Errorf("%w: unknown metric type %q", models.ErrInvalidInput, obs.MetricType)
	}
	if obs.UserID == "" {
		return fmt.Errorf("%w: user_id required", models.ErrInvalidInput)
	}
	if err := s.store.InsertObservation(ctx, obs); err != nil {
		return fmt.Errorf("create metric: %w", err)
	}
	return nil
}

// GetMetrics returns observations for a user, newest first, filtered by
// optional metric types and bounded by the resolved time window.
func (s *Service) GetMetrics(ctx context.Context, userID string, types []models.MetricType, timeRange string, limit int) ([]models.MetricObservation, error) {
	if limit <= 0 || limit > s.queryLim {
		limit = s.queryLim
	}
	obs, err := s.store.QueryObservations(ctx, store.ObservationQuery{
		UserID:      userID,
		MetricTypes: types,
		Since:       ResolveWindow(timeRange, time.Now().UTC()),
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return obs, nil
}

// DeleteMetrics removes a user's observations of the given types within the
// resolved window and reports how many were removed.
func (s *Service) DeleteMetrics(ctx context.Context, userID string, types []models.MetricType, timeRange string) (int64, error) {
	n, err := s.store.DeleteObservations(ctx, store.ObservationQuery{
		UserID:      userID,
		MetricTypes: types,
		Since:       ResolveWindow(timeRange, time.Now().UTC()),
	})
	if err != nil {
		return 0, fmt.Errorf("delete metrics: %w", err)
	}
	return n, nil
}

// GetMetricDetails builds the display card for one metric: current and
// previous values, percentage change, short-horizon direction, and a
// one-line summary. A metric with no data yields a well-formed zero card.
func (s *Service) GetMetricDetails(ctx context.Context, userID string, metric models.MetricType, timeRange string) (*models.MetricDetails, error) {
	if !metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric type %q", models.ErrInvalidInput, metric)
	}

	obs, err := s.store.QueryObservations(ctx, store.ObservationQuery{
		UserID:      userID,
		MetricTypes: []models.MetricType{metric},
		Since:       ResolveWindow(timeRange, time.Now().UTC()),
		Limit:       s.queryLim,
	})
	if err != nil {
		return nil, fmt.Errorf("metric details: %w", err)
	}

	if len(obs) == 0 {
		return &models.MetricDetails{
			MetricType: metric,
			Trend:      "stable",
			DataPoints: []models.MetricObservation{},
			Summary:    "No data recorded for this metric yet.",
		}, nil
	}

	details := &models.MetricDetails{
		MetricType:   metric,
		CurrentValue: obs[0].Value,
		Trend:        "stable",
	}
	if len(obs) > 1 {
		prev := obs[1].Value
		details.PreviousValue = &prev
		if prev != 0 {
			change := (obs[0].Value - prev) / prev * 100
			details.ChangePercentage = &change
			if change > changeThresholdPct {
				details.Trend = "up"
			} else if change < -changeThresholdPct {
				details.Trend = "down"
			}
		}
	}

	points := obs
	if len(points) > maxDetailPoints {
		points = points[:maxDetailPoints]
	}
	details.DataPoints = points

	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = o.Value
	}
	summary, _ := s.composer.MetricSummary(ctx, metric, Summarize(values), details.Trend)
	details.Summary = summary

	return details, nil
}

// GetDashboard assembles metric cards for every known metric type plus
// cross-metric insights. Per-metric failures degrade that card rather than
// failing the dashboard.
func (s *Service) GetDashboard(ctx context.Context, userID string) (*models.DashboardData, error) {
	types := models.AllMetricTypes()
	cards := make([]*models.MetricDetails, len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, mt := range types {
		i, mt := i, mt
		g.Go(func() error {
			d, err := s.GetMetricDetails(gctx, userID, mt, DefaultTimeRange)
			if err != nil {
				s.logger.Warn("dashboard card failed",
					zap.String("metric", string(mt)), zap.Error(err))
				return nil // degrade the card, keep the dashboard
			}
			cards[i] = d
			return nil
		})
	}
	_ = g.Wait()

	dash := &models.DashboardData{
		UserID:      userID,
		Metrics:     []models.MetricDetails{},
		LastUpdated: time.Now().UTC(),
		TimeRange:   DefaultTimeRange,
	}
	for _, c := range cards {
		if c != nil && len(c.DataPoints) > 0 {
			dash.Metrics = append(dash.Metrics, *c)
		}
	}

	if len(dash.Metrics) == 0 {
		dash.Insights = []string{"No metric data recorded yet. Start sending observations to populate your dashboard."}
		return dash, nil
	}

	insights, err := s.GenerateInsights(ctx, userID, DefaultTimeRange)
	if err != nil {
		s.logger.Warn("dashboard insights failed", zap.Error(err))
		insights = []string{"Insights are temporarily unavailable. Your metric data is shown below."}
	}
	dash.Insights = insights
	return dash, nil
}

// GenerateInsights summarizes all of a user's series in the window and asks
// the composer for cross-metric insights.
func (s *Service) GenerateInsights(ctx context.Context, userID, timeRange string) ([]string, error) {
	obs, err := s.store.QueryObservations(ctx, store.ObservationQuery{
		UserID: userID,
		Since:  ResolveWindow(timeRange, time.Now().UTC()),
		Limit:  s.queryLim * len(models.AllMetricTypes()),
	})
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}
	if len(obs) == 0 {
		return []string{"No data available in this time range yet."}, nil
	}

	summary := buildDataSummary(obs, NormalizeTimeRange(timeRange))
	items, _ := s.composer.Insights(ctx, summary)
	return items, nil
}

// AnalyzeTrends computes the regression trend for one metric, forecasts it
// forward, and narrates both. No data yields a well-formed stable report.
func (s *Service) AnalyzeTrends(ctx context.Context, userID string, metric models.MetricType, timeRange string) (*models.TrendAnalysis, error) {
	if !metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric type %q", models.ErrInvalidInput, metric)
	}
	effective := NormalizeTimeRange(timeRange)

	obs, err := s.store.QueryObservations(ctx, store.ObservationQuery{
		UserID:      userID,
		MetricTypes: []models.MetricType{metric},
		Since:       ResolveWindow(timeRange, time.Now().UTC()),
		Limit:       s.queryLim,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze trends: %w", err)
	}

	if len(obs) == 0 {
		return &models.TrendAnalysis{
			MetricType:      metric,
			TimeRange:       effective,
			TrendDirection:  models.TrendStable,
			TrendStrength:   0,
			Insights:        []string{"Not enough data to analyze this metric yet."},
			Recommendations: []string{"Record more observations to enable trend analysis."},
		}, nil
	}

	// Store returns newest first; regression wants chronological order.
	values := make([]float64, len(obs))
	for i, o := range obs {
		values[len(obs)-1-i] = o.Value
	}

	direction, strength := CalculateTrend(values)
	forecast, _ := s.composer.Forecast(ctx, metric, values)
	insights, _ := s.composer.TrendInsights(ctx, metric, direction, strength)
	recs, _ := s.composer.Recommendations(ctx, metric, direction)

	return &models.TrendAnalysis{
		MetricType:      metric,
		TimeRange:       effective,
		TrendDirection:  direction,
		TrendStrength:   strength,
		Forecast:        forecast,
		Insights:        insights,
		Recommendations: recs,
	}, nil
}

// DataSummary renders a user's series statistics as prompt context for
// data-grounded chat replies.
func (s *Service) DataSummary(ctx context.Context, userID string, types []models.MetricType, timeRange string) (string, error) {
	obs, err := s.store.QueryObservations(ctx, store.ObservationQuery{
		UserID:      userID,
		MetricTypes: types,
		Since:       ResolveWindow(timeRange, time.Now().UTC()),
		Limit:       s.queryLim * len(models.AllMetricTypes()),
	})
	if err != nil {
		return "", fmt.Errorf("data summary: %w", err)
	}
	if len(obs) == 0 {
		return "No metric data is available for this time range.", nil
	}
	return buildDataSummary(obs, NormalizeTimeRange(timeRange)), nil
}

// buildDataSummary renders per-metric statistics as prompt context.
func buildDataSummary(obs []models.MetricObservation, timeRange string) string {
	byType := map[models.MetricType][]float64{}
	order := []models.MetricType{}
	for _, o := range obs {
		if _, seen := byType[o.MetricType]; !seen {
			order = append(order, o.MetricType)
		}
		byType[o.MetricType] = append(byType[o.MetricType], o.Value)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Metrics over the last %s:\n", timeRange)
	for _, mt := range order {
		values := byType[mt]
		agg := Summarize(values)

		// values are newest first; trend wants chronological.
		chrono := make([]float64, len(values))
		for i, v := range values {
			chrono[len(values)-1-i] = v
		}
		direction, _ := CalculateTrend(chrono)

		fmt.Fprintf(&b, "- %s: latest %.2f, avg %.2f, min %.2f, max %.2f over %d points, trend %s\n",
			mt, agg.Latest, agg.Average, agg.Min, agg.Max, agg.Count, direction)
	}
	return b.String()
}
