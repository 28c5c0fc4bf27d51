package models

// Package models defines the core data types shared across the insight
// service: metric observations, trend reports, chat sessions, and the
// shapes exchanged with the language model.

import (
	"time"
)

// MetricType identifies a tracked business metric.
type MetricType string

const (
	MetricPageViews               MetricType = "page_views"
	MetricConversionRate          MetricType = "conversion_rate"
	MetricRevenue                 MetricType = "revenue"
	MetricActiveUsers             MetricType = "active_users"
	MetricBounceRate              MetricType = "bounce_rate"
	MetricSessionDuration         MetricType = "session_duration"
	MetricClickThroughRate        MetricType = "click_through_rate"
	MetricCustomerAcquisitionCost MetricType = "customer_acquisition_cost"
	MetricLifetimeValue           MetricType = "lifetime_value"
	MetricChurnRate               MetricType = "churn_rate"
)

// AllMetricTypes returns every known metric type, in dashboard display order.
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricPageViews, MetricConversionRate, MetricRevenue,
		MetricActiveUsers, MetricBounceRate, MetricSessionDuration,
		MetricClickThroughRate, MetricCustomerAcquisitionCost,
		MetricLifetimeValue, MetricChurnRate,
	}
}

// IsValid reports whether mt is a known metric type.
func (mt MetricType) IsValid() bool {
	for _, known := range AllMetricTypes() {
		if mt == known {
			return true
		}
	}
	return false
}

// TrendDirection classifies the slope of a fitted trend line.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAI     MessageRole = "ai"
	RoleSystem MessageRole = "system"
	RoleError  MessageRole = "error"
)

// InsightKind categorises a generated insight.
type InsightKind string

const (
	InsightTrend          InsightKind = "trend"
	InsightAnomaly        InsightKind = "anomaly"
	InsightRecommendation InsightKind = "recommendation"
	InsightAlert          InsightKind = "alert"
)

// InsightSeverity ranks an insight's urgency.
type InsightSeverity string

const (
	SeverityLow      InsightSeverity = "low"
	SeverityMedium   InsightSeverity = "medium"
	SeverityHigh     InsightSeverity = "high"
	SeverityCritical InsightSeverity = "critical"
)

// InsightSource records whether generated text came from a validated model
// response or from the deterministic fallback set.
type InsightSource string

const (
	SourceParsed   InsightSource = "parsed"
	SourceFallback InsightSource = "fallback"
)

// MetricObservation is a single recorded metric value. Observations are
// immutable once stored.
type MetricObservation struct {
	ID         string            `json:"id,omitempty"`
	MetricType MetricType        `json:"metric_type"`
	Value      float64           `json:"value"`
	UserID     string            `json:"user_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Aggregate holds summary statistics over one metric series. Latest is the
// first element of the newest-first series.
type Aggregate struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Latest  float64 `json:"latest"`
}

// ForecastPoint is one predicted value in a forecast sequence.
type ForecastPoint struct {
	Day        int     `json:"day"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// TrendAnalysis is the full trend report for one metric over a time window.
type TrendAnalysis struct {
	MetricType      MetricType      `json:"metric_type"`
	TimeRange       string          `json:"time_range"`
	TrendDirection  TrendDirection  `json:"trend_direction"`
	TrendStrength   float64         `json:"trend_strength"`
	Forecast        []ForecastPoint `json:"forecast,omitempty"`
	Insights        []string        `json:"insights"`
	Recommendations []string        `json:"recommendations"`
}

// MetricDetails summarises the current state of one metric for display.
// Trend here is the short-horizon direction label ("up", "down", "stable"),
// not the regression direction.
type MetricDetails struct {
	MetricType       MetricType          `json:"metric_type"`
	CurrentValue     float64             `json:"current_value"`
	PreviousValue    *float64            `json:"previous_value,omitempty"`
	ChangePercentage *float64            `json:"change_percentage,omitempty"`
	Trend            string              `json:"trend"`
	DataPoints       []MetricObservation `json:"data_points"`
	Summary          string              `json:"summary,omitempty"`
}

// DashboardData is the aggregate dashboard payload for one user.
type DashboardData struct {
	UserID      string          `json:"user_id"`
	Metrics     []MetricDetails `json:"metrics"`
	Insights    []string        `json:"insights"`
	LastUpdated time.Time       `json:"last_updated"`
	TimeRange   string          `json:"time_range"`
}

// Insight is a single derived observation about a user's data.
type Insight struct {
	ID         string          `json:"id"`
	Kind       InsightKind     `json:"type"`
	Title      string          `json:"title"`
	Text       string          `json:"description"`
	Severity   InsightSeverity `json:"severity"`
	MetricType MetricType      `json:"metric_type,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Actionable bool            `json:"actionable"`
}

// ChatSession is one user's conversation thread.
type ChatSession struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	IsActive     bool      `json:"is_active"`
}

// ChatMessage is one message in a session's history. History is append-only.
type ChatMessage struct {
	ID        int64       `json:"id,omitempty"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Role      MessageRole `json:"role"`
	Text      string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChatResponse is the assistant's reply to one user message.
type ChatResponse struct {
	Message     string            `json:"message"`
	Role        MessageRole       `json:"role"`
	SessionID   string            `json:"session_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// QueryParams are the data-retrieval parameters extracted from a free-text
// query by the classifier.
type QueryParams struct {
	Metrics   []string          `json:"metrics"`
	TimeRange string            `json:"time_range"`
	Filters   map[string]string `json:"filters"`
}

// QueryAnalysis is the classifier's verdict on a free-text query.
type QueryAnalysis struct {
	NeedsData          bool        `json:"needs_data"`
	QueryParams        QueryParams `json:"query_params"`
	NeedsVisualization bool        `json:"needs_visualization"`
	QueryType          string      `json:"query_type"`
}

// GeneralQuery is the degraded QueryAnalysis used whenever classifier output
// is unusable.
func GeneralQuery() QueryAnalysis {
	return QueryAnalysis{
		NeedsData:          false,
		QueryParams:        QueryParams{TimeRange: "7d"},
		NeedsVisualization: false,
		QueryType:          "general",
	}
}

// ExchangePair is one user/assistant conversation exchange.
type ExchangePair struct {
	UserTurn string `json:"user_turn"`
	AITurn   string `json:"ai_turn"`
}
