package insight

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/analyticsai/insight-service/internal/models"
)

// fakeGen returns a canned response or error.
type fakeGen struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func newTestComposer(gen *fakeGen) *Composer {
	return NewComposer(gen, nil, time.Second, 7)
}

func TestInsightsParsed(t *testing.T) {
	gen := &fakeGen{response: `["Revenue grew 12%", "Bounce rate is falling", "Active users are stable"]`}
	c := newTestComposer(gen)

	items, src := c.Insights(context.Background(), "summary text")
	if src != models.SourceParsed {
		t.Fatalf("source = %s, want parsed", src)
	}
	if len(items) != 3 || items[0] != "Revenue grew 12%" {
		t.Errorf("items = %v", items)
	}
}

func TestInsightsMarkdownFence(t *testing.T) {
	gen := &fakeGen{response: "```json\n[\"One insight\", \"Another insight\"]\n```"}
	c := newTestComposer(gen)

	items, src := c.Insights(context.Background(), "summary")
	if src != models.SourceParsed {
		t.Fatalf("source = %s, want parsed", src)
	}
	if len(items) != 2 {
		t.Errorf("items = %v", items)
	}
}

func TestInsightsFallbackOnMalformed(t *testing.T) {
	cases := []string{
		"I think your revenue is doing great!",
		`{"insights": "wrong shape"}`,
		`[]`,
		`[1, 2, 3]`,
	}
	for _, resp := range cases {
		c := newTestComposer(&fakeGen{response: resp})
		items, src := c.Insights(context.Background(), "summary")
		if src != models.SourceFallback {
			t.Errorf("response %q: source = %s, want fallback", resp, src)
		}
		if len(items) == 0 {
			t.Errorf("response %q: empty fallback insights", resp)
		}
	}
}

func TestInsightsFallbackOnError(t *testing.T) {
	c := newTestComposer(&fakeGen{err: errors.New("connection refused")})
	items, src := c.Insights(context.Background(), "summary")
	if src != models.SourceFallback {
		t.Fatalf("source = %s, want fallback", src)
	}
	if len(items) < 3 {
		t.Errorf("fallback items = %v", items)
	}
}

func TestForecastParsed(t *testing.T) {
	gen := &fakeGen{response: `[
        {"day": 1, "value": 110, "confidence": 0.8},
        {"day": 2, "value": 120, "confidence": 0.7}
    ]`}
	c := newTestComposer(gen)

	points, src := c.Forecast(context.Background(), models.MetricRevenue, []float64{90, 100})
	if src != models.SourceParsed {
		t.Fatalf("source = %s, want parsed", src)
	}
	if len(points) != 2 || points[1].Value != 120 {
		t.Errorf("points = %+v", points)
	}
}

func TestForecastFallbackShapes(t *testing.T) {
	cases := []string{
		"no json here",
		`[{"day": 5, "value": 1, "confidence": 0.5}]`,
		`[{"day": 1, "value": 1, "confidence": 1.5}]`,
		`[]`,
	}
	for _, resp := range cases {
		c := newTestComposer(&fakeGen{response: resp})
		points, src := c.Forecast(context.Background(), models.MetricRevenue, []float64{1, 2, 3})
		if src != models.SourceFallback {
			t.Errorf("response %q: source = %s, want fallback", resp, src)
		}
		if len(points) != 7 {
			t.Errorf("response %q: fallback len = %d, want 7", resp, len(points))
		}
		// Fallback is the fitted line projected forward.
		if len(points) == 7 && points[0].Value != 4 {
			t.Errorf("response %q: day1 = %v, want 4", resp, points[0].Value)
		}
	}
}

func TestForecastPromptBoundedToRecentValues(t *testing.T) {
	gen := &fakeGen{response: `[{"day": 1, "value": 1, "confidence": 0.8}]`}
	c := newTestComposer(gen)

	values := make([]float64, 25)
	for i := range values {
		values[i] = float64(i + 1)
	}
	c.Forecast(context.Background(), models.MetricRevenue, values)

	if len(gen.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	// Only the last 10 values appear; older ones are dropped.
	if !strings.Contains(prompt, "[16 17 18 19 20 21 22 23 24 25]") {
		t.Errorf("prompt missing trimmed window:\n%s", prompt)
	}
	if strings.Contains(prompt, "15 16") {
		t.Errorf("prompt carries values beyond the last 10:\n%s", prompt)
	}
}

func TestTrendInsightsFallbackByDirection(t *testing.T) {
	c := newTestComposer(&fakeGen{err: errors.New("down")})

	up, src := c.TrendInsights(context.Background(), models.MetricRevenue, models.TrendIncreasing, 0.5)
	if src != models.SourceFallback || len(up) == 0 {
		t.Fatalf("up = %v src = %s", up, src)
	}
	down, _ := c.TrendInsights(context.Background(), models.MetricRevenue, models.TrendDecreasing, 0.5)
	if up[0] == down[0] {
		t.Error("fallbacks do not distinguish direction")
	}
}

func TestMetricSummaryFallback(t *testing.T) {
	c := newTestComposer(&fakeGen{err: errors.New("timeout")})
	line, src := c.MetricSummary(context.Background(), models.MetricBounceRate,
		models.Aggregate{Count: 4, Average: 0.4, Latest: 0.35}, "down")
	if src != models.SourceFallback {
		t.Fatalf("source = %s", src)
	}
	if line == "" {
		t.Error("empty fallback summary")
	}
}

func TestSuggestionsByQueryType(t *testing.T) {
	c := newTestComposer(&fakeGen{})
	for _, qt := range []string{"metric_query", "trend_analysis", "forecast", "general", ""} {
		if got := c.Suggestions(qt); len(got) != 3 {
			t.Errorf("Suggestions(%q) len = %d", qt, len(got))
		}
	}
}

func TestExtractInsights(t *testing.T) {
	c := newTestComposer(&fakeGen{})
	resp := "Your revenue shows a strong increase this month. The weather is nice. Bounce rate continues to decline steadily. Another neutral sentence here."
	got := c.ExtractInsights(resp)
	if len(got) != 2 {
		t.Fatalf("got %d insights: %v", len(got), got)
	}
}

func TestExtractInsightsNone(t *testing.T) {
	c := newTestComposer(&fakeGen{})
	if got := c.ExtractInsights("Hello. How can I help you today."); len(got) != 0 {
		t.Errorf("got = %v, want none", got)
	}
}
