package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest("GET", "/api/resources", 200, 0.2)
	m.ObserveHTTPRequest("GET", "/api/resources", 500, 0.4)
	m.ObserveHTTPRequest("POST", "/api/login", 401, 0.1)
	m.ObserveHTTPRequest("GET", "/health", 200, 0.001)

	m.ObserveFetch("volumes", "ok", 0.3)
	m.ObserveFetch("volumes", "timeout", 30)
	m.ObserveFetch("flavors", "ok", 0.1)

	m.IncAggregation("ok")
	m.IncAggregation("degraded")
	m.IncAggregation("degraded")
	m.IncAggregation("failed")
	m.IncNormalizationDrop("images")
	m.SetFleetCost("INR", 123.45)

	m.ObserveBearer("ok")
	m.ObserveBearer("invalid")
	m.IncAuthFailure("login")
	m.IncRateLimitRejection("login")

	m.SetCollectorBufferSize(3)
	m.ObserveCollectorFlush("ok", 0.01)
	m.ObserveCollectorFlush("error", 0.02)
	m.IncCollectorRecords()

	s, err := m.Summarize()
	require.NoError(t, err)

	assert.Equal(t, 4.0, s.HTTP.TotalRequests)
	assert.Equal(t, 0.5, s.HTTP.ErrorRate)
	assert.Greater(t, s.HTTP.P95Latency, 0.0)

	assert.Equal(t, 1.0, s.Aggregation.OK)
	assert.Equal(t, 2.0, s.Aggregation.Degraded)
	assert.Equal(t, 1.0, s.Aggregation.Failed)
	assert.Equal(t, 1.0, s.Aggregation.Drops)
	assert.Equal(t, map[string]float64{"INR": 123.45}, s.Aggregation.Cost)

	require.Contains(t, s.Fetches, "volumes")
	assert.Equal(t, 2.0, s.Fetches["volumes"].Total)
	assert.Equal(t, 1.0, s.Fetches["volumes"].Errors)
	assert.Equal(t, 0.0, s.Fetches["flavors"].Errors)

	assert.Equal(t, 2.0, s.Auth.Failures)
	assert.Equal(t, 1.0, s.Auth.Successes)
	assert.Equal(t, 1.0, s.RateLimit.Rejections)

	assert.Equal(t, 3.0, s.History.BufferSize)
	assert.Equal(t, 2.0, s.History.TotalFlushes)
	assert.Equal(t, 1.0, s.History.FlushErrors)
	assert.Equal(t, 1.0, s.History.Records)

	assert.Greater(t, s.Server.StartTime, 0.0)
}

func TestSummarize_Empty(t *testing.T) {
	s, err := New().Summarize()
	require.NoError(t, err)
	assert.Zero(t, s.HTTP.TotalRequests)
	assert.Zero(t, s.HTTP.ErrorRate)
	assert.Zero(t, s.HTTP.P50Latency)
	assert.Empty(t, s.Fetches)
	assert.Empty(t, s.Aggregation.Cost)
}

func TestHandler_JSON(t *testing.T) {
	m := New()
	m.IncAggregation("ok")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	agg, ok := body["aggregation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.0, agg["ok"])
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.ObserveFetch("networks", "ok", 0.2)
	m.RegisterDBPoolCollector(func() PoolStats {
		return PoolStats{Total: 4, Idle: 3, Acquired: 1, Max: 10}
	})

	rr := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	out := string(body)

	for _, want := range []string{
		`cloudtally_backend_fetches_total{kind="networks",outcome="ok"} 1`,
		"cloudtally_db_pool_total_conns 4",
		"cloudtally_db_pool_max_conns 10",
		"cloudtally_server_start_time_seconds",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q", want)
	}
}

func TestHistogramPercentile_Filter(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.ObserveFetch("images", "ok", 0.07)
		m.ObserveFetch("servers", "ok", 7)
	}

	s, err := m.Summarize()
	require.NoError(t, err)
	assert.LessOrEqual(t, s.Fetches["images"].P95Latency, 0.1)
	assert.Greater(t, s.Fetches["servers"].P95Latency, 5.0)
}
