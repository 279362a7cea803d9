package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP        httpSummary          `json:"http"`
	Aggregation aggregationSummary   `json:"aggregation"`
	Fetches     map[string]fetchInfo `json:"fetches"`
	Auth        authInfo             `json:"auth"`
	RateLimit   rateLimitInfo        `json:"rateLimit"`
	History     historyInfo          `json:"history"`
	DB          dbInfo               `json:"db"`
	Server      serverInfo           `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type aggregationSummary struct {
	OK       float64            `json:"ok"`
	Degraded float64            `json:"degraded"`
	Failed   float64            `json:"failed"`
	Drops    float64            `json:"normalizationDrops"`
	Cost     map[string]float64 `json:"fleetCost"`
}

type fetchInfo struct {
	Total      float64 `json:"total"`
	Errors     float64 `json:"errors"`
	P50Latency float64 `json:"p50Latency"`
	P95Latency float64 `json:"p95Latency"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type historyInfo struct {
	BufferSize   float64 `json:"bufferSize"`
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Records      float64 `json:"records"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

// PrometheusHandler serves the private registry in the exposition format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Handler returns an http.HandlerFunc that serves a JSON summary of the
// live metrics.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	httpReqs := fam["cloudtally_http_requests_total"]
	httpDur := fam["cloudtally_http_request_duration_seconds"]
	startTime := gaugeValue(fam["cloudtally_server_start_time_seconds"])

	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(httpReqs),
			ErrorRate:     computeErrorRate(httpReqs),
			P50Latency:    histogramPercentile(httpDur, 0.50, nil),
			P95Latency:    histogramPercentile(httpDur, 0.95, nil),
			P99Latency:    histogramPercentile(httpDur, 0.99, nil),
		},
		Aggregation: aggregationSummary{
			OK:       sumCounter(fam["cloudtally_aggregations_total"], label{"status", "ok"}),
			Degraded: sumCounter(fam["cloudtally_aggregations_total"], label{"status", "degraded"}),
			Failed:   sumCounter(fam["cloudtally_aggregations_total"], label{"status", "failed"}),
			Drops:    sumCounter(fam["cloudtally_normalization_drops_total"]),
			Cost:     gaugesByLabel(fam["cloudtally_fleet_cost"], "currency"),
		},
		Fetches: fetchSummaries(fam["cloudtally_backend_fetches_total"], fam["cloudtally_backend_fetch_duration_seconds"]),
		Auth: authInfo{
			Failures:  sumCounter(fam["cloudtally_auth_failures_total"]),
			Successes: sumCounter(fam["cloudtally_auth_successes_total"]),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["cloudtally_ratelimit_rejections_total"]),
		},
		History: historyInfo{
			BufferSize:   gaugeValue(fam["cloudtally_history_buffer_size"]),
			TotalFlushes: sumCounter(fam["cloudtally_history_flushes_total"]),
			FlushErrors:  sumCounter(fam["cloudtally_history_flushes_total"], label{"status", "error"}),
			Records:      sumCounter(fam["cloudtally_history_records_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["cloudtally_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["cloudtally_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["cloudtally_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     startTime,
			UptimeSeconds: float64(time.Now().Unix()) - startTime,
		},
	}, nil
}

func fetchSummaries(counts, durations *dto.MetricFamily) map[string]fetchInfo {
	out := make(map[string]fetchInfo)
	for _, m := range counts.GetMetric() {
		kind := labelValue(m, "kind")
		info := out[kind]
		v := m.GetCounter().GetValue()
		info.Total += v
		if labelValue(m, "outcome") != "ok" {
			info.Errors += v
		}
		out[kind] = info
	}
	for kind, info := range out {
		info.P50Latency = histogramPercentile(durations, 0.50, &label{"kind", kind})
		info.P95Latency = histogramPercentile(durations, 0.95, &label{"kind", kind})
		out[kind] = info
	}
	return out
}

// --- Prometheus metric helpers ---

type label struct {
	name, value string
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func matches(m *dto.Metric, filters []label) bool {
	for _, f := range filters {
		if labelValue(m, f.name) != f.value {
			return false
		}
	}
	return true
}

// sumCounter adds every counter in f whose labels match all filters.
func sumCounter(f *dto.MetricFamily, filters ...label) float64 {
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil && matches(m, filters) {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	return ms[0].GetGauge().GetValue()
}

func gaugesByLabel(f *dto.MetricFamily, name string) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range f.GetMetric() {
		if m.GetGauge() != nil {
			out[labelValue(m, name)] = m.GetGauge().GetValue()
		}
	}
	return out
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		if code := labelValue(m, "status_code"); len(code) > 0 && code[0] >= '4' {
			errors += v
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation. When filter is non-nil only matching series are
// aggregated.
func histogramPercentile(f *dto.MetricFamily, q float64, filter *label) float64 {
	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		if filter != nil && labelValue(m, filter.name) != filter.value {
			continue
		}
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Past the last finite bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
