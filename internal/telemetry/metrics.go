package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_iterations_total",
			Help: "Benchmark iterations by outcome",
		},
		[]string{"outcome"},
	)

	ConverseLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bench_converse_latency_ms",
			Help:    "Latency of converse calls in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 1.5, 14),
		},
		[]string{"outcome"},
	)

	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_tokens_total",
			Help: "Tokens consumed by direction",
		},
		[]string{"direction"},
	)

	CostUSDTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bench_est_cost_usd_total",
			Help: "Estimated on-demand cost in USD",
		},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_errors_total",
			Help: "Errors by stage and kind",
		},
		[]string{"stage", "kind"},
	)

	RunSuccessRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bench_success_rate",
			Help: "Running success rate of the current sweep (0..1)",
		},
	)

	registerOnce sync.Once
)

func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IterationsTotal, ConverseLatencyMs, TokensTotal, CostUSDTotal, ErrorsTotal, RunSuccessRate)
	})
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

// ObserveIteration records one classified iteration
func ObserveIteration(success bool, kind string, latency time.Duration, inTok, outTok int64, costUSD float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
		ErrorsTotal.WithLabelValues("converse", kind).Inc()
	}
	IterationsTotal.WithLabelValues(outcome).Inc()
	ConverseLatencyMs.WithLabelValues(outcome).Observe(float64(latency.Milliseconds()))
	TokensTotal.WithLabelValues("input").Add(float64(inTok))
	TokensTotal.WithLabelValues("output").Add(float64(outTok))
	if costUSD > 0 {
		CostUSDTotal.Add(costUSD)
	}
}

// ObserveProvisioningFailure records a fatal provisioning error
func ObserveProvisioningFailure(kind string) {
	ErrorsTotal.WithLabelValues("provisioning", kind).Inc()
}
