package bench

import (
	"math"
	"sort"
	"time"

	"github.com/ratnathegod/inference-profile-bench/internal/providers"
)

// RunSummary aggregates one benchmark sweep.
// SuccessCount + FailureCount == Attempted <= TotalIterations at all times.
type RunSummary struct {
	TotalIterations int     `json:"total_iterations"`
	Attempted       int     `json:"attempted"`
	SuccessCount    int     `json:"success_count"`
	FailureCount    int     `json:"failure_count"`
	SuccessRatePct  float64 `json:"success_rate_pct"`

	Elapsed             time.Duration `json:"-"`
	ElapsedSeconds      float64       `json:"elapsed_seconds"`
	AvgIterationSeconds float64       `json:"avg_iteration_seconds"`

	LatencyMeanMs float64 `json:"latency_mean_ms"`
	LatencyP50Ms  float64 `json:"latency_p50_ms"`
	LatencyP95Ms  float64 `json:"latency_p95_ms"`

	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	EstCostUSD   float64 `json:"est_cost_usd"`

	FailuresByKind map[providers.ErrorKind]int `json:"failures_by_kind,omitempty"`
}

// Progress is a periodic checkpoint of the running success rate
type Progress struct {
	Iteration   int     `json:"iteration"`
	Total       int     `json:"total"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"` // successes / iteration, 0..1
}

// tally accumulates outcomes as the loop runs
type tally struct {
	summary   RunSummary
	latencies []int64 // successful calls only, ms
}

func newTally(total int) *tally {
	return &tally{summary: RunSummary{TotalIterations: total, FailuresByKind: map[providers.ErrorKind]int{}}}
}

func (t *tally) record(out providers.Outcome, costUSD float64) bool {
	t.summary.Attempted++
	ok := out.Success && out.Err == nil
	if ok {
		t.summary.SuccessCount++
		t.latencies = append(t.latencies, out.Latency.Milliseconds())
	} else {
		t.summary.FailureCount++
		kind := providers.KindUnknown
		if out.Err != nil && out.Err.Kind != "" {
			kind = out.Err.Kind
		}
		t.summary.FailuresByKind[kind]++
	}
	t.summary.InputTokens += out.InputTokens
	t.summary.OutputTokens += out.OutputTokens
	t.summary.EstCostUSD += costUSD
	return ok
}

func (t *tally) progress(i int) Progress {
	p := Progress{Iteration: i, Total: t.summary.TotalIterations, Successes: t.summary.SuccessCount}
	if i > 0 {
		p.SuccessRate = float64(t.summary.SuccessCount) / float64(i)
	}
	return p
}

func (t *tally) finalize(elapsed time.Duration) RunSummary {
	s := t.summary
	s.Elapsed = elapsed
	s.ElapsedSeconds = elapsed.Seconds()
	if s.Attempted > 0 {
		s.SuccessRatePct = float64(s.SuccessCount) / float64(s.Attempted) * 100
		s.AvgIterationSeconds = s.ElapsedSeconds / float64(s.Attempted)
	}
	if len(t.latencies) > 0 {
		var sum int64
		for _, v := range t.latencies {
			sum += v
		}
		s.LatencyMeanMs = float64(sum) / float64(len(t.latencies))
		s.LatencyP50Ms = percentile(t.latencies, 0.50)
		s.LatencyP95Ms = percentile(t.latencies, 0.95)
	}
	if len(s.FailuresByKind) == 0 {
		s.FailuresByKind = nil
	} else {
		kinds := make(map[providers.ErrorKind]int, len(s.FailuresByKind))
		for k, v := range s.FailuresByKind {
			kinds[k] = v
		}
		s.FailuresByKind = kinds
	}
	return s
}

// percentile uses the nearest-rank method
func percentile(vals []int64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]int64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx])
}
