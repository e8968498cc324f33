package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ratnathegod/inference-profile-bench/internal/providers"
	"github.com/ratnathegod/inference-profile-bench/internal/telemetry"
	"github.com/ratnathegod/inference-profile-bench/internal/usage"
)

const tracerName = "github.com/ratnathegod/inference-profile-bench/bench"

type State string

const (
	StateInit         State = "INIT"
	StateProvisioning State = "PROVISIONING"
	StateRunning      State = "RUNNING"
	StateSummarizing  State = "SUMMARIZING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Provisioner creates the profile a run sends its traffic through
type Provisioner interface {
	CreateProfile(ctx context.Context, name, baseModelARN string, tags []providers.Tag) (providers.Profile, error)
}

// Recorder receives every classified iteration, e.g. a CSV or JSONL exporter
type Recorder interface {
	Record(IterationRecord) error
}

// IterationRecord is the exported view of one iteration
type IterationRecord struct {
	RunID        string    `json:"run_id"`
	Iteration    int       `json:"iteration"`
	Timestamp    time.Time `json:"ts"`
	ModelID      string    `json:"model_id"`
	Success      bool      `json:"success"`
	LatencyMs    int64     `json:"latency_ms"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	Preview      string    `json:"preview,omitempty"`
}

// Report is what a run hands back to its caller
type Report struct {
	RunID    string            `json:"run_id"`
	State    State             `json:"state"`
	Profile  providers.Profile `json:"profile"`
	Summary  RunSummary        `json:"summary"`
	Progress []Progress        `json:"progress,omitempty"`
}

type Options struct {
	Iterations    int
	ReportEvery   int
	ProfilePrefix string
	BaseModelARN  string
	Tags          []providers.Tag
	Pacing        Pacing
	Estimator     *usage.Estimator
	Recorders     []Recorder
	RunID         string
	Logger        *zerolog.Logger

	// NameSuffix and Now are overridable for tests
	NameSuffix func() string
	Now        func() time.Time
}

// Orchestrator provisions one profile and drives the sequential sweep.
// It is not safe for concurrent use; Run is meant to be called once.
type Orchestrator struct {
	provisioner Provisioner
	runner      *Runner
	opts        Options
	log         zerolog.Logger
	state       State
}

func NewOrchestrator(p Provisioner, r *Runner, opts Options) (*Orchestrator, error) {
	if p == nil || r == nil {
		return nil, errors.New("provisioner and runner are required")
	}
	if opts.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", opts.Iterations)
	}
	if opts.ReportEvery < 0 {
		return nil, fmt.Errorf("report interval must not be negative, got %d", opts.ReportEvery)
	}
	if opts.NameSuffix == nil {
		opts.NameSuffix = func() string { return telemetry.ShortID(8) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Estimator == nil {
		opts.Estimator = usage.NewEstimator()
	}
	if opts.RunID == "" {
		opts.RunID = telemetry.NewRunID()
	}
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &Orchestrator{
		provisioner: p,
		runner:      r,
		opts:        opts,
		log:         l.With().Str("run_id", opts.RunID).Logger(),
		state:       StateInit,
	}, nil
}

func (o *Orchestrator) State() State { return o.state }

// profileName is <prefix>_<suffix>, or just the suffix without a prefix
func (o *Orchestrator) profileName() string {
	if o.opts.ProfilePrefix == "" {
		return o.opts.NameSuffix()
	}
	return o.opts.ProfilePrefix + "_" + o.opts.NameSuffix()
}

// Run provisions the profile then performs every iteration in order.
// Only a provisioning failure is returned as an error; iteration failures are counted.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	ctx = telemetry.WithRunID(ctx, o.opts.RunID)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bench.Run")
	defer span.End()

	rep := Report{RunID: o.opts.RunID, Summary: RunSummary{TotalIterations: o.opts.Iterations}}

	o.state = StateProvisioning
	name := o.profileName()
	o.log.Info().Str("profile", name).Msg("creating shared profile")
	prof, err := o.provisioner.CreateProfile(ctx, name, o.opts.BaseModelARN, o.opts.Tags)
	rep.Profile = prof
	if err != nil {
		o.state = StateFailed
		rep.State = o.state
		kind := providers.KindUnknown
		var perr *providers.ProvisioningError
		if errors.As(err, &perr) {
			kind = perr.Kind
		}
		telemetry.ObserveProvisioningFailure(string(kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, "provisioning failed")
		o.log.Error().Err(err).Str("profile", name).Msg("provisioning failed, aborting run")
		return rep, err
	}
	span.SetAttributes(attribute.String("profile.arn", prof.ARN))
	modelID := prof.ARN

	o.state = StateRunning
	t := newTally(o.opts.Iterations)
	start := o.opts.Now()
	total := o.opts.Iterations
	for i := 1; i <= total; i++ {
		if ctx.Err() != nil {
			o.log.Warn().Int("iteration", i).Msg("run canceled, stopping early")
			break
		}

		out := o.iterate(ctx, i, modelID)
		cost := o.cost(i, out)
		ok := t.record(out, cost)
		o.export(i, modelID, out, cost)

		kind := ""
		if out.Err != nil {
			kind = string(out.Err.Kind)
		}
		telemetry.ObserveIteration(ok, kind, out.Latency, out.InputTokens, out.OutputTokens, cost)
		telemetry.RunSuccessRate.Set(float64(t.summary.SuccessCount) / float64(i))

		if o.opts.ReportEvery > 0 && i%o.opts.ReportEvery == 0 {
			p := t.progress(i)
			rep.Progress = append(rep.Progress, p)
			o.log.Info().
				Int("completed", i).
				Int("total", total).
				Msgf("Progress: %d/%d iterations completed, success rate: %d/%d (%.1f%%)", i, total, p.Successes, i, p.SuccessRate*100)
		}

		if i < total {
			if err := o.opts.Pacing.betweenIterations(ctx, i); err != nil {
				o.log.Warn().Err(err).Int("iteration", i).Msg("run canceled during pacing delay")
				break
			}
		}
	}

	o.state = StateSummarizing
	rep.Summary = t.finalize(o.opts.Now().Sub(start))
	o.logSummary(rep.Summary, prof)

	o.state = StateDone
	rep.State = o.state
	return rep, nil
}

// iterate runs one iteration, turning a panic into a counted failure
func (o *Orchestrator) iterate(ctx context.Context, i int, modelID string) (out providers.Outcome) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bench.Iteration")
	span.SetAttributes(attribute.Int("iteration", i))
	defer span.End()

	o.log.Info().Int("iteration", i).Str("model_id", modelID).Msgf("ITERATION %d", i)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("iteration %d panicked: %v", i, r)
			out = providers.Failed(&providers.ConverseError{ModelID: modelID, Kind: providers.KindUnknown, Err: err}, 0)
		}
		if out.Err != nil {
			span.SetStatus(codes.Error, string(out.Err.Kind))
			o.log.Error().Err(out.Err).Int("iteration", i).Msg("iteration failed")
		}
	}()
	return o.runner.RunIteration(ctx, i, modelID)
}

// cost prices by the base model since profile ARNs carry no model name.
// Token counts are estimated when a successful response reports no usage.
func (o *Orchestrator) cost(i int, out providers.Outcome) float64 {
	if !out.Success {
		return 0
	}
	in, res := out.InputTokens, out.OutputTokens
	if in == 0 && res == 0 {
		in = o.opts.Estimator.EstimateTokens(o.runner.SelectPrompt(i), o.opts.BaseModelARN)
		if out.Text != providers.NoTextFound {
			res = o.opts.Estimator.EstimateTokens(out.Text, o.opts.BaseModelARN)
		}
	}
	return o.opts.Estimator.CostUSD(o.opts.BaseModelARN, in, res)
}

func (o *Orchestrator) export(i int, modelID string, out providers.Outcome, cost float64) {
	if len(o.opts.Recorders) == 0 {
		return
	}
	rec := IterationRecord{
		RunID:        o.opts.RunID,
		Iteration:    i,
		Timestamp:    o.opts.Now(),
		ModelID:      modelID,
		Success:      out.Success && out.Err == nil,
		LatencyMs:    out.Latency.Milliseconds(),
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		CostUSD:      cost,
	}
	if out.Err != nil {
		rec.ErrorKind = string(out.Err.Kind)
		rec.ErrorCode = out.Err.Code
		rec.Error = out.Err.Error()
	} else {
		rec.Preview = truncate(out.Text, 50)
	}
	for _, r := range o.opts.Recorders {
		if err := r.Record(rec); err != nil {
			o.log.Warn().Err(err).Int("iteration", i).Msg("failed to export iteration record")
		}
	}
}

func (o *Orchestrator) logSummary(s RunSummary, prof providers.Profile) {
	ev := o.log.Info().
		Int("total", s.TotalIterations).
		Int("attempted", s.Attempted).
		Int("successful", s.SuccessCount).
		Int("failed", s.FailureCount).
		Float64("success_rate_pct", s.SuccessRatePct).
		Float64("elapsed_s", s.ElapsedSeconds).
		Float64("avg_iteration_s", s.AvgIterationSeconds).
		Float64("latency_p50_ms", s.LatencyP50Ms).
		Float64("latency_p95_ms", s.LatencyP95Ms).
		Int64("input_tokens", s.InputTokens).
		Int64("output_tokens", s.OutputTokens).
		Float64("est_cost_usd", s.EstCostUSD)
	for k, v := range s.FailuresByKind {
		ev = ev.Int("failures_"+string(k), v)
	}
	ev.Msgf("TEST SUMMARY: %d/%d successful (%.1f%%), total %.1fs, %.1fs per iteration",
		s.SuccessCount, s.Attempted, s.SuccessRatePct, s.ElapsedSeconds, s.AvgIterationSeconds)
	o.log.Warn().Str("arn", prof.ARN).Msg("inference profile was not deleted; remove it manually to stop accruing resources")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
