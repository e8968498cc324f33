package bench

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratnathegod/inference-profile-bench/internal/providers"
)

type fakeProvisioner struct {
	calls int
	name  string
	tags  []providers.Tag
	err   error
}

func (f *fakeProvisioner) CreateProfile(ctx context.Context, name, baseModelARN string, tags []providers.Tag) (providers.Profile, error) {
	f.calls++
	f.name = name
	f.tags = tags
	prof := providers.Profile{Name: name, BaseModelARN: baseModelARN, Tags: tags}
	if f.err != nil {
		return prof, f.err
	}
	prof.ARN = "arn:aws:bedrock:us-east-1:123:application-inference-profile/" + name
	return prof, nil
}

// scriptedConversation fails or panics on selected calls (1-based)
type scriptedConversation struct {
	calls   int
	fail    map[int]bool
	panics  map[int]bool
	prompts []string
	models  []string
}

func (s *scriptedConversation) Converse(ctx context.Context, modelID string, messages []providers.Message) providers.Outcome {
	s.calls++
	s.models = append(s.models, modelID)
	s.prompts = append(s.prompts, messages[0].Content[0].Text)
	if s.panics[s.calls] {
		panic("boom")
	}
	if s.fail[s.calls] {
		return providers.Failed(&providers.ConverseError{ModelID: modelID, Kind: providers.KindThrottling, Code: "ThrottlingException", Err: errors.New("slow down")}, 3*time.Millisecond)
	}
	return providers.Outcome{Success: true, Text: "ok", Latency: time.Duration(s.calls) * 10 * time.Millisecond, InputTokens: 10, OutputTokens: 100}
}

type sleepLog struct {
	calls []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

type memRecorder struct{ recs []IterationRecord }

func (m *memRecorder) Record(r IterationRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func quietLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestOrchestrator(t *testing.T, prov Provisioner, conv Conversation, iterations, reportEvery int, sl *sleepLog, recs ...Recorder) *Orchestrator {
	t.Helper()
	pacing := Pacing{PerCall: Fixed(time.Second), PerLoop: Fixed(2 * time.Second), Sleep: sl.sleep}
	r, err := NewRunner(conv, DefaultPrompts, pacing)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOrchestrator(prov, r, Options{
		Iterations:    iterations,
		ReportEvery:   reportEvery,
		ProfilePrefix: "cost_demo_shared_profile",
		BaseModelARN:  "arn:aws:bedrock:us-east-1::foundation-model/amazon.nova-micro-v1:0",
		Tags:          []providers.Tag{{Key: "dept", Value: "Dev"}, {Key: "project", Value: "cost-demo"}},
		Pacing:        pacing,
		Recorders:     recs,
		NameSuffix:    func() string { return "abcd1234" },
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestSelectPromptPeriodic(t *testing.T) {
	r, err := NewRunner(&scriptedConversation{}, DefaultPrompts, NoPacing())
	if err != nil {
		t.Fatal(err)
	}
	n := len(DefaultPrompts)
	for i := -10; i < 50; i++ {
		if r.SelectPrompt(i) != r.SelectPrompt(i+n) {
			t.Fatalf("SelectPrompt not periodic at %d", i)
		}
	}
	if r.SelectPrompt(1) != DefaultPrompts[1] || r.SelectPrompt(4) != DefaultPrompts[0] {
		t.Fatal("SelectPrompt should index prompts[i mod n]")
	}
}

func TestNewRunnerRejectsBadPrompts(t *testing.T) {
	for _, prompts := range [][]string{nil, {}, {"ok", "  "}} {
		if _, err := NewRunner(&scriptedConversation{}, prompts, NoPacing()); err == nil {
			t.Fatalf("expected error for %q", prompts)
		}
	}
}

func TestRunIterationPacesAfterFailure(t *testing.T) {
	sl := &sleepLog{}
	conv := &scriptedConversation{fail: map[int]bool{1: true}}
	r, _ := NewRunner(conv, DefaultPrompts, Pacing{PerCall: Fixed(time.Second), Sleep: sl.sleep})
	out := r.RunIteration(context.Background(), 3, "arn:p")
	if out.Success {
		t.Fatal("expected failure")
	}
	if len(sl.calls) != 1 || sl.calls[0] != time.Second {
		t.Fatalf("per-call pacing not applied: %v", sl.calls)
	}
	if conv.prompts[0] != DefaultPrompts[3] {
		t.Fatalf("wrong prompt %q", conv.prompts[0])
	}
}

func TestRunAllSucceed(t *testing.T) {
	sl := &sleepLog{}
	prov := &fakeProvisioner{}
	conv := &scriptedConversation{}
	rec := &memRecorder{}
	o := newTestOrchestrator(t, prov, conv, 4, 2, sl, rec)

	rep, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := rep.Summary
	if s.SuccessCount != 4 || s.FailureCount != 0 || s.Attempted != 4 || s.TotalIterations != 4 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.SuccessRatePct != 100.0 {
		t.Fatalf("rate = %v", s.SuccessRatePct)
	}
	if rep.State != StateDone || o.State() != StateDone {
		t.Fatalf("state = %s", rep.State)
	}
	if prov.calls != 1 || prov.name != "cost_demo_shared_profile_abcd1234" {
		t.Fatalf("provisioner calls=%d name=%q", prov.calls, prov.name)
	}
	for _, m := range conv.models {
		if m != rep.Profile.ARN {
			t.Fatalf("converse used %q, want profile arn %q", m, rep.Profile.ARN)
		}
	}
	// prompts rotate from index 1
	want := []string{DefaultPrompts[1], DefaultPrompts[2], DefaultPrompts[3], DefaultPrompts[0]}
	for i := range want {
		if conv.prompts[i] != want[i] {
			t.Fatalf("prompt %d = %q", i, conv.prompts[i])
		}
	}
	if len(rec.recs) != 4 || rec.recs[3].Iteration != 4 || !rec.recs[0].Success {
		t.Fatalf("recorder got %+v", rec.recs)
	}
	if s.InputTokens != 40 || s.OutputTokens != 400 || s.EstCostUSD <= 0 {
		t.Fatalf("token totals %+v", s)
	}
	if s.LatencyP50Ms != 20 || s.LatencyP95Ms != 40 {
		t.Fatalf("latency p50=%v p95=%v", s.LatencyP50Ms, s.LatencyP95Ms)
	}
}

func TestRunSecondCallFails(t *testing.T) {
	sl := &sleepLog{}
	conv := &scriptedConversation{fail: map[int]bool{2: true}}
	rec := &memRecorder{}
	o := newTestOrchestrator(t, &fakeProvisioner{}, conv, 4, 0, sl, rec)

	rep, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s := rep.Summary
	if s.SuccessCount != 3 || s.FailureCount != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.SuccessRatePct != 75.0 {
		t.Fatalf("rate = %v", s.SuccessRatePct)
	}
	if s.FailuresByKind[providers.KindThrottling] != 1 {
		t.Fatalf("failures by kind %v", s.FailuresByKind)
	}
	if rec.recs[1].Success || rec.recs[1].ErrorKind != "throttling" || rec.recs[1].ErrorCode != "ThrottlingException" {
		t.Fatalf("failed record %+v", rec.recs[1])
	}
	if len(rep.Progress) != 0 {
		t.Fatalf("report interval 0 should disable progress, got %v", rep.Progress)
	}
}

func TestRunPanicCountsAsFailure(t *testing.T) {
	conv := &scriptedConversation{panics: map[int]bool{3: true}}
	o := newTestOrchestrator(t, &fakeProvisioner{}, conv, 5, 0, &sleepLog{})
	rep, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Summary.SuccessCount != 4 || rep.Summary.FailureCount != 1 || conv.calls != 5 {
		t.Fatalf("summary %+v calls %d", rep.Summary, conv.calls)
	}
}

func TestRunProvisioningFailureAborts(t *testing.T) {
	prov := &fakeProvisioner{err: &providers.ProvisioningError{Profile: "x", Kind: providers.KindQuota, Err: errors.New("quota")}}
	conv := &scriptedConversation{}
	sl := &sleepLog{}
	o := newTestOrchestrator(t, prov, conv, 4, 2, sl)

	rep, err := o.Run(context.Background())
	var perr *providers.ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
	if conv.calls != 0 || len(sl.calls) != 0 {
		t.Fatalf("no iterations should run: calls=%d sleeps=%d", conv.calls, len(sl.calls))
	}
	if rep.State != StateFailed || rep.Summary.Attempted != 0 || rep.Summary.SuccessCount+rep.Summary.FailureCount != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestRunTwoTierPacing(t *testing.T) {
	sl := &sleepLog{}
	o := newTestOrchestrator(t, &fakeProvisioner{}, &scriptedConversation{}, 4, 0, sl)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	var perCall, perLoop int
	for _, d := range sl.calls {
		switch d {
		case time.Second:
			perCall++
		case 2 * time.Second:
			perLoop++
		}
	}
	if perCall != 4 || perLoop != 3 {
		t.Fatalf("per-call=%d per-loop=%d, want 4 and 3", perCall, perLoop)
	}
	// call pause always precedes the loop pause
	want := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second, time.Second, 2 * time.Second, time.Second}
	for i := range want {
		if sl.calls[i] != want[i] {
			t.Fatalf("sleep order %v", sl.calls)
		}
	}
}

func TestProgressReports(t *testing.T) {
	conv := &scriptedConversation{fail: map[int]bool{1: true, 6: true, 7: true}}
	o := newTestOrchestrator(t, &fakeProvisioner{}, conv, 12, 5, &sleepLog{})
	rep, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Progress) != 2 {
		t.Fatalf("expected reports at 5 and 10, got %+v", rep.Progress)
	}
	if p := rep.Progress[0]; p.Iteration != 5 || p.Successes != 4 || math.Abs(p.SuccessRate-0.8) > 1e-9 {
		t.Fatalf("first report %+v", p)
	}
	if p := rep.Progress[1]; p.Iteration != 10 || p.Successes != 7 || math.Abs(p.SuccessRate-0.7) > 1e-9 {
		t.Fatalf("second report %+v", p)
	}
	if s := rep.Summary; s.SuccessCount+s.FailureCount != 12 {
		t.Fatalf("counts do not add up: %+v", s)
	}
}

func TestRunCanceledStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conv := &scriptedConversation{}
	sl := &sleepLog{}
	pacing := Pacing{PerCall: Fixed(0), PerLoop: Fixed(time.Second), Sleep: func(c context.Context, d time.Duration) error {
		if d == time.Second && conv.calls == 2 {
			cancel()
		}
		return sl.sleep(c, d)
	}}
	r, _ := NewRunner(conv, DefaultPrompts, pacing)
	o, err := NewOrchestrator(&fakeProvisioner{}, r, Options{
		Iterations: 10, BaseModelARN: "arn:m", Tags: []providers.Tag{{Key: "k", Value: "v"}},
		Pacing: pacing, Logger: quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	rep, err := o.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Summary.Attempted != 2 || rep.Summary.TotalIterations != 10 || rep.State != StateDone {
		t.Fatalf("unexpected report %+v", rep.Summary)
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	r, _ := NewRunner(&scriptedConversation{}, DefaultPrompts, NoPacing())
	if _, err := NewOrchestrator(&fakeProvisioner{}, r, Options{Iterations: 0}); err == nil {
		t.Fatal("expected error for zero iterations")
	}
	if _, err := NewOrchestrator(&fakeProvisioner{}, r, Options{Iterations: 1, ReportEvery: -1}); err == nil {
		t.Fatal("expected error for negative report interval")
	}
	if _, err := NewOrchestrator(nil, r, Options{Iterations: 1}); err == nil {
		t.Fatal("expected error for nil provisioner")
	}
}

func TestPercentile(t *testing.T) {
	vals := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if p := percentile(vals, 0.95); p != 100 {
		t.Fatalf("p95 unexpected: %v", p)
	}
	if p := percentile(vals, 0.50); p != 50 {
		t.Fatalf("p50 unexpected: %v", p)
	}
	if p := percentile(nil, 0.5); p != 0 {
		t.Fatalf("empty: %v", p)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(good, []byte("prompts:\n  - \"one\"\n  - two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ps, err := LoadPrompts(good)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 || ps[0] != "one" || ps[1] != "two" {
		t.Fatalf("got %v", ps)
	}

	empty := filepath.Join(dir, "empty.yaml")
	_ = os.WriteFile(empty, []byte("prompts: []\n"), 0o644)
	if _, err := LoadPrompts(empty); err == nil {
		t.Fatal("expected error for empty list")
	}
	if _, err := LoadPrompts(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
