package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ratnathegod/inference-profile-bench/internal/bench"
)

func sampleRecords() []bench.IterationRecord {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []bench.IterationRecord{
		{RunID: "r1", Iteration: 1, Timestamp: ts, ModelID: "arn:p", Success: true, LatencyMs: 120, InputTokens: 10, OutputTokens: 300, CostUSD: 0.000042, Preview: "hello, world"},
		{RunID: "r1", Iteration: 2, Timestamp: ts, ModelID: "arn:p", ErrorKind: "throttling", ErrorCode: "ThrottlingException", Error: "slow down"},
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range sampleRecords() {
		if err := w.Record(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || len(rows[0]) != len(csvHeader) {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][4] != "true" || rows[1][12] != "hello, world" || rows[1][8] != "0.000042" {
		t.Fatalf("unexpected success row %v", rows[1])
	}
	if rows[2][4] != "false" || rows[2][9] != "throttling" || rows[2][10] != "ThrottlingException" {
		t.Fatalf("unexpected failure row %v", rows[2])
	}
}

func TestJSONWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := NewJSONWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range sampleRecords() {
		if err := w.Record(r); err != nil {
			t.Fatal(err)
		}
	}
	_ = w.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var got []bench.IterationRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r bench.IterationRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[1].ErrorKind != "throttling" || !got[0].Success {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	rep := bench.Report{RunID: "r1", State: bench.StateDone, Summary: bench.RunSummary{TotalIterations: 4, Attempted: 4, SuccessCount: 3, FailureCount: 1, SuccessRatePct: 75}}
	if err := WriteReport(path, rep); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	s := m["summary"].(map[string]any)
	if s["success_rate_pct"].(float64) != 75 || m["state"] != "DONE" {
		t.Fatalf("unexpected report %s", data)
	}
}

func TestNewCSVWriterBadPath(t *testing.T) {
	if _, err := NewCSVWriter(filepath.Join(t.TempDir(), "missing", "out.csv")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
