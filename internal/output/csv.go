package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ratnathegod/inference-profile-bench/internal/bench"
)

// CSVWriter writes one row per iteration, flushed after every write
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

var csvHeader = []string{
	"run_id", "iteration", "ts", "model_id", "success", "latency_ms",
	"input_tokens", "output_tokens", "cost_usd", "error_kind", "error_code", "error", "preview",
}

// NewCSVWriter truncates path and writes the header
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVWriter{file: f, writer: w}, nil
}

func (cw *CSVWriter) Record(r bench.IterationRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	row := []string{
		r.RunID,
		strconv.Itoa(r.Iteration),
		r.Timestamp.Format(time.RFC3339Nano),
		r.ModelID,
		strconv.FormatBool(r.Success),
		strconv.FormatInt(r.LatencyMs, 10),
		strconv.FormatInt(r.InputTokens, 10),
		strconv.FormatInt(r.OutputTokens, 10),
		fmt.Sprintf("%.6f", r.CostUSD),
		r.ErrorKind,
		r.ErrorCode,
		r.Error,
		r.Preview,
	}
	if err := cw.writer.Write(row); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.writer.Flush()
	return cw.file.Close()
}
