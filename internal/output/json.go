package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/ratnathegod/inference-profile-bench/internal/bench"
)

// JSONWriter writes iteration records as JSON Lines
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{file: f, encoder: json.NewEncoder(f)}, nil
}

func (jw *JSONWriter) Record(r bench.IterationRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.encoder.Encode(r)
}

func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}

// WriteReport writes the final report as indented JSON
func WriteReport(path string, rep bench.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
