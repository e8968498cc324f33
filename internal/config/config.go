package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const masked = "***masked***"

// KeyValue is one profile tag, kept in declaration order
type KeyValue struct {
	Key   string
	Value string
}

type Config struct {
	Region             string
	BaseModelARN       string
	ProfilePrefix      string
	ProfileDescription string
	Tags               []KeyValue

	Iterations   int
	PerCallDelay time.Duration
	PerLoopDelay time.Duration
	ReportEvery  int
	MaxTokens    int

	PromptsFile string
	CSVOut      string
	JSONLOut    string
	SummaryOut  string

	MetricsAddr  string
	OtelEndpoint string
	LogLevel     string

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string

	DryRun        bool
	MockMeanMs    float64
	MockP95Ms     float64
	MockErrorRate float64
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v, err := strconv.Atoi(getenv(k, "")); err == nil {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getenv(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v, err := strconv.ParseBool(getenv(k, "")); err == nil {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if d, err := ParseDelay(getenv(k, "")); err == nil {
		return d
	}
	return def
}

func Load() Config {
	return Config{
		Region:             getenv("BENCH_REGION", getenv("AWS_REGION", "us-east-1")),
		BaseModelARN:       getenv("BENCH_BASE_MODEL_ARN", "arn:aws:bedrock:us-east-1::foundation-model/amazon.nova-micro-v1:0"),
		ProfilePrefix:      getenv("BENCH_PROFILE_PREFIX", "cost_demo_shared_profile"),
		ProfileDescription: getenv("BENCH_PROFILE_DESCRIPTION", "test"),
		Tags:               mustTags(getenv("BENCH_TAGS", "dept=Dev,project=cost-demo")),
		Iterations:         getenvInt("BENCH_ITERATIONS", 50),
		PerCallDelay:       getenvDuration("BENCH_PER_CALL_DELAY", time.Second),
		PerLoopDelay:       getenvDuration("BENCH_PER_LOOP_DELAY", 2*time.Second),
		ReportEvery:        getenvInt("BENCH_REPORT_EVERY", 5),
		MaxTokens:          getenvInt("BENCH_MAX_TOKENS", 300),
		PromptsFile:        getenv("BENCH_PROMPTS_FILE", ""),
		CSVOut:             getenv("BENCH_CSV_OUT", ""),
		JSONLOut:           getenv("BENCH_JSONL_OUT", ""),
		SummaryOut:         getenv("BENCH_SUMMARY_OUT", ""),
		MetricsAddr:        getenv("BENCH_METRICS_ADDR", ""),
		OtelEndpoint:       getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:           getenv("BENCH_LOG_LEVEL", "info"),
		AWSAccessKeyID:     getenv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY", ""),
		AWSSessionToken:    getenv("AWS_SESSION_TOKEN", ""),
		DryRun:             getenvBool("BENCH_DRY_RUN", false),
		MockMeanMs:         getenvFloat("BENCH_MOCK_MEAN_MS", 400),
		MockP95Ms:          getenvFloat("BENCH_MOCK_P95_MS", 900),
		MockErrorRate:      getenvFloat("BENCH_MOCK_ERROR_RATE", 0.05),
	}
}

// mustTags falls back to no tags on a malformed value; Validate reports it
func mustTags(s string) []KeyValue {
	tags, err := ParseTags(s)
	if err != nil {
		return nil
	}
	return tags
}

// ParseTags reads "k1=v1,k2=v2" preserving order
func ParseTags(s string) ([]KeyValue, error) {
	var out []KeyValue
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", part)
		}
		out = append(out, KeyValue{Key: k, Value: strings.TrimSpace(v)})
	}
	return out, nil
}

// ParseDelay accepts a Go duration ("1.5s", "250ms") or plain seconds ("2").
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty delay")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate reports settings the benchmark cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("iterations must be positive, got %d", c.Iterations))
	}
	if c.ReportEvery < 0 {
		errs = append(errs, fmt.Errorf("report interval must not be negative, got %d", c.ReportEvery))
	}
	if c.PerCallDelay < 0 || c.PerLoopDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if c.BaseModelARN == "" {
		errs = append(errs, errors.New("base model ARN is required"))
	}
	if len(c.Tags) == 0 {
		errs = append(errs, errors.New("at least one profile tag is required"))
	}
	if !c.DryRun && c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if c.MockErrorRate < 0 || c.MockErrorRate > 1 {
		errs = append(errs, fmt.Errorf("mock error rate must be within [0,1], got %v", c.MockErrorRate))
	}
	return errors.Join(errs...)
}

// ValidateConfig returns non-fatal warnings about the configuration
func ValidateConfig(cfg Config) []string {
	var warnings []string
	if !cfg.DryRun && cfg.BaseModelARN != "" && cfg.Region != "" &&
		strings.HasPrefix(cfg.BaseModelARN, "arn:aws:bedrock:") &&
		!strings.HasPrefix(cfg.BaseModelARN, "arn:aws:bedrock:"+cfg.Region+":") {
		warnings = append(warnings, fmt.Sprintf("base model ARN is not in region %s", cfg.Region))
	}
	if (cfg.AWSAccessKeyID == "") != (cfg.AWSSecretAccessKey == "") {
		warnings = append(warnings, "only one of AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY is set, using the default credential chain")
	}
	if cfg.ReportEvery > cfg.Iterations {
		warnings = append(warnings, "report interval exceeds iteration count, no progress will be reported")
	}
	if !cfg.DryRun && cfg.PerCallDelay == 0 && cfg.PerLoopDelay == 0 {
		warnings = append(warnings, "pacing is disabled, expect throttling")
	}
	return warnings
}

// MaskSecrets returns a copy safe to log
func (c Config) MaskSecrets() Config {
	m := c
	m.Tags = append([]KeyValue(nil), c.Tags...)
	if m.AWSAccessKeyID != "" {
		m.AWSAccessKeyID = masked
	}
	if m.AWSSecretAccessKey != "" {
		m.AWSSecretAccessKey = masked
	}
	if m.AWSSessionToken != "" {
		m.AWSSessionToken = masked
	}
	return m
}
