package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ratnathegod/inference-profile-bench/internal/bench"
	"github.com/ratnathegod/inference-profile-bench/internal/config"
	"github.com/ratnathegod/inference-profile-bench/internal/output"
	"github.com/ratnathegod/inference-profile-bench/internal/providers"
	"github.com/ratnathegod/inference-profile-bench/internal/telemetry"
)

var runOpts struct {
	region       string
	baseModelARN string
	prefix       string
	description  string
	tags         string
	iterations   int
	perCallDelay string
	perLoopDelay string
	reportEvery  int
	maxTokens    int
	promptsFile  string
	csvOut       string
	jsonlOut     string
	summaryOut   string
	metricsAddr  string
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a profile and run the sequential benchmark",
	Long: `Runs one benchmark sweep:
1. Provisioning: creates a tagged application inference profile copied from the base model.
2. Iterations: sends one Converse call per iteration through the profile, rotating prompts,
   pausing after every call and again between iterations.
3. Summary: reports successes, failures, success rate, elapsed time, latency and cost.

The profile is not deleted afterwards. Settings come from BENCH_* environment
variables; flags override them.`,
	Example: `  # Defaults: 50 iterations against amazon.nova-micro in us-east-1
  profilebench run

  # Short run without pacing, exporting every iteration
  profilebench run -n 10 --per-call-delay 0 --per-loop-delay 0 --csv out.csv

  # Exercise the harness without AWS
  profilebench run --dry-run -n 20 --summary summary.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		if err := applyRunFlags(cmd.Flags(), &cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		for _, w := range config.ValidateConfig(cfg) {
			log.Warn().Msg(w)
		}
		log.Info().Interface("config", cfg.MaskSecrets()).Msg("loaded configuration")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err := runBenchmark(ctx, cfg)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.region, "region", "", "AWS region (env BENCH_REGION, AWS_REGION)")
	f.StringVar(&runOpts.baseModelARN, "base-model-arn", "", "foundation model ARN the profile copies from")
	f.StringVar(&runOpts.prefix, "profile-prefix", "", "profile name prefix; a random suffix is appended")
	f.StringVar(&runOpts.description, "profile-description", "", "profile description")
	f.StringVar(&runOpts.tags, "tags", "", "profile tags as k1=v1,k2=v2")
	f.IntVarP(&runOpts.iterations, "iterations", "n", 0, "number of iterations")
	f.StringVar(&runOpts.perCallDelay, "per-call-delay", "", "pause after every call (seconds or duration)")
	f.StringVar(&runOpts.perLoopDelay, "per-loop-delay", "", "extra pause between iterations (seconds or duration)")
	f.IntVar(&runOpts.reportEvery, "report-every", 0, "log progress every K iterations, 0 disables")
	f.IntVar(&runOpts.maxTokens, "max-tokens", 0, "maxTokens sent with every Converse call")
	f.StringVarP(&runOpts.promptsFile, "prompts", "p", "", "YAML file with a prompts: list")
	f.StringVar(&runOpts.csvOut, "csv", "", "write one CSV row per iteration to this file")
	f.StringVar(&runOpts.jsonlOut, "jsonl", "", "write one JSON line per iteration to this file")
	f.StringVar(&runOpts.summaryOut, "summary", "", "write the run report as JSON to this file")
	f.StringVar(&runOpts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address while running")
	f.BoolVar(&runOpts.dryRun, "dry-run", false, "use a simulated Bedrock instead of AWS")
}

// applyRunFlags overrides env configuration with explicitly set flags only
func applyRunFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	set := func(name string) bool { return fs.Changed(name) }
	if set("region") {
		cfg.Region = runOpts.region
	}
	if set("base-model-arn") {
		cfg.BaseModelARN = runOpts.baseModelARN
	}
	if set("profile-prefix") {
		cfg.ProfilePrefix = runOpts.prefix
	}
	if set("profile-description") {
		cfg.ProfileDescription = runOpts.description
	}
	if set("tags") {
		tags, err := config.ParseTags(runOpts.tags)
		if err != nil {
			return err
		}
		cfg.Tags = tags
	}
	if set("iterations") {
		cfg.Iterations = runOpts.iterations
	}
	if set("per-call-delay") {
		d, err := config.ParseDelay(runOpts.perCallDelay)
		if err != nil {
			return fmt.Errorf("per-call-delay: %w", err)
		}
		cfg.PerCallDelay = d
	}
	if set("per-loop-delay") {
		d, err := config.ParseDelay(runOpts.perLoopDelay)
		if err != nil {
			return fmt.Errorf("per-loop-delay: %w", err)
		}
		cfg.PerLoopDelay = d
	}
	if set("report-every") {
		cfg.ReportEvery = runOpts.reportEvery
	}
	if set("max-tokens") {
		cfg.MaxTokens = runOpts.maxTokens
	}
	if set("prompts") {
		cfg.PromptsFile = runOpts.promptsFile
	}
	if set("csv") {
		cfg.CSVOut = runOpts.csvOut
	}
	if set("jsonl") {
		cfg.JSONLOut = runOpts.jsonlOut
	}
	if set("summary") {
		cfg.SummaryOut = runOpts.summaryOut
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = runOpts.metricsAddr
	}
	if set("dry-run") {
		cfg.DryRun = runOpts.dryRun
	}
	return nil
}

// backend returns the control-plane and runtime APIs for cfg
func backend(ctx context.Context, cfg config.Config) (providers.ProfileAPI, providers.ConverseAPI, error) {
	if cfg.DryRun {
		mb := providers.NewMockBackend(cfg.Region, cfg.MockMeanMs, cfg.MockP95Ms, cfg.MockErrorRate)
		log.Warn().Msg("dry run: using simulated Bedrock, no AWS calls are made")
		return mb, mb, nil
	}
	clients, err := providers.NewClients(ctx, providers.ClientOptions{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
	})
	if err != nil {
		return nil, nil, err
	}
	return clients.Control, clients.Runtime, nil
}

func runBenchmark(ctx context.Context, cfg config.Config) (bench.Report, error) {
	telemetry.MustRegisterMetrics()
	if shutdown, err := telemetry.InitOTEL(ctx, "profilebench", cfg.OtelEndpoint); err != nil {
		log.Warn().Err(err).Msg("OTEL init failed")
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}
	if cfg.MetricsAddr != "" {
		shutdown := telemetry.StartServer(cfg.MetricsAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	prompts := bench.DefaultPrompts
	if cfg.PromptsFile != "" {
		p, err := bench.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			return bench.Report{}, err
		}
		prompts = p
	}

	profileAPI, converseAPI, err := backend(ctx, cfg)
	if err != nil {
		return bench.Report{}, err
	}

	var recorders []bench.Recorder
	if cfg.CSVOut != "" {
		cw, err := output.NewCSVWriter(cfg.CSVOut)
		if err != nil {
			return bench.Report{}, err
		}
		defer cw.Close()
		recorders = append(recorders, cw)
	}
	if cfg.JSONLOut != "" {
		jw, err := output.NewJSONWriter(cfg.JSONLOut)
		if err != nil {
			return bench.Report{}, err
		}
		defer jw.Close()
		recorders = append(recorders, jw)
	}

	pacing := bench.DefaultPacing(cfg.PerCallDelay, cfg.PerLoopDelay)
	runner, err := bench.NewRunner(providers.NewConverseClient(converseAPI, cfg.MaxTokens), prompts, pacing)
	if err != nil {
		return bench.Report{}, err
	}

	tags := make([]providers.Tag, 0, len(cfg.Tags))
	for _, t := range cfg.Tags {
		tags = append(tags, providers.Tag{Key: t.Key, Value: t.Value})
	}

	orch, err := bench.NewOrchestrator(
		providers.NewProfileProvisioner(profileAPI, cfg.ProfileDescription),
		runner,
		bench.Options{
			Iterations:    cfg.Iterations,
			ReportEvery:   cfg.ReportEvery,
			ProfilePrefix: cfg.ProfilePrefix,
			BaseModelARN:  cfg.BaseModelARN,
			Tags:          tags,
			Pacing:        pacing,
			Recorders:     recorders,
		},
	)
	if err != nil {
		return bench.Report{}, err
	}

	rep, runErr := orch.Run(ctx)
	if cfg.SummaryOut != "" {
		if err := output.WriteReport(cfg.SummaryOut, rep); err != nil {
			log.Error().Err(err).Str("path", cfg.SummaryOut).Msg("failed to write summary")
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		var perr *providers.ProvisioningError
		if errors.As(runErr, &perr) {
			return rep, fmt.Errorf("benchmark aborted: %w", runErr)
		}
		return rep, runErr
	}
	return rep, nil
}
