package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/chimera"
	"github.com/hupe1980/chimera/artifact/billyfs"
	"github.com/hupe1980/chimera/bus"
	"github.com/hupe1980/chimera/config"
	"github.com/hupe1980/chimera/logging"
	"github.com/hupe1980/chimera/metrics"
	"github.com/hupe1980/chimera/model"
	anthropicmodel "github.com/hupe1980/chimera/model/anthropic"
	openaimodel "github.com/hupe1980/chimera/model/openai"
	"github.com/hupe1980/chimera/stage"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Run a request through the pipeline",
		Long: `Run refines the request, synthesizes a plan, writes the planned files into
the workspace and reviews them. Without --workspace the files are kept in
memory and only the summary is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, strings.Join(args, " "))
		},
	}

	cmd.Flags().String("provider", "", "model provider (mock, openai, anthropic)")
	cmd.Flags().String("model", "", "provider specific model name")
	cmd.Flags().String("workspace", "", "workspace directory (empty = in-memory)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().Bool("merge-back", false, "apply stage outputs to the run context")
	cmd.Flags().Int("max-retries", -1, "retries per stage (-1 = config value)")
	cmd.Flags().Duration("stage-timeout", 0, "timeout per stage attempt (0 = config value)")

	return cmd
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(nil)

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	str("model", &cfg.Model.Name)
	str("workspace", &cfg.Workspace.Path)
	str("metrics-addr", &cfg.Metrics.Addr)
	// A provider flag drops a configured key; the key is taken from the
	// environment variable of the selected provider instead.
	if flags.Changed("provider") {
		cfg.Model.Provider, _ = flags.GetString("provider")
		cfg.Model.APIKey = ""
		cfg.ApplyEnv(func(k string) string {
			if k == config.EnvProvider {
				return ""
			}
			return os.Getenv(k)
		})
	}
	if flags.Changed("merge-back") {
		cfg.Engine.MergeBack, _ = flags.GetBool("merge-back")
	}
	if n, _ := flags.GetInt("max-retries"); n >= 0 {
		cfg.Engine.MaxRetries = n
	}
	if d, _ := flags.GetDuration("stage-timeout"); d > 0 {
		cfg.Engine.StageTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runPipeline(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, request string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logCfg := logging.DefaultLoggerConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = stderr
	logCfg.Component = "chimera"
	logger := logging.NewLogger(logCfg)

	m, err := newModel(cfg.Model)
	if err != nil {
		return err
	}

	ws, err := newWorkspace(cfg.Workspace.Path)
	if err != nil {
		return err
	}
	store := billyfs.New(ws, func(o *billyfs.Options) { o.Root = cfg.Workspace.ArtifactRoot })

	b := bus.New(func(o *bus.Options) { o.HistoryCap = cfg.Engine.HistoryCap })
	collector := metrics.New()
	defer collector.Attach(b)()

	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics.Addr, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	c, err := chimera.New(func(o *chimera.Options) {
		o.EngineConfig = cfg.EngineConfig()
		o.Bus = b
		o.Model = m
		o.Workspace = ws
		o.Artifacts = store
		o.LogEvents = true
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	runID, runErr := c.Run(ctx, request)
	collector.Flush()
	printSummary(stdout, c, runID, runErr)
	return runErr
}

func newModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return stage.NewDemoModel(), nil
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires %s", config.EnvOpenAIAPIKey)
		}
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires %s", config.EnvAnthropicAPIKey)
		}
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func newWorkspace(path string) (billy.Filesystem, error) {
	if path == "" {
		return memfs.New(), nil
	}
	fs := osfs.New(path)
	if err := fs.MkdirAll(".", 0o755); err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}
	return fs, nil
}

// serveMetrics exposes the collector plus the Go runtime collectors on
// /metrics. The returned function shuts the server down.
func serveMetrics(addr string, collector *metrics.Collector, logger logging.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printSummary(w io.Writer, c *chimera.Chimera, runID string, runErr error) {
	fmt.Fprintf(w, "run %s\n", runID)
	for _, rec := range c.Records() {
		status := "ok"
		if rec.Err != "" {
			status = rec.Err
		}
		fmt.Fprintf(w, "  %-10s attempt %d  %8s  %s\n", rec.Stage, rec.Attempt, rec.Duration().Round(time.Millisecond), status)
	}

	if runErr != nil {
		fmt.Fprintf(w, "failed: %v\n", runErr)
		return
	}

	ids, err := c.Artifacts().List(runID)
	if err != nil {
		fmt.Fprintf(w, "artifacts: %v\n", err)
		return
	}
	fmt.Fprintf(w, "artifacts (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
	fmt.Fprintln(w, "done")
}
