package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/aretw0/lockstep"
	"github.com/aretw0/lockstep/internal/adapters/http"
	"github.com/aretw0/lockstep/internal/config"
	"github.com/aretw0/lockstep/internal/presentation/graph"
	"github.com/aretw0/lockstep/internal/presentation/tui"
	"github.com/aretw0/lockstep/pkg/adapters/memory"
	"github.com/aretw0/lockstep/pkg/adapters/process"
	redisboard "github.com/aretw0/lockstep/pkg/adapters/redis"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/observability"
	"github.com/aretw0/lockstep/pkg/ports"
)

// RunOptions contains all the configuration for a harness run.
type RunOptions struct {
	Binaries string
	Database string
	Config   config.Config
	Debug    bool
	// Report prints a rendered markdown report after the verdict.
	Report bool
	Stdout io.Writer
	// Logger overrides the logger built from Config.
	Logger *slog.Logger
}

// Execute runs the harness and returns its exit code.
// The error is reserved for setup problems (bad config, unreachable Redis);
// protocol failures are reported through the exit code only.
func Execute(ctx context.Context, opts RunOptions) (int, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return 1, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = createLogger(cfg, opts.Debug); err != nil {
			return 1, err
		}
	}

	registry := map[string]process.ToolConfig{}
	if cfg.ToolsFile != "" {
		var err error
		if registry, err = process.LoadTools(cfg.ToolsFile); err != nil {
			return 1, err
		}
	}
	tool := process.Resolve(registry, cfg.Tool)

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	board, closeBoard, err := openBoard(ctx, cfg, runID)
	if err != nil {
		return 1, err
	}
	defer closeBoard()

	metrics := observability.NewMetrics()
	hooks := metrics.Hooks()
	if opts.Debug {
		hooks = domain.ChainHooks(hooks, createDebugHooks(logger))
	}
	var transcript *observability.Transcript
	if opts.Report {
		transcript = observability.NewTranscript()
		hooks = domain.ChainHooks(hooks, transcript.Hooks())
	}

	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	stopStatus := startStatusServer(sigCtx, cfg.StatusAddr, &http.Server{
		State:   board,
		RunID:   runID,
		Metrics: metrics.Handler(),
	}, logger)

	harness := lockstep.New(opts.Binaries, opts.Database,
		lockstep.WithTool(tool),
		lockstep.WithCombinedOutput(cfg.CombinedOutput),
		lockstep.WithBoard(board),
		lockstep.WithRunID(runID),
		lockstep.WithRoles(cfg.Roles()...),
		lockstep.WithTimeout(cfg.Timeout),
		lockstep.WithPollInterval(cfg.PollInterval),
		lockstep.WithStagger(cfg.Stagger),
		lockstep.WithLifecycleHooks(hooks),
		lockstep.WithLogger(logger),
	)
	report := harness.RunReport(sigCtx)
	stopStatus()

	if sig := sigCtx.Signal(); sig != nil {
		logger.Warn("run interrupted", "signal", sig.String())
	}

	metrics.ObserveRun(report)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}

	printReport(opts.Stdout, report, transcript)
	return report.ExitCode, nil
}

// openBoard picks the shared state: Redis when configured, in-process otherwise.
func openBoard(ctx context.Context, cfg config.Config, runID string) (ports.Board, func(), error) {
	if cfg.RedisURL == "" {
		return memory.NewBoard(), func() {}, nil
	}

	board, err := redisboard.NewFromURL(cfg.RedisURL, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := board.Ping(pingCtx); err != nil {
		_ = board.Close()
		return nil, nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return board, func() { _ = board.Close() }, nil
}

// startStatusServer serves the run status until the returned stop function is called.
func startStatusServer(ctx context.Context, addr string, srv *http.Server, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := http.Serve(srvCtx, addr, http.NewHandler(srv), logger, func(a net.Addr) {
			logger.Debug("status server ready", "addr", a.String())
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("status server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// printReport writes the verdict and, when a transcript was recorded, the detailed report.
func printReport(w io.Writer, report domain.Report, transcript *observability.Transcript) {
	profile := termenv.NewOutput(w).EnvColorProfile()
	tui.PrintSummary(w, profile, report)
	if transcript == nil {
		return
	}

	md := tui.ReportMarkdown(report) +
		"\n## Sequence\n\n```mermaid\n" + graph.GenerateSequence(transcript.Entries()) + "```\n"
	style := ""
	if profile == termenv.Ascii {
		style = "notty"
	}
	render, err := tui.NewRenderer(style)
	if err == nil {
		var out string
		if out, err = render(md); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprint(w, md)
}
