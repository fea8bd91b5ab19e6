package lockstep

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/internal/runtime"
	"github.com/aretw0/lockstep/pkg/adapters/memory"
	"github.com/aretw0/lockstep/pkg/adapters/process"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
)

// Version is the harness version, overridden at link time for releases.
var Version = "0.1.0"

// DefaultTool is the executable name looked up in the binaries directory.
const DefaultTool = "lock-test"

// Harness is the high-level entry point for running a lock contention check.
// It wires a Board, a Spawner and the protocol drivers together.
type Harness struct {
	binaries string
	database string

	tool     process.ToolConfig
	combined bool
	board    ports.Board
	spawner  ports.Spawner
	runID    string
	roles    []domain.Role
	timeout  time.Duration
	poll     time.Duration
	stagger  time.Duration
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// Option defines a functional option for configuring the Harness.
type Option func(*Harness)

// WithTool sets the lock-test executable configuration.
func WithTool(tool process.ToolConfig) Option {
	return func(h *Harness) {
		h.tool = tool
	}
}

// WithCombinedOutput merges the tool's stderr into its stdout.
func WithCombinedOutput(combined bool) Option {
	return func(h *Harness) {
		h.combined = combined
	}
}

// WithBoard injects the shared state. Split-role runs pass a Redis board here.
func WithBoard(b ports.Board) Option {
	return func(h *Harness) {
		h.board = b
	}
}

// WithSpawner replaces the process spawner, bypassing the binaries directory.
func WithSpawner(s ports.Spawner) Option {
	return func(h *Harness) {
		h.spawner = s
	}
}

// WithRunID sets the run identifier (default: a random UUID).
func WithRunID(id string) Option {
	return func(h *Harness) {
		h.runID = id
	}
}

// WithRoles restricts the run to the given roles (default: both).
func WithRoles(roles ...domain.Role) Option {
	return func(h *Harness) {
		h.roles = roles
	}
}

// WithTimeout sets the per-step deadline of each process.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) {
		h.timeout = d
	}
}

// WithPollInterval sets how often milestone waits re-check the shared state.
func WithPollInterval(d time.Duration) Option {
	return func(h *Harness) {
		h.poll = d
	}
}

// WithStagger delays the second contender's start when both roles run.
func WithStagger(d time.Duration) Option {
	return func(h *Harness) {
		h.stagger = d
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(h *Harness) {
		h.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a harness that runs the lock-test tool from binaries against database.
func New(binaries, database string, opts ...Option) *Harness {
	h := &Harness{
		binaries: binaries,
		database: database,
		tool:     process.ToolConfig{Name: DefaultTool, Command: DefaultTool},
		timeout:  runtime.DefaultTimeout,
		poll:     runtime.DefaultPollInterval,
		stagger:  runtime.DefaultStagger,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logging.NewNop()
	}
	if h.runID == "" {
		h.runID = uuid.NewString()
	}
	if h.board == nil {
		h.board = memory.NewBoard()
	}
	if h.spawner == nil {
		h.spawner = process.NewSpawner(binaries, h.tool, database,
			process.WithLogger(h.logger.With("run_id", h.runID)),
			process.WithCombinedOutput(h.combined || h.tool.CombinedOutput),
		)
	}
	return h
}

// RunID returns the identifier shared by every log line and board key of the run.
func (h *Harness) RunID() string {
	return h.runID
}

// Board returns the shared state the drivers coordinate through.
func (h *Harness) Board() ports.Board {
	return h.board
}

// Run executes the protocol and returns the process exit code: 0 on success, 1 otherwise.
func (h *Harness) Run(ctx context.Context) int {
	return h.RunReport(ctx).ExitCode
}

// RunReport executes the protocol and returns the full outcome.
func (h *Harness) RunReport(ctx context.Context) domain.Report {
	o := runtime.NewOrchestrator(h.board, h.spawner, runtime.Config{
		RunID:        h.runID,
		Roles:        h.roles,
		Timeout:      h.timeout,
		PollInterval: h.poll,
		Stagger:      h.stagger,
		Logger:       h.logger,
		Hooks:        h.hooks,
	})
	return o.RunReport(ctx)
}
