package runtime

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
)

const (
	// DefaultTimeout bounds the gap between two progress events of one process.
	DefaultTimeout = 60 * time.Second
	// DefaultPollInterval is how often milestone waits re-check the board.
	DefaultPollInterval = time.Second
	// DefaultStagger delays the second contender when both roles run in-process.
	DefaultStagger = time.Second
)

// Config tunes an Orchestrator and the drivers it creates.
type Config struct {
	RunID        string
	Roles        []domain.Role
	Timeout      time.Duration
	PollInterval time.Duration
	Stagger      time.Duration
	Logger       *slog.Logger
	Hooks        domain.LifecycleHooks
}

func (c Config) withDefaults() Config {
	if len(c.Roles) == 0 {
		c.Roles = []domain.Role{domain.RoleFirstHolder, domain.RoleSecondContender}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Stagger < 0 {
		c.Stagger = 0
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	return c
}

// Orchestrator runs the configured drivers against one shared board.
type Orchestrator struct {
	board   ports.Board
	spawner ports.Spawner
	cfg     Config
}

// NewOrchestrator creates an orchestrator. A zero Stagger is kept as is; use
// DefaultStagger explicitly to get the one-second head start.
func NewOrchestrator(board ports.Board, spawner ports.Spawner, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	cfg.Logger = cfg.Logger.With("run_id", cfg.RunID)
	return &Orchestrator{board: board, spawner: spawner, cfg: cfg}
}

// Run launches every configured role, waits for all of them and returns the exit code.
func (o *Orchestrator) Run(ctx context.Context) int {
	return o.RunReport(ctx).ExitCode
}

// RunReport is Run with the full outcome of the run.
func (o *Orchestrator) RunReport(ctx context.Context) domain.Report {
	start := time.Now()
	logger := o.cfg.Logger
	logger.Info("starting run", "roles", o.cfg.Roles, "timeout", o.cfg.Timeout)

	drivers := make([]*Driver, len(o.cfg.Roles))
	errs := make([]error, len(o.cfg.Roles))

	// Drivers never cancel each other through the group; they coordinate through the board.
	var g errgroup.Group
	for i, role := range o.cfg.Roles {
		drivers[i] = NewDriver(role, o.board, o.spawner, o.cfg)
		if i > 0 && o.cfg.Stagger > 0 {
			if !sleep(ctx, o.cfg.Stagger) {
				logger.Warn("aborted before all roles started", "role", role)
			}
		}
		d := drivers[i]
		idx := i
		g.Go(func() error {
			errs[idx] = d.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	recordCtx := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		if _, err := o.board.Fail(recordCtx, domain.FailureAborted); err != nil {
			logger.Error("failed to record abort", "error", err)
		}
	}

	report := domain.Report{
		RunID:    o.cfg.RunID,
		Duration: time.Since(start),
		State:    domain.NewSnapshot(),
	}
	snap, err := o.board.Snapshot(recordCtx)
	if err != nil {
		logger.Error("failed to read shared state", "error", err)
		snap.Failure = domain.FailureInternal
	} else {
		report.State = snap
	}
	report.Failure = snap.Failure
	if report.Failure == "" {
		report.Failure = domain.FailureNone
	}

	for i, d := range drivers {
		if errs[i] != nil {
			if report.Errors == nil {
				report.Errors = make(map[domain.Role]string)
			}
			report.Errors[d.Role()] = errs[i].Error()
		}
		if d.TimedOut() {
			report.TimedOut = append(report.TimedOut, d.Role())
		}
	}

	report.ExitCode = report.Failure.ExitStatus()
	if report.ExitCode == 0 && len(report.Errors) > 0 {
		// A driver error that never reached the board still fails the run.
		report.Failure = domain.FailureInternal
		report.ExitCode = report.Failure.ExitStatus()
	}

	logger.Info("run finished", "failure", report.Failure, "exit_code", report.ExitCode, "duration", report.Duration)
	return report
}

// sleep waits for d or until ctx is done, reporting whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
