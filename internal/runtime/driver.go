package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
	"github.com/aretw0/lockstep/pkg/watchdog"
)

const (
	// maxLineBytes bounds a single read from the lock-test process.
	maxLineBytes = 1024
	// triggerByte is written (with a newline) to advance the lock-test process.
	triggerByte = 'a'
)

// Driver runs the expected-output state machine for one role against one process.
// The process and the watchdog are owned by the driver; only the board is shared.
type Driver struct {
	role    domain.Role
	runID   string
	board   ports.Board
	spawner ports.Spawner
	timeout time.Duration
	poll    time.Duration
	logger  *slog.Logger
	hooks   domain.LifecycleHooks

	proc  ports.Process
	timer *watchdog.Timer
}

// NewDriver creates a driver for role. Zero durations fall back to the defaults.
func NewDriver(role domain.Role, board ports.Board, spawner ports.Spawner, cfg Config) *Driver {
	cfg = cfg.withDefaults()
	return &Driver{
		role:    role,
		runID:   cfg.RunID,
		board:   board,
		spawner: spawner,
		timeout: cfg.Timeout,
		poll:    cfg.PollInterval,
		logger:  cfg.Logger.With("role", string(role)),
		hooks:   cfg.Hooks,
	}
}

// Role returns the role this driver plays.
func (d *Driver) Role() domain.Role {
	return d.role
}

// TimedOut reports whether the driver's watchdog fired.
func (d *Driver) TimedOut() bool {
	return d.timer != nil && d.timer.Fired()
}

// Run spawns the process and drives it through the protocol.
// Any failure is recorded on the board before Run returns, and the process has
// always been reaped by then.
func (d *Driver) Run(ctx context.Context) error {
	proc, err := d.spawner.Spawn(ctx, d.role)
	if err != nil {
		return d.fail(ctx, err)
	}
	d.proc = proc
	d.logger = d.logger.With("pid", proc.PID())
	d.logger.Debug("process ID", "pid", proc.PID())

	d.timer = watchdog.New(d.timeout, d.onTimeout, watchdog.WithName(string(d.role)+"-watchdog"))
	d.timer.Start()
	defer func() {
		d.timer.Cancel()
		if err := proc.Close(); err != nil {
			d.logger.Warn("failed to reap process", "error", err)
		}
	}()

	switch d.role {
	case domain.RoleFirstHolder:
		err = d.runFirstHolder(ctx)
	case domain.RoleSecondContender:
		err = d.runSecondContender(ctx)
	default:
		err = fmt.Errorf("unknown role %q", d.role)
	}
	if err != nil {
		return d.fail(ctx, err)
	}

	d.logger.Info("done")
	return nil
}

// fail classifies err, records it on the board (first failure wins) and returns it.
func (d *Driver) fail(ctx context.Context, err error) error {
	switch {
	case d.TimedOut():
		// A killed process surfaces as EOF or a companion failure; the watchdog is the cause.
		if !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w after %s: %v", domain.ErrTimeout, d.timeout, err)
		}
	case ctx.Err() != nil && !errors.Is(err, domain.ErrAborted):
		err = fmt.Errorf("%w: %v", domain.ErrAborted, err)
	}

	code := domain.CodeOf(err)
	d.logger.Error(err.Error(), "code", code)

	// The run context may already be cancelled; the failure must still be recorded.
	recordCtx := context.WithoutCancel(ctx)
	if _, ferr := d.board.Fail(recordCtx, code); ferr != nil {
		d.logger.Error("failed to record failure", "error", ferr)
	}
	if d.hooks.OnFailure != nil {
		d.hooks.OnFailure(recordCtx, &domain.FailureEvent{
			EventBase: d.event(domain.EventFailure),
			Code:      code,
			Err:       err,
		})
	}
	return err
}

// onTimeout runs on the watchdog goroutine.
func (d *Driver) onTimeout() {
	d.logger.Error("watchdog timeout: killing process", "timeout", d.timeout)
	if err := d.proc.Kill(); err != nil {
		d.logger.Error("failed to kill process", "error", err)
	}
	ctx := context.Background()
	if _, err := d.board.Fail(ctx, domain.FailureTimeout); err != nil {
		d.logger.Error("failed to record timeout", "error", err)
	}
	if d.hooks.OnWatchdog != nil {
		base := d.event(domain.EventWatchdog)
		d.hooks.OnWatchdog(ctx, &base)
	}
}

func (d *Driver) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		RunID:     d.runID,
		Role:      d.role,
	}
}

// checkCompanion aborts when the run was cancelled or the other driver already failed.
func (d *Driver) checkCompanion(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrAborted, context.Cause(ctx))
	}
	code, err := d.board.Failure(ctx)
	if err != nil {
		return fmt.Errorf("read shared state: %w", err)
	}
	if !code.OK() {
		return &domain.CompanionFailureError{Code: code}
	}
	return nil
}

// readToken reads the next protocol line with the watchdog restarted.
func (d *Driver) readToken(ctx context.Context) (domain.Token, error) {
	if err := d.checkCompanion(ctx); err != nil {
		return "", err
	}
	d.timer.Restart()
	d.logger.Debug("process readline")
	line, err := d.proc.ReadLine(maxLineBytes)
	if err != nil {
		return "", fmt.Errorf("%s read: %w", d.role, err)
	}
	if err := d.checkCompanion(ctx); err != nil {
		return "", err
	}

	tok := domain.ParseToken(line)
	d.logger.Info("process said", "line", line)
	if d.hooks.OnToken != nil {
		d.hooks.OnToken(ctx, &domain.TokenEvent{
			EventBase: d.event(domain.EventToken),
			Token:     tok,
			PID:       d.proc.PID(),
		})
	}
	return tok, nil
}

// expect reads one token and requires it to be want.
func (d *Driver) expect(ctx context.Context, want domain.Token) error {
	tok, err := d.readToken(ctx)
	if err != nil {
		return err
	}
	if tok != want {
		return &domain.ProtocolViolationError{Role: d.role, Expected: []domain.Token{want}, Actual: string(tok)}
	}
	return nil
}

// readPastBlocked reads tokens while they are "blocked" and returns the first other one.
// onFirstBlocked runs once, on the first "blocked" only.
func (d *Driver) readPastBlocked(ctx context.Context, onFirstBlocked func() error) (domain.Token, error) {
	seen := false
	for {
		tok, err := d.readToken(ctx)
		if err != nil {
			return "", err
		}
		if tok != domain.TokenBlocked {
			return tok, nil
		}
		if !seen {
			seen = true
			if onFirstBlocked != nil {
				if err := onFirstBlocked(); err != nil {
					return "", err
				}
			}
		}
	}
}

// expectHoldingLock validates the token that ended a blocked loop.
func (d *Driver) expectHoldingLock(tok domain.Token) error {
	if tok != domain.TokenHoldingLock {
		return &domain.ProtocolViolationError{
			Role:     d.role,
			Expected: []domain.Token{domain.TokenBlocked, domain.TokenHoldingLock},
			Actual:   string(tok),
		}
	}
	return nil
}

// send writes the trigger byte that lets the process take its next step.
func (d *Driver) send() error {
	d.logger.Info("sending to stdin")
	if err := d.proc.WriteByte(triggerByte); err != nil {
		return fmt.Errorf("%s send: %w", d.role, err)
	}
	d.logger.Info("sent")
	return nil
}

// publish sets a milestone on the board.
func (d *Driver) publish(ctx context.Context, m domain.Milestone) error {
	d.logger.Info("notifying milestone", "milestone", m)
	if err := d.board.Publish(ctx, m); err != nil {
		return fmt.Errorf("publish %s: %w", m, err)
	}
	if d.hooks.OnMilestone != nil {
		d.hooks.OnMilestone(ctx, &domain.MilestoneEvent{
			EventBase: d.event(domain.EventMilestone),
			Milestone: m,
		})
	}
	return nil
}

// await blocks until m is published. Every poll re-validates the failure code so
// a driver never waits on a companion that has already failed.
func (d *Driver) await(ctx context.Context, m domain.Milestone) error {
	d.logger.Info("waiting for milestone", "milestone", m)

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		if err := d.checkCompanion(ctx); err != nil {
			return err
		}
		set, err := d.board.IsSet(ctx, m)
		if err != nil {
			return fmt.Errorf("read shared state: %w", err)
		}
		if set {
			d.logger.Info("got milestone", "milestone", m)
			return d.checkCompanion(ctx)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrAborted, context.Cause(ctx))
		case <-ticker.C:
			d.logger.Debug("iterate", "milestone", m)
		}
	}
}

// finish sends the final byte, reads the output to completion and validates it.
func (d *Driver) finish() error {
	d.timer.Restart()
	d.logger.Info("sending final byte")
	res, err := d.proc.Communicate(triggerByte)
	if err != nil {
		return fmt.Errorf("%s communicate: %w", d.role, err)
	}

	stdout := strings.ReplaceAll(res.Stdout, "\r\n", "\n")
	if stdout != string(domain.TokenDone)+"\n" {
		return &domain.ProtocolViolationError{Role: d.role, Expected: []domain.Token{domain.TokenDone}, Actual: stdout}
	}
	if res.Stderr != "" {
		return &domain.StreamFaultError{Reason: fmt.Sprintf("stderr contained: %q", res.Stderr)}
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exit status: %w", d.role, &domain.ProcessExitedError{Code: res.ExitCode})
	}
	return nil
}
