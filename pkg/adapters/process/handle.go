package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Handle wraps one spawned lock-test process.
// It implements ports.Process. A Handle is owned by a single driver; only Kill and
// Signal may be called from another goroutine (e.g. a watchdog callback).
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *lockedBuffer

	inMu     sync.Mutex
	inClosed bool

	// procMu orders signal delivery against reaping so a recycled process
	// group never receives a kill meant for this child.
	procMu sync.Mutex
	reaped bool

	waitOnce sync.Once
	exited   chan struct{}
	result   domain.ProcessResult
	waitErr  error
}

// Spawn starts cfg with extra positional args appended after cfg.Args.
// The process is killed if ctx is cancelled before it exits.
func Spawn(ctx context.Context, cfg ToolConfig, args ...string) (*Handle, error) {
	argv := append(append([]string{}, cfg.Args...), args...)
	cmd := exec.CommandContext(ctx, cfg.Command, argv...)
	cmd.Dir = cfg.Dir
	configureProcess(cmd)

	env := make([]string, 0, len(cfg.Environment))
	for k, v := range cfg.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Environ(), env...)

	h := &Handle{
		cmd:    cmd,
		exited: make(chan struct{}),
	}
	cmd.Cancel = h.Kill

	var err error
	if h.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, &domain.SpawnError{Command: cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.SpawnError{Command: cfg.Command, Err: err}
	}
	h.stdout = bufio.NewReader(stdout)

	if cfg.CombinedOutput {
		// Stdout is the write end of the pipe at this point; share it.
		cmd.Stderr = cmd.Stdout
	} else {
		h.stderr = &lockedBuffer{}
		cmd.Stderr = h.stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, &domain.SpawnError{Command: cfg.Command, Err: err}
	}
	return h, nil
}

// PID returns the native process identifier.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// ReadLine reads up to maxBytes of the next line, without its terminator.
// Once the output is exhausted the process is reaped and a *domain.ProcessExitedError
// carrying its exit code is returned.
func (h *Handle) ReadLine(maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = 1024
	}

	var line []byte
	for len(line) < maxBytes {
		b, err := h.stdout.ReadByte()
		if err != nil {
			if len(line) > 0 {
				return trimLine(line), nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				res, _ := h.Wait()
				return "", &domain.ProcessExitedError{Code: res.ExitCode}
			}
			return "", fmt.Errorf("read from process: %w", err)
		}
		if b == '\n' {
			return trimLine(line), nil
		}
		line = append(line, b)
	}
	return string(line), nil
}

func trimLine(line []byte) string {
	return strings.TrimSuffix(string(line), "\r")
}

// WriteByte sends b and a newline to the process input.
// When the input pipe is broken the process is reaped, and if it has exited a
// *domain.ProcessExitedError wrapping the pipe failure is returned.
func (h *Handle) WriteByte(b byte) error {
	if err := h.write([]byte{b, '\n'}); err != nil {
		return h.exitedOr(err)
	}
	return nil
}

// exitedOr reports a broken pipe as the exit that caused it.
func (h *Handle) exitedOr(err error) error {
	if !errors.Is(err, domain.ErrBrokenPipe) {
		return err
	}
	res, waitErr := h.Wait()
	if waitErr != nil {
		return err
	}
	return &domain.ProcessExitedError{Code: res.ExitCode, Err: err}
}

func (h *Handle) write(p []byte) error {
	h.inMu.Lock()
	defer h.inMu.Unlock()

	if h.inClosed {
		return &domain.StreamFaultError{Reason: "write to closed stdin", Err: domain.ErrBrokenPipe}
	}
	if _, err := h.stdin.Write(p); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			return &domain.StreamFaultError{Reason: fmt.Sprintf("write to stdin: %v", err), Err: domain.ErrBrokenPipe}
		}
		return &domain.StreamFaultError{Reason: "write to stdin", Err: err}
	}
	return nil
}

func (h *Handle) closeStdin() {
	h.inMu.Lock()
	defer h.inMu.Unlock()
	if !h.inClosed {
		h.inClosed = true
		_ = h.stdin.Close()
	}
}

// Communicate sends b and a newline, closes the input, then drains the output and
// reaps the process. A failed write is reported after the process was reaped.
func (h *Handle) Communicate(b byte) (domain.ProcessResult, error) {
	writeErr := h.write([]byte{b, '\n'})
	h.closeStdin()

	res, err := h.Wait()
	if writeErr != nil {
		return res, h.exitedOr(writeErr)
	}
	return res, err
}

// Wait drains whatever is left on the output and blocks until the process exits.
// It is safe to call more than once; later calls return the cached result.
func (h *Handle) Wait() (domain.ProcessResult, error) {
	h.waitOnce.Do(func() {
		rest, readErr := io.ReadAll(h.stdout)
		h.closeStdin()

		// Block until the child is a zombie, then stop signal delivery before
		// cmd.Wait releases its pid.
		waitExited(h.cmd.Process)
		h.procMu.Lock()
		h.reaped = true
		h.procMu.Unlock()

		err := h.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			h.waitErr = fmt.Errorf("wait for process: %w", err)
		} else if readErr != nil && !errors.Is(readErr, os.ErrClosed) {
			h.waitErr = fmt.Errorf("drain process output: %w", readErr)
		}

		h.result.Stdout = string(rest)
		if h.cmd.ProcessState != nil {
			h.result.ExitCode = h.cmd.ProcessState.ExitCode()
		}
		if h.stderr != nil {
			h.result.Stderr = h.stderr.String()
		}
		close(h.exited)
	})
	return h.result, h.waitErr
}

// ExitCode returns the exit code without blocking. ok is false while the process
// has not been reaped. A process killed by a signal reports -1.
func (h *Handle) ExitCode() (code int, ok bool) {
	select {
	case <-h.exited:
		return h.result.ExitCode, true
	default:
		return 0, false
	}
}

// Signal delivers sig to the process. Signalling an exited process is a no-op.
func (h *Handle) Signal(sig os.Signal) error {
	h.procMu.Lock()
	defer h.procMu.Unlock()
	if h.reaped {
		return nil
	}
	if err := h.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal %v: %w", sig, err)
	}
	return nil
}

// Kill forcibly terminates the process. It is idempotent.
func (h *Handle) Kill() error {
	h.procMu.Lock()
	defer h.procMu.Unlock()
	if h.reaped {
		return nil
	}
	if err := killProcess(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill: %w", err)
	}
	return nil
}

// Close kills the process if it is still running and reaps it.
func (h *Handle) Close() error {
	if err := h.Kill(); err != nil {
		return err
	}
	_, err := h.Wait()
	return err
}

// lockedBuffer collects stderr written by the exec copier goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
