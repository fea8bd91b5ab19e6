package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is returned when a watchdog fired before the process made progress.
var ErrTimeout = errors.New("watchdog timeout")

// ErrBrokenPipe is returned when writing to a process whose input is already closed.
var ErrBrokenPipe = errors.New("broken pipe")

// ErrAborted is returned when the run was cancelled from outside (e.g. SIGINT).
var ErrAborted = errors.New("run aborted")

// ProtocolViolationError reports a token that did not match the expected state.
type ProtocolViolationError struct {
	Role     Role
	Expected []Token
	Actual   string
}

func (e *ProtocolViolationError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, t := range e.Expected {
		expected[i] = fmt.Sprintf("%q", string(t))
	}
	return fmt.Sprintf("%s: process stdout should have been %s, got %q",
		e.Role, strings.Join(expected, " or "), e.Actual)
}

// ProcessExitedError reports that the process terminated before the protocol completed,
// or completed with a non-zero status.
// Err, when set, is the failure that revealed the exit, such as a broken pipe.
type ProcessExitedError struct {
	Code int
	Err  error
}

func (e *ProcessExitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("process exited (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("process exited (%d)", e.Code)
}

func (e *ProcessExitedError) Unwrap() error {
	return e.Err
}

// StreamFaultError reports unexpected error-stream content or a broken pipe.
type StreamFaultError struct {
	Reason string
	Err    error
}

func (e *StreamFaultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream fault: %s: %v", e.Reason, e.Err)
	}
	return "stream fault: " + e.Reason
}

func (e *StreamFaultError) Unwrap() error {
	return e.Err
}

// CompanionFailureError is returned by a driver that found the sticky failure code
// already set by the other driver.
type CompanionFailureError struct {
	Code FailureCode
}

func (e *CompanionFailureError) Error() string {
	return fmt.Sprintf("an error in the companion driver (%s)", e.Code)
}

// SpawnError is returned when the lock-test executable cannot be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CodeOf maps an error returned by a driver to the failure code it records.
func CodeOf(err error) FailureCode {
	if err == nil {
		return FailureNone
	}

	var (
		violation *ProtocolViolationError
		exited    *ProcessExitedError
		fault     *StreamFaultError
		companion *CompanionFailureError
		spawn     *SpawnError
	)

	switch {
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return FailureAborted
	case errors.As(err, &companion):
		return FailureCompanion
	case errors.As(err, &violation):
		return FailureProtocolViolation
	case errors.As(err, &exited):
		return FailurePrematureExit
	case errors.As(err, &fault), errors.Is(err, ErrBrokenPipe):
		return FailureStreamFault
	case errors.As(err, &spawn):
		return FailureSpawn
	}
	return FailureInternal
}
