package domain

import "time"

// Milestone is a one-shot signal published by one driver and awaited by the other.
type Milestone string

const (
	MilestoneHoldingLock  Milestone = "first-holder-holding-lock"
	MilestoneBlocked      Milestone = "second-contender-observed-blocked"
	MilestoneReleasedLock Milestone = "first-holder-released-lock"
)

// Milestones lists every milestone in protocol order.
var Milestones = []Milestone{MilestoneHoldingLock, MilestoneBlocked, MilestoneReleasedLock}

// Valid reports whether m is a known milestone.
func (m Milestone) Valid() bool {
	for _, known := range Milestones {
		if m == known {
			return true
		}
	}
	return false
}

// FailureCode is the sticky outcome of a run.
// Once set to anything other than FailureNone it is never reset.
type FailureCode string

const (
	FailureNone              FailureCode = "success"
	FailureProtocolViolation FailureCode = "protocol-violation"
	FailurePrematureExit     FailureCode = "premature-exit"
	FailureStreamFault       FailureCode = "stream-fault"
	FailureTimeout           FailureCode = "timeout"
	FailureCompanion         FailureCode = "companion-failure"
	FailureSpawn             FailureCode = "spawn-error"
	FailureAborted           FailureCode = "aborted"
	FailureInternal          FailureCode = "internal-error"
)

// OK reports whether the code still means success.
func (c FailureCode) OK() bool {
	return c == FailureNone || c == ""
}

// ExitStatus reduces the code to a process exit status.
func (c FailureCode) ExitStatus() int {
	if c.OK() {
		return 0
	}
	return 1
}

// Snapshot is a point-in-time copy of the shared test state.
type Snapshot struct {
	Milestones map[Milestone]bool `json:"milestones"`
	Failure    FailureCode        `json:"failure"`
}

// NewSnapshot returns an empty, successful snapshot.
func NewSnapshot() Snapshot {
	s := Snapshot{
		Milestones: make(map[Milestone]bool, len(Milestones)),
		Failure:    FailureNone,
	}
	for _, m := range Milestones {
		s.Milestones[m] = false
	}
	return s
}

// ProcessResult is the terminal outcome of a lock-test process.
type ProcessResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Report summarises a finished run.
type Report struct {
	RunID    string          `json:"run_id"`
	ExitCode int             `json:"exit_code"`
	Failure  FailureCode     `json:"failure"`
	State    Snapshot        `json:"state"`
	Duration time.Duration   `json:"duration"`
	Errors   map[Role]string `json:"errors,omitempty"`
	TimedOut []Role          `json:"timed_out,omitempty"`
}
