/*
Package domain contains the core vocabulary of the lockstep harness.

It defines the protocol tokens emitted by the lock-test tool, the roles of the two
contending processes, the milestone signals exchanged between their drivers and the
sticky failure codes that decide the exit status of a run. This package is kept pure
and free of I/O, following the same rule as the rest of the harness core.

# Key Entities

  - Token: A line emitted by the lock-test tool (start, pre-lock, blocked, holding-lock, done).
  - Role: First holder or second contender.
  - Milestone: A one-shot signal published by one driver and awaited by the other.
  - FailureCode: A write-once status shared by both drivers.
  - Snapshot: A point-in-time copy of the shared test state.
*/
package domain
