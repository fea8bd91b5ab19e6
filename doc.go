/*
Package lockstep verifies that a database write lock serialises two processes.

It launches two instances of a lock-test tool against the same database and drives
them through a fixed exchange over their standard streams. The first holder takes
the lock; the second contender must report that it is blocked; only after the first
holder commits and releases may the second contender acquire the lock.

# Protocol

The tool prints one token per line: "start", "pre-lock", zero or more "blocked",
"holding-lock" and finally "done". Each line written to its stdin advances it one
step. Every read is guarded by a per-process deadline timer, and the two drivers
coordinate through a Board holding three one-shot milestones plus a sticky failure
code. The first failure wins and is never overwritten.

# Usage

	h := lockstep.New("./bin", "/tmp/test.db",
		lockstep.WithTimeout(30*time.Second),
	)
	os.Exit(h.Run(ctx))

Run returns 0 when both drivers finish the protocol and 1 otherwise. RunReport
returns the milestones reached, the failure code and per-role errors.

Two harness processes can split the roles between them by sharing a Redis Board
(see pkg/adapters/redis) and a run ID.
*/
package lockstep
