/*
Package ports defines the driven ports (interfaces) of the lockstep harness.

These interfaces decouple the protocol drivers from concrete process spawning and
from the storage of the shared test state, so the same drivers run against real
lock-test processes, scripted fakes, an in-memory board or a Redis board.

# Key Interfaces

  - Board: The shared test state (milestones + sticky failure code).
  - Process: One spawned lock-test process.
  - Spawner: Starts a lock-test process for a role.
*/
package ports
