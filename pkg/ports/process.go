package ports

import (
	"context"
	"os"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Process is one running lock-test process, owned by a single driver.
type Process interface {
	// PID returns the native process identifier.
	PID() int

	// ReadLine blocks until a line (without its terminator) or EOF is available.
	// It fails with *domain.ProcessExitedError when the output ended and the
	// process has terminated.
	ReadLine(maxBytes int) (string, error)

	// WriteByte sends b followed by a newline and flushes it.
	WriteByte(b byte) error

	// Communicate sends b followed by a newline, closes the input, reads the
	// output to completion and waits for the process to exit.
	Communicate(b byte) (domain.ProcessResult, error)

	// Signal delivers sig to the process.
	Signal(sig os.Signal) error

	// Kill forcibly terminates the process. Killing an exited process is a no-op.
	Kill() error

	// Close kills the process if it is still alive and reaps it.
	Close() error
}

// Spawner starts the lock-test process for a role.
type Spawner interface {
	Spawn(ctx context.Context, role domain.Role) (Process, error)
}
