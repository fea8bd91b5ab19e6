//go:build unix

package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/lockstep/internal/runtime"
	"github.com/aretw0/lockstep/pkg/adapters/memory"
	"github.com/aretw0/lockstep/pkg/adapters/process"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
)

// shellSpawner runs a real shell script for every role.
type shellSpawner struct {
	script string
}

func (s shellSpawner) Spawn(ctx context.Context, _ domain.Role) (ports.Process, error) {
	return process.Spawn(ctx, process.ToolConfig{Command: "sh", Args: []string{"-c", s.script}})
}

func TestOrchestrator_PrematureExitBeforeTrigger(t *testing.T) {
	// The tool exits before the trigger byte is written, so the write usually
	// hits a closed pipe. The exit must still be reported as such.
	spawner := shellSpawner{script: "printf 'start\\npre-lock\\n'; exit 2"}

	for i := 0; i < 20; i++ {
		cfg := testConfig(newRecorder(), 5*time.Second)
		cfg.Roles = []domain.Role{first}

		report := runtime.NewOrchestrator(memory.NewBoard(), spawner, cfg).RunReport(context.Background())

		assert.Equal(t, 1, report.ExitCode)
		if !assert.Equal(t, domain.FailurePrematureExit, report.Failure, "run %d: %s", i, report.Errors[first]) {
			return
		}
		assert.Contains(t, report.Errors[first], "process exited (2)")
		assert.Empty(t, report.TimedOut)
	}
}
