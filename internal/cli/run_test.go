package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/lockstep/internal/config"
	"github.com/aretw0/lockstep/internal/logging"
)

var (
	buildOnce sync.Once
	binDir    string
	buildErr  error
)

// buildFixture compiles the reference lock-test tool once per test binary.
func buildFixture(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}
	buildOnce.Do(func() {
		binDir, buildErr = os.MkdirTemp("", "lockstep-bin")
		if buildErr != nil {
			return
		}
		name := "lock-test"
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		// Tests run in the package directory, so we look up two levels.
		cmd := exec.Command("go", "build", "-o", filepath.Join(binDir, name), "../../cmd/lock-test")
		if out, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("%v\nOutput: %s", err, out)
		}
	})
	if buildErr != nil {
		t.Fatalf("Failed to compile lock-test: %v", buildErr)
	}
	return binDir
}

// writeTools registers lock-test with a short blocked delay.
func writeTools(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.yaml")
	content := `tools:
  - name: lock-test
    args: ["--blocked-delay", "200ms"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.ToolsFile = writeTools(t)
	cfg.Timeout = 15 * time.Second
	cfg.PollInterval = 50 * time.Millisecond
	cfg.Stagger = 100 * time.Millisecond
	return cfg
}

func TestExecute_EndToEnd(t *testing.T) {
	bin := buildFixture(t)
	db := filepath.Join(t.TempDir(), "test.db")
	metricsFile := filepath.Join(t.TempDir(), "lockstep.prom")

	cfg := testConfig(t)
	cfg.MetricsFile = metricsFile
	cfg.StatusAddr = "127.0.0.1:0"

	var out bytes.Buffer
	code, err := Execute(context.Background(), RunOptions{
		Binaries: bin,
		Database: db,
		Config:   cfg,
		Report:   true,
		Stdout:   &out,
		Logger:   logging.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "PASS")
	assert.Contains(t, out.String(), "first-holder-released-lock")
	assert.Contains(t, out.String(), "sequenceDiagram")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lockstep_runs_total{result="success"} 1`)
	assert.Contains(t, string(data), `lockstep_milestones_total{milestone="second-contender-observed-blocked"} 1`)

	// Both transactions were committed to the database.
	db1, err := os.ReadFile(db)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(db1, []byte("commit pid=")))
}

func TestExecute_SplitRolesOverRedis(t *testing.T) {
	bin := buildFixture(t)
	mr := miniredis.RunT(t)
	db := filepath.Join(t.TempDir(), "test.db")

	run := func(role string) (int, string) {
		cfg := testConfig(t)
		cfg.Role = role
		cfg.RunID = "split-run"
		cfg.RedisURL = "redis://" + mr.Addr()
		var out bytes.Buffer
		code, err := Execute(context.Background(), RunOptions{
			Binaries: bin,
			Database: db,
			Config:   cfg,
			Stdout:   &out,
			Logger:   logging.NewNop(),
		})
		require.NoError(t, err)
		return code, out.String()
	}

	var wg sync.WaitGroup
	var firstCode, secondCode int
	var firstOut, secondOut string
	wg.Add(2)
	go func() {
		defer wg.Done()
		firstCode, firstOut = run(config.RoleFirst)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(100 * time.Millisecond)
		secondCode, secondOut = run(config.RoleSecond)
	}()
	wg.Wait()

	assert.Equal(t, 0, firstCode, firstOut)
	assert.Equal(t, 0, secondCode, secondOut)
	assert.True(t, mr.Exists("lockstep:run:split-run:milestones"))
}

func TestExecute_MissingTool(t *testing.T) {
	cfg := config.Defaults()
	cfg.Tool = "does-not-exist"
	cfg.Timeout = 5 * time.Second
	cfg.Stagger = 0

	var out bytes.Buffer
	code, err := Execute(context.Background(), RunOptions{
		Binaries: t.TempDir(),
		Database: filepath.Join(t.TempDir(), "test.db"),
		Config:   cfg,
		Stdout:   &out,
		Logger:   logging.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "FAIL")
	assert.Contains(t, out.String(), "spawn-error")
}

func TestExecute_SetupErrors(t *testing.T) {
	cfg := config.Defaults()
	cfg.Role = "third"
	_, err := Execute(context.Background(), RunOptions{Config: cfg, Logger: logging.NewNop()})
	assert.ErrorContains(t, err, "unknown role")

	cfg = config.Defaults()
	cfg.LogLevel = "chatty"
	_, err = Execute(context.Background(), RunOptions{Config: cfg})
	assert.ErrorContains(t, err, "unknown log level")

	cfg = config.Defaults()
	cfg.Role = config.RoleFirst
	cfg.RunID = "x"
	cfg.RedisURL = "redis://127.0.0.1:1"
	_, err = Execute(context.Background(), RunOptions{Config: cfg, Logger: logging.NewNop()})
	assert.ErrorContains(t, err, "redis unreachable")
}
