//go:build unix

package process_test

import (
	"context"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/lockstep/pkg/adapters/process"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnScript(t *testing.T, script string, combined bool) *process.Handle {
	t.Helper()
	h, err := process.Spawn(context.Background(), process.ToolConfig{
		Command:        "sh",
		Args:           []string{"-c", script},
		CombinedOutput: combined,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandle_ReadLineUntilExit(t *testing.T) {
	h := spawnScript(t, "echo start; echo pre-lock; exit 2", false)
	assert.Greater(t, h.PID(), 0)

	line, err := h.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "start", line)

	line, err = h.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "pre-lock", line)

	_, err = h.ReadLine(1024)
	var exited *domain.ProcessExitedError
	require.ErrorAs(t, err, &exited)
	assert.Equal(t, 2, exited.Code)

	code, ok := h.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 2, code)
}

func TestHandle_ReadLineHonoursMaxBytes(t *testing.T) {
	h := spawnScript(t, "printf 'abcdefgh\\n'", false)

	line, err := h.ReadLine(4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", line)

	line, err = h.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "efgh", line)
}

func TestHandle_WriteAndCommunicate(t *testing.T) {
	h := spawnScript(t, `echo start; read x; echo "got $x"; read y; echo done`, false)

	line, err := h.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "start", line)

	require.NoError(t, h.WriteByte('a'))
	line, err = h.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "got a", line)

	res, err := h.Communicate('a')
	require.NoError(t, err)
	assert.Equal(t, "done\n", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Equal(t, 0, res.ExitCode)

	// Wait is cached after Communicate.
	again, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestHandle_StderrCapture(t *testing.T) {
	t.Run("Separate", func(t *testing.T) {
		h := spawnScript(t, "echo oops >&2; echo done", false)
		res, err := h.Wait()
		require.NoError(t, err)
		assert.Equal(t, "done\n", res.Stdout)
		assert.Equal(t, "oops\n", res.Stderr)
	})

	t.Run("Combined", func(t *testing.T) {
		h := spawnScript(t, "echo oops >&2; echo done", true)
		line, err := h.ReadLine(1024)
		require.NoError(t, err)
		assert.Equal(t, "oops", line)

		res, err := h.Wait()
		require.NoError(t, err)
		assert.Equal(t, "done\n", res.Stdout)
		assert.Empty(t, res.Stderr)
	})
}

func TestHandle_BrokenPipe(t *testing.T) {
	t.Run("After Wait", func(t *testing.T) {
		h := spawnScript(t, "exit 0", false)
		_, err := h.Wait()
		require.NoError(t, err)

		err = h.WriteByte('a')
		assert.ErrorIs(t, err, domain.ErrBrokenPipe)
		var fault *domain.StreamFaultError
		assert.ErrorAs(t, err, &fault)
		var exited *domain.ProcessExitedError
		assert.ErrorAs(t, err, &exited)
	})

	t.Run("Reader Gone", func(t *testing.T) {
		h := spawnScript(t, "exec 0<&-; echo closed; sleep 1", false)
		line, err := h.ReadLine(1024)
		require.NoError(t, err)
		require.Equal(t, "closed", line)

		// The child outlives its input, so the write waits for it to exit.
		err = h.WriteByte('a')
		assert.ErrorIs(t, err, domain.ErrBrokenPipe)
		var exited *domain.ProcessExitedError
		require.ErrorAs(t, err, &exited)
		assert.Equal(t, 0, exited.Code)
	})

	t.Run("Exited Before Write", func(t *testing.T) {
		h := spawnScript(t, "printf 'start\\npre-lock\\n'; exit 2", false)
		for _, want := range []string{"start", "pre-lock"} {
			line, err := h.ReadLine(1024)
			require.NoError(t, err)
			require.Equal(t, want, line)
		}

		var err error
		require.Eventually(t, func() bool {
			err = h.WriteByte('a')
			return err != nil
		}, 5*time.Second, 10*time.Millisecond)

		var exited *domain.ProcessExitedError
		require.ErrorAs(t, err, &exited)
		assert.Equal(t, 2, exited.Code)
		assert.Equal(t, domain.FailurePrematureExit, domain.CodeOf(err))
	})

	t.Run("Communicate After Exit", func(t *testing.T) {
		h := spawnScript(t, "exit 2", false)
		require.Eventually(t, func() bool {
			_, done := h.ExitCode()
			return done || h.WriteByte('a') != nil
		}, 5*time.Second, 10*time.Millisecond)

		res, err := h.Communicate('a')
		var exited *domain.ProcessExitedError
		require.ErrorAs(t, err, &exited)
		assert.Equal(t, 2, exited.Code)
		assert.Equal(t, 2, res.ExitCode)
	})
}

func TestHandle_KillIsIdempotent(t *testing.T) {
	h := spawnScript(t, "echo ready; sleep 30", false)
	line, err := h.ReadLine(1024)
	require.NoError(t, err)
	require.Equal(t, "ready", line)

	start := time.Now()
	require.NoError(t, h.Kill())
	require.NoError(t, h.Kill())
	require.NoError(t, h.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	code, ok := h.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, -1, code, "killed process reports -1")

	assert.NoError(t, h.Kill(), "kill after reap is a no-op")
	assert.NoError(t, h.Signal(syscall.SIGTERM))
}

func TestHandle_KillRacesWait(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := spawnScript(t, "exit 0", false)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.Wait()
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Kill())
		}()
		wg.Wait()

		_, ok := h.ExitCode()
		assert.True(t, ok)
		assert.NoError(t, h.Kill(), "kill after reap is a no-op")
	}
}

func TestHandle_Signal(t *testing.T) {
	h := spawnScript(t, "trap 'echo term; exit 3' TERM; echo ready; while true; do sleep 0.05; done", false)

	line, err := h.ReadLine(1024)
	require.NoError(t, err)
	require.Equal(t, "ready", line)

	require.NoError(t, h.Signal(syscall.SIGTERM))
	line, err = h.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "term", line)

	_, err = h.ReadLine(1024)
	var exited *domain.ProcessExitedError
	require.ErrorAs(t, err, &exited)
	assert.Equal(t, 3, exited.Code)
}

func TestHandle_ContextCancelKills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := process.Spawn(ctx, process.ToolConfig{Command: "sh", Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)

	cancel()
	_, err = h.ReadLine(1024)
	var exited *domain.ProcessExitedError
	assert.ErrorAs(t, err, &exited)
}

func TestSpawn_MissingExecutable(t *testing.T) {
	_, err := process.Spawn(context.Background(), process.ToolConfig{
		Command: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	var spawnErr *domain.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, domain.FailureSpawn, domain.CodeOf(err))
}

func TestSpawner_Spawn(t *testing.T) {
	tool := process.ToolConfig{
		Name:        "echo-role",
		Command:     "sh",
		Args:        []string{"-c", `echo "$LOCKSTEP_ROLE $0 $EXTRA"`},
		Environment: map[string]string{"EXTRA": "x"},
	}
	spawner := process.NewSpawner("", tool, "/tmp/lockstep.db")

	proc, err := spawner.Spawn(context.Background(), domain.RoleSecondContender)
	require.NoError(t, err)
	defer proc.Close()

	line, err := proc.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "second-contender /tmp/lockstep.db x", line)
}
