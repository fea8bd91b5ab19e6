package runtime_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
)

// script plays a lock-test process and returns its exit code.
type script func(p *fakeProcess) int

// fakeProcess is an in-memory stand-in for a lock-test process.
type fakeProcess struct {
	pid    int
	stderr string

	out    chan string
	in     chan byte
	killed chan struct{}
	done   chan struct{}

	killOnce sync.Once
	exitCode int
}

func startFake(pid int, run script) *fakeProcess {
	p := &fakeProcess{
		pid:    pid,
		out:    make(chan string),
		in:     make(chan byte, 4),
		killed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		code := run(p)
		p.exitCode = code
		close(p.out)
		close(p.done)
	}()
	return p
}

// say emits lines, one per read. It gives up once the process is killed.
func (p *fakeProcess) say(lines ...string) bool {
	for _, l := range lines {
		select {
		case p.out <- l:
		case <-p.killed:
			return false
		}
	}
	return true
}

// await blocks until the driver writes a byte.
func (p *fakeProcess) await() bool {
	select {
	case <-p.in:
		return true
	case <-p.killed:
		return false
	}
}

// hang blocks until the process is killed.
func (p *fakeProcess) hang() int {
	<-p.killed
	return -1
}

// acquire takes lock, printing "blocked" every interval while it is held elsewhere.
func (p *fakeProcess) acquire(lock chan struct{}, interval time.Duration) bool {
	select {
	case lock <- struct{}{}:
		return true
	default:
	}
	if !p.say("blocked") {
		return false
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case lock <- struct{}{}:
			return true
		case <-p.killed:
			return false
		case <-ticker.C:
			if !p.say("blocked") {
				return false
			}
		}
	}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) ReadLine(maxBytes int) (string, error) {
	line, ok := <-p.out
	if !ok {
		return "", &domain.ProcessExitedError{Code: p.exitCode}
	}
	if len(line) > maxBytes {
		line = line[:maxBytes]
	}
	return line, nil
}

func (p *fakeProcess) WriteByte(b byte) error {
	select {
	case <-p.done:
		return &domain.StreamFaultError{Reason: "write stdin", Err: domain.ErrBrokenPipe}
	default:
	}
	select {
	case p.in <- b:
		return nil
	case <-p.done:
		return &domain.StreamFaultError{Reason: "write stdin", Err: domain.ErrBrokenPipe}
	}
}

func (p *fakeProcess) Communicate(b byte) (domain.ProcessResult, error) {
	if err := p.WriteByte(b); err != nil {
		return domain.ProcessResult{}, err
	}
	var sb strings.Builder
	for line := range p.out {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	<-p.done
	return domain.ProcessResult{ExitCode: p.exitCode, Stdout: sb.String(), Stderr: p.stderr}, nil
}

func (p *fakeProcess) Signal(os.Signal) error { return p.Kill() }

func (p *fakeProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProcess) Close() error {
	_ = p.Kill()
	// Drain lines nobody will read so the script can finish.
	for range p.out {
	}
	<-p.done
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	select {
	case <-p.killed:
		return true
	default:
		return false
	}
}

// fakeSpawner starts one scripted process per role.
type fakeSpawner struct {
	mu      sync.Mutex
	scripts map[domain.Role]script
	fail    map[domain.Role]error
	procs   map[domain.Role]*fakeProcess
	nextPID int
}

func newFakeSpawner(scripts map[domain.Role]script) *fakeSpawner {
	return &fakeSpawner{
		scripts: scripts,
		fail:    make(map[domain.Role]error),
		procs:   make(map[domain.Role]*fakeProcess),
		nextPID: 1000,
	}
}

func (s *fakeSpawner) Spawn(ctx context.Context, role domain.Role) (ports.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[role]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &domain.SpawnError{Command: "fake", Err: err}
	}
	s.nextPID++
	p := startFake(s.nextPID, s.scripts[role])
	s.procs[role] = p
	// Mirrors exec.CommandContext: cancellation kills the process.
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Kill()
		case <-p.done:
		}
	}()
	return p, nil
}

func (s *fakeSpawner) process(role domain.Role) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[role]
}

// lockTool behaves like a well-formed lock-test process.
func lockTool(lock chan struct{}) script {
	return func(p *fakeProcess) int {
		if !p.say("start", "pre-lock") || !p.await() {
			return -1
		}
		if !p.acquire(lock, 20*time.Millisecond) {
			return -1
		}
		if !p.say("holding-lock") || !p.await() {
			<-lock
			return -1
		}
		<-lock
		p.say("done")
		return 0
	}
}
