package process

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
)

// Spawner starts lock-test processes from a binaries directory.
// It implements ports.Spawner.
type Spawner struct {
	binaries string
	database string
	tool     ToolConfig
	logger   *slog.Logger
}

// SpawnerOption configures the spawner.
type SpawnerOption func(*Spawner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) SpawnerOption {
	return func(s *Spawner) {
		s.logger = logger
	}
}

// WithCombinedOutput merges stderr into stdout, as a shell "2>&1" would.
func WithCombinedOutput(combined bool) SpawnerOption {
	return func(s *Spawner) {
		s.tool.CombinedOutput = combined
	}
}

// NewSpawner creates a spawner that runs tool from binaries against database.
func NewSpawner(binaries string, tool ToolConfig, database string, opts ...SpawnerOption) *Spawner {
	s := &Spawner{
		binaries: binaries,
		database: database,
		tool:     tool,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Command returns the resolved executable path.
func (s *Spawner) Command() string {
	cmd := s.tool.Command
	if cmd == "" {
		cmd = s.tool.Name
	}
	// Bare names are looked up in the binaries directory; paths are used as given.
	if s.binaries != "" && !filepath.IsAbs(cmd) && !strings.ContainsRune(cmd, filepath.Separator) {
		cmd = filepath.Join(s.binaries, cmd)
	}
	if runtime.GOOS == "windows" && filepath.Ext(cmd) == "" {
		cmd += ".exe"
	}
	return cmd
}

// Spawn starts the tool for role with the database path as its positional argument.
func (s *Spawner) Spawn(ctx context.Context, role domain.Role) (ports.Process, error) {
	cfg := s.tool
	cfg.Command = s.Command()
	cfg.Environment = make(map[string]string, len(s.tool.Environment)+1)
	for k, v := range s.tool.Environment {
		cfg.Environment[k] = v
	}
	cfg.Environment["LOCKSTEP_ROLE"] = string(role)

	s.logger.Info("start process", "role", role, "command", cfg.Command, "args", append(append([]string{}, cfg.Args...), s.database))
	h, err := Spawn(ctx, cfg, s.database)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("process started", "role", role, "pid", h.PID())
	return h, nil
}
