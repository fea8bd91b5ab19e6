package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aretw0/lockstep/internal/cli"
	"github.com/aretw0/lockstep/internal/config"
)

// exitCode carries the harness verdict out of cobra's RunE.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "lockstep [flags] <binaries-directory> <database-path>",
	Short: "Lockstep checks that a database write lock serialises two processes",
	Long: `Lockstep runs two instances of a lock-test tool against the same database and
steps them through a fixed protocol: the first takes the write lock, the second must
report that it is blocked, and only after the first releases may the second acquire it.

Exit status is 0 when the protocol completes and 1 on any violation, timeout,
companion failure or interruption.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd.Flags(), &cfg); err != nil {
			return err
		}

		debug, _ := cmd.Flags().GetBool("debug")
		report, _ := cmd.Flags().GetBool("report")

		exitCode, err = cli.Execute(context.Background(), cli.RunOptions{
			Binaries: args[0],
			Database: args[1],
			Config:   cfg,
			Debug:    debug,
			Report:   report,
			Stdout:   cmd.OutOrStdout(),
		})
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}

// applyFlags overrides file settings with every flag the user set explicitly.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	raw := map[string]any{}
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			raw[key] = f.Value.String()
		}
	})
	if len(raw) == 0 {
		return nil
	}
	return config.Decode(raw, cfg)
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"tool":            "tool",
	"tools":           "tools_file",
	"timeout":         "timeout",
	"poll":            "poll_interval",
	"stagger":         "stagger",
	"role":            "role",
	"run-id":          "run_id",
	"redis-url":       "redis_url",
	"combined-output": "combined_output",
	"status-addr":     "status_addr",
	"metrics-file":    "metrics_file",
	"log-level":       "log_level",
	"log-format":      "log_format",
}

func init() {
	defaults := config.Defaults()
	f := rootCmd.Flags()

	f.String("config", "lockstep.yaml", "Path to the configuration file")
	f.String("tool", defaults.Tool, "Lock-test executable name, looked up in the binaries directory")
	f.String("tools", "", "Tool registry (YAML or JSON) with commands, arguments and environment")
	f.Duration("timeout", defaults.Timeout, "Maximum time a process may go without progress")
	f.Duration("poll", defaults.PollInterval, "How often milestone waits re-check the shared state")
	f.Duration("stagger", defaults.Stagger, "Delay before starting the second contender")
	f.String("role", defaults.Role, "Roles to run in this process: both, first or second")
	f.String("run-id", "", "Run identifier shared by split-role harnesses (default: random)")
	f.String("redis-url", "", "Redis URL for the shared state (required for split roles)")
	f.Bool("combined-output", false, "Merge the tool's stderr into its stdout")
	f.String("status-addr", "", "Serve /healthz, /status and /metrics on this address during the run")
	f.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	f.String("log-level", defaults.LogLevel, "Log level: debug, info, warn or error")
	f.String("log-format", defaults.LogFormat, "Log format: text, json or auto")
	f.Bool("debug", false, "Debug logging with source locations")
	f.Bool("report", false, "Print a detailed report after the verdict")
}
