package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/lockstep"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of lockstep",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lockstep version %s\n", strings.TrimSpace(lockstep.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
