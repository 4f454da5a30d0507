// gitcreds — SSH credential resolution and secret lifecycle for build jobs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gitcreds",
	Short: "gitcreds — SSH credential resolution and secret lifecycle for build jobs.",
	Long: `gitcreds binds stored SSH private keys to build steps. For each build it
selects a credential (user-scoped first, then system-scoped), materializes the
key and a GIT_SSH wrapper script for exactly the lifetime of the step, and
removes both at step end.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, execCmd, listCmd, addCmd, removeCmd, sweepCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
