package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "heal-orch",
		Short: "CI Heal Orchestrator - Autonomous test-healing pipeline",
		Long: `CI Heal Orchestrator clones a repository, runs its test suite in a
sandbox, diagnoses failures, applies LLM-generated fixes on a dedicated
branch, and pushes them until the suite passes or retries run out.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
