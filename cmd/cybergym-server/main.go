package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cybergym-server",
	Short: "CyberGym PoC submission and verification server",
	Long: `cybergym-server receives proof-of-concept crash inputs from
benchmark agents, runs each one against the vulnerable and the patched
build of its task inside containers, and records the verdicts.

The serve command runs the server; the remaining commands are client
and operator tooling for a running instance.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cybergym-server version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(checksumCmd)
	rootCmd.AddCommand(genkeyCmd)
}
