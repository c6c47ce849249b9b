// Package main provides the nest command line tool: ad-hoc tweet
// retrieval, durable batch queues and a small job server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "nest",
	Short:         "Retrieve tweets, reply sets and conversation threads, one-off or as durable job batches",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
