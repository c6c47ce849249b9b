package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/covey-labs/nest/internal/api"
	"github.com/covey-labs/nest/internal/config"
	"github.com/covey-labs/nest/internal/executor"
)

var serveBatchFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP job server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.ReadConfig()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec := executor.New(newRetriever(cfg),
			executor.WithWorkers(cfg.ExecutorWorkers()))
		if serveBatchFile != "" {
			if _, err := os.Stat(serveBatchFile); err == nil {
				if err := exec.LoadRequests(serveBatchFile); err != nil {
					return err
				}
			}
		}
		return api.Start(ctx, cfg.ListenAddress(), exec, serveBatchFile)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBatchFile, "batch-file", "", "persist the job queue to this file across restarts")
	rootCmd.AddCommand(serveCmd)
}
