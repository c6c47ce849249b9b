package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/config"
	"github.com/covey-labs/nest/internal/executor"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Execute the pending jobs of a job file and record the outcomes",
	Long: "Execute the pending jobs of a job file and record the outcomes.\n" +
		"Each job's tweets go to <job-id>.jsonl next to the job file. Terminal\n" +
		"jobs are skipped, so an interrupted batch can simply be run again.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.ReadConfig()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results := &resultFiles{dir: filepath.Dir(batchFile)}
		defer results.close()

		exec := executor.New(newRetriever(cfg),
			executor.WithWorkers(cfg.ExecutorWorkers()),
			executor.WithSink(results.write))
		if err := exec.LoadRequests(batchFile); err != nil {
			return err
		}

		execErr := exec.ExecutePending(ctx)
		if err := exec.DumpRequests(batchFile); err != nil {
			return err
		}
		return execErr
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "job file to execute (required)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// resultFiles writes each job's tweets to its own JSON-lines file. The first
// tweet of a job within a run truncates the file, so a job that was
// interrupted mid-retrieval and stayed pending starts clean on the rerun.
type resultFiles struct {
	mu    sync.Mutex
	dir   string
	files map[string]*os.File
}

func (w *resultFiles) write(job *executor.Job, tweet types.Tweet) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[job.ID]
	if !ok {
		path := filepath.Join(w.dir, job.ID+".jsonl")
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logrus.Errorf("job %s: cannot open result file: %v", job.ID, err)
			return
		}
		if w.files == nil {
			w.files = map[string]*os.File{}
		}
		w.files[job.ID] = f
	}

	if err := json.NewEncoder(f).Encode(tweet); err != nil {
		logrus.Errorf("job %s: cannot write result: %v", job.ID, err)
	}
}

func (w *resultFiles) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, f := range w.files {
		if err := f.Close(); err != nil {
			logrus.Errorf("job %s: closing result file: %v", id, err)
		}
	}
	w.files = nil
}
