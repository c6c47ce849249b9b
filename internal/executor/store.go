package executor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// PersistenceError reports a failed load or dump of the job file.
type PersistenceError struct {
	Op    string // "load" or "dump"
	Path  string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// writeJobs serializes jobs one per line and atomically replaces path: the
// records go to a temp file in the same directory which is then renamed
// over the target, so a concurrent reader never sees a partial file.
func writeJobs(path string, jobs []*Job) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jobs-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "dump", Path: path, Cause: err}
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, job := range jobs {
		line, err := json.Marshal(job)
		if err != nil {
			tmp.Close()
			return &PersistenceError{Op: "dump", Path: path, Cause: err}
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return &PersistenceError{Op: "dump", Path: path, Cause: err}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "dump", Path: path, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "dump", Path: path, Cause: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Op: "dump", Path: path, Cause: err}
	}
	logrus.Debugf("dumped %d jobs to %s", len(jobs), path)
	return nil
}

// readJobs parses every line of the job file. Any undecodable line fails
// the whole read, so a caller never works with half a file.
func readJobs(path string) ([]*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Cause: err}
	}
	defer f.Close()

	var jobs []*Job
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		job := &Job{}
		if err := json.Unmarshal([]byte(line), job); err != nil {
			return nil, &PersistenceError{Op: "load", Path: path, Cause: fmt.Errorf("line %d: %w", lineNo, err)}
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Cause: err}
	}
	logrus.Debugf("loaded %d jobs from %s", len(jobs), path)
	return jobs, nil
}
