package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/request"
	"github.com/covey-labs/nest/internal/retriever"
)

// TweetRetriever produces a request's tweets as a stream. Satisfied by
// *retriever.Retriever.
type TweetRetriever interface {
	Retrieve(ctx context.Context, req request.Request) <-chan retriever.Result
}

// Sink receives every tweet a job retrieves, in stream order. A nil sink
// discards results (the retrieval is still driven to completion).
type Sink func(job *Job, tweet types.Tweet)

// Executor owns the ordered in-memory job list and runs pending jobs
// against the retriever. The list is the single source of truth during a
// run; the job file only changes via DumpRequests/LoadRequests.
type Executor struct {
	mu        sync.Mutex
	jobs      []*Job
	retriever TweetRetriever
	sink      Sink
	workers   int
}

type Option func(*Executor)

// WithWorkers sets how many jobs may run concurrently. With one worker
// (the default) jobs execute strictly in list order.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithSink(s Sink) Option {
	return func(e *Executor) { e.sink = s }
}

func New(r TweetRetriever, opts ...Option) *Executor {
	e := &Executor{retriever: r, workers: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit wraps the request in a fresh pending job and appends it to the
// list. No I/O happens here; call DumpRequests to persist.
func (e *Executor) Submit(req request.Request) *Job {
	job := &Job{ID: uuid.New().String(), Request: req}

	e.mu.Lock()
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()

	logrus.Debugf("submitted %s job %s", req.Kind(), job.ID)
	return job
}

// Jobs returns a snapshot of the list in submission order. The pointers
// share state with running workers; readers that may overlap an
// ExecutePending run should use Snapshot or Job instead.
func (e *Executor) Jobs() []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Job, len(e.jobs))
	copy(out, e.jobs)
	return out
}

// Snapshot returns value copies of every job, taken under the lock, so a
// reader never observes a terminal transition mid-write.
func (e *Executor) Snapshot() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, *j)
	}
	return out
}

// Job looks a job up by id and returns a value copy taken under the lock.
func (e *Executor) Job(id string) (Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, j := range e.jobs {
		if j.ID == id {
			return *j, true
		}
	}
	return Job{}, false
}

// DumpRequests writes every job to path, one record per line, in list
// order, replacing any previous contents atomically.
func (e *Executor) DumpRequests(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return writeJobs(path, e.jobs)
}

// LoadRequests reads the job file at path and merges it into the list:
// jobs already in memory stay first, then the file's jobs that are not
// already present by id, relative order preserved. On any error the
// in-memory list is left untouched.
func (e *Executor) LoadRequests(path string) error {
	loaded, err := readJobs(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	present := make(map[string]bool, len(e.jobs))
	for _, j := range e.jobs {
		present[j.ID] = true
	}
	for _, j := range loaded {
		if present[j.ID] {
			continue
		}
		present[j.ID] = true
		e.jobs = append(e.jobs, j)
	}
	return nil
}

// ExecutePending runs every pending job to its terminal state. Jobs are
// handed to the worker pool in list order; a job's failure is recorded on
// that job alone and the batch carries on. Terminal jobs are skipped, so
// calling ExecutePending again after a partial run only processes the
// remainder. Cancelling ctx stops between jobs and between pages; jobs
// interrupted mid-retrieval stay pending.
func (e *Executor) ExecutePending(ctx context.Context) error {
	e.mu.Lock()
	var pending []*Job
	for _, j := range e.jobs {
		if j.Pending() && !j.running {
			pending = append(pending, j)
		}
	}
	workers := e.workers
	e.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	logrus.Infof("executing %d pending jobs with %d workers", len(pending), workers)

	queue := make(chan *Job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				e.runJob(ctx, job)
			}
		}()
	}

feed:
	for _, job := range pending {
		select {
		case queue <- job:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	return ctx.Err()
}

// runJob drives one job's retrieval to completion and applies its terminal
// transition. Overlapping ExecutePending runs may hand the same job to two
// workers; the claim below makes every worker but the first a no-op, so each
// job is retrieved and mutated exactly once.
func (e *Executor) runJob(ctx context.Context, job *Job) {
	e.mu.Lock()
	if !job.Pending() || job.running {
		e.mu.Unlock()
		logrus.Debugf("job %s: already terminal or claimed, skipping", job.ID)
		return
	}
	job.running = true
	e.mu.Unlock()

	logrus.Infof("job %s: running %s request", job.ID, job.Request.Kind())

	var jobErr error
	count := 0
	for res := range e.retriever.Retrieve(ctx, job.Request) {
		if res.Err != nil {
			jobErr = res.Err
			continue
		}
		count++
		if e.sink != nil {
			e.sink(job, res.Tweet)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job.running = false
	switch {
	case jobErr == nil && ctx.Err() == nil:
		now := time.Now().UTC()
		job.CompletedAt = &now
		logrus.Infof("job %s: completed, %d tweets", job.ID, count)
	case jobErr == nil || errors.Is(jobErr, context.Canceled) || errors.Is(jobErr, context.DeadlineExceeded):
		// Aborted between pages; the job stays pending for the next run. A
		// stream that drained fully but raced a late cancellation also lands
		// here rather than risk a false completion.
		logrus.Warnf("job %s: aborted, leaving pending", job.ID)
	default:
		job.Exception = jobErr.Error()
		logrus.Errorf("job %s: failed: %v", job.ID, jobErr)
	}
}
