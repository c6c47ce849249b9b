package executor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/covey-labs/nest/internal/request"
)

// Status is the lifecycle state of a job. Pending jobs move to exactly one
// of Completed or Failed; both are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Job is one queued retrieval: an immutable request plus its execution
// outcome. Jobs are never deleted; a terminal job stays in the queue as
// history.
type Job struct {
	ID          string
	Request     request.Request
	CompletedAt *time.Time
	Exception   string

	// set while a worker owns the job; guarded by the executor's mutex
	running bool
}

// Status derives the lifecycle state from the outcome fields. A job is
// pending exactly when neither terminal field is set; they are never both
// set.
func (j *Job) Status() Status {
	switch {
	case j.Exception != "":
		return StatusFailed
	case j.CompletedAt != nil:
		return StatusCompleted
	default:
		return StatusPending
	}
}

func (j *Job) Pending() bool { return j.Status() == StatusPending }

// jobRecord is the persisted line format: one self-describing JSON object
// per job, with the request in its tagged encoding.
type jobRecord struct {
	ID          string          `json:"id"`
	Request     json.RawMessage `json:"request"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Exception   string          `json:"exception,omitempty"`
}

func (j *Job) MarshalJSON() ([]byte, error) {
	req, err := request.Marshal(j.Request)
	if err != nil {
		return nil, fmt.Errorf("encoding job %s: %w", j.ID, err)
	}
	return json.Marshal(jobRecord{
		ID:          j.ID,
		Request:     req,
		CompletedAt: j.CompletedAt,
		Exception:   j.Exception,
	})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("job record has no id")
	}
	req, err := request.Unmarshal(rec.Request)
	if err != nil {
		return fmt.Errorf("job %s: %w", rec.ID, err)
	}
	if rec.CompletedAt != nil && rec.Exception != "" {
		return fmt.Errorf("job %s: both completed_at and exception are set", rec.ID)
	}
	j.ID = rec.ID
	j.Request = req
	j.CompletedAt = rec.CompletedAt
	j.Exception = rec.Exception
	return nil
}
