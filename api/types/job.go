package types

// JobResponse is returned by the HTTP API when a request is accepted into
// the queue.
type JobResponse struct {
	UID string `json:"uid"`
}

// JobStatus describes one queued job to API clients.
type JobStatus struct {
	UID         string `json:"uid"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at,omitempty"`
	Exception   string `json:"exception,omitempty"`
}

type JobError struct {
	Error string `json:"error"`
}
