package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/covey-labs/nest/api/types"
	"github.com/covey-labs/nest/internal/executor"
	"github.com/covey-labs/nest/internal/request"
)

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// submit queues one retrieval request. The body is the request's tagged
// JSON encoding; the response carries the new job's id.
func submit(exec *executor.Executor, batchFile string) func(c echo.Context) error {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, types.JobError{Error: err.Error()})
		}

		req, err := request.Unmarshal(body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, types.JobError{Error: err.Error()})
		}

		job := exec.Submit(req)
		if batchFile != "" {
			if err := exec.DumpRequests(batchFile); err != nil {
				logrus.Errorf("failed to persist queue: %v", err)
				return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
			}
		}
		return c.JSON(http.StatusOK, types.JobResponse{UID: job.ID})
	}
}

func status(exec *executor.Executor) func(c echo.Context) error {
	return func(c echo.Context) error {
		job, ok := exec.Job(c.Param("job_id"))
		if !ok {
			return c.JSON(http.StatusNotFound, types.JobError{Error: "job not found"})
		}
		return c.JSON(http.StatusOK, jobStatus(job))
	}
}

func list(exec *executor.Executor) func(c echo.Context) error {
	return func(c echo.Context) error {
		jobs := exec.Snapshot()
		out := make([]types.JobStatus, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, jobStatus(job))
		}
		return c.JSON(http.StatusOK, out)
	}
}

// execute runs every pending job before responding. Per-job failures stay
// recorded on their jobs; the call itself only fails on cancellation or a
// persistence problem.
func execute(ctx context.Context, exec *executor.Executor, batchFile string) func(c echo.Context) error {
	return func(c echo.Context) error {
		if err := exec.ExecutePending(ctx); err != nil {
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
		}
		if batchFile != "" {
			if err := exec.DumpRequests(batchFile); err != nil {
				return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
			}
		}

		jobs := exec.Snapshot()
		out := make([]types.JobStatus, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, jobStatus(job))
		}
		return c.JSON(http.StatusOK, out)
	}
}

// jobStatus maps a job copy onto the API shape. Taking a value keeps the
// handler off the live job a worker may be mutating.
func jobStatus(job executor.Job) types.JobStatus {
	s := types.JobStatus{
		UID:       job.ID,
		Kind:      string(job.Request.Kind()),
		Status:    string(job.Status()),
		Exception: job.Exception,
	}
	if job.CompletedAt != nil {
		s.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return s
}
