package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/covey-labs/nest/internal/executor"
)

// Start runs the HTTP surface over a request executor until ctx is
// cancelled. When batchFile is non-empty the queue is persisted there after
// every mutation, so a later batch run can resume it.
func Start(ctx context.Context, listenAddress string, exec *executor.Executor, batchFile string) error {
	e := newEcho(ctx, exec, batchFile)

	go func() {
		<-ctx.Done()
		if err := e.Close(); err != nil {
			e.Logger.Error("Failed to close server: ", err)
		}
	}()

	e.Logger.Info("Starting server on ", listenAddress)
	if err := e.Start(listenAddress); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newEcho(ctx context.Context, exec *executor.Executor, batchFile string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	default:
		e.Logger.SetLevel(log.INFO)
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", healthz)

	job := e.Group("/job")
	job.POST("", submit(exec, batchFile))
	job.GET("/:job_id", status(exec))

	e.GET("/jobs", list(exec))
	e.POST("/execute", execute(ctx, exec, batchFile))

	return e
}
