// Package checkpoint implements the crawl's shutdown and lifecycle
// controller: translating an OS interrupt into a bounded, graceful
// drain of the worker pool instead of an abrupt kill, and mapping the
// outcome onto the process exit codes the CLI reports.
package checkpoint

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fetchward/crawlkit/internal/config"
	"github.com/fetchward/crawlkit/internal/metadata"
)

// ExitCode mirrors the outer CLI's process exit contract.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitFatal        ExitCode = 1
	ExitInvalidInput ExitCode = 2
	ExitInterrupted  ExitCode = 130
)

// RunFunc adapts a scheduler's crawl entrypoint to the controller's
// narrow needs: run to completion against cfg, report how many
// artifacts were written, and surface any terminal error. Callers
// close over their concrete scheduler (and its CrawlingExecution
// result type) to build one of these; ctx is the signal-bound context
// the run should propagate into blocking operations (fetches, sleeps)
// so an interrupt actually cuts them short rather than only racing the
// grace-period timer.
type RunFunc func(ctx context.Context, cfg config.Config) (artifactCount int, err error)

// Controller is the signal-driven lifecycle wrapper around a crawl
// run. It installs a cancellable context tied to SIGINT/SIGTERM so an
// operator-initiated interrupt drains in-flight workers instead of
// abandoning partially-written artifacts, then gives the run a bounded
// grace period (cfg.ShutdownGracePeriod) before treating it as
// non-graceful.
type Controller struct {
	sink metadata.MetadataSink
}

func NewController(sink metadata.MetadataSink) *Controller {
	if sink == nil {
		sink = metadata.NoopSink{}
	}
	return &Controller{sink: sink}
}

// Run executes the crawl under signal-driven shutdown control. It
// returns the mapped process exit code, the underlying error (nil on
// success), and whether the run was cut short by a shutdown signal.
func (c *Controller) Run(run RunFunc, cfg config.Config) (ExitCode, error, bool) {
	notifyCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	type outcome struct {
		artifactCount int
		err           error
	}
	done := make(chan outcome, 1)

	go func() {
		artifactCount, err := run(notifyCtx, cfg)
		done <- outcome{artifactCount: artifactCount, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return c.exitCodeForError(o.err), o.err, false
		}
		return ExitSuccess, nil, false

	case <-notifyCtx.Done():
		// A signal arrived; notifyCtx is now done, which the run
		// observes (it was handed the same ctx) and should use to
		// wind down in-flight work. We just bound how long we wait
		// for that drain before giving up on a graceful exit.
		grace := cfg.ShutdownGracePeriod()
		if grace <= 0 {
			grace = 10 * time.Second
		}
		select {
		case o := <-done:
			if o.err != nil {
				return c.exitCodeForError(o.err), o.err, true
			}
			return ExitInterrupted, nil, true
		case <-time.After(grace):
			c.sink.RecordError(
				time.Now(),
				"checkpoint",
				"Run",
				metadata.CauseNetworkFailure,
				"shutdown grace period exceeded before worker pool drained",
				nil,
			)
			return ExitInterrupted, nil, true
		}
	}
}

func (c *Controller) exitCodeForError(err error) ExitCode {
	if errors.Is(err, config.ErrInvalidConfig) {
		return ExitInvalidInput
	}
	return ExitFatal
}
