package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maraichr/nightcrawler/internal/auth"
	"github.com/maraichr/nightcrawler/internal/reindex"
	"github.com/maraichr/nightcrawler/pkg/models"
)

// Dispatch modes.
const (
	ModeInline = "inline"
	ModeStream = "stream"
)

// Dispatcher accepts a reindex request and returns once it is accepted,
// before the work is done. A branch already being indexed yields
// reindex.ErrQueueAlreadyExists.
type Dispatcher interface {
	Dispatch(ctx context.Context, ref models.ProjectRef, trigger string) error
}

// InlineDispatcher claims the branch synchronously and runs the job on a
// Runner goroutine.
type InlineDispatcher struct {
	orch   *reindex.Orchestrator
	runner *Runner
	logger *slog.Logger
}

func NewInlineDispatcher(orch *reindex.Orchestrator, runner *Runner, logger *slog.Logger) *InlineDispatcher {
	return &InlineDispatcher{orch: orch, runner: runner, logger: logger}
}

var errShuttingDown = errors.New("runner is shutting down")

func (d *InlineDispatcher) Dispatch(ctx context.Context, ref models.ProjectRef, trigger string) error {
	job, err := d.orch.Claim(ctx, ref)
	if err != nil {
		return err
	}

	// The caller's credential outlives the request so gateway calls made by
	// the job are authorized as the caller.
	credential, hasCredential := auth.CredentialFrom(ctx)
	prepare := func(base context.Context) context.Context {
		if hasCredential {
			return auth.WithCredential(base, credential)
		}
		return base
	}

	started := d.runner.Go(prepare, func(runCtx context.Context) {
		// Run logs its own outcome.
		_ = job.Run(runCtx)
	})
	if !started {
		// Nothing will run the job; Run on a cancelled context releases the
		// lock without touching the gateway.
		cancelled, cancel := context.WithCancel(context.WithoutCancel(ctx))
		cancel()
		_ = job.Run(cancelled)
		return fmt.Errorf("dispatch %s: %w", ref, errShuttingDown)
	}

	d.logger.Debug("reindex dispatched inline",
		slog.String("project_id", ref.ProjectID),
		slog.String("branch", ref.BranchName),
		slog.String("trigger", trigger))
	return nil
}

// StatusReader answers progress queries.
type StatusReader interface {
	Status(ctx context.Context, ref models.ProjectRef) (models.QueueStatus, error)
}

// StreamDispatcher publishes requests to the worker stream. The in-flight
// check is advisory: the worker's claim is the one that excludes.
type StreamDispatcher struct {
	status   StatusReader
	enqueuer Enqueuer
	logger   *slog.Logger
}

func NewStreamDispatcher(status StatusReader, enqueuer Enqueuer, logger *slog.Logger) *StreamDispatcher {
	return &StreamDispatcher{status: status, enqueuer: enqueuer, logger: logger}
}

func (d *StreamDispatcher) Dispatch(ctx context.Context, ref models.ProjectRef, trigger string) error {
	status, err := d.status.Status(ctx, ref)
	if err != nil {
		return err
	}
	if status.State == models.IndexStatusIndexing {
		return fmt.Errorf("%w: project %s, branch %s", reindex.ErrQueueAlreadyExists, ref.ProjectID, ref.BranchName)
	}

	msg := NewReindexMessage(ref, trigger)
	id, err := d.enqueuer.Enqueue(ctx, msg)
	if err != nil {
		return fmt.Errorf("enqueue reindex %s: %w", ref, err)
	}

	d.logger.Info("reindex enqueued",
		slog.String("project_id", ref.ProjectID),
		slog.String("branch", ref.BranchName),
		slog.String("trigger", trigger),
		slog.String("stream_id", id),
		slog.String("request_id", msg.ID.String()))
	return nil
}

// Handler returns the worker-side handler for stream messages. A branch
// that is already being indexed is skipped without error.
func Handler(orch *reindex.Orchestrator, logger *slog.Logger) func(context.Context, ReindexMessage) error {
	return func(ctx context.Context, msg ReindexMessage) error {
		err := orch.Trigger(ctx, msg.Ref())
		if errors.Is(err, reindex.ErrQueueAlreadyExists) {
			logger.Info("reindex skipped, branch already indexing",
				slog.String("project_id", msg.ProjectID),
				slog.String("branch", msg.BranchName),
				slog.String("request_id", msg.ID.String()))
			return nil
		}
		return err
	}
}
