package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maraichr/nightcrawler/internal/reindex"
	"github.com/maraichr/nightcrawler/pkg/models"
)

// Scheduler dispatches a reindex of every target once at start and then on
// every interval tick.
type Scheduler struct {
	dispatcher Dispatcher
	targets    []models.ProjectRef
	interval   time.Duration
	logger     *slog.Logger
}

func NewScheduler(dispatcher Dispatcher, targets []models.ProjectRef, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{dispatcher: dispatcher, targets: targets, interval: interval, logger: logger}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.dispatchAll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) dispatchAll(ctx context.Context) {
	for _, ref := range s.targets {
		if ctx.Err() != nil {
			return
		}
		err := s.dispatcher.Dispatch(ctx, ref, TriggerSchedule)
		switch {
		case err == nil:
		case errors.Is(err, reindex.ErrQueueAlreadyExists):
			s.logger.Info("scheduled reindex skipped, branch already indexing",
				slog.String("project_id", ref.ProjectID),
				slog.String("branch", ref.BranchName))
		default:
			s.logger.Error("scheduled reindex failed",
				slog.String("project_id", ref.ProjectID),
				slog.String("branch", ref.BranchName),
				slog.String("error", err.Error()))
		}
	}
}
