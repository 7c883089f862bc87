package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/nightcrawler/internal/document"
	"github.com/maraichr/nightcrawler/pkg/models"
)

const defaultReleaseTimeout = 10 * time.Second

// Orchestrator runs reindex jobs and answers status queries.
type Orchestrator struct {
	store          StatusStore
	gateway        Gateway
	logger         *slog.Logger
	now            func() time.Time
	releaseTimeout time.Duration
}

func NewOrchestrator(store StatusStore, gateway Gateway, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:          store,
		gateway:        gateway,
		logger:         logger,
		now:            time.Now,
		releaseTimeout: defaultReleaseTimeout,
	}
}

// Trigger claims the branch and runs the whole pipeline before returning.
// It fails with ErrQueueAlreadyExists when a job for the branch is in flight.
func (o *Orchestrator) Trigger(ctx context.Context, ref models.ProjectRef) error {
	job, err := o.Claim(ctx, ref)
	if err != nil {
		return err
	}
	return job.Run(ctx)
}

// Claim acquires the branch lock under a fresh owner token and publishes the
// initial snapshot. The returned job holds the lock until its Run returns, so
// callers must Run it.
func (o *Orchestrator) Claim(ctx context.Context, ref models.ProjectRef) (*Job, error) {
	key := ref.Key()
	owner := uuid.NewString()
	status := models.NewQueueStatus(ref, o.now())

	acquired, err := o.store.TryAcquire(ctx, key, owner, status)
	if err != nil {
		return nil, fmt.Errorf("acquire queue %s: %w", key, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: project %s, branch %s", ErrQueueAlreadyExists, ref.ProjectID, ref.BranchName)
	}

	o.logger.Info("reindex queued",
		slog.String("project_id", ref.ProjectID),
		slog.String("branch", ref.BranchName))

	return &Job{o: o, ref: ref, key: key, owner: owner, status: status}, nil
}

// Status returns the snapshot of the job running for ref, or an Unknown
// status when nothing is in flight.
func (o *Orchestrator) Status(ctx context.Context, ref models.ProjectRef) (models.QueueStatus, error) {
	return NewStatusReader(o.store).Status(ctx, ref)
}

// StatusReader answers progress queries straight from a StatusStore, for
// processes that never run jobs themselves.
type StatusReader struct {
	store StatusStore
}

func NewStatusReader(store StatusStore) *StatusReader {
	return &StatusReader{store: store}
}

func (r *StatusReader) Status(ctx context.Context, ref models.ProjectRef) (models.QueueStatus, error) {
	status, ok, err := r.store.Get(ctx, ref.Key())
	if err != nil {
		return models.QueueStatus{}, fmt.Errorf("get queue status %s: %w", ref.Key(), err)
	}
	if !ok {
		return models.UnknownQueueStatus(ref), nil
	}
	return status, nil
}

// Job is a claimed reindex of one branch.
type Job struct {
	o      *Orchestrator
	ref    models.ProjectRef
	key    string
	owner  string
	status models.QueueStatus
	ran    atomic.Bool
}

// Ref returns the branch the job is indexing.
func (j *Job) Ref() models.ProjectRef { return j.ref }

// Run executes the pipeline and releases the lock, whatever the outcome.
// A job runs at most once.
func (j *Job) Run(ctx context.Context) (err error) {
	if !j.ran.CompareAndSwap(false, true) {
		return fmt.Errorf("reindex job %s already ran", j.key)
	}

	start := time.Now()
	defer func() {
		if relErr := j.release(ctx); relErr != nil {
			err = errors.Join(err, relErr)
		}
		if err != nil {
			j.o.logger.Error("reindex failed",
				slog.String("project_id", j.ref.ProjectID),
				slog.String("branch", j.ref.BranchName),
				slog.Int("indexed", j.status.DocumentsIndexed),
				slog.String("error", err.Error()))
			return
		}
		j.o.logger.Info("reindex finished",
			slog.String("project_id", j.ref.ProjectID),
			slog.String("branch", j.ref.BranchName),
			slog.Int("documents", j.status.DocumentsIndexed),
			slog.Duration("duration", time.Since(start)))
	}()

	return j.index(ctx)
}

func (j *Job) index(ctx context.Context) error {
	gw := j.o.gateway
	projectID, branch := j.ref.ProjectID, j.ref.BranchName

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reindex interrupted: %w", err)
	}

	project, err := gw.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}

	docs, err := gw.ListDocuments(ctx, projectID, branch)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	total := len(docs)
	j.status.DocumentsTotal = &total
	if err := j.persist(ctx); err != nil {
		return err
	}

	j.o.logger.Info("removing index",
		slog.String("project_id", projectID),
		slog.String("branch", branch))
	if err := gw.RemoveIndex(ctx, projectID, branch); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reindex interrupted: %w", err)
		}

		if document.Indexable(doc) {
			j.o.logger.Debug("indexing file", slog.String("uri", doc.URI))

			content, err := gw.GetDocumentContent(ctx, projectID, branch, doc)
			if err != nil {
				return fmt.Errorf("get content of %s: %w", doc.URI, err)
			}

			record := document.Build(j.ref, project, doc, content)
			if err := gw.UploadIndex(ctx, projectID, branch, record); err != nil {
				return fmt.Errorf("upload %s: %w", doc.URI, err)
			}
		}

		j.status.DocumentsIndexed++
		if err := j.persist(ctx); err != nil {
			return err
		}
	}
	return nil
}

// persist writes the snapshot. A lock taken over by another job (after the
// entry expired) aborts this one with ErrLockLost.
func (j *Job) persist(ctx context.Context) error {
	held, err := j.o.store.Update(ctx, j.key, j.owner, j.status)
	if err != nil {
		return fmt.Errorf("update queue status %s: %w", j.key, err)
	}
	if !held {
		return fmt.Errorf("update queue status %s: %w", j.key, ErrLockLost)
	}
	return nil
}

// release deletes the status entry even when ctx is already cancelled. An
// entry owned by another job is left alone.
func (j *Job) release(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.o.releaseTimeout)
	defer cancel()

	if err := j.o.store.Release(rctx, j.key, j.owner); err != nil {
		return fmt.Errorf("release queue %s: %w", j.key, err)
	}
	return nil
}
