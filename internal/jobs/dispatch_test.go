package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maraichr/nightcrawler/internal/auth"
	"github.com/maraichr/nightcrawler/internal/reindex"
	"github.com/maraichr/nightcrawler/internal/store/memory"
	"github.com/maraichr/nightcrawler/pkg/models"
)

var testRef = models.ProjectRef{ProjectID: "handbook", BranchName: "main"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gatedGateway blocks GetProject until release is closed and records the
// credential each call carried.
type gatedGateway struct {
	release chan struct{}

	mu          sync.Mutex
	credentials []string
	uploads     int
}

func newGatedGateway() *gatedGateway {
	return &gatedGateway{release: make(chan struct{})}
}

func (g *gatedGateway) seen(ctx context.Context) {
	cred, _ := auth.CredentialFrom(ctx)
	g.mu.Lock()
	g.credentials = append(g.credentials, cred)
	g.mu.Unlock()
}

func (g *gatedGateway) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	g.seen(ctx)
	select {
	case <-g.release:
	case <-ctx.Done():
		return models.Project{}, ctx.Err()
	}
	return models.Project{ID: projectID, Name: "Handbook"}, nil
}

func (g *gatedGateway) ListDocuments(ctx context.Context, projectID, branchName string) ([]models.Document, error) {
	g.seen(ctx)
	return []models.Document{{URI: "a.md"}}, nil
}

func (g *gatedGateway) GetDocumentContent(ctx context.Context, projectID, branchName string, doc models.Document) (string, error) {
	g.seen(ctx)
	return "hello", nil
}

func (g *gatedGateway) RemoveIndex(ctx context.Context, projectID, branchName string) error {
	g.seen(ctx)
	return nil
}

func (g *gatedGateway) UploadIndex(ctx context.Context, projectID, branchName string, record models.IndexRecord) error {
	g.seen(ctx)
	g.mu.Lock()
	g.uploads++
	g.mu.Unlock()
	return nil
}

func TestInlineDispatcher_ClaimsThenRunsInBackground(t *testing.T) {
	store := memory.NewStatusStore()
	gw := newGatedGateway()
	orch := reindex.NewOrchestrator(store, gw, discardLogger())
	runner := NewRunner(discardLogger())
	d := NewInlineDispatcher(orch, runner, discardLogger())

	ctx := auth.WithCredential(context.Background(), "Bearer caller")
	reqCtx, cancelReq := context.WithCancel(ctx)
	require.NoError(t, d.Dispatch(reqCtx, testRef, TriggerManual))
	// The request ending must not stop the job.
	cancelReq()

	status, err := orch.Status(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStatusIndexing, status.State)

	err = d.Dispatch(context.Background(), testRef, TriggerManual)
	require.ErrorIs(t, err, reindex.ErrQueueAlreadyExists)

	close(gw.release)
	require.NoError(t, runner.Shutdown(context.Background()))

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, gw.uploads)
	for _, cred := range gw.credentials {
		assert.Equal(t, "Bearer caller", cred)
	}
}

func TestInlineDispatcher_AfterShutdownReleasesClaim(t *testing.T) {
	store := memory.NewStatusStore()
	gw := newGatedGateway()
	orch := reindex.NewOrchestrator(store, gw, discardLogger())
	runner := NewRunner(discardLogger())
	require.NoError(t, runner.Shutdown(context.Background()))

	d := NewInlineDispatcher(orch, runner, discardLogger())
	err := d.Dispatch(context.Background(), testRef, TriggerManual)
	require.Error(t, err)

	assert.Equal(t, 0, store.Len())
	assert.Empty(t, gw.credentials)
}

func TestRunner_ShutdownCancelsAfterDeadline(t *testing.T) {
	store := memory.NewStatusStore()
	gw := newGatedGateway()
	orch := reindex.NewOrchestrator(store, gw, discardLogger())
	runner := NewRunner(discardLogger())
	d := NewInlineDispatcher(orch, runner, discardLogger())

	require.NoError(t, d.Dispatch(context.Background(), testRef, TriggerManual))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := runner.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The cancelled job released its lock before Shutdown returned.
	assert.Equal(t, 0, store.Len())
	assert.Zero(t, gw.uploads)
}

type fakeEnqueuer struct {
	msgs []ReindexMessage
	err  error
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, msg ReindexMessage) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.msgs = append(e.msgs, msg)
	return "1-0", nil
}

func TestStreamDispatcher(t *testing.T) {
	store := memory.NewStatusStore()
	orch := reindex.NewOrchestrator(store, newGatedGateway(), discardLogger())
	enq := &fakeEnqueuer{}
	d := NewStreamDispatcher(orch, enq, discardLogger())
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, testRef, TriggerSchedule))
	require.Len(t, enq.msgs, 1)
	assert.Equal(t, testRef, enq.msgs[0].Ref())
	assert.Equal(t, TriggerSchedule, enq.msgs[0].Trigger)
	assert.NotEqual(t, enq.msgs[0].ID.String(), "00000000-0000-0000-0000-000000000000")

	// A branch already indexing is refused up front.
	_, err := store.TryAcquire(ctx, testRef.Key(), "other-job", models.NewQueueStatus(testRef, time.Now()))
	require.NoError(t, err)
	err = d.Dispatch(ctx, testRef, TriggerManual)
	require.ErrorIs(t, err, reindex.ErrQueueAlreadyExists)
	assert.Len(t, enq.msgs, 1)
}

func TestStreamDispatcher_EnqueueError(t *testing.T) {
	orch := reindex.NewOrchestrator(memory.NewStatusStore(), newGatedGateway(), discardLogger())
	boom := errors.New("valkey down")
	d := NewStreamDispatcher(orch, &fakeEnqueuer{err: boom}, discardLogger())

	err := d.Dispatch(context.Background(), testRef, TriggerManual)
	assert.ErrorIs(t, err, boom)
}

func TestHandler(t *testing.T) {
	store := memory.NewStatusStore()
	gw := newGatedGateway()
	close(gw.release)
	orch := reindex.NewOrchestrator(store, gw, discardLogger())
	handle := Handler(orch, discardLogger())
	ctx := context.Background()

	require.NoError(t, handle(ctx, NewReindexMessage(testRef, TriggerManual)))
	assert.Equal(t, 1, gw.uploads)

	// Busy branch is skipped, not failed.
	_, err := store.TryAcquire(ctx, testRef.Key(), "other-job", models.NewQueueStatus(testRef, time.Now()))
	require.NoError(t, err)
	require.NoError(t, handle(ctx, NewReindexMessage(testRef, TriggerManual)))
	assert.Equal(t, 1, gw.uploads)
}

func TestStreamDispatch_WorkerDoesNotForwardCallerCredential(t *testing.T) {
	store := memory.NewStatusStore()
	gw := newGatedGateway()
	close(gw.release)
	orch := reindex.NewOrchestrator(store, gw, discardLogger())
	enq := &fakeEnqueuer{}
	d := NewStreamDispatcher(orch, enq, discardLogger())

	ctx := auth.WithCredential(context.Background(), "Bearer user-token")
	require.NoError(t, d.Dispatch(ctx, testRef, TriggerManual))
	require.Len(t, enq.msgs, 1)

	raw, err := json.Marshal(enq.msgs[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "user-token", "credentials never go on the stream")

	// The worker runs with its own context, so the gateway client falls back
	// to the service secret.
	require.NoError(t, Handler(orch, discardLogger())(context.Background(), enq.msgs[0]))
	require.NotEmpty(t, gw.credentials)
	for _, cred := range gw.credentials {
		assert.Empty(t, cred)
	}
}
