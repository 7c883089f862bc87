package reindex

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maraichr/nightcrawler/internal/store/memory"
	"github.com/maraichr/nightcrawler/pkg/models"
)

var testRef = models.ProjectRef{ProjectID: "handbook", BranchName: "main"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway records calls and fails on demand.
type fakeGateway struct {
	mu sync.Mutex

	project models.Project
	docs    []models.Document
	content map[string]string

	projectErr error
	listErr    error
	removeErr  error
	contentErr map[string]error
	uploadErr  map[string]error

	// blockProject, when set, is waited on inside GetProject.
	blockProject chan struct{}
	onUpload     func(models.IndexRecord)

	contentCalls []string
	uploads      []models.IndexRecord
	removeCalls  int
	listCalls    int
}

func (g *fakeGateway) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	if g.blockProject != nil {
		<-g.blockProject
	}
	if g.projectErr != nil {
		return models.Project{}, g.projectErr
	}
	return g.project, nil
}

func (g *fakeGateway) ListDocuments(ctx context.Context, projectID, branchName string) ([]models.Document, error) {
	g.mu.Lock()
	g.listCalls++
	g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.docs, nil
}

func (g *fakeGateway) GetDocumentContent(ctx context.Context, projectID, branchName string, doc models.Document) (string, error) {
	g.mu.Lock()
	g.contentCalls = append(g.contentCalls, doc.URI)
	g.mu.Unlock()
	if err := g.contentErr[doc.URI]; err != nil {
		return "", err
	}
	return g.content[doc.URI], nil
}

func (g *fakeGateway) RemoveIndex(ctx context.Context, projectID, branchName string) error {
	g.mu.Lock()
	g.removeCalls++
	g.mu.Unlock()
	return g.removeErr
}

func (g *fakeGateway) UploadIndex(ctx context.Context, projectID, branchName string, record models.IndexRecord) error {
	g.mu.Lock()
	g.uploads = append(g.uploads, record)
	g.mu.Unlock()
	if g.onUpload != nil {
		g.onUpload(record)
	}
	if err := g.uploadErr[record.URL]; err != nil {
		return err
	}
	return nil
}

// recordingStore keeps every snapshot written through it.
type recordingStore struct {
	*memory.StatusStore
	mu        sync.Mutex
	snapshots []models.QueueStatus
	released  []string
	// rejectCancelled makes Release fail for cancelled contexts.
	rejectCancelled bool
	acquireErr      error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{StatusStore: memory.NewStatusStore()}
}

func (s *recordingStore) TryAcquire(ctx context.Context, key, owner string, status models.QueueStatus) (bool, error) {
	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	ok, err := s.StatusStore.TryAcquire(ctx, key, owner, status)
	if ok {
		s.record(status)
	}
	return ok, err
}

func (s *recordingStore) Update(ctx context.Context, key, owner string, status models.QueueStatus) (bool, error) {
	s.record(status)
	return s.StatusStore.Update(ctx, key, owner, status)
}

func (s *recordingStore) Release(ctx context.Context, key, owner string) error {
	if s.rejectCancelled && ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	s.released = append(s.released, key)
	s.mu.Unlock()
	return s.StatusStore.Release(ctx, key, owner)
}

func (s *recordingStore) record(status models.QueueStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status.DocumentsTotal != nil {
		total := *status.DocumentsTotal
		status.DocumentsTotal = &total
	}
	s.snapshots = append(s.snapshots, status)
}

func newOrchestrator(store StatusStore, gw Gateway) *Orchestrator {
	o := NewOrchestrator(store, gw, discardLogger())
	o.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }
	return o
}

func TestTrigger_IndexesMarkdownInOrder(t *testing.T) {
	gw := &fakeGateway{
		project: models.Project{ID: "handbook", Name: "Handbook", Tags: []string{"a", "b"}},
		docs: []models.Document{
			{URI: "intro.md"},
			{URI: "img/logo.png"},
			{URI: "guides/setup_guide.md"},
			{URI: "README.MD"},
		},
		content: map[string]string{
			"intro.md":              "<p>Welcome</p>",
			"guides/setup_guide.md": "<h1>Setup</h1><p>Run it.</p>",
		},
	}
	store := newRecordingStore()
	o := newOrchestrator(store, gw)

	require.NoError(t, o.Trigger(context.Background(), testRef))

	assert.Equal(t, []string{"intro.md", "guides/setup_guide.md"}, gw.contentCalls)
	require.Len(t, gw.uploads, 2)
	assert.Equal(t, models.IndexRecord{
		ID:          "intromd",
		ProjectID:   "handbook",
		BranchName:  "main",
		ProjectName: "Handbook",
		Title:       "Intro",
		URL:         "intro.md",
		Content:     "Welcome",
		Tags:        []string{"a", "b"},
	}, gw.uploads[0])
	assert.Equal(t, "Setup guide", gw.uploads[1].Title)
	assert.Equal(t, "Setup Run it.", gw.uploads[1].Content)
	assert.Equal(t, 1, gw.removeCalls)

	assert.Zero(t, store.Len(), "status entry must be removed after the job")
	assert.Equal(t, []string{"handbook#main"}, store.released)
}

func TestTrigger_ProgressIsMonotonic(t *testing.T) {
	gw := &fakeGateway{
		project: models.Project{ID: "handbook"},
		docs:    []models.Document{{URI: "a.md"}, {URI: "b.txt"}, {URI: "c.md"}},
	}
	store := newRecordingStore()
	o := newOrchestrator(store, gw)

	require.NoError(t, o.Trigger(context.Background(), testRef))

	snaps := store.snapshots
	require.Len(t, snaps, 5, "initial, total, and one per document")

	first := snaps[0]
	assert.Equal(t, models.IndexStatusIndexing, first.State)
	assert.Zero(t, first.DocumentsIndexed)
	assert.Nil(t, first.DocumentsTotal)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC), first.StartTime)

	for i := 1; i < len(snaps); i++ {
		assert.GreaterOrEqual(t, snaps[i].DocumentsIndexed, snaps[i-1].DocumentsIndexed)
		require.NotNil(t, snaps[i].DocumentsTotal)
		assert.Equal(t, 3, *snaps[i].DocumentsTotal)
		assert.Equal(t, first.StartTime, snaps[i].StartTime)
	}
	last := snaps[len(snaps)-1]
	assert.Equal(t, *last.DocumentsTotal, last.DocumentsIndexed)
}

func TestTrigger_RejectsConcurrentJobForSameBranch(t *testing.T) {
	gw := &fakeGateway{
		project:      models.Project{ID: "handbook"},
		docs:         []models.Document{{URI: "a.md"}},
		blockProject: make(chan struct{}),
	}
	store := newRecordingStore()
	o := newOrchestrator(store, gw)

	first := make(chan error, 1)
	go func() { first <- o.Trigger(context.Background(), testRef) }()

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, time.Millisecond)

	err := o.Trigger(context.Background(), testRef)
	require.ErrorIs(t, err, ErrQueueAlreadyExists)

	close(gw.blockProject)
	require.NoError(t, <-first)
	assert.Zero(t, store.Len())
}

func TestTrigger_DifferentBranchesRunIndependently(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{
		project:      models.Project{ID: "handbook"},
		blockProject: block,
	}
	store := newRecordingStore()
	o := newOrchestrator(store, gw)

	errs := make(chan error, 2)
	go func() { errs <- o.Trigger(context.Background(), testRef) }()
	go func() {
		errs <- o.Trigger(context.Background(), models.ProjectRef{ProjectID: "handbook", BranchName: "develop"})
	}()

	require.Eventually(t, func() bool { return store.Len() == 2 }, time.Second, time.Millisecond)
	close(block)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestTrigger_UploadFailureAbortsAndReleases(t *testing.T) {
	uploadErr := &GatewayError{Kind: ErrUploadDocumentFailed, StatusCode: 500, Body: "boom"}
	gw := &fakeGateway{
		project:   models.Project{ID: "handbook"},
		docs:      []models.Document{{URI: "a.md"}, {URI: "b.md"}, {URI: "c.md"}},
		uploadErr: map[string]error{"b.md": uploadErr},
	}
	store := newRecordingStore()
	o := newOrchestrator(store, gw)

	err := o.Trigger(context.Background(), testRef)
	require.ErrorIs(t, err, ErrUploadDocumentFailed)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 500, gwErr.StatusCode)

	assert.Equal(t, []string{"a.md", "b.md"}, gw.contentCalls, "documents after the failure must not be fetched")
	assert.Len(t, gw.uploads, 2)
	assert.Zero(t, store.Len())

	last := store.snapshots[len(store.snapshots)-1]
	assert.Equal(t, 1, last.DocumentsIndexed)
}

func TestTrigger_FailuresAreFatal(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeGateway)
		wantErr   error
		wantList  int
		wantRem   int
		wantFetch int
	}{
		{
			name:    "project data",
			setup:   func(g *fakeGateway) { g.projectErr = &GatewayError{Kind: ErrDownloadProjectData, StatusCode: 404} },
			wantErr: ErrDownloadProjectData,
		},
		{
			name:     "documents list",
			setup:    func(g *fakeGateway) { g.listErr = &GatewayError{Kind: ErrDownloadDocuments, StatusCode: 502} },
			wantErr:  ErrDownloadDocuments,
			wantList: 1,
		},
		{
			name:     "remove index",
			setup:    func(g *fakeGateway) { g.removeErr = &GatewayError{Kind: ErrRemoveIndexFailed, StatusCode: 500} },
			wantErr:  ErrRemoveIndexFailed,
			wantList: 1,
			wantRem:  1,
		},
		{
			name: "document content",
			setup: func(g *fakeGateway) {
				g.contentErr = map[string]error{"a.md": &GatewayError{Kind: ErrDownloadDocumentContent, Err: io.ErrUnexpectedEOF}}
			},
			wantErr:   ErrDownloadDocumentContent,
			wantList:  1,
			wantRem:   1,
			wantFetch: 1,
		},
		{
			name:    "gateway unavailable",
			setup:   func(g *fakeGateway) { g.projectErr = ErrGatewayUnavailable },
			wantErr: ErrGatewayUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{
				project: models.Project{ID: "handbook"},
				docs:    []models.Document{{URI: "a.md"}, {URI: "b.md"}},
			}
			tt.setup(gw)
			store := newRecordingStore()
			o := newOrchestrator(store, gw)

			err := o.Trigger(context.Background(), testRef)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, tt.wantList, gw.listCalls)
			assert.Equal(t, tt.wantRem, gw.removeCalls)
			assert.Len(t, gw.contentCalls, tt.wantFetch)
			assert.Empty(t, gw.uploads)
			assert.Zero(t, store.Len(), "lock must be released on failure")
		})
	}
}

func TestTrigger_CancelledContextStillReleases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &fakeGateway{
		project: models.Project{ID: "handbook"},
		docs:    []models.Document{{URI: "a.md"}, {URI: "b.md"}},
	}
	gw.onUpload = func(models.IndexRecord) { cancel() }
	store := newRecordingStore()
	store.rejectCancelled = true
	o := newOrchestrator(store, gw)

	err := o.Trigger(ctx, testRef)
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, gw.uploads, 1)
	assert.Zero(t, store.Len())
}

func TestTrigger_LockTakenOverAbortsJob(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStatusStore()
	gw := &fakeGateway{
		project: models.Project{ID: "handbook"},
		docs:    []models.Document{{URI: "a.md"}, {URI: "b.md"}, {URI: "c.md"}},
	}
	o := newOrchestrator(store, gw)

	job, err := o.Claim(ctx, testRef)
	require.NoError(t, err)

	// The entry expires mid-run and another job claims the branch.
	successor := models.NewQueueStatus(testRef, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	gw.onUpload = func(models.IndexRecord) {
		if len(gw.uploads) != 1 {
			return
		}
		require.NoError(t, store.Release(ctx, testRef.Key(), job.owner))
		ok, err := store.TryAcquire(ctx, testRef.Key(), "successor", successor)
		require.NoError(t, err)
		require.True(t, ok)
	}

	err = job.Run(ctx)
	require.ErrorIs(t, err, ErrLockLost)
	assert.Len(t, gw.uploads, 1, "job stops at the first write after losing the lock")

	got, ok, err := store.Get(ctx, testRef.Key())
	require.NoError(t, err)
	require.True(t, ok, "successor's entry survives the old job's release")
	assert.Equal(t, successor, got)

	_, err = o.Claim(ctx, testRef)
	require.ErrorIs(t, err, ErrQueueAlreadyExists)
}

func TestTrigger_AcquireError(t *testing.T) {
	store := newRecordingStore()
	store.acquireErr = errors.New("connection refused")
	gw := &fakeGateway{}
	o := newOrchestrator(store, gw)

	err := o.Trigger(context.Background(), testRef)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueueAlreadyExists)
	assert.Zero(t, gw.listCalls)
	assert.Empty(t, store.released, "nothing to release when the lock was never taken")
}

func TestStatus(t *testing.T) {
	store := newRecordingStore()
	gw := &fakeGateway{
		project:      models.Project{ID: "handbook"},
		docs:         []models.Document{{URI: "a.md"}},
		blockProject: make(chan struct{}),
	}
	o := newOrchestrator(store, gw)
	ctx := context.Background()

	status, err := o.Status(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, models.UnknownQueueStatus(testRef), status)

	job, err := o.Claim(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, testRef, job.Ref())

	status, err = o.Status(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStatusIndexing, status.State)
	assert.Equal(t, "handbook", status.ProjectID)
	assert.Equal(t, "main", status.BranchName)

	close(gw.blockProject)
	require.NoError(t, job.Run(ctx))

	status, err = o.Status(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStatusUnknown, status.State)
}

func TestJob_RunOnce(t *testing.T) {
	store := newRecordingStore()
	o := newOrchestrator(store, &fakeGateway{project: models.Project{ID: "handbook"}})

	job, err := o.Claim(context.Background(), testRef)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.Error(t, job.Run(context.Background()))
	assert.Len(t, store.released, 1)
}

func TestGatewayError(t *testing.T) {
	err := &GatewayError{Kind: ErrRemoveIndexFailed, StatusCode: 503, Body: "down"}
	assert.ErrorIs(t, err, ErrRemoveIndexFailed)
	assert.NotErrorIs(t, err, ErrUploadDocumentFailed)
	assert.Equal(t, "index wasn't removed. Status code: 503. Response message: 'down'", err.Error())

	wrapped := &GatewayError{Kind: ErrDownloadDocuments, Err: io.EOF}
	assert.ErrorIs(t, wrapped, io.EOF)
	assert.Equal(t, "documents list wasn't downloaded: EOF", wrapped.Error())
}
