// Package reindex rebuilds the search index of a project branch.
//
// A job claims the branch's status entry (the lock), pulls project metadata
// and the document list through the gateway, wipes the existing index, then
// uploads one record per markdown document in list order. Progress is written
// back to the status entry after every document, and the entry is deleted on
// every exit path.
package reindex

import (
	"context"

	"github.com/maraichr/nightcrawler/pkg/models"
)

// StatusStore holds one progress snapshot per key and doubles as the per-key
// mutex. Every entry carries the owner token of the job that acquired it;
// writes and deletes made with any other token leave the entry untouched.
type StatusStore interface {
	// TryAcquire stores status under key for owner only if the key is absent.
	// It reports whether the write happened. The check and write are atomic.
	TryAcquire(ctx context.Context, key, owner string, status models.QueueStatus) (bool, error)
	// Update overwrites the snapshot under key if owner still holds it. held
	// is false when the entry is gone or belongs to another owner.
	Update(ctx context.Context, key, owner string, status models.QueueStatus) (held bool, err error)
	// Get returns the snapshot under key; ok is false when there is none.
	Get(ctx context.Context, key string) (status models.QueueStatus, ok bool, err error)
	// Release deletes key if owner holds it. Releasing an absent or foreign
	// entry is not an error.
	Release(ctx context.Context, key, owner string) error
}

// Gateway is the downstream aggregator serving documents and the search index.
type Gateway interface {
	GetProject(ctx context.Context, projectID string) (models.Project, error)
	ListDocuments(ctx context.Context, projectID, branchName string) ([]models.Document, error)
	GetDocumentContent(ctx context.Context, projectID, branchName string, doc models.Document) (string, error)
	RemoveIndex(ctx context.Context, projectID, branchName string) error
	UploadIndex(ctx context.Context, projectID, branchName string, record models.IndexRecord) error
}
