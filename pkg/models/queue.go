package models

import "time"

type IndexStatus string

const (
	IndexStatusUnknown  IndexStatus = "Unknown"
	IndexStatusIndexing IndexStatus = "Indexing"
)

// QueueStatus is the progress snapshot of a running reindex job. It lives in
// the status store only while the job holds its lock.
type QueueStatus struct {
	ProjectID        string      `json:"projectId"`
	BranchName       string      `json:"branchName"`
	StartTime        time.Time   `json:"startTime"`
	DocumentsIndexed int         `json:"numberOfIndexedDocuments"`
	DocumentsTotal   *int        `json:"numberOfAllDocuments"`
	State            IndexStatus `json:"indexStatus"`
}

// NewQueueStatus returns the initial snapshot written when a job claims its lock.
func NewQueueStatus(ref ProjectRef, startTime time.Time) QueueStatus {
	return QueueStatus{
		ProjectID:  ref.ProjectID,
		BranchName: ref.BranchName,
		StartTime:  startTime.UTC(),
		State:      IndexStatusIndexing,
	}
}

// UnknownQueueStatus is reported for refs with no job in flight.
func UnknownQueueStatus(ref ProjectRef) QueueStatus {
	return QueueStatus{
		ProjectID:  ref.ProjectID,
		BranchName: ref.BranchName,
		State:      IndexStatusUnknown,
	}
}

