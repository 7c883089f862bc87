package handler

import (
	"errors"

	"github.com/maraichr/nightcrawler/internal/reindex"
	"github.com/maraichr/nightcrawler/pkg/apierr"
)

// reindexError maps reindex error kinds onto API errors. fallback builds
// the error for anything unrecognized.
func reindexError(err error, fallback func(error) *apierr.Error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	switch {
	case errors.Is(err, reindex.ErrQueueAlreadyExists):
		return apierr.QueueAlreadyExists(err)
	case errors.Is(err, reindex.ErrGatewayUnavailable):
		return apierr.GatewayUnavailable(err)
	case errors.Is(err, reindex.ErrDownloadProjectData):
		return apierr.ProjectDataDownloadFailed(err)
	case errors.Is(err, reindex.ErrDownloadDocuments):
		return apierr.DocumentsDownloadFailed(err)
	case errors.Is(err, reindex.ErrDownloadDocumentContent):
		return apierr.DocumentContentDownloadFailed(err)
	case errors.Is(err, reindex.ErrRemoveIndexFailed):
		return apierr.IndexRemoveFailed(err)
	case errors.Is(err, reindex.ErrUploadDocumentFailed):
		return apierr.DocumentUploadFailed(err)
	default:
		return fallback(err)
	}
}
