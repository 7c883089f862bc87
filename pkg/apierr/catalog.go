package apierr

import "net/http"

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

func NotImplemented(feature string) *Error {
	return New(CodeNotImplemented, http.StatusNotImplemented, feature+" is not implemented yet")
}

// --- Queue ---

func InvalidProjectRef() *Error {
	return New(CodeInvalidProjectRef, http.StatusBadRequest, "projectId and branchName are required")
}

func QueueAlreadyExists(cause error) *Error {
	return Wrap(CodeQueueAlreadyExists, http.StatusConflict, "Queue for branch already exists", cause)
}

func QueueStatusFailed(cause error) *Error {
	return Wrap(CodeQueueStatusFailed, http.StatusInternalServerError, "Failed to read queue status", cause)
}

func ReindexDispatchFailed(cause error) *Error {
	return Wrap(CodeReindexDispatchFailed, http.StatusServiceUnavailable, "Failed to start reindex", cause)
}

// --- Gateway ---

func GatewayUnavailable(cause error) *Error {
	return Wrap(CodeGatewayUnavailable, http.StatusServiceUnavailable, "Gateway service is not available", cause)
}

func ProjectDataDownloadFailed(cause error) *Error {
	return Wrap(CodeProjectDataDownloadFailed, http.StatusBadGateway, "Project data wasn't downloaded", cause)
}

func DocumentsDownloadFailed(cause error) *Error {
	return Wrap(CodeDocumentsDownloadFailed, http.StatusBadGateway, "Documents list wasn't downloaded", cause)
}

func DocumentContentDownloadFailed(cause error) *Error {
	return Wrap(CodeDocumentContentDownloadFailed, http.StatusBadGateway, "Document content wasn't downloaded", cause)
}

func IndexRemoveFailed(cause error) *Error {
	return Wrap(CodeIndexRemoveFailed, http.StatusBadGateway, "Index wasn't removed", cause)
}

func DocumentUploadFailed(cause error) *Error {
	return Wrap(CodeDocumentUploadFailed, http.StatusBadGateway, "Document wasn't uploaded to index", cause)
}

// --- Health ---

func StoreNotReady(cause error) *Error {
	return Wrap(CodeStoreNotReady, http.StatusServiceUnavailable, "Status store not ready", cause)
}
