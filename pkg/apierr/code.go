package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeNotImplemented     Code = "NOT_IMPLEMENTED"
)

// Queue errors.
const (
	CodeInvalidProjectRef     Code = "INVALID_PROJECT_REF"
	CodeQueueAlreadyExists    Code = "QUEUE_ALREADY_EXISTS"
	CodeQueueStatusFailed     Code = "QUEUE_STATUS_FAILED"
	CodeReindexDispatchFailed Code = "REINDEX_DISPATCH_FAILED"
)

// Gateway errors.
const (
	CodeGatewayUnavailable            Code = "GATEWAY_UNAVAILABLE"
	CodeProjectDataDownloadFailed     Code = "PROJECT_DATA_DOWNLOAD_FAILED"
	CodeDocumentsDownloadFailed       Code = "DOCUMENTS_DOWNLOAD_FAILED"
	CodeDocumentContentDownloadFailed Code = "DOCUMENT_CONTENT_DOWNLOAD_FAILED"
	CodeIndexRemoveFailed             Code = "INDEX_REMOVE_FAILED"
	CodeDocumentUploadFailed          Code = "DOCUMENT_UPLOAD_FAILED"
)

// Health errors.
const (
	CodeStoreNotReady Code = "STORE_NOT_READY"
)
