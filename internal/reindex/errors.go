package reindex

import (
	"errors"
	"fmt"
)

// Error kinds. Gateway failures are reported as *GatewayError values that
// match one of these through errors.Is.
var (
	ErrQueueAlreadyExists      = errors.New("queue for branch already exists")
	ErrLockLost                = errors.New("queue lock is no longer held")
	ErrGatewayUnavailable      = errors.New("gateway service is not available")
	ErrDownloadProjectData     = errors.New("project data wasn't downloaded")
	ErrDownloadDocuments       = errors.New("documents list wasn't downloaded")
	ErrDownloadDocumentContent = errors.New("document content wasn't downloaded")
	ErrRemoveIndexFailed       = errors.New("index wasn't removed")
	ErrUploadDocumentFailed    = errors.New("document wasn't uploaded to index")
)

// GatewayError describes a failed gateway call. StatusCode and Body are set
// when the gateway answered with a non-success status; Err is set when the
// call failed before a response was read.
type GatewayError struct {
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v. Status code: %d. Response message: '%s'", e.Kind, e.StatusCode, e.Body)
}

func (e *GatewayError) Is(target error) bool { return target == e.Kind }

func (e *GatewayError) Unwrap() error { return e.Err }
