package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maraichr/nightcrawler/internal/jobs"
	"github.com/maraichr/nightcrawler/pkg/apierr"
	"github.com/maraichr/nightcrawler/pkg/models"
)

// StatusReader answers progress queries.
type StatusReader interface {
	Status(ctx context.Context, ref models.ProjectRef) (models.QueueStatus, error)
}

type QueueHandler struct {
	logger     *slog.Logger
	dispatcher jobs.Dispatcher
	status     StatusReader
}

func NewQueueHandler(logger *slog.Logger, dispatcher jobs.Dispatcher, status StatusReader) *QueueHandler {
	return &QueueHandler{logger: logger, dispatcher: dispatcher, status: status}
}

type queueAccepted struct {
	ProjectID  string `json:"projectId"`
	BranchName string `json:"branchName"`
	Status     string `json:"status"`
}

// Create starts a reindex of the branch. It answers 409 when one is
// already running.
func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	ref, ok := projectRefFromRequest(r)
	if !ok {
		writeAPIError(w, r, h.logger, apierr.InvalidProjectRef())
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), ref, jobs.TriggerManual); err != nil {
		e := reindexError(err, apierr.ReindexDispatchFailed)
		if e.Code() == apierr.CodeQueueAlreadyExists {
			h.logger.Info("reindex rejected, branch already indexing",
				slog.String("project_id", ref.ProjectID),
				slog.String("branch", ref.BranchName))
			e = e.WithDetail("projectId", ref.ProjectID).WithDetail("branchName", ref.BranchName)
		}
		writeAPIError(w, r, h.logger, e)
		return
	}

	writeJSON(w, http.StatusOK, queueAccepted{
		ProjectID:  ref.ProjectID,
		BranchName: ref.BranchName,
		Status:     "accepted",
	})
}

// Get returns the progress of the branch's running job, or an Unknown
// status when none is running.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, ok := projectRefFromRequest(r)
	if !ok {
		writeAPIError(w, r, h.logger, apierr.InvalidProjectRef())
		return
	}

	status, err := h.status.Status(r.Context(), ref)
	if err != nil {
		writeAPIError(w, r, h.logger, apierr.QueueStatusFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// projectRefFromRequest reads the ref from the route. Branch names may
// arrive percent-encoded when they contain '/'.
func projectRefFromRequest(r *http.Request) (models.ProjectRef, bool) {
	projectID := strings.TrimSpace(pathParam(r, "projectId"))
	branch := strings.TrimSpace(pathParam(r, "branchName"))
	if projectID == "" || branch == "" || strings.Contains(projectID, "#") {
		return models.ProjectRef{}, false
	}
	return models.ProjectRef{ProjectID: projectID, BranchName: branch}, true
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
