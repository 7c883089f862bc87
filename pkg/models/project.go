package models

import "strings"

// ProjectRef identifies the unit of reindex work: one branch of one project.
type ProjectRef struct {
	ProjectID  string `json:"projectId"`
	BranchName string `json:"branchName"`
}

// Key returns the mutex key for the ref.
func (r ProjectRef) Key() string {
	return r.ProjectID + "#" + r.BranchName
}

// ParseProjectRef parses "project#branch". Branch names may not contain '#',
// project ids may not either; the first separator wins.
func ParseProjectRef(s string) (ProjectRef, bool) {
	projectID, branch, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok || projectID == "" || branch == "" {
		return ProjectRef{}, false
	}
	return ProjectRef{ProjectID: projectID, BranchName: branch}, true
}

func (r ProjectRef) String() string { return r.Key() }

// Project is the project metadata served by the gateway.
type Project struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	DefaultBranch string   `json:"defaultBranch"`
	Tags          []string `json:"tags"`
	Group         string   `json:"group"`
	ProjectSite   string   `json:"projectSite"`
}

// Document is one entry of a branch's document list.
type Document struct {
	URI string `json:"uri"`
}

// IndexRecord is the unit uploaded to the search backend.
type IndexRecord struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"projectId"`
	BranchName  string   `json:"branchName"`
	ProjectName string   `json:"projectName"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}
