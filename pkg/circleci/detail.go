package circleci

import (
	"context"
	"net/url"
	"time"
)

// WorkflowDetail is the per-workflow metadata from the workflow
// endpoint. Tag carries the rerun type; it is empty for workflows that
// are not reruns.
type WorkflowDetail struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	PipelineID     string `json:"pipeline_id"`
	PipelineNumber int64  `json:"pipeline_number"`
	ProjectSlug    string `json:"project_slug"`
	StartedBy      string `json:"started_by"`
	CanceledBy     string `json:"canceled_by"`
	ErroredBy      string `json:"errored_by"`
	RerunOf        string `json:"rerun_of"`
	Tag            string `json:"tag"`
}

// Job is one job of a workflow.
type Job struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at"`
}

// DurationSec returns the job duration in seconds, or 0 when the job
// has not finished.
func (j *Job) DurationSec() float64 {
	if j.StartedAt == nil || j.StoppedAt == nil {
		return 0
	}

	return j.StoppedAt.Sub(*j.StartedAt).Seconds()
}

// GetWorkflowDetail fetches the metadata for a single workflow run.
func (c *Client) GetWorkflowDetail(ctx context.Context, workflowID string) (*WorkflowDetail, error) {
	var detail WorkflowDetail
	if err := c.getJSON(ctx, "api/v2/workflow/"+url.PathEscape(workflowID), nil, &detail); err != nil {
		return nil, err
	}

	return &detail, nil
}

type jobsPage struct {
	Items         []Job  `json:"items"`
	NextPageToken string `json:"next_page_token"`
}

// ListWorkflowJobs returns the jobs of a workflow run in API order.
func (c *Client) ListWorkflowJobs(ctx context.Context, workflowID string) ([]Job, error) {
	var jobs []Job

	pageToken := ""

	for {
		var params url.Values
		if pageToken != "" {
			params = url.Values{"page-token": {pageToken}}
		}

		var page jobsPage
		if err := c.getJSON(ctx, "api/v2/workflow/"+url.PathEscape(workflowID)+"/job", params, &page); err != nil {
			return nil, err
		}

		jobs = append(jobs, page.Items...)

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return jobs, nil
}
