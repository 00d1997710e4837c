package circleci

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/ethpandaops/workflowoor/pkg/timewindow"
)

// windowTimeFormat is the timestamp format the insights endpoints
// expect for start-date / end-date parameters.
const windowTimeFormat = "2006-01-02T15:04:05Z"

// InsightsRun is one workflow run item from the insights runs listing.
type InsightsRun struct {
	ID          string     `json:"id"`
	Branch      string     `json:"branch"`
	Status      string     `json:"status"`
	Duration    *float64   `json:"duration"`
	CreatedAt   time.Time  `json:"created_at"`
	StoppedAt   *time.Time `json:"stopped_at"`
	CreditsUsed *float64   `json:"credits_used"`
	IsApproval  bool       `json:"is_approval"`
}

type runsPage struct {
	Items         []InsightsRun `json:"items"`
	NextPageToken string        `json:"next_page_token"`
}

// RunPager iterates the paginated workflow-run listing one page per
// Next call. Pages are produced on demand; a pager is restarted by
// requesting a new one, not by reusing an exhausted one.
type RunPager interface {
	// Next fetches the next page. more is false once the listing is
	// exhausted; further calls return an empty page.
	Next(ctx context.Context) (runs []InsightsRun, more bool, err error)
}

type runPager struct {
	c         *Client
	workflow  string
	window    timewindow.Window
	pageToken string
	done      bool
}

// WorkflowRuns returns a pager over all runs of the named workflow
// within the window, across all branches.
func (c *Client) WorkflowRuns(workflow string, window timewindow.Window) RunPager {
	return &runPager{c: c, workflow: workflow, window: window}
}

func (p *runPager) Next(ctx context.Context) ([]InsightsRun, bool, error) {
	if p.done {
		return nil, false, nil
	}

	params := url.Values{
		"all-branches": {"true"},
		"start-date":   {p.window.Start.UTC().Format(windowTimeFormat)},
		"end-date":     {p.window.End.UTC().Format(windowTimeFormat)},
	}
	if p.pageToken != "" {
		params.Set("page-token", p.pageToken)
	}

	apiPath := "api/v2/insights/" + p.c.cfg.ProjectSlug + "/workflows/" + url.PathEscape(p.workflow)

	var page runsPage
	if err := p.c.getJSON(ctx, apiPath, params, &page); err != nil {
		return nil, false, err
	}

	p.pageToken = page.NextPageToken
	if p.pageToken == "" {
		p.done = true
	}

	return page.Items, !p.done, nil
}

type workflowNamesPage struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
	NextPageToken string `json:"next_page_token"`
}

// ListWorkflowNames returns the distinct workflow names the project
// reported runs for over the last 90 days, sorted.
func (c *Client) ListWorkflowNames(ctx context.Context) ([]string, error) {
	names := make(map[string]struct{})
	pageToken := ""

	for {
		params := url.Values{
			"all-branches":     {"true"},
			"reporting-window": {"last-90-days"},
		}
		if pageToken != "" {
			params.Set("page-token", pageToken)
		}

		var page workflowNamesPage
		if err := c.getJSON(ctx, "api/v2/insights/"+c.cfg.ProjectSlug+"/workflows", params, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			names[item.Name] = struct{}{}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}

	sort.Strings(sorted)

	return sorted, nil
}

// ListBranches returns the branches the named workflow has run on.
func (c *Client) ListBranches(ctx context.Context, workflow string) ([]string, error) {
	params := url.Values{
		"workflow-name": {workflow},
	}

	var resp struct {
		Branches []string `json:"branches"`
	}

	if err := c.getJSON(ctx, "api/v2/insights/"+c.cfg.ProjectSlug+"/branches", params, &resp); err != nil {
		return nil, err
	}

	sort.Strings(resp.Branches)

	return resp.Branches, nil
}
