// Package fetch orchestrates the API client and a resolved time window
// into a store of workflow runs, with optional per-run detail
// backfill.
package fetch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/workflowoor/pkg/circleci"
	"github.com/ethpandaops/workflowoor/pkg/store"
	"github.com/ethpandaops/workflowoor/pkg/timewindow"
)

// API is the client surface the engine consumes.
type API interface {
	ListWorkflowNames(ctx context.Context) ([]string, error)
	WorkflowRuns(workflow string, window timewindow.Window) circleci.RunPager
	GetWorkflowDetail(ctx context.Context, workflowID string) (*circleci.WorkflowDetail, error)
	ListWorkflowJobs(ctx context.Context, workflowID string) ([]circleci.Job, error)
}

// Compile-time interface check.
var _ API = (*circleci.Client)(nil)

// ProgressSink receives fetch progress notifications. Implementations
// must not assume any ordering between DetailFetched calls; detail
// backfill runs concurrently.
type ProgressSink interface {
	PageFetched(workflow string, rows int)
	DetailFetched(workflowID string, done, total int)
}

// Options configures a single fetch.
type Options struct {
	Window        timewindow.Window
	WorkflowNames []string // empty = all workflows of the project
	FetchDetails  bool
	Sink          ProgressSink // optional
}

// Engine fetches workflow runs through an API client.
type Engine struct {
	log               logrus.FieldLogger
	api               API
	detailConcurrency int
}

// NewEngine creates a fetch engine. detailConcurrency bounds the
// parallel detail fetches; 1 means sequential.
func NewEngine(log logrus.FieldLogger, api API, detailConcurrency int) *Engine {
	if detailConcurrency < 1 {
		detailConcurrency = 1
	}

	return &Engine{
		log:               log.WithField("component", "fetch"),
		api:               api,
		detailConcurrency: detailConcurrency,
	}
}

// Fetch retrieves all workflow runs within the window, one workflow at
// a time, page by page. With FetchDetails set, every row is backfilled
// with workflow detail before the store is returned.
func (e *Engine) Fetch(ctx context.Context, opts Options) (*store.Store, error) {
	names := opts.WorkflowNames

	if len(names) == 0 {
		all, err := e.api.ListWorkflowNames(ctx)
		if err != nil {
			return nil, err
		}

		names = all

		e.log.WithField("workflows", len(names)).Info("Fetching all workflows")
	}

	st := &store.Store{}

	var minCreated, maxCreated time.Time

	for _, name := range names {
		pager := e.api.WorkflowRuns(name, opts.Window)
		workflowRows := 0

		for {
			items, more, err := pager.Next(ctx)
			if err != nil {
				return nil, err
			}

			for i := range items {
				run := normalizeRun(name, &items[i])

				if minCreated.IsZero() || run.CreatedAt.Before(minCreated) {
					minCreated = run.CreatedAt
				}

				if run.CreatedAt.After(maxCreated) {
					maxCreated = run.CreatedAt
				}

				st.Runs = append(st.Runs, run)
			}

			workflowRows += len(items)
			notifyPage(opts.Sink, name, len(items))

			if !more {
				break
			}
		}

		e.log.WithFields(logrus.Fields{
			"workflow": name,
			"rows":     workflowRows,
		}).Info("Fetched workflow runs")
	}

	if !minCreated.IsZero() {
		e.log.WithFields(logrus.Fields{
			"rows":        st.Len(),
			"min_created": minCreated.Format(time.RFC3339),
			"max_created": maxCreated.Format(time.RFC3339),
		}).Info("Fetch completed")
	}

	if opts.FetchDetails {
		runs, err := e.backfill(ctx, st.Runs, opts.Sink)
		if err != nil {
			return nil, err
		}

		st.Runs = runs
	}

	return st, nil
}

// FetchDetails backfills workflow detail for an already-fetched store,
// skipping rows that carry detail. The input store is not mutated.
func (e *Engine) FetchDetails(ctx context.Context, st *store.Store, sink ProgressSink) (*store.Store, error) {
	runs, err := e.backfill(ctx, st.Runs, sink)
	if err != nil {
		return nil, err
	}

	return &store.Store{Runs: runs, DurationInMinutes: st.DurationInMinutes}, nil
}

// backfill fetches detail for every row lacking it, with bounded
// concurrency. Each task writes only its own slot of the result slice,
// so accumulation needs no locking; the merged slice is returned once
// all tasks finished.
func (e *Engine) backfill(ctx context.Context, runs []store.Run, sink ProgressSink) ([]store.Run, error) {
	out := make([]store.Run, len(runs))
	copy(out, runs)

	var pending []int

	for i := range out {
		if out[i].WorkflowID != "" && !out[i].HasDetail() {
			pending = append(pending, i)
		}
	}

	if len(pending) == 0 {
		return out, nil
	}

	e.log.WithFields(logrus.Fields{
		"pending":     len(pending),
		"concurrency": e.detailConcurrency,
	}).Info("Backfilling workflow details")

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.detailConcurrency)

	var done atomic.Int64

	for _, i := range pending {
		g.Go(func() error {
			detail, err := e.api.GetWorkflowDetail(gCtx, out[i].WorkflowID)
			if err != nil {
				return err
			}

			jobs, err := e.api.ListWorkflowJobs(gCtx, out[i].WorkflowID)
			if err != nil {
				return err
			}

			attachDetail(&out[i], detail, jobs)

			notifyDetail(sink, out[i].WorkflowID, int(done.Add(1)), len(pending))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// normalizeRun converts an insights listing item into a store row.
func normalizeRun(workflowName string, item *circleci.InsightsRun) store.Run {
	run := store.Run{
		WorkflowID:   item.ID,
		WorkflowName: workflowName,
		Branch:       item.Branch,
		Status:       item.Status,
		CreatedAt:    item.CreatedAt.UTC(),
		CreditsUsed:  item.CreditsUsed,
		IsApproval:   item.IsApproval,
	}

	if item.StoppedAt != nil {
		t := item.StoppedAt.UTC()
		run.StoppedAt = &t
	}

	// Duration stays null while the run is still going. A stopped_at
	// earlier than created_at would derive a negative duration, so such
	// rows keep a null duration instead.
	if run.StoppedAt != nil {
		if item.Duration != nil {
			run.DurationSec = item.Duration
		} else if !run.StoppedAt.Before(run.CreatedAt) {
			d := run.StoppedAt.Sub(run.CreatedAt).Seconds()
			run.DurationSec = &d
		}
	}

	return run
}

// attachDetail fills the detail fields of a row. A workflow that is not
// a rerun gets RerunType "none", which is what marks the row as
// detail-bearing even when every other detail value is empty.
func attachDetail(run *store.Run, detail *circleci.WorkflowDetail, jobs []circleci.Job) {
	rerunType := detail.Tag
	if rerunType == "" {
		rerunType = "none"
	}

	strPtr := func(s string) *string { return &s }

	run.PipelineID = strPtr(detail.PipelineID)
	run.PipelineNumber = &detail.PipelineNumber
	run.ProjectSlug = strPtr(detail.ProjectSlug)
	run.StartedBy = strPtr(detail.StartedBy)
	run.CanceledBy = strPtr(detail.CanceledBy)
	run.ErroredBy = strPtr(detail.ErroredBy)
	run.RerunOf = strPtr(detail.RerunOf)
	run.RerunType = strPtr(rerunType)

	run.Jobs = make([]store.JobSummary, 0, len(jobs))
	for i := range jobs {
		run.Jobs = append(run.Jobs, store.JobSummary{
			Name:        jobs[i].Name,
			Status:      jobs[i].Status,
			DurationSec: jobs[i].DurationSec(),
		})
	}
}

func notifyPage(sink ProgressSink, workflow string, rows int) {
	if sink != nil {
		sink.PageFetched(workflow, rows)
	}
}

func notifyDetail(sink ProgressSink, workflowID string, done, total int) {
	if sink != nil {
		sink.DetailFetched(workflowID, done, total)
	}
}
