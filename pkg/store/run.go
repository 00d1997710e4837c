package store

import "time"

// Run represents a single execution of a named workflow on a branch, as
// reported by the CircleCI insights API.
//
// Pointer fields are nullable: a nil StoppedAt means the workflow was
// still running when fetched, and a nil DurationSec follows from that.
// The detail fields (StartedBy through Jobs) are nil until a detail
// fetch has been performed for the row; a detail fetch that finds no
// value sets the pointer to an empty string, which keeps "never
// fetched" distinguishable from "fetched and empty".
type Run struct {
	WorkflowID   string
	WorkflowName string
	Branch       string
	Status       string
	CreatedAt    time.Time
	StoppedAt    *time.Time
	DurationSec  *float64
	CreditsUsed  *float64
	IsApproval   bool

	// Detail fields, populated by a workflow-detail fetch.
	PipelineID     *string
	PipelineNumber *int64
	ProjectSlug    *string
	StartedBy      *string
	CanceledBy     *string
	ErroredBy      *string
	RerunOf        *string
	RerunType      *string
	Jobs           []JobSummary
}

// JobSummary is the per-job slice of a workflow detail.
type JobSummary struct {
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	DurationSec float64 `json:"duration_sec"`
}

// HasDetail reports whether a detail fetch has been performed for this
// run. RerunType is always set (possibly to "") by a detail fetch, so
// it serves as the marker.
func (r *Run) HasDetail() bool {
	return r.RerunType != nil
}

// Duration returns the run duration, deriving it from the timestamps
// when the duration column itself is null.
func (r *Run) Duration() (float64, bool) {
	if r.DurationSec != nil {
		return *r.DurationSec, true
	}

	if r.StoppedAt != nil {
		return r.StoppedAt.Sub(r.CreatedAt).Seconds(), true
	}

	return 0, false
}

// Store is an ordered collection of workflow runs backed by a tabular
// file. The zero value is an empty store with durations in seconds.
type Store struct {
	Runs []Run

	// DurationInMinutes marks a store whose duration column has been
	// converted to minutes for presentation. The on-disk header names
	// the column accordingly so a later read keeps the unit.
	DurationInMinutes bool
}

// Len returns the number of rows in the store.
func (s *Store) Len() int {
	return len(s.Runs)
}
