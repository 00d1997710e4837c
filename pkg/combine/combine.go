// Package combine merges multiple workflow-run stores into one,
// deduplicated by workflow id.
package combine

import (
	"sort"

	"github.com/ethpandaops/workflowoor/pkg/store"
)

// Combine concatenates the input stores and deduplicates rows by
// workflow id. When the same id appears in multiple inputs, the row
// carrying workflow detail wins; ties keep the row from the
// first-encountered input. Output rows are ordered by created_at, ties
// broken by workflow id. Inputs are never mutated.
func Combine(stores ...*store.Store) *store.Store {
	out := &store.Store{}
	seen := make(map[string]int)

	if len(stores) > 0 {
		out.DurationInMinutes = stores[0].DurationInMinutes
	}

	for _, st := range stores {
		for i := range st.Runs {
			run := st.Runs[i]

			idx, ok := seen[run.WorkflowID]
			if !ok {
				seen[run.WorkflowID] = len(out.Runs)
				out.Runs = append(out.Runs, run)

				continue
			}

			// A detail-bearing row replaces a detail-less one.
			if run.HasDetail() && !out.Runs[idx].HasDetail() {
				out.Runs[idx] = run
			}
		}
	}

	sort.SliceStable(out.Runs, func(i, j int) bool {
		a, b := &out.Runs[i], &out.Runs[j]

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return a.WorkflowID < b.WorkflowID
	})

	return out
}
