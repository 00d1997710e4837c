// Package filter evaluates a set of independent, composable predicates
// against a workflow-run store, producing the accepted subset.
package filter

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/ethpandaops/workflowoor/pkg/store"
)

// ErrInvalidConfig indicates a predicate configuration that cannot be
// compiled, e.g. a malformed regular expression. It is surfaced before
// any row is evaluated.
var ErrInvalidConfig = errors.New("invalid filter config")

// completeRerunTypes are the rerun types that do not mark a partial
// rerun. Everything else (rerun-single-job,
// rerun-workflow-from-failed, ...) is an incomplete rerun.
var completeRerunTypes = map[string]struct{}{
	"none":                          {},
	"rerun-workflow-from-beginning": {},
}

// Config is the predicate set. Zero values deactivate a predicate; all
// active predicates must pass for a row to be kept.
type Config struct {
	// WorkflowNames keeps only rows whose workflow name is a member.
	WorkflowNames []string

	// OnlyBranches keeps only rows whose branch fully matches.
	OnlyBranches string

	// ExcludeBranches drops rows whose branch fully matches.
	ExcludeBranches string

	// OnlyStatus keeps only rows whose status is a member.
	OnlyStatus []string

	// OnlyWeekdays keeps only rows created on the listed ISO weekdays
	// (1=Monday .. 7=Sunday).
	OnlyWeekdays []int

	// MinDurationSec is an inclusive lower bound on the duration. Rows
	// with a null duration are rejected when the bound is set.
	MinDurationSec *float64

	// ExcludeIncompleteReruns drops detail-bearing rows whose rerun
	// type marks a partial rerun. Rows without detail are never
	// rejected on this predicate.
	ExcludeIncompleteReruns bool

	// OutputDurationAsMinutes replaces the output duration column with
	// a minutes value, truncated toward zero. Applied after predicate
	// evaluation, as a presentation transform only.
	OutputDurationAsMinutes bool
}

// predicate accepts or rejects a single row.
type predicate func(r *store.Run) bool

// Filter is a compiled predicate set. The duration bound is kept
// separate from the predicate slice because its comparison depends on
// the unit of the store being filtered.
type Filter struct {
	predicates  []predicate
	minDuration *float64
	toMinutes   bool
}

// Compile validates the configuration and builds the predicate set.
func (c Config) Compile() (*Filter, error) {
	f := &Filter{toMinutes: c.OutputDurationAsMinutes}

	if len(c.WorkflowNames) > 0 {
		names := stringSet(c.WorkflowNames)

		f.predicates = append(f.predicates, func(r *store.Run) bool {
			_, ok := names[r.WorkflowName]

			return ok
		})
	}

	if c.OnlyBranches != "" {
		re, err := compileFull(c.OnlyBranches)
		if err != nil {
			return nil, fmt.Errorf("%w: only_branches: %v", ErrInvalidConfig, err)
		}

		f.predicates = append(f.predicates, func(r *store.Run) bool {
			return re.MatchString(r.Branch)
		})
	}

	if c.ExcludeBranches != "" {
		re, err := compileFull(c.ExcludeBranches)
		if err != nil {
			return nil, fmt.Errorf("%w: exclude_branches: %v", ErrInvalidConfig, err)
		}

		f.predicates = append(f.predicates, func(r *store.Run) bool {
			return !re.MatchString(r.Branch)
		})
	}

	if len(c.OnlyStatus) > 0 {
		statuses := stringSet(c.OnlyStatus)

		f.predicates = append(f.predicates, func(r *store.Run) bool {
			_, ok := statuses[r.Status]

			return ok
		})
	}

	if len(c.OnlyWeekdays) > 0 {
		days := make(map[int]struct{}, len(c.OnlyWeekdays))

		for _, d := range c.OnlyWeekdays {
			if d < 1 || d > 7 {
				return nil, fmt.Errorf("%w: only_weekdays: %d is not an ISO weekday (1=Monday .. 7=Sunday)",
					ErrInvalidConfig, d)
			}

			days[d] = struct{}{}
		}

		f.predicates = append(f.predicates, func(r *store.Run) bool {
			_, ok := days[isoWeekday(r.CreatedAt)]

			return ok
		})
	}

	if c.MinDurationSec != nil {
		minDuration := *c.MinDurationSec
		f.minDuration = &minDuration
	}

	if c.ExcludeIncompleteReruns {
		f.predicates = append(f.predicates, func(r *store.Run) bool {
			if !r.HasDetail() {
				return true
			}

			_, complete := completeRerunTypes[*r.RerunType]

			return complete
		})
	}

	return f, nil
}

// Apply evaluates every row against the predicate set and returns the
// accepted subset as a new store. The input store is never mutated.
func (f *Filter) Apply(st *store.Store) *store.Store {
	out := &store.Store{DurationInMinutes: st.DurationInMinutes}

	for i := range st.Runs {
		if f.accept(&st.Runs[i], st.DurationInMinutes) {
			out.Runs = append(out.Runs, st.Runs[i])
		}
	}

	if f.toMinutes && !out.DurationInMinutes {
		for i := range out.Runs {
			if out.Runs[i].DurationSec != nil {
				minutes := math.Trunc(*out.Runs[i].DurationSec / 60)
				out.Runs[i].DurationSec = &minutes
			}
		}

		out.DurationInMinutes = true
	}

	return out
}

// accept evaluates a row. The duration bound is configured in seconds;
// when the store's duration column is in minutes the row value is
// scaled back to seconds before comparing, so filtering an
// already-filtered minutes store keeps the same rows.
func (f *Filter) accept(r *store.Run, minutes bool) bool {
	for _, p := range f.predicates {
		if !p(r) {
			return false
		}
	}

	if f.minDuration != nil {
		if r.DurationSec == nil {
			return false
		}

		value := *r.DurationSec
		if minutes {
			value *= 60
		}

		if value < *f.minDuration {
			return false
		}
	}

	return true
}

// compileFull compiles a pattern anchored at both ends, so branches
// must fully match rather than merely contain a match.
func compileFull(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}

// isoWeekday maps time.Weekday onto ISO numbering, 1=Monday through
// 7=Sunday.
func isoWeekday(t time.Time) int {
	wd := int(t.UTC().Weekday())
	if wd == 0 {
		return 7
	}

	return wd
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}

	return set
}
