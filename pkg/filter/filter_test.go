package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/workflowoor/pkg/filter"
	"github.com/ethpandaops/workflowoor/pkg/store"
)

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

// wednesday is an ISO weekday 3.
var wednesday = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

// saturday is an ISO weekday 6.
var saturday = time.Date(2024, 5, 18, 10, 0, 0, 0, time.UTC)

func makeRun(workflow, branch, status string, created time.Time, durationSec float64) store.Run {
	return store.Run{
		WorkflowID:   workflow + "-" + branch + "-" + created.Format("150405"),
		WorkflowName: workflow,
		Branch:       branch,
		Status:       status,
		CreatedAt:    created,
		DurationSec:  floatPtr(durationSec),
	}
}

func apply(t *testing.T, cfg filter.Config, runs ...store.Run) *store.Store {
	t.Helper()

	f, err := cfg.Compile()
	require.NoError(t, err)

	return f.Apply(&store.Store{Runs: runs})
}

func branches(st *store.Store) []string {
	out := make([]string, 0, st.Len())
	for i := range st.Runs {
		out = append(out, st.Runs[i].Branch)
	}

	return out
}

func TestFilter_EmptyConfigKeepsEverything(t *testing.T) {
	out := apply(t, filter.Config{},
		makeRun("build", "main", "success", wednesday, 700),
		makeRun("build", "dev", "failed", saturday, 100),
	)

	assert.Equal(t, 2, out.Len())
}

func TestFilter_WorkflowNames(t *testing.T) {
	out := apply(t, filter.Config{WorkflowNames: []string{"build"}},
		makeRun("build", "main", "success", wednesday, 700),
		makeRun("deploy", "main", "success", wednesday, 700),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "build", out.Runs[0].WorkflowName)
}

func TestFilter_OnlyBranchesFullMatch(t *testing.T) {
	out := apply(t, filter.Config{OnlyBranches: "main|release-.*"},
		makeRun("build", "main", "success", wednesday, 700),
		makeRun("build", "release-1.2", "success", wednesday, 700),
		makeRun("build", "not-main", "success", wednesday, 700),
		makeRun("build", "main-old", "success", wednesday, 700),
	)

	assert.Equal(t, []string{"main", "release-1.2"}, branches(out))
}

func TestFilter_ExcludeBranches(t *testing.T) {
	out := apply(t, filter.Config{ExcludeBranches: "dependabot/.*"},
		makeRun("build", "dependabot/npm/lodash-4", "success", wednesday, 700),
		makeRun("build", "main", "success", wednesday, 700),
	)

	assert.Equal(t, []string{"main"}, branches(out))
}

func TestFilter_OnlyStatus(t *testing.T) {
	out := apply(t, filter.Config{OnlyStatus: []string{"success"}},
		makeRun("build", "main", "success", wednesday, 700),
		makeRun("build", "main", "failed", wednesday, 700),
		makeRun("build", "main", "canceled", wednesday, 700),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "success", out.Runs[0].Status)
}

func TestFilter_OnlyWeekdays(t *testing.T) {
	out := apply(t, filter.Config{OnlyWeekdays: []int{1, 2, 3, 4, 5}},
		makeRun("build", "main", "success", wednesday, 700),
		makeRun("build", "main", "success", saturday, 700),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, wednesday, out.Runs[0].CreatedAt)
}

func TestFilter_SundayIsISOWeekdaySeven(t *testing.T) {
	sunday := time.Date(2024, 5, 19, 10, 0, 0, 0, time.UTC)

	out := apply(t, filter.Config{OnlyWeekdays: []int{7}},
		makeRun("build", "main", "success", sunday, 700),
		makeRun("build", "main", "success", wednesday, 700),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, sunday, out.Runs[0].CreatedAt)
}

func TestFilter_MinDurationInclusive(t *testing.T) {
	out := apply(t, filter.Config{MinDurationSec: floatPtr(600)},
		makeRun("build", "exact", "success", wednesday, 600),
		makeRun("build", "above", "success", wednesday, 601),
		makeRun("build", "below", "success", wednesday, 599),
	)

	assert.Equal(t, []string{"exact", "above"}, branches(out))
}

func TestFilter_MinDurationRejectsNullDuration(t *testing.T) {
	running := makeRun("build", "main", "running", wednesday, 0)
	running.DurationSec = nil

	out := apply(t, filter.Config{MinDurationSec: floatPtr(600)}, running)
	assert.Zero(t, out.Len())

	// Without the bound, a null duration passes through.
	out = apply(t, filter.Config{}, running)
	assert.Equal(t, 1, out.Len())
}

func TestFilter_ExcludeIncompleteReruns(t *testing.T) {
	fresh := makeRun("build", "fresh", "success", wednesday, 700)
	fresh.RerunType = strPtr("none")

	complete := makeRun("build", "complete", "success", wednesday, 700)
	complete.RerunType = strPtr("rerun-workflow-from-beginning")

	partial := makeRun("build", "partial", "success", wednesday, 700)
	partial.RerunType = strPtr("rerun-workflow-from-failed")

	singleJob := makeRun("build", "single", "success", wednesday, 700)
	singleJob.RerunType = strPtr("rerun-single-job")

	noDetail := makeRun("build", "nodetail", "success", wednesday, 700)

	out := apply(t, filter.Config{ExcludeIncompleteReruns: true},
		fresh, complete, partial, singleJob, noDetail)

	assert.Equal(t, []string{"fresh", "complete", "nodetail"}, branches(out))
}

func TestFilter_MinutesTruncatesTowardZero(t *testing.T) {
	out := apply(t, filter.Config{OutputDurationAsMinutes: true},
		makeRun("build", "main", "success", wednesday, 659),
	)

	require.Equal(t, 1, out.Len())
	require.NotNil(t, out.Runs[0].DurationSec)
	assert.Equal(t, 10.0, *out.Runs[0].DurationSec)
	assert.True(t, out.DurationInMinutes)
}

func TestFilter_MinutesConversionIsNotReapplied(t *testing.T) {
	st := &store.Store{
		DurationInMinutes: true,
		Runs: []store.Run{
			makeRun("build", "main", "success", wednesday, 10),
		},
	}

	f, err := filter.Config{OutputDurationAsMinutes: true}.Compile()
	require.NoError(t, err)

	out := f.Apply(st)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 10.0, *out.Runs[0].DurationSec)
	assert.True(t, out.DurationInMinutes)
}

func TestFilter_MinDurationSurvivesReapplyOnMinutesStore(t *testing.T) {
	f, err := filter.Config{
		MinDurationSec:          floatPtr(600),
		OutputDurationAsMinutes: true,
	}.Compile()
	require.NoError(t, err)

	once := f.Apply(&store.Store{Runs: []store.Run{
		makeRun("build", "main", "success", wednesday, 630),
	}})
	require.Equal(t, 1, once.Len())
	require.True(t, once.DurationInMinutes)
	assert.Equal(t, 10.0, *once.Runs[0].DurationSec)

	// The bound is in seconds; a minutes store must compare in the
	// same unit, so filtering the filtered output keeps the row.
	twice := f.Apply(once)
	require.Equal(t, 1, twice.Len())
	assert.Equal(t, 10.0, *twice.Runs[0].DurationSec)
}

func TestFilter_MinDurationAppliesBeforeMinutesConversion(t *testing.T) {
	out := apply(t, filter.Config{
		MinDurationSec:          floatPtr(600),
		OutputDurationAsMinutes: true,
	},
		makeRun("build", "kept", "success", wednesday, 630),
		makeRun("build", "dropped", "success", wednesday, 590),
	)

	require.Equal(t, []string{"kept"}, branches(out))
	assert.Equal(t, 10.0, *out.Runs[0].DurationSec)
}

func TestFilter_PredicatesCombine(t *testing.T) {
	out := apply(t, filter.Config{
		OnlyBranches:   "main",
		OnlyStatus:     []string{"success"},
		OnlyWeekdays:   []int{1, 2, 3, 4, 5},
		MinDurationSec: floatPtr(600),
	},
		makeRun("build", "main", "success", wednesday, 700),
		makeRun("build", "main", "success", wednesday, 500),
		makeRun("build", "main", "failed", wednesday, 700),
		makeRun("build", "dev", "success", wednesday, 700),
		makeRun("build", "main", "success", saturday, 700),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, 700.0, *out.Runs[0].DurationSec)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	st := &store.Store{Runs: []store.Run{
		makeRun("build", "main", "success", wednesday, 659),
	}}

	f, err := filter.Config{OutputDurationAsMinutes: true}.Compile()
	require.NoError(t, err)

	_ = f.Apply(st)

	assert.Equal(t, 659.0, *st.Runs[0].DurationSec)
	assert.False(t, st.DurationInMinutes)
}

func TestCompile_InvalidRegex(t *testing.T) {
	_, err := filter.Config{OnlyBranches: "main(("}.Compile()
	require.ErrorIs(t, err, filter.ErrInvalidConfig)

	_, err = filter.Config{ExcludeBranches: "["}.Compile()
	require.ErrorIs(t, err, filter.ErrInvalidConfig)
}

func TestCompile_InvalidWeekday(t *testing.T) {
	_, err := filter.Config{OnlyWeekdays: []int{0}}.Compile()
	require.ErrorIs(t, err, filter.ErrInvalidConfig)

	_, err = filter.Config{OnlyWeekdays: []int{8}}.Compile()
	require.ErrorIs(t, err, filter.ErrInvalidConfig)
}
