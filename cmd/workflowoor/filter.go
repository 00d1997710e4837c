package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/workflowoor/pkg/filter"
	"github.com/ethpandaops/workflowoor/pkg/store"
)

var (
	filterInput             string
	filterOutput            string
	filterWorkflows         []string
	filterOnlyBranches      string
	filterExcludeBranches   string
	filterOnlyStatus        []string
	filterOnlyWeekdays      []int
	filterMinDurationSec    float64
	filterIncompleteReruns  bool
	filterDurationAsMinutes bool
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter a store file by branch, status, weekday and duration",
	Long: `Read a store file and write the subset of rows accepted by all
configured predicates. Branch patterns must match the full branch name.`,
	RunE: runFilter,
}

func init() {
	rootCmd.AddCommand(filterCmd)
	filterCmd.Flags().StringVar(&filterInput, "input", "",
		"Input store file")
	filterCmd.Flags().StringVar(&filterOutput, "output", "filtered.csv",
		"Output store file (.csv, .csv.gz or .csv.bz2)")
	filterCmd.Flags().StringSliceVar(&filterWorkflows, "workflow", nil,
		"Workflow name(s) to accept (default: all)")
	filterCmd.Flags().StringVar(&filterOnlyBranches, "only-branches", "",
		"Accept branches by full regular expression match")
	filterCmd.Flags().StringVar(&filterExcludeBranches, "exclude-branches", "",
		"Exclude branches by full regular expression match")
	filterCmd.Flags().StringSliceVar(&filterOnlyStatus, "only-status", []string{"success"},
		"Accept only the listed status values")
	filterCmd.Flags().IntSliceVar(&filterOnlyWeekdays, "only-weekdays", []int{1, 2, 3, 4, 5},
		"Accept only the listed ISO weekdays (1=Monday .. 7=Sunday)")
	filterCmd.Flags().Float64Var(&filterMinDurationSec, "min-duration-sec", 0,
		"Minimum duration in seconds to accept a row (0 disables the bound)")
	filterCmd.Flags().BoolVar(&filterIncompleteReruns, "exclude-incomplete-reruns", true,
		"Reject partial reruns (rerun-single-job, rerun-workflow-from-failed) when details are present")
	filterCmd.Flags().BoolVar(&filterDurationAsMinutes, "duration-as-minutes", false,
		"Write the duration column in minutes, truncated toward zero")
	_ = filterCmd.MarkFlagRequired("input")
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateLocal(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fc := filter.Config{
		WorkflowNames:           filterWorkflows,
		OnlyBranches:            filterOnlyBranches,
		ExcludeBranches:         filterExcludeBranches,
		OnlyStatus:              filterOnlyStatus,
		OnlyWeekdays:            filterOnlyWeekdays,
		ExcludeIncompleteReruns: filterIncompleteReruns,
		OutputDurationAsMinutes: filterDurationAsMinutes,
	}

	if filterMinDurationSec > 0 {
		fc.MinDurationSec = &filterMinDurationSec
	}

	// Predicates compile before any row is read, so a bad regex fails
	// fast.
	compiled, err := fc.Compile()
	if err != nil {
		return err
	}

	st, err := store.Read(filterInput)
	if err != nil {
		return err
	}

	out := compiled.Apply(st)

	if err := store.Write(out, filterOutput); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"rows_in":  st.Len(),
		"rows_out": out.Len(),
	}).Infof("Wrote %s", filterOutput)

	return nil
}
