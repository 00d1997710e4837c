package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/workflowoor/pkg/fetch"
	"github.com/ethpandaops/workflowoor/pkg/store"
	"github.com/ethpandaops/workflowoor/pkg/timewindow"
)

var (
	fetchWorkflows []string
	fetchOutput    string
	fetchStart     string
	fetchEnd       string
	fetchMidnight  bool
	fetchDetails   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch workflow runs from the CircleCI API into a store file",
	Long: `Fetch all workflow runs of the configured project within the given
time window and write them as a tabular store file. The output
compression is chosen by the file extension (.gz, .bz2 or none).`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringSliceVar(&fetchWorkflows, "workflow", nil,
		"Workflow name(s) to fetch (comma-separated or repeated flag; default: all workflows)")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "workflows.csv",
		"Output store file (.csv, .csv.gz or .csv.bz2)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "",
		"Window start: absolute timestamp or relative offset such as '-10 days' (default: '-90 days')")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "",
		"Window end: absolute timestamp or relative offset (default: now)")
	fetchCmd.Flags().BoolVar(&fetchMidnight, "midnight", false,
		"Floor both window bounds to the start of their UTC day")
	fetchCmd.Flags().BoolVar(&fetchDetails, "details", false,
		"Fetch per-run workflow details (slow)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resolver := &timewindow.Resolver{}

	window, err := resolver.Resolve(fetchStart, fetchEnd, fetchMidnight)
	if err != nil {
		return err
	}

	client, closeLog, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	engine := fetch.NewEngine(log, client, cfg.Fetch.DetailConcurrency)

	st, err := engine.Fetch(ctx, fetch.Options{
		Window:        window,
		WorkflowNames: fetchWorkflows,
		FetchDetails:  fetchDetails,
		Sink:          &logSink{log: log},
	})
	if err != nil {
		return err
	}

	if err := store.Write(st, fetchOutput); err != nil {
		return err
	}

	log.WithField("rows", st.Len()).Infof("Wrote %s", fetchOutput)

	return nil
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", fmt.Sprint(sig)).Info("Received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}
