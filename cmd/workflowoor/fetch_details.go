package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/workflowoor/pkg/fetch"
	"github.com/ethpandaops/workflowoor/pkg/store"
)

var (
	fetchDetailsInput  string
	fetchDetailsOutput string
)

var fetchDetailsCmd = &cobra.Command{
	Use:     "fetch-details",
	Aliases: []string{"fetch_details"},
	Short:   "Backfill workflow details for an already-fetched store file",
	Long: `Read a store file produced by fetch and request workflow details for
every row that does not carry them yet. Rows that already have details
are left untouched.`,
	RunE: runFetchDetails,
}

func init() {
	rootCmd.AddCommand(fetchDetailsCmd)
	fetchDetailsCmd.Flags().StringVar(&fetchDetailsInput, "input", "",
		"Input store file produced by fetch")
	fetchDetailsCmd.Flags().StringVar(&fetchDetailsOutput, "output", "workflow-details.csv.bz2",
		"Output store file (.csv, .csv.gz or .csv.bz2)")
	_ = fetchDetailsCmd.MarkFlagRequired("input")
}

func runFetchDetails(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Read(fetchDetailsInput)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"file": fetchDetailsInput,
		"rows": st.Len(),
	}).Info("Read store")

	client, closeLog, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	engine := fetch.NewEngine(log, client, cfg.Fetch.DetailConcurrency)

	out, err := engine.FetchDetails(ctx, st, &logSink{log: log})
	if err != nil {
		return fmt.Errorf("fetching details: %w", err)
	}

	if err := store.Write(out, fetchDetailsOutput); err != nil {
		return err
	}

	log.WithField("rows", out.Len()).Infof("Wrote %s", fetchDetailsOutput)

	return nil
}
