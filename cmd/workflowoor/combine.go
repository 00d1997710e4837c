package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/workflowoor/pkg/combine"
	"github.com/ethpandaops/workflowoor/pkg/store"
)

var combineOutput string

var combineCmd = &cobra.Command{
	Use:   "combine <input> <input> [input...]",
	Short: "Combine multiple store files into one, deduplicated",
	Long: `Read two or more store files produced by fetch and merge them into a
single store. Duplicate workflow ids are collapsed, preferring the row
that carries workflow details.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCombine,
}

func init() {
	rootCmd.AddCommand(combineCmd)
	combineCmd.Flags().StringVar(&combineOutput, "output", "combined.csv",
		"Output store file (.csv, .csv.gz or .csv.bz2)")
}

func runCombine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateLocal(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	stores := make([]*store.Store, 0, len(args))

	for _, path := range args {
		st, err := store.Read(path)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"file": path,
			"rows": st.Len(),
		}).Info("Read store")

		stores = append(stores, st)
	}

	out := combine.Combine(stores...)

	if err := store.Write(out, combineOutput); err != nil {
		return err
	}

	log.WithField("rows", out.Len()).Infof("Wrote %s", combineOutput)

	return nil
}
