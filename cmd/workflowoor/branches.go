package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var branchesWorkflow string

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List the branches a workflow has run on",
	RunE:  runBranches,
}

func init() {
	rootCmd.AddCommand(branchesCmd)
	branchesCmd.Flags().StringVar(&branchesWorkflow, "workflow", "",
		"Workflow name to list branches for")
	_ = branchesCmd.MarkFlagRequired("workflow")
}

func runBranches(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
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

	branches, err := client.ListBranches(ctx, branchesWorkflow)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"project":  client.ProjectSlug(),
		"workflow": branchesWorkflow,
		"branches": len(branches),
	}).Info("Read branches")

	for _, branch := range branches {
		fmt.Println(branch)
	}

	return nil
}
