package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the workflow names of the configured project",
	RunE:  runWorkflows,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
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

	names, err := client.ListWorkflowNames(ctx)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"project":   client.ProjectSlug(),
		"workflows": len(names),
	}).Info("Read workflows")

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}
