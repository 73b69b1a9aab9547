package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/propertyline/triage/internal/config"
)

var escalationsCmd = &cobra.Command{
	Use:   "escalations",
	Short: "Escalation tooling",
}

var escalationsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate open tickets once and print the ones that need a human",
	RunE:  runEscalationsSweep,
}

func init() {
	escalationsCmd.AddCommand(escalationsSweepCmd)
}

func runEscalationsSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := context.Background()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.services.Sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
