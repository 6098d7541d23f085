// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/posture_monitor/internal/app"
	"github.com/relabs-tech/posture_monitor/internal/calibration"
)

var (
	calibrationDuration time.Duration
	historyLimit        int
	historyID           string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the posture monitor",
	Long: `Run the posture monitor until interrupted. On exit the session log is
saved and a summary is printed.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Record a personal upright baseline",
	Long: `Sit up straight for the calibration window. The mean neck angle becomes
the personal GOOD angle used by the monitor from its next start.`,
	Example: `  posture calibrate
  posture -c posture_config.txt calibrate --duration 60s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		return app.RunCalibration(ctx, cfg, calibrationDuration)
	},
}

var summaryCmd = &cobra.Command{
	Use:     "summary FILE",
	Short:   "Summarize a saved session log",
	Example: `  posture summary sessions/posture_session_20260105_090000.csv`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunSummary(args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived sessions",
	Example: `  posture history --limit 5
  posture history --id 6f1c2a0e-3b7d-4c55-9a43-2e8f0d1b7c90`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunHistory(cmd.Context(), cfg, historyLimit, historyID)
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Print the live status published by a running monitor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		return app.RunConsoleMQTT(ctx, cfg)
	},
}

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the live status, session history and browser calibration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		return app.RunWeb(ctx, cfg)
	},
}

var producerCmd = &cobra.Command{
	Use:   "producer",
	Short: "Publish synthetic landmark frames to MQTT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		return app.RunProducer(ctx, cfg)
	},
}

func init() {
	calibrateCmd.Flags().DurationVar(&calibrationDuration, "duration", 0,
		"Calibration window (default from CALIBRATION_DURATION, "+calibration.DefaultDuration.String()+" if unset)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions to list (0 for all)")
	historyCmd.Flags().StringVar(&historyID, "id", "", "Show a single session")

	rootCmd.AddCommand(monitorCmd, calibrateCmd, summaryCmd, historyCmd, consoleCmd, webCmd, producerCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	return app.RunMonitor(ctx, cfg)
}
