/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/heimdall_signage/internal/catalog"
	"github.com/friendsincode/heimdall_signage/internal/clock"
	"github.com/friendsincode/heimdall_signage/internal/db"
	"github.com/friendsincode/heimdall_signage/internal/devices"
	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/scheduling"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry/restore pass and exit",
	Long:  "Expire overdue windows, restore suppressed content, and deactivate stale items. Safe to run alongside a live server.",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	registry, err := devices.LoadFile(cfg.DeviceRegistryPath)
	if err != nil {
		return fmt.Errorf("load device registry: %w", err)
	}

	engine := scheduling.New(catalog.New(database), clock.System{}, registry, events.NewBus(), logger)

	report, err := engine.RunSweep(cmd.Context(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	logger.Info().
		Int("expired_windows", report.ExpiredWindows).
		Int("restored", report.RestoredItems).
		Int("missing", report.MissingItems).
		Int("deactivated", report.DeactivatedItems).
		Msg("sweep finished")
	return nil
}
