/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/heimdall_signage/internal/db"
	"github.com/friendsincode/heimdall_signage/internal/migration"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import content from a legacy deployment",
}

var importLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import from the legacy notification backend",
	Long:  "Copy content items and schedule windows from the legacy Spring notification backend's PostgreSQL database",
	RunE:  runImportLegacy,
}

var (
	legacyDSN    string
	legacyDryRun bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importLegacyCmd)

	importLegacyCmd.Flags().StringVar(&legacyDSN, "dsn", "", "Legacy PostgreSQL DSN (required)")
	importLegacyCmd.Flags().BoolVar(&legacyDryRun, "dry-run", false, "Analyze the legacy database without importing")
	_ = importLegacyCmd.MarkFlagRequired("dsn")
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
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

	importer := migration.NewImporter(database, logger, migration.Options{DryRun: legacyDryRun})
	stats, err := importer.Import(cmd.Context(), legacyDSN)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	logger.Info().
		Int("items", stats.Items).
		Int("windows", stats.Windows).
		Int("skipped", stats.SkippedItems).
		Msg("import finished")
	return nil
}
