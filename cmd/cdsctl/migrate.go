package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clinical-decision-support-server/internal/config"
	"github.com/clinical-decision-support-server/internal/database"
	"github.com/clinical-decision-support-server/internal/domain"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.PersistentFlags().String("database-url", "", "postgres:// URL (default: from configuration)")
	cmd.PersistentFlags().String("dir", "", "Migrations directory (default: migrations embedded in the binary)")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(runner *database.MigrationRunner) error {
				if err := runner.Up(); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				return printVersion(cmd, runner)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(runner *database.MigrationRunner) error {
				if err := runner.Down(); err != nil {
					return err
				}
				return printVersion(cmd, runner)
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(runner *database.MigrationRunner) error {
				return printVersion(cmd, runner)
			})
		},
	}

	cmd.AddCommand(upCmd, downCmd, versionCmd)
	return cmd
}

func withRunner(cmd *cobra.Command, fn func(*database.MigrationRunner) error) error {
	url, _ := cmd.Flags().GetString("database-url")
	dir, _ := cmd.Flags().GetString("dir")

	if url == "" {
		configManager, err := config.NewManager()
		if err != nil {
			return err
		}
		url = configManager.GetDatabaseURL()
	}

	logger, err := config.NewLogger(domain.LoggingConfig{Level: "info", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}

	runner, err := newRunner(url, dir, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return fn(runner)
}

func newRunner(url, dir string, logger *logrus.Logger) (*database.MigrationRunner, error) {
	if dir != "" {
		return database.NewMigrationRunnerFromPath(dir, url, logger)
	}
	return database.NewMigrationRunner(url, logger)
}

func printVersion(cmd *cobra.Command, runner *database.MigrationRunner) error {
	version, dirty, err := runner.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}
