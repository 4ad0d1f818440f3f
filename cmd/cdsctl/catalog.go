package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect clinical knowledge catalogs",
	}
	cmd.PersistentFlags().String("file", "", "Catalog YAML file (default: embedded catalog)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print a catalog summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			cat, err := loadCatalog(file)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cat.Summary())
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a catalog parses and its rules are well formed",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			cat, err := loadCatalog(file)
			if err != nil {
				return fmt.Errorf("catalog is invalid: %w", err)
			}
			summary := cat.Summary()
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s is valid: %d risk conditions, %d condition profiles, %d interactions\n",
				summary.Version, len(summary.RiskConditions), summary.ConditionProfiles, summary.Interactions)
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}
