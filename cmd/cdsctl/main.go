// Command cdsctl is the operator CLI: offline evaluation, catalog checks, schema migrations
// and MCP client setup.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/clinical-decision-support-server/internal/setup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cdsctl",
		Short:         "Clinical decision support operator tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(setup.NewCommand())
	return rootCmd
}
