package setup

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinical-decision-support-server/internal/config"
)

// NewCommand builds the "setup" command tree shared by the MCP server binary and cdsctl.
func NewCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&configPath, "client-config", "", "MCP client config file (default: platform location)")

	configure := &cobra.Command{
		Use:   "configure",
		Short: "Add or update the server entry in the client config",
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, _ := cmd.Flags().GetString("binary")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			if binary == "" {
				if exe, err := os.Executable(); err == nil {
					binary = exe
				}
			}

			path, err := Configure(Options{ConfigPath: configPath, BinaryPath: binary, DataDir: dataDir})
			if err != nil {
				return fmt.Errorf("failed to configure MCP client: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", ServerName, path)
			fmt.Fprintln(cmd.OutOrStdout(), "Restart the MCP client to load the new configuration.")
			return nil
		},
	}
	configure.Flags().StringP("binary", "b", "", "Path to the mcp-server binary (default: this executable)")
	configure.Flags().StringP("data-dir", "d", "", "Data directory for the compliance database")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is registered and launchable",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := GetStatus(configPath, config.DefaultLiteConfig().DataDir)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
			if !st.OK() {
				return fmt.Errorf("setup has %d issue(s)", len(st.Issues))
			}
			return nil
		},
	}

	cmd.AddCommand(configure, status)
	return cmd
}
