package commands

import (
	"fmt"

	"github.com/dyluth/rota/internal/instance"
	"github.com/dyluth/rota/internal/printer"
	"github.com/spf13/cobra"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Manage sandbox instances",
	Long: `Sandbox instances hold isolated copies of the board for test sessions. They
never touch the canonical board for the same date and expire after
sandbox.ttl of inactivity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var sandboxNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Print a fresh sandbox instance name",
	Long: `Print a fresh sandbox instance name. Pass it to --sandbox on later commands;
the sandbox is created by the first write.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := instance.GenerateSandboxName()
		printer.Success("Sandbox %s\n", name)
		fmt.Fprintf(cmd.OutOrStdout(), "\nUse it with:\n  rota --sandbox %s board\n", name)
		return nil
	},
}

func init() {
	sandboxCmd.AddCommand(sandboxNewCmd)
	rootCmd.AddCommand(sandboxCmd)
}
