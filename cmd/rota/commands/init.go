package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dyluth/rota/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter rota.yml and roster",
	Long: `Create a starter configuration next to --config.

Creates:
  • rota.yml   - Redis, policy and topology configuration
  • roster.yml - Example personnel directory

Use --force to reinitialize (WARNING: overwrites existing configuration).`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (overwrites rota.yml and roster.yml)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(filepath.Dir(configPath), forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()
	return nil
}
