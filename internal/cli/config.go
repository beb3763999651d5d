package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modforge/porter/internal/config"
)

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage porter configuration",
	}
	cmd.AddCommand(configInitCmd(a))
	return cmd
}

func configInitCmd(a *app) *cobra.Command {
	var global, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(".porter", "config.json")
			if global {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("getting home directory: %w", err)
				}
				path = filepath.Join(homeDir, ".porter", "config.json")
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to ~/.porter/config.json instead of .porter/config.json")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
