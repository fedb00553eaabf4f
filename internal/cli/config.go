package cli

import (
	"fmt"

	"github.com/probelab/scout/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage scout configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader(configPath)
		if err := loader.Save(config.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Println("Config written. Set ai.profiles[0].api_key and search.api_key before running.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader(configPath).Load()
		if err != nil {
			return err
		}
		fmt.Println(cfg.String())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
