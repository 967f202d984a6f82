package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pennyhq/penny/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration as YAML, after merging defaults,
the user config, the project config, and environment variables.

User config:    ~/.config/penny/config.yaml
Project config: .penny.yaml in the current directory or a parent`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Mask secrets before printing.
	if cfg.Anthropic.APIKey != "" {
		cfg.Anthropic.APIKey = "****"
	}
	if cfg.Telegram.BotToken != "" {
		cfg.Telegram.BotToken = "****"
	}

	fmt.Printf("# user config: %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("# project config: %s\n", project)
	}
	fmt.Println()

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
