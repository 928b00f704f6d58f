package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"scribe/internal/config"
)

// configCmd groups configuration subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage workspace configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file into the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigPath(workspace)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		cfg := config.DefaultConfig()
		if err := cfg.Save(workspace); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Wrote " + path))
		fmt.Println(dimStyle.Render("Set SCRIBE_LLM_API_KEY or GEMINI_API_KEY, then run 'scribe generate'."))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadWorkspaceConfig()
		if err != nil {
			return err
		}
		// Never print credentials
		if cfg.LLM.APIKey != "" {
			cfg.LLM.APIKey = "<set>"
		}
		if cfg.Embedding.APIKey != "" {
			cfg.Embedding.APIKey = "<set>"
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
