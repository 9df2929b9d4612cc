package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "admin",
	Short:   "Inspect and scaffold configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(*cobra.Command, []string) error {
		if jsonOutput {
			outputJSON(cfg)
			return nil
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a taxo.yaml seeded with the current settings",
	RunE: func(*cobra.Command, []string) error {
		if err := cfg.WriteFile("taxo.yaml"); err != nil {
			return err
		}
		ui.Successf("wrote taxo.yaml")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
