package main

import (
	"fmt"

	"formpilot/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// configCmd manages the workspace configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the formpilot configuration",
}

// configInitCmd asks for the first-run settings
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Ask for browser, form link and repetitions and save them",
	RunE:  configInit,
}

// configShowCmd prints the effective configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  configShow,
}

func configInit(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	path := resolveConfigPath(ws)
	base, err := config.Load(path)
	if err != nil {
		return err
	}

	cfg, err := config.NewQuestionnaire(newPrompter()).Ask(base)
	if err != nil {
		return err
	}

	dest := savePath(ws, path)
	if err := cfg.Save(dest); err != nil {
		return err
	}
	logger.Info("Saved configuration", zap.String("path", dest))
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", dest)
	return nil
}

func configShow(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	path := resolveConfigPath(ws)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := cmd.OutOrStdout()
	source := path
	if !config.Exists(path) {
		source = path + " (not found, showing defaults)"
	}
	fmt.Fprintln(out, mutedStyle.Render("# "+source))
	fmt.Fprint(out, string(data))
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, warningStyle.Render("# invalid: "+err.Error()))
	}
	return nil
}
