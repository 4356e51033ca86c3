// Package main provides the formpilot CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"formpilot/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// legacyConfigName is the pre-YAML config file name.
const legacyConfigName = "config.json"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "formpilot [form-url]",
	Short: "formpilot - fill and submit web forms with random answers",
	Long: `formpilot opens a form in a Chromium-family browser, answers every
single-choice, multiple-choice and grid question with random options that
respect the form's selection limits, fills free-text fields, submits, and
repeats as many times as requested.

Run without a subcommand to fill the configured form.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runForm,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .formpilot/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0 disables)")

	registerRunFlags(rootCmd)
	registerRunFlags(runCmd)
	inspectCmd.Flags().BoolVar(&inspectAnswer, "answer", false, "Answer and submit the offline copy")
	inspectCmd.Flags().StringVar(&inspectRender, "render", "", "Write the answered HTML to this file (implies --answer)")
	inspectCmd.Flags().Uint64Var(&inspectSeed, "seed", 0, "Seed for reproducible answers")
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 10, "Number of runs to list")
	historyShowCmd.Flags().IntVar(&historyPass, "pass", 0, "Show the answers of this pass")

	historyCmd.AddCommand(historyShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// resolveConfigPath picks the config file: the --config flag, then the
// workspace YAML, then a legacy config.json, falling back to the YAML path
// for a fresh workspace.
func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	primary := filepath.Join(ws, config.DefaultPath)
	if config.Exists(primary) {
		return primary
	}
	if legacy := filepath.Join(ws, legacyConfigName); config.Exists(legacy) {
		return legacy
	}
	return primary
}

// savePath is where questionnaire answers are written. Legacy JSON files are
// migrated to YAML rather than rewritten in place.
func savePath(ws, loadedFrom string) string {
	if filepath.Ext(loadedFrom) == ".json" {
		return filepath.Join(ws, config.DefaultPath)
	}
	return loadedFrom
}

// historyPath resolves the history database relative to the workspace.
func historyPath(ws string, cfg *config.Config) string {
	p := cfg.History.Path
	if p == "" {
		p = config.DefaultConfig().History.Path
	}
	if p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ws, p)
}
