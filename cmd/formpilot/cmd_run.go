package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"formpilot/internal/browser"
	"formpilot/internal/config"
	"formpilot/internal/logging"
	"formpilot/internal/run"
	"formpilot/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	runTimes     int
	runSeed      uint64
	runHeadless  bool
	runAsk       bool
	runNoHistory bool

	// isInteractive reports whether prompts can be shown.
	isInteractive = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	// newPrompter builds the questionnaire's terminal.
	newPrompter = func() config.Prompter { return config.SurveyPrompter{} }
)

// runCmd fills the configured form
var runCmd = &cobra.Command{
	Use:   "run [form-url]",
	Short: "Fill and submit the form the configured number of times",
	Long: `Opens the form, answers every question, fills text fields and submits.
Passes run one after another on a single page; cookies and storage are
cleared between passes so each submission starts from a blank form.

On first use (no config file) the form link, browser and repetition count
are asked interactively and saved to .formpilot/config.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runForm,
}

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runTimes, "times", "n", 0, "Number of passes (default: config repetitions)")
	cmd.Flags().Uint64Var(&runSeed, "seed", 0, "Seed for reproducible answers")
	cmd.Flags().BoolVar(&runHeadless, "headless", false, "Run the browser without a window")
	cmd.Flags().BoolVar(&runAsk, "ask", false, "Ask for browser, link and repetitions even if configured")
	cmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record the run in the history database")
}

func runForm(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	cfg, err := loadRunConfig(cmd, ws, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(ws, cfg.Logging.ToLogging()); err != nil {
		logger.Warn("Failed to initialize file logging", zap.Error(err))
	}
	defer logging.CloseAll()
	if logging.IsDebugMode() {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Debug logs: "+filepath.Join(ws, ".formpilot", "logs")))
	}
	logging.Boot("Run requested: %s x%d with %s (headless=%v)", cfg.FormURL, cfg.Repetitions, cfg.Browser, cfg.Headless)

	filler, err := cfg.FillerConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	var recorder run.Recorder
	if cfg.History.Enabled && !runNoHistory {
		hs, err := store.Open(historyPath(ws, cfg))
		if err != nil {
			logging.BootWarn("History disabled: %v", err)
			logger.Warn("History disabled", zap.Error(err))
		} else {
			defer hs.Close()
			recorder = hs
		}
	}

	mgr := browser.NewSessionManager(cfg.BrowserConfig())
	logger.Info("Starting browser", zap.String("browser", cfg.Browser), zap.Bool("headless", cfg.Headless))
	if err := mgr.Start(ctx); err != nil {
		logging.BootError("Browser start failed: %v", err)
		return fmt.Errorf("failed to start browser: %w", err)
	}
	logger.Debug("Browser connected", zap.String("control_url", mgr.ControlURL()))
	defer func() {
		for _, s := range mgr.List() {
			logger.Debug("Closing session", zap.String("id", s.ID), zap.String("url", s.URL), zap.String("status", s.Status))
		}
		if err := mgr.Shutdown(context.Background()); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	session := browser.NewFormSession(mgr, cfg.Selectors.WithDefaults().Question)
	defer session.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%d passes)\n", titleStyle.Render("Filling"), cfg.FormURL, cfg.Repetitions)

	runner := run.NewRunner(session, recorder, run.Config{
		FormURL: cfg.FormURL,
		Times:   cfg.Repetitions,
		Filler:  filler,
		OnPass:  func(p run.PassResult) { printPass(out, p) },
	})
	summary, err := runner.Run(ctx)
	if summary != nil {
		printSummary(out, summary)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadRunConfig loads the config, runs the questionnaire when needed and
// applies command line overrides.
func loadRunConfig(cmd *cobra.Command, ws string, args []string) (*config.Config, error) {
	path := resolveConfigPath(ws)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	firstRun := !config.Exists(path)
	if runAsk || (firstRun && len(args) == 0 && isInteractive()) {
		asked, err := config.NewQuestionnaire(newPrompter()).Ask(cfg)
		if err != nil {
			return nil, err
		}
		dest := savePath(ws, path)
		if err := asked.Save(dest); err != nil {
			return nil, err
		}
		logger.Info("Saved configuration", zap.String("path", dest))
		cfg = asked
	}

	if len(args) > 0 {
		cfg.FormURL = strings.TrimSpace(args[0])
	}
	flags := cmd.Flags()
	if flags.Changed("times") {
		cfg.Repetitions = runTimes
	}
	if flags.Changed("seed") {
		seed := runSeed
		cfg.Seed = &seed
	}
	if flags.Changed("headless") {
		cfg.Headless = runHeadless
	}
	return cfg, nil
}

func printPass(w io.Writer, p run.PassResult) {
	if p.Err != nil {
		fmt.Fprintf(w, "  pass %d  %s\n", p.Pass, errorStyle.Render(p.Err.Error()))
		return
	}
	status := "submitted"
	style := statusStyle(store.StatusCompleted)
	if !p.Report.Submitted {
		status = "not submitted"
		style = errorStyle
	}
	fmt.Fprintf(w, "  pass %d  %d/%d answered, %d text fields, %d errors  %s  %s\n",
		p.Pass, p.Report.Answered(), len(p.Report.Questions), p.Report.TextFields,
		p.Report.ErrorCount(), style.Render(status), mutedStyle.Render(p.Duration.Round(time.Millisecond).String()))
}

func printSummary(w io.Writer, s *run.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Run"), statusStyle(s.Status).Render(s.Status))
	if s.RunID != "" {
		fmt.Fprintf(w, "  id:        %s\n", s.RunID)
	}
	fmt.Fprintf(w, "  passes:    %d/%d\n", s.Completed, s.Planned)
	fmt.Fprintf(w, "  submitted: %d\n", s.Submitted)
	fmt.Fprintf(w, "  answered:  %d\n", s.Answered)
	fmt.Fprintf(w, "  errors:    %d\n", s.Errors)
	fmt.Fprintf(w, "  duration:  %s\n", s.Duration.Round(time.Millisecond))
}
