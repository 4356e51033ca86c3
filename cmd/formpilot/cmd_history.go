package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"formpilot/internal/config"
	"formpilot/internal/store"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyPass  int
)

// historyCmd lists recorded runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	RunE:  listHistory,
}

// historyShowCmd shows the passes of a run
var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the passes of a run, or one pass's answers with --pass",
	Args:  cobra.ExactArgs(1),
	RunE:  showHistory,
}

func openHistory() (*store.HistoryStore, error) {
	ws := resolveWorkspace()
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return nil, err
	}
	path := historyPath(ws, cfg)
	if path != ":memory:" && !config.Exists(path) {
		return nil, nil
	}
	return store.Open(path)
}

func listHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	hs, err := openHistory()
	if err != nil {
		return err
	}
	if hs == nil {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	defer hs.Close()

	runs, err := hs.RecentRuns(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	t := newTable("Recent runs", "Run", "Started", "Status", "Passes", "Submitted", "Form")
	for _, r := range runs {
		t.addRow(r.ID, r.StartedAt.Format(time.DateTime), statusStyle(r.Status).Render(r.Status),
			fmt.Sprintf("%d/%d", r.CompletedPasses, r.PlannedPasses), strconv.Itoa(r.SubmittedPasses),
			truncate(r.FormURL, 60))
	}
	fmt.Fprint(out, t.String())
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	hs, err := openHistory()
	if err != nil {
		return err
	}
	if hs == nil {
		return fmt.Errorf("run %s: %w", args[0], store.ErrRunNotFound)
	}
	defer hs.Close()

	ctx := context.Background()
	runID := args[0]

	if historyPass > 0 {
		answers, err := hs.PassAnswers(ctx, runID, historyPass)
		if err != nil {
			return err
		}
		if len(answers) == 0 {
			return fmt.Errorf("run %s has no pass %d: %w", runID, historyPass, store.ErrRunNotFound)
		}
		t := newTable(fmt.Sprintf("Run %s, pass %d", runID, historyPass),
			"#", "Title", "Type", "Required", "Limits", "Selected", "Errors")
		for _, a := range answers {
			t.addRow(strconv.Itoa(a.Question), truncate(a.Title, 40), a.Type, strconv.FormatBool(a.Required),
				a.Constraint, truncate(strings.Join(a.Selected, ", "), 50), strconv.Itoa(len(a.Errors)))
		}
		fmt.Fprint(out, t.String())
		for _, a := range answers {
			for _, e := range a.Errors {
				fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("  ! question %d: %s", a.Question, e)))
			}
		}
		return nil
	}

	passes, err := hs.Passes(ctx, runID)
	if err != nil {
		return err
	}
	run, err := hs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s  %s\n", titleStyle.Render("Run"), run.ID, statusStyle(run.Status).Render(run.Status))
	fmt.Fprintf(out, "  form:    %s\n", run.FormURL)
	fmt.Fprintf(out, "  started: %s\n", run.StartedAt.Format(time.DateTime))
	if len(passes) == 0 {
		fmt.Fprintln(out, "No passes recorded for this run.")
		return nil
	}

	t := newTable("Passes", "Pass", "Questions", "Answered", "Text", "Errors", "Submitted", "Recorded")
	for _, p := range passes {
		submitted := "yes"
		if !p.Submitted {
			submitted = "no"
			if p.SubmitError != "" {
				submitted = "no: " + truncate(p.SubmitError, 40)
			}
		}
		t.addRow(strconv.Itoa(p.Pass), strconv.Itoa(p.Questions), strconv.Itoa(p.Answered),
			strconv.Itoa(p.TextFields), strconv.Itoa(p.Errors), submitted, p.RecordedAt.Format(time.DateTime))
	}
	fmt.Fprint(out, t.String())
	return nil
}
