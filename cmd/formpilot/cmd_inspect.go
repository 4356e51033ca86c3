package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"formpilot/internal/config"
	"formpilot/internal/form"
	"formpilot/internal/htmldom"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	inspectAnswer bool
	inspectRender string
	inspectSeed   uint64
)

// inspectCmd reads a saved form page without a browser
var inspectCmd = &cobra.Command{
	Use:   "inspect <page.html>",
	Short: "Classify the questions of a saved form page",
	Long: `Parses a saved copy of a form page and prints how every question is
classified: its type, selection limits and extracted options. With --answer
the offline copy is answered and submitted exactly as a browser pass would,
and --render writes the resulting markup.`,
	Args: cobra.ExactArgs(1),
	RunE: inspectPage,
}

// decodeCmd decodes a raw question payload
var decodeCmd = &cobra.Command{
	Use:   "decode <payload>",
	Short: "Decode a question's data-params payload",
	Args:  cobra.ExactArgs(1),
	RunE:  decodePayload,
}

func inspectPage(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return err
	}
	fc, err := cfg.FillerConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		fc.Rand = form.NewSeededRand(inspectSeed)
	}

	doc, err := htmldom.ParseFile(args[0])
	if err != nil {
		return err
	}
	logger.Debug("Parsed page", zap.String("path", args[0]))

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	filler := form.NewFiller(doc, fc)

	if !inspectAnswer && inspectRender == "" {
		return printQuestions(ctx, out, doc, filler, fc.Selectors.WithDefaults())
	}

	report := filler.FillPage(ctx)
	printReport(out, report, len(doc.Clicks()))

	if inspectRender != "" {
		f, err := os.Create(inspectRender)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", inspectRender, err)
		}
		defer f.Close()
		if err := doc.Render(f); err != nil {
			return fmt.Errorf("failed to render page: %w", err)
		}
		fmt.Fprintf(out, "Rendered answered page to %s\n", inspectRender)
	}
	return nil
}

func printQuestions(ctx context.Context, w io.Writer, dom form.DOM, filler *form.Filler, sel form.Selectors) error {
	nodes, err := dom.FindAll(ctx, nil, sel.Question)
	if err != nil {
		return fmt.Errorf("failed to list questions: %w", err)
	}
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No questions found.")
		return nil
	}

	t := newTable(fmt.Sprintf("Questions (%d)", len(nodes)), "#", "Title", "Type", "Required", "Limits", "Options")
	var problems []string
	for i, n := range nodes {
		q, errs := filler.ReadQuestion(ctx, n, i+1)
		labels := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			labels = append(labels, o.Label)
		}
		t.addRow(strconv.Itoa(q.Index), truncate(q.Title, 40), q.Type.String(),
			strconv.FormatBool(q.Required), q.Constraint.String(), truncate(strings.Join(labels, ", "), 50))
		for _, e := range errs {
			problems = append(problems, fmt.Sprintf("question %d: %v", q.Index, e))
		}
	}
	fmt.Fprint(w, t.String())
	for _, p := range problems {
		fmt.Fprintln(w, warningStyle.Render("  ! "+p))
	}
	return nil
}

func printReport(w io.Writer, r form.PageReport, clicks int) {
	t := newTable("Answers", "#", "Title", "Type", "Limits", "Selected", "Errors")
	for _, q := range r.Questions {
		t.addRow(strconv.Itoa(q.Index), truncate(q.Title, 40), q.Type.String(), q.Constraint.String(),
			truncate(strings.Join(q.Selected, ", "), 50), strconv.Itoa(len(q.Errors)))
	}
	fmt.Fprint(w, t.String())
	for _, q := range r.Questions {
		for _, e := range q.Errors {
			fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("  ! question %d: %v", q.Index, e)))
		}
	}
	for _, e := range r.TextFieldErrors {
		fmt.Fprintln(w, warningStyle.Render("  ! "+e.Error()))
	}

	submitted := statusStyle("completed").Render("yes")
	if !r.Submitted {
		submitted = errorStyle.Render(fmt.Sprintf("no (%v)", r.SubmitErr))
	}
	fmt.Fprintf(w, "\nAnswered %d/%d questions, %d text fields, %d activations, submitted: %s\n",
		r.Answered(), len(r.Questions), r.TextFields, clicks, submitted)
}

func decodePayload(cmd *cobra.Command, args []string) error {
	p := form.Params(args[0])
	out := cmd.OutOrStdout()

	code, ok := p.TypeCode()
	if !ok {
		code = "-"
	}
	fmt.Fprintf(out, "type code:  %s\n", code)
	fmt.Fprintf(out, "type:       %s\n", form.Classify(p))
	fmt.Fprintf(out, "limits:     %s\n", form.ExtractConstraint(p))
	return nil
}
