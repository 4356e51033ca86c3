package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"formpilot/internal/config"
	"formpilot/internal/form"
	"formpilot/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// scriptedPrompter replays fixed answers; an empty answer takes the default.
type scriptedPrompter struct {
	answers []string
}

func (p *scriptedPrompter) next() string {
	if len(p.answers) == 0 {
		return ""
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a
}

func (p *scriptedPrompter) Select(message string, options []string, def string) (string, error) {
	if a := p.next(); a != "" {
		return a, nil
	}
	return def, nil
}

func (p *scriptedPrompter) Input(message, def string, validate func(string) error) (string, error) {
	a := p.next()
	if a == "" {
		a = def
	}
	if validate != nil {
		if err := validate(a); err != nil {
			return "", err
		}
	}
	return a, nil
}

func setupCLI(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	workspace = t.TempDir()
	configPath = ""
	timeout = 0
	for _, k := range []string{
		"FORMPILOT_FORM_URL", "FORMPILOT_BROWSER", "FORMPILOT_BROWSER_BIN",
		"FORMPILOT_DEBUGGER_URL", "FORMPILOT_HEADLESS", "FORMPILOT_HISTORY_DB",
	} {
		t.Setenv(k, "")
	}

	origInteractive, origPrompter := isInteractive, newPrompter
	t.Cleanup(func() {
		isInteractive, newPrompter = origInteractive, origPrompter
		runAsk, runTimes, runSeed, runHeadless, runNoHistory = false, 0, 0, false, false
		inspectAnswer, inspectRender, inspectSeed = false, "", 0
		historyLimit, historyPass = 10, 0
	})
	isInteractive = func() bool { return false }
	return workspace
}

func newRunCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	registerRunFlags(cmd)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

func outputCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

func TestDecodePayload(t *testing.T) {
	setupCLI(t)
	cmd, out := outputCommand()

	if err := decodePayload(cmd, []string{`%.@.[102,"Pick two",null,4,[[202,null,[[7,5,["2"]]]]]]`}); err != nil {
		t.Fatalf("decodePayload returned error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"type code:  4", "multiple", "min=2 max=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got: %s", want, got)
		}
	}
}

func TestDecodePayloadWithoutTypeCode(t *testing.T) {
	setupCLI(t)
	cmd, out := outputCommand()

	if err := decodePayload(cmd, []string{"garbage"}); err != nil {
		t.Fatalf("decodePayload returned error: %v", err)
	}
	if !strings.Contains(out.String(), "unknown") || !strings.Contains(out.String(), "type code:  -") {
		t.Errorf("expected unknown classification, got: %s", out.String())
	}
}

func TestInspectPage(t *testing.T) {
	setupCLI(t)
	cmd, out := outputCommand()

	if err := inspectPage(cmd, []string{filepath.Join("testdata", "form.html")}); err != nil {
		t.Fatalf("inspectPage returned error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Questions (4)", "Favourite colour", "single", "multiple", "grid", "Red, Blue, Green"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got: %s", want, got)
		}
	}
}

func TestInspectAnswerAndRender(t *testing.T) {
	ws := setupCLI(t)
	cmd, out := outputCommand()
	inspectRender = filepath.Join(ws, "answered.html")

	if err := inspectPage(cmd, []string{filepath.Join("testdata", "form.html")}); err != nil {
		t.Fatalf("inspectPage returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Answered 3/4 questions") {
		t.Errorf("expected answer summary, got: %s", out.String())
	}

	data, err := os.ReadFile(inspectRender)
	if err != nil {
		t.Fatalf("rendered page missing: %v", err)
	}
	if !strings.Contains(string(data), `value="Lorem Ipsum"`) {
		t.Error("rendered page should carry the filled text answer")
	}
}

func TestInspectMissingFile(t *testing.T) {
	setupCLI(t)
	cmd, _ := outputCommand()
	if err := inspectPage(cmd, []string{"testdata/absent.html"}); err == nil {
		t.Fatal("expected error for missing page")
	}
}

func TestHistoryEmpty(t *testing.T) {
	setupCLI(t)
	cmd, out := outputCommand()

	if err := listHistory(cmd, nil); err != nil {
		t.Fatalf("listHistory returned error: %v", err)
	}
	if !strings.Contains(out.String(), "No runs recorded yet") {
		t.Fatalf("expected empty history notice, got: %s", out.String())
	}
}

func seedHistory(t *testing.T, ws string) string {
	t.Helper()
	ctx := context.Background()
	hs, err := store.Open(filepath.Join(ws, config.DefaultConfig().History.Path))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer hs.Close()

	runID, err := hs.BeginRun(ctx, "https://example.test/form", 2)
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	report := form.PageReport{
		Questions: []form.Outcome{
			{Index: 1, Title: "Favourite colour", Type: form.TypeSingle, OptionCount: 3, Selected: []string{"Blue"}, Activated: 1},
			{Index: 2, Title: "Comments", Type: form.TypeUnknown, Errors: []error{form.ErrNoOptions}},
		},
		TextFields: 1,
		Submitted:  true,
	}
	if err := hs.RecordPass(ctx, runID, 1, report); err != nil {
		t.Fatalf("RecordPass failed: %v", err)
	}
	if err := hs.FinishRun(ctx, runID, store.StatusCompleted); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	return runID
}

func TestHistoryListAndShow(t *testing.T) {
	ws := setupCLI(t)
	runID := seedHistory(t, ws)

	cmd, out := outputCommand()
	if err := listHistory(cmd, nil); err != nil {
		t.Fatalf("listHistory returned error: %v", err)
	}
	if !strings.Contains(out.String(), runID) || !strings.Contains(out.String(), "completed") {
		t.Errorf("expected run in listing, got: %s", out.String())
	}

	cmd, out = outputCommand()
	if err := showHistory(cmd, []string{runID}); err != nil {
		t.Fatalf("showHistory returned error: %v", err)
	}
	if !strings.Contains(out.String(), "https://example.test/form") || !strings.Contains(out.String(), "Passes") {
		t.Errorf("expected pass table, got: %s", out.String())
	}

	historyPass = 1
	cmd, out = outputCommand()
	if err := showHistory(cmd, []string{runID}); err != nil {
		t.Fatalf("showHistory --pass returned error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Favourite colour") || !strings.Contains(got, "Blue") {
		t.Errorf("expected answers, got: %s", got)
	}
	if !strings.Contains(got, "question 2") {
		t.Errorf("expected recorded error for question 2, got: %s", got)
	}
}

func TestHistoryShowUnknownRun(t *testing.T) {
	ws := setupCLI(t)
	seedHistory(t, ws)

	cmd, _ := outputCommand()
	err := showHistory(cmd, []string{"no-such-run"})
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	historyPass = 9
	err = showHistory(cmd, []string{"no-such-run"})
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound for missing pass, got %v", err)
	}
}

func TestConfigInitSavesAnswers(t *testing.T) {
	ws := setupCLI(t)
	newPrompter = func() config.Prompter {
		return &scriptedPrompter{answers: []string{"edge", "https://example.test/form", "4"}}
	}

	cmd, out := outputCommand()
	if err := configInit(cmd, nil); err != nil {
		t.Fatalf("configInit returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration saved") {
		t.Errorf("expected confirmation, got: %s", out.String())
	}

	cfg, err := config.Load(filepath.Join(ws, config.DefaultPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Browser != "edge" || cfg.FormURL != "https://example.test/form" || cfg.Repetitions != 4 {
		t.Errorf("unexpected saved config: %+v", cfg)
	}
}

func TestConfigShowDefaults(t *testing.T) {
	setupCLI(t)
	cmd, out := outputCommand()

	if err := configShow(cmd, nil); err != nil {
		t.Fatalf("configShow returned error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "showing defaults") || !strings.Contains(got, "browser: chrome") {
		t.Errorf("expected default config, got: %s", got)
	}
	if !strings.Contains(got, "form_url is required") {
		t.Errorf("expected validation warning, got: %s", got)
	}
}

func TestLegacyConfigIsMigrated(t *testing.T) {
	ws := setupCLI(t)
	legacy := `{"browser_choice": "2", "form_link": "https://example.test/legacy"}`
	if err := os.WriteFile(filepath.Join(ws, legacyConfigName), []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	if got := resolveConfigPath(ws); filepath.Base(got) != legacyConfigName {
		t.Fatalf("expected legacy config to be picked up, got %s", got)
	}

	newPrompter = func() config.Prompter { return &scriptedPrompter{} }
	cmd, _ := outputCommand()
	if err := configInit(cmd, nil); err != nil {
		t.Fatalf("configInit returned error: %v", err)
	}

	cfg, err := config.Load(filepath.Join(ws, config.DefaultPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FormURL != "https://example.test/legacy" || cfg.Browser != "chrome" {
		t.Errorf("legacy settings not carried over: %+v", cfg)
	}
	if got := resolveConfigPath(ws); filepath.Base(got) != "config.yaml" {
		t.Errorf("migrated YAML should take precedence, got %s", got)
	}
}

func TestLoadRunConfigOverrides(t *testing.T) {
	ws := setupCLI(t)
	cmd, _ := newRunCommand(t)
	if err := cmd.Flags().Set("times", "3"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("seed", "42"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("headless", "true"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadRunConfig(cmd, ws, []string{" https://example.test/arg\n"})
	if err != nil {
		t.Fatalf("loadRunConfig returned error: %v", err)
	}
	if cfg.FormURL != "https://example.test/arg" || cfg.Repetitions != 3 || !cfg.Headless {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Seed == nil || *cfg.Seed != 42 {
		t.Errorf("expected seed 42, got %v", cfg.Seed)
	}
	if config.Exists(filepath.Join(ws, config.DefaultPath)) {
		t.Error("non-interactive run must not write a config")
	}
}

func TestLoadRunConfigAsksOnFirstRun(t *testing.T) {
	ws := setupCLI(t)
	isInteractive = func() bool { return true }
	newPrompter = func() config.Prompter {
		return &scriptedPrompter{answers: []string{"chromium", "https://example.test/asked", "2"}}
	}

	cmd, _ := newRunCommand(t)
	cfg, err := loadRunConfig(cmd, ws, nil)
	if err != nil {
		t.Fatalf("loadRunConfig returned error: %v", err)
	}
	if cfg.Browser != "chromium" || cfg.FormURL != "https://example.test/asked" || cfg.Repetitions != 2 {
		t.Errorf("questionnaire answers not used: %+v", cfg)
	}
	if !config.Exists(filepath.Join(ws, config.DefaultPath)) {
		t.Error("questionnaire answers should be saved")
	}
}

func TestRunFormRejectsInvalidConfig(t *testing.T) {
	setupCLI(t)
	cmd, _ := newRunCommand(t)

	err := runForm(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "form_url is required") {
		t.Fatalf("expected missing form_url error, got %v", err)
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := historyPath("/ws", cfg); got != filepath.Join("/ws", ".formpilot", "history.db") {
		t.Errorf("historyPath = %s", got)
	}
	cfg.History.Path = "/abs/h.db"
	if got := historyPath("/ws", cfg); got != "/abs/h.db" {
		t.Errorf("historyPath = %s", got)
	}
	cfg.History.Path = ":memory:"
	if got := historyPath("/ws", cfg); got != ":memory:" {
		t.Errorf("historyPath = %s", got)
	}
}

func TestTable(t *testing.T) {
	tb := newTable("Title", "A", "Bee")
	tb.addRow("1", "two")
	tb.addRow("333")
	got := tb.String()
	for _, want := range []string{"Title", "Bee", "two", "333"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in table, got: %s", want, got)
		}
	}
	if truncate("abcdefgh", 5) != "ab..." || truncate("abc", 5) != "abc" {
		t.Error("truncate mismatch")
	}
}
