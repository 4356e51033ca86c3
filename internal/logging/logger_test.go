package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Config{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer CloseAll()

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Form("Convenience form log")
	Browser("Convenience browser log")
	Run("Convenience run log")
	Store("Convenience store log")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".formpilot", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range AllCategories {
		found := false
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				continue
			}
			found = true
			content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
			if err != nil {
				t.Errorf("Failed to read log file for %s: %v", cat, err)
				break
			}
			if !strings.Contains(string(content), "Test info message for "+string(cat)) {
				t.Errorf("Log file for %s missing info line: %q", cat, content)
			}
			break
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Config{DebugMode: false}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer CloseAll()

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}

	Get(CategoryForm).Info("should not be written")
	FormWarn("should not be written either")

	if _, err := os.Stat(filepath.Join(tempDir, ".formpilot", "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist in production mode, stat err=%v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	tempDir := t.TempDir()

	cfg := Config{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"form": true, "browser": false},
	}
	if err := Initialize(tempDir, cfg); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer CloseAll()

	if !IsCategoryEnabled(CategoryForm) {
		t.Error("form should be enabled")
	}
	if IsCategoryEnabled(CategoryBrowser) {
		t.Error("browser should be disabled")
	}
	if !IsCategoryEnabled(CategoryRun) {
		t.Error("unlisted categories default to enabled")
	}

	Browser("suppressed")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".formpilot", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "_browser.log") {
			t.Errorf("browser log should not be created: %s", entry.Name())
		}
	}
}

func TestJSONFormat(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Config{DebugMode: true, Format: "json"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	Get(CategoryRun).With("pass", 3).Info("pass finished")
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(tempDir, ".formpilot", "logs", "*_run.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one run log, got %v", matches)
	}
	content, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"pass finished"`) || !strings.Contains(string(content), `"pass":3`) {
		t.Errorf("expected JSON entry with fields, got %s", content)
	}
}

func TestTimerLogging(t *testing.T) {
	tempDir := t.TempDir()
	if err := Initialize(tempDir, Config{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer CloseAll()

	timer := StartTimer(CategoryForm, "classify")
	time.Sleep(2 * time.Millisecond)
	if elapsed := timer.Stop(); elapsed < 2*time.Millisecond {
		t.Errorf("expected elapsed >= 2ms, got %v", elapsed)
	}

	slow := StartTimer(CategoryForm, "fill page")
	time.Sleep(2 * time.Millisecond)
	if elapsed := slow.StopWithThreshold(time.Millisecond); elapsed < time.Millisecond {
		t.Errorf("expected elapsed over threshold, got %v", elapsed)
	}
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	if err := Initialize("", Config{}); err == nil {
		t.Error("expected error for empty workspace")
	}
}
