package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"formpilot/internal/browser"
	"formpilot/internal/form"
	"formpilot/internal/logging"

	"gopkg.in/yaml.v3"
)

// ErrFirefoxUnsupported is returned when firefox is configured. The
// DevTools driver only controls Chromium-family browsers.
var ErrFirefoxUnsupported = errors.New("firefox is not supported; use chrome, chromium or edge")

// DefaultPath is where the config lives relative to the workspace.
const DefaultPath = ".formpilot/config.yaml"

// Config holds all formpilot configuration.
type Config struct {
	FormURL     string   `yaml:"form_url" json:"form_url"`
	Browser     string   `yaml:"browser" json:"browser"`
	BrowserBin  string   `yaml:"browser_bin,omitempty" json:"browser_bin,omitempty"`
	DebuggerURL string   `yaml:"debugger_url,omitempty" json:"debugger_url,omitempty"`
	Headless    bool     `yaml:"headless" json:"headless"`
	LaunchFlags []string `yaml:"launch_flags,omitempty" json:"launch_flags,omitempty"`

	// Repetitions is the default number of passes per run.
	Repetitions int    `yaml:"repetitions" json:"repetitions"`
	TextAnswer  string `yaml:"text_answer" json:"text_answer"`
	// Seed makes answer selection reproducible; nil draws a random seed.
	Seed *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Locale names the form UI language ("en" or "ru"); LocaleStrings
	// overrides individual strings.
	Locale        string      `yaml:"locale" json:"locale"`
	LocaleStrings form.Locale `yaml:"locale_strings,omitempty" json:"locale_strings,omitempty"`

	Timeouts  TimeoutsConfig `yaml:"timeouts" json:"timeouts"`
	Selectors form.Selectors `yaml:"selectors,omitempty" json:"selectors,omitempty"`
	History   HistoryConfig  `yaml:"history" json:"history"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
}

// TimeoutsConfig holds durations as strings ("10s").
type TimeoutsConfig struct {
	Navigation string `yaml:"navigation" json:"navigation"`
	Element    string `yaml:"element" json:"element"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// SupportedBrowsers lists the browsers the driver can control.
var SupportedBrowsers = []string{"chrome", "chromium", "edge"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser:     "chrome",
		Repetitions: 1,
		TextAnswer:  form.DefaultTextAnswer,
		Locale:      "en",
		Timeouts: TimeoutsConfig{
			Navigation: "10s",
			Element:    "5s",
		},
		Selectors: form.DefaultSelectors(),
		History: HistoryConfig{
			Enabled: true,
			Path:    ".formpilot/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load loads configuration from a YAML or JSON file. A missing file yields
// the defaults. JSON files written by the legacy tool (browser_choice and
// form_link keys) are migrated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := decodeJSON(data, cfg); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Selectors = cfg.Selectors.WithDefaults()
	cfg.applyEnvOverrides()
	cfg.FormURL = strings.TrimSpace(cfg.FormURL)
	logging.ConfigInfo("Loaded config from %s", path)
	return cfg, nil
}

func decodeJSON(data []byte, cfg *Config) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	_, hasChoice := keys["browser_choice"]
	_, hasLink := keys["form_link"]
	if hasChoice || hasLink {
		var legacy LegacyConfig
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("failed to parse legacy config: %w", err)
		}
		logging.ConfigWarn("Migrating legacy config (browser_choice=%q)", legacy.BrowserChoice)
		legacy.Apply(cfg)
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FORMPILOT_FORM_URL"); v != "" {
		c.FormURL = v
	}
	if v := os.Getenv("FORMPILOT_BROWSER"); v != "" {
		c.Browser = v
	}
	if v := os.Getenv("FORMPILOT_BROWSER_BIN"); v != "" {
		c.BrowserBin = v
	}
	if v := os.Getenv("FORMPILOT_DEBUGGER_URL"); v != "" {
		c.DebuggerURL = v
	}
	if v := os.Getenv("FORMPILOT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Headless = b
		} else {
			logging.ConfigWarn("Ignoring FORMPILOT_HEADLESS=%q: %v", v, err)
		}
	}
	if v := os.Getenv("FORMPILOT_HISTORY_DB"); v != "" {
		c.History.Path = v
	}
}

// NavigationTimeout returns the navigation timeout as a duration.
func (c *Config) NavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeouts.Navigation)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// ElementTimeout returns the per-element timeout as a duration.
func (c *Config) ElementTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeouts.Element)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// ResolvedLocale returns the named locale with any configured overrides.
func (c *Config) ResolvedLocale() (form.Locale, error) {
	loc, ok := form.LocaleByName(c.Locale)
	if !ok {
		return form.Locale{}, fmt.Errorf("unknown locale %q (valid: en, ru)", c.Locale)
	}
	if c.LocaleStrings.GridAnswerPrefix != "" {
		loc.GridAnswerPrefix = c.LocaleStrings.GridAnswerPrefix
	}
	if c.LocaleStrings.RequiredMarker != "" {
		loc.RequiredMarker = c.LocaleStrings.RequiredMarker
	}
	return loc, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := ValidateFormURL(c.FormURL); err != nil {
		return err
	}
	if err := ValidateBrowser(c.Browser); err != nil {
		return err
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", c.Repetitions)
	}
	if _, err := c.ResolvedLocale(); err != nil {
		return err
	}
	for name, v := range map[string]string{"navigation": c.Timeouts.Navigation, "element": c.Timeouts.Element} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s timeout %q: %w", name, v, err)
		}
	}
	return nil
}

// ValidateFormURL checks that u is an absolute http(s) URL. Surrounding
// whitespace is ignored.
func ValidateFormURL(u string) error {
	u = strings.TrimSpace(u)
	if u == "" {
		return errors.New("form_url is required")
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid form_url: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("form_url must be an absolute http(s) URL, got %q", u)
	}
	return nil
}

// ValidateBrowser checks that name is a supported browser.
func ValidateBrowser(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "firefox" {
		return ErrFirefoxUnsupported
	}
	for _, b := range SupportedBrowsers {
		if name == b {
			return nil
		}
	}
	return fmt.Errorf("invalid browser: %s (valid: %v)", name, SupportedBrowsers)
}

// BrowserConfig converts to the browser package's config.
func (c *Config) BrowserConfig() browser.Config {
	bc := browser.DefaultConfig()
	bc.Browser = strings.ToLower(strings.TrimSpace(c.Browser))
	bc.Bin = c.BrowserBin
	bc.DebuggerURL = c.DebuggerURL
	bc.Headless = c.Headless
	bc.Launch = c.LaunchFlags
	bc.NavigationTimeoutMs = int(c.NavigationTimeout().Milliseconds())
	bc.ElementTimeoutMs = int(c.ElementTimeout().Milliseconds())
	return bc
}

// FillerConfig converts to the form engine's config. The element timeout is
// applied by the browser session, so it is left zero here.
func (c *Config) FillerConfig() (form.FillerConfig, error) {
	loc, err := c.ResolvedLocale()
	if err != nil {
		return form.FillerConfig{}, err
	}
	fc := form.FillerConfig{
		Selectors:  c.Selectors.WithDefaults(),
		Locale:     loc,
		TextAnswer: c.TextAnswer,
	}
	if c.Seed != nil {
		fc.Rand = form.NewSeededRand(*c.Seed)
	}
	return fc, nil
}
