package config

import "strings"

// LegacyConfig is the pre-YAML config.json format.
type LegacyConfig struct {
	// BrowserChoice is "1" for Firefox or "2" for Chrome.
	BrowserChoice string `json:"browser_choice"`
	FormLink      string `json:"form_link"`
}

// LegacyBrowser maps a legacy browser choice to a browser name. Names are
// passed through so hand-edited files keep working.
func LegacyBrowser(choice string) string {
	switch strings.TrimSpace(choice) {
	case "1":
		return "firefox"
	case "2":
		return "chrome"
	}
	return strings.ToLower(strings.TrimSpace(choice))
}

// Apply copies the legacy settings onto cfg.
func (l LegacyConfig) Apply(cfg *Config) {
	if l.BrowserChoice != "" {
		cfg.Browser = LegacyBrowser(l.BrowserChoice)
	}
	cfg.FormURL = strings.TrimSpace(l.FormLink)
}
