// Package browser drives a Chromium-family browser over the DevTools protocol
// and exposes its pages to the form engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"formpilot/internal/form"
	"formpilot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// ErrUnknownSession is returned for session IDs the manager does not track.
var ErrUnknownSession = errors.New("unknown session")

// ErrUnsupportedBrowser is returned for browsers the DevTools driver cannot control.
var ErrUnsupportedBrowser = errors.New("unsupported browser")

// Session describes the public metadata for a tracked page.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *rod.Page
}

// Config holds browser configuration.
type Config struct {
	Browser             string   `json:"browser" yaml:"browser"`
	Bin                 string   `json:"bin" yaml:"bin"`
	DebuggerURL         string   `json:"debugger_url" yaml:"debugger_url"`
	Launch              []string `json:"launch" yaml:"launch"`
	Headless            bool     `json:"headless" yaml:"headless"`
	ViewportWidth       int      `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight      int      `json:"viewport_height" yaml:"viewport_height"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms" yaml:"navigation_timeout_ms"`
	ElementTimeoutMs    int      `json:"element_timeout_ms" yaml:"element_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Browser:             "chrome",
		ViewportWidth:       1280,
		ViewportHeight:      900,
		NavigationTimeoutMs: 10000,
		ElementTimeoutMs:    5000,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 900
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ElementTimeout bounds each element call; zero means unbounded.
func (c Config) ElementTimeout() time.Duration {
	if c.ElementTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.ElementTimeoutMs) * time.Millisecond
}

// browserBinaries lists executable names per supported browser.
var browserBinaries = map[string][]string{
	"chrome":   {"google-chrome", "google-chrome-stable", "chrome"},
	"chromium": {"chromium", "chromium-browser"},
	"edge":     {"microsoft-edge", "microsoft-edge-stable", "msedge"},
}

// ResolveBinary finds the executable for a browser name. An empty result
// with a nil error lets the launcher locate or download Chromium itself.
func ResolveBinary(browser string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(browser))
	if name == "" {
		name = "chrome"
	}
	candidates, ok := browserBinaries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBrowser, browser)
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	if name != "edge" {
		if path, found := launcher.LookPath(); found {
			return path, nil
		}
	}
	return "", nil
}

// SessionManager owns the browser process and tracks its pages.
type SessionManager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	sessions   map[string]*sessionRecord
	controlURL string
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing browser or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("Stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		url, err := m.launchLocked(ctx)
		if err != nil {
			return err
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("Connected to browser at %s", controlURL)
	return nil
}

func (m *SessionManager) launchLocked(ctx context.Context) (string, error) {
	bin := m.cfg.Bin
	if bin == "" {
		resolved, err := ResolveBinary(m.cfg.Browser)
		if err != nil {
			return "", err
		}
		bin = resolved
	}

	l := launcher.New().Context(ctx).Headless(m.cfg.Headless)
	if bin != "" {
		l = l.Bin(bin)
	}
	for _, rawFlag := range m.cfg.Launch {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	logging.Browser("Launching %s (bin=%q headless=%v)", m.cfg.Browser, bin, m.cfg.Headless)
	url, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch %s: %w", m.cfg.Browser, err)
	}
	m.launcher = l
	return url, nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the DevTools WebSocket URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes tracked pages and the browser. A launched process is
// killed and its profile directory removed.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.sessions {
		if record.page != nil {
			_ = record.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		if err != nil {
			logging.BrowserError("Closing browser failed: %v", err)
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
		m.launcher = nil
	}
	m.controlURL = ""
	logging.Browser("Browser shut down")
	return err
}

// List returns metadata for all known sessions, oldest first.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, record := range m.sessions {
		results = append(results, record.meta)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results
}

// CreateSession opens a page in a fresh incognito context and navigates it to url.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("Failed to set viewport: %v", err)
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.mu.Unlock()

	if url != "" {
		if err := m.navigatePage(ctx, page, url); err != nil {
			m.setStatus(meta.ID, "error")
			logging.BrowserError("Session %s failed to open %s: %v", meta.ID, url, err)
			return &meta, err
		}
	}
	logging.Get(logging.CategoryBrowser).With("session", meta.ID).Info("Session opened on %s", url)
	return &meta, nil
}

// Page returns the underlying rod page for a session.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// GetSession returns session metadata.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

func (m *SessionManager) touch(sessionID, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		if url != "" {
			rec.meta.URL = url
		}
		rec.meta.LastActive = time.Now()
	}
}

func (m *SessionManager) setStatus(sessionID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.meta.Status = status
	}
}

func (m *SessionManager) page(ctx context.Context, sessionID string) (*rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	page, ok := m.Page(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return page, nil
}

func (m *SessionManager) navigatePage(ctx context.Context, page *rod.Page, url string) error {
	p := page.Context(ctx).Timeout(m.cfg.NavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

// Navigate navigates a session to url.
func (m *SessionManager) Navigate(ctx context.Context, sessionID, url string) error {
	page, err := m.page(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.navigatePage(ctx, page, url); err != nil {
		return err
	}
	m.touch(sessionID, url)
	return nil
}

// WaitReady blocks until selector matches on the session's page or the
// navigation timeout elapses.
func (m *SessionManager) WaitReady(ctx context.Context, sessionID, selector string) error {
	page, err := m.page(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Element(selector); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Reset clears cookies and web storage, then navigates back to url so the
// next pass starts from a blank form.
func (m *SessionManager) Reset(ctx context.Context, sessionID, url string) error {
	page, err := m.page(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := (proto.NetworkClearBrowserCookies{}).Call(page.Context(ctx)); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	clearStorage(page.Context(ctx))
	if url == "" {
		meta, _ := m.GetSession(sessionID)
		url = meta.URL
	}
	logging.BrowserDebug("Session %s reset to %s", sessionID, url)
	return m.Navigate(ctx, sessionID, url)
}

// DOM returns the form-engine view of the session's page.
func (m *SessionManager) DOM(sessionID string) (form.DOM, error) {
	page, ok := m.Page(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	var dom form.DOM = NewPageDOM(page)
	if d := m.cfg.ElementTimeout(); d > 0 {
		dom = form.WithTimeout(dom, d)
	}
	return dom, nil
}

// CloseSession closes one page and forgets it.
func (m *SessionManager) CloseSession(sessionID string) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if rec.page != nil {
		return rec.page.Close()
	}
	return nil
}

func clearStorage(page *rod.Page) {
	_, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			try { localStorage.clear(); } catch (e) {}
			try { sessionStorage.clear(); } catch (e) {}
		}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		logging.BrowserDebug("Clearing web storage failed: %v", err)
	}
}
