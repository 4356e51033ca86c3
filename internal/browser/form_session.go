package browser

import (
	"context"
	"errors"

	"formpilot/internal/form"
)

// FormSession binds one managed page to a form URL across repeated passes.
type FormSession struct {
	mgr           *SessionManager
	readySelector string

	id  string
	url string
}

// NewFormSession creates a FormSession. readySelector is the element whose
// presence marks the form as rendered.
func NewFormSession(mgr *SessionManager, readySelector string) *FormSession {
	return &FormSession{mgr: mgr, readySelector: readySelector}
}

// ID returns the underlying session ID, empty before Open.
func (s *FormSession) ID() string { return s.id }

// Open navigates to url, creating the page on first use.
func (s *FormSession) Open(ctx context.Context, url string) error {
	s.url = url
	if s.id == "" {
		sess, err := s.mgr.CreateSession(ctx, url)
		if sess != nil {
			s.id = sess.ID
		}
		return err
	}
	return s.mgr.Navigate(ctx, s.id, url)
}

// WaitReady waits for the form to render.
func (s *FormSession) WaitReady(ctx context.Context) error {
	if s.id == "" {
		return errors.New("form session not opened")
	}
	return s.mgr.WaitReady(ctx, s.id, s.readySelector)
}

func (s *FormSession) DOM() (form.DOM, error) {
	if s.id == "" {
		return nil, errors.New("form session not opened")
	}
	return s.mgr.DOM(s.id)
}

// Reset returns the page to a blank form with no cookies.
func (s *FormSession) Reset(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	return s.mgr.Reset(ctx, s.id, s.url)
}

// Close closes the page.
func (s *FormSession) Close() error {
	if s.id == "" {
		return nil
	}
	id := s.id
	s.id = ""
	return s.mgr.CloseSession(id)
}
