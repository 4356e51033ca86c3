package form

import (
	"context"
	"time"
)

// Node is an opaque element handle owned by a DOM implementation.
// The engine never constructs or inspects it; a nil Node addresses the document.
type Node interface{}

// DOM is the element-access collaborator the engine drives.
// Every call may block; implementations honour ctx.
type DOM interface {
	FindAll(ctx context.Context, root Node, selector string) ([]Node, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, root Node, selector string) (Node, error)
	Attribute(ctx context.Context, node Node, name string) (string, bool, error)
	AccessibleName(ctx context.Context, node Node) (string, bool, error)
	Text(ctx context.Context, node Node) (string, error)
	Activate(ctx context.Context, node Node) error
	Input(ctx context.Context, node Node, text string) error
}

// Selectors are the fixed CSS selectors issued against the form markup.
type Selectors struct {
	Question          string `yaml:"question" json:"question"`
	MetadataCarrier   string `yaml:"metadata_carrier" json:"metadata_carrier"`
	MetadataAttribute string `yaml:"metadata_attribute" json:"metadata_attribute"`
	Option            string `yaml:"option" json:"option"`
	GridRow           string `yaml:"grid_row" json:"grid_row"`
	Title             string `yaml:"title" json:"title"`
	TextField         string `yaml:"text_field" json:"text_field"`
	TextInput         string `yaml:"text_input" json:"text_input"`
	Submit            string `yaml:"submit" json:"submit"`
}

// DefaultSelectors match the Google Forms viewer markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Question:          "div.Qr7Oae[role='listitem']",
		MetadataCarrier:   `div[jsmodel="CP1oW"]`,
		MetadataAttribute: "data-params",
		Option:            "[role='radio'], [role='checkbox']",
		GridRow:           "div.EzyPc",
		Title:             "div.HoXoMd",
		TextField:         "div.quantumWizTextinputPaperinputMainContent",
		TextInput:         "input",
		Submit:            "div[role='button'][aria-label='Submit']",
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Question, d.Question)
	fill(&s.MetadataCarrier, d.MetadataCarrier)
	fill(&s.MetadataAttribute, d.MetadataAttribute)
	fill(&s.Option, d.Option)
	fill(&s.GridRow, d.GridRow)
	fill(&s.Title, d.Title)
	fill(&s.TextField, d.TextField)
	fill(&s.TextInput, d.TextInput)
	fill(&s.Submit, d.Submit)
	return s
}

// Locale holds the localized strings the form renders.
type Locale struct {
	GridAnswerPrefix string `yaml:"grid_answer_prefix" json:"grid_answer_prefix"`
	RequiredMarker   string `yaml:"required_marker" json:"required_marker"`
}

// DefaultLocale is the English form UI.
func DefaultLocale() Locale {
	return Locale{
		GridAnswerPrefix: "Answer: ",
		RequiredMarker:   "Required question",
	}
}

// RussianLocale is the Russian form UI.
func RussianLocale() Locale {
	return Locale{
		GridAnswerPrefix: "Ответ: ",
		RequiredMarker:   "Обязательный вопрос",
	}
}

// LocaleByName resolves "en" or "ru"; ok is false for anything else.
func LocaleByName(name string) (Locale, bool) {
	switch name {
	case "", "en":
		return DefaultLocale(), true
	case "ru":
		return RussianLocale(), true
	}
	return Locale{}, false
}

// WithTimeout wraps dom so that every call runs under its own deadline.
func WithTimeout(dom DOM, d time.Duration) DOM {
	if td, ok := dom.(*timeoutDOM); ok {
		dom = td.inner
	}
	return &timeoutDOM{inner: dom, timeout: d}
}

type timeoutDOM struct {
	inner   DOM
	timeout time.Duration
}

func (t *timeoutDOM) FindAll(ctx context.Context, root Node, selector string) ([]Node, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.FindAll(ctx, root, selector)
}

func (t *timeoutDOM) FindOne(ctx context.Context, root Node, selector string) (Node, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.FindOne(ctx, root, selector)
}

func (t *timeoutDOM) Attribute(ctx context.Context, node Node, name string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Attribute(ctx, node, name)
}

func (t *timeoutDOM) AccessibleName(ctx context.Context, node Node) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.AccessibleName(ctx, node)
}

func (t *timeoutDOM) Text(ctx context.Context, node Node) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Text(ctx, node)
}

func (t *timeoutDOM) Activate(ctx context.Context, node Node) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Activate(ctx, node)
}

func (t *timeoutDOM) Input(ctx context.Context, node Node, text string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Input(ctx, node, text)
}
