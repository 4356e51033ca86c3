package form

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"formpilot/internal/logging"
)

// DefaultTextAnswer is typed into every free-text field.
const DefaultTextAnswer = "Lorem Ipsum"

// FillerConfig configures a Filler. Zero values fall back to defaults.
type FillerConfig struct {
	Selectors  Selectors
	Locale     Locale
	TextAnswer string
	// Rand drives every random choice; nil means randomly seeded.
	Rand *rand.Rand
	// ElementTimeout bounds each DOM call; zero leaves calls unbounded.
	ElementTimeout time.Duration
}

// Filler sequences classification, extraction and selection over every
// question of a page, then fills text inputs and submits.
type Filler struct {
	dom      DOM
	cfg      FillerConfig
	selector *AnswerSelector
}

// NewFiller creates a Filler driving dom.
func NewFiller(dom DOM, cfg FillerConfig) *Filler {
	cfg.Selectors = cfg.Selectors.WithDefaults()
	if cfg.Locale == (Locale{}) {
		cfg.Locale = DefaultLocale()
	}
	if cfg.TextAnswer == "" {
		cfg.TextAnswer = DefaultTextAnswer
	}
	if cfg.ElementTimeout > 0 {
		dom = WithTimeout(dom, cfg.ElementTimeout)
	}
	return &Filler{
		dom:      dom,
		cfg:      cfg,
		selector: NewAnswerSelector(cfg.Rand),
	}
}

// ReadQuestion decodes one question node without activating anything.
// The returned errors are the non-fatal extraction diagnostics.
func (f *Filler) ReadQuestion(ctx context.Context, node Node, index int) (Question, []error) {
	params := DecodeParameters(ctx, f.dom, node, f.cfg.Selectors)
	q := Question{
		Index:      index,
		Params:     params,
		Type:       Classify(params),
		Constraint: ExtractConstraint(params),
	}

	var errs []error
	if !params.Present {
		errs = append(errs, ErrParametersAbsent)
	}

	opts, extractErrs := ExtractOptions(ctx, f.dom, node, q.Type, f.cfg.Selectors, f.cfg.Locale)
	q.Options = opts
	errs = append(errs, extractErrs...)

	q.Title = f.questionTitle(ctx, node)
	q.Required = f.isRequired(ctx, node)

	logging.Form("Final question type: %s, %s, options: %d", q.Type, q.Constraint, len(q.Options))
	return q, errs
}

func (f *Filler) questionTitle(ctx context.Context, node Node) string {
	el, err := f.dom.FindOne(ctx, node, f.cfg.Selectors.Title)
	if err != nil {
		logging.FormDebug("Could not find question title: %v", err)
		return "No Title"
	}
	title, err := f.dom.Text(ctx, el)
	if err != nil {
		logging.FormDebug("Could not read question title: %v", err)
		return "No Title"
	}
	return strings.TrimSpace(title)
}

// isRequired is observed for diagnostics only; it never gates selection.
func (f *Filler) isRequired(ctx context.Context, node Node) bool {
	if f.cfg.Locale.RequiredMarker == "" {
		return false
	}
	text, err := f.dom.Text(ctx, node)
	if err != nil {
		return false
	}
	return strings.Contains(text, f.cfg.Locale.RequiredMarker)
}

// ClassifyAndAnswer reads a question and activates a valid answer set.
// Errors and panics are folded into the Outcome.
func (f *Filler) ClassifyAndAnswer(ctx context.Context, node Node, index int) (out Outcome) {
	out.Index = index
	defer func() {
		if r := recover(); r != nil {
			logging.FormError("Question %d panicked: %v", index, r)
			out.Errors = append(out.Errors, &QuestionPanic{Value: r})
		}
	}()

	q, errs := f.ReadQuestion(ctx, node, index)
	out.Title = q.Title
	out.Type = q.Type
	out.Required = q.Required
	out.Constraint = q.Constraint
	out.OptionCount = len(q.Options)
	out.Errors = errs

	selected, activated, answerErrs := f.selector.Answer(ctx, f.dom, q.Type, q.Options, q.Constraint)
	for _, opt := range selected {
		out.Selected = append(out.Selected, opt.Label)
	}
	out.Activated = activated
	out.Errors = append(out.Errors, answerErrs...)

	if len(out.Selected) > 0 {
		logging.Form("Selected options: %v", out.Selected)
	}
	return out
}

// FillTextField types text into the input inside a text-field container.
func (f *Filler) FillTextField(ctx context.Context, node Node, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &QuestionPanic{Value: r}
		}
	}()

	input, err := f.dom.FindOne(ctx, node, f.cfg.Selectors.TextInput)
	if err != nil {
		return fmt.Errorf("find text input: %w", err)
	}
	if err := f.dom.Input(ctx, input, text); err != nil {
		return fmt.Errorf("type into text input: %w", err)
	}
	return nil
}

// Submit activates the form's submit control.
func (f *Filler) Submit(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &QuestionPanic{Value: r}
		}
	}()

	button, err := f.dom.FindOne(ctx, nil, f.cfg.Selectors.Submit)
	if err != nil {
		return fmt.Errorf("find submit control: %w", err)
	}
	if err := f.dom.Activate(ctx, button); err != nil {
		return fmt.Errorf("activate submit control: %w", err)
	}
	return nil
}

// FillPage answers every question on the page in DOM order, fills the text
// fields and submits. It never returns early on a per-question failure; only
// ctx cancellation stops it.
func (f *Filler) FillPage(ctx context.Context) PageReport {
	timer := logging.StartTimer(logging.CategoryForm, "FillPage")
	defer timer.Stop()

	var report PageReport

	questions, err := f.dom.FindAll(ctx, nil, f.cfg.Selectors.Question)
	if err != nil {
		logging.FormError("Listing questions failed: %v", err)
	}
	logging.Form("Found %d questions", len(questions))

	for i, q := range questions {
		if ctx.Err() != nil {
			break
		}
		logging.FormDebug("Processing question %d", i+1)
		report.Questions = append(report.Questions, f.ClassifyAndAnswer(ctx, q, i+1))
	}

	if err := ctx.Err(); err != nil {
		report.SubmitErr = err
		return report
	}

	fields, err := f.dom.FindAll(ctx, nil, f.cfg.Selectors.TextField)
	if err != nil {
		report.TextFieldErrors = append(report.TextFieldErrors, fmt.Errorf("list text fields: %w", err))
	}
	report.TextFields = len(fields)
	logging.Form("Found %d text fields to fill", len(fields))
	for i, field := range fields {
		if err := f.FillTextField(ctx, field, f.cfg.TextAnswer); err != nil {
			logging.FormWarn("Error filling text field %d: %v", i+1, err)
			report.TextFieldErrors = append(report.TextFieldErrors, fmt.Errorf("text field %d: %w", i+1, err))
		}
	}

	if err := f.Submit(ctx); err != nil {
		logging.FormError("Error submitting form: %v", err)
		report.SubmitErr = err
	} else {
		report.Submitted = true
		logging.Form("Form submitted")
	}
	return report
}
