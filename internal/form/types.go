// Package form classifies the questions of a multi-question web form and
// answers them.
//
// Each question node carries an opaque serialized payload (data-params). The
// engine decodes it into a QuestionType and a SelectionConstraint, enumerates
// the selectable options through a DOM collaborator, and activates a random
// answer set that satisfies the constraint. Every question is handled in
// isolation: failures are collected into its Outcome and never abort the page.
package form

import (
	"errors"
	"fmt"
	"strings"
)

// QuestionType is the closed set of answer-input kinds.
type QuestionType int

const (
	TypeUnknown QuestionType = iota
	TypeSingle
	TypeMultiple
	TypeGrid
)

// QuestionTypes lists every QuestionType value.
var QuestionTypes = []QuestionType{TypeUnknown, TypeSingle, TypeMultiple, TypeGrid}

func (t QuestionType) String() string {
	switch t {
	case TypeSingle:
		return "single"
	case TypeMultiple:
		return "multiple"
	case TypeGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// SelectionConstraint bounds how many options a question accepts.
// Both bounds are unset when the payload encodes no constraint.
type SelectionConstraint struct {
	Min    int
	Max    int
	HasMin bool
	HasMax bool
}

// Exactly returns a constraint requiring exactly n selections.
func Exactly(n int) SelectionConstraint {
	return SelectionConstraint{Min: n, Max: n, HasMin: true, HasMax: true}
}

// IsZero reports whether neither bound is set.
func (c SelectionConstraint) IsZero() bool {
	return !c.HasMin && !c.HasMax
}

func (c SelectionConstraint) String() string {
	bound := func(v int, ok bool) string {
		if !ok {
			return "-"
		}
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("min=%s max=%s", bound(c.Min, c.HasMin), bound(c.Max, c.HasMax))
}

// Option is one selectable control of a question.
type Option struct {
	Handle Node
	Label  string
}

// Question is the decoded view of one question node. It lives for a single
// fill pass.
type Question struct {
	Index      int
	Title      string
	Type       QuestionType
	Required   bool
	Params     RawParameters
	Constraint SelectionConstraint
	Options    []Option
}

// Outcome summarizes how one question was answered.
type Outcome struct {
	Index       int
	Title       string
	Type        QuestionType
	Required    bool
	Constraint  SelectionConstraint
	OptionCount int
	Selected    []string
	Activated   int
	Errors      []error
}

// SelectedCount is the number of options chosen for activation.
func (o Outcome) SelectedCount() int {
	return len(o.Selected)
}

// Failed reports whether any activation attempt failed or the question panicked.
func (o Outcome) Failed() bool {
	for _, err := range o.Errors {
		var actErr *ActivationError
		var panicErr *QuestionPanic
		if errors.As(err, &actErr) || errors.As(err, &panicErr) {
			return true
		}
	}
	return false
}

// PageReport is the structured summary of one fill pass over a page.
type PageReport struct {
	Questions       []Outcome
	TextFields      int
	TextFieldErrors []error
	Submitted       bool
	SubmitErr       error
}

// ErrorCount totals every error collected during the pass.
func (r PageReport) ErrorCount() int {
	n := len(r.TextFieldErrors)
	for _, q := range r.Questions {
		n += len(q.Errors)
	}
	if r.SubmitErr != nil {
		n++
	}
	return n
}

// Answered counts questions with at least one successful activation.
func (r PageReport) Answered() int {
	n := 0
	for _, q := range r.Questions {
		if q.Activated > 0 {
			n++
		}
	}
	return n
}

var (
	// ErrNotFound is returned by DOM.FindOne when no node matches.
	ErrNotFound = errors.New("element not found")
	// ErrParametersAbsent marks a question whose metadata carrier is missing or unreadable.
	ErrParametersAbsent = errors.New("question parameters absent")
	// ErrNoOptions marks a question for which no selection was attempted.
	ErrNoOptions = errors.New("no options available")
)

// ActivationError records a rejected activation of one selected option.
type ActivationError struct {
	Label string
	Err   error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate option %q: %v", e.Label, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// ExtractionError records an option that was skipped during enumeration.
type ExtractionError struct {
	Position int
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "skip option %d: %s", e.Position, e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// QuestionPanic wraps a panic recovered at the per-question boundary.
type QuestionPanic struct {
	Value interface{}
}

func (e *QuestionPanic) Error() string {
	return fmt.Sprintf("question handler panicked: %v", e.Value)
}
