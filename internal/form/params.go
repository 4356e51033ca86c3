package form

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"formpilot/internal/logging"
)

// RawParameters is the serialized payload attached to a question node.
// The payload is a nested bracketed structure whose full grammar is unknown;
// only the fields below are scanned out of it.
type RawParameters struct {
	Text    string
	Present bool
}

// Params wraps a payload string as present parameters.
func Params(text string) RawParameters {
	return RawParameters{Text: text, Present: true}
}

var (
	// The type code follows the first null marker: null,<code>,
	typeCodePattern = regexp.MustCompile(`null,(\d+),`)
	// A fixed selection count: [[7,<index>,["<n>"]]]
	exactCountPattern = regexp.MustCompile(`\[\[7,\d+,\["(\d+)"\]\]`)
)

// DecodeParameters reads the payload from the question's metadata carrier.
// A missing carrier or attribute yields absent parameters, never an error.
func DecodeParameters(ctx context.Context, dom DOM, question Node, sel Selectors) RawParameters {
	carrier, err := dom.FindOne(ctx, question, sel.MetadataCarrier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logging.FormDebug("Metadata carrier %s not found", sel.MetadataCarrier)
		} else {
			logging.FormWarn("Could not find data-params: %v", err)
		}
		return RawParameters{}
	}

	text, ok, err := dom.Attribute(ctx, carrier, sel.MetadataAttribute)
	if err != nil || !ok {
		logging.FormWarn("Metadata attribute %s unreadable (present=%v, err=%v)", sel.MetadataAttribute, ok, err)
		return RawParameters{}
	}
	return Params(text)
}

// TypeCode returns the numeric type code, if the payload carries one.
func (p RawParameters) TypeCode() (string, bool) {
	if !p.Present {
		return "", false
	}
	m := typeCodePattern.FindStringSubmatch(p.Text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Classify maps the payload's type code to a QuestionType.
func Classify(p RawParameters) QuestionType {
	code, ok := p.TypeCode()
	if !ok {
		return TypeUnknown
	}
	logging.FormDebug("Type parameter extracted: %s", code)
	switch code {
	case "2":
		return TypeSingle
	case "4":
		return TypeMultiple
	case "7":
		return TypeGrid
	}
	return TypeUnknown
}

// ExtractConstraint derives the selection-count bounds from the payload.
// The observed encoding only carries an exact count, so a match sets both bounds.
func ExtractConstraint(p RawParameters) SelectionConstraint {
	if !p.Present {
		return SelectionConstraint{}
	}
	m := exactCountPattern.FindStringSubmatch(p.Text)
	if m == nil {
		return SelectionConstraint{}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return SelectionConstraint{}
	}
	return Exactly(n)
}
