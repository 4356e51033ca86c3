package form

import (
	"context"
	"fmt"
	"strings"

	"formpilot/internal/logging"
)

// extractEnv bundles what option extraction needs besides the question node.
type extractEnv struct {
	dom    DOM
	sel    Selectors
	locale Locale
}

// ExtractOptions enumerates the selectable options of a question in DOM order.
// Options that cannot be labelled are skipped and reported as *ExtractionError.
func ExtractOptions(ctx context.Context, dom DOM, question Node, qt QuestionType, sel Selectors, locale Locale) ([]Option, []error) {
	env := extractEnv{dom: dom, sel: sel, locale: locale}
	return behaviorFor(qt).extract(ctx, env, question)
}

func extractNone(context.Context, extractEnv, Node) ([]Option, []error) {
	return nil, nil
}

// extractControls reads radio/checkbox controls labelled by their accessible name.
func extractControls(ctx context.Context, env extractEnv, question Node) ([]Option, []error) {
	nodes, err := env.dom.FindAll(ctx, question, env.sel.Option)
	if err != nil {
		return nil, []error{fmt.Errorf("list options: %w", err)}
	}

	var (
		options []Option
		errs    []error
	)
	for i, n := range nodes {
		name, ok, err := env.dom.AccessibleName(ctx, n)
		if err != nil || !ok {
			logging.FormWarn("Error parsing option %d: present=%v err=%v", i, ok, err)
			errs = append(errs, &ExtractionError{Position: i, Reason: "accessible name unreadable", Err: err})
			continue
		}
		label := strings.TrimSpace(name)
		if label == "" {
			errs = append(errs, &ExtractionError{Position: i, Reason: "empty accessible name"})
			continue
		}
		options = append(options, Option{Handle: n, Label: label})
	}
	return options, errs
}

// extractGrid reads every cell of every grid row.
func extractGrid(ctx context.Context, env extractEnv, question Node) ([]Option, []error) {
	rows, err := env.dom.FindAll(ctx, question, env.sel.GridRow)
	if err != nil {
		return nil, []error{fmt.Errorf("list grid rows: %w", err)}
	}

	var (
		options []Option
		errs    []error
		pos     int
	)
	for r, row := range rows {
		cells, err := env.dom.FindAll(ctx, row, env.sel.Option)
		if err != nil {
			errs = append(errs, fmt.Errorf("list cells of grid row %d: %w", r, err))
			continue
		}
		for _, cell := range cells {
			i := pos
			pos++

			name, ok, err := env.dom.AccessibleName(ctx, cell)
			if err != nil || !ok {
				logging.FormWarn("Error parsing grid option %d: present=%v err=%v", i, ok, err)
				errs = append(errs, &ExtractionError{Position: i, Reason: "accessible name unreadable", Err: err})
				continue
			}
			if !strings.Contains(name, env.locale.GridAnswerPrefix) {
				logging.FormWarn("Grid option %d has no %q prefix: %q", i, env.locale.GridAnswerPrefix, name)
				errs = append(errs, &ExtractionError{Position: i, Reason: fmt.Sprintf("missing %q prefix", env.locale.GridAnswerPrefix)})
				continue
			}
			label := NormalizeGridLabel(name, env.locale.GridAnswerPrefix)
			if label == "" {
				errs = append(errs, &ExtractionError{Position: i, Reason: "empty grid label"})
				continue
			}
			options = append(options, Option{Handle: cell, Label: label})
		}
	}
	return options, errs
}

// NormalizeGridLabel strips the localized answer prefix and trailing periods
// from a grid cell name. A name without the prefix is returned unchanged, so
// normalizing an already-normalized label is a no-op. Leading periods are
// kept; only the trailing ones belong to the "row X." suffix.
func NormalizeGridLabel(name, prefix string) string {
	if prefix == "" {
		return name
	}
	_, after, found := strings.Cut(name, prefix)
	if !found {
		return name
	}
	if before, _, again := strings.Cut(after, prefix); again {
		after = before
	}
	return strings.TrimRight(after, ".")
}
