package browser

import (
	"context"
	"fmt"
	"strings"

	"formpilot/internal/form"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageDOM implements form.DOM over a live page. Handles are *rod.Element.
// Elements remember the context they were created with, so every call
// rebinds them to the caller's ctx.
type PageDOM struct {
	page *rod.Page
}

// NewPageDOM wraps page.
func NewPageDOM(page *rod.Page) *PageDOM {
	return &PageDOM{page: page}
}

var _ form.DOM = (*PageDOM)(nil)

func element(n form.Node) (*rod.Element, error) {
	el, ok := n.(*rod.Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("browser: foreign node handle %T", n)
	}
	return el, nil
}

// FindAll lists the descendants of root matching selector; a nil root
// searches the whole page.
func (d *PageDOM) FindAll(ctx context.Context, root form.Node, selector string) ([]form.Node, error) {
	var (
		els rod.Elements
		err error
	)
	if root == nil {
		els, err = d.page.Context(ctx).Elements(selector)
	} else {
		el, convErr := element(root)
		if convErr != nil {
			return nil, convErr
		}
		els, err = el.Context(ctx).Elements(selector)
	}
	if err != nil {
		return nil, err
	}
	out := make([]form.Node, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

// FindOne returns the first match without waiting for it to appear.
func (d *PageDOM) FindOne(ctx context.Context, root form.Node, selector string) (form.Node, error) {
	var (
		has bool
		el  *rod.Element
		err error
	)
	if root == nil {
		has, el, err = d.page.Context(ctx).Has(selector)
	} else {
		parent, convErr := element(root)
		if convErr != nil {
			return nil, convErr
		}
		has, el, err = parent.Context(ctx).Has(selector)
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", selector, form.ErrNotFound)
	}
	return el, nil
}

func (d *PageDOM) Attribute(ctx context.Context, node form.Node, name string) (string, bool, error) {
	el, err := element(node)
	if err != nil {
		return "", false, err
	}
	v, err := el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// AccessibleName prefers aria-label and falls back to the browser's
// computed accessibility name.
func (d *PageDOM) AccessibleName(ctx context.Context, node form.Node) (string, bool, error) {
	label, ok, err := d.Attribute(ctx, node, "aria-label")
	if err != nil || ok {
		return label, ok, err
	}

	el, _ := element(node)
	res, err := proto.AccessibilityGetPartialAXTree{
		ObjectID:       el.Object.ObjectID,
		FetchRelatives: false,
	}.Call(d.page.Context(ctx))
	if err != nil {
		return "", false, fmt.Errorf("accessibility tree: %w", err)
	}
	for _, n := range res.Nodes {
		if n.Ignored || n.Name == nil {
			continue
		}
		if name := strings.TrimSpace(n.Name.Value.Str()); name != "" {
			return name, true, nil
		}
	}
	return "", false, nil
}

func (d *PageDOM) Text(ctx context.Context, node form.Node) (string, error) {
	el, err := element(node)
	if err != nil {
		return "", err
	}
	return el.Context(ctx).Text()
}

// Activate clicks the element with the left mouse button.
func (d *PageDOM) Activate(ctx context.Context, node form.Node) error {
	el, err := element(node)
	if err != nil {
		return err
	}
	return el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (d *PageDOM) Input(ctx context.Context, node form.Node, text string) error {
	el, err := element(node)
	if err != nil {
		return err
	}
	return el.Context(ctx).Input(text)
}
