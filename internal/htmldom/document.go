// Package htmldom implements the form DOM collaborator over a static HTML
// document, so a saved form page can be classified and answered offline.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"formpilot/internal/form"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page. Handles returned by its form.DOM methods
// are *html.Node values belonging to this document.
type Document struct {
	root *html.Node

	mu        sync.Mutex
	selectors map[string]cascadia.Selector
	clicks    []*html.Node
	inputs    map[*html.Node]string
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root:      root,
		selectors: make(map[string]cascadia.Selector),
		inputs:    make(map[*html.Node]string),
	}, nil
}

// ParseString parses an HTML string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ParseFile parses the HTML file at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

var _ form.DOM = (*Document)(nil)

func (d *Document) compile(selector string) (cascadia.Selector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.selectors[selector]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	d.selectors[selector] = s
	return s, nil
}

func (d *Document) node(n form.Node) (*html.Node, error) {
	if n == nil {
		return d.root, nil
	}
	hn, ok := n.(*html.Node)
	if !ok || hn == nil {
		return nil, fmt.Errorf("htmldom: foreign node handle %T", n)
	}
	return hn, nil
}

// FindAll returns the descendants of root matching selector, in document order.
func (d *Document) FindAll(ctx context.Context, root form.Node, selector string) ([]form.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := d.node(root)
	if err != nil {
		return nil, err
	}
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}

	var out []form.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && sel.Match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(r)
	return out, nil
}

// FindOne returns the first descendant of root matching selector.
func (d *Document) FindOne(ctx context.Context, root form.Node, selector string) (form.Node, error) {
	all, err := d.FindAll(ctx, root, selector)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: %w", selector, form.ErrNotFound)
	}
	return all[0], nil
}

// Attribute returns the named attribute of node.
func (d *Document) Attribute(ctx context.Context, node form.Node, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	n, err := d.node(node)
	if err != nil {
		return "", false, err
	}
	v, ok := attr(n, name)
	return v, ok, nil
}

// AccessibleName resolves aria-label, then aria-labelledby.
func (d *Document) AccessibleName(ctx context.Context, node form.Node) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	n, err := d.node(node)
	if err != nil {
		return "", false, err
	}
	if label, ok := attr(n, "aria-label"); ok {
		return label, true, nil
	}
	if ids, ok := attr(n, "aria-labelledby"); ok {
		var parts []string
		for _, id := range strings.Fields(ids) {
			if ref := findByID(d.root, id); ref != nil {
				parts = append(parts, textContent(ref))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " "), true, nil
		}
	}
	return "", false, nil
}

// Text returns the whitespace-collapsed text content of node.
func (d *Document) Text(ctx context.Context, node form.Node) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := d.node(node)
	if err != nil {
		return "", err
	}
	return textContent(n), nil
}

// Activate records a click. Radio and checkbox controls get aria-checked set
// (checkboxes toggle).
func (d *Document) Activate(ctx context.Context, node form.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := d.node(node)
	if err != nil {
		return err
	}
	if disabled, _ := attr(n, "aria-disabled"); disabled == "true" {
		return fmt.Errorf("htmldom: element is disabled")
	}

	switch role, _ := attr(n, "role"); role {
	case "radio":
		setAttr(n, "aria-checked", "true")
	case "checkbox":
		if checked, _ := attr(n, "aria-checked"); checked == "true" {
			setAttr(n, "aria-checked", "false")
		} else {
			setAttr(n, "aria-checked", "true")
		}
	}

	d.mu.Lock()
	d.clicks = append(d.clicks, n)
	d.mu.Unlock()
	return nil
}

// Input appends text to the node's value.
func (d *Document) Input(ctx context.Context, node form.Node, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := d.node(node)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.inputs[n] += text
	value := d.inputs[n]
	d.mu.Unlock()
	setAttr(n, "value", value)
	return nil
}

// Clicks returns the activated nodes in activation order.
func (d *Document) Clicks() []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*html.Node, len(d.clicks))
	copy(out, d.clicks)
	return out
}

// Render writes the document, including applied activations and inputs.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
