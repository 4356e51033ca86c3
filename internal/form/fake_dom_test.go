package form

import (
	"context"
	"errors"
	"fmt"
)

// fakeNode is a hand-built element: children are keyed by the selector that finds them.
type fakeNode struct {
	id          string
	attrs       map[string]string
	name        *string
	nameErr     error
	text        string
	children    map[string][]*fakeNode
	activateErr error
	panicOn     string
	activated   int
	typed       string
}

func (n *fakeNode) add(selector string, kids ...*fakeNode) *fakeNode {
	if n.children == nil {
		n.children = make(map[string][]*fakeNode)
	}
	n.children[selector] = append(n.children[selector], kids...)
	return n
}

func named(id, name string) *fakeNode {
	return &fakeNode{id: id, name: &name}
}

// fakeDOM routes document-level lookups to root.
type fakeDOM struct {
	root     *fakeNode
	clicks   []string
	findErrs map[string]error
}

func newFakeDOM() *fakeDOM {
	return &fakeDOM{root: &fakeNode{id: "document"}}
}

func (d *fakeDOM) node(n Node) *fakeNode {
	if n == nil {
		return d.root
	}
	return n.(*fakeNode)
}

func (d *fakeDOM) FindAll(_ context.Context, root Node, selector string) ([]Node, error) {
	if err := d.findErrs[selector]; err != nil {
		return nil, err
	}
	r := d.node(root)
	if r.panicOn == "FindAll:"+selector {
		panic("boom")
	}
	var out []Node
	for _, c := range r.children[selector] {
		out = append(out, c)
	}
	return out, nil
}

func (d *fakeDOM) FindOne(ctx context.Context, root Node, selector string) (Node, error) {
	all, err := d.FindAll(ctx, root, selector)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

func (d *fakeDOM) Attribute(_ context.Context, node Node, name string) (string, bool, error) {
	v, ok := d.node(node).attrs[name]
	return v, ok, nil
}

func (d *fakeDOM) AccessibleName(_ context.Context, node Node) (string, bool, error) {
	n := d.node(node)
	if n.nameErr != nil {
		return "", false, n.nameErr
	}
	if n.name == nil {
		return "", false, nil
	}
	return *n.name, true, nil
}

func (d *fakeDOM) Text(_ context.Context, node Node) (string, error) {
	return d.node(node).text, nil
}

func (d *fakeDOM) Activate(_ context.Context, node Node) error {
	n := d.node(node)
	if n.activateErr != nil {
		return n.activateErr
	}
	n.activated++
	d.clicks = append(d.clicks, n.id)
	return nil
}

func (d *fakeDOM) Input(_ context.Context, node Node, text string) error {
	n := d.node(node)
	if n.id == "" {
		return errors.New("detached input")
	}
	n.typed += text
	return nil
}

// question builds a question node with the given data-params payload and
// radio/checkbox options labelled in order.
func question(params *string, labels ...string) *fakeNode {
	sel := DefaultSelectors()
	q := &fakeNode{id: "question"}
	if params != nil {
		q.add(sel.MetadataCarrier, &fakeNode{id: "carrier", attrs: map[string]string{sel.MetadataAttribute: *params}})
	}
	for i, l := range labels {
		q.add(sel.Option, named(fmt.Sprintf("h%d", i+1), l))
	}
	return q
}

// gridQuestion builds a grid question with rows x cols cells.
func gridQuestion(params string, rows, cols int, prefix string) *fakeNode {
	sel := DefaultSelectors()
	q := question(&params)
	for r := 0; r < rows; r++ {
		row := &fakeNode{id: fmt.Sprintf("row%d", r+1)}
		for c := 0; c < cols; c++ {
			row.add(sel.Option, named(fmt.Sprintf("r%dc%d", r+1, c+1), fmt.Sprintf("%sColumn %d, row %d.", prefix, c+1, r+1)))
		}
		q.add(sel.GridRow, row)
	}
	return q
}

func strPtr(s string) *string { return &s }
