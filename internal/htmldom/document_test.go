package htmldom

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"formpilot/internal/form"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const snippet = `<div id="root">
  <div class="q" role="listitem"><span role="radio" aria-label="One"></span></div>
  <div class="q" role="listitem"><span role="checkbox" aria-label="Two" aria-checked="true"></span></div>
  <p id="lbl">Labelled   by
     paragraph</p>
  <span id="ref" aria-labelledby="lbl missing"></span>
  <span id="plain">plain</span>
  <input id="in">
  <div id="off" role="radio" aria-disabled="true"></div>
</div>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	require.NoError(t, err)
	return doc
}

func byID(t *testing.T, doc *Document, id string) form.Node {
	t.Helper()
	n, err := doc.FindOne(context.Background(), nil, "#"+id)
	require.NoError(t, err)
	return n
}

func TestFindAllDocumentOrder(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx := context.Background()

	nodes, err := doc.FindAll(ctx, nil, "[role='radio'], [role='checkbox']")
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	var names []string
	for _, n := range nodes[:2] {
		name, ok, err := doc.AccessibleName(ctx, n)
		require.NoError(t, err)
		require.True(t, ok)
		names = append(names, name)
	}
	assert.Equal(t, []string{"One", "Two"}, names)
}

func TestFindAllExcludesRoot(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx := context.Background()

	questions, err := doc.FindAll(ctx, nil, "div.q")
	require.NoError(t, err)
	require.Len(t, questions, 2)

	nested, err := doc.FindAll(ctx, questions[0], "div.q")
	require.NoError(t, err)
	assert.Empty(t, nested)

	scoped, err := doc.FindAll(ctx, questions[0], "[role]")
	require.NoError(t, err)
	assert.Len(t, scoped, 1)
}

func TestFindOneNotFound(t *testing.T) {
	doc := mustParse(t, snippet)
	_, err := doc.FindOne(context.Background(), nil, "div.absent")
	assert.ErrorIs(t, err, form.ErrNotFound)
}

func TestInvalidSelector(t *testing.T) {
	doc := mustParse(t, snippet)
	_, err := doc.FindAll(context.Background(), nil, "div[")
	assert.Error(t, err)
}

func TestForeignNodeRejected(t *testing.T) {
	doc := mustParse(t, snippet)
	_, err := doc.Text(context.Background(), "not a node")
	assert.Error(t, err)
}

func TestAccessibleName(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx := context.Background()

	name, ok, err := doc.AccessibleName(ctx, byID(t, doc, "ref"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Labelled by paragraph", name)

	_, ok, err = doc.AccessibleName(ctx, byID(t, doc, "plain"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAttribute(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx := context.Background()

	v, ok, err := doc.Attribute(ctx, byID(t, doc, "ref"), "aria-labelledby")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "lbl missing", v)

	_, ok, err = doc.Attribute(ctx, byID(t, doc, "ref"), "data-params")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActivate(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx := context.Background()

	nodes, err := doc.FindAll(ctx, nil, "[role='radio'], [role='checkbox']")
	require.NoError(t, err)

	require.NoError(t, doc.Activate(ctx, nodes[0]))
	require.NoError(t, doc.Activate(ctx, nodes[1]))

	checked, _, _ := doc.Attribute(ctx, nodes[0], "aria-checked")
	assert.Equal(t, "true", checked)
	checked, _, _ = doc.Attribute(ctx, nodes[1], "aria-checked")
	assert.Equal(t, "false", checked, "checkbox toggles")

	assert.Error(t, doc.Activate(ctx, nodes[2]), "disabled control")
	assert.Len(t, doc.Clicks(), 2)
}

func TestInputAccumulates(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx := context.Background()
	in := byID(t, doc, "in")

	require.NoError(t, doc.Input(ctx, in, "Lorem"))
	require.NoError(t, doc.Input(ctx, in, " Ipsum"))

	v, ok, err := doc.Attribute(ctx, in, "value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Lorem Ipsum", v)
}

func TestCancelledContext(t *testing.T) {
	doc := mustParse(t, snippet)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := doc.FindAll(ctx, nil, "div")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, doc.Activate(ctx, nil), context.Canceled)
	assert.Empty(t, doc.Clicks())
}

func TestFillFixture(t *testing.T) {
	doc, err := ParseFile("testdata/form.html")
	require.NoError(t, err)

	filler := form.NewFiller(doc, form.FillerConfig{Rand: form.NewSeededRand(99)})
	report := filler.FillPage(context.Background())

	require.Len(t, report.Questions, 4)

	colour := report.Questions[0]
	assert.Equal(t, form.TypeSingle, colour.Type)
	assert.Equal(t, 3, colour.OptionCount)
	assert.Equal(t, 1, colour.Activated)
	assert.True(t, colour.Required)
	assert.Contains(t, colour.Title, "Favourite colour")

	pick := report.Questions[1]
	assert.Equal(t, form.TypeMultiple, pick.Type)
	assert.Equal(t, form.Exactly(2), pick.Constraint)
	assert.Equal(t, 2, pick.Activated)

	grid := report.Questions[2]
	assert.Equal(t, form.TypeGrid, grid.Type)
	assert.Equal(t, []string{"Good, row Speed", "Bad, row Speed", "Good, row Price", "Bad, row Price"}, grid.Selected)

	assert.Equal(t, form.TypeUnknown, report.Questions[3].Type)
	assert.Equal(t, 3, report.Answered())

	assert.Equal(t, 1, report.TextFields)
	assert.Empty(t, report.TextFieldErrors)
	assert.True(t, report.Submitted)

	clicks := doc.Clicks()
	require.Len(t, clicks, 1+2+4+1)
	last := clicks[len(clicks)-1]
	assert.Equal(t, "div", last.Data)

	var buf bytes.Buffer
	require.NoError(t, doc.Render(&buf))
	assert.Contains(t, buf.String(), `value="Lorem Ipsum"`)
}

func TestFillFixtureWrongLocale(t *testing.T) {
	doc, err := ParseFile("testdata/form.html")
	require.NoError(t, err)

	filler := form.NewFiller(doc, form.FillerConfig{Locale: form.RussianLocale(), Rand: form.NewSeededRand(1)})
	out := filler.ClassifyAndAnswer(context.Background(), questionNode(t, doc, 2), 3)

	assert.Equal(t, form.TypeGrid, out.Type)
	assert.Zero(t, out.OptionCount)
	for _, err := range out.Errors[:4] {
		var ext *form.ExtractionError
		assert.True(t, errors.As(err, &ext), "got %T", err)
	}
}

func questionNode(t *testing.T, doc *Document, i int) *html.Node {
	t.Helper()
	qs, err := doc.FindAll(context.Background(), nil, form.DefaultSelectors().Question)
	require.NoError(t, err)
	require.Greater(t, len(qs), i)
	return qs[i].(*html.Node)
}
