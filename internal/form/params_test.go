package form

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		params RawParameters
		want   QuestionType
	}{
		{"single", Params("null,2,"), TypeSingle},
		{"multiple", Params(`null,4,[[7,5,["2"]]]`), TypeMultiple},
		{"grid", Params("null,7,"), TypeGrid},
		{"embedded in payload", Params(`%.@.[123,"Colour?",null,2,[[456,[["Red"]]]]]`), TypeSingle},
		{"first marker wins", Params("null,4,null,2,"), TypeMultiple},
		{"text question", Params("null,0,"), TypeUnknown},
		{"dropdown", Params("null,3,"), TypeUnknown},
		{"leading zero is not code 2", Params("null,02,"), TypeUnknown},
		{"no trailing comma", Params("null,2]"), TypeUnknown},
		{"malformed", Params("[[[,,,null"), TypeUnknown},
		{"empty", Params(""), TypeUnknown},
		{"absent", RawParameters{}, TypeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.params); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.params.Text, got, tc.want)
			}
		})
	}
}

func TestClassifyIgnoresTextWhenAbsent(t *testing.T) {
	p := RawParameters{Text: "null,2,", Present: false}
	if got := Classify(p); got != TypeUnknown {
		t.Errorf("absent parameters classified as %s", got)
	}
}

func TestExtractConstraint(t *testing.T) {
	tests := []struct {
		name   string
		params RawParameters
		want   SelectionConstraint
	}{
		{"exact two", Params(`null,4,[[7,5,["2"]]]`), Exactly(2)},
		{"exact count with other index", Params(`x,[[7,12,["3"]]],y`), Exactly(3)},
		{"zero", Params(`[[7,1,["0"]]]`), Exactly(0)},
		{"none", Params("null,4,"), SelectionConstraint{}},
		{"different validation kind", Params(`[[8,5,["2"]]]`), SelectionConstraint{}},
		{"unquoted count", Params(`[[7,5,[2]]]`), SelectionConstraint{}},
		{"overflow", Params(`[[7,5,["99999999999999999999999"]]]`), SelectionConstraint{}},
		{"absent", RawParameters{}, SelectionConstraint{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractConstraint(tc.params); got != tc.want {
				t.Errorf("ExtractConstraint(%q) = %+v, want %+v", tc.params.Text, got, tc.want)
			}
		})
	}
}

func TestExtractConstraintSetsEqualBounds(t *testing.T) {
	for _, n := range []string{"1", "2", "7", "10", "42"} {
		c := ExtractConstraint(Params(`null,4,[[7,9,["` + n + `"]]]`))
		if !c.HasMin || !c.HasMax || c.Min != c.Max {
			t.Errorf("n=%s: expected min == max, got %+v", n, c)
		}
	}
}

func TestDecodeParameters(t *testing.T) {
	ctx := context.Background()
	sel := DefaultSelectors()
	dom := newFakeDOM()

	t.Run("present", func(t *testing.T) {
		q := question(strPtr("null,2,"))
		p := DecodeParameters(ctx, dom, q, sel)
		if !p.Present || p.Text != "null,2," {
			t.Errorf("got %+v", p)
		}
	})

	t.Run("missing carrier", func(t *testing.T) {
		q := question(nil)
		if p := DecodeParameters(ctx, dom, q, sel); p.Present {
			t.Errorf("expected absent, got %+v", p)
		}
	})

	t.Run("missing attribute", func(t *testing.T) {
		q := &fakeNode{id: "q"}
		q.add(sel.MetadataCarrier, &fakeNode{id: "carrier"})
		if p := DecodeParameters(ctx, dom, q, sel); p.Present {
			t.Errorf("expected absent, got %+v", p)
		}
	})

	t.Run("lookup error", func(t *testing.T) {
		broken := newFakeDOM()
		broken.findErrs = map[string]error{sel.MetadataCarrier: errors.New("stale element")}
		if p := DecodeParameters(ctx, broken, question(strPtr("null,2,")), sel); p.Present {
			t.Errorf("expected absent, got %+v", p)
		}
	})
}
