package form

import (
	"context"
	"fmt"
)

// kindBehavior is the per-type policy for both option extraction and answer
// selection. A new QuestionType needs a case in behaviorFor.
type kindBehavior struct {
	extract func(ctx context.Context, env extractEnv, question Node) ([]Option, []error)
	choose  func(s *AnswerSelector, options []Option, c SelectionConstraint) []Option
}

// behaviorFor panics on a value outside the enum; the per-question recovery
// in ClassifyAndAnswer turns that into a QuestionPanic.
func behaviorFor(t QuestionType) kindBehavior {
	switch t {
	case TypeUnknown:
		return kindBehavior{extract: extractNone, choose: chooseNone}
	case TypeSingle:
		return kindBehavior{extract: extractControls, choose: (*AnswerSelector).chooseOne}
	case TypeMultiple:
		return kindBehavior{extract: extractControls, choose: (*AnswerSelector).chooseSome}
	case TypeGrid:
		return kindBehavior{extract: extractGrid, choose: (*AnswerSelector).chooseAll}
	default:
		panic(fmt.Sprintf("form: no behavior for question type %d", int(t)))
	}
}
