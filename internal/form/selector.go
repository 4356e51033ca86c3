package form

import (
	"context"
	"math/rand/v2"

	"formpilot/internal/logging"
)

// AnswerSelector picks a valid answer set for a question and activates it.
// All randomness comes from the injected generator.
type AnswerSelector struct {
	rng *rand.Rand
}

// NewAnswerSelector wraps rng. A nil rng is replaced by a randomly seeded one.
func NewAnswerSelector(rng *rand.Rand) *AnswerSelector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &AnswerSelector{rng: rng}
}

// NewSeededRand returns a deterministic generator for seed.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Choose returns the options to activate for a question of type t.
// It returns nil for Unknown questions and empty option sets.
func (s *AnswerSelector) Choose(t QuestionType, options []Option, c SelectionConstraint) []Option {
	if len(options) == 0 {
		return nil
	}
	return behaviorFor(t).choose(s, options, c)
}

func chooseNone(*AnswerSelector, []Option, SelectionConstraint) []Option {
	return nil
}

func (s *AnswerSelector) chooseOne(options []Option, _ SelectionConstraint) []Option {
	return []Option{options[s.rng.IntN(len(options))]}
}

func (s *AnswerSelector) chooseSome(options []Option, c SelectionConstraint) []Option {
	k := s.SelectionCount(len(options), c)
	perm := s.rng.Perm(len(options))
	picked := make([]Option, 0, k)
	for _, idx := range perm[:k] {
		picked = append(picked, options[idx])
	}
	return picked
}

func (s *AnswerSelector) chooseAll(options []Option, _ SelectionConstraint) []Option {
	all := make([]Option, len(options))
	copy(all, options)
	return all
}

// SelectionCount draws how many of m options a Multiple question selects.
// Bounds are clamped to m and a bound of zero counts as unset; the result
// always lies in [1, m]. m must be positive.
func (s *AnswerSelector) SelectionCount(m int, c SelectionConstraint) int {
	lo, hi := countRange(m, c)
	return lo + s.rng.IntN(hi-lo+1)
}

// countRange returns the inclusive range the selection count is drawn from.
// With only a lower bound the range runs to m; with only an upper bound it
// starts at 1.
func countRange(m int, c SelectionConstraint) (lo, hi int) {
	hasMin := c.HasMin && c.Min > 0
	hasMax := c.HasMax && c.Max > 0

	switch {
	case hasMin && hasMax:
		lo, hi = min(c.Min, m), min(c.Max, m)
		if lo > hi {
			lo, hi = hi, lo
		}
	case hasMin:
		lo, hi = min(c.Min, m), m
	case hasMax:
		lo, hi = 1, min(c.Max, m)
	default:
		lo, hi = 1, m
	}
	return lo, hi
}

// Answer chooses options and activates each one. A failed activation is
// recorded and the remaining activations still run.
func (s *AnswerSelector) Answer(ctx context.Context, dom DOM, t QuestionType, options []Option, c SelectionConstraint) ([]Option, int, []error) {
	selected := s.Choose(t, options, c)
	if len(selected) == 0 {
		logging.FormWarn("No options available for %s question", t)
		return nil, 0, []error{ErrNoOptions}
	}

	var (
		activated int
		errs      []error
	)
	for _, opt := range selected {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &ActivationError{Label: opt.Label, Err: err})
			continue
		}
		if err := dom.Activate(ctx, opt.Handle); err != nil {
			logging.FormWarn("Error clicking on option %q: %v", opt.Label, err)
			errs = append(errs, &ActivationError{Label: opt.Label, Err: err})
			continue
		}
		activated++
		logging.FormDebug("Clicked on option: %s", opt.Label)
	}
	return selected, activated, errs
}
