// Package saga sequences compensating actions for multi-row writes that
// cannot be made atomic.
//
// Every mutating call returns a Compensation undoing exactly what it applied.
// Callers combine them as they go and, when a later step fails, run the
// accumulated compensation before surfacing the failure:
//
//	undo, err := indexes.Create(ctx, ...)
//	if err != nil {
//		return err
//	}
//	if err := writePrimary(ctx); err != nil {
//		return saga.Abort(ctx, undo, err)
//	}
package saga

import (
	"context"
	"errors"
)

// Step undoes one applied change.
type Step func(ctx context.Context) error

// Compensation is an ordered list of steps. The zero value is empty and
// ready to use. Compensations are immutable; combinators return new values.
type Compensation struct {
	steps []Step
}

// None returns the empty compensation.
func None() Compensation { return Compensation{} }

// Of returns a compensation consisting of the given step.
func Of(step Step) Compensation {
	if step == nil {
		return Compensation{}
	}
	return Compensation{steps: []Step{step}}
}

// Join concatenates compensations in application order.
func Join(cs ...Compensation) Compensation {
	n := 0
	for _, c := range cs {
		n += len(c.steps)
	}
	if n == 0 {
		return Compensation{}
	}
	steps := make([]Step, 0, n)
	for _, c := range cs {
		steps = append(steps, c.steps...)
	}
	return Compensation{steps: steps}
}

// Then returns c followed by next. When run, next is undone first.
func (c Compensation) Then(next Compensation) Compensation {
	return Join(c, next)
}

// Len returns the number of steps.
func (c Compensation) Len() int { return len(c.steps) }

// Run undoes every step, most recently applied first. A failing step does
// not stop the others; all failures are joined.
func (c Compensation) Run(ctx context.Context) error {
	var errs []error
	for i := len(c.steps) - 1; i >= 0; i-- {
		if err := c.steps[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Abort runs c and returns cause, joined with the compensation failure if
// any. The result always matches cause with errors.Is.
func Abort(ctx context.Context, c Compensation, cause error) error {
	if err := c.Run(ctx); err != nil {
		return errors.Join(cause, &Error{Err: err})
	}
	return cause
}

// Error reports compensation steps that failed, leaving writes applied.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "saga: compensation failed: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }
