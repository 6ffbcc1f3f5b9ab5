package utilities

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxParallel is the fan-out width used across the read model.
// Wider fan-out starts competing with the event log's own query workers.
const DefaultMaxParallel = 5

// ItemError records the failure of one input in a MapConcurrent batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Report is the outcome of a MapConcurrent batch.
//
// Results is aligned with the input slice: Results[i] belongs to items[i].
// Slots whose worker failed hold the zero value and are listed in Failed.
type Report[T any] struct {
	Results []T
	Failed  []ItemError
}

// OK reports whether every item succeeded.
func (r Report[T]) OK() bool {
	return len(r.Failed) == 0
}

// Err joins all item failures, or returns nil.
func (r Report[T]) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Succeeded returns the results of the items that did not fail, in input order.
func (r Report[T]) Succeeded() []T {
	if len(r.Failed) == 0 {
		return r.Results
	}
	failed := make(map[int]bool, len(r.Failed))
	for _, f := range r.Failed {
		failed[f.Index] = true
	}
	out := make([]T, 0, len(r.Results)-len(r.Failed))
	for i, v := range r.Results {
		if !failed[i] {
			out = append(out, v)
		}
	}
	return out
}

// MapConcurrent runs worker over every item with at most maxParallel workers
// in flight. A failing item never stops the others; its error is collected in
// the report. Items not yet started when ctx is cancelled fail with ctx.Err().
//
// Example:
//
//	report := utilities.MapConcurrent(ctx, ids, 5, resolveProfile)
//	for _, failure := range report.Failed {
//	    logrus.WithError(failure.Err).Warn("dropping profile")
//	}
func MapConcurrent[In, Out any](ctx context.Context, items []In, maxParallel int, worker func(context.Context, In) (Out, error)) Report[Out] {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	results := make([]Out, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(maxParallel)

	for i := range items {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			out, err := worker(ctx, items[i])
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures live in errs

	report := Report[Out]{Results: results}
	for i, err := range errs {
		if err != nil {
			report.Failed = append(report.Failed, ItemError{Index: i, Err: err})
		}
	}
	return report
}
