package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every item with at most workers goroutines in
// flight. The first error cancels the context handed to the remaining
// actions and is returned once all started actions finish.
func ForEach[T any](ctx context.Context, items []T, workers int, action func(context.Context, T) error) error {
	if workers <= 0 {
		workers = 1
	}
	errGroup, groupCtx := errgroup.WithContext(ctx)
	errGroup.SetLimit(workers)

	for _, item := range items {
		if groupCtx.Err() != nil {
			break
		}
		errGroup.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return action(groupCtx, item)
		})
	}

	if err := errGroup.Wait(); err != nil {
		return err
	}
	// the group context is always canceled by Wait; report the caller's
	return ctx.Err()
}

// ParallelMap applies mapFn to each element with at most workers goroutines,
// preserving order.
func ParallelMap[T any, R any](in []T, workers int, mapFn func(T) R) []R {
	if workers <= 0 {
		workers = 1
	}
	out := make([]R, len(in))
	var errGroup errgroup.Group
	errGroup.SetLimit(workers)
	for idx, val := range in {
		errGroup.Go(func() error {
			out[idx] = mapFn(val)
			return nil
		})
	}
	_ = errGroup.Wait()
	return out
}
