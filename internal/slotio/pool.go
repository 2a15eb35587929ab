package slotio

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Each runs fn for every index in [0, n) on at most limit goroutines and
// returns the results in index order once all of them finished. A task that
// panics yields recovered(i, value) instead of taking the process down.
func Each[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) T, recovered func(i int, v any) T) []T {
	out := make([]T, n)
	if n == 0 {
		return out
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	var eg errgroup.Group
	eg.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			defer func() {
				if v := recover(); v != nil {
					out[i] = recovered(i, v)
				}
			}()
			out[i] = fn(ctx, i)
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// PanicError is the error a recovered worker panic turns into.
func PanicError(v any) error {
	return fmt.Errorf("worker panic: %v", v)
}
