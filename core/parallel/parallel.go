// Package parallel runs independent work items concurrently.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Parallelize divides [0, items) into contiguous ranges and runs fn on every
// range concurrently, returning once all ranges are done.
//
// There is at most one range per CPU core and no range is shorter than
// minChunk items, except the last. fn must only write state owned by its
// range.
func Parallelize(items, minChunk int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if minChunk < 1 {
		minChunk = 1
	}

	// No more workers than chunks of minChunk items
	numWorkers := runtime.NumCPU()
	if limit := (items + minChunk - 1) / minChunk; numWorkers > limit {
		numWorkers = limit
	}
	if numWorkers == 1 {
		fn(0, items)
		return
	}

	// Ceiling division, never below minChunk
	chunkSize := max((items+numWorkers-1)/numWorkers, minChunk)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, items)
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	// Wait for every range
	wg.Wait()
}

// ParallelizeWithThreshold runs fn(0, items) on the calling goroutine when
// items does not exceed threshold. Otherwise it calls Parallelize with
// threshold as the minimum range length, so every goroutine receives at least
// as much work as the sequential cutoff.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		// Sequential below the threshold
		fn(0, items)
		return
	}
	Parallelize(items, threshold, fn)
}

// Map runs fn for every index in [0, n) with at most workers goroutines and
// returns the results in index order. workers <= 0 uses one worker per CPU.
//
// The first error cancels the context handed to the remaining calls and is
// returned after every started call has finished. A panic inside fn is
// converted into an *errors.PanicError.
func Map[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	results := make([]T, n)
	if n == 0 {
		return results, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer errors.Recover(&err, fmt.Sprintf("parallel task %d", i))
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
