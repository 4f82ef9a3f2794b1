package engine

import (
	"context"
	"sync"
)

// fanOut applies fn to every input on up to workers goroutines and
// returns the results in input order.
//
// Cancellation stops the scheduling of further inputs; items already
// handed to a worker run to completion. Results for unscheduled inputs
// are zero values - callers that care check ctx.Err() after the barrier.
func fanOut[I, O any](ctx context.Context, workers int, inputs []I, fn func(context.Context, I) O) []O {
	results := make([]O, len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = fn(ctx, inputs[i])
			}
		}()
	}

scheduling:
	for i := range inputs {
		select {
		case indices <- i:
		case <-ctx.Done():
			break scheduling
		}
	}
	close(indices)
	wg.Wait()

	return results
}
