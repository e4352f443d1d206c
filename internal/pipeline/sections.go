// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/report-engine/internal/provider"
	"github.com/pdiddy/report-engine/pkg/types"
)

// sectionOutcome is one worker's private result slot.
type sectionOutcome[T any] struct {
	index int
	value T
	err   error
}

// runPerSection executes worker once per active section across a pool
// bounded by MaxSectionConcurrency. Each worker call runs under the
// per-call timeout and retries retryable failures with backoff up to
// MaxRetries. Workers write into private slots; results merge only
// after every worker has returned, so callers never observe a
// partially populated stage.
//
// The returned maps partition the active set: every index lands in
// exactly one of results or errs.
func runPerSection[T any](ctx context.Context, opts types.PipelineOptions, active []int,
	worker func(ctx context.Context, index int) (T, error)) (map[int]T, map[int]error) {

	sem := semaphore.NewWeighted(int64(opts.MaxSectionConcurrency))
	outcomes := make([]sectionOutcome[T], len(active))
	var wg sync.WaitGroup

	for pos, index := range active {
		wg.Add(1)
		go func(pos, index int) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[pos] = sectionOutcome[T]{index: index, err: err}
				return
			}
			defer sem.Release(1)

			var value T
			err := provider.Retry(ctx, opts.MaxRetries, func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, opts.PerCallTimeout)
				defer cancel()

				v, err := worker(callCtx, index)
				if err != nil {
					return err
				}
				value = v
				return nil
			})
			outcomes[pos] = sectionOutcome[T]{index: index, value: value, err: err}
		}(pos, index)
	}

	// Barrier: no merge until the whole stage has finished.
	wg.Wait()

	results := make(map[int]T, len(active))
	errs := make(map[int]error)
	for _, out := range outcomes {
		if out.err != nil {
			errs[out.index] = out.err
			continue
		}
		results[out.index] = out.value
	}
	return results, errs
}

// narrowActive records a recoverable section error for every failed
// index and returns the surviving active set in outline order.
func narrowActive(state *types.ResearchState, stage string, active []int, errs map[int]error) []int {
	var surviving []int
	for _, index := range sortedActive(active) {
		if err, ok := errs[index]; ok {
			state.RecordError(stage, index, true, "%v", err)
			continue
		}
		surviving = append(surviving, index)
	}
	return surviving
}
