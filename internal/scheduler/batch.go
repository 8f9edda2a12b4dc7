package scheduler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/callgate/internal/types"
)

// BatchRequest issues specs in sequential chunks of at most MaxBatchSize;
// the requests within a chunk run concurrently. With ContinueOnError a
// failing item is recorded in its slot and the batch carries on; otherwise
// the batch stops after the failing chunk and returns the results gathered
// so far together with the first error.
func (s *Scheduler) BatchRequest(ctx context.Context, specs []types.RequestSpec, opts types.BatchOptions) ([]types.Result, error) {
	size := opts.MaxBatchSize
	if size <= 0 {
		size = s.batchSize
	}

	results := make([]types.Result, len(specs))
	for start := 0; start < len(specs); start += size {
		end := min(start+size, len(specs))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				res, err := s.Request(gctx, specs[i])
				if err == nil && !res.Success {
					err = res.Err
				}
				if err != nil && res.Err == nil {
					res.Err = err
				}
				results[i] = res

				if err == nil || opts.ContinueOnError {
					return nil
				}
				return fmt.Errorf("batch item %d (%s): %w", i, specs[i].PolicyKey(), err)
			})
		}

		if err := g.Wait(); err != nil {
			s.logger.Debug("Batch stopped", "completed_through", end, "total", len(specs), "error", err)
			return results[:end], err
		}
	}
	return results, nil
}
