package matchup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rkm/oceancolor-matchup/internal/sensor"
)

// runUnits processes units on a bounded worker pool. Each unit writes
// its outcome to its own slot, so aggregation order matches submission
// order and a one-worker run produces byte-identical output to a
// parallel one. A panicking unit is recorded as a failure without
// taking the pool down.
func (s *Service) runUnits(ctx context.Context, units []unit, product sensor.Product, tol Tolerance) []unitResult {
	results := make([]unitResult, len(units))

	workers := s.opts.Workers
	if workers < 1 {
		workers = 1
	}
	var group errgroup.Group
	group.SetLimit(workers)

	for i, u := range units {
		// Stop dispatching once the caller gives up; in-flight units
		// run to completion.
		if ctx.Err() != nil {
			results[i] = unitResult{failure: &Failure{
				WaypointIndex: u.waypointIndex,
				Granule:       u.ref.Name,
				Kind:          FailureCanceled,
				Message:       "not dispatched: " + ctx.Err().Error(),
			}}
			continue
		}

		group.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("granule worker panicked", "granule", u.ref.Name, "panic", r)
					results[i] = unitResult{failure: &Failure{
						WaypointIndex: u.waypointIndex,
						Granule:       u.ref.Name,
						Kind:          FailureRetrieval,
						Message:       fmt.Sprintf("worker panic: %v", r),
					}}
				}
			}()
			records, failure := s.processUnit(ctx, u, product, tol)
			results[i] = unitResult{records: records, failure: failure}
			return nil
		})
	}

	// Workers never return errors; Wait is purely a barrier.
	_ = group.Wait()
	return results
}
