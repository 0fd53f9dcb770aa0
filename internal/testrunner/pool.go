package testrunner

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
)

// RunAll executes all units concurrently on a bounded worker pool and
// returns one result per unit, in the order the units were given. The
// join is synchronizing: no result is visible until every unit in the
// batch has finished.
func (r *Runner) RunAll(ctx context.Context, repoDir string, units []string) []Result {
	results := make([]Result, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, unit := range units {
		g.Go(func() error {
			log.Printf("[runner] executing %s", unit)
			results[i] = r.Run(gctx, repoDir, unit)
			return nil
		})
	}

	// Workers never return errors; Wait is purely the join point.
	_ = g.Wait()
	return results
}
