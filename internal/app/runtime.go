package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// component is one long-running part of the process.
type component struct {
	name string
	run  func(ctx context.Context) error
}

// runComponents runs every component until ctx is done or one of them fails.
// A failure or panic in one component cancels the others.
func runComponents(ctx context.Context, logger *slog.Logger, comps []component) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range comps {
		comp := c
		g.Go(func() (rerr error) {
			// Panic safety -> convert to error so group cancels cleanly
			defer func() {
				if rec := recover(); rec != nil {
					rerr = fmt.Errorf("panic in %s: %v", comp.name, rec)
				}
			}()

			logger.Debug("component starting", "component", comp.name)
			if err := comp.run(gctx); err != nil {
				logger.Error("component failed", "component", comp.name, "error", err)
				return fmt.Errorf("%s: %w", comp.name, err)
			}
			logger.Debug("component stopped", "component", comp.name)
			return nil
		})
	}
	return g.Wait()
}
