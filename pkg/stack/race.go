package stack

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// errStopped ends a race when a task returns nil.
var errStopped = errors.New("task finished")

type task func(ctx context.Context) error

// race runs tasks until the first one returns and cancels the rest. The
// result is that task's error, or nil when it finished cleanly or ctx
// ended. Nil tasks are skipped.
func race(ctx context.Context, tasks ...task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		if t == nil {
			continue
		}
		g.Go(func() error {
			if err := t(gctx); err != nil {
				return err
			}
			return errStopped
		})
	}

	err := g.Wait()
	if errors.Is(err, errStopped) || ctx.Err() != nil {
		return nil
	}
	return err
}
