package sync

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the sync controller and ties it to the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewController),
	fx.Invoke(func(lc fx.Lifecycle, c *Controller) {
		lc.Append(fx.Hook{
			OnStart: c.Start,
			OnStop: func(ctx context.Context) error {
				c.Stop()
				return nil
			},
		})
	}),
)
