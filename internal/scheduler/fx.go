package scheduler

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the Scheduler without starting it.
var Module = fx.Module("scheduler",
	fx.Provide(NewRunLocker),
	fx.Provide(New),
)

// StartScheduler runs RunForever for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, sched *Scheduler, locker *RunLocker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return locker.Close()
				},
			})

			return nil
		},
	})
}
