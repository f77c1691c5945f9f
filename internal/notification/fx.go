package notification

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/smallbiznis/recurring/internal/config"
	recurringdomain "github.com/smallbiznis/recurring/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Notifier used by the generation task.
var Module = fx.Module("notification",
	fx.Provide(NewNotifier),
)

// WorkerModule runs the asynq server that delivers notifications.
var WorkerModule = fx.Module("notification.worker",
	fx.Provide(NewHandlers),
	fx.Invoke(RunWorker),
)

func redisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func NewNotifier(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) recurringdomain.Notifier {
	if !cfg.Redis.Enabled() {
		log.Warn("notification.queue.disabled", zap.String("reason", "REDIS_ADDR not set"))
		return NewLogNotifier(log)
	}
	client := asynq.NewClient(redisOpt(cfg))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return NewQueueNotifier(client, log)
}

var ErrQueueNotConfigured = errors.New("notification worker requires REDIS_ADDR")

func RunWorker(lc fx.Lifecycle, cfg config.Config, handlers *Handlers, log *zap.Logger) error {
	if !cfg.Redis.Enabled() {
		return ErrQueueNotConfigured
	}
	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueNotifications: 1,
		},
		Logger: log.Named("asynq").Sugar(),
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start(handlers.Mux())
		},
		OnStop: func(context.Context) error {
			srv.Shutdown()
			return nil
		},
	})
	return nil
}
