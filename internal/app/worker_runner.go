package app

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"

	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/service/sweep"
	"crowdship-engine/internal/transport/kafka"
)

const outboxInterval = 5 * time.Second

// WorkerRunner runs the background worker: the cron sweeper and the
// outbox dispatcher.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun starts the worker using the provided DI container
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger logx.Logger,
	dispatcher *outbox.Dispatcher,
	scheduler *sweep.Scheduler,
	publisher *kafka.Publisher,
) error {
	defer closeWorker(pool, logger, scheduler, publisher)

	scheduler.Start()
	logger.Info("crowdship-worker started")
	return dispatcher.Run(ctx, outboxInterval)
}

func closeWorker(pool *pgxpool.Pool, logger logx.Logger, scheduler *sweep.Scheduler, publisher *kafka.Publisher) {
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka close error", logx.Any("err", err))
	}
	if pool != nil {
		pool.Close()
	}
}
