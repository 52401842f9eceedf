package app

import (
	"go.uber.org/dig"

	"github.com/prometheus/client_golang/prometheus"

	"crowdship-engine/internal/config"
	"crowdship-engine/internal/gateway/processor"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/repository"
	"crowdship-engine/internal/service/sweep"
	"crowdship-engine/internal/transport/kafka"
)

type dispatcherIn struct {
	dig.In

	Store      *repository.OutboxRepo
	Publisher  *kafka.Publisher
	Gateway    processor.Gateway
	Cfg        *config.Config
	Logger     logx.Logger
	Dispatched prometheus.Counter `name:"outbox_dispatched_total"`
}

func newDispatcher(in dispatcherIn) *outbox.Dispatcher {
	// typed nil нельзя отдавать в интерфейс
	var pub outbox.Publisher
	if in.Publisher != nil {
		pub = in.Publisher
	}
	return outbox.NewDispatcher(in.Store, pub, in.Gateway, in.Cfg.Sweep.BatchSize, in.Dispatched, in.Logger)
}

func registerWorker(container *dig.Container) error {
	return provideAll(container,
		func(logger logx.Logger, cfg *config.Config) (*kafka.Publisher, error) {
			return kafka.NewPublisher(logger, cfg.Kafka.Brokers)
		},
		newDispatcher,
		func(svc *sweep.Service, cfg *config.Config, logger logx.Logger) (*sweep.Scheduler, error) {
			return sweep.NewScheduler(svc, cfg.Sweep.CronSpec, logger)
		},
	)
}
