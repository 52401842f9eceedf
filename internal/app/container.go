// Package app assembles the engine: configuration, database, services,
// HTTP surface and the background worker, wired through a dig container.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"crowdship-engine/internal/config"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/gateway/processor"
	"crowdship-engine/internal/http/handlers"
	"crowdship-engine/internal/http/middleware/ratelimit"
	"crowdship-engine/internal/http/router"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/repository"
	"crowdship-engine/internal/service/escrow"
	"crowdship-engine/internal/service/lifecycle"
	"crowdship-engine/internal/service/matching"
	"crowdship-engine/internal/service/sweep"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	dbConnect func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error)
	logFatalf func(string, ...interface{})
	worker    bool
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		dbConnect: connectDbWithRetry,
		logFatalf: log.Fatalf,
	}
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(
	fn func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error),
) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// ForWorker switches the builder to the background worker wiring.
func (b *ContainerBuilder) ForWorker() *ContainerBuilder {
	b.worker = true
	return b
}

// MustBuild builds and returns a new dig container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDb(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("DB: %w", err)
	}
	if err := registerEngine(container); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if b.worker {
		if err := registerWorker(container); err != nil {
			return nil, fmt.Errorf("worker: %w", err)
		}
		return container, nil
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds the HTTP service container.
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

// MustBuildWorkerContainer builds the background worker container.
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().ForWorker().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context) error {
	return provideAll(container,
		func() context.Context { return ctx },
		NewLogger,
		config.Load,
		newCounters,
	)
}

func registerDb(
	container *dig.Container,
	dbConnect func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error),
) error {
	providerDB := func(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
		return dbConnect(ctx, cfg.DB.DSN(), 10, time.Second)
	}
	return provideAll(container, providerDB)
}

type gatewayIn struct {
	dig.In

	Logger  logx.Logger
	Retries prometheus.Counter `name:"gateway_retries_total"`
}

type matchingIn struct {
	dig.In

	Announcements *repository.AnnouncementRepo
	Routes        *repository.RouteRepo
	Matches       *repository.MatchRepo
	Outbox        *repository.OutboxRepo
	Machine       *lifecycle.Machine
	Cfg           *config.Config
	Logger        logx.Logger
	Generated     prometheus.Counter `name:"matches_generated_total"`
	Conflicts     prometheus.Counter `name:"match_conflicts_total"`
}

type escrowIn struct {
	dig.In

	Escrows       *repository.EscrowRepo
	Announcements *repository.AnnouncementRepo
	Matches       *repository.MatchRepo
	Machine       *lifecycle.Machine
	Gateway       processor.Gateway
	Cfg           *config.Config
	Logger        logx.Logger
	Released      prometheus.Counter `name:"escrow_released_total"`
	Refunded      prometheus.Counter `name:"escrow_refunded_total"`
}

type sweepIn struct {
	dig.In

	Announcements *repository.AnnouncementRepo
	Matches       *repository.MatchRepo
	Escrows       *escrow.Service
	Cfg           *config.Config
	Logger        logx.Logger
	Expired       prometheus.Counter `name:"sweep_expired_total"`
}

func registerEngine(container *dig.Container) error {
	return provideAll(container,
		repository.NewAnnouncementRepo,
		repository.NewRouteRepo,
		repository.NewMatchRepo,
		repository.NewEscrowRepo,
		repository.NewOutboxRepo,
		func(repo *repository.AnnouncementRepo, logger logx.Logger) *lifecycle.Machine {
			return lifecycle.NewMachine(repo, logger)
		},
		func(in gatewayIn) processor.Gateway {
			return processor.NewRetryingGateway(processor.NewSimulated(), in.Logger, in.Retries, processor.RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   100 * time.Millisecond,
				MaxDelay:    2 * time.Second,
			})
		},
		func(in matchingIn) *matching.Service {
			return matching.NewService(
				in.Announcements, in.Routes, in.Matches, in.Outbox, in.Machine,
				in.Cfg.Matching,
				matching.Counters{Generated: in.Generated, Conflicts: in.Conflicts},
				in.Cfg.Kafka.NotifyTopic, in.Logger,
			)
		},
		newEscrowService,
		func(in sweepIn) *sweep.Service {
			return sweep.NewService(
				in.Announcements, in.Matches, in.Escrows,
				in.Cfg.Sweep.BatchSize, in.Expired, in.Logger,
			)
		},
	)
}

// newEscrowService builds the escrow engine and ties it into the lifecycle:
// funds are held when an announcement becomes MATCHED and released when the
// delivery is VALIDATED.
func newEscrowService(in escrowIn) *escrow.Service {
	svc := escrow.NewService(
		in.Escrows, in.Announcements, in.Matches, in.Machine, in.Gateway,
		in.Cfg.Escrow,
		escrow.Counters{Released: in.Released, Refunded: in.Refunded},
		in.Cfg.Kafka.NotifyTopic, in.Logger,
	)
	in.Machine.RegisterHook(domain.StatusActive, domain.StatusMatched, svc.OnAnnouncementMatched)
	in.Machine.RegisterHook(domain.StatusDelivered, domain.StatusValidated, svc.ReleaseOnValidated)
	return svc
}

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		handlers.New,
		handlers.NewAnnouncementUsecase,
		handlers.NewRouteUsecase,
		handlers.NewLifecycleUsecase,
		handlers.NewMatchingUsecase,
		handlers.NewEscrowUsecase,
		handlers.NewSweepUsecase,
		handlers.NewAnnouncementHandler,
		handlers.NewRouteHandler,
		handlers.NewMatchHandler,
		handlers.NewEscrowHandler,
		handlers.NewSweepHandler,
		newRateLimiter,
		newRateLimitMiddleware,
		func(
			base *handlers.Handlers,
			announcements *handlers.AnnouncementHandler,
			routes *handlers.RouteHandler,
			matches *handlers.MatchHandler,
			escrowH *handlers.EscrowHandler,
			sweepH *handlers.SweepHandler,
			rl *ratelimit.Middleware,
		) http.Handler {
			return router.New(router.Deps{
				Base:          base,
				Announcements: announcements,
				Routes:        routes,
				Matches:       matches,
				Escrow:        escrowH,
				Sweep:         sweepH,
				RateLimit:     rl,
			})
		},
		serverProvider,
	)
}
