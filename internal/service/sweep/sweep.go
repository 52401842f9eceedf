// Package sweep runs the periodic housekeeping passes: expiring stale
// announcements and matches, and auto-resolving escrow holds past their
// deadlines.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"crowdship-engine/internal/logx"
)

type announcementSweeper interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

type matchSweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type escrowSweeper interface {
	AutoResolveDue(ctx context.Context, batchSize int) (int, error)
}

type counter interface {
	Inc()
}

// Service runs one sweep over announcements, matches and escrow holds.
type Service struct {
	announcements announcementSweeper
	matches       matchSweeper
	escrows       escrowSweeper
	batchSize     int
	expired       counter
	logger        logx.Logger
	now           func() time.Time
}

// NewService creates a new sweep Service.
func NewService(
	announcements announcementSweeper,
	matches matchSweeper,
	escrows escrowSweeper,
	batchSize int,
	expired counter,
	logger logx.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		announcements: announcements,
		matches:       matches,
		escrows:       escrows,
		batchSize:     batchSize,
		expired:       expired,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the three sweep passes concurrently. Each pass is
// independent; a failing pass does not block the others.
func (s *Service) Run(ctx context.Context) error {
	now := s.now()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.announcements.ExpireStale(ctx, now, s.batchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			if s.expired != nil {
				for i := int64(0); i < n; i++ {
					s.expired.Inc()
				}
			}
			s.logger.Info("announcements expired",
				logx.String("event", "sweep_announcements"),
				logx.Int64("count", n),
			)
		}
		return nil
	})

	g.Go(func() error {
		n, err := s.matches.ExpireStale(ctx, now)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("matches expired",
				logx.String("event", "sweep_matches"),
				logx.Int64("count", n),
			)
		}
		return nil
	})

	g.Go(func() error {
		n, err := s.escrows.AutoResolveDue(ctx, s.batchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("escrow holds resolved",
				logx.String("event", "sweep_escrow"),
				logx.Int("count", n),
			)
		}
		return nil
	})

	return g.Wait()
}

// Scheduler runs the sweep on a cron spec.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	logger logx.Logger
}

// NewScheduler creates a Scheduler. The spec accepts standard cron
// expressions and @every intervals.
func NewScheduler(svc *Service, spec string, logger logx.Logger) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, svc: svc, logger: logger}
	if _, err := c.AddFunc(spec, func() {
		if err := svc.Run(context.Background()); err != nil {
			logger.Error("sweep run failed", logx.Any("err", err))
		}
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
