package handlers

import (
	"context"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/repository"
	"crowdship-engine/internal/service/escrow"
	"crowdship-engine/internal/service/lifecycle"
	"crowdship-engine/internal/service/matching"
	"crowdship-engine/internal/service/sweep"
)

type announcementUsecase interface {
	Create(ctx context.Context, a *domain.Announcement) error
	Get(ctx context.Context, id string) (*domain.Announcement, error)
}

// NewAnnouncementUsecase wires an AnnouncementRepo into an announcementUsecase.
func NewAnnouncementUsecase(repo *repository.AnnouncementRepo) announcementUsecase {
	return repo
}

type routeUsecase interface {
	Create(ctx context.Context, rt *domain.Route) error
	Get(ctx context.Context, id string) (*domain.Route, error)
}

// NewRouteUsecase wires a RouteRepo into a routeUsecase.
func NewRouteUsecase(repo *repository.RouteRepo) routeUsecase {
	return repo
}

type lifecycleUsecase interface {
	Transition(ctx context.Context, announcementID string, target domain.AnnouncementStatus, actor string) (*domain.Announcement, error)
}

// NewLifecycleUsecase wires a lifecycle Machine into a lifecycleUsecase.
func NewLifecycleUsecase(m *lifecycle.Machine) lifecycleUsecase {
	return m
}

type matchingUsecase interface {
	Generate(ctx context.Context, announcementID string) ([]domain.Match, error)
	Accept(ctx context.Context, matchID, delivererID string) (*domain.Announcement, error)
	Reject(ctx context.Context, matchID string) error
	Match(ctx context.Context, matchID string) (*domain.Match, error)
	NextBest(ctx context.Context, announcementID string) (*domain.Match, error)
}

// NewMatchingUsecase wires a matching Service into a matchingUsecase.
func NewMatchingUsecase(svc *matching.Service) matchingUsecase {
	return svc
}

type escrowUsecase interface {
	Hold(ctx context.Context, announcementID string, amount float64, breakdown domain.Breakdown) (*domain.EscrowTransaction, error)
	ValidateCode(ctx context.Context, announcementID, submittedCode, actor string) (*domain.EscrowTransaction, error)
	Refund(ctx context.Context, announcementID, reason string) (*domain.EscrowTransaction, error)
	Dispute(ctx context.Context, announcementID, reason string) (*domain.EscrowTransaction, error)
	Get(ctx context.Context, announcementID string) (*domain.EscrowTransaction, error)
}

// NewEscrowUsecase wires an escrow Service into an escrowUsecase.
func NewEscrowUsecase(svc *escrow.Service) escrowUsecase {
	return svc
}

type sweepUsecase interface {
	Run(ctx context.Context) error
}

// NewSweepUsecase wires a sweep Service into a sweepUsecase.
func NewSweepUsecase(svc *sweep.Service) sweepUsecase {
	return svc
}
