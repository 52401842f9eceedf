package matching

import (
	"context"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/matchtx"
)

type announcementStore interface {
	Get(ctx context.Context, id string) (*domain.Announcement, error)
	SetFinalPrice(ctx context.Context, id string, price float64) error
}

type routeStore interface {
	ListCandidates(ctx context.Context, b geo.Bounds, w geo.Window) ([]domain.Route, error)
}

type matchStore interface {
	WithTx(ctx context.Context, fn func(tx matchtx.Repository) error) error
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	ReplacePending(ctx context.Context, announcementID string, matches []domain.Match) error
	ListPendingByAnnouncement(ctx context.Context, announcementID string) ([]domain.Match, error)
	UpdateStatus(ctx context.Context, matchID string, from, to domain.MatchStatus) (bool, error)
	MarkNotified(ctx context.Context, ids []string) error
}

type outboxStore interface {
	Enqueue(ctx context.Context, ev outbox.Event) error
}

type machine interface {
	Transition(ctx context.Context, announcementID string, target domain.AnnouncementStatus, actor string) (*domain.Announcement, error)
}

type counter interface {
	Inc()
}

// Counters groups the matching engine metrics. Nil fields are skipped.
type Counters struct {
	Generated counter
	Conflicts counter
}
