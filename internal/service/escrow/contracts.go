package escrow

import (
	"context"
	"time"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/ports/escrowtx"
)

type escrowStore interface {
	WithTx(ctx context.Context, fn func(tx escrowtx.Repository) error) error
	GetByAnnouncement(ctx context.Context, announcementID string) (*domain.EscrowTransaction, error)
	ListAutoResolveDue(ctx context.Context, capturedBefore, heldBefore time.Time, limit int) ([]domain.EscrowTransaction, error)
}

type announcementStore interface {
	Get(ctx context.Context, id string) (*domain.Announcement, error)
}

type matchStore interface {
	GetAcceptedByAnnouncement(ctx context.Context, announcementID string) (*domain.Match, error)
}

type machine interface {
	Transition(ctx context.Context, announcementID string, target domain.AnnouncementStatus, actor string) (*domain.Announcement, error)
}

type counter interface {
	Inc()
}

// Counters groups the escrow engine metrics. Nil fields are skipped.
type Counters struct {
	Released counter
	Refunded counter
}
