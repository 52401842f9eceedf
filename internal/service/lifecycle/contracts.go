//go:generate mockgen -source=contracts.go -destination=lifecycle_mocks_test.go -package=lifecycle

package lifecycle

import (
	"context"

	"crowdship-engine/internal/domain"
)

// Actors allowed to drive transitions. EXPIRED is reserved for the system.
const (
	ActorClient    = "client"
	ActorDeliverer = "deliverer"
	ActorSystem    = "system"
	ActorAdmin     = "admin"
)

type announcementStore interface {
	Get(ctx context.Context, id string) (*domain.Announcement, error)
	UpdateStatusCAS(ctx context.Context, id string, from, to domain.AnnouncementStatus) (bool, error)
}

// Edge identifies one legal lifecycle transition.
type Edge struct {
	From domain.AnnouncementStatus
	To   domain.AnnouncementStatus
}

// Hook runs after an edge has been committed. Hook failures do not roll
// the transition back; they surface to the caller and the sweeper acts as
// the backstop.
type Hook func(ctx context.Context, a *domain.Announcement, actor string) error
